package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/vidclient/internal/backend"
	"github.com/florianilch/vidclient/internal/credstore"
	"github.com/florianilch/vidclient/internal/devbackend"
	"github.com/florianilch/vidclient/internal/observability"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = observability.FormatText
	LogFormatJSON LogFormat = observability.FormatJSON
)

// CredentialStorageType represents the different storage types supported for session credentials.
type CredentialStorageType string

const (
	CredentialStorageTypeFile    CredentialStorageType = "file"
	CredentialStorageTypeKeyring CredentialStorageType = "keyring"
	// Memory storage lives for a single process; useful for scripting and tests.
	CredentialStorageTypeMemory CredentialStorageType = "memory"
)

// keyringService names the keyring items holding session credentials.
const keyringService = "vidclient-session"

// Default configuration values
const (
	DefaultConfigLogFormat         = LogFormatText
	DefaultConfigTelemetryExporter = observability.ExporterNone
	DefaultConfigAPIBaseURL        = "http://localhost:5000"
	DefaultConfigAPITimeout        = backend.DefaultTimeout
	DefaultConfigAuthStorage       = CredentialStorageTypeFile
	DefaultConfigBackendHost       = "127.0.0.1"
	DefaultConfigBackendPort       = 5000
	DefaultConfigShutdownTimeout   = 5 * time.Second
)

// TelemetryConfig holds log export configuration.
type TelemetryConfig struct {
	Exporter string `json:"exporter" validate:"oneof=none stdout otlp-http otlp-grpc"`
}

// APIConfig describes the backend the client talks to.
type APIConfig struct {
	BaseURL string `json:"base_url" validate:"required,http_url"`
	// Timeout bounds each request, and separately each token refresh.
	Timeout time.Duration `json:"timeout" validate:"gt=0"`
}

// AuthConfig describes where session credentials are kept.
type AuthConfig struct {
	Storage CredentialStorageType `json:"storage" validate:"required,oneof=file keyring memory"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string `json:"file,omitempty"`         // For file storage: path to the credentials document
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier
}

// NewStore creates a credential store from the authentication configuration.
func (a *AuthConfig) NewStore() (credstore.Store, error) {
	switch a.Storage {
	case CredentialStorageTypeFile:
		return credstore.NewFileStore(a.File)
	case CredentialStorageTypeKeyring:
		return credstore.NewKeyringStore(keyringService, a.KeyringUser)
	case CredentialStorageTypeMemory:
		return credstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// BackendConfig holds configuration of the development backend.
type BackendConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
	// Secret signs issued tokens. A random secret is generated when empty,
	// which invalidates all sessions on restart.
	Secret         string        `json:"secret,omitempty"`
	AccessTTL      time.Duration `json:"access_ttl" validate:"gte=0"`
	RefreshTTL     time.Duration `json:"refresh_ttl" validate:"gte=0"`
	PlaybackTTL    time.Duration `json:"playback_ttl" validate:"gte=0"`
	DashboardLimit int           `json:"dashboard_limit" validate:"gte=0"`
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level      `json:"log_level"`
	LogFormat LogFormat       `json:"log_format" validate:"oneof=text json"`
	Telemetry TelemetryConfig `json:"telemetry"`
	API       APIConfig       `json:"api"`
	Auth      AuthConfig      `json:"auth"`
	Backend   BackendConfig   `json:"backend"`
	Shutdown  ShutdownConfig  `json:"shutdown"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = DefaultConfigTelemetryExporter
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultConfigAPIBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultConfigAPITimeout
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}
	if c.Backend.Host == "" {
		c.Backend.Host = DefaultConfigBackendHost
	}
	if c.Backend.Port == 0 {
		c.Backend.Port = DefaultConfigBackendPort
	}
	if c.Backend.AccessTTL == 0 {
		c.Backend.AccessTTL = devbackend.DefaultAccessTTL
	}
	if c.Backend.RefreshTTL == 0 {
		c.Backend.RefreshTTL = devbackend.DefaultRefreshTTL
	}
	if c.Backend.PlaybackTTL == 0 {
		c.Backend.PlaybackTTL = devbackend.DefaultPlaybackTTL
	}
	if c.Backend.DashboardLimit == 0 {
		c.Backend.DashboardLimit = devbackend.DefaultDashboardLimit
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case CredentialStorageTypeFile:
		if c.Auth.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.file required (auto-detect failed: %w)", err)
			}
			c.Auth.File = filepath.Join(configDir, "vidclient", "session.json")
		}
	case CredentialStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	case CredentialStorageTypeMemory:
		// nothing to locate
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Auth.Storage {
	case CredentialStorageTypeFile:
		if c.Auth.File == "" {
			return errors.New("file path required for file storage")
		}
	case CredentialStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	if c.Backend.RefreshTTL != 0 && c.Backend.AccessTTL > c.Backend.RefreshTTL {
		return errors.New("backend.access_ttl must not exceed backend.refresh_ttl")
	}

	return nil
}
