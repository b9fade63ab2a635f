package app

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}

	if cfg.API.BaseURL != DefaultConfigAPIBaseURL {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 15*time.Second {
		t.Errorf("API.Timeout = %v", cfg.API.Timeout)
	}
	if cfg.Auth.Storage != CredentialStorageTypeFile {
		t.Errorf("Auth.Storage = %q", cfg.Auth.Storage)
	}
	if filepath.Base(cfg.Auth.File) != "session.json" || filepath.Base(filepath.Dir(cfg.Auth.File)) != "vidclient" {
		t.Errorf("Auth.File = %q", cfg.Auth.File)
	}
	if cfg.Backend.Port != DefaultConfigBackendPort || cfg.Backend.DashboardLimit != 20 {
		t.Errorf("Backend = %+v", cfg.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		API:  APIConfig{BaseURL: "https://videos.example.com/api", Timeout: time.Second},
		Auth: AuthConfig{Storage: CredentialStorageTypeKeyring, KeyringUser: "ada"},
	}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatal(err)
	}
	if cfg.API.BaseURL != "https://videos.example.com/api" || cfg.API.Timeout != time.Second {
		t.Errorf("API = %+v", cfg.API)
	}
	if cfg.Auth.KeyringUser != "ada" || cfg.Auth.File != "" {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			LogFormat: LogFormatText,
			Telemetry: TelemetryConfig{Exporter: "none"},
			API:       APIConfig{BaseURL: "http://localhost:5000", Timeout: time.Second},
			Auth:      AuthConfig{Storage: CredentialStorageTypeMemory},
			Backend:   BackendConfig{Host: "127.0.0.1", Port: 5000, AccessTTL: time.Minute, RefreshTTL: time.Hour},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"otlp exporter", func(c *Config) { c.Telemetry.Exporter = "otlp-grpc" }, ""},
		{"unknown exporter", func(c *Config) { c.Telemetry.Exporter = "zipkin" }, "Exporter"},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }, "LogFormat"},
		{"base url without scheme", func(c *Config) { c.API.BaseURL = "localhost:5000" }, "BaseURL"},
		{"zero timeout", func(c *Config) { c.API.Timeout = 0 }, "Timeout"},
		{"unknown storage", func(c *Config) { c.Auth.Storage = "env" }, "Storage"},
		{"file storage without path", func(c *Config) { c.Auth.Storage = CredentialStorageTypeFile }, "file path required"},
		{"keyring without user", func(c *Config) { c.Auth.Storage = CredentialStorageTypeKeyring }, "keyring_user required"},
		{"invalid backend host", func(c *Config) { c.Backend.Host = "not a host" }, "Host"},
		{"access outlives refresh", func(c *Config) { c.Backend.AccessTTL = 2 * time.Hour }, "access_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewStore(t *testing.T) {
	tests := []struct {
		name string
		cfg  AuthConfig
		want string
	}{
		{"file", AuthConfig{Storage: CredentialStorageTypeFile, File: filepath.Join(t.TempDir(), "s.json")}, "*credstore.FileStore"},
		{"keyring", AuthConfig{Storage: CredentialStorageTypeKeyring, KeyringUser: "ada"}, "*credstore.KeyringStore"},
		{"memory", AuthConfig{Storage: CredentialStorageTypeMemory}, "*credstore.MemoryStore"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := tt.cfg.NewStore()
			if err != nil {
				t.Fatalf("NewStore: %v", err)
			}
			if got := fmt.Sprintf("%T", store); got != tt.want {
				t.Errorf("NewStore returned %s, want %s", got, tt.want)
			}
		})
	}

	if _, err := (&AuthConfig{Storage: "env"}).NewStore(); err == nil {
		t.Error("NewStore accepted unsupported storage")
	}
}
