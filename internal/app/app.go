package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/vidclient/internal/backend"
	"github.com/florianilch/vidclient/internal/devbackend"
	"github.com/florianilch/vidclient/internal/session"
)

// Client bundles what a command needs to act on behalf of the user.
type Client struct {
	// Backend sends every request, except refresh, through the session pipeline.
	Backend *backend.Client
	Session *session.Manager
}

// NewClient wires credential store, session pipeline and backend client.
// No I/O is performed until the first request.
func NewClient(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := cfg.Auth.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create credential store: %w", err)
	}

	// Refresh must never pass through the pipeline it serves.
	refresher, err := backend.New(cfg.API.BaseURL, backend.WithTimeout(cfg.API.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh client: %w", err)
	}

	transport := session.NewTransport(store, refresher, session.WithRefreshTimeout(cfg.API.Timeout))
	client, err := backend.New(cfg.API.BaseURL,
		backend.WithTransport(transport),
		backend.WithTimeout(cfg.API.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	return &Client{
		Backend: client,
		Session: session.NewManager(store),
	}, nil
}

// App orchestrates the lifecycle of the development backend.
type App struct {
	cfg     *Config
	backend *devbackend.Server
}

// New creates a new App instance.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	secret := cfg.Backend.Secret
	if secret == "" {
		generated, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing secret: %w", err)
		}
		secret = generated
		slog.Warn("no backend secret configured, sessions will not survive a restart")
	}

	server, err := devbackend.New(secret,
		devbackend.WithAccessTTL(cfg.Backend.AccessTTL),
		devbackend.WithRefreshTTL(cfg.Backend.RefreshTTL),
		devbackend.WithPlaybackTTL(cfg.Backend.PlaybackTTL),
		devbackend.WithDashboardLimit(cfg.Backend.DashboardLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}

	return &App{
		cfg:     cfg,
		backend: server,
	}, nil
}

// Address returns the listen address of the backend.
func (a *App) Address() string {
	return net.JoinHostPort(a.cfg.Backend.Host, strconv.FormatUint(uint64(a.cfg.Backend.Port), 10))
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.Address()
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting backend server", "address", address)
	backendErrCh, err := a.backend.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("backend startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.backend.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-backendErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "backend runtime error", "error", err)
				return fmt.Errorf("backend: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
