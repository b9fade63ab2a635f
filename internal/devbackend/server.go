package devbackend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"
)

// Default token lifetimes and listing size.
const (
	DefaultAccessTTL      = 15 * time.Minute
	DefaultRefreshTTL     = 7 * 24 * time.Hour
	DefaultPlaybackTTL    = 900 * time.Second
	DefaultDashboardLimit = 20
)

// Option configures a Server.
type Option func(*config)

type config struct {
	accessTTL      time.Duration
	refreshTTL     time.Duration
	playbackTTL    time.Duration
	dashboardLimit int
	videos         []Video
	now            func() time.Time
	bcryptCost     int
}

// WithAccessTTL sets the lifetime of access tokens.
func WithAccessTTL(d time.Duration) Option {
	return func(c *config) { c.accessTTL = d }
}

// WithRefreshTTL sets the lifetime of refresh tokens.
func WithRefreshTTL(d time.Duration) Option {
	return func(c *config) { c.refreshTTL = d }
}

// WithPlaybackTTL sets the lifetime of playback tokens.
func WithPlaybackTTL(d time.Duration) Option {
	return func(c *config) { c.playbackTTL = d }
}

// WithDashboardLimit caps the number of videos listed on the dashboard.
func WithDashboardLimit(n int) Option {
	return func(c *config) { c.dashboardLimit = n }
}

// WithVideos replaces the default catalogue. Later entries are listed first.
func WithVideos(videos []Video) Option {
	return func(c *config) { c.videos = videos }
}

// WithClock overrides the time source used for token issuing and validation.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(c *config) { c.bcryptCost = cost }
}

// Server is the development backend.
type Server struct {
	cfg      config
	handler  http.Handler
	server   *http.Server
	tokens   *issuer
	users    *userStore
	catalog  *catalog
	validate *validator.Validate
}

// Compile-time check that Server implements http.Handler
var _ http.Handler = (*Server)(nil)

// New creates a Server signing tokens with secret.
func New(secret string, opts ...Option) (*Server, error) {
	if secret == "" {
		return nil, errors.New("secret must not be empty")
	}

	cfg := config{
		accessTTL:      DefaultAccessTTL,
		refreshTTL:     DefaultRefreshTTL,
		playbackTTL:    DefaultPlaybackTTL,
		dashboardLimit: DefaultDashboardLimit,
		videos:         DefaultCatalog(),
		now:            time.Now,
		bcryptCost:     bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.accessTTL <= 0 || cfg.refreshTTL <= 0 || cfg.playbackTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	if cfg.dashboardLimit <= 0 {
		return nil, errors.New("dashboard limit must be positive")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Server{
		cfg:      cfg,
		tokens:   &issuer{secret: []byte(secret), now: cfg.now},
		users:    newUserStore(cfg.bcryptCost),
		catalog:  newCatalog(cfg.videos),
		validate: validate,
	}

	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidbackend",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route pattern and status code.",
	}, []string{"route", "code"})
	registry.MustRegister(requests)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/signup", s.handleSignup)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.Handle("POST /auth/refresh", s.requireToken(tokenTypeRefresh, s.handleRefresh))
	mux.Handle("GET /auth/me", s.requireToken(tokenTypeAccess, s.handleMe))
	mux.Handle("GET /dashboard", s.requireToken(tokenTypeAccess, s.handleDashboard))
	mux.Handle("GET /video/{id}/token", s.requireToken(tokenTypeAccess, s.handlePlaybackToken))
	mux.HandleFunc("GET /video/{id}/stream", s.handleStream)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	s.handler = applyMiddlewares(mux,
		Logging(slog.Default()),
		TraceContext,
		Recovery,
		Metrics(requests),
	)

	return s, nil
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (s *Server) Start(ctx context.Context, address string) (<-chan error, error) {
	// Startup phase: Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s.server = &http.Server{
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := s.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = s.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
