package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/vidclient/internal/credstore"
)

// DefaultRefreshTimeout bounds a single refresh-token exchange.
const DefaultRefreshTimeout = 15 * time.Second

// Refresher exchanges a refresh token for a new access token.
// The returned token may carry a rotated refresh token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

// Refresh calls f(ctx, refreshToken).
func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return f(ctx, refreshToken)
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithBase sets the RoundTripper that sends requests.
// If not provided, http.DefaultTransport is used.
func WithBase(base http.RoundTripper) TransportOption {
	return func(t *Transport) {
		t.base = base
	}
}

// WithRefreshTimeout bounds each refresh-token exchange.
func WithRefreshTimeout(d time.Duration) TransportOption {
	return func(t *Transport) {
		if d > 0 {
			t.refreshTimeout = d
		}
	}
}

// Transport authorizes outbound requests with the stored access token and
// recovers from 401 responses by refreshing it once.
type Transport struct {
	base           http.RoundTripper
	store          credstore.Store
	refresher      Refresher
	refreshTimeout time.Duration

	// mu orders joining the pending refresh against the store writes that
	// complete it.
	mu      sync.Mutex
	pending *pendingRefresh
}

// pendingRefresh is the single in-flight exchange shared by every request
// that observed a 401 while it was running.
type pendingRefresh struct {
	done    chan struct{}
	token   *oauth2.Token
	err     error
	waiters int
}

// Compile-time check that Transport implements http.RoundTripper.
var _ http.RoundTripper = (*Transport)(nil)

// NewTransport creates a Transport reading credentials from store and
// refreshing them through refresher.
func NewTransport(store credstore.Store, refresher Refresher, opts ...TransportOption) *Transport {
	t := &Transport{
		base:           http.DefaultTransport,
		store:          store,
		refresher:      refresher,
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type retryMarkKey struct{}

// withRetryMark marks every request made with ctx as a replay after refresh.
func withRetryMark(ctx context.Context) context.Context {
	return context.WithValue(ctx, retryMarkKey{}, true)
}

func isRetry(ctx context.Context) bool {
	marked, _ := ctx.Value(retryMarkKey{}).(bool)
	return marked
}

// RoundTrip implements http.RoundTripper.
//
// A 401 is passed through unchanged when the request is already a replay or
// its body cannot be replayed. Otherwise the stored refresh token is
// exchanged and the request is sent again with the new access token.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	out, sent, err := t.authorize(req)
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	if isRetry(ctx) {
		slog.DebugContext(ctx, "replayed request rejected, giving up", "method", req.Method, "path", req.URL.Path)
		return resp, nil
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		slog.WarnContext(ctx, "request body cannot be replayed, not refreshing", "method", req.Method, "path", req.URL.Path)
		return resp, nil
	}

	return t.handleUnauthorized(req, resp, sent)
}

// authorize is the outbound phase. It returns a clone of req carrying the
// stored access token, if any, and the bearer token the clone will send.
func (t *Transport) authorize(req *http.Request) (*http.Request, string, error) {
	ctx := req.Context()
	out := req.Clone(ctx)

	accessToken, err := t.lookup(ctx, credstore.KeyAccessToken)
	if err != nil {
		return nil, "", fmt.Errorf("reading access token: %w", err)
	}
	if accessToken != "" {
		(&oauth2.Token{AccessToken: accessToken}).SetAuthHeader(out)
	}

	return out, bearerToken(out.Header), nil
}

// handleUnauthorized handles a first-attempt 401.
func (t *Transport) handleUnauthorized(req *http.Request, resp *http.Response, sent string) (*http.Response, error) {
	ctx := req.Context()

	refreshToken, err := t.lookup(ctx, credstore.KeyRefreshToken)
	if err != nil {
		drainAndClose(resp)
		return nil, fmt.Errorf("reading refresh token: %w", err)
	}
	if refreshToken == "" {
		slog.InfoContext(ctx, "session expired and no refresh token stored, clearing session")
		if err := t.store.Clear(context.WithoutCancel(ctx)); err != nil {
			slog.ErrorContext(ctx, "failed to clear session", "error", err)
		}
		return resp, nil
	}

	drainAndClose(resp)

	token, err := t.refresh(ctx, sent, refreshToken)
	if err != nil {
		return nil, err
	}

	retry := req.Clone(withRetryMark(ctx))
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewinding request body: %w", err)
		}
		retry.Body = body
	}
	token.SetAuthHeader(retry)

	return t.RoundTrip(retry)
}

// refresh joins the pending exchange or starts one. When the stored access
// token no longer matches the one that was rejected, another request already
// replaced it and the stored token is returned without a new exchange.
func (t *Transport) refresh(ctx context.Context, sent, refreshToken string) (*oauth2.Token, error) {
	t.mu.Lock()
	p := t.pending
	if p == nil {
		current, err := t.lookup(ctx, credstore.KeyAccessToken)
		if err != nil {
			t.mu.Unlock()
			return nil, fmt.Errorf("reading access token: %w", err)
		}
		if current != "" && current != sent {
			t.mu.Unlock()
			slog.DebugContext(ctx, "access token replaced while request was in flight, replaying")
			return &oauth2.Token{AccessToken: current}, nil
		}

		p = &pendingRefresh{done: make(chan struct{})}
		t.pending = p
		go t.exchange(context.WithoutCancel(ctx), p, refreshToken)
	}
	p.waiters++
	t.mu.Unlock()

	select {
	case <-p.done:
		if p.err != nil {
			return nil, p.err
		}
		token := *p.token
		return &token, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// exchange performs the refresh-token exchange for p and settles it.
// The store is updated before any waiter is released.
func (t *Transport) exchange(ctx context.Context, p *pendingRefresh, refreshToken string) {
	exchangeCtx, cancel := context.WithTimeout(ctx, t.refreshTimeout)
	defer cancel()

	started := time.Now()
	token, err := t.refresher.Refresh(exchangeCtx, refreshToken)
	if err == nil && (token == nil || token.AccessToken == "") {
		err = errMissingAccessToken
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err == nil {
		err = t.persist(ctx, token)
	}

	if err != nil {
		p.err = &RefreshError{Err: err}
		if clearErr := t.store.Clear(ctx); clearErr != nil {
			slog.ErrorContext(ctx, "failed to clear session", "error", clearErr)
		}
		slog.WarnContext(ctx, "token refresh failed, session cleared",
			"error", err,
			"waiters", p.waiters,
			"duration", time.Since(started),
		)
	} else {
		p.token = token
		slog.InfoContext(ctx, "access token refreshed",
			"rotated", token.RefreshToken != "",
			"waiters", p.waiters,
			"duration", time.Since(started),
		)
	}

	t.pending = nil
	close(p.done)
}

// persist stores a refreshed token. A rotated refresh token is written first.
func (t *Transport) persist(ctx context.Context, token *oauth2.Token) error {
	if token.RefreshToken != "" {
		if err := t.store.Set(ctx, credstore.KeyRefreshToken, token.RefreshToken); err != nil {
			return fmt.Errorf("persisting refresh token: %w", err)
		}
	}
	if err := t.store.Set(ctx, credstore.KeyAccessToken, token.AccessToken); err != nil {
		return fmt.Errorf("persisting access token: %w", err)
	}
	return nil
}

// lookup returns the stored value for key, or "" when absent.
func (t *Transport) lookup(ctx context.Context, key credstore.Key) (string, error) {
	value, err := t.store.Get(ctx, key)
	if errors.Is(err, credstore.ErrNotFound) {
		return "", nil
	}
	return value, err
}

// waiting reports how many requests share the pending exchange.
func (t *Transport) waiting() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		return 0
	}
	return t.pending.waiters
}

func bearerToken(h http.Header) string {
	token, ok := strings.CutPrefix(h.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return token
}

// drainAndClose discards a response that will not reach the caller so the
// connection can be reused.
func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
