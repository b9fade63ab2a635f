package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/florianilch/vidclient/internal/session"
)

const (
	// DefaultTimeout bounds every request, matching the backend's expectations for mobile clients.
	DefaultTimeout = 15 * time.Second

	// maxErrorBody caps how much of an error response is read for its message.
	maxErrorBody = 64 << 10
)

var tracer = otel.Tracer("github.com/florianilch/vidclient/internal/backend")

// Option configures a Client.
type Option func(*config)

type config struct {
	transport        http.RoundTripper
	refreshTransport http.RoundTripper
	timeout          time.Duration
}

// WithTransport sets the RoundTripper for every call except Refresh.
// Pass a session.Transport here to authorize requests.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *config) {
		c.transport = transport
	}
}

// WithRefreshTransport sets the RoundTripper used by Refresh.
// It must not be a session.Transport: a rejected refresh is terminal.
func WithRefreshTransport(transport http.RoundTripper) Option {
	return func(c *config) {
		c.refreshTransport = transport
	}
}

// WithTimeout sets the per-request deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.timeout = timeout
	}
}

// Client calls the video backend.
type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	refreshHTTP *http.Client
}

// Compile-time check that Client can refresh sessions.
var _ session.Refresher = (*Client)(nil)

// New creates a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: missing host", baseURL)
	}

	cfg := &config{
		transport:        http.DefaultTransport,
		refreshTransport: http.DefaultTransport,
		timeout:          DefaultTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Client{
		baseURL:     u,
		httpClient:  &http.Client{Transport: cfg.transport, Timeout: cfg.timeout},
		refreshHTTP: &http.Client{Transport: cfg.refreshTransport, Timeout: cfg.timeout},
	}, nil
}

// Signup creates an account and returns its first token pair.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*oauth2.Token, error) {
	var resp tokenResponse
	err := c.do(ctx, c.httpClient, call{
		op:     "signup",
		method: http.MethodPost,
		path:   []string{"auth", "signup"},
		body:   req,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.token(), nil
}

// Login authenticates with email and password and returns a token pair.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*oauth2.Token, error) {
	var resp tokenResponse
	err := c.do(ctx, c.httpClient, call{
		op:     "login",
		method: http.MethodPost,
		path:   []string{"auth", "login"},
		body:   req,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.token(), nil
}

// Refresh exchanges refreshToken for a new access token. It never passes
// through the authorizing transport.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	var resp tokenResponse
	err := c.do(ctx, c.refreshHTTP, call{
		op:     "refresh",
		method: http.MethodPost,
		path:   []string{"auth", "refresh"},
		header: http.Header{"Authorization": []string{"Bearer " + refreshToken}},
		body:   struct{}{},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.token(), nil
}

// Me returns the profile of the authenticated user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var resp meResponse
	err := c.do(ctx, c.httpClient, call{
		op:     "me",
		method: http.MethodGet,
		path:   []string{"auth", "me"},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// Videos returns the dashboard listing.
func (c *Client) Videos(ctx context.Context) ([]Video, error) {
	var resp dashboardResponse
	err := c.do(ctx, c.httpClient, call{
		op:     "dashboard",
		method: http.MethodGet,
		path:   []string{"dashboard"},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Items == nil {
		return []Video{}, nil
	}
	return resp.Items, nil
}

// PlaybackToken mints a short-lived token for streaming videoID.
func (c *Client) PlaybackToken(ctx context.Context, videoID string) (*PlaybackToken, error) {
	if videoID == "" {
		return nil, errors.New("missing video id")
	}

	var resp PlaybackToken
	err := c.do(ctx, c.httpClient, call{
		op:     "playback_token",
		method: http.MethodGet,
		path:   []string{"video", videoID, "token"},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stream resolves the media URL of videoID using a playback token.
func (c *Client) Stream(ctx context.Context, videoID, playbackToken string) (*Stream, error) {
	if videoID == "" {
		return nil, errors.New("missing video id")
	}

	var resp Stream
	err := c.do(ctx, c.httpClient, call{
		op:     "stream",
		method: http.MethodGet,
		path:   []string{"video", videoID, "stream"},
		query:  url.Values{"token": []string{playbackToken}},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Play mints a playback token for videoID and resolves its stream.
func (c *Client) Play(ctx context.Context, videoID string) (*Stream, error) {
	token, err := c.PlaybackToken(ctx, videoID)
	if err != nil {
		return nil, err
	}
	return c.Stream(ctx, videoID, token.Token)
}

// call describes one backend request.
type call struct {
	op     string
	method string
	path   []string
	query  url.Values
	header http.Header
	body   any
}

// do sends a request and decodes a 2xx JSON response into out.
// Non-2xx responses become *APIError; failures without a response become
// *NetworkError, except refresh failures which are returned as-is.
func (c *Client) do(ctx context.Context, hc *http.Client, cl call, out any) (err error) {
	ctx, span := tracer.Start(ctx, "backend."+cl.op, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	u := c.baseURL.JoinPath(cl.path...)
	if cl.query != nil {
		u.RawQuery = cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", cl.op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, u.String(), body)
	if err != nil {
		return fmt.Errorf("building %s request: %w", cl.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	for key, values := range cl.header {
		req.Header[key] = values
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := hc.Do(req)
	if err != nil {
		if errors.Is(err, session.ErrRefreshRejected) {
			return err
		}
		return &NetworkError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    serverMessage(resp.Body),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", cl.op, err)
	}
	return nil
}

// serverMessage extracts the first non-blank error, message or detail field
// of a JSON error body.
func serverMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return ""
	}
	for _, key := range []string{"error", "message", "detail"} {
		if msg, ok := fields[key].(string); ok && strings.TrimSpace(msg) != "" {
			return msg
		}
	}
	return ""
}

func (r tokenResponse) token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    "Bearer",
	}
}
