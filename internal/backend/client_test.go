package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/florianilch/vidclient/internal/backend"
	"github.com/florianilch/vidclient/internal/credstore"
	"github.com/florianilch/vidclient/internal/session"
)

// fakeBackend is a scripted backend. Access tokens in valid are accepted;
// refresh answers with refreshed (or refreshStatus when non-zero).
type fakeBackend struct {
	mu            sync.Mutex
	valid         map[string]bool
	refreshed     string
	refreshStatus int
	refreshCalls  atomic.Int32
	authHeaders   []string
}

func newFakeBackend(t *testing.T, fb *fakeBackend) *httptest.Server {
	t.Helper()

	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	authorized := func(w http.ResponseWriter, r *http.Request) bool {
		auth := r.Header.Get("Authorization")
		fb.mu.Lock()
		fb.authHeaders = append(fb.authHeaders, auth)
		ok := fb.valid[strings.TrimPrefix(auth, "Bearer ")]
		fb.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Token has expired"})
		}
		return ok
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req backend.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "A1", "refresh_token": "R1"})
	})
	mux.HandleFunc("POST /auth/signup", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]string{"access_token": "A1", "refresh_token": "R1"})
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		fb.refreshCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer R1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "refresh token required"})
			return
		}
		if fb.refreshStatus != 0 {
			writeJSON(w, fb.refreshStatus, map[string]string{"error": "refresh token revoked"})
			return
		}
		fb.mu.Lock()
		fb.valid[fb.refreshed] = true
		fb.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"access_token": fb.refreshed})
	})
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": map[string]string{
			"id": "u1", "name": "Ada", "email": "ada@example.com", "created_at": "2026-01-02T03:04:05Z",
		}})
	})
	mux.HandleFunc("GET /dashboard", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": []map[string]string{
			{"id": "v1", "title": "Big Buck Bunny", "description": "sample", "thumbnail_url": "https://img.test/bbb.jpg"},
		}})
	})
	mux.HandleFunc("GET /video/{id}/token", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		if r.PathValue("id") != "v1" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "video not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"token": "P1", "video_id": "v1", "exp": 1700000000})
	})
	mux.HandleFunc("GET /video/{id}/stream", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "P1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"url": "https://cdn.test/bbb.mp4", "watch_url": nil, "stream_type": "mp4"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newSessionClient wires a client the way the application does.
func newSessionClient(t *testing.T, baseURL string, store credstore.Store) *backend.Client {
	t.Helper()

	refresher, err := backend.New(baseURL)
	if err != nil {
		t.Fatalf("New refresher: %v", err)
	}
	client, err := backend.New(baseURL, backend.WithTransport(session.NewTransport(store, refresher)))
	if err != nil {
		t.Fatalf("New client: %v", err)
	}
	return client
}

func TestLoginThenAuthenticatedRequest(t *testing.T) {
	ctx := context.Background()
	fb := &fakeBackend{valid: map[string]bool{"A1": true}}
	srv := newFakeBackend(t, fb)

	store := credstore.NewMemoryStore()
	client := newSessionClient(t, srv.URL, store)

	token, err := client.Login(ctx, backend.LoginRequest{Email: "ada@example.com", Password: "secret"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token.AccessToken != "A1" || token.RefreshToken != "R1" {
		t.Fatalf("token = %+v, want A1/R1", token)
	}
	if err := session.NewManager(store).Establish(ctx, token); err != nil {
		t.Fatalf("Establish: %v", err)
	}

	user, err := client.Me(ctx)
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if user.Email != "ada@example.com" || user.CreatedAt == "" {
		t.Errorf("user = %+v", user)
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()
	if got := fb.authHeaders[len(fb.authHeaders)-1]; got != "Bearer A1" {
		t.Errorf("Authorization = %q, want Bearer A1", got)
	}
}

func TestLoginRejected(t *testing.T) {
	srv := newFakeBackend(t, &fakeBackend{valid: map[string]bool{}})
	client := newSessionClient(t, srv.URL, credstore.NewMemoryStore())

	_, err := client.Login(context.Background(), backend.LoginRequest{Email: "ada@example.com", Password: "wrong"})

	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("error = %v, want 401 APIError", err)
	}
	if got := backend.ErrorMessage(err, "Login failed"); got != "invalid credentials" {
		t.Errorf("ErrorMessage = %q", got)
	}
}

func TestExpiredAccessTokenIsRefreshedTransparently(t *testing.T) {
	fb := &fakeBackend{valid: map[string]bool{}, refreshed: "A2"}
	srv := newFakeBackend(t, fb)

	store := credstore.NewMemoryStore()
	if err := session.NewManager(store).Establish(context.Background(), tokenPair("A1", "R1")); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	client := newSessionClient(t, srv.URL, store)

	videos, err := client.Videos(context.Background())
	if err != nil {
		t.Fatalf("Videos: %v", err)
	}
	if len(videos) != 1 || videos[0].ID != "v1" {
		t.Errorf("videos = %+v", videos)
	}

	fb.mu.Lock()
	headers := append([]string(nil), fb.authHeaders...)
	fb.mu.Unlock()
	if strings.Join(headers, ",") != "Bearer A1,Bearer A2" {
		t.Errorf("Authorization headers = %v, want [Bearer A1 Bearer A2]", headers)
	}
	if n := fb.refreshCalls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
	if got, _ := store.Get(context.Background(), credstore.KeyAccessToken); got != "A2" {
		t.Errorf("stored access token = %q, want A2", got)
	}
}

func TestExpiredSessionWithoutRefreshToken(t *testing.T) {
	fb := &fakeBackend{valid: map[string]bool{}}
	srv := newFakeBackend(t, fb)

	store := credstore.NewMemoryStore()
	_ = store.Set(context.Background(), credstore.KeyAccessToken, "A1")
	client := newSessionClient(t, srv.URL, store)

	_, err := client.Me(context.Background())

	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("error = %v, want original 401", err)
	}
	if !errors.Is(err, session.ErrNotAuthenticated) {
		t.Errorf("error %v does not match ErrNotAuthenticated", err)
	}
	if errors.Is(err, session.ErrRefreshRejected) {
		t.Errorf("error %v must not be a refresh failure", err)
	}
	if n := fb.refreshCalls.Load(); n != 0 {
		t.Errorf("refresh calls = %d, want 0", n)
	}
	if _, err := store.Get(context.Background(), credstore.KeyAccessToken); !errors.Is(err, credstore.ErrNotFound) {
		t.Errorf("access token not cleared: %v", err)
	}
}

func TestRefreshRejectedSurfacesRefreshFailure(t *testing.T) {
	fb := &fakeBackend{valid: map[string]bool{}, refreshStatus: http.StatusUnauthorized}
	srv := newFakeBackend(t, fb)

	store := credstore.NewMemoryStore()
	if err := session.NewManager(store).Establish(context.Background(), tokenPair("A1", "R1")); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	client := newSessionClient(t, srv.URL, store)

	_, err := client.Videos(context.Background())
	if !errors.Is(err, session.ErrRefreshRejected) {
		t.Fatalf("error = %v, want refresh failure", err)
	}

	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %v does not carry the refresh response", err)
	}
	if apiErr.Message != "refresh token revoked" {
		t.Errorf("message = %q, want the refresh endpoint's message", apiErr.Message)
	}
	if got := backend.ErrorMessage(err, "Failed to load videos"); got != "refresh token revoked" {
		t.Errorf("ErrorMessage = %q", got)
	}

	state, err := session.NewManager(store).State(context.Background())
	if err != nil || state != session.StateGuest {
		t.Errorf("state = %v, %v; want guest", state, err)
	}
}

func TestPlay(t *testing.T) {
	srv := newFakeBackend(t, &fakeBackend{valid: map[string]bool{"A1": true}})
	store := credstore.NewMemoryStore()
	_ = session.NewManager(store).Establish(context.Background(), tokenPair("A1", "R1"))
	client := newSessionClient(t, srv.URL, store)

	stream, err := client.Play(context.Background(), "v1")
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if stream.URL != "https://cdn.test/bbb.mp4" || stream.Kind() != backend.StreamTypeMP4 {
		t.Errorf("stream = %+v", stream)
	}
	if stream.WatchURL != nil {
		t.Errorf("watch URL = %v, want nil", *stream.WatchURL)
	}

	_, err = client.Play(context.Background(), "missing")
	if got := backend.ErrorMessage(err, "Failed to load stream"); got != "video not found" {
		t.Errorf("ErrorMessage = %q", got)
	}

	if _, err := client.Play(context.Background(), ""); err == nil {
		t.Error("expected error for missing video id")
	}
}

func TestRefreshSendsRefreshToken(t *testing.T) {
	fb := &fakeBackend{valid: map[string]bool{}, refreshed: "A9"}
	srv := newFakeBackend(t, fb)

	client, err := backend.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	token, err := client.Refresh(context.Background(), "R1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if token.AccessToken != "A9" || token.RefreshToken != "" {
		t.Errorf("token = %+v", token)
	}

	_, err = client.Refresh(context.Background(), "stale")
	if !errors.Is(err, session.ErrNotAuthenticated) {
		t.Errorf("error = %v, want 401", err)
	}
}

func TestUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	client := newSessionClient(t, baseURL, credstore.NewMemoryStore())
	_, err := client.Videos(context.Background())

	if !errors.Is(err, backend.ErrUnreachable) {
		t.Fatalf("error = %v, want ErrUnreachable", err)
	}
	var netErr *backend.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("error %v is not a *NetworkError", err)
	}
	want := "Failed to load videos: can't reach the server. Check the API base URL and that the backend is running."
	if got := backend.ErrorMessage(err, "Failed to load videos"); got != want {
		t.Errorf("ErrorMessage = %q, want %q", got, want)
	}
}

func TestTimeoutIsNoResponse(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	client, err := backend.New(srv.URL, backend.WithTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = client.Me(context.Background())
	if !errors.Is(err, backend.ErrUnreachable) {
		t.Fatalf("error = %v, want ErrUnreachable", err)
	}
}

func TestNewValidatesBaseURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:5000", "ftp://example.com", "http://"} {
		if _, err := backend.New(raw); err == nil {
			t.Errorf("New(%q): expected error", raw)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "server message", err: &backend.APIError{StatusCode: 409, Message: "email already exists"}, want: "email already exists"},
		{name: "blank server message", err: &backend.APIError{StatusCode: 500, Message: "  "}, want: "Request failed (HTTP 500)"},
		{name: "status only", err: &backend.APIError{StatusCode: 404}, want: "Request failed (HTTP 404)"},
		{
			name: "no response",
			err:  &backend.NetworkError{Err: errors.New("connection refused")},
			want: "Request failed: can't reach the server. Check the API base URL and that the backend is running.",
		},
		{name: "other", err: errors.New("missing video id"), want: "Request failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := backend.ErrorMessage(tt.err, "Request failed"); got != tt.want {
				t.Errorf("ErrorMessage = %q, want %q", got, tt.want)
			}
		})
	}
}
