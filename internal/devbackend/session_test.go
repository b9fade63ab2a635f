package devbackend_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/florianilch/vidclient/internal/backend"
	"github.com/florianilch/vidclient/internal/credstore"
	"github.com/florianilch/vidclient/internal/devbackend"
	"github.com/florianilch/vidclient/internal/session"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestClientSessionAgainstBackend drives the whole client stack through the
// lifetime of a session: signup, transparent refresh, playback, expiry.
func TestClientSessionAgainstBackend(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	srv, err := devbackend.New("e2e-secret",
		devbackend.WithClock(clk.Now),
		devbackend.WithBcryptCost(bcrypt.MinCost),
	)
	if err != nil {
		t.Fatalf("devbackend.New: %v", err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	store := credstore.NewMemoryStore()
	manager := session.NewManager(store)
	refresher, err := backend.New(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	client, err := backend.New(ts.URL, backend.WithTransport(session.NewTransport(store, refresher)))
	if err != nil {
		t.Fatal(err)
	}

	token, err := client.Signup(ctx, backend.SignupRequest{Name: "Ada", Email: "ada@example.com", Password: "hunter2"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if err := manager.Establish(ctx, token); err != nil {
		t.Fatalf("Establish: %v", err)
	}

	videos, err := client.Videos(ctx)
	if err != nil {
		t.Fatalf("Videos: %v", err)
	}
	if len(videos) != len(devbackend.DefaultCatalog()) {
		t.Fatalf("got %d videos, want %d", len(videos), len(devbackend.DefaultCatalog()))
	}

	// Access token expires; the next call refreshes behind the caller's back.
	clk.Advance(devbackend.DefaultAccessTTL + time.Second)

	me, err := client.Me(ctx)
	if err != nil {
		t.Fatalf("Me after access expiry: %v", err)
	}
	if me.Email != "ada@example.com" {
		t.Errorf("Me = %+v", me)
	}
	access, err := store.Get(ctx, credstore.KeyAccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if access == token.AccessToken {
		t.Error("access token was not replaced by refresh")
	}

	stream, err := client.Play(ctx, videos[0].ID)
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if stream.Kind() != backend.StreamTypeMP4 || stream.PlayerURL() != stream.URL {
		t.Errorf("stream = %+v", stream)
	}

	// Refresh token expires too; the session ends.
	clk.Advance(devbackend.DefaultRefreshTTL)

	_, err = client.Me(ctx)
	if !errors.Is(err, session.ErrRefreshRejected) {
		t.Fatalf("Me after refresh expiry: err = %v, want ErrRefreshRejected", err)
	}
	if got := backend.ErrorMessage(err, "Could not load profile"); got != "token has expired" {
		t.Errorf("ErrorMessage = %q", got)
	}

	state, err := manager.State(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state != session.StateGuest {
		t.Errorf("state = %v, want guest", state)
	}
}
