package session

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/florianilch/vidclient/internal/credstore"
)

// State is the session state derived from the credential store.
type State int

const (
	// StateGuest means at least one of the two tokens is missing.
	StateGuest State = iota
	// StateAuthenticated means both tokens are stored.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	default:
		return "guest"
	}
}

// Manager establishes, inspects and ends sessions.
type Manager struct {
	store credstore.Store
}

// NewManager creates a Manager backed by store.
func NewManager(store credstore.Store) *Manager {
	return &Manager{store: store}
}

// Establish stores the token pair returned by login or signup.
// Both tokens are required; if either write fails the session is cleared.
func (m *Manager) Establish(ctx context.Context, token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" || token.RefreshToken == "" {
		return errors.New("incomplete token pair")
	}

	if err := m.store.Set(ctx, credstore.KeyRefreshToken, token.RefreshToken); err != nil {
		m.rollback(ctx)
		return fmt.Errorf("storing refresh token: %w", err)
	}
	if err := m.store.Set(ctx, credstore.KeyAccessToken, token.AccessToken); err != nil {
		m.rollback(ctx)
		return fmt.Errorf("storing access token: %w", err)
	}
	return nil
}

// Clear ends the session by dropping both tokens.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// State reports StateAuthenticated only when both tokens are present.
func (m *Manager) State(ctx context.Context) (State, error) {
	for _, key := range []credstore.Key{credstore.KeyAccessToken, credstore.KeyRefreshToken} {
		_, err := m.store.Get(ctx, key)
		if errors.Is(err, credstore.ErrNotFound) {
			return StateGuest, nil
		}
		if err != nil {
			return StateGuest, fmt.Errorf("reading %s: %w", key, err)
		}
	}
	return StateAuthenticated, nil
}

func (m *Manager) rollback(ctx context.Context) {
	_ = m.store.Clear(context.WithoutCancel(ctx))
}
