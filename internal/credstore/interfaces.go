package credstore

import (
	"context"
	"errors"
)

// Key names a stored credential.
type Key string

const (
	KeyAccessToken  Key = "access_token"
	KeyRefreshToken Key = "refresh_token"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("credential not found")

// Store reads and writes session credentials.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key Key) (string, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key Key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key Key) error

	// Clear removes both tokens.
	Clear(ctx context.Context) error
}

func validKey(key Key) bool {
	return key == KeyAccessToken || key == KeyRefreshToken
}
