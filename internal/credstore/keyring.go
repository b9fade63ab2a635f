package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringStore keeps each credential in its own OS keyring item.
// Uses macOS Keychain, Windows Credential Manager, or Linux Secret Service.
type KeyringStore struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringStore implements Store
var _ Store = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore using the given service and user identifiers.
// Items are stored as "<user>/<key>" under service.
func NewKeyringStore(service, user string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringStore{
		service: service,
		user:    user,
	}, nil
}

// Get returns the credential from the system keyring.
func (k *KeyringStore) Get(ctx context.Context, key Key) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	value, err := keyring.Get(k.service, k.item(key))
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	if value == "" {
		return "", ErrNotFound
	}
	return value, nil
}

// Set persists the credential to the system keyring, overwriting any existing value.
func (k *KeyringStore) Set(ctx context.Context, key Key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validKey(key) {
		return fmt.Errorf("unknown credential key %q", key)
	}
	if value == "" {
		return k.Delete(ctx, key)
	}

	return keyring.Set(k.service, k.item(key), value)
}

// Delete removes the credential from the system keyring.
func (k *KeyringStore) Delete(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := keyring.Delete(k.service, k.item(key))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}

// Clear deletes the refresh token before the access token. If the second
// delete fails, only the short-lived access token survives and no session
// can be resurrected from it.
func (k *KeyringStore) Clear(ctx context.Context) error {
	if err := k.Delete(ctx, KeyRefreshToken); err != nil {
		return fmt.Errorf("deleting refresh token: %w", err)
	}
	if err := k.Delete(ctx, KeyAccessToken); err != nil {
		return fmt.Errorf("deleting access token: %w", err)
	}
	return nil
}

func (k *KeyringStore) item(key Key) string {
	return k.user + "/" + string(key)
}
