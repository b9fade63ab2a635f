package credstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps credentials in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[Key]string
}

// Compile-time check to ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[Key]string)}
}

func (m *MemoryStore) Get(ctx context.Context, key Key) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *MemoryStore) Set(ctx context.Context, key Key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validKey(key) {
		return fmt.Errorf("unknown credential key %q", key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if value == "" {
		delete(m.values, key)
		return nil
	}
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.values)
	return nil
}
