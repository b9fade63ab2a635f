package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps both credentials in a single JSON document.
// Writes use temp file + rename for crash safety, so Clear and every Set are atomic.
type FileStore struct {
	filePath string

	// Serializes read-modify-write cycles within this process.
	mu sync.Mutex
}

// Compile-time check to ensure FileStore implements Store
var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore for the given path, creating parent directories
// with 0700 permissions if they don't exist.
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	return &FileStore{
		filePath: filePath,
	}, nil
}

// Get returns the value stored under key.
func (f *FileStore) Get(ctx context.Context, key Key) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return "", err
	}

	value := doc[key]
	if value == "" {
		return "", ErrNotFound
	}
	return value, nil
}

// Set stores value under key.
func (f *FileStore) Set(ctx context.Context, key Key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validKey(key) {
		return fmt.Errorf("unknown credential key %q", key)
	}
	if value == "" {
		return f.Delete(ctx, key)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	doc[key] = value

	return f.save(ctx, doc)
}

// Delete removes key from the document. The file itself is removed once it is empty.
func (f *FileStore) Delete(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := doc[key]; !ok {
		return nil
	}
	delete(doc, key)

	if len(doc) == 0 {
		return f.remove()
	}
	return f.save(ctx, doc)
}

// Clear removes the whole document in a single unlink.
func (f *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.remove()
}

// load reads the document. A missing file is an empty document; a file with
// permissions other than 0600 is rejected.
func (f *FileStore) load() (map[Key]string, error) {
	info, err := os.Stat(f.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return map[Key]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm() != 0600 {
		return nil, fmt.Errorf("insecure permissions on %s: %04o (expected 0600)", f.filePath, info.Mode().Perm())
	}

	data, err := os.ReadFile(f.filePath)
	if err != nil {
		return nil, err
	}

	doc := map[Key]string{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding credential file %s: %w", f.filePath, err)
	}
	return doc, nil
}

// save atomically replaces the document using temp file + rename.
func (f *FileStore) save(ctx context.Context, doc map[Key]string) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	// Create secure temp file in same directory for atomic rename
	dir := filepath.Dir(f.filePath)
	tempFile, err := os.CreateTemp(dir, "*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if err := tempFile.Chmod(0600); err != nil {
		return err
	}
	if _, err := tempFile.Write(data); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	return os.Rename(tempName, f.filePath)
}

func (f *FileStore) remove() error {
	if err := os.Remove(f.filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
