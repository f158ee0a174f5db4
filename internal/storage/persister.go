// Package storage persists the record sequence under a single named key, the
// way the browser's local store did, on one of several backends.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Persister reads and writes raw values by key.
type Persister interface {
	// Load returns the value stored under key; ok is false when absent.
	Load(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Save replaces the value stored under key.
	Save(ctx context.Context, key string, value []byte) error
	Close() error
}

var (
	_ Persister = (*MemoryPersister)(nil)
	_ Persister = (*FilePersister)(nil)
	_ Persister = (*SQLiteRepository)(nil)
)

// MemoryPersister keeps values in process memory only.
type MemoryPersister struct {
	mu     sync.Mutex
	values map[string][]byte
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{values: make(map[string][]byte)}
}

func (m *MemoryPersister) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryPersister) Save(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryPersister) Close() error { return nil }

// FilePersister stores each key as <dir>/<key>.json.
type FilePersister struct {
	mu  sync.Mutex
	dir string
}

func NewFilePersister(dir string) (*FilePersister, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &FilePersister{dir: dir}, nil
}

func (f *FilePersister) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

func (f *FilePersister) Load(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return b, true, nil
}

// Save writes to a temporary file and renames it over the previous value.
func (f *FilePersister) Save(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tmp, err := os.CreateTemp(f.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

func (f *FilePersister) Close() error { return nil }
