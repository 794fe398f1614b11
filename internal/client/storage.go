package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/okian/ceoorcto/internal/domain/variant"
)

// Storage is the visitor's persisted key/value state.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryStorage keeps values for the life of the process.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string][]byte)}
}

// Get implements Storage.
func (m *MemoryStorage) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set implements Storage.
func (m *MemoryStorage) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

// Delete implements Storage.
func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// FileStorage persists values as one JSON object on disk. Every write
// replaces the file atomically.
type FileStorage struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

// OpenFileStorage loads path, creating an empty store when it does not exist.
func OpenFileStorage(path string) (*FileStorage, error) {
	const op = "client.OpenFileStorage"
	fs := &FileStorage{path: path, values: make(map[string]string)}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fs, nil
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &fs.values); err != nil {
			return nil, fmt.Errorf("%s: %s: %w", op, path, err)
		}
	}
	return fs, nil
}

// Get implements Storage.
func (f *FileStorage) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

// Set implements Storage.
func (f *FileStorage) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.values[key]
	f.values[key] = string(value)
	if err := f.save(); err != nil {
		if had {
			f.values[key] = prev
		} else {
			delete(f.values, key)
		}
		return err
	}
	return nil
}

// Delete implements Storage.
func (f *FileStorage) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; !ok {
		return nil
	}
	delete(f.values, key)
	return f.save()
}

func (f *FileStorage) save() error {
	const op = "client.FileStorage.save"
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".ceoorcto-*")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Flags exposes boolean keys of s to the variant resolver. Unparsable
// values read as false.
func Flags(s Storage) variant.FlagStore {
	return flagStore{s}
}

type flagStore struct {
	s Storage
}

func (f flagStore) Flag(ctx context.Context, key string) (bool, error) {
	v, ok, err := f.s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	b, _ := strconv.ParseBool(string(v))
	return b, nil
}

func (f flagStore) SetFlag(ctx context.Context, key string, v bool) error {
	return f.s.Set(ctx, key, []byte(strconv.FormatBool(v)))
}
