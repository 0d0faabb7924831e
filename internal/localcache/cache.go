// Package localcache is a small persistent string-keyed store for values
// that must survive restarts: the cached preferences snapshot and the
// calendar access token.
//
// FileCache keeps every key in one JSON object on disk. Writes go through a
// temp file and a rename, so readers in other processes never observe a
// half-written file, and Watch reports keys changed by those processes.
package localcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Well-known keys.
const (
	KeyPreferences  = "notesync_prefs"
	KeyCalendarAuth = "gcal_access_token"
)

// Cache is a string-keyed persistent store.
type Cache interface {
	// Get returns the raw value for key and whether it was present.
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// GetJSON decodes the value for key into v. It reports false when the key
// is absent.
func GetJSON(c Cache, key string, v any) (bool, error) {
	data, ok, err := c.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(c Cache, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cached %s: %w", key, err)
	}
	return c.Set(key, data)
}

// FileCache stores all keys in a single JSON file.
//
// Every Get re-reads the file so values written by other processes are seen.
// Thread-safety: safe for concurrent use within a process.
type FileCache struct {
	path string
	mu   sync.Mutex
}

// OpenFile returns a cache backed by path, creating its directory.
func OpenFile(path string) (*FileCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileCache{path: path}, nil
}

// Path returns the backing file.
func (c *FileCache) Path() string {
	return c.path
}

// Get implements Cache.
func (c *FileCache) Get(key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load()
	if err != nil {
		return nil, false, err
	}
	v, ok := entries[key]
	return v, ok, nil
}

// Set implements Cache. Values must be valid JSON.
func (c *FileCache) Set(key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("cache %s: value is not valid JSON", key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load()
	if err != nil {
		return err
	}
	entries[key] = json.RawMessage(value)
	return c.save(entries)
}

// Delete implements Cache. Deleting an absent key is not an error.
func (c *FileCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load()
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return c.save(entries)
}

// Snapshot returns a copy of every entry.
func (c *FileCache) Snapshot() (map[string]json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

func (c *FileCache) load() (map[string]json.RawMessage, error) {
	entries := make(map[string]json.RawMessage)

	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode cache %s: %w", c.path, err)
	}
	return entries, nil
}

func (c *FileCache) save(entries map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	return writeFileAtomic(c.path, data, 0o600)
}

// Memory is an in-process Cache, used in tests and when no cache file is
// configured.
type Memory struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewMemory returns an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

// Get implements Cache.
func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set implements Cache.
func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = append([]byte(nil), value...)
	return nil
}

// Delete implements Cache.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
