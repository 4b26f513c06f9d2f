// Package store provides the client's durable key-value storage. Values
// survive process restarts; there is no cross-process coordination.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists one value per key as a file under a root directory.
// Writes go through a temp file and rename so a crash never leaves a
// half-written value behind.
type Store struct {
	rootDir string
}

// New creates a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store: data directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("store: creating data directory: %w", err)
	}
	return &Store{rootDir: dir}, nil
}

// RootDir returns the directory backing the store.
func (s *Store) RootDir() string {
	return s.rootDir
}

func (s *Store) pathFor(key string) string {
	return filepath.Join(s.rootDir, key+".json")
}

// Get returns the value for key. The second return is false when the key
// has never been written.
func (s *Store) Get(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: reading %q: %w", key, err)
	}
	return data, true, nil
}

// Put writes the value for key atomically.
func (s *Store) Put(key string, value []byte) error {
	target := s.pathFor(key)
	tmp, err := os.CreateTemp(s.rootDir, "."+key+"-*")
	if err != nil {
		return fmt.Errorf("store: creating temp file for %q: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: writing %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: closing temp file for %q: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: committing %q: %w", key, err)
	}
	return nil
}

// Delete removes the value for key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	if err := os.Remove(s.pathFor(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: deleting %q: %w", key, err)
	}
	return nil
}

// GetString is a convenience for free-text values stored without JSON
// framing.
func (s *Store) GetString(key string) (string, error) {
	data, ok, err := s.Get(key)
	if err != nil || !ok {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// PutString stores a free-text value.
func (s *Store) PutString(key, value string) error {
	return s.Put(key, []byte(value))
}

// DefaultDataDir returns the per-user data directory for the client.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".quelmap"
	}
	return filepath.Join(home, ".quelmap")
}
