// Package storage persists chatdesk's state documents.
//
// State is kept as a handful of whole documents under stable keys (see the
// Key* constants). Every mutation rewrites the full document; there is no
// partial update and the last write wins. Two backends implement Store: a
// directory of JSON files and a single SQLite database.
package storage

import (
	"fmt"
	"path/filepath"
)

// Stable document keys.
const (
	KeyAuth      = "auth"
	KeyApp       = "app"
	KeyChat      = "chat"
	KeyProviders = "providers"
)

// Store is a key-value store of JSON-serializable documents.
type Store interface {
	// Load decodes the document stored under key into v. It reports false
	// (and leaves v untouched) when nothing has been stored yet.
	Load(key string, v any) (bool, error)

	// Save replaces the document stored under key.
	Save(key string, v any) error

	Close() error
}

// Open returns the Store for the named backend rooted at dataDir.
func Open(backend, dataDir string) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(filepath.Join(dataDir, "state"))
	case "sqlite":
		return NewSQLiteStore(filepath.Join(dataDir, "state.db"))
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", backend)
	}
}

// LoadOrDefault loads key into v, keeping v's current (default) contents
// when the document does not exist yet.
func LoadOrDefault[T any](s Store, key string, def T) (T, error) {
	v := def
	if _, err := s.Load(key, &v); err != nil {
		return def, err
	}
	return v, nil
}
