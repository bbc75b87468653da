package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps each document in <dir>/<key>.json.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the state directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	// 0700 - documents contain conversation history and API keys
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileStore) Load(key string, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s document: %w", key, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s document: %w", key, err)
	}
	return true, nil
}

// Save writes to a temp file and renames it over the target so a crash never
// leaves a half-written document.
func (s *FileStore) Save(key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s document: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s document: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s document: %w", key, err)
	}

	if err := os.Rename(tmpName, s.path(key)); err != nil {
		return fmt.Errorf("failed to replace %s document: %w", key, err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
