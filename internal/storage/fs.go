package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FSStore keeps CV blobs on the local filesystem. Media type is not stored
// here; callers persist it next to the key.
type FSStore struct {
	dir string
}

func NewFS(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) Put(_ context.Context, data []byte, _ string) (string, error) {
	key := uuid.NewString()
	if err := os.WriteFile(s.path(key), data, 0o600); err != nil {
		return "", fmt.Errorf("write blob %s: %w", key, err)
	}
	return key, nil
}

func (s *FSStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", key, err)
	}
	return data, nil
}

func (s *FSStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

// path guards against keys escaping the storage directory; keys are UUIDs,
// anything else is flattened to its base name.
func (s *FSStore) path(key string) string {
	return filepath.Join(s.dir, filepath.Base(strings.TrimSpace(key)))
}
