package staging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FSStore stages blobs on a local volume shared by the API and workers.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &FSStore{root: root}, nil
}

// resolve confines path to the staging root; submitted paths are untrusted.
func (s *FSStore) resolve(path string) (string, error) {
	if strings.Contains(path, "..") || filepath.IsAbs(path) {
		return "", fmt.Errorf("staging path escapes root: %s", path)
	}
	return filepath.Join(s.root, filepath.Clean(path)), nil
}

func (s *FSStore) Upload(_ context.Context, path string, data []byte) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o640)
}

func (s *FSStore) Download(_ context.Context, path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

func (s *FSStore) Delete(_ context.Context, path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
