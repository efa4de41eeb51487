package filestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/corpusd/corpusd/internal/pkg/errors"
)

type localConfig struct {
	Root string `json:"root"`
}

type localStore struct {
	root string
}

func init() {
	Register("local", newLocalStore)
}

func newLocalStore(args interface{}) (Store, error) {
	c := &localConfig{}
	if err := decodeConfig(args, c); err != nil {
		return nil, err
	}
	if c.Root == "" {
		return nil, fmt.Errorf("local store: root is required")
	}
	if err := os.MkdirAll(c.Root, 0o755); err != nil {
		return nil, fmt.Errorf("local store: create root: %w", err)
	}
	return &localStore{root: c.Root}, nil
}

func (s *localStore) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid store key: %s", key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *localStore) Save(ctx context.Context, key string, r io.Reader) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("local store: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("local store: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("local store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("local store: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("local store: rename: %w", err)
	}
	return nil
}

func (s *localStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("open %s: %w", key, errors.ErrNotFound)
		}
		return nil, fmt.Errorf("local store: open: %w", err)
	}
	return f, nil
}
