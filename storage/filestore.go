package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/emedia-lab/hermes/errors"
)

// LocalFileStore is a Store backed by the local filesystem rooted at
// rootDir. Container uses it to persist whole-object blobs (the metadata
// group); per-stream datasets bypass Store for direct incremental
// appends, since Store's Put/Get/List/Delete key-value contract has no
// append operation (spec.md §4.3's metadata group is written once, at RUN
// entry, so the key-value model fits it but not a continuously growing
// dataset).
type LocalFileStore struct {
	rootDir string
}

// NewLocalFileStore returns a Store rooted at rootDir, creating it if
// necessary.
func NewLocalFileStore(rootDir string) (*LocalFileStore, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, errors.WrapFatal(err, "storage", "NewLocalFileStore", "create root directory")
	}
	return &LocalFileStore{rootDir: rootDir}, nil
}

func (s *LocalFileStore) path(key string) string {
	return filepath.Join(s.rootDir, filepath.FromSlash(key))
}

// Put stores data at key, overwriting any existing value (mutable store).
func (s *LocalFileStore) Put(_ context.Context, key string, data []byte) error {
	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WrapFatal(err, "storage", "LocalFileStore.Put", "create parent directory")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WrapFatal(err, "storage", "LocalFileStore.Put", "write "+key)
	}
	return nil
}

// Get retrieves the value stored at key.
func (s *LocalFileStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, errors.WrapTransient(err, "storage", "LocalFileStore.Get", "read "+key)
	}
	return data, nil
}

// List returns every key under rootDir matching prefix, lexicographically
// sorted.
func (s *LocalFileStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.Walk(s.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(s.rootDir, path)
		if relErr != nil {
			return relErr
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "storage", "LocalFileStore.List", "walk")
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes the value at key, if present. Idempotent.
func (s *LocalFileStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return errors.WrapTransient(err, "storage", "LocalFileStore.Delete", "remove "+key)
	}
	return nil
}
