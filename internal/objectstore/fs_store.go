package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File and directory permissions for cached audio.
const (
	filePermissions = 0o600
	dirPermissions  = 0o750
)

// ErrInvalidKey is returned for keys that would escape the store root.
var ErrInvalidKey = errors.New("invalid object key")

// FSStore implements core.ObjectStore on the local filesystem, one file per
// key under a root directory. Writes go through a temp file and rename so a
// crashed process never leaves a truncated object behind.
type FSStore struct {
	root string
}

// NewFS creates the store root if needed and returns an FSStore.
func NewFS(root string) (*FSStore, error) {
	err := os.MkdirAll(root, dirPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create store root '%s': %w", root, err)
	}

	return &FSStore{root: root}, nil
}

// Root returns the store's base directory.
func (s *FSStore) Root() string {
	return s.root
}

func (s *FSStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, "/\\") || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	return filepath.Join(s.root, key), nil
}

// Download reads an object's bytes.
func (s *FSStore) Download(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, err)
	}

	return data, nil
}

// Upload writes an object atomically. Re-uploading an existing key is a
// no-op: content-addressed objects are immutable once written.
func (s *FSStore) Upload(_ context.Context, key string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	_, statErr := os.Stat(path)
	if statErr == nil {
		return nil
	}

	tmp, err := os.CreateTemp(s.root, "."+key+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for object '%s': %w", key, err)
	}

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()

	if writeErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())

		if writeErr != nil {
			return fmt.Errorf("failed to write object '%s': %w", key, writeErr)
		}

		return fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	chmodErr := os.Chmod(tmp.Name(), filePermissions)
	if chmodErr != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to set permissions on object '%s': %w", key, chmodErr)
	}

	renameErr := os.Rename(tmp.Name(), path)
	if renameErr != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to finalize object '%s': %w", key, renameErr)
	}

	return nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (s *FSStore) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	removeErr := os.Remove(path)
	if removeErr != nil && !os.IsNotExist(removeErr) {
		return fmt.Errorf("failed to delete object '%s': %w", key, removeErr)
	}

	return nil
}

// Exists reports whether an object file is present.
func (s *FSStore) Exists(_ context.Context, key string) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}

	_, statErr := os.Stat(path)
	if statErr == nil {
		return true, nil
	}

	if os.IsNotExist(statErr) {
		return false, nil
	}

	return false, fmt.Errorf("failed to stat object '%s': %w", key, statErr)
}
