package kvstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// File persists each key as its own file under dir. The directory is created
// with 0o700 and values are written 0o600, matching local config-dir
// conventions. Keys are restricted to [A-Za-z0-9_-] so they map to safe
// file names.
type File struct {
	dir string
}

var _ Store = (*File)(nil)

// NewFile constructs a file-backed store rooted at dir.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("kvstore: empty dir")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &File{dir: dir}, nil
}

func validKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

func (s *File) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Get reads the value for key; a missing file is a miss, not an error.
func (s *File) Get(_ context.Context, key string) ([]byte, bool, error) {
	if !validKey(key) {
		return nil, false, errors.New("kvstore: invalid key " + strings.TrimSpace(key))
	}
	b, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Set writes value for key atomically (temp file + rename).
func (s *File) Set(_ context.Context, key string, value []byte) error {
	if !validKey(key) {
		return errors.New("kvstore: invalid key")
	}
	tmp, err := os.CreateTemp(s.dir, key+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(key))
}

// Delete removes the key's file; absent files are a no-op.
func (s *File) Delete(_ context.Context, key string) error {
	if !validKey(key) {
		return errors.New("kvstore: invalid key")
	}
	err := os.Remove(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
