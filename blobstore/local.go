package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore implements Driver using the local file system.
type LocalStore struct {
	root string
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) resolve(name string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(name))
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("blobstore: path %q escapes root", name)
	}
	return p, nil
}

// Open opens a file for reading.
func (s *LocalStore) Open(_ context.Context, name string) (Handle, error) {
	p, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Stat returns the file size and modification time.
func (s *LocalStore) Stat(_ context.Context, name string) (Metadata, error) {
	p, err := s.resolve(name)
	if err != nil {
		return Metadata{}, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return Metadata{}, err
	}
	if fi.IsDir() {
		return Metadata{}, fmt.Errorf("blobstore: %q is a directory", name)
	}
	return Metadata{Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// Close closes a file returned by Open.
func (s *LocalStore) Close(_ context.Context, h Handle) error {
	f, ok := h.(*os.File)
	if !ok {
		return fmt.Errorf("blobstore: unexpected handle type %T", h)
	}
	return f.Close()
}

// ReadAt reads len(p) bytes at off.
func (s *LocalStore) ReadAt(_ context.Context, h Handle, p []byte, off int64) (int, error) {
	f, ok := h.(*os.File)
	if !ok {
		return 0, fmt.Errorf("blobstore: unexpected handle type %T", h)
	}
	n, err := f.ReadAt(p, off)
	if n == len(p) && errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}
