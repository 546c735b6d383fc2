// Package storage keeps uploaded ticket files on local disk.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrBadName = errors.New("invalid stored file name")

type FileStore struct {
	Dir string
}

// NewFileStore creates dir (owner-only) if it does not exist.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &FileStore{Dir: dir}, nil
}

// Save writes r under a fresh uuid name, keeping the extension of original.
// The returned name is what Open expects.
func (s *FileStore) Save(r io.Reader, original string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(original)))
	if len(ext) > 8 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	name := uuid.NewString() + ext

	f, err := os.OpenFile(filepath.Join(s.Dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return name, nil
}

func (s *FileStore) Open(name string) (*os.File, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, ErrBadName
	}
	return os.Open(filepath.Join(s.Dir, name))
}

func (s *FileStore) Remove(name string) error {
	if name == "" || name != filepath.Base(name) {
		return ErrBadName
	}
	return os.Remove(filepath.Join(s.Dir, name))
}
