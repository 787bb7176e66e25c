package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// DiskStore keeps blobs under a base directory on local disk. It exists
// so the service runs without object-store credentials; S3 is the
// deployed backend.
type DiskStore struct {
	base string
}

// NewDiskStore creates the base directory if needed.
func NewDiskStore(base string) (*DiskStore, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{base: base}, nil
}

// Store writes the blob under a random name and returns its opaque path.
func (s *DiskStore) Store(ctx context.Context, data []byte, contentType string) (string, error) {
	name := uuid.NewString() + extensionFor(contentType)
	if err := os.WriteFile(filepath.Join(s.base, name), data, 0o644); err != nil {
		return "", err
	}
	return name, nil
}

// Delete removes the blob; a missing path is not an error.
func (s *DiskStore) Delete(ctx context.Context, path string) error {
	err := os.Remove(filepath.Join(s.base, path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Exists reports whether the blob is present.
func (s *DiskStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.base, path))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
