package uploads

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/plume-cms/plume/internal/shared"
)

// Store abstracts where uploaded files live. Names are flat; implementations
// must not interpret path separators.
type Store interface {
	Save(name string, r io.Reader) (string, error)
	Open(name string) (io.ReadCloser, error)
	Remove(name string) error
}

// DiskStore keeps uploads in a single directory on the local filesystem.
type DiskStore struct {
	root string
}

// NewDiskStore builds DiskStore instance, creating the root directory if needed.
func NewDiskStore(root string) (*DiskStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("uploads: root directory required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{root: root}, nil
}

// Save writes the stream under name and returns the stored name. The name
// is flattened to its base component so a crafted value cannot escape root.
func (s *DiskStore) Save(name string, r io.Reader) (string, error) {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("uploads: invalid name")
	}
	path := filepath.Join(s.root, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close upload: %w", err)
	}
	return name, nil
}

// Open returns the stored file for reading.
func (s *DiskStore) Open(name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, filepath.Base(name)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("open upload: %w", err)
	}
	return f, nil
}

// Remove deletes the stored file.
func (s *DiskStore) Remove(name string) error {
	err := os.Remove(filepath.Join(s.root, filepath.Base(name)))
	if err != nil {
		if os.IsNotExist(err) {
			return shared.ErrNotFound
		}
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}

var _ Store = (*DiskStore)(nil)
