package security

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrNameEscapes  = errors.New("blob name escapes backend root")
	ErrAbsoluteName = errors.New("absolute blob names are not allowed")
	ErrEmptyName    = errors.New("empty blob name not allowed")
)

// BlobRoot confines all blob file operations to a single backend
// directory using os.Root. Blob names are slash-separated and
// validated before every operation, so a name containing .. or an
// absolute path can never reach the filesystem outside the root.
type BlobRoot struct {
	root *os.Root
	dir  string
}

// OpenBlobRoot opens the backend directory at dir, creating it if
// necessary, and returns a BlobRoot confined to it.
func OpenBlobRoot(dir string) (*BlobRoot, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve backend root: %w", err)
	}
	if err := os.MkdirAll(absDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create backend root: %w", err)
	}
	root, err := os.OpenRoot(absDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open backend root: %w", err)
	}
	return &BlobRoot{root: root, dir: absDir}, nil
}

// Close releases the root directory handle.
func (b *BlobRoot) Close() error {
	if b.root != nil {
		return b.root.Close()
	}
	return nil
}

// validate normalizes a slash-separated blob name and rejects names
// that are empty, absolute, or escape the root.
func (b *BlobRoot) validate(name string) (string, error) {
	if name == "" {
		return "", ErrEmptyName
	}
	platform := filepath.FromSlash(name)
	if !filepath.IsLocal(platform) {
		if filepath.IsAbs(platform) {
			return "", fmt.Errorf("%w: %s", ErrAbsoluteName, name)
		}
		return "", fmt.Errorf("%w: %s", ErrNameEscapes, name)
	}
	clean := filepath.Clean(platform)
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("%w: %s", ErrNameEscapes, name)
	}
	return clean, nil
}

// Open opens the blob stored under name for reading.
func (b *BlobRoot) Open(name string) (*os.File, error) {
	clean, err := b.validate(name)
	if err != nil {
		return nil, err
	}
	return b.root.Open(clean)
}

// Create creates or truncates the blob under name, creating any
// missing parent directories inside the root.
func (b *BlobRoot) Create(name string) (*os.File, error) {
	clean, err := b.validate(name)
	if err != nil {
		return nil, err
	}
	if err := b.mkdirAll(filepath.Dir(clean)); err != nil {
		return nil, err
	}
	return b.root.Create(clean)
}

// Remove deletes the blob under name.
func (b *BlobRoot) Remove(name string) error {
	clean, err := b.validate(name)
	if err != nil {
		return err
	}
	return b.root.Remove(clean)
}

// Stat returns file information for the blob under name.
func (b *BlobRoot) Stat(name string) (os.FileInfo, error) {
	clean, err := b.validate(name)
	if err != nil {
		return nil, err
	}
	return b.root.Stat(clean)
}

// mkdirAll creates dir and its parents inside the root, one segment
// at a time, tolerating directories that already exist.
func (b *BlobRoot) mkdirAll(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	var built string
	for _, part := range strings.Split(path.Clean(filepath.ToSlash(dir)), "/") {
		if built == "" {
			built = part
		} else {
			built = built + "/" + part
		}
		err := b.root.Mkdir(filepath.FromSlash(built), 0700)
		if err != nil && !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("failed to create %s: %w", built, err)
		}
	}
	return nil
}
