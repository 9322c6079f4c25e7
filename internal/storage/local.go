package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"go.uber.org/zap"

	"github.com/JoGir/qabel-core/internal/logging"
	"github.com/JoGir/qabel-core/internal/metrics"
	"github.com/JoGir/qabel-core/internal/security"
)

// Local is a directory-rooted backend for tests and offline volumes.
// All blob operations are confined to the root directory.
type Local struct {
	root *security.BlobRoot
}

// NewLocal creates a local backend rooted at the given directory.
func NewLocal(root string) (*Local, error) {
	blobRoot, err := security.OpenBlobRoot(root)
	if err != nil {
		return nil, err
	}
	return &Local{root: blobRoot}, nil
}

// Close releases the backend root handle.
func (l *Local) Close() error {
	return l.root.Close()
}

// Download opens the blob stored under name.
func (l *Local) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	start := time.Now()
	file, err := l.root.Open(name)
	metrics.RecordBackendOperation("local", "download", time.Since(start), err == nil)
	if err != nil {
		logging.Debug("local download failed", zap.String("name", name), zap.Error(err))
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return file, nil
}

// Upload writes the blob under name, overwriting any previous content.
func (l *Local) Upload(ctx context.Context, name string, content io.Reader) (time.Time, error) {
	start := time.Now()
	mtime, err := l.upload(name, content)
	metrics.RecordBackendOperation("local", "upload", time.Since(start), err == nil)
	return mtime, err
}

func (l *Local) upload(name string, content io.Reader) (time.Time, error) {
	file, err := l.root.Create(name)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to upload %s: %w", name, err)
	}
	if _, err := io.Copy(file, content); err != nil {
		file.Close()
		return time.Time{}, fmt.Errorf("failed to upload %s: %w", name, err)
	}
	if err := file.Close(); err != nil {
		return time.Time{}, fmt.Errorf("failed to upload %s: %w", name, err)
	}
	info, err := l.root.Stat(name)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return info.ModTime(), nil
}

// Delete removes the blob under name. A missing blob is ignored, matching
// the S3 delete semantics.
func (l *Local) Delete(ctx context.Context, name string) error {
	start := time.Now()
	err := l.root.Remove(name)
	if errors.Is(err, fs.ErrNotExist) {
		err = nil
	}
	metrics.RecordBackendOperation("local", "delete", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}
