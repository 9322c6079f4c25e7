package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound reports that a named blob is absent or inaccessible.
var ErrNotFound = errors.New("blob not found")

// ReadBackend downloads named opaque blobs. Content is never interpreted;
// encryption and naming are the caller's business.
type ReadBackend interface {
	// Download fetches the blob stored under name. It fails with
	// ErrNotFound if no such blob exists.
	Download(ctx context.Context, name string) (io.ReadCloser, error)
}

// WriteBackend uploads and deletes named opaque blobs.
type WriteBackend interface {
	// Upload stores content under name, overwriting any existing blob,
	// and returns the resulting modification time.
	Upload(ctx context.Context, name string, content io.Reader) (time.Time, error)

	// Delete removes the blob stored under name. Deleting an absent
	// name is not an error.
	Delete(ctx context.Context, name string) error
}
