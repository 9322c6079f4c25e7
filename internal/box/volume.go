package box

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JoGir/qabel-core/internal/crypto"
	"github.com/JoGir/qabel-core/internal/index"
	"github.com/JoGir/qabel-core/internal/logging"
	"github.com/JoGir/qabel-core/internal/storage"
)

var (
	// ErrNotFound reports that a file, folder or index blob is absent, or
	// that the supplied key failed to authenticate it. The two cases are
	// deliberately indistinguishable: an attacker-supplied or stale blob
	// must look exactly like a missing one.
	ErrNotFound = errors.New("not found")

	// ErrNotImplemented is returned for external share navigation.
	ErrNotImplemented = errors.New("externals are not yet implemented")
)

// Volume is the entry point to one encrypted storage tree: a backend pair,
// the root symmetric key and this device's identifier.
type Volume struct {
	read     storage.ReadBackend
	write    storage.WriteBackend
	rootKey  []byte
	deviceID []byte
	prefix   string
}

// NewVolume creates a volume handle. rootKey is the 32-byte root secret;
// deviceID identifies this writer in version chains.
func NewVolume(read storage.ReadBackend, write storage.WriteBackend, rootKey, deviceID []byte, prefix string) *Volume {
	return &Volume{
		read:     read,
		write:    write,
		rootKey:  rootKey,
		deviceID: deviceID,
		prefix:   prefix,
	}
}

// RootRef returns the blob name of the root index. It is derived from the
// prefix and the root key digest so that independent devices converge on
// the same blob without coordination.
func (v *Volume) RootRef() string {
	md := sha256.New()
	md.Write([]byte("root index"))
	md.Write([]byte(v.prefix))
	md.Write(v.rootKey)
	sum := md.Sum(nil)
	id, err := uuid.FromBytes(sum[:16])
	if err != nil {
		// sum is always 32 bytes; FromBytes only fails on length
		panic(err)
	}
	return id.String()
}

// Root returns the root marker written into the top-level index.
func (v *Volume) Root() string {
	return "qabel://" + v.prefix
}

// CreateIndex publishes a fresh, empty root index for this volume,
// overwriting any existing one.
func (v *Volume) CreateIndex(ctx context.Context) error {
	dm, err := index.Create(v.deviceID, v.Root())
	if err != nil {
		return err
	}
	defer dm.Close()

	if err := v.uploadIndex(ctx, dm); err != nil {
		return err
	}
	logging.Info("created root index", zap.String("ref", v.RootRef()))
	return nil
}

// Navigate downloads and decrypts the root index and returns a navigation
// scoped to it. Close the navigation when done.
func (v *Volume) Navigate(ctx context.Context) (Navigation, error) {
	dm, err := v.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	return newIndexNavigation(v, dm), nil
}

func (v *Volume) loadIndex(ctx context.Context) (*index.DirectoryMetadata, error) {
	stream, err := v.read.Download(ctx, v.RootRef())
	if err != nil {
		return nil, fmt.Errorf("%w: root index", ErrNotFound)
	}
	defer stream.Close()

	ciphertext, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to read root index: %w", err)
	}
	plaintext, err := crypto.Decrypt(ciphertext, v.rootKey)
	if err != nil {
		return nil, fmt.Errorf("%w: root index", ErrNotFound)
	}
	return index.Open(plaintext, v.deviceID, v.RootRef())
}

func (v *Volume) uploadIndex(ctx context.Context, dm *index.DirectoryMetadata) error {
	blob, err := dm.Serialize()
	if err != nil {
		return err
	}
	ciphertext, err := crypto.Encrypt(blob, v.rootKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt root index: %w", err)
	}
	if _, err := v.write.Upload(ctx, v.RootRef(), bytes.NewReader(ciphertext)); err != nil {
		return err
	}
	return nil
}
