package box

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JoGir/qabel-core/internal/crypto"
	"github.com/JoGir/qabel-core/internal/index"
	"github.com/JoGir/qabel-core/internal/logging"
	"github.com/JoGir/qabel-core/internal/metrics"
	"github.com/JoGir/qabel-core/internal/storage"
)

// blockPrefix namespaces file content blobs apart from index blobs.
const blockPrefix = "blocks/"

// Navigation operates on one directory level: listing and mutating its
// index, moving into child directories, and committing changes back to the
// backend. Instances are not safe for concurrent use.
type Navigation interface {
	// Navigate descends into a subfolder, returning a navigation scoped
	// to the child index. A missing blob and an invalid key both yield
	// ErrNotFound.
	Navigate(ctx context.Context, target *index.Folder) (Navigation, error)

	// NavigateExternal would descend into a foreign share; it returns
	// ErrNotImplemented.
	NavigateExternal(target *index.External) (Navigation, error)

	// Upload encrypts content under a fresh key and registers it in the
	// current index, overwriting any same-named file.
	Upload(ctx context.Context, name string, content io.Reader) (*index.File, error)

	// Download fetches and decrypts a file's content blob.
	Download(ctx context.Context, file *index.File) (io.ReadCloser, error)

	// CreateFolder creates an empty subdirectory and publishes its index.
	CreateFolder(ctx context.Context, name string) (*index.Folder, error)

	// DeleteFile removes a file entry and queues its blob for deletion.
	DeleteFile(file *index.File) error

	// DeleteFolder recursively deletes a subfolder's contents, commits
	// the emptied subtree, then removes the folder from this index.
	DeleteFolder(ctx context.Context, folder *index.Folder) error

	ListFiles() ([]index.File, error)
	ListFolders() ([]index.Folder, error)
	ListExternals() ([]index.External, error)

	// Commit publishes local changes, reconciling against any index a
	// concurrent writer published in the meantime.
	Commit(ctx context.Context) error

	// Close releases the in-memory index.
	Close() error
}

// refresher is the context-specific part of a navigation: the root
// navigation reads and writes the volume's root blob with the root key,
// a folder navigation uses the folder entry's reference and key.
type refresher interface {
	reload(ctx context.Context) (*index.DirectoryMetadata, error)
	uploadIndex(ctx context.Context) error
}

type fileUpdate struct {
	old     *index.File // entry replaced by the upload, nil for a fresh name
	updated *index.File
}

// navigation carries the state shared by both navigation contexts.
type navigation struct {
	dm       *index.DirectoryMetadata
	deviceID []byte
	read     storage.ReadBackend
	write    storage.WriteBackend
	refresh  refresher

	deleteQueue  map[string]struct{}
	updatedFiles []fileUpdate
}

func newNavigation(dm *index.DirectoryMetadata, deviceID []byte, read storage.ReadBackend, write storage.WriteBackend) navigation {
	return navigation{
		dm:          dm,
		deviceID:    deviceID,
		read:        read,
		write:       write,
		deleteQueue: make(map[string]struct{}),
	}
}

func (n *navigation) Navigate(ctx context.Context, target *index.Folder) (Navigation, error) {
	stream, err := n.read.Download(ctx, target.Ref)
	if err != nil {
		return nil, fmt.Errorf("%w: folder %s", ErrNotFound, target.Name)
	}
	defer stream.Close()

	ciphertext, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", target.Ref, err)
	}
	plaintext, err := crypto.Decrypt(ciphertext, target.Key)
	if err != nil {
		// wrong key and damaged blob are indistinguishable on purpose
		return nil, fmt.Errorf("%w: folder %s", ErrNotFound, target.Name)
	}
	dm, err := index.Open(plaintext, n.deviceID, target.Ref)
	if err != nil {
		return nil, err
	}
	return newFolderNavigation(dm, target.Key, n.deviceID, n.read, n.write), nil
}

func (n *navigation) NavigateExternal(target *index.External) (Navigation, error) {
	return nil, ErrNotImplemented
}

func (n *navigation) Upload(ctx context.Context, name string, content io.Reader) (*index.File, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	block := uuid.New().String()

	plaintext, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload content: %w", err)
	}
	ciphertext, err := crypto.Encrypt(plaintext, key)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt %s: %w", name, err)
	}
	mtime, err := n.write.Upload(ctx, blockPrefix+block, bytes.NewReader(ciphertext))
	if err != nil {
		return nil, err
	}

	file := &index.File{
		Block: block,
		Name:  name,
		Size:  int64(len(plaintext)),
		MTime: mtime.UnixMilli(),
		Key:   key,
	}

	// Overwrite = queue the old block for deletion, replace the entry.
	// Deletion happens at commit time so a failed commit loses nothing.
	old, err := n.dm.File(name)
	if err != nil {
		return nil, err
	}
	if old != nil {
		n.deleteQueue[blockPrefix+old.Block] = struct{}{}
		if err := n.dm.DeleteFile(old.Name); err != nil {
			return nil, err
		}
	}
	if err := n.dm.InsertFile(file); err != nil {
		return nil, err
	}
	// Recorded only after the insert succeeds, so a rejected upload never
	// gets replayed during commit reconciliation.
	n.updatedFiles = append(n.updatedFiles, fileUpdate{old: old, updated: file})
	return file, nil
}

func (n *navigation) Download(ctx context.Context, file *index.File) (io.ReadCloser, error) {
	stream, err := n.read.Download(ctx, blockPrefix+file.Block)
	if err != nil {
		return nil, fmt.Errorf("%w: file %s", ErrNotFound, file.Name)
	}
	defer stream.Close()

	ciphertext, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to read block %s: %w", file.Block, err)
	}
	plaintext, err := crypto.Decrypt(ciphertext, file.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt %s: %w", file.Name, err)
	}
	return io.NopCloser(bytes.NewReader(plaintext)), nil
}

func (n *navigation) CreateFolder(ctx context.Context, name string) (*index.Folder, error) {
	child, err := index.Create(n.deviceID, "")
	if err != nil {
		return nil, err
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		child.Close()
		return nil, err
	}

	folder := &index.Folder{Ref: child.Ref(), Name: name, Key: key}
	if err := n.dm.InsertFolder(folder); err != nil {
		child.Close()
		return nil, err
	}

	childNav := newFolderNavigation(child, key, n.deviceID, n.read, n.write)
	defer childNav.Close()
	if err := childNav.Commit(ctx); err != nil {
		return nil, err
	}
	return folder, nil
}

func (n *navigation) DeleteFile(file *index.File) error {
	if err := n.dm.DeleteFile(file.Name); err != nil {
		return err
	}
	n.deleteQueue[blockPrefix+file.Block] = struct{}{}
	return nil
}

func (n *navigation) DeleteFolder(ctx context.Context, folder *index.Folder) error {
	folderNav, err := n.Navigate(ctx, folder)
	if err != nil {
		return err
	}
	defer folderNav.Close()

	files, err := folderNav.ListFiles()
	if err != nil {
		return err
	}
	for i := range files {
		logging.Debug("deleting file", zap.String("name", files[i].Name))
		if err := folderNav.DeleteFile(&files[i]); err != nil {
			return err
		}
	}
	subfolders, err := folderNav.ListFolders()
	if err != nil {
		return err
	}
	for i := range subfolders {
		logging.Debug("deleting folder", zap.String("name", subfolders[i].Name))
		if err := folderNav.DeleteFolder(ctx, &subfolders[i]); err != nil {
			return err
		}
	}
	if err := folderNav.Commit(ctx); err != nil {
		return err
	}

	if err := n.dm.DeleteFolder(folder.Name); err != nil {
		return err
	}
	n.deleteQueue[folder.Ref] = struct{}{}
	return nil
}

func (n *navigation) ListFiles() ([]index.File, error) {
	return n.dm.ListFiles()
}

func (n *navigation) ListFolders() ([]index.Folder, error) {
	return n.dm.ListFolders()
}

func (n *navigation) ListExternals() ([]index.External, error) {
	return n.dm.ListExternals()
}

// Commit publishes the current index. Optimistic concurrency: the version
// chain is advanced and the remote index re-read; if someone else published
// since our last read, their index becomes the new base and every pending
// local update is replayed against it before uploading. Queued blob
// deletions are flushed only after a successful upload.
func (n *navigation) Commit(ctx context.Context) error {
	baseVersion, err := n.dm.Version()
	if err != nil {
		return err
	}
	if err := n.dm.Advance(); err != nil {
		return err
	}
	version, err := n.dm.Version()
	if err != nil {
		return err
	}
	logging.Info("committing index",
		zap.String("version", hex.EncodeToString(version)),
		zap.String("device", hex.EncodeToString(n.deviceID)))

	remote, err := n.refresh.reload(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		// no remote index yet, nothing to reconcile against
		logging.Info("no remote index to reload")
	}

	if remote != nil {
		remoteVersion, err := remote.Version()
		if err != nil {
			remote.Close()
			return err
		}
		if !bytes.Equal(baseVersion, remoteVersion) {
			// A concurrent writer published since we last read. The
			// remote listing wins; our updates are replayed into it.
			logging.Info("conflicting version",
				zap.String("remote", hex.EncodeToString(remoteVersion)))
			metrics.RecordCommitConflict()

			local := n.dm
			n.dm = remote
			for _, update := range n.updatedFiles {
				if err := n.resolveConflict(update.old, update.updated); err != nil {
					n.dm = local
					remote.Close()
					return err
				}
			}
			if err := n.dm.Advance(); err != nil {
				n.dm = local
				remote.Close()
				return err
			}
			local.Close()
		} else {
			remote.Close()
		}
	}

	if err := n.refresh.uploadIndex(ctx); err != nil {
		return err
	}

	// Best-effort flush: a failed delete leaks an unreachable blob but
	// cannot affect reads, so the queue is cleared regardless.
	for ref := range n.deleteQueue {
		if err := n.write.Delete(ctx, ref); err != nil {
			logging.Warn("failed to delete stale blob",
				zap.String("ref", ref), zap.Error(err))
		}
	}
	n.deleteQueue = make(map[string]struct{})
	n.updatedFiles = nil
	return nil
}

// resolveConflict replays one local file update against the remote index
// that won the publish slot.
func (n *navigation) resolveConflict(old, local *index.File) error {
	remote, err := n.dm.File(local.Name)
	if err != nil {
		return err
	}

	if remote == nil {
		// name is free in the remote index (or held by a folder or
		// external, which surfaces as a name conflict below)
		err := n.dm.InsertFile(local)
		if errors.Is(err, index.ErrNameConflict) {
			renamed := *local
			renamed.Name = conflictName(local)
			return n.resolveConflict(old, &renamed)
		}
		return err
	}

	if remote.Equal(old) {
		// nobody else touched this name since our last read, the
		// remote value already reflects convergence
		logging.Debug("no conflict for file", zap.String("name", local.Name))
		return nil
	}

	// True conflict: someone else changed this name. Their entry wins
	// the name, ours moves to a conflict suffix.
	logging.Info("inserting conflict marked file", zap.String("name", local.Name))
	renamed := *local
	renamed.Name = conflictName(local)
	if old != nil {
		if err := n.dm.DeleteFile(old.Name); err != nil {
			return err
		}
	}
	existing, err := n.dm.File(renamed.Name)
	if err != nil {
		return err
	}
	if existing == nil {
		err := n.dm.InsertFile(&renamed)
		if errors.Is(err, index.ErrNameConflict) {
			// renamed name is held by a folder or external, rename again
			return n.resolveConflict(nil, &renamed)
		}
		return err
	}
	return nil
}

func conflictName(file *index.File) string {
	return file.Name + "_conflict_" + strconv.FormatInt(file.MTime, 10)
}

func (n *navigation) Close() error {
	return n.dm.Close()
}

// indexNavigation is the navigation for the volume's top-level directory.
// Its index blob lives under the volume's root reference, encrypted with
// the root key.
type indexNavigation struct {
	navigation
	volume *Volume
}

func newIndexNavigation(v *Volume, dm *index.DirectoryMetadata) *indexNavigation {
	nav := &indexNavigation{
		navigation: newNavigation(dm, v.deviceID, v.read, v.write),
		volume:     v,
	}
	nav.refresh = nav
	return nav
}

func (n *indexNavigation) reload(ctx context.Context) (*index.DirectoryMetadata, error) {
	return n.volume.loadIndex(ctx)
}

func (n *indexNavigation) uploadIndex(ctx context.Context) error {
	return n.volume.uploadIndex(ctx, n.dm)
}

// folderNavigation is the navigation for any non-root directory. Its index
// blob lives under the folder entry's reference, encrypted with the folder
// entry's key.
type folderNavigation struct {
	navigation
	key []byte
}

func newFolderNavigation(dm *index.DirectoryMetadata, key, deviceID []byte, read storage.ReadBackend, write storage.WriteBackend) *folderNavigation {
	nav := &folderNavigation{
		navigation: newNavigation(dm, deviceID, read, write),
		key:        key,
	}
	nav.refresh = nav
	return nav
}

func (n *folderNavigation) reload(ctx context.Context) (*index.DirectoryMetadata, error) {
	stream, err := n.read.Download(ctx, n.dm.Ref())
	if err != nil {
		return nil, fmt.Errorf("%w: index %s", ErrNotFound, n.dm.Ref())
	}
	defer stream.Close()

	ciphertext, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", n.dm.Ref(), err)
	}
	plaintext, err := crypto.Decrypt(ciphertext, n.key)
	if err != nil {
		return nil, fmt.Errorf("%w: index %s", ErrNotFound, n.dm.Ref())
	}
	return index.Open(plaintext, n.deviceID, n.dm.Ref())
}

func (n *folderNavigation) uploadIndex(ctx context.Context) error {
	blob, err := n.dm.Serialize()
	if err != nil {
		return err
	}
	ciphertext, err := crypto.Encrypt(blob, n.key)
	if err != nil {
		return fmt.Errorf("failed to encrypt index %s: %w", n.dm.Ref(), err)
	}
	if _, err := n.write.Upload(ctx, n.dm.Ref(), bytes.NewReader(ciphertext)); err != nil {
		return err
	}
	return nil
}
