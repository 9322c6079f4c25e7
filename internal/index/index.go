package index

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// SpecVersion is the schema version written into every new index.
const SpecVersion = 0

// Bucket names
var (
	MetaBucket      = []byte("meta")      // root marker, last writer, spec version
	VersionBucket   = []byte("version")   // append-only version chain
	FilesBucket     = []byte("files")     // file entries, keyed by name
	FoldersBucket   = []byte("folders")   // folder entries, keyed by name
	ExternalsBucket = []byte("externals") // external share entries, keyed by name
)

// Meta keys
var (
	metaRoot          = []byte("root")
	metaLastChangedBy = []byte("last_change_by")
	metaSpecVersion   = []byte("spec_version")
)

var (
	ErrNameConflict = errors.New("name already taken by another entry kind")
	ErrNotFound     = errors.New("entry not found")
	ErrCorruptIndex = errors.New("corrupt directory index")
	ErrVersion      = errors.New("version chain update failed")
)

// Type identifies which entry kind owns a name within a directory.
type Type int

const (
	TypeNone Type = iota
	TypeFile
	TypeFolder
	TypeExternal
)

// File is a file entry: an encrypted content blob plus the key to open it.
type File struct {
	Block string `json:"block"`
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	MTime int64  `json:"mtime"`
	Key   []byte `json:"key"`
}

// Equal reports whether two file entries are interchangeable, which the
// conflict handler uses to detect that a remote entry already reflects a
// local change.
func (f *File) Equal(other *File) bool {
	if f == nil || other == nil {
		return f == other
	}
	return f.Block == other.Block &&
		f.Name == other.Name &&
		f.Size == other.Size &&
		f.MTime == other.MTime &&
		bytes.Equal(f.Key, other.Key)
}

// Folder is a subdirectory entry: the blob reference of the child index and
// the key to decrypt it. Together they are the capability for the subtree.
type Folder struct {
	Ref  string `json:"ref"`
	Name string `json:"name"`
	Key  []byte `json:"key"`
}

// External is a share entry owned by a foreign identity. Present in the
// schema for round-trip fidelity; no mutating operation reaches it yet.
type External struct {
	Owner []byte `json:"owner"`
	Name  string `json:"name"`
	Key   []byte `json:"key"`
	URL   string `json:"url"`
}

type versionEntry struct {
	Version []byte `json:"version"`
	Time    int64  `json:"time"`
}

// DirectoryMetadata is the versioned record store for one directory level.
// It lives in a temporary bbolt database file and serializes to a single
// opaque blob. Instances are not safe for concurrent use; the navigation
// engine that holds one is its only mutator.
type DirectoryMetadata struct {
	db       *bolt.DB
	path     string
	ref      string
	deviceID []byte
}

// Create builds a fresh, empty index with a random blob reference. root is
// the root marker; only the top-level index of a volume carries one, all
// others pass "".
func Create(deviceID []byte, root string) (*DirectoryMetadata, error) {
	tmp, err := os.CreateTemp("", "qabel-dm-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create index file: %w", err)
	}
	path := tmp.Name()
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to create index file: %w", err)
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	m := &DirectoryMetadata{
		db:       db,
		path:     path,
		ref:      uuid.New().String(),
		deviceID: deviceID,
	}
	if err := m.init(root); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// Open deserializes an index blob downloaded from the backend. ref is the
// blob name the caller fetched it under. A structurally invalid blob or a
// schema version this code does not understand yields ErrCorruptIndex.
func Open(blob, deviceID []byte, ref string) (*DirectoryMetadata, error) {
	tmp, err := os.CreateTemp("", "qabel-dm-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create index file: %w", err)
	}
	path := tmp.Name()
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write index file: %w", err)
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}

	m := &DirectoryMetadata{
		db:       db,
		path:     path,
		ref:      ref,
		deviceID: deviceID,
	}
	if err := m.validate(); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

func (m *DirectoryMetadata) init(root string) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{MetaBucket, VersionBucket, FilesBucket, FoldersBucket, ExternalsBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		meta := tx.Bucket(MetaBucket)
		if err := meta.Put(metaSpecVersion, []byte(fmt.Sprintf("%d", SpecVersion))); err != nil {
			return err
		}
		if err := meta.Put(metaLastChangedBy, []byte(hex.EncodeToString(m.deviceID))); err != nil {
			return err
		}
		// Only the top-level index of a volume carries a root marker.
		if root != "" {
			if err := meta.Put(metaRoot, []byte(root)); err != nil {
				return err
			}
		}

		return appendVersion(tx, initVersion(m.deviceID))
	})
}

func (m *DirectoryMetadata) validate() error {
	return m.db.View(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{MetaBucket, VersionBucket, FilesBucket, FoldersBucket, ExternalsBucket} {
			if tx.Bucket(bucket) == nil {
				return fmt.Errorf("%w: missing bucket %s", ErrCorruptIndex, bucket)
			}
		}
		raw := tx.Bucket(MetaBucket).Get(metaSpecVersion)
		if raw == nil {
			return fmt.Errorf("%w: no spec version", ErrCorruptIndex)
		}
		var version int
		if _, err := fmt.Sscanf(string(raw), "%d", &version); err != nil {
			return fmt.Errorf("%w: bad spec version %q", ErrCorruptIndex, raw)
		}
		if version != SpecVersion {
			return fmt.Errorf("%w: unsupported spec version %d", ErrCorruptIndex, version)
		}
		return nil
	})
}

// Ref returns the opaque blob name assigned to this index at creation.
func (m *DirectoryMetadata) Ref() string {
	return m.ref
}

// Serialize writes the index out as a single opaque blob.
func (m *DirectoryMetadata) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	err := m.db.View(func(tx *bolt.Tx) error {
		_, err := tx.WriteTo(&buf)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize index: %w", err)
	}
	return buf.Bytes(), nil
}

// Close releases the backing database and removes its temporary file.
func (m *DirectoryMetadata) Close() error {
	err := m.db.Close()
	if rmErr := os.Remove(m.path); err == nil {
		err = rmErr
	}
	return err
}

// Root returns the root marker of a top-level index.
func (m *DirectoryMetadata) Root() (string, error) {
	var root string
	err := m.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(MetaBucket).Get(metaRoot)
		if raw == nil {
			return errors.New("no root marker")
		}
		root = string(raw)
		return nil
	})
	return root, err
}

// SpecVersion returns the schema version recorded in the index.
func (m *DirectoryMetadata) SpecVersion() (int, error) {
	var version int
	err := m.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(MetaBucket).Get(metaSpecVersion)
		if raw == nil {
			return fmt.Errorf("%w: no spec version", ErrCorruptIndex)
		}
		_, err := fmt.Sscanf(string(raw), "%d", &version)
		return err
	})
	return version, err
}

// LastChangedBy returns the device id of the last writer.
func (m *DirectoryMetadata) LastChangedBy() ([]byte, error) {
	var deviceID []byte
	err := m.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(MetaBucket).Get(metaLastChangedBy)
		if raw == nil {
			return errors.New("no last writer recorded")
		}
		decoded, err := hex.DecodeString(string(raw))
		if err != nil {
			return fmt.Errorf("%w: bad last writer %q", ErrCorruptIndex, raw)
		}
		deviceID = decoded
		return nil
	})
	return deviceID, err
}

func initVersion(deviceID []byte) []byte {
	md := sha256.New()
	md.Write([]byte{0, 0})
	md.Write(deviceID)
	return md.Sum(nil)
}

func nextVersion(prev, deviceID []byte) []byte {
	md := sha256.New()
	md.Write([]byte{0, 1})
	md.Write(prev)
	md.Write(deviceID)
	return md.Sum(nil)
}

func appendVersion(tx *bolt.Tx, version []byte) error {
	bucket := tx.Bucket(VersionBucket)
	seq, err := bucket.NextSequence()
	if err != nil {
		return err
	}
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	value, err := json.Marshal(versionEntry{Version: version, Time: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	return bucket.Put(key, value)
}

// Version returns the latest hash in the version chain.
func (m *DirectoryMetadata) Version() ([]byte, error) {
	var version []byte
	err := m.db.View(func(tx *bolt.Tx) error {
		_, raw := tx.Bucket(VersionBucket).Cursor().Last()
		if raw == nil {
			return fmt.Errorf("%w: empty version chain", ErrVersion)
		}
		var entry versionEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptIndex, err)
		}
		version = entry.Version
		return nil
	})
	return version, err
}

// VersionCount returns the length of the version chain.
func (m *DirectoryMetadata) VersionCount() (int, error) {
	var count int
	err := m.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(VersionBucket).Stats().KeyN
		return nil
	})
	return count, err
}

// Advance appends a new version chain entry derived from the previous hash
// and this device's id, and records this device as the last writer.
func (m *DirectoryMetadata) Advance() error {
	prev, err := m.Version()
	if err != nil {
		return err
	}
	err = m.db.Update(func(tx *bolt.Tx) error {
		if err := appendVersion(tx, nextVersion(prev, m.deviceID)); err != nil {
			return err
		}
		return tx.Bucket(MetaBucket).Put(metaLastChangedBy, []byte(hex.EncodeToString(m.deviceID)))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVersion, err)
	}
	return nil
}

// TypeOf reports which entry kind owns a name, or TypeNone. Inserts use it
// to enforce name uniqueness across files, folders and externals.
func (m *DirectoryMetadata) TypeOf(name string) (Type, error) {
	result := TypeNone
	err := m.db.View(func(tx *bolt.Tx) error {
		switch {
		case tx.Bucket(FilesBucket).Get([]byte(name)) != nil:
			result = TypeFile
		case tx.Bucket(FoldersBucket).Get([]byte(name)) != nil:
			result = TypeFolder
		case tx.Bucket(ExternalsBucket).Get([]byte(name)) != nil:
			result = TypeExternal
		}
		return nil
	})
	return result, err
}

// InsertFile adds a file entry. A name held by a folder or external yields
// ErrNameConflict; re-inserting a file name overwrites the entry.
func (m *DirectoryMetadata) InsertFile(file *File) error {
	return m.insert(FilesBucket, TypeFile, file.Name, file)
}

// DeleteFile removes a file entry by name.
func (m *DirectoryMetadata) DeleteFile(name string) error {
	return m.delete(FilesBucket, name)
}

// File returns the file entry with the given name, or nil if absent.
func (m *DirectoryMetadata) File(name string) (*File, error) {
	var file *File
	err := m.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(FilesBucket).Get([]byte(name))
		if raw == nil {
			return nil
		}
		file = &File{}
		if err := json.Unmarshal(raw, file); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptIndex, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}

// ListFiles returns all file entries in stable (key) order.
func (m *DirectoryMetadata) ListFiles() ([]File, error) {
	var files []File
	err := m.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(FilesBucket).ForEach(func(_, raw []byte) error {
			var file File
			if err := json.Unmarshal(raw, &file); err != nil {
				return fmt.Errorf("%w: %v", ErrCorruptIndex, err)
			}
			files = append(files, file)
			return nil
		})
	})
	return files, err
}

// InsertFolder adds a folder entry, subject to the same name uniqueness
// rule as files.
func (m *DirectoryMetadata) InsertFolder(folder *Folder) error {
	return m.insert(FoldersBucket, TypeFolder, folder.Name, folder)
}

// DeleteFolder removes a folder entry by name.
func (m *DirectoryMetadata) DeleteFolder(name string) error {
	return m.delete(FoldersBucket, name)
}

// Folder returns the folder entry with the given name, or nil if absent.
func (m *DirectoryMetadata) Folder(name string) (*Folder, error) {
	var folder *Folder
	err := m.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(FoldersBucket).Get([]byte(name))
		if raw == nil {
			return nil
		}
		folder = &Folder{}
		if err := json.Unmarshal(raw, folder); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptIndex, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// ListFolders returns all folder entries in stable (key) order.
func (m *DirectoryMetadata) ListFolders() ([]Folder, error) {
	var folders []Folder
	err := m.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(FoldersBucket).ForEach(func(_, raw []byte) error {
			var folder Folder
			if err := json.Unmarshal(raw, &folder); err != nil {
				return fmt.Errorf("%w: %v", ErrCorruptIndex, err)
			}
			folders = append(folders, folder)
			return nil
		})
	})
	return folders, err
}

// InsertExternal adds an external share entry, subject to the same name
// uniqueness rule as files and folders.
func (m *DirectoryMetadata) InsertExternal(external *External) error {
	return m.insert(ExternalsBucket, TypeExternal, external.Name, external)
}

// DeleteExternal removes an external share entry by name.
func (m *DirectoryMetadata) DeleteExternal(name string) error {
	return m.delete(ExternalsBucket, name)
}

// ListExternals returns all external share entries in stable (key) order.
func (m *DirectoryMetadata) ListExternals() ([]External, error) {
	var externals []External
	err := m.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(ExternalsBucket).ForEach(func(_, raw []byte) error {
			var external External
			if err := json.Unmarshal(raw, &external); err != nil {
				return fmt.Errorf("%w: %v", ErrCorruptIndex, err)
			}
			externals = append(externals, external)
			return nil
		})
	})
	return externals, err
}

func (m *DirectoryMetadata) insert(bucket []byte, kind Type, name string, entry any) error {
	existing, err := m.TypeOf(name)
	if err != nil {
		return err
	}
	if existing != TypeNone && existing != kind {
		return fmt.Errorf("%w: %s", ErrNameConflict, name)
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry %s: %w", name, err)
	}
	err = m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(name), value)
	})
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", name, err)
	}
	return nil
}

func (m *DirectoryMetadata) delete(bucket []byte, name string) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get([]byte(name)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return b.Delete([]byte(name))
	})
}
