package index

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"testing"
)

func newTestIndex(t *testing.T, deviceID []byte, root string) *DirectoryMetadata {
	t.Helper()
	m, err := Create(deviceID, root)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestCreateInitialState(t *testing.T) {
	deviceID := []byte{1, 2, 3, 4}
	m := newTestIndex(t, deviceID, "qabel://test/prefix")

	root, err := m.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if root != "qabel://test/prefix" {
		t.Errorf("root = %q, want %q", root, "qabel://test/prefix")
	}

	version, err := m.SpecVersion()
	if err != nil {
		t.Fatalf("SpecVersion: %v", err)
	}
	if version != SpecVersion {
		t.Errorf("spec version = %d, want %d", version, SpecVersion)
	}

	lastChanged, err := m.LastChangedBy()
	if err != nil {
		t.Fatalf("LastChangedBy: %v", err)
	}
	if !bytes.Equal(lastChanged, deviceID) {
		t.Errorf("last writer = %x, want %x", lastChanged, deviceID)
	}

	if m.Ref() == "" {
		t.Error("new index has no blob reference")
	}

	files, err := m.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("new index lists %d files, want 0", len(files))
	}
}

func TestInitialVersionDeterministic(t *testing.T) {
	deviceID := []byte{0xAA, 0xBB}
	m := newTestIndex(t, deviceID, "")

	version, err := m.Version()
	if err != nil {
		t.Fatalf("Version: %v", err)
	}

	md := sha256.New()
	md.Write([]byte{0, 0})
	md.Write(deviceID)
	want := md.Sum(nil)

	if !bytes.Equal(version, want) {
		t.Errorf("initial version = %x, want %x", version, want)
	}
}

func TestAdvanceChainsVersions(t *testing.T) {
	deviceID := []byte{7}
	m := newTestIndex(t, deviceID, "")

	prev, err := m.Version()
	if err != nil {
		t.Fatalf("Version: %v", err)
	}

	// Replaying the chain rule must reproduce each hash.
	for i := 0; i < 5; i++ {
		if err := m.Advance(); err != nil {
			t.Fatalf("Advance %d: %v", i, err)
		}

		md := sha256.New()
		md.Write([]byte{0, 1})
		md.Write(prev)
		md.Write(deviceID)
		want := md.Sum(nil)

		got, err := m.Version()
		if err != nil {
			t.Fatalf("Version after advance %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("version %d = %x, want %x", i+1, got, want)
		}
		prev = got
	}

	count, err := m.VersionCount()
	if err != nil {
		t.Fatalf("VersionCount: %v", err)
	}
	if count != 6 {
		t.Errorf("version chain length = %d, want 6", count)
	}
}

func TestInsertAndListEntries(t *testing.T) {
	m := newTestIndex(t, []byte{1}, "")

	file := &File{Block: "block-a", Name: "report.pdf", Size: 1024, MTime: 1700000000, Key: []byte("k1")}
	if err := m.InsertFile(file); err != nil {
		t.Fatalf("InsertFile: %v", err)
	}
	folder := &Folder{Ref: "ref-b", Name: "photos", Key: []byte("k2")}
	if err := m.InsertFolder(folder); err != nil {
		t.Fatalf("InsertFolder: %v", err)
	}
	external := &External{Owner: []byte("pubkey"), Name: "shared", Key: []byte("k3"), URL: "https://example.org/blocks"}
	if err := m.InsertExternal(external); err != nil {
		t.Fatalf("InsertExternal: %v", err)
	}

	files, err := m.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 1 || !files[0].Equal(file) {
		t.Errorf("ListFiles = %+v, want just %+v", files, file)
	}

	folders, err := m.ListFolders()
	if err != nil {
		t.Fatalf("ListFolders: %v", err)
	}
	if len(folders) != 1 || folders[0].Ref != "ref-b" {
		t.Errorf("ListFolders = %+v", folders)
	}

	externals, err := m.ListExternals()
	if err != nil {
		t.Fatalf("ListExternals: %v", err)
	}
	if len(externals) != 1 || externals[0].URL != "https://example.org/blocks" {
		t.Errorf("ListExternals = %+v", externals)
	}

	got, err := m.File("report.pdf")
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if !got.Equal(file) {
		t.Errorf("File = %+v, want %+v", got, file)
	}

	missing, err := m.File("nope")
	if err != nil {
		t.Fatalf("File(missing): %v", err)
	}
	if missing != nil {
		t.Errorf("File(missing) = %+v, want nil", missing)
	}
}

func TestNameConflictAcrossKinds(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *DirectoryMetadata) error
		probe func(m *DirectoryMetadata) error
	}{
		{
			name:  "file then folder",
			setup: func(m *DirectoryMetadata) error { return m.InsertFile(&File{Name: "taken"}) },
			probe: func(m *DirectoryMetadata) error { return m.InsertFolder(&Folder{Name: "taken"}) },
		},
		{
			name:  "folder then file",
			setup: func(m *DirectoryMetadata) error { return m.InsertFolder(&Folder{Name: "taken"}) },
			probe: func(m *DirectoryMetadata) error { return m.InsertFile(&File{Name: "taken"}) },
		},
		{
			name:  "external then file",
			setup: func(m *DirectoryMetadata) error { return m.InsertExternal(&External{Name: "taken"}) },
			probe: func(m *DirectoryMetadata) error { return m.InsertFile(&File{Name: "taken"}) },
		},
		{
			name:  "file then external",
			setup: func(m *DirectoryMetadata) error { return m.InsertFile(&File{Name: "taken"}) },
			probe: func(m *DirectoryMetadata) error { return m.InsertExternal(&External{Name: "taken"}) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestIndex(t, []byte{1}, "")
			if err := tt.setup(m); err != nil {
				t.Fatalf("setup: %v", err)
			}
			if err := tt.probe(m); !errors.Is(err, ErrNameConflict) {
				t.Errorf("got %v, want ErrNameConflict", err)
			}
		})
	}
}

func TestSameKindInsertOverwrites(t *testing.T) {
	m := newTestIndex(t, []byte{1}, "")

	if err := m.InsertFile(&File{Block: "old", Name: "notes.txt"}); err != nil {
		t.Fatalf("InsertFile: %v", err)
	}
	if err := m.InsertFile(&File{Block: "new", Name: "notes.txt"}); err != nil {
		t.Fatalf("InsertFile overwrite: %v", err)
	}

	files, err := m.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("listed %d files, want 1", len(files))
	}
	if files[0].Block != "new" {
		t.Errorf("block = %q, want %q", files[0].Block, "new")
	}
}

func TestDeleteMissingEntry(t *testing.T) {
	m := newTestIndex(t, []byte{1}, "")

	if err := m.DeleteFile("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteFile: got %v, want ErrNotFound", err)
	}
	if err := m.DeleteFolder("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteFolder: got %v, want ErrNotFound", err)
	}
}

func TestTypeOf(t *testing.T) {
	m := newTestIndex(t, []byte{1}, "")

	if err := m.InsertFile(&File{Name: "f"}); err != nil {
		t.Fatal(err)
	}
	if err := m.InsertFolder(&Folder{Name: "d"}); err != nil {
		t.Fatal(err)
	}
	if err := m.InsertExternal(&External{Name: "x"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		want Type
	}{
		{name: "f", want: TypeFile},
		{name: "d", want: TypeFolder},
		{name: "x", want: TypeExternal},
		{name: "missing", want: TypeNone},
	}
	for _, tt := range tests {
		got, err := m.TypeOf(tt.name)
		if err != nil {
			t.Fatalf("TypeOf(%q): %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("TypeOf(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	deviceID := []byte{9, 9}
	m := newTestIndex(t, deviceID, "qabel://bucket/p")

	if err := m.InsertFile(&File{Block: "b1", Name: "a.txt", Size: 10, MTime: 1, Key: []byte("k")}); err != nil {
		t.Fatal(err)
	}
	if err := m.InsertFolder(&Folder{Ref: "r1", Name: "sub", Key: []byte("k")}); err != nil {
		t.Fatal(err)
	}
	if err := m.Advance(); err != nil {
		t.Fatal(err)
	}
	wantVersion, err := m.Version()
	if err != nil {
		t.Fatal(err)
	}

	blob, err := m.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	reopened, err := Open(blob, deviceID, m.Ref())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()

	gotVersion, err := reopened.Version()
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if !bytes.Equal(gotVersion, wantVersion) {
		t.Errorf("version after round trip = %x, want %x", gotVersion, wantVersion)
	}

	files, err := reopened.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 1 || files[0].Name != "a.txt" {
		t.Errorf("files after round trip = %+v", files)
	}

	folders, err := reopened.ListFolders()
	if err != nil {
		t.Fatalf("ListFolders: %v", err)
	}
	if len(folders) != 1 || folders[0].Name != "sub" {
		t.Errorf("folders after round trip = %+v", folders)
	}

	root, err := reopened.Root()
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if root != "qabel://bucket/p" {
		t.Errorf("root after round trip = %q", root)
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	if _, err := Open([]byte("this is not a database"), []byte{1}, "ref"); !errors.Is(err, ErrCorruptIndex) {
		t.Errorf("Open(garbage): got %v, want ErrCorruptIndex", err)
	}
}
