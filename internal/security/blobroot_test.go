package security

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestBlobRootRoundTrip(t *testing.T) {
	root, err := OpenBlobRoot(filepath.Join(t.TempDir(), "blocks"))
	if err != nil {
		t.Fatalf("Failed to open blob root: %v", err)
	}
	defer root.Close()

	file, err := root.Create("blocks/abc-123")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := file.Write([]byte("payload")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reader, err := root.Open("blocks/abc-123")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()
	content, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(content) != "payload" {
		t.Errorf("Read %q, want %q", content, "payload")
	}

	if _, err := root.Stat("blocks/abc-123"); err != nil {
		t.Errorf("Stat failed: %v", err)
	}
	if err := root.Remove("blocks/abc-123"); err != nil {
		t.Errorf("Remove failed: %v", err)
	}
	if _, err := root.Open("blocks/abc-123"); err == nil {
		t.Error("Open after Remove should fail")
	}
}

func TestBlobRootRejectsEscapingNames(t *testing.T) {
	tmpDir := t.TempDir()
	root, err := OpenBlobRoot(filepath.Join(tmpDir, "blocks"))
	if err != nil {
		t.Fatalf("Failed to open blob root: %v", err)
	}
	defer root.Close()

	outside := filepath.Join(tmpDir, "outside.txt")
	if err := os.WriteFile(outside, []byte("secret"), 0600); err != nil {
		t.Fatalf("Failed to write outside file: %v", err)
	}

	tests := []struct {
		name    string
		blob    string
		errType error
	}{
		{"empty name", "", ErrEmptyName},
		{"parent directory", "../outside.txt", ErrNameEscapes},
		{"nested parent", "a/../../outside.txt", ErrNameEscapes},
		{"absolute path", outside, ErrAbsoluteName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := root.Open(tt.blob); !errors.Is(err, tt.errType) {
				t.Errorf("Open(%q) error = %v, want %v", tt.blob, err, tt.errType)
			}
			if _, err := root.Create(tt.blob); !errors.Is(err, tt.errType) {
				t.Errorf("Create(%q) error = %v, want %v", tt.blob, err, tt.errType)
			}
			if err := root.Remove(tt.blob); !errors.Is(err, tt.errType) {
				t.Errorf("Remove(%q) error = %v, want %v", tt.blob, err, tt.errType)
			}
		})
	}
}

func TestBlobRootCreatesNestedDirectories(t *testing.T) {
	root, err := OpenBlobRoot(filepath.Join(t.TempDir(), "blocks"))
	if err != nil {
		t.Fatalf("Failed to open blob root: %v", err)
	}
	defer root.Close()

	for _, name := range []string{"a/b/c/blob1", "a/b/c/blob2", "a/blob3"} {
		file, err := root.Create(name)
		if err != nil {
			t.Fatalf("Create(%q) failed: %v", name, err)
		}
		file.Close()
	}
}
