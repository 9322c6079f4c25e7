package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func TestLocalUploadDownloadRoundTrip(t *testing.T) {
	backend, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	ctx := context.Background()

	content := []byte{1, 2, 3, 4}
	if _, err := backend.Upload(ctx, "blocks/abc", bytes.NewReader(content)); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	stream, err := backend.Download(ctx, "blocks/abc")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer stream.Close()

	got, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("downloaded %v, want %v", got, content)
	}
}

func TestLocalUploadOverwrites(t *testing.T) {
	backend, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	ctx := context.Background()

	if _, err := backend.Upload(ctx, "blob", bytes.NewReader([]byte("old"))); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := backend.Upload(ctx, "blob", bytes.NewReader([]byte("new"))); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	stream, err := backend.Download(ctx, "blob")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer stream.Close()
	got, _ := io.ReadAll(stream)
	if string(got) != "new" {
		t.Errorf("downloaded %q, want %q", got, "new")
	}
}

func TestLocalDownloadMissing(t *testing.T) {
	backend, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	if _, err := backend.Download(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Download(missing): got %v, want ErrNotFound", err)
	}
}

func TestLocalDeleteIdempotent(t *testing.T) {
	backend, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	ctx := context.Background()

	if _, err := backend.Upload(ctx, "blob", bytes.NewReader([]byte("x"))); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	// First delete removes, second and the never-uploaded one are no-ops.
	if err := backend.Delete(ctx, "blob"); err != nil {
		t.Errorf("first Delete: %v", err)
	}
	if err := backend.Delete(ctx, "blob"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
	if err := backend.Delete(ctx, "never-uploaded"); err != nil {
		t.Errorf("Delete of never-uploaded blob: %v", err)
	}

	if _, err := backend.Download(ctx, "blob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Download after delete: got %v, want ErrNotFound", err)
	}
}
