package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JoGir/qabel-core/internal/box"
)

// List prints the files and folders of a remote directory.
func List(ctx context.Context, path string) {
	cfg, err := LoadConfig()
	if err != nil {
		HandleError(err)
	}
	rootKey, err := GetRootKey(cfg)
	if err != nil {
		HandleError(err)
	}
	volume, err := OpenVolume(ctx, cfg, rootKey)
	if err != nil {
		HandleError(err)
	}

	root, err := volume.Navigate(ctx)
	if err != nil {
		HandleError(err)
	}
	defer root.Close()

	nav, err := WalkTo(ctx, root, path)
	if err != nil {
		HandleError(err)
	}
	if nav != root {
		defer nav.Close()
	}

	listing, err := RenderListing(nav)
	if err != nil {
		HandleError(err)
	}
	fmt.Print(listing)
}

// RenderListing formats a directory's entries, one per line. The diff
// command reuses the same rendering for its snapshots.
func RenderListing(nav box.Navigation) (string, error) {
	var sb strings.Builder

	folders, err := nav.ListFolders()
	if err != nil {
		return "", err
	}
	for _, folder := range folders {
		fmt.Fprintf(&sb, "d %-40s\n", folder.Name+"/")
	}

	files, err := nav.ListFiles()
	if err != nil {
		return "", err
	}
	for _, file := range files {
		mtime := time.UnixMilli(file.MTime).UTC().Format(time.RFC3339)
		fmt.Fprintf(&sb, "f %-40s %10d %s\n", file.Name, file.Size, mtime)
	}

	externals, err := nav.ListExternals()
	if err != nil {
		return "", err
	}
	for _, external := range externals {
		fmt.Fprintf(&sb, "x %-40s %s\n", external.Name, external.URL)
	}

	return sb.String(), nil
}
