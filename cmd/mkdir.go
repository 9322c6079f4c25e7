package cmd

import (
	"context"
	"fmt"
	"os"
)

// Mkdir creates a remote folder and commits.
func Mkdir(ctx context.Context, remotePath string) {
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

	dir, name := SplitDir(remotePath)
	if name == "" {
		fmt.Fprintln(os.Stderr, "Error: empty folder name")
		os.Exit(1)
	}

	nav, err := WalkTo(ctx, root, dir)
	if err != nil {
		HandleError(err)
	}
	if nav != root {
		defer nav.Close()
	}

	if _, err := nav.CreateFolder(ctx, name); err != nil {
		HandleError(err)
	}
	if err := nav.Commit(ctx); err != nil {
		HandleError(err)
	}
	fmt.Printf("Created folder %s\n", remotePath)
}
