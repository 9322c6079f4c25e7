package cmd

import (
	"context"
	"fmt"
	"os"
)

// Put uploads a local file to a remote path and commits.
func Put(ctx context.Context, localPath, remotePath string) {
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

	source, err := os.Open(localPath)
	if err != nil {
		HandleError(err)
	}
	defer source.Close()

	root, err := volume.Navigate(ctx)
	if err != nil {
		HandleError(err)
	}
	defer root.Close()

	dir, name := SplitDir(remotePath)
	if name == "" {
		fmt.Fprintln(os.Stderr, "Error: empty remote path")
		os.Exit(1)
	}

	nav, err := WalkTo(ctx, root, dir)
	if err != nil {
		HandleError(err)
	}
	if nav != root {
		defer nav.Close()
	}

	file, err := nav.Upload(ctx, name, source)
	if err != nil {
		HandleError(err)
	}
	if err := nav.Commit(ctx); err != nil {
		HandleError(err)
	}

	fmt.Printf("Uploaded %s (%d bytes)\n", file.Name, file.Size)
}
