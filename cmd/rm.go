package cmd

import (
	"context"
	"fmt"

	"github.com/JoGir/qabel-core/internal/box"
)

// Rm deletes a remote file or folder (recursively) and commits.
func Rm(ctx context.Context, remotePath string) {
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
	nav, err := WalkTo(ctx, root, dir)
	if err != nil {
		HandleError(err)
	}
	if nav != root {
		defer nav.Close()
	}

	files, err := nav.ListFiles()
	if err != nil {
		HandleError(err)
	}
	for i := range files {
		if files[i].Name == name {
			if err := nav.DeleteFile(&files[i]); err != nil {
				HandleError(err)
			}
			if err := nav.Commit(ctx); err != nil {
				HandleError(err)
			}
			fmt.Printf("Deleted file %s\n", remotePath)
			return
		}
	}

	folders, err := nav.ListFolders()
	if err != nil {
		HandleError(err)
	}
	for i := range folders {
		if folders[i].Name == name {
			if err := nav.DeleteFolder(ctx, &folders[i]); err != nil {
				HandleError(err)
			}
			if err := nav.Commit(ctx); err != nil {
				HandleError(err)
			}
			fmt.Printf("Deleted folder %s\n", remotePath)
			return
		}
	}

	HandleError(fmt.Errorf("%w: %s", box.ErrNotFound, remotePath))
}
