package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/JoGir/qabel-core/internal/box"
)

// Get downloads a remote file to a local path (or stdout with "-").
func Get(ctx context.Context, remotePath, localPath string) {
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
	var found bool
	for i := range files {
		if files[i].Name != name {
			continue
		}
		found = true
		stream, err := nav.Download(ctx, &files[i])
		if err != nil {
			HandleError(err)
		}
		defer stream.Close()

		var sink io.Writer = os.Stdout
		if localPath != "-" {
			out, err := os.Create(localPath)
			if err != nil {
				HandleError(err)
			}
			defer out.Close()
			sink = out
		}
		if _, err := io.Copy(sink, stream); err != nil {
			HandleError(err)
		}
		break
	}
	if !found {
		HandleError(fmt.Errorf("%w: file %s", box.ErrNotFound, name))
	}
}
