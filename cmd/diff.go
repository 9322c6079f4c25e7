package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff compares the current remote root listing against the snapshot saved
// by the previous diff run and prints a line diff. The new listing becomes
// the next snapshot.
func Diff(ctx context.Context) {
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

	listing, err := RenderListing(root)
	if err != nil {
		HandleError(err)
	}

	previous, err := os.ReadFile(SnapshotFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		HandleError(err)
	}

	if string(previous) == listing {
		fmt.Println("No changes since last snapshot")
	} else {
		dmp := diffmatchpatch.New()
		chars1, chars2, lines := dmp.DiffLinesToChars(string(previous), listing)
		diffs := dmp.DiffCharsToLines(dmp.DiffMain(chars1, chars2, false), lines)
		for _, diff := range diffs {
			switch diff.Type {
			case diffmatchpatch.DiffInsert:
				fmt.Printf("+ %s", diff.Text)
			case diffmatchpatch.DiffDelete:
				fmt.Printf("- %s", diff.Text)
			}
		}
	}

	if err := os.WriteFile(SnapshotFile, []byte(listing), 0600); err != nil {
		HandleError(err)
	}
}
