package cmd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/JoGir/qabel-core/internal/crypto"
	"github.com/JoGir/qabel-core/internal/storage"
)

// InitOptions carries the init command's flags.
type InitOptions struct {
	Backend   string
	LocalRoot string
	Prefix    string
	S3        storage.S3Config
}

// Init creates a volume configuration and publishes an empty root index.
func Init(ctx context.Context, opts InitOptions) {
	if _, err := os.Stat(ConfigFile); err == nil {
		fmt.Fprintf(os.Stderr, "Error: %s already exists in this directory\n", ConfigFile)
		os.Exit(1)
	}

	deviceID, err := crypto.GenerateRandom(16)
	if err != nil {
		HandleError(err)
	}
	salt, err := crypto.GenerateRandom(crypto.SaltSize)
	if err != nil {
		HandleError(err)
	}

	cfg := &Config{
		Backend:   opts.Backend,
		LocalRoot: opts.LocalRoot,
		S3:        opts.S3,
		Prefix:    opts.Prefix,
		DeviceID:  hex.EncodeToString(deviceID),
		Salt:      hex.EncodeToString(salt),
	}

	passphrase := []byte(os.Getenv("QABEL_PASSPHRASE"))
	if len(passphrase) == 0 {
		passphrase, err = ReadPassphraseConfirm()
		if err != nil {
			HandleError(err)
		}
	}
	defer crypto.ClearBytes(passphrase)

	rootKey := crypto.DeriveRootKey(passphrase, salt)
	defer crypto.ClearBytes(rootKey)

	volume, err := OpenVolume(ctx, cfg, rootKey)
	if err != nil {
		HandleError(err)
	}

	// Joining an existing volume keeps the published index.
	if nav, err := volume.Navigate(ctx); err == nil {
		nav.Close()
		fmt.Println("Volume already exists, joined as a new device")
	} else if errors.Is(err, context.Canceled) {
		HandleError(err)
	} else {
		if err := volume.CreateIndex(ctx); err != nil {
			HandleError(err)
		}
		fmt.Println("Created empty volume")
	}

	if err := SaveConfig(cfg); err != nil {
		HandleError(err)
	}
	fmt.Printf("Wrote %s\n", ConfigFile)
}
