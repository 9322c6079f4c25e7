package cmd

import (
	"fmt"
	"os"

	"github.com/JoGir/qabel-core/internal/crypto"
	"github.com/JoGir/qabel-core/internal/keyring"
)

// KeyringSave derives the root key from the passphrase and stores it in
// the OS keyring so later commands skip the prompt.
func KeyringSave() {
	cfg, err := LoadConfig()
	if err != nil {
		HandleError(err)
	}

	rootKey, err := GetRootKey(cfg)
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(rootKey)

	if err := keyring.SaveRootKey(cfg.VolumeID(), rootKey); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save to keyring: %s\n", err)
		os.Exit(1)
	}
	fmt.Println("Root key saved to keyring")
}

// KeyringDelete removes the root key from the OS keyring.
func KeyringDelete() {
	cfg, err := LoadConfig()
	if err != nil {
		HandleError(err)
	}

	if err := keyring.DeleteRootKey(cfg.VolumeID()); err != nil {
		fmt.Println("No root key stored in keyring")
		return
	}
	fmt.Println("Root key removed from keyring")
}

// KeyringStatus reports whether a root key is stored in the OS keyring.
func KeyringStatus() {
	cfg, err := LoadConfig()
	if err != nil {
		HandleError(err)
	}

	if keyring.HasRootKey(cfg.VolumeID()) {
		fmt.Println("Root key is stored in keyring")
	} else {
		fmt.Println("No root key stored in keyring")
	}
}
