package cmd

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/JoGir/qabel-core/internal/box"
	"github.com/JoGir/qabel-core/internal/crypto"
	"github.com/JoGir/qabel-core/internal/index"
	"github.com/JoGir/qabel-core/internal/keyring"
	"github.com/JoGir/qabel-core/internal/storage"
)

const (
	ConfigFile   = ".qabel.json"
	SnapshotFile = ".qabel.snapshot"
)

// Config is the per-volume CLI configuration. The root key itself is never
// stored here; it lives in the OS keyring or is derived from a passphrase.
type Config struct {
	Backend   string           `json:"backend"` // "local" or "s3"
	LocalRoot string           `json:"local_root,omitempty"`
	S3        storage.S3Config `json:"s3,omitempty"`
	Prefix    string           `json:"prefix"`
	DeviceID  string           `json:"device_id"` // hex
	Salt      string           `json:"salt"`      // hex, for passphrase derivation
}

// LoadConfig reads the volume configuration from the working directory.
func LoadConfig() (*Config, error) {
	raw, err := os.ReadFile(ConfigFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no %s found, run 'qabel init' first", ConfigFile)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// SaveConfig writes the volume configuration to the working directory.
func SaveConfig(cfg *Config) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(ConfigFile, raw, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// VolumeID identifies this volume in the OS keyring.
func (c *Config) VolumeID() string {
	if c.Backend == "s3" {
		return c.S3.Bucket + "/" + c.Prefix
	}
	return c.LocalRoot + "/" + c.Prefix
}

// ReadPassphrase reads a passphrase from the terminal without echoing.
func ReadPassphrase(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	passphrase, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	return passphrase, nil
}

// ReadPassphraseConfirm reads a passphrase twice and ensures both match.
func ReadPassphraseConfirm() ([]byte, error) {
	first, err := ReadPassphrase("Enter passphrase: ")
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(first)

	second, err := ReadPassphrase("Confirm passphrase: ")
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(second)

	if !crypto.ConstantTimeCompare(first, second) {
		return nil, errors.New("passphrases do not match")
	}

	result := make([]byte, len(first))
	copy(result, first)
	return result, nil
}

// GetRootKey resolves the volume root key: OS keyring first, then the
// QABEL_PASSPHRASE environment variable, then an interactive prompt.
func GetRootKey(cfg *Config) ([]byte, error) {
	if stored, err := keyring.GetRootKey(cfg.VolumeID()); err == nil {
		return stored, nil
	}

	passphrase := []byte(os.Getenv("QABEL_PASSPHRASE"))
	if len(passphrase) == 0 {
		var err error
		passphrase, err = ReadPassphrase("Enter passphrase: ")
		if err != nil {
			return nil, err
		}
	}
	defer crypto.ClearBytes(passphrase)

	salt, err := hex.DecodeString(cfg.Salt)
	if err != nil {
		return nil, fmt.Errorf("bad salt in config: %w", err)
	}
	return crypto.DeriveRootKey(passphrase, salt), nil
}

// OpenVolume builds the configured backend and volume.
func OpenVolume(ctx context.Context, cfg *Config, rootKey []byte) (*box.Volume, error) {
	deviceID, err := hex.DecodeString(cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("bad device id in config: %w", err)
	}

	var (
		read  storage.ReadBackend
		write storage.WriteBackend
	)
	switch cfg.Backend {
	case "s3":
		backend, err := storage.NewS3(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		read, write = backend, backend
	case "local":
		backend, err := storage.NewLocal(cfg.LocalRoot)
		if err != nil {
			return nil, err
		}
		read, write = backend, backend
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	return box.NewVolume(read, write, rootKey, deviceID, cfg.Prefix), nil
}

// WalkTo descends from the root navigation along a slash-separated path,
// returning the navigation for the final directory. The returned
// navigation must be closed by the caller; intermediate ones are closed
// here. An empty path returns nav itself.
func WalkTo(ctx context.Context, nav box.Navigation, path string) (box.Navigation, error) {
	current := nav
	for _, component := range splitPath(path) {
		folder, err := findFolder(current, component)
		if err != nil {
			if current != nav {
				current.Close()
			}
			return nil, err
		}
		next, err := current.Navigate(ctx, folder)
		if current != nav {
			current.Close()
		}
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

func splitPath(path string) []string {
	var components []string
	for _, component := range strings.Split(path, "/") {
		if component != "" {
			components = append(components, component)
		}
	}
	return components
}

func findFolder(nav box.Navigation, name string) (*index.Folder, error) {
	folders, err := nav.ListFolders()
	if err != nil {
		return nil, err
	}
	for i := range folders {
		if folders[i].Name == name {
			return &folders[i], nil
		}
	}
	return nil, fmt.Errorf("%w: folder %s", box.ErrNotFound, name)
}

// SplitDir splits a remote path into its directory part and final name.
func SplitDir(path string) (dir, name string) {
	components := splitPath(path)
	if len(components) == 0 {
		return "", ""
	}
	return strings.Join(components[:len(components)-1], "/"), components[len(components)-1]
}

// HandleError prints an error consistently and exits.
func HandleError(err error) {
	switch {
	case errors.Is(err, box.ErrNotFound):
		fmt.Fprintf(os.Stderr, "Error: not found: %s\n", err)
	case errors.Is(err, crypto.ErrAuthFailed):
		fmt.Fprintf(os.Stderr, "Error: authentication failed (wrong key or tampered data)\n")
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	os.Exit(1)
}
