// Package keyring stores volume root keys in the OS keyring.
package keyring

import (
	"encoding/hex"
	"fmt"

	"github.com/zalando/go-keyring"
)

const serviceName = "qabel-core"

// SaveRootKey stores a volume's root key in the OS keyring.
func SaveRootKey(volumeID string, key []byte) error {
	return keyring.Set(serviceName, volumeID, hex.EncodeToString(key))
}

// GetRootKey retrieves a volume's root key from the OS keyring.
func GetRootKey(volumeID string) ([]byte, error) {
	encoded, err := keyring.Get(serviceName, volumeID)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("malformed key in keyring: %w", err)
	}
	return key, nil
}

// DeleteRootKey removes a volume's root key from the OS keyring.
func DeleteRootKey(volumeID string) error {
	return keyring.Delete(serviceName, volumeID)
}

// HasRootKey checks whether a root key is stored for the volume.
func HasRootKey(volumeID string) bool {
	_, err := keyring.Get(serviceName, volumeID)
	return err == nil
}
