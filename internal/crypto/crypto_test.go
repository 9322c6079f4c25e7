package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		plaintext []byte
	}{
		{
			name:      "short message",
			plaintext: []byte("hello"),
		},
		{
			name:      "empty message",
			plaintext: []byte{},
		},
		{
			name:      "binary content",
			plaintext: []byte{0x00, 0xFF, 0x10, 0x80, 0x7F},
		},
		{
			name:      "larger payload",
			plaintext: bytes.Repeat([]byte("qabel"), 4096),
		},
	}

	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := Encrypt(tt.plaintext, key)
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}
			if bytes.Contains(ciphertext, tt.plaintext) && len(tt.plaintext) > 4 {
				t.Error("ciphertext contains plaintext")
			}

			plaintext, err := Decrypt(ciphertext, key)
			if err != nil {
				t.Fatalf("Decrypt: %v", err)
			}
			if !bytes.Equal(plaintext, tt.plaintext) {
				t.Errorf("round trip mismatch: got %q, want %q", plaintext, tt.plaintext)
			}
		})
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	ciphertext, err := Encrypt([]byte("authenticated payload"), key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	// Flip a single bit in every position, one at a time
	for i := range ciphertext {
		corrupted := make([]byte, len(ciphertext))
		copy(corrupted, ciphertext)
		corrupted[i] ^= 0x01

		if _, err := Decrypt(corrupted, key); !errors.Is(err, ErrAuthFailed) {
			t.Fatalf("Decrypt of ciphertext corrupted at byte %d: got %v, want ErrAuthFailed", i, err)
		}
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	key1, _ := GenerateKey()
	key2, _ := GenerateKey()

	ciphertext, err := Encrypt([]byte("secret"), key1)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if _, err := Decrypt(ciphertext, key2); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Decrypt with wrong key: got %v, want ErrAuthFailed", err)
	}
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	key, _ := GenerateKey()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "empty", input: []byte{}},
		{name: "nonce only", input: make([]byte, NonceSize)},
		{name: "too short for tag", input: make([]byte, NonceSize+TagSize-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decrypt(tt.input, key); !errors.Is(err, ErrInvalidCiphertext) {
				t.Errorf("Decrypt(%d bytes): got %v, want ErrInvalidCiphertext", len(tt.input), err)
			}
		})
	}
}

func TestEncryptRejectsBadKeyLength(t *testing.T) {
	if _, err := Encrypt([]byte("x"), make([]byte, 16)); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Encrypt with 16-byte key: got %v, want ErrInvalidKey", err)
	}
}

func TestGenerateKeyUnique(t *testing.T) {
	key1, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	key2, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if len(key1) != KeySize {
		t.Errorf("key length = %d, want %d", len(key1), KeySize)
	}
	if bytes.Equal(key1, key2) {
		t.Error("two generated keys are identical")
	}
}

func TestDeriveRootKeyDeterministic(t *testing.T) {
	salt, err := GenerateRandom(SaltSize)
	if err != nil {
		t.Fatalf("GenerateRandom: %v", err)
	}

	key1 := DeriveRootKey([]byte("correct horse battery staple"), salt)
	key2 := DeriveRootKey([]byte("correct horse battery staple"), salt)
	if !bytes.Equal(key1, key2) {
		t.Error("same passphrase and salt produced different keys")
	}
	if len(key1) != KeySize {
		t.Errorf("derived key length = %d, want %d", len(key1), KeySize)
	}

	other := DeriveRootKey([]byte("wrong passphrase"), salt)
	if bytes.Equal(key1, other) {
		t.Error("different passphrases produced the same key")
	}
}
