// Package crypto provides the authenticated encryption envelope for
// qabel-core.
//
// Encryption uses AES-256-GCM with:
//   - a fresh 32-byte random key per file and per directory index
//   - 12-byte random nonce per encryption operation
//   - tag validation before any plaintext is released
//
// Root key derivation (CLI bootstrap only) uses Argon2id with a 32-byte
// salt. The sync engine itself never derives keys: a resource is only ever
// decrypted with the key handed down by its parent index.
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
package crypto
