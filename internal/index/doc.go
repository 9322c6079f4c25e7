// Package index implements the versioned per-directory record store.
//
// Each directory level of a volume is one DirectoryMetadata instance backed
// by a bbolt database in a temporary file, using five buckets:
//   - meta: root marker, last writer device, spec version
//   - version: append-only hash chain of commits
//   - files, folders, externals: child entries keyed by name
//
// The whole database serializes to a single opaque blob which the sync
// engine encrypts and uploads; the blob format promises nothing beyond
// round-trip correctness by this package's own reader and writer.
//
// The version chain is not a vector clock. Each entry is
// SHA-256(tag || previous || deviceID), which is enough to detect "the
// remote changed since I last read it" but carries no causal merge
// information.
package index
