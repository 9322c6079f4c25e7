// Package storage provides the block backends for qabel-core.
//
// A backend is a content-opaque key-value blob store: it uploads, downloads
// and deletes named byte blobs and knows nothing about encryption, indexes
// or directory structure. Deletion is idempotent. Download failures
// collapse into ErrNotFound so that a missing blob and an inaccessible one
// are indistinguishable to callers.
//
// Two implementations exist: a local directory backend (tests, offline
// use) and an S3 backend for AWS or S3-compatible services.
package storage
