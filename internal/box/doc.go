// Package box implements the navigation and sync engine over encrypted
// directory indexes.
//
// A Volume ties a block backend to a root key and a device id. Navigating
// a volume yields a Navigation per directory level; each level's index is
// decrypted with a key handed down by its parent (or the root key), so a
// (reference, key) pair is the sole capability for a subtree.
//
// There is no lock server. Commit is optimistic: advance the local version
// chain, re-read the remote index, and if a concurrent writer published in
// the meantime take their index as the new base and replay local updates
// into it, renaming files on true conflicts instead of overwriting.
// Folder-vs-folder conflicts across devices are an acknowledged gap: a
// colliding folder write can be lost rather than renamed.
package box
