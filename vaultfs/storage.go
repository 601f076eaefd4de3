// Package vaultfs implements ciphertext-path resolution and file/directory
// operations over an unlocked vault: the L5 layer that turns plaintext
// paths into the right sequence of .c9r/.c9s reads and writes against a
// backing Storage.
package vaultfs

import (
	"context"
	"io"
	"time"
)

// DirEntryKind classifies a raw ciphertext directory entry before its name
// has been decrypted.
type DirEntryKind int

const (
	KindUnknown DirEntryKind = iota
	KindFile
	KindDir
	KindSymlink
)

// RawDirEntry is one ciphertext entry as returned by Storage.List, before
// vaultfs has decrypted its name or resolved any .c9s shortening.
type RawDirEntry struct {
	// CiphertextName is the on-disk entry name: either "<b64>.c9r" (for
	// files, directories and symlinks alike; see Kind) or "<hash>.c9s" for
	// a shortened entry.
	CiphertextName string
	Kind           DirEntryKind
	Size           int64
	ModTime        time.Time
}

// Storage is the narrow filesystem interface vaultfs needs from whatever
// holds the vault's ciphertext bytes: a local directory tree, an in-memory
// fixture, or (in principle) any other byte-addressable tree. It is
// generalized from a single rclone remote wrapper into a backend-agnostic
// seam so the same vaultfs.Fs can run against a real disk in production and
// an in-memory tree in tests.
type Storage interface {
	// Open opens a ciphertext path for reading.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// OpenRange opens a ciphertext path for reading starting at offset.
	OpenRange(ctx context.Context, path string, offset int64) (io.ReadCloser, error)
	// Create opens (or truncates) a ciphertext path for writing. It does
	// not create missing parents; callers call MkdirAll first where needed.
	Create(ctx context.Context, path string) (io.WriteCloser, error)
	// WriteFile atomically writes the full contents of a small ciphertext
	// file (used for dir.c9r pointer files, dirid.c9r backups, and the
	// vault's own config/master-key documents).
	WriteFile(ctx context.Context, path string, content []byte) error
	// Stat returns metadata for a single ciphertext path.
	Stat(ctx context.Context, path string) (RawDirEntry, error)
	// List returns the raw ciphertext entries of a directory.
	List(ctx context.Context, path string) ([]RawDirEntry, error)
	// Mkdir creates a single directory; the parent must already exist.
	Mkdir(ctx context.Context, path string) error
	// MkdirAll creates a directory and any missing parents.
	MkdirAll(ctx context.Context, path string) error
	// Remove removes a single file.
	Remove(ctx context.Context, path string) error
	// RemoveDir removes an empty directory.
	RemoveDir(ctx context.Context, path string) error
	// RemoveAll removes a path and, if it is a directory, its contents.
	RemoveAll(ctx context.Context, path string) error
	// Rename moves a ciphertext path, overwriting any file at dst.
	Rename(ctx context.Context, src, dst string) error
}
