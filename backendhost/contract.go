// Package backendhost defines the adapter-neutral filesystem contract a
// mount backend translates into its own wire protocol, and provides thin
// adapters for FUSE, WebDAV and loopback NFSv3. The macOS filesystem
// extension backend is out of scope (XPC-to-extension plumbing is not
// implemented anywhere in this module) -- Contract is the seam a future
// adapter for it would bind to.
package backendhost

import (
	"context"
	"time"
)

// Attr is the adapter-neutral metadata every backend needs to answer a
// getattr/stat-shaped call.
type Attr struct {
	Size    int64
	IsDir   bool
	IsLink  bool
	ModTime time.Time
}

// Category is one of the backend-neutral error categories a Contract
// method returns; each adapter maps this to its protocol's own error
// vocabulary (POSIX errno for FUSE, HTTP status for WebDAV, NFS status
// codes for NFSv3).
type Category int

const (
	CategoryNone Category = iota
	CategoryNotFound
	CategoryAlreadyExists
	CategoryNotEmpty
	CategoryIsDirectory
	CategoryNotDirectory
	CategoryInvalidArgument
	CategoryIOError
	CategoryPermissionDenied
	CategoryNotSupported
	CategoryTimedOut
)

// Error wraps an underlying error with the category a backend adapter
// needs to pick its protocol-specific status/errno.
type Error struct {
	Category Category
	Err      error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Contract is the plaintext-shaped filesystem surface every mount backend
// drives. It mirrors the reference callback set (lookup, getattr, readdir,
// open, read, write, create, mkdir, unlink, rmdir, rename, symlink,
// readlink, setattr, release, fsync, statfs) almost one-for-one;
// vaultfs.Fs already speaks most of this vocabulary; VaultContract is the
// one concrete implementation, adding the handle/cache/stats plumbing
// none of the backends should have to duplicate.
type Contract interface {
	Lookup(ctx context.Context, path string) (Attr, error)
	Getattr(ctx context.Context, path string) (Attr, error)
	Readdir(ctx context.Context, path string) ([]DirEntry, error)
	Open(ctx context.Context, path string) (uint64, error)
	Read(ctx context.Context, handle uint64, offset int64, p []byte) (int, error)
	Write(ctx context.Context, handle uint64, offset int64, p []byte) (int, error)
	Create(ctx context.Context, path string) (uint64, error)
	Mkdir(ctx context.Context, path string) error
	Unlink(ctx context.Context, path string) error
	Rmdir(ctx context.Context, path string) error
	Rename(ctx context.Context, oldPath, newPath string) error
	Symlink(ctx context.Context, path, target string) error
	Readlink(ctx context.Context, path string) (string, error)
	Setattr(ctx context.Context, path string, size *int64) error
	Release(ctx context.Context, handle uint64) error
	Fsync(ctx context.Context, handle uint64) error
	Statfs(ctx context.Context) (Statfs, error)
}

// DirEntry is one adapter-neutral directory listing entry.
type DirEntry struct {
	Name string
	Attr Attr
}

// Statfs is the small set of filesystem-wide numbers every mount protocol
// asks for in one shape or another; the vault doesn't track real free
// space, so these are fixed placeholders large enough not to trip a
// client's low-disk-space heuristics.
type Statfs struct {
	BlockSize  uint32
	Blocks     uint64
	BlocksFree uint64
	Files      uint64
	FilesFree  uint64
}
