// Package fuseadapter translates backendhost.Contract calls into a
// github.com/hanwen/go-fuse/v2/fs tree, the same FUSE binding library the
// teacher's own cmd/mount2 depends on.
package fuseadapter

import (
	"context"
	"path"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/cryptovault/cryptovault/backendhost"
)

// node is the single Inode type backing every path in the mount: rather
// than mirror the vault's own directory tree in FUSE's inode graph, each
// node just remembers its own plaintext path and asks the shared Contract
// to resolve everything else on demand.
type node struct {
	fs.Inode
	contract backendhost.Contract
	path     string
}

var (
	_ fs.InodeEmbedder  = (*node)(nil)
	_ fs.NodeGetattrer  = (*node)(nil)
	_ fs.NodeLookuper   = (*node)(nil)
	_ fs.NodeReaddirer  = (*node)(nil)
	_ fs.NodeOpener     = (*node)(nil)
	_ fs.NodeCreater    = (*node)(nil)
	_ fs.NodeMkdirer    = (*node)(nil)
	_ fs.NodeUnlinker   = (*node)(nil)
	_ fs.NodeRmdirer    = (*node)(nil)
	_ fs.NodeRenamer    = (*node)(nil)
	_ fs.NodeSymlinker  = (*node)(nil)
	_ fs.NodeReadlinker = (*node)(nil)
	_ fs.NodeSetattrer  = (*node)(nil)
	_ fs.NodeStatfser   = (*node)(nil)
)

func errnoFor(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var cerr *backendhost.Error
	category := backendhost.CategoryIOError
	if asError(err, &cerr) {
		category = cerr.Category
	}
	switch category {
	case backendhost.CategoryNotFound:
		return syscall.ENOENT
	case backendhost.CategoryAlreadyExists:
		return syscall.EEXIST
	case backendhost.CategoryNotEmpty:
		return syscall.ENOTEMPTY
	case backendhost.CategoryIsDirectory:
		return syscall.EISDIR
	case backendhost.CategoryNotDirectory:
		return syscall.ENOTDIR
	case backendhost.CategoryInvalidArgument:
		return syscall.EINVAL
	case backendhost.CategoryPermissionDenied:
		return syscall.EACCES
	case backendhost.CategoryNotSupported:
		return syscall.ENOTSUP
	case backendhost.CategoryTimedOut:
		return syscall.ETIMEDOUT
	default:
		return syscall.EIO
	}
}

// asError is errors.As without importing "errors" twice in call sites;
// kept local since it's only ever used against *backendhost.Error here.
func asError(err error, target **backendhost.Error) bool {
	for err != nil {
		if e, ok := err.(*backendhost.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func toFuseAttr(a backendhost.Attr, out *fuse.Attr) {
	out.Size = uint64(a.Size)
	out.Mtime = uint64(a.ModTime.Unix())
	switch {
	case a.IsDir:
		out.Mode = fuse.S_IFDIR | 0o700
	case a.IsLink:
		out.Mode = fuse.S_IFLNK | 0o700
	default:
		out.Mode = fuse.S_IFREG | 0o600
	}
}

func (n *node) childPath(name string) string {
	return path.Join(n.path, name)
}

func (n *node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := n.contract.Getattr(ctx, n.path)
	if err != nil {
		return errnoFor(err)
	}
	toFuseAttr(attr, &out.Attr)
	return 0
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	attr, err := n.contract.Lookup(ctx, childPath)
	if err != nil {
		return nil, errnoFor(err)
	}
	toFuseAttr(attr, &out.Attr)

	child := &node{contract: n.contract, path: childPath}
	mode := uint32(fuse.S_IFREG)
	if attr.IsDir {
		mode = fuse.S_IFDIR
	} else if attr.IsLink {
		mode = fuse.S_IFLNK
	}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: mode}), 0
}

func (n *node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := n.contract.Readdir(ctx, n.path)
	if err != nil {
		return nil, errnoFor(err)
	}
	fuseEntries := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		mode := uint32(fuse.S_IFREG)
		if e.Attr.IsDir {
			mode = fuse.S_IFDIR
		} else if e.Attr.IsLink {
			mode = fuse.S_IFLNK
		}
		fuseEntries = append(fuseEntries, fuse.DirEntry{Name: e.Name, Mode: mode})
	}
	return fs.NewListDirStream(fuseEntries), 0
}

func (n *node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	h, err := n.contract.Open(ctx, n.path)
	if err != nil {
		return nil, 0, errnoFor(err)
	}
	return &fileHandle{contract: n.contract, handle: h}, 0, 0
}

func (n *node) Create(ctx context.Context, name string, flags, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	childPath := n.childPath(name)
	h, err := n.contract.Create(ctx, childPath)
	if err != nil {
		return nil, nil, 0, errnoFor(err)
	}
	toFuseAttr(backendhost.Attr{}, &out.Attr)
	child := &node{contract: n.contract, path: childPath}
	inode := n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFREG})
	return inode, &fileHandle{contract: n.contract, handle: h}, 0, 0
}

func (n *node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	if err := n.contract.Mkdir(ctx, childPath); err != nil {
		return nil, errnoFor(err)
	}
	child := &node{contract: n.contract, path: childPath}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFDIR}), 0
}

func (n *node) Unlink(ctx context.Context, name string) syscall.Errno {
	return errnoFor(n.contract.Unlink(ctx, n.childPath(name)))
}

func (n *node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return errnoFor(n.contract.Rmdir(ctx, n.childPath(name)))
}

func (n *node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	newParentNode, ok := newParent.(*node)
	if !ok {
		return syscall.EINVAL
	}
	return errnoFor(n.contract.Rename(ctx, n.childPath(name), newParentNode.childPath(newName)))
}

func (n *node) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	if err := n.contract.Symlink(ctx, childPath, target); err != nil {
		return nil, errnoFor(err)
	}
	child := &node{contract: n.contract, path: childPath}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFLNK}), 0
}

func (n *node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, err := n.contract.Readlink(ctx, n.path)
	if err != nil {
		return nil, errnoFor(err)
	}
	return []byte(target), 0
}

func (n *node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	var size *int64
	if s, ok := in.GetSize(); ok {
		v := int64(s)
		size = &v
	}
	if err := n.contract.Setattr(ctx, n.path, size); err != nil {
		return errnoFor(err)
	}
	attr, err := n.contract.Getattr(ctx, n.path)
	if err != nil {
		return errnoFor(err)
	}
	toFuseAttr(attr, &out.Attr)
	return 0
}

func (n *node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	sf, err := n.contract.Statfs(ctx)
	if err != nil {
		return errnoFor(err)
	}
	out.Bsize = sf.BlockSize
	out.Blocks = sf.Blocks
	out.Bfree = sf.BlocksFree
	out.Bavail = sf.BlocksFree
	out.Files = sf.Files
	out.Ffree = sf.FilesFree
	return 0
}

// fileHandle adapts an open backendhost handle to fs.FileHandle's
// Read/Write/Release/Fsync surface.
type fileHandle struct {
	contract backendhost.Contract
	handle   uint64
}

var (
	_ fs.FileReader   = (*fileHandle)(nil)
	_ fs.FileWriter   = (*fileHandle)(nil)
	_ fs.FileReleaser = (*fileHandle)(nil)
	_ fs.FileFsyncer  = (*fileHandle)(nil)
)

func (h *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	n, err := h.contract.Read(ctx, h.handle, off, dest)
	if err != nil {
		return nil, errnoFor(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (h *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	n, err := h.contract.Write(ctx, h.handle, off, data)
	if err != nil {
		return 0, errnoFor(err)
	}
	return uint32(n), 0
}

func (h *fileHandle) Release(ctx context.Context) syscall.Errno {
	return errnoFor(h.contract.Release(ctx, h.handle))
}

func (h *fileHandle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	return errnoFor(h.contract.Fsync(ctx, h.handle))
}

// Mount starts serving contract as a FUSE filesystem at mountpoint,
// blocking until the mount is visible to the OS (matching the reference
// mount() call's blocking contract), and returns the live *fuse.Server.
func Mount(mountpoint string, contract backendhost.Contract, fsName string) (*fuse.Server, error) {
	root := &node{contract: contract, path: "/"}
	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			FsName:        fsName,
			Name:          "cryptovault",
			DisableXAttrs: true,
		},
		EntryTimeout: durationPtr(time.Second),
		AttrTimeout:  durationPtr(time.Second),
	}
	server, err := fs.Mount(mountpoint, root, opts)
	if err != nil {
		return nil, err
	}
	return server, nil
}

func durationPtr(d time.Duration) *time.Duration { return &d }
