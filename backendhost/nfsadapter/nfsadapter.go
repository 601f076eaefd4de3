// Package nfsadapter translates backendhost.Contract calls into a
// billy.Filesystem, the interface github.com/willscott/go-nfs expects its
// exported tree to implement, so a vault can be served as a loopback
// NFSv3 export.
package nfsadapter

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path"
	"time"

	billy "github.com/go-git/go-billy/v5"
	nfs "github.com/willscott/go-nfs"
	nfshelper "github.com/willscott/go-nfs/helpers"

	"github.com/cryptovault/cryptovault/backendhost"
)

// FileSystem adapts a Contract to billy.Filesystem.
type FileSystem struct {
	contract backendhost.Contract
}

var _ billy.Filesystem = (*FileSystem)(nil)

// New wraps contract as a billy.Filesystem ready to hand to an NFS handler.
func New(contract backendhost.Contract) *FileSystem {
	return &FileSystem{contract: contract}
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var cerr *backendhost.Error
	if !errors.As(err, &cerr) {
		return err
	}
	switch cerr.Category {
	case backendhost.CategoryNotFound:
		return os.ErrNotExist
	case backendhost.CategoryAlreadyExists:
		return os.ErrExist
	case backendhost.CategoryPermissionDenied:
		return os.ErrPermission
	default:
		return err
	}
}

func (f *FileSystem) Create(filename string) (billy.File, error) {
	h, err := f.contract.Create(context.Background(), filename)
	if err != nil {
		return nil, translate(err)
	}
	return &file{contract: f.contract, path: filename, handle: h}, nil
}

func (f *FileSystem) Open(filename string) (billy.File, error) {
	return f.OpenFile(filename, os.O_RDONLY, 0)
}

func (f *FileSystem) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	ctx := context.Background()
	if flag&os.O_CREATE != 0 {
		if _, err := f.contract.Getattr(ctx, filename); err != nil {
			return f.Create(filename)
		}
		if flag&os.O_EXCL != 0 {
			return nil, os.ErrExist
		}
	}
	h, err := f.contract.Open(ctx, filename)
	if err != nil {
		return nil, translate(err)
	}
	if flag&os.O_TRUNC != 0 {
		zero := int64(0)
		if err := f.contract.Setattr(ctx, filename, &zero); err != nil {
			return nil, translate(err)
		}
	}
	ff := &file{contract: f.contract, path: filename, handle: h}
	if flag&os.O_APPEND != 0 {
		attr, err := f.contract.Getattr(ctx, filename)
		if err == nil {
			ff.offset = attr.Size
		}
	}
	return ff, nil
}

func (f *FileSystem) Stat(filename string) (os.FileInfo, error) {
	attr, err := f.contract.Getattr(context.Background(), filename)
	if err != nil {
		return nil, translate(err)
	}
	return fileInfo{name: path.Base(filename), attr: attr}, nil
}

func (f *FileSystem) Rename(oldpath, newpath string) error {
	return translate(f.contract.Rename(context.Background(), oldpath, newpath))
}

func (f *FileSystem) Remove(filename string) error {
	ctx := context.Background()
	attr, err := f.contract.Getattr(ctx, filename)
	if err != nil {
		return translate(err)
	}
	if attr.IsDir {
		return translate(f.contract.Rmdir(ctx, filename))
	}
	return translate(f.contract.Unlink(ctx, filename))
}

func (f *FileSystem) Join(elem ...string) string {
	return path.Join(elem...)
}

func (f *FileSystem) TempFile(dir, prefix string) (billy.File, error) {
	name := path.Join(dir, prefix+randomSuffix())
	return f.Create(name)
}

func (f *FileSystem) ReadDir(p string) ([]os.FileInfo, error) {
	entries, err := f.contract.Readdir(context.Background(), p)
	if err != nil {
		return nil, translate(err)
	}
	out := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, fileInfo{name: e.Name, attr: e.Attr})
	}
	return out, nil
}

func (f *FileSystem) MkdirAll(filename string, perm os.FileMode) error {
	return translate(f.contract.Mkdir(context.Background(), filename))
}

func (f *FileSystem) Symlink(target, link string) error {
	return translate(f.contract.Symlink(context.Background(), link, target))
}

// Lstat is Stat: the vault reports a symlink entry itself rather than its
// target, so there is no link to avoid following.
func (f *FileSystem) Lstat(filename string) (os.FileInfo, error) {
	return f.Stat(filename)
}

func (f *FileSystem) Readlink(link string) (string, error) {
	target, err := f.contract.Readlink(context.Background(), link)
	return target, translate(err)
}

func (f *FileSystem) Chroot(p string) (billy.Filesystem, error) {
	return &FileSystem{contract: chrootContract{base: f.contract, root: p}}, nil
}

func (f *FileSystem) Root() string {
	return "/"
}

func randomSuffix() string {
	return time.Now().Format("150405.000000000")
}

type fileInfo struct {
	name string
	attr backendhost.Attr
}

func (i fileInfo) Name() string       { return i.name }
func (i fileInfo) Size() int64        { return i.attr.Size }
func (i fileInfo) ModTime() time.Time { return i.attr.ModTime }
func (i fileInfo) IsDir() bool        { return i.attr.IsDir }
func (i fileInfo) Sys() any           { return nil }
func (i fileInfo) Mode() os.FileMode {
	switch {
	case i.attr.IsDir:
		return os.ModeDir | 0o700
	case i.attr.IsLink:
		return os.ModeSymlink | 0o700
	default:
		return 0o600
	}
}

// file implements billy.File, tracking a running offset since Contract's
// Read/Write are positional.
type file struct {
	contract backendhost.Contract
	path     string
	handle   uint64
	offset   int64
	closed   bool
}

var _ billy.File = (*file)(nil)

func (f *file) Name() string { return f.path }

func (f *file) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

func (f *file) ReadAt(p []byte, off int64) (int, error) {
	n, err := f.contract.Read(context.Background(), f.handle, off, p)
	if err != nil {
		return n, translate(err)
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (f *file) Write(p []byte) (int, error) {
	n, err := f.contract.Write(context.Background(), f.handle, f.offset, p)
	f.offset += int64(n)
	if err != nil {
		return n, translate(err)
	}
	return n, nil
}

func (f *file) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.offset = offset
	case io.SeekCurrent:
		f.offset += offset
	case io.SeekEnd:
		attr, err := f.contract.Getattr(context.Background(), f.path)
		if err != nil {
			return 0, translate(err)
		}
		f.offset = attr.Size + offset
	}
	return f.offset, nil
}

func (f *file) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return translate(f.contract.Release(context.Background(), f.handle))
}

func (f *file) Lock() error   { return nil }
func (f *file) Unlock() error { return nil }

func (f *file) Truncate(size int64) error {
	return translate(f.contract.Setattr(context.Background(), f.path, &size))
}

// chrootContract rebases every path under root before delegating, giving
// Chroot a working Filesystem without a second contract implementation.
type chrootContract struct {
	base backendhost.Contract
	root string
}

func (c chrootContract) rebase(p string) string { return path.Join(c.root, p) }

func (c chrootContract) Lookup(ctx context.Context, p string) (backendhost.Attr, error) {
	return c.base.Lookup(ctx, c.rebase(p))
}
func (c chrootContract) Getattr(ctx context.Context, p string) (backendhost.Attr, error) {
	return c.base.Getattr(ctx, c.rebase(p))
}
func (c chrootContract) Readdir(ctx context.Context, p string) ([]backendhost.DirEntry, error) {
	return c.base.Readdir(ctx, c.rebase(p))
}
func (c chrootContract) Open(ctx context.Context, p string) (uint64, error) {
	return c.base.Open(ctx, c.rebase(p))
}
func (c chrootContract) Read(ctx context.Context, h uint64, off int64, p []byte) (int, error) {
	return c.base.Read(ctx, h, off, p)
}
func (c chrootContract) Write(ctx context.Context, h uint64, off int64, p []byte) (int, error) {
	return c.base.Write(ctx, h, off, p)
}
func (c chrootContract) Create(ctx context.Context, p string) (uint64, error) {
	return c.base.Create(ctx, c.rebase(p))
}
func (c chrootContract) Mkdir(ctx context.Context, p string) error {
	return c.base.Mkdir(ctx, c.rebase(p))
}
func (c chrootContract) Unlink(ctx context.Context, p string) error {
	return c.base.Unlink(ctx, c.rebase(p))
}
func (c chrootContract) Rmdir(ctx context.Context, p string) error {
	return c.base.Rmdir(ctx, c.rebase(p))
}
func (c chrootContract) Rename(ctx context.Context, oldPath, newPath string) error {
	return c.base.Rename(ctx, c.rebase(oldPath), c.rebase(newPath))
}
func (c chrootContract) Symlink(ctx context.Context, p, target string) error {
	return c.base.Symlink(ctx, c.rebase(p), target)
}
func (c chrootContract) Readlink(ctx context.Context, p string) (string, error) {
	return c.base.Readlink(ctx, c.rebase(p))
}
func (c chrootContract) Setattr(ctx context.Context, p string, size *int64) error {
	return c.base.Setattr(ctx, c.rebase(p), size)
}
func (c chrootContract) Release(ctx context.Context, h uint64) error {
	return c.base.Release(ctx, h)
}
func (c chrootContract) Fsync(ctx context.Context, h uint64) error {
	return c.base.Fsync(ctx, h)
}
func (c chrootContract) Statfs(ctx context.Context) (backendhost.Statfs, error) {
	return c.base.Statfs(ctx)
}

// Serve starts a loopback NFSv3 server over contract on listener, blocking
// until the listener is closed or an unrecoverable error occurs. go-nfs's
// caching handler amortizes the repeated file-handle lookups NFSv3's
// stateless protocol otherwise forces on every request.
func Serve(listener net.Listener, contract backendhost.Contract) error {
	handler := nfshelper.NewNullAuthHandler(New(contract))
	cached := nfshelper.NewCachingHandler(handler, 1024)
	return nfs.Serve(listener, cached)
}
