// Package webdavadapter translates backendhost.Contract calls into
// golang.org/x/net/webdav's FileSystem/File interfaces, the same WebDAV
// library already required by the teacher's own dependency graph.
package webdavadapter

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"time"

	"golang.org/x/net/webdav"

	"github.com/cryptovault/cryptovault/backendhost"
)

// FileSystem adapts a Contract to webdav.FileSystem.
type FileSystem struct {
	contract backendhost.Contract
}

var _ webdav.FileSystem = (*FileSystem)(nil)

// New wraps contract as a webdav.FileSystem ready to hand to webdav.Handler.
func New(contract backendhost.Contract) *FileSystem {
	return &FileSystem{contract: contract}
}

func httpStatusFor(err error) error {
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

func (f *FileSystem) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	return httpStatusFor(f.contract.Mkdir(ctx, name))
}

func (f *FileSystem) RemoveAll(ctx context.Context, name string) error {
	attr, err := f.contract.Getattr(ctx, name)
	if err != nil {
		return httpStatusFor(err)
	}
	if attr.IsDir {
		return httpStatusFor(f.contract.Rmdir(ctx, name))
	}
	return httpStatusFor(f.contract.Unlink(ctx, name))
}

func (f *FileSystem) Rename(ctx context.Context, oldName, newName string) error {
	return httpStatusFor(f.contract.Rename(ctx, oldName, newName))
}

func (f *FileSystem) Stat(ctx context.Context, name string) (fs.FileInfo, error) {
	attr, err := f.contract.Getattr(ctx, name)
	if err != nil {
		return nil, httpStatusFor(err)
	}
	return fileInfo{name: name, attr: attr}, nil
}

func (f *FileSystem) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	if flag&os.O_CREATE != 0 {
		attr, err := f.contract.Getattr(ctx, name)
		if err == nil && !attr.IsDir {
			if flag&os.O_EXCL != 0 {
				return nil, os.ErrExist
			}
		}
		if err != nil {
			h, cerr := f.contract.Create(ctx, name)
			if cerr != nil {
				return nil, httpStatusFor(cerr)
			}
			return &file{contract: f.contract, path: name, handle: h}, nil
		}
	}

	attr, err := f.contract.Getattr(ctx, name)
	if err != nil {
		return nil, httpStatusFor(err)
	}
	if attr.IsDir {
		return &dirFile{contract: f.contract, path: name}, nil
	}

	h, err := f.contract.Open(ctx, name)
	if err != nil {
		return nil, httpStatusFor(err)
	}
	return &file{contract: f.contract, path: name, handle: h}, nil
}

// fileInfo adapts backendhost.Attr to fs.FileInfo.
type fileInfo struct {
	name string
	attr backendhost.Attr
}

func (i fileInfo) Name() string       { return i.name }
func (i fileInfo) Size() int64        { return i.attr.Size }
func (i fileInfo) ModTime() time.Time { return i.attr.ModTime }
func (i fileInfo) IsDir() bool        { return i.attr.IsDir }
func (i fileInfo) Sys() any           { return nil }
func (i fileInfo) Mode() fs.FileMode {
	switch {
	case i.attr.IsDir:
		return fs.ModeDir | 0o700
	case i.attr.IsLink:
		return fs.ModeSymlink | 0o700
	default:
		return 0o600
	}
}

// file implements webdav.File for a regular file, tracking a running
// offset since Contract's Read/Write are positional, not stream-based.
type file struct {
	contract backendhost.Contract
	path     string
	handle   uint64
	offset   int64
}

var _ webdav.File = (*file)(nil)

func (f *file) Read(p []byte) (int, error) {
	n, err := f.contract.Read(context.Background(), f.handle, f.offset, p)
	f.offset += int64(n)
	if err != nil {
		return n, httpStatusFor(err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (f *file) Write(p []byte) (int, error) {
	n, err := f.contract.Write(context.Background(), f.handle, f.offset, p)
	f.offset += int64(n)
	if err != nil {
		return n, httpStatusFor(err)
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
			return 0, httpStatusFor(err)
		}
		f.offset = attr.Size + offset
	}
	return f.offset, nil
}

func (f *file) Close() error {
	return httpStatusFor(f.contract.Release(context.Background(), f.handle))
}

func (f *file) Stat() (fs.FileInfo, error) {
	attr, err := f.contract.Getattr(context.Background(), f.path)
	if err != nil {
		return nil, httpStatusFor(err)
	}
	return fileInfo{name: f.path, attr: attr}, nil
}

func (f *file) Readdir(count int) ([]fs.FileInfo, error) {
	return nil, errors.New("webdavadapter: not a directory")
}

// dirFile implements webdav.File for a directory handle: no read/write,
// just Readdir and Stat.
type dirFile struct {
	contract backendhost.Contract
	path     string
}

var _ webdav.File = (*dirFile)(nil)

func (d *dirFile) Read(p []byte) (int, error)  { return 0, errors.New("webdavadapter: is a directory") }
func (d *dirFile) Write(p []byte) (int, error) { return 0, errors.New("webdavadapter: is a directory") }
func (d *dirFile) Seek(offset int64, whence int) (int64, error) {
	return 0, errors.New("webdavadapter: is a directory")
}
func (d *dirFile) Close() error { return nil }

func (d *dirFile) Stat() (fs.FileInfo, error) {
	attr, err := d.contract.Getattr(context.Background(), d.path)
	if err != nil {
		return nil, httpStatusFor(err)
	}
	return fileInfo{name: d.path, attr: attr}, nil
}

func (d *dirFile) Readdir(count int) ([]fs.FileInfo, error) {
	entries, err := d.contract.Readdir(context.Background(), d.path)
	if err != nil {
		return nil, httpStatusFor(err)
	}
	out := make([]fs.FileInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, fileInfo{name: e.Name, attr: e.Attr})
	}
	return out, nil
}

// NewHandler builds a ready-to-serve webdav.Handler over contract, the
// thinnest possible binding since golang.org/x/net/webdav already does
// all of the protocol work.
func NewHandler(prefix string, contract backendhost.Contract) http.Handler {
	return &webdav.Handler{
		Prefix:     prefix,
		FileSystem: New(contract),
		LockSystem: webdav.NewMemLS(),
	}
}
