package vaultfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/absfs/absfs"
	"github.com/absfs/memfs"

	vaulterr "github.com/cryptovault/cryptovault/vault"
)

// MemStorage implements Storage over an in-memory absfs.FileSystem, the way
// the teacher pack's filesystem-wrapping tests use memfs as a base.Filer
// fixture instead of touching the host disk. Test-only: it exists so the
// fs package can be exercised without a real directory tree. Its WriteFile
// writes the file in place rather than through a temp file and rename, so
// it is not atomic.
type MemStorage struct {
	fs absfs.FileSystem
}

// NewMemStorage returns a Storage backed by a fresh in-memory filesystem.
func NewMemStorage() (*MemStorage, error) {
	fs, err := memfs.NewFS()
	if err != nil {
		return nil, fmt.Errorf("creating memfs: %w", err)
	}
	return &MemStorage{fs: fs}, nil
}

func (m *MemStorage) abs(path string) string {
	return "/" + strings.TrimPrefix(filepath.Clean("/"+path), "/")
}

func (m *MemStorage) translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case os.IsNotExist(err):
		return fmt.Errorf("%w: %v", vaulterr.ErrNotFound, err)
	case os.IsExist(err):
		return fmt.Errorf("%w: %v", vaulterr.ErrExist, err)
	default:
		return err
	}
}

func (m *MemStorage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := m.fs.OpenFile(m.abs(path), os.O_RDONLY, 0)
	if err != nil {
		return nil, m.translateErr(err)
	}
	return f, nil
}

func (m *MemStorage) OpenRange(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	f, err := m.fs.OpenFile(m.abs(path), os.O_RDONLY, 0)
	if err != nil {
		return nil, m.translateErr(err)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}

func (m *MemStorage) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	f, err := m.fs.OpenFile(m.abs(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, m.translateErr(err)
	}
	return f, nil
}

func (m *MemStorage) WriteFile(ctx context.Context, path string, content []byte) error {
	f, err := m.fs.OpenFile(m.abs(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return m.translateErr(err)
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (m *MemStorage) Stat(ctx context.Context, path string) (RawDirEntry, error) {
	fi, err := m.fs.Stat(m.abs(path))
	if err != nil {
		return RawDirEntry{}, m.translateErr(err)
	}
	return entryFromFileInfo(filepath.Base(path), fi), nil
}

func (m *MemStorage) List(ctx context.Context, path string) ([]RawDirEntry, error) {
	f, err := m.fs.OpenFile(m.abs(path), os.O_RDONLY, 0)
	if err != nil {
		return nil, m.translateErr(err)
	}
	defer f.Close()

	infos, err := f.Readdir(-1)
	if err != nil {
		return nil, err
	}
	out := make([]RawDirEntry, 0, len(infos))
	for _, fi := range infos {
		out = append(out, entryFromFileInfo(fi.Name(), fi))
	}
	return out, nil
}

func (m *MemStorage) Mkdir(ctx context.Context, path string) error {
	return m.translateErr(m.fs.Mkdir(m.abs(path), 0o700))
}

func (m *MemStorage) MkdirAll(ctx context.Context, path string) error {
	return m.translateErr(m.fs.MkdirAll(m.abs(path), 0o700))
}

func (m *MemStorage) Remove(ctx context.Context, path string) error {
	return m.translateErr(m.fs.Remove(m.abs(path)))
}

func (m *MemStorage) RemoveDir(ctx context.Context, path string) error {
	f, err := m.fs.OpenFile(m.abs(path), os.O_RDONLY, 0)
	if err != nil {
		return m.translateErr(err)
	}
	names, err := f.Readdirnames(-1)
	_ = f.Close()
	if err != nil {
		return err
	}
	if len(names) > 0 {
		return vaulterr.ErrNotEmpty
	}
	return m.translateErr(m.fs.Remove(m.abs(path)))
}

func (m *MemStorage) RemoveAll(ctx context.Context, path string) error {
	return m.translateErr(m.fs.RemoveAll(m.abs(path)))
}

func (m *MemStorage) Rename(ctx context.Context, src, dst string) error {
	return m.translateErr(m.fs.Rename(m.abs(src), m.abs(dst)))
}
