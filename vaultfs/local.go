package vaultfs

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	vaulterr "github.com/cryptovault/cryptovault/vault"
)

// LocalStorage implements Storage directly over a host directory tree,
// grounded on rclone's own backend/local: no remote round trip, bare
// os.* calls, errors translated to the vault error taxonomy at the edge.
type LocalStorage struct {
	root string
}

// NewLocalStorage returns a Storage rooted at dir. dir must already exist.
func NewLocalStorage(dir string) *LocalStorage {
	return &LocalStorage{root: filepath.Clean(dir)}
}

func (l *LocalStorage) abs(path string) string {
	return filepath.Join(l.root, filepath.FromSlash(strings.TrimPrefix(path, "/")))
}

func translateErr(err error) error {
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

func (l *LocalStorage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(l.abs(path))
	return f, translateErr(err)
}

func (l *LocalStorage) OpenRange(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	f, err := os.Open(l.abs(path))
	if err != nil {
		return nil, translateErr(err)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}

func (l *LocalStorage) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	f, err := os.OpenFile(l.abs(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	return f, translateErr(err)
}

func (l *LocalStorage) WriteFile(ctx context.Context, path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(l.abs(path)), ".vaultfs-tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), l.abs(path))
}

func (l *LocalStorage) Stat(ctx context.Context, path string) (RawDirEntry, error) {
	fi, err := os.Lstat(l.abs(path))
	if err != nil {
		return RawDirEntry{}, translateErr(err)
	}
	return entryFromFileInfo(filepath.Base(path), fi), nil
}

func (l *LocalStorage) List(ctx context.Context, path string) ([]RawDirEntry, error) {
	dirEntries, err := os.ReadDir(l.abs(path))
	if err != nil {
		return nil, translateErr(err)
	}
	out := make([]RawDirEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		fi, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, entryFromFileInfo(de.Name(), fi))
	}
	return out, nil
}

func entryFromFileInfo(name string, fi fs.FileInfo) RawDirEntry {
	kind := KindFile
	switch {
	case fi.IsDir():
		kind = KindDir
	case fi.Mode()&os.ModeSymlink != 0:
		kind = KindSymlink
	}
	return RawDirEntry{
		CiphertextName: name,
		Kind:           kind,
		Size:           fi.Size(),
		ModTime:        fi.ModTime(),
	}
}

func (l *LocalStorage) Mkdir(ctx context.Context, path string) error {
	return translateErr(os.Mkdir(l.abs(path), 0o700))
}

func (l *LocalStorage) MkdirAll(ctx context.Context, path string) error {
	return os.MkdirAll(l.abs(path), 0o700)
}

func (l *LocalStorage) Remove(ctx context.Context, path string) error {
	return translateErr(os.Remove(l.abs(path)))
}

func (l *LocalStorage) RemoveDir(ctx context.Context, path string) error {
	entries, err := os.ReadDir(l.abs(path))
	if err != nil {
		return translateErr(err)
	}
	if len(entries) > 0 {
		return vaulterr.ErrNotEmpty
	}
	return translateErr(os.Remove(l.abs(path)))
}

func (l *LocalStorage) RemoveAll(ctx context.Context, path string) error {
	return os.RemoveAll(l.abs(path))
}

func (l *LocalStorage) Rename(ctx context.Context, src, dst string) error {
	return translateErr(os.Rename(l.abs(src), l.abs(dst)))
}
