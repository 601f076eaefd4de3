package backendhost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/cryptovault/cryptovault/mountrt"
	"github.com/cryptovault/cryptovault/vault"
	"github.com/cryptovault/cryptovault/vaultfs"
)

var _ Contract = (*VaultContract)(nil)

// openHandle is what VaultContract keeps alive across Open/Read/Write/
// Release: the plaintext path, a write buffer seeded lazily from the
// current content, and whether that seeding has happened yet.
type openHandle struct {
	path   string
	buf    *mountrt.WriteBuffer
	seeded bool
}

// VaultContract is the one concrete Contract: a vaultfs.Fs plus the
// metadata cache, handle table and stats every backend otherwise would
// have had to reimplement. Random-access writes are buffered in memory per
// handle and flushed as a single sequential vaultfs.WriteFile on
// Release/Fsync, since the vault content stream is write-once/sequential.
type VaultContract struct {
	fs      *vaultfs.Fs
	cache   *mountrt.AsyncCache[Attr]
	handles *mountrt.HandleTable[*openHandle]
	timeout *mountrt.TimeoutFS
	stats   *mountrt.Stats

	openMu   sync.Mutex
	openPath map[string]struct{}
}

// NewVaultContract wraps fs with the given attribute cache (a
// mountrt.NewAsyncCache whose TTLs the caller picks for the backing
// Storage) and a per-call I/O deadline.
func NewVaultContract(fs *vaultfs.Fs, cache *mountrt.AsyncCache[Attr], ioTimeout time.Duration, stats *mountrt.Stats) *VaultContract {
	return &VaultContract{
		fs:       fs,
		cache:    cache,
		handles:  mountrt.NewHandleTable[*openHandle](),
		timeout:  mountrt.NewTimeoutFS(ioTimeout),
		stats:    stats,
		openPath: make(map[string]struct{}),
	}
}

// acquireWritable registers p as having a live writable handle, refusing a
// second concurrent opener for the same path: the vault content stream is
// write-once/sequential, so two handles buffering independent writes to the
// same path would silently clobber one another on flush.
func (c *VaultContract) acquireWritable(p string) error {
	c.openMu.Lock()
	defer c.openMu.Unlock()
	if _, busy := c.openPath[p]; busy {
		return fmt.Errorf("%w: %s already open for writing", vault.ErrExist, p)
	}
	c.openPath[p] = struct{}{}
	return nil
}

func (c *VaultContract) releaseWritable(p string) {
	c.openMu.Lock()
	defer c.openMu.Unlock()
	delete(c.openPath, p)
}

func toAttr(e vaultfs.Entry) Attr {
	return Attr{Size: e.Size, IsDir: e.Kind == vaultfs.KindDir, IsLink: e.Kind == vaultfs.KindSymlink}
}

func toCategory(err error) Category {
	switch {
	case err == nil:
		return CategoryNone
	case errors.Is(err, vault.ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, vault.ErrExist):
		return CategoryAlreadyExists
	case errors.Is(err, vault.ErrNotEmpty):
		return CategoryNotEmpty
	case errors.Is(err, vault.ErrIsDirectory):
		return CategoryIsDirectory
	case errors.Is(err, vault.ErrNotDirectory):
		return CategoryNotDirectory
	case errors.Is(err, vault.ErrInvalidArgument):
		return CategoryInvalidArgument
	case errors.Is(err, vault.ErrNotSupported):
		return CategoryNotSupported
	case errors.Is(err, vault.ErrTimedOut):
		return CategoryTimedOut
	case errors.Is(err, vault.ErrAuthenticationFailed), errors.Is(err, vault.ErrIntegrityViolation):
		return CategoryPermissionDenied
	default:
		return CategoryIOError
	}
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Category: toCategory(err), Err: err}
}

func (c *VaultContract) Lookup(ctx context.Context, p string) (Attr, error) {
	c.stats.OpsLookup.Add(1)
	a, err := c.cache.GetOrCompute(p, func(err error) bool { return errors.Is(err, vault.ErrNotFound) }, func() (Attr, error) {
		e, err := c.fs.Stat(ctx, p)
		if err != nil {
			return Attr{}, err
		}
		return toAttr(e), nil
	})
	if errors.Is(err, mountrt.ErrCachedNotFound) {
		return Attr{}, wrapErr(vault.ErrNotFound)
	}
	return a, wrapErr(err)
}

func (c *VaultContract) Getattr(ctx context.Context, p string) (Attr, error) {
	return c.Lookup(ctx, p)
}

func (c *VaultContract) Readdir(ctx context.Context, p string) ([]DirEntry, error) {
	entries, err := c.fs.List(ctx, p)
	if err != nil {
		return nil, wrapErr(err)
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirEntry{Name: e.Name, Attr: toAttr(e)})
	}
	return out, nil
}

func (c *VaultContract) Open(ctx context.Context, p string) (uint64, error) {
	if _, err := c.fs.Stat(ctx, p); err != nil {
		return 0, wrapErr(err)
	}
	if err := c.acquireWritable(p); err != nil {
		return 0, wrapErr(err)
	}
	return c.handles.Put(&openHandle{path: p}), nil
}

func (c *VaultContract) Create(ctx context.Context, p string) (uint64, error) {
	if err := c.acquireWritable(p); err != nil {
		return 0, wrapErr(err)
	}
	if err := c.fs.WriteFile(ctx, p, emptyReader{}); err != nil {
		c.releaseWritable(p)
		return 0, wrapErr(err)
	}
	c.cache.Invalidate(p)
	c.cache.Invalidate(path.Dir(p))
	return c.handles.Put(&openHandle{path: p, buf: mountrt.NewWriteBuffer(nil), seeded: true}), nil
}

func (c *VaultContract) ensureSeeded(ctx context.Context, h *openHandle) error {
	if h.seeded {
		return nil
	}
	r, err := c.fs.ReadFile(ctx, h.path)
	if err != nil {
		return err
	}
	defer r.Close()
	content, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	h.buf = mountrt.NewWriteBuffer(content)
	h.seeded = true
	return nil
}

func (c *VaultContract) Read(ctx context.Context, handle uint64, offset int64, p []byte) (int, error) {
	h, ok := c.handles.Get(handle)
	if !ok {
		return 0, wrapErr(fmt.Errorf("%w: stale handle", vault.ErrNotFound))
	}
	var n int
	err := c.timeout.Do(ctx, "read", func(ctx context.Context) error {
		if err := c.ensureSeeded(ctx, h); err != nil {
			return err
		}
		var rerr error
		n, rerr = h.buf.Read(offset, p)
		return rerr
	})
	if err != nil {
		return 0, wrapErr(err)
	}
	c.stats.OpsRead.Add(1)
	c.stats.BytesRead.Add(uint64(n))
	return n, nil
}

func (c *VaultContract) Write(ctx context.Context, handle uint64, offset int64, p []byte) (int, error) {
	h, ok := c.handles.Get(handle)
	if !ok {
		return 0, wrapErr(fmt.Errorf("%w: stale handle", vault.ErrNotFound))
	}
	if err := c.ensureSeeded(ctx, h); err != nil {
		return 0, wrapErr(err)
	}
	n, err := h.buf.Write(offset, p)
	if err != nil {
		return 0, wrapErr(err)
	}
	c.stats.OpsWrite.Add(1)
	c.stats.BytesWritten.Add(uint64(n))
	return n, nil
}

// flush writes a dirty handle's buffer back as a single sequential
// vaultfs.WriteFile call.
func (c *VaultContract) flush(ctx context.Context, h *openHandle) error {
	if h.buf == nil || !h.buf.Dirty() {
		return nil
	}
	return c.timeout.Do(ctx, "write", func(ctx context.Context) error {
		if err := c.fs.WriteFile(ctx, h.path, bytesReaderOf(h.buf.Bytes())); err != nil {
			return err
		}
		h.buf.MarkFlushed()
		c.cache.Invalidate(h.path)
		return nil
	})
}

func (c *VaultContract) Mkdir(ctx context.Context, p string) error {
	err := c.fs.Mkdir(ctx, p)
	c.cache.Invalidate(p)
	c.cache.Invalidate(path.Dir(p))
	return wrapErr(err)
}

func (c *VaultContract) Unlink(ctx context.Context, p string) error {
	err := c.fs.Remove(ctx, p)
	c.cache.Invalidate(p)
	c.cache.Invalidate(path.Dir(p))
	return wrapErr(err)
}

func (c *VaultContract) Rmdir(ctx context.Context, p string) error {
	err := c.fs.Rmdir(ctx, p)
	c.cache.InvalidatePrefix(p)
	c.cache.Invalidate(path.Dir(p))
	return wrapErr(err)
}

func (c *VaultContract) Rename(ctx context.Context, oldPath, newPath string) error {
	err := c.fs.Rename(ctx, oldPath, newPath)
	c.cache.InvalidatePrefix(oldPath)
	c.cache.InvalidatePrefix(newPath)
	c.cache.Invalidate(path.Dir(oldPath))
	c.cache.Invalidate(path.Dir(newPath))
	return wrapErr(err)
}

func (c *VaultContract) Symlink(ctx context.Context, p, target string) error {
	err := c.fs.Symlink(ctx, p, target)
	c.cache.Invalidate(p)
	c.cache.Invalidate(path.Dir(p))
	return wrapErr(err)
}

func (c *VaultContract) Readlink(ctx context.Context, p string) (string, error) {
	target, err := c.fs.Readlink(ctx, p)
	return target, wrapErr(err)
}

func (c *VaultContract) Setattr(ctx context.Context, p string, size *int64) error {
	if size == nil {
		return nil
	}
	r, err := c.fs.ReadFile(ctx, p)
	if err != nil {
		return wrapErr(err)
	}
	content, err := io.ReadAll(r)
	_ = r.Close()
	if err != nil {
		return wrapErr(err)
	}
	if *size <= int64(len(content)) {
		content = content[:*size]
	} else {
		grown := make([]byte, *size)
		copy(grown, content)
		content = grown
	}
	if err := c.fs.WriteFile(ctx, p, bytesReaderOf(content)); err != nil {
		return wrapErr(err)
	}
	c.cache.Invalidate(p)
	return nil
}

func (c *VaultContract) Release(ctx context.Context, handle uint64) error {
	h, ok := c.handles.Get(handle)
	if !ok {
		return nil
	}
	err := c.flush(ctx, h)
	c.handles.Delete(handle)
	c.releaseWritable(h.path)
	return wrapErr(err)
}

func (c *VaultContract) Fsync(ctx context.Context, handle uint64) error {
	h, ok := c.handles.Get(handle)
	if !ok {
		return nil
	}
	return wrapErr(c.flush(ctx, h))
}

func (c *VaultContract) Statfs(ctx context.Context) (Statfs, error) {
	// The vault has no notion of device free space; report a large fixed
	// size so clients don't refuse writes on a spurious low-space check.
	return Statfs{
		BlockSize:  4096,
		Blocks:     1 << 30,
		BlocksFree: 1 << 30,
		Files:      1 << 30,
		FilesFree:  1 << 30,
	}, nil
}

type emptyReader struct{}

func (emptyReader) Read(p []byte) (int, error) { return 0, io.EOF }

type bytesReader struct{ b []byte }

func bytesReaderOf(b []byte) *bytesReader { return &bytesReader{b: b} }

func (r *bytesReader) Read(p []byte) (int, error) {
	if len(r.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.b)
	r.b = r.b[n:]
	return n, nil
}
