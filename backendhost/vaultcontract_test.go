package backendhost

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptovault/cryptovault/mountrt"
	"github.com/cryptovault/cryptovault/vault"
	"github.com/cryptovault/cryptovault/vaultfs"
)

func newTestContract(t *testing.T) *VaultContract {
	t.Helper()
	storage, err := vaultfs.NewMemStorage()
	require.NoError(t, err)
	f, err := vaultfs.Create(context.Background(), storage, "test-passphrase")
	require.NoError(t, err)
	cache := mountrt.NewAsyncCache[Attr](time.Minute, time.Minute)
	return NewVaultContract(f, cache, 5*time.Second, &mountrt.Stats{})
}

func TestVaultContractCreateWriteReadRelease(t *testing.T) {
	ctx := context.Background()
	c := newTestContract(t)

	h, err := c.Create(ctx, "/a.txt")
	require.NoError(t, err)

	n, err := c.Write(ctx, h, 0, []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	require.NoError(t, c.Release(ctx, h))

	attr, err := c.Getattr(ctx, "/a.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 11, attr.Size)

	h2, err := c.Open(ctx, "/a.txt")
	require.NoError(t, err)
	buf := make([]byte, 11)
	n, err = c.Read(ctx, h2, 0, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(buf[:n]))
	require.NoError(t, c.Release(ctx, h2))
}

func TestVaultContractLookupMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	c := newTestContract(t)

	_, err := c.Lookup(ctx, "/nope.txt")
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CategoryNotFound, cerr.Category)
}

func TestVaultContractLookupCachesNegativeEntry(t *testing.T) {
	ctx := context.Background()
	c := newTestContract(t)

	_, err1 := c.Lookup(ctx, "/nope.txt")
	require.Error(t, err1)
	_, err2 := c.Lookup(ctx, "/nope.txt")
	require.Error(t, err2)

	var cerr *Error
	require.ErrorAs(t, err2, &cerr)
	assert.Equal(t, CategoryNotFound, cerr.Category)
}

func TestVaultContractMkdirReaddirRmdir(t *testing.T) {
	ctx := context.Background()
	c := newTestContract(t)

	require.NoError(t, c.Mkdir(ctx, "/dir"))
	entries, err := c.Readdir(ctx, "/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dir", entries[0].Name)
	assert.True(t, entries[0].Attr.IsDir)

	require.NoError(t, c.Rmdir(ctx, "/dir"))
	entries, err = c.Readdir(ctx, "/")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestVaultContractRenameInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	c := newTestContract(t)

	h, err := c.Create(ctx, "/old.txt")
	require.NoError(t, err)
	_, err = c.Write(ctx, h, 0, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, c.Release(ctx, h))

	require.NoError(t, c.Rename(ctx, "/old.txt", "/new.txt"))

	_, err = c.Lookup(ctx, "/old.txt")
	require.Error(t, err)

	attr, err := c.Lookup(ctx, "/new.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 1, attr.Size)
}

func TestVaultContractSymlink(t *testing.T) {
	ctx := context.Background()
	c := newTestContract(t)

	require.NoError(t, c.Symlink(ctx, "/link", "/somewhere"))
	target, err := c.Readlink(ctx, "/link")
	require.NoError(t, err)
	assert.Equal(t, "/somewhere", target)
}

func TestVaultContractSetattrTruncates(t *testing.T) {
	ctx := context.Background()
	c := newTestContract(t)

	h, err := c.Create(ctx, "/f.txt")
	require.NoError(t, err)
	_, err = c.Write(ctx, h, 0, []byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, c.Release(ctx, h))

	size := int64(4)
	require.NoError(t, c.Setattr(ctx, "/f.txt", &size))

	attr, err := c.Getattr(ctx, "/f.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 4, attr.Size)
}

func TestVaultContractStatfs(t *testing.T) {
	ctx := context.Background()
	c := newTestContract(t)

	sf, err := c.Statfs(ctx)
	require.NoError(t, err)
	assert.NotZero(t, sf.BlockSize)
}

func TestVaultContractSecondWritableOpenOnSamePathRefused(t *testing.T) {
	ctx := context.Background()
	c := newTestContract(t)

	h, err := c.Create(ctx, "/shared.txt")
	require.NoError(t, err)

	_, err = c.Open(ctx, "/shared.txt")
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CategoryAlreadyExists, cerr.Category)

	_, err = c.Create(ctx, "/shared.txt")
	require.Error(t, err)
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CategoryAlreadyExists, cerr.Category)

	require.NoError(t, c.Release(ctx, h))

	h2, err := c.Open(ctx, "/shared.txt")
	require.NoError(t, err, "path should be openable again once the first handle is released")
	require.NoError(t, c.Release(ctx, h2))
}

func TestVaultContractUnlinkRefusesDirectory(t *testing.T) {
	ctx := context.Background()
	c := newTestContract(t)

	require.NoError(t, c.Mkdir(ctx, "/d"))
	err := c.Unlink(ctx, "/d")
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CategoryIsDirectory, cerr.Category)
	assert.ErrorIs(t, err, vault.ErrIsDirectory)
}
