package fuseadapter

import (
	"syscall"
	"testing"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"

	"github.com/cryptovault/cryptovault/backendhost"
)

func TestErrnoForMapsEveryCategory(t *testing.T) {
	cases := []struct {
		category backendhost.Category
		want     syscall.Errno
	}{
		{backendhost.CategoryNotFound, syscall.ENOENT},
		{backendhost.CategoryAlreadyExists, syscall.EEXIST},
		{backendhost.CategoryNotEmpty, syscall.ENOTEMPTY},
		{backendhost.CategoryIsDirectory, syscall.EISDIR},
		{backendhost.CategoryNotDirectory, syscall.ENOTDIR},
		{backendhost.CategoryInvalidArgument, syscall.EINVAL},
		{backendhost.CategoryPermissionDenied, syscall.EACCES},
		{backendhost.CategoryNotSupported, syscall.ENOTSUP},
		{backendhost.CategoryTimedOut, syscall.ETIMEDOUT},
		{backendhost.CategoryIOError, syscall.EIO},
	}
	for _, tc := range cases {
		err := &backendhost.Error{Category: tc.category, Err: assert.AnError}
		assert.Equal(t, tc.want, errnoFor(err), "category %v", tc.category)
	}
}

func TestErrnoForNilIsZero(t *testing.T) {
	assert.Equal(t, syscall.Errno(0), errnoFor(nil))
}

func TestErrnoForUnwrappedErrorDefaultsToIO(t *testing.T) {
	assert.Equal(t, syscall.EIO, errnoFor(assert.AnError))
}

func TestToFuseAttrSetsModeBySingleKind(t *testing.T) {
	now := time.Now()

	var dir fuse.Attr
	toFuseAttr(backendhost.Attr{IsDir: true, ModTime: now}, &dir)
	assert.EqualValues(t, fuse.S_IFDIR, dir.Mode&fuse.S_IFDIR)

	var link fuse.Attr
	toFuseAttr(backendhost.Attr{IsLink: true, ModTime: now}, &link)
	assert.EqualValues(t, fuse.S_IFLNK, link.Mode&fuse.S_IFLNK)

	var file fuse.Attr
	toFuseAttr(backendhost.Attr{Size: 42, ModTime: now}, &file)
	assert.EqualValues(t, 42, file.Size)
	assert.EqualValues(t, fuse.S_IFREG, file.Mode&fuse.S_IFREG)
}
