package webdavadapter

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cryptovault/cryptovault/backendhost"
)

func TestHTTPStatusForMapsKnownCategories(t *testing.T) {
	cases := []struct {
		category backendhost.Category
		want     error
	}{
		{backendhost.CategoryNotFound, os.ErrNotExist},
		{backendhost.CategoryAlreadyExists, os.ErrExist},
		{backendhost.CategoryPermissionDenied, os.ErrPermission},
	}
	for _, tc := range cases {
		err := &backendhost.Error{Category: tc.category, Err: assert.AnError}
		assert.ErrorIs(t, httpStatusFor(err), tc.want)
	}
}

func TestHTTPStatusForNilIsNil(t *testing.T) {
	assert.NoError(t, httpStatusFor(nil))
}

func TestHTTPStatusForUnwrappedErrorPassesThrough(t *testing.T) {
	assert.ErrorIs(t, httpStatusFor(assert.AnError), assert.AnError)
}

func TestHTTPStatusForUnmappedCategoryPassesThrough(t *testing.T) {
	err := &backendhost.Error{Category: backendhost.CategoryIOError, Err: assert.AnError}
	assert.ErrorIs(t, httpStatusFor(err), err)
}

func TestFileInfoModeReflectsKind(t *testing.T) {
	dir := fileInfo{name: "d", attr: backendhost.Attr{IsDir: true}}
	assert.True(t, dir.IsDir())
	assert.NotZero(t, dir.Mode()&os.ModeDir)

	link := fileInfo{name: "l", attr: backendhost.Attr{IsLink: true}}
	assert.NotZero(t, link.Mode()&os.ModeSymlink)

	reg := fileInfo{name: "f", attr: backendhost.Attr{Size: 7}}
	assert.EqualValues(t, 7, reg.Size())
	assert.Zero(t, reg.Mode()&os.ModeDir)
}
