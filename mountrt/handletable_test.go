package mountrt

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleTableCRUD(t *testing.T) {
	tbl := NewHandleTable[string]()

	_, ok := tbl.Get(1)
	assert.False(t, ok)

	h := tbl.Put("payload")
	assert.NotZero(t, h)

	v, ok := tbl.Get(h)
	require.True(t, ok)
	assert.Equal(t, "payload", v)

	require.NoError(t, tbl.Replace(h, "updated"))
	v, ok = tbl.Get(h)
	require.True(t, ok)
	assert.Equal(t, "updated", v)

	tbl.Delete(h)
	_, ok = tbl.Get(h)
	assert.False(t, ok)

	// deleting twice is a no-op
	tbl.Delete(h)

	err := tbl.Replace(h, "too late")
	assert.Error(t, err)
}

func TestHandleTableThrashDifferent(t *testing.T) {
	tbl := NewHandleTable[int]()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := tbl.Put(i)
			v, ok := tbl.Get(h)
			require.True(t, ok)
			assert.Equal(t, i, v)
			tbl.Delete(h)
			_, ok = tbl.Get(h)
			assert.False(t, ok)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, tbl.Len())
}

func TestHandleTableThrashSame(t *testing.T) {
	tbl := NewHandleTable[string]()
	h := tbl.Put("shared")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tbl.Replace(h, fmt.Sprintf("v%d", i))
			_, _ = tbl.Get(h)
		}()
	}
	wg.Wait()

	_, ok := tbl.Get(h)
	assert.True(t, ok)
}
