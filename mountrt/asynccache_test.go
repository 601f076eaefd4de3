package mountrt

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errAsyncSentinel = errors.New("compute failed")

func TestAsyncCacheComputesOnce(t *testing.T) {
	c := NewAsyncCache[string](time.Minute, time.Minute)

	var calls atomic.Int32
	fn := func() (string, error) {
		calls.Add(1)
		return "computed", nil
	}

	v, err := c.GetOrCompute("/a", nil, fn)
	require.NoError(t, err)
	assert.Equal(t, "computed", v)

	v, err = c.GetOrCompute("/a", nil, fn)
	require.NoError(t, err)
	assert.Equal(t, "computed", v)
	assert.EqualValues(t, 1, calls.Load())
}

func TestAsyncCacheErrorNotCached(t *testing.T) {
	c := NewAsyncCache[string](time.Minute, time.Minute)

	var calls atomic.Int32
	fn := func() (string, error) {
		calls.Add(1)
		return "", errAsyncSentinel
	}

	_, err := c.GetOrCompute("/a", nil, fn)
	assert.ErrorIs(t, err, errAsyncSentinel)

	_, err = c.GetOrCompute("/a", nil, fn)
	assert.ErrorIs(t, err, errAsyncSentinel)
	assert.EqualValues(t, 2, calls.Load(), "a failed compute must not be cached, so every call retries")
}

func TestAsyncCacheNotFoundRecordsNegative(t *testing.T) {
	c := NewAsyncCache[string](time.Minute, time.Minute)

	var calls atomic.Int32
	fn := func() (string, error) {
		calls.Add(1)
		return "", errAsyncSentinel
	}
	notFound := func(err error) bool { return errors.Is(err, errAsyncSentinel) }

	_, err := c.GetOrCompute("/missing", notFound, fn)
	assert.Error(t, err)

	_, err = c.GetOrCompute("/missing", notFound, fn)
	assert.ErrorIs(t, err, ErrCachedNotFound)
	assert.EqualValues(t, 1, calls.Load(), "a recorded negative entry must short-circuit later lookups")
}

func TestAsyncCacheInvalidateWhere(t *testing.T) {
	c := NewAsyncCache[string](time.Minute, time.Minute)

	fn := func(v string) func() (string, error) {
		return func() (string, error) { return v, nil }
	}
	_, err := c.GetOrCompute("/dirid/1/a", nil, fn("a"))
	require.NoError(t, err)
	_, err = c.GetOrCompute("/dirid/2/a", nil, fn("b"))
	require.NoError(t, err)

	n := c.InvalidateWhere(func(key string) bool { return strings.HasPrefix(key, "/dirid/1/") })
	assert.Equal(t, 1, n)

	var calls atomic.Int32
	_, err = c.GetOrCompute("/dirid/1/a", nil, func() (string, error) {
		calls.Add(1)
		return "a", nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load(), "invalidated entry should recompute")
}

func TestAsyncCacheDedupesConcurrentCallers(t *testing.T) {
	c := NewAsyncCache[int](time.Minute, time.Minute)

	var calls atomic.Int32
	start := make(chan struct{})
	fn := func() (int, error) {
		calls.Add(1)
		<-start
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 20)
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrCompute("/shared", nil, fn)
			require.NoError(t, err)
			results[i] = v
		}()
	}

	close(start)
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, 42, v)
	}
	assert.LessOrEqual(t, calls.Load(), int32(2), "concurrent misses on the same key must collapse into at most a couple of real computations")
}
