package mountrt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCacheGetSet(t *testing.T) {
	c := NewTTLCache[string](time.Minute, time.Minute)

	_, ok := c.Get("/a")
	assert.False(t, ok)

	c.Set("/a", "value")
	v, ok := c.Get("/a")
	assert.True(t, ok)
	assert.Equal(t, "value", v)
}

func TestTTLCacheNegativeEntries(t *testing.T) {
	c := NewTTLCache[string](time.Minute, time.Minute)

	assert.False(t, c.IsNegative("/missing"))
	c.SetNegative("/missing")
	assert.True(t, c.IsNegative("/missing"))

	// a positive Set clears any negative entry for the same key
	c.Set("/missing", "now exists")
	assert.False(t, c.IsNegative("/missing"))
}

func TestTTLCacheInvalidate(t *testing.T) {
	c := NewTTLCache[string](time.Minute, time.Minute)
	c.Set("/a", "v")
	c.SetNegative("/b")

	c.Invalidate("/a")
	c.Invalidate("/b")

	_, ok := c.Get("/a")
	assert.False(t, ok)
	assert.False(t, c.IsNegative("/b"))
}

func TestTTLCacheInvalidatePrefix(t *testing.T) {
	c := NewTTLCache[string](time.Minute, time.Minute)
	c.Set("/dir/a", "a")
	c.Set("/dir/b", "b")
	c.Set("/other", "c")
	c.SetNegative("/dir/missing")

	n := c.InvalidatePrefix("/dir")
	assert.Equal(t, 3, n)

	_, ok := c.Get("/dir/a")
	assert.False(t, ok)
	_, ok = c.Get("/other")
	assert.True(t, ok)
}

func TestTTLCacheInvalidateWhere(t *testing.T) {
	c := NewTTLCache[string](time.Minute, time.Minute)
	c.Set("/dirid/1/a", "a")
	c.Set("/dirid/1/b", "b")
	c.Set("/dirid/2/a", "c")
	c.SetNegative("/dirid/1/missing")

	n := c.InvalidateWhere(func(key string) bool { return strings.Contains(key, "/dirid/1/") })
	assert.Equal(t, 3, n)

	_, ok := c.Get("/dirid/1/a")
	assert.False(t, ok)
	_, ok = c.Get("/dirid/2/a")
	assert.True(t, ok)
	assert.False(t, c.IsNegative("/dirid/1/missing"))
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[string](20*time.Millisecond, 20*time.Millisecond)
	c.Set("/a", "v")

	_, ok := c.Get("/a")
	assert.True(t, ok)

	time.Sleep(100 * time.Millisecond)

	_, ok = c.Get("/a")
	assert.False(t, ok)
}

func TestTTLCachePresets(t *testing.T) {
	// only exercised for construction: the actual durations are an
	// implementation detail, not something to assert against directly.
	_ = NewNetworkTTLCache[string]()
	_ = NewLocalTTLCache[string]()
}
