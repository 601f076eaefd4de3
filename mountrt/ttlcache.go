package mountrt

import (
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// TTLCache memoizes metadata lookups (Stat/List results, the kind of thing
// every mount adapter re-requests constantly) with per-entry expiry,
// grounded on the teacher's own use of patrickmn/go-cache for exactly this
// (backend/cache's in-memory chunk store). A parallel negative-entry cache
// remembers recent not-found results so a repeated Lookup for a name that
// doesn't exist (extremely common: editors probing for lock files, Finder
// probing for resource forks) doesn't re-walk the vault every time.
type TTLCache[V any] struct {
	positive *cache.Cache
	negative *cache.Cache
}

// NewTTLCache returns a cache whose positive and negative entries expire
// after the given durations, with background cleanup at 2x the longer of
// the two (matching go-cache's own default-to-half-life cleanup idiom).
func NewTTLCache[V any](positiveTTL, negativeTTL time.Duration) *TTLCache[V] {
	cleanup := positiveTTL
	if negativeTTL > cleanup {
		cleanup = negativeTTL
	}
	return &TTLCache[V]{
		positive: cache.New(positiveTTL, cleanup*2),
		negative: cache.New(negativeTTL, cleanup*2),
	}
}

// NewNetworkTTLCache applies the preset tuned for a storage backend with
// real network latency: 60s positive / 3s negative.
func NewNetworkTTLCache[V any]() *TTLCache[V] {
	return NewTTLCache[V](60*time.Second, 3*time.Second)
}

// NewLocalTTLCache applies the preset tuned for a local-disk storage
// backend, where staleness is cheap to tolerate but should still be short:
// 1s positive / 300ms negative.
func NewLocalTTLCache[V any]() *TTLCache[V] {
	return NewTTLCache[V](time.Second, 300*time.Millisecond)
}

// Get returns a cached positive value, if any.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	v, ok := c.positive.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// Set records a positive value, implicitly clearing any negative entry
// for the same key.
func (c *TTLCache[V]) Set(key string, v V) {
	c.negative.Delete(key)
	c.positive.Set(key, v, cache.DefaultExpiration)
}

// IsNegative reports whether key was recently recorded as not-found.
func (c *TTLCache[V]) IsNegative(key string) bool {
	_, found := c.negative.Get(key)
	return found
}

// SetNegative records key as not-found for the negative TTL.
func (c *TTLCache[V]) SetNegative(key string) {
	c.negative.Set(key, struct{}{}, cache.DefaultExpiration)
}

// Invalidate drops any cached entry (positive or negative) for key, used
// after a Remove/Rename/WriteFile changes what a lookup would return.
func (c *TTLCache[V]) Invalidate(key string) {
	c.positive.Delete(key)
	c.negative.Delete(key)
}

// InvalidatePrefix drops every entry whose key starts with prefix, used
// when a directory is removed or renamed and every path beneath it goes
// stale at once.
func (c *TTLCache[V]) InvalidatePrefix(prefix string) int {
	return c.InvalidateWhere(func(key string) bool { return strings.HasPrefix(key, prefix) })
}

// InvalidateWhere drops every positive and negative entry whose key
// satisfies predicate, the general form InvalidatePrefix is built on --
// used where invalidation needs to match something other than a simple
// prefix (e.g. every key for a given dir-id regardless of its path).
func (c *TTLCache[V]) InvalidateWhere(predicate func(key string) bool) int {
	n := 0
	for k := range c.positive.Items() {
		if predicate(k) {
			c.positive.Delete(k)
			n++
		}
	}
	for k := range c.negative.Items() {
		if predicate(k) {
			c.negative.Delete(k)
			n++
		}
	}
	return n
}

// Flush clears every positive and negative entry.
func (c *TTLCache[V]) Flush() {
	c.positive.Flush()
	c.negative.Flush()
}
