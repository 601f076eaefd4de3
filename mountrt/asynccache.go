package mountrt

import (
	"time"

	"golang.org/x/sync/singleflight"
)

// AsyncCache adds thundering-herd protection to a TTLCache: concurrent
// GetOrCompute calls for the same key that all miss the cache collapse
// into a single in-flight computation, grounded on the teacher's own
// singleflight.Group usage for deduplicating concurrent lookups of the
// same key (backend/netexplorer's listSF).
type AsyncCache[V any] struct {
	ttl *TTLCache[V]
	sf  singleflight.Group
}

// NewAsyncCache wraps a fresh TTLCache with the given TTLs.
func NewAsyncCache[V any](positiveTTL, negativeTTL time.Duration) *AsyncCache[V] {
	return &AsyncCache[V]{ttl: NewTTLCache[V](positiveTTL, negativeTTL)}
}

// GetOrCompute returns the cached value for key, computing it via fn
// exactly once even under concurrent callers. A fn error is not cached
// positively; if notFound is true the key is recorded as a negative entry
// instead.
func (c *AsyncCache[V]) GetOrCompute(key string, notFound func(error) bool, fn func() (V, error)) (V, error) {
	if v, ok := c.ttl.Get(key); ok {
		return v, nil
	}
	if c.ttl.IsNegative(key) {
		var zero V
		return zero, ErrCachedNotFound
	}

	result, err, _ := c.sf.Do(key, func() (any, error) {
		v, err := fn()
		if err != nil {
			if notFound != nil && notFound(err) {
				c.ttl.SetNegative(key)
			}
			return nil, err
		}
		c.ttl.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

// Invalidate drops any cached result (positive or negative) for key.
func (c *AsyncCache[V]) Invalidate(key string) {
	c.ttl.Invalidate(key)
}

// InvalidatePrefix drops every cached result under a removed/renamed
// subtree.
func (c *AsyncCache[V]) InvalidatePrefix(prefix string) int {
	return c.ttl.InvalidatePrefix(prefix)
}

// InvalidateWhere drops every cached result whose key satisfies predicate.
func (c *AsyncCache[V]) InvalidateWhere(predicate func(key string) bool) int {
	return c.ttl.InvalidateWhere(predicate)
}

var ErrCachedNotFound = ttlCacheNotFoundError{}

type ttlCacheNotFoundError struct{}

func (ttlCacheNotFoundError) Error() string { return "mountrt: cached not-found" }
