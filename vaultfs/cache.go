package vaultfs

import (
	"hash/fnv"
	"sync"
)

// nameCacheShards is the shard count for the deterministic name cache.
// Filename/dir-id encryption is deterministic (SIV), so the cache never
// needs invalidation on its own -- only on rename/remove, which this
// package handles by deleting the specific entries touched.
const nameCacheShards = 32

type nameCacheKey struct {
	dirID string
	name  string
}

type nameCacheEntry struct {
	ciphertext string
}

// nameCache memoizes Cryptor.EncryptFilename results keyed by (dirID,
// plaintext name), sharded by a cheap hash to spread lock contention across
// concurrent path resolutions. Go's standard library has no lock-free
// concurrent map; the teacher pack carries none either (the Rust original
// uses DashMap), so a sharded sync.RWMutex+map stands in for it -- the one
// hand-rolled concurrency primitive in this module, see the design ledger.
type nameCache struct {
	shards [nameCacheShards]struct {
		mu sync.RWMutex
		m  map[nameCacheKey]nameCacheEntry
	}
}

func newNameCache() *nameCache {
	c := &nameCache{}
	for i := range c.shards {
		c.shards[i].m = make(map[nameCacheKey]nameCacheEntry)
	}
	return c
}

func (c *nameCache) shardFor(key nameCacheKey) *struct {
	mu sync.RWMutex
	m  map[nameCacheKey]nameCacheEntry
} {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.dirID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key.name))
	return &c.shards[h.Sum32()%nameCacheShards]
}

func (c *nameCache) get(dirID, name string) (string, bool) {
	key := nameCacheKey{dirID, name}
	shard := c.shardFor(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	e, ok := shard.m[key]
	return e.ciphertext, ok
}

func (c *nameCache) put(dirID, name, ciphertext string) {
	key := nameCacheKey{dirID, name}
	shard := c.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.m[key] = nameCacheEntry{ciphertext: ciphertext}
}

func (c *nameCache) invalidate(dirID, name string) {
	key := nameCacheKey{dirID, name}
	shard := c.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	delete(shard.m, key)
}

// invalidateDir drops every cached name within dirID, used when a directory
// is removed or renamed away so stale entries can't leak across a reused
// directory id.
func (c *nameCache) invalidateDir(dirID string) {
	for i := range c.shards {
		shard := &c.shards[i]
		shard.mu.Lock()
		for k := range shard.m {
			if k.dirID == dirID {
				delete(shard.m, k)
			}
		}
		shard.mu.Unlock()
	}
}
