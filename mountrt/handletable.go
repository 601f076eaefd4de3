// Package mountrt holds the runtime plumbing shared by every host adapter:
// opaque handle allocation, cache layers, I/O timeouts, usage stats and the
// mount lifecycle/state-file bookkeeping. None of it is vault-format
// specific -- vaultfs already speaks plaintext paths -- this is what a
// FUSE/WebDAV/NFS frontend needs on top of that to behave like a real mount.
package mountrt

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// HandleTable hands out monotonically increasing opaque handles for
// whatever a backend adapter needs to keep alive across calls (an open
// vaultfs.ReadCloser, a write buffer, an NFS file handle target). Grounded
// on the CRUD/invalidate/thrash pattern rclone's own NFS handle cache is
// tested against, generalized here to any value type.
type HandleTable[V any] struct {
	next  atomic.Uint64
	items sync.Map // uint64 -> V
}

// NewHandleTable returns an empty table. Handle 0 is never issued, so zero
// value of a handle type can mean "no handle" to callers.
func NewHandleTable[V any]() *HandleTable[V] {
	t := &HandleTable[V]{}
	t.next.Store(0)
	return t
}

// Put allocates a fresh handle for v and returns it.
func (t *HandleTable[V]) Put(v V) uint64 {
	h := t.next.Add(1)
	t.items.Store(h, v)
	return h
}

// Get looks up the value for a handle.
func (t *HandleTable[V]) Get(h uint64) (V, bool) {
	v, ok := t.items.Load(h)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// Replace overwrites the value stored at an existing handle, returning an
// error if the handle is not currently live.
func (t *HandleTable[V]) Replace(h uint64, v V) error {
	if _, ok := t.items.Load(h); !ok {
		return fmt.Errorf("mountrt: stale handle %d", h)
	}
	t.items.Store(h, v)
	return nil
}

// Delete invalidates a handle. Deleting an already-invalid handle is a
// no-op, matching the teacher's idempotent handle-invalidation behavior.
func (t *HandleTable[V]) Delete(h uint64) {
	t.items.Delete(h)
}

// Len reports the number of live handles, mostly for stats/tests.
func (t *HandleTable[V]) Len() int {
	n := 0
	t.items.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
