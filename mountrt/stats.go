package mountrt

import "sync/atomic"

// Stats is a small set of atomic counters tracking mount activity, exposed
// to the outside world over the IPC stats socket (see ipc.go).
type Stats struct {
	BytesRead      atomic.Uint64
	BytesWritten   atomic.Uint64
	OpsRead        atomic.Uint64
	OpsWrite       atomic.Uint64
	OpsLookup      atomic.Uint64
	CacheHits      atomic.Uint64
	CacheMisses    atomic.Uint64
	IntegrityFails atomic.Uint64
	TimedOutOps    atomic.Uint64
}

// StatsSnapshot is the JSON-serializable point-in-time view of Stats
// returned over the IPC socket.
type StatsSnapshot struct {
	BytesRead      uint64 `json:"bytesRead"`
	BytesWritten   uint64 `json:"bytesWritten"`
	OpsRead        uint64 `json:"opsRead"`
	OpsWrite       uint64 `json:"opsWrite"`
	OpsLookup      uint64 `json:"opsLookup"`
	CacheHits      uint64 `json:"cacheHits"`
	CacheMisses    uint64 `json:"cacheMisses"`
	IntegrityFails uint64 `json:"integrityFails"`
	TimedOutOps    uint64 `json:"timedOutOps"`
}

// Snapshot takes a consistent-enough (not atomic-across-fields, matching
// the teacher's own stats reporting which accepts the same small race for
// simplicity) reading of every counter.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		BytesRead:      s.BytesRead.Load(),
		BytesWritten:   s.BytesWritten.Load(),
		OpsRead:        s.OpsRead.Load(),
		OpsWrite:       s.OpsWrite.Load(),
		OpsLookup:      s.OpsLookup.Load(),
		CacheHits:      s.CacheHits.Load(),
		CacheMisses:    s.CacheMisses.Load(),
		IntegrityFails: s.IntegrityFails.Load(),
		TimedOutOps:    s.TimedOutOps.Load(),
	}
}
