package mountrt

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMountStateTransitions(t *testing.T) {
	assert.NoError(t, MountStatePending.transitionTo(MountStateActive))
	assert.NoError(t, MountStateActive.transitionTo(MountStateUnmounting))
	assert.NoError(t, MountStateUnmounting.transitionTo(MountStateUnmounted))

	assert.Error(t, MountStateUnmounted.transitionTo(MountStateActive))
	assert.Error(t, MountStatePending.transitionTo(MountStateUnmounting))
}

func TestLifecycleRegisterActivateUnmount(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "mounts.json")
	l, err := NewLifecycle(statePath)
	require.NoError(t, err)

	rec := &MountRecord{
		ID:         "m1",
		VaultPath:  "/vaults/one",
		Mountpoint: "/mnt/one",
		Backend:    "fuse",
		PID:        os.Getpid(),
		SocketPath: "/tmp/m1.sock",
		StartedAt:  time.Now(),
	}
	require.NoError(t, l.Register(rec))
	assert.FileExists(t, statePath)

	require.NoError(t, l.Activate("m1"))
	require.NoError(t, l.BeginUnmount("m1"))
	require.NoError(t, l.Unmounted("m1"))

	assert.Empty(t, l.Mounts())
}

func TestLifecyclePersistsAcrossReload(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "mounts.json")
	l, err := NewLifecycle(statePath)
	require.NoError(t, err)

	rec := &MountRecord{ID: "m1", Mountpoint: "/mnt/one", PID: os.Getpid(), StartedAt: time.Now()}
	require.NoError(t, l.Register(rec))
	require.NoError(t, l.Activate("m1"))

	reloaded, err := NewLifecycle(statePath)
	require.NoError(t, err)
	mounts := reloaded.Mounts()
	require.Len(t, mounts, 1)
	assert.Equal(t, "m1", mounts[0].ID)
}

func TestLifecycleSweepOrphansDetectsDeadPID(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "mounts.json")
	l, err := NewLifecycle(statePath)
	require.NoError(t, err)

	rec := &MountRecord{ID: "dead", Mountpoint: "/mnt/dead", PID: 999999, StartedAt: time.Now()}
	require.NoError(t, l.Register(rec))
	require.NoError(t, l.Activate("dead"))

	orphans := l.SweepOrphans(nil)
	require.Len(t, orphans, 1)
	assert.Equal(t, "dead", orphans[0].ID)
}

func TestLifecycleUnknownMountErrors(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "mounts.json")
	l, err := NewLifecycle(statePath)
	require.NoError(t, err)

	assert.Error(t, l.Activate("nope"))
	assert.Error(t, l.Unmounted("nope"))
}
