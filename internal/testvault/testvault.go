// Package testvault provides vault test fixtures: a fresh in-memory vault
// and a ready VaultContract wrapping one. The package-internal test suites
// of vaultfs and backendhost build their own fixtures instead, since
// importing this package (which imports both) from them would be an
// import cycle.
package testvault

import (
	"context"
	"testing"
	"time"

	"github.com/cryptovault/cryptovault/backendhost"
	"github.com/cryptovault/cryptovault/mountrt"
	"github.com/cryptovault/cryptovault/vaultfs"
)

// Passphrase is the fixed passphrase every fixture vault is created with;
// tests that need to exercise a wrong-passphrase path supply their own
// instead of using NewFs/NewContract.
const Passphrase = "correct horse battery staple"

// NewFs returns a freshly created vault backed by an in-memory Storage.
func NewFs(t testing.TB) *vaultfs.Fs {
	t.Helper()
	storage, err := vaultfs.NewMemStorage()
	if err != nil {
		t.Fatalf("testvault: new mem storage: %v", err)
	}
	f, err := vaultfs.Create(context.Background(), storage, Passphrase)
	if err != nil {
		t.Fatalf("testvault: create vault: %v", err)
	}
	return f
}

// NewContract returns a VaultContract over a fresh NewFs vault, using a
// one-minute positive and negative attribute-cache TTL, a five-second I/O
// deadline and an otherwise-unused Stats sink, suitable for
// any test that just needs a working Contract and doesn't care about cache
// tuning or stats assertions.
func NewContract(t testing.TB) *backendhost.VaultContract {
	t.Helper()
	fs := NewFs(t)
	cache := mountrt.NewAsyncCache[backendhost.Attr](time.Minute, time.Minute)
	return backendhost.NewVaultContract(fs, cache, 5*time.Second, &mountrt.Stats{})
}
