package mountrt

import (
	"context"
	"fmt"
	"time"

	"github.com/cryptovault/cryptovault/vault"
)

// TimeoutFS wraps a storage or vault-ops call with a deadline, so a wedged
// network/disk backend fails an individual mount request instead of
// hanging the calling thread (and, for FUSE, the whole mount) forever.
// The deadline covers the whole wrapped call: where a caller wraps a
// vault-ops call that reads or writes content, the content decryption or
// encryption inside it runs under the same deadline as its Storage I/O.
type TimeoutFS struct {
	timeout time.Duration
}

// NewTimeoutFS returns a TimeoutFS enforcing the given per-call deadline.
func NewTimeoutFS(timeout time.Duration) *TimeoutFS {
	return &TimeoutFS{timeout: timeout}
}

// Do runs op with ctx bounded by the configured timeout, translating a
// deadline expiry into vault.ErrTimedOut. Unlike a plain errgroup.Wait, Do
// returns the instant the deadline fires even if op is still blocked in a
// non-cooperative call (a wedged syscall, a hung network read) -- op's
// goroutine is left running to finish or be garbage-collected on its own,
// since Go has no way to forcibly abort it, but the caller is not made to
// wait on it.
func (t *TimeoutFS) Do(ctx context.Context, opName string, op func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("%s: %w (deadline %s)", opName, vault.ErrTimedOut, t.timeout)
			}
			return err
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w (deadline %s)", opName, vault.ErrTimedOut, t.timeout)
	}
}
