package vault

import (
	"errors"
	"fmt"
)

// Sentinel errors usable with errors.Is across vault, vaultfs and mountrt.
// Integrity failures and authentication failures are distinguished so that
// callers can choose not to retry an integrity violation. A wrong
// passphrase and a tampered wrapped master key both surface as
// ErrAuthenticationFailed, so the error never reveals which of the two
// happened.
var (
	// ErrAuthenticationFailed covers a wrong vault passphrase or an
	// unwrappable master key. Never retried automatically.
	ErrAuthenticationFailed = errors.New("vault: authentication failed")

	// ErrIntegrityViolation covers any AEAD tag, HMAC, or directory-id
	// AAD mismatch found while decrypting vault content. Never retried.
	ErrIntegrityViolation = errors.New("vault: integrity check failed")

	// ErrNotFound mirrors os.ErrNotExist for vault-relative paths.
	ErrNotFound = errors.New("vault: not found")
	// ErrExist mirrors os.ErrExist.
	ErrExist = errors.New("vault: already exists")
	// ErrNotEmpty is returned when removing a non-empty directory.
	ErrNotEmpty = errors.New("vault: directory not empty")
	// ErrNotDirectory is returned when a directory operation targets a file.
	ErrNotDirectory = errors.New("vault: not a directory")
	// ErrIsDirectory is returned when a file operation targets a directory.
	ErrIsDirectory = errors.New("vault: is a directory")
	// ErrTimedOut is returned by mountrt's I/O timeout wrapper.
	ErrTimedOut = errors.New("vault: operation timed out")
	// ErrNotSupported covers vault format versions and cipher combos this
	// module does not implement.
	ErrNotSupported = errors.New("vault: not supported")
	// ErrInvalidArgument covers a structurally invalid request, such as a
	// rename that would move a directory into its own subtree.
	ErrInvalidArgument = errors.New("vault: invalid argument")
)

// wrapIntegrityErr folds an underlying AEAD/HMAC failure into
// ErrIntegrityViolation so callers can match on the sentinel regardless of
// which cipher combo produced it.
func wrapIntegrityErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrIntegrityViolation, err)
}
