package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	aeswrap "github.com/NickBall/go-aes-key-wrap"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/text/unicode/norm"
)

const (
	// MasterEncryptKeySize is the size of the MasterKey's EncryptKey.
	MasterEncryptKeySize = 32
	// MasterMacKeySize is the size of the MasterKey's MacKey.
	MasterMacKeySize = MasterEncryptKeySize
	// MasterDefaultVersion is the value written to the deprecated version field.
	MasterDefaultVersion = 999
	// MasterDefaultScryptCostParam is the default scrypt cost param (N) for a new master key.
	MasterDefaultScryptCostParam = 32 * 1024
	// MasterDefaultScryptBlockSize is the default scrypt block size (r) for a new master key.
	MasterDefaultScryptBlockSize = 8
	// MasterDefaultScryptSaltSize is the default scrypt salt size for a new master key.
	MasterDefaultScryptSaltSize = 32
)

// MasterKey holds the two 256-bit keys unwrapped from masterkey.cryptomator:
// EncryptKey for content/filename encryption, MacKey for the SIV mode's MAC
// half and the vault config's signature key.
type MasterKey struct {
	EncryptKey []byte
	MacKey     []byte
}

// Zero overwrites both key slices in place. Callers that hold a MasterKey
// past its last use should defer this.
func (m *MasterKey) Zero() {
	zero(m.EncryptKey)
	zero(m.MacKey)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// jwtKey returns the concatenated key material used to sign/verify the
// vault config JWT, matching the Java reference's MAC-then-encrypt key order.
func (m MasterKey) jwtKey() []byte {
	return append(append([]byte{}, m.MacKey...), m.EncryptKey...)
}

type encryptedMasterKey struct {
	ScryptSalt       []byte `json:"scryptSalt"`
	ScryptCostParam  int    `json:"scryptCostParam"`
	ScryptBlockSize  int    `json:"scryptBlockSize"`
	PrimaryMasterKey []byte `json:"primaryMasterKey"`
	HmacMasterKey    []byte `json:"hmacMasterKey"`

	// Version and VersionMac are vestigial: vault format 8 no longer
	// verifies them, but compatible readers still expect the fields.
	Version    uint32 `json:"version"`
	VersionMac []byte `json:"versionMac"`
}

// NewMasterKey generates a fresh, randomly initialized MasterKey.
func NewMasterKey() (m MasterKey, err error) {
	m.EncryptKey = make([]byte, MasterEncryptKeySize)
	m.MacKey = make([]byte, MasterMacKeySize)

	if _, err = rand.Read(m.EncryptKey); err != nil {
		return
	}
	_, err = rand.Read(m.MacKey)
	return
}

// normalizePassphrase applies NFC normalization, matching the reference
// implementations' handling of passphrases that cross locales/keyboards.
func normalizePassphrase(passphrase string) []byte {
	return norm.NFC.Bytes([]byte(passphrase))
}

// Marshal wraps the MasterKey with a passphrase-derived KEK and writes the
// resulting masterkey.cryptomator JSON document.
func (m MasterKey) Marshal(w io.Writer, passphrase string) (err error) {
	encKey := encryptedMasterKey{
		Version:         MasterDefaultVersion,
		ScryptCostParam: MasterDefaultScryptCostParam,
		ScryptBlockSize: MasterDefaultScryptBlockSize,
	}

	encKey.ScryptSalt = make([]byte, MasterDefaultScryptSaltSize)
	if _, err = rand.Read(encKey.ScryptSalt); err != nil {
		return
	}

	kek, err := scrypt.Key(normalizePassphrase(passphrase), encKey.ScryptSalt, encKey.ScryptCostParam, encKey.ScryptBlockSize, 1, MasterEncryptKeySize)
	if err != nil {
		return fmt.Errorf("deriving key-encryption key: %w", err)
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return err
	}

	if encKey.PrimaryMasterKey, err = aeswrap.Wrap(block, m.EncryptKey); err != nil {
		return fmt.Errorf("wrapping encrypt key: %w", err)
	}
	if encKey.HmacMasterKey, err = aeswrap.Wrap(block, m.MacKey); err != nil {
		return fmt.Errorf("wrapping mac key: %w", err)
	}

	hash := hmac.New(sha256.New, m.MacKey)
	if err = binary.Write(hash, binary.BigEndian, encKey.Version); err != nil {
		return err
	}
	encKey.VersionMac = hash.Sum(nil)

	return json.NewEncoder(w).Encode(encKey)
}

// UnmarshalMasterKey reads a masterkey.cryptomator document and unwraps it
// with the given passphrase. Returns ErrAuthenticationFailed (not a raw
// unwrap error) when the passphrase is wrong, so callers can't distinguish
// a bad passphrase from a corrupt file by error text.
func UnmarshalMasterKey(r io.Reader, passphrase string) (m MasterKey, err error) {
	encKey := &encryptedMasterKey{}
	if err = json.NewDecoder(r).Decode(encKey); err != nil {
		return m, fmt.Errorf("parsing master key file: %w", err)
	}

	kek, err := scrypt.Key(normalizePassphrase(passphrase), encKey.ScryptSalt, encKey.ScryptCostParam, encKey.ScryptBlockSize, 1, MasterEncryptKeySize)
	if err != nil {
		return m, fmt.Errorf("deriving key-encryption key: %w", err)
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return m, err
	}

	m.EncryptKey, err = unwrapAndVerify(block, encKey.PrimaryMasterKey)
	if err != nil {
		return m, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	m.MacKey, err = unwrapAndVerify(block, encKey.HmacMasterKey)
	if err != nil {
		return m, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	return m, nil
}

// unwrapAndVerify unwraps an RFC 3394 key-wrapped value and independently
// re-verifies the result by re-wrapping it and comparing against the
// original ciphertext in constant time, rather than trusting aeswrap's own
// internal integrity-check comparison alone. RFC 3394 wrapping is
// deterministic (fixed IV 0xA6A6A6A6A6A6A6A6), so a correct unwrap always
// re-wraps back to the same bytes; a tampered or wrong-key ciphertext fails
// either aeswrap's own check or this one.
func unwrapAndVerify(block cipher.Block, wrapped []byte) ([]byte, error) {
	key, err := aeswrap.Unwrap(block, wrapped)
	if err != nil {
		return nil, err
	}
	rewrapped, err := aeswrap.Wrap(block, key)
	if err != nil {
		return nil, err
	}
	if !constantTimeEqual(rewrapped, wrapped) {
		return nil, errUnwrapIntegrity
	}
	return key, nil
}

var errUnwrapIntegrity = fmt.Errorf("key-wrap integrity check failed")

// constantTimeEqual reports whether a and b hold the same bytes, taking
// time independent of where they first differ.
func constantTimeEqual(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}
