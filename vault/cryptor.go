package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"encoding/base32"
	"encoding/base64"
	"fmt"

	"github.com/miscreant/miscreant.go"
)

const (
	// CipherComboSivGcm uses AES-SIV for names/dir-ids and AES-GCM for file
	// contents. Current Cryptomator default.
	CipherComboSivGcm = "SIV_GCM"
	// CipherComboSivCtrMac uses AES-SIV for names/dir-ids and AES-CTR with
	// a detached HMAC-SHA256 for file contents. Superseded by SIV_GCM in
	// Cryptomator 1.7 but still read by this module.
	CipherComboSivCtrMac = "SIV_CTRMAC"
)

// contentCryptor is the per-chunk AEAD used for file contents. Cryptor picks
// one implementation at construction time based on the vault's cipher combo.
type contentCryptor interface {
	EncryptChunk(plaintext, nonce, additionalData []byte) (ciphertext []byte)
	DecryptChunk(ciphertext, additionalData []byte) ([]byte, error)
	fileAssociatedData(fileNonce []byte, chunkNr uint64) []byte

	NonceSize() int
	TagSize() int
}

// Cryptor implements the filename, directory-id, and file-content crypto
// operations for a single unlocked vault.
type Cryptor struct {
	masterKey   MasterKey
	siv         *miscreant.Cipher
	cipherCombo string
	contentCryptor
}

// NewCryptor builds a Cryptor from an unwrapped master key and the vault's
// configured cipher combo.
func NewCryptor(key MasterKey, cipherCombo string) (c Cryptor, err error) {
	c.masterKey = key
	c.siv, err = miscreant.NewAESCMACSIV(append(append([]byte{}, key.MacKey...), key.EncryptKey...))
	if err != nil {
		return c, fmt.Errorf("initializing SIV cipher: %w", err)
	}
	c.cipherCombo = cipherCombo
	c.contentCryptor, err = c.newChunkCryptor(key.EncryptKey)
	if err != nil {
		return c, err
	}
	return c, nil
}

// CipherCombo reports the vault's configured content cipher combo.
func (c *Cryptor) CipherCombo() string { return c.cipherCombo }

// EncryptDirID deterministically maps a directory id (a UUID string) to its
// ciphertext directory name: SIV-seal, then SHA-1, then base32.
func (c *Cryptor) EncryptDirID(dirID string) (string, error) {
	ciphertext, err := c.siv.Seal(nil, []byte(dirID))
	if err != nil {
		return "", err
	}
	hash := sha1.Sum(ciphertext)
	return base32.StdEncoding.EncodeToString(hash[:]), nil
}

// EncryptFilename deterministically encrypts a plaintext filename, binding
// it to the (plaintext) directory id it lives in via SIV additional data.
func (c *Cryptor) EncryptFilename(filename string, dirID string) (string, error) {
	ciphertext, err := c.siv.Seal(nil, []byte(filename), []byte(dirID))
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// DecryptFilename reverses EncryptFilename. A dirID mismatch (wrong parent)
// surfaces as ErrIntegrityViolation, same as any other SIV tag failure.
func (c *Cryptor) DecryptFilename(filename string, dirID string) (string, error) {
	filenameBytes, err := base64.URLEncoding.DecodeString(filename)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIntegrityViolation, err)
	}
	plaintext, err := c.siv.Open(nil, filenameBytes, []byte(dirID))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIntegrityViolation, err)
	}
	return string(plaintext), nil
}

// newChunkCryptor builds a contentCryptor keyed by encryptKey, which is the
// vault's master encrypt key for header encryption and a file's own
// per-file content key for chunk encryption. The CTRMAC combo's HMAC key is
// always the vault's static master MAC key, never a per-file key.
func (c *Cryptor) newChunkCryptor(encryptKey []byte) (contentCryptor, error) {
	block, err := aes.NewCipher(encryptKey)
	if err != nil {
		return nil, err
	}

	switch c.cipherCombo {
	case CipherComboSivGcm:
		aesGcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
		return &gcmCryptor{aesGcm: aesGcm}, nil

	case CipherComboSivCtrMac:
		return &ctrMacCryptor{aes: block, hmacKey: c.masterKey.MacKey}, nil

	default:
		return nil, fmt.Errorf("%w: cipher combo %q", ErrNotSupported, c.cipherCombo)
	}
}

// EncryptedChunkSize returns the ciphertext size of a plaintext chunk of the
// given size under this Cryptor's content cipher.
func (c *Cryptor) EncryptedChunkSize(payloadSize int) int {
	return c.contentCryptor.NonceSize() + payloadSize + c.contentCryptor.TagSize()
}
