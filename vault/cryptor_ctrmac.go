package vault

import (
	"bytes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"hash"
)

// ctrMacCryptor implements contentCryptor for the legacy SIV_CTRMAC combo:
// AES-CTR keystream with a detached HMAC-SHA256 covering the additional
// data, nonce, and ciphertext. The HMAC is always verified before any
// CTR decryption happens, so a tampered chunk never reaches the stream
// cipher.
type ctrMacCryptor struct {
	aes     cipher.Block
	hmacKey []byte
}

func (*ctrMacCryptor) NonceSize() int { return 16 }
func (*ctrMacCryptor) TagSize() int   { return 32 }

func (c *ctrMacCryptor) newCTR(nonce []byte) cipher.Stream { return cipher.NewCTR(c.aes, nonce) }
func (c *ctrMacCryptor) newHMAC() hash.Hash                { return hmac.New(sha256.New, c.hmacKey) }

func (c *ctrMacCryptor) EncryptChunk(payload, nonce, additionalData []byte) []byte {
	out := make([]byte, len(payload))
	c.newCTR(nonce).XORKeyStream(out, payload)

	buf := bytes.Buffer{}
	buf.Write(nonce)
	buf.Write(out)

	h := c.newHMAC()
	h.Write(additionalData)
	h.Write(buf.Bytes())
	buf.Write(h.Sum(nil))
	return buf.Bytes()
}

func (c *ctrMacCryptor) DecryptChunk(chunk, additionalData []byte) ([]byte, error) {
	if len(chunk) < c.NonceSize()+c.TagSize() {
		return nil, ErrIntegrityViolation
	}
	startMac := len(chunk) - c.TagSize()
	mac := chunk[startMac:]
	chunk = chunk[:startMac]

	h := c.newHMAC()
	h.Write(additionalData)
	h.Write(chunk)
	if !hmac.Equal(mac, h.Sum(nil)) {
		return nil, ErrIntegrityViolation
	}

	nonce := chunk[:c.NonceSize()]
	ciphertext := chunk[c.NonceSize():]
	plaintext := make([]byte, len(ciphertext))
	c.newCTR(nonce).XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}

func (c *ctrMacCryptor) fileAssociatedData(fileNonce []byte, chunkNr uint64) []byte {
	buf := bytes.Buffer{}
	buf.Write(fileNonce)
	_ = binary.Write(&buf, binary.BigEndian, chunkNr)
	return buf.Bytes()
}
