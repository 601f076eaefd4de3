package vault

import (
	"bytes"
	"crypto/cipher"
	"encoding/binary"
)

// gcmCryptor implements contentCryptor for the SIV_GCM combo: a fresh
// 96-bit nonce per chunk, AES-GCM seal/open, chunk index folded into the
// additional data ahead of the file header's nonce.
type gcmCryptor struct {
	aesGcm cipher.AEAD
}

func (*gcmCryptor) NonceSize() int { return 12 }
func (*gcmCryptor) TagSize() int   { return 16 }

func (c *gcmCryptor) EncryptChunk(payload, nonce, additionalData []byte) []byte {
	buf := bytes.Buffer{}
	buf.Write(nonce)
	buf.Write(c.aesGcm.Seal(nil, nonce, payload, additionalData))
	return buf.Bytes()
}

func (c *gcmCryptor) DecryptChunk(chunk, additionalData []byte) ([]byte, error) {
	if len(chunk) < c.NonceSize() {
		return nil, ErrIntegrityViolation
	}
	nonce := chunk[:c.NonceSize()]
	plaintext, err := c.aesGcm.Open(nil, nonce, chunk[c.NonceSize():], additionalData)
	if err != nil {
		return nil, wrapIntegrityErr(err)
	}
	return plaintext, nil
}

func (c *gcmCryptor) fileAssociatedData(fileNonce []byte, chunkNr uint64) []byte {
	buf := bytes.Buffer{}
	_ = binary.Write(&buf, binary.BigEndian, chunkNr)
	buf.Write(fileNonce)
	return buf.Bytes()
}
