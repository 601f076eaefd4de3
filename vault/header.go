package vault

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"unsafe"
)

// FileHeader is the per-file header stored as a prefix to every encrypted
// file: a fresh content key (reused for every chunk of that file) plus the
// header's own nonce, which is also folded into every chunk's additional
// data.
type FileHeader struct {
	Nonce      []byte
	Reserved   []byte
	ContentKey []byte
}

const (
	// HeaderContentKeySize is the size of FileHeader.ContentKey.
	HeaderContentKeySize = 32
	// HeaderReservedSize is the size of FileHeader.Reserved.
	HeaderReservedSize = 8
	// HeaderPayloadSize is the size of the header's encrypted payload,
	// before the content cipher's nonce/tag overhead.
	HeaderPayloadSize = HeaderContentKeySize + HeaderReservedSize
	// HeaderReservedValue is the all-ones sentinel every header's Reserved
	// field must decrypt to; readers reject anything else.
	HeaderReservedValue uint64 = 0xFFFFFFFFFFFFFFFF
)

// NewHeader creates a randomly initialized FileHeader: a fresh nonce sized
// for this Cryptor's content cipher and a fresh 256-bit content key.
func (c *Cryptor) NewHeader() (header FileHeader, err error) {
	header.Nonce = make([]byte, c.contentCryptor.NonceSize())
	header.ContentKey = make([]byte, HeaderContentKeySize)
	header.Reserved = make([]byte, HeaderReservedSize)

	if _, err = rand.Read(header.Nonce); err != nil {
		return
	}
	if _, err = rand.Read(header.ContentKey); err != nil {
		return
	}
	binary.BigEndian.PutUint64(header.Reserved, HeaderReservedValue)
	return
}

type headerPayload struct {
	Reserved   [HeaderReservedSize]byte
	ContentKey [HeaderContentKeySize]byte
}

var _ [0]struct{} = [unsafe.Sizeof(headerPayload{}) - HeaderPayloadSize]struct{}{}

func copySameLength(dst, src []byte, name string) error {
	if len(dst) != len(src) {
		return fmt.Errorf("incorrect length of %s: expected %d got %d", name, len(dst), len(src))
	}
	copy(dst, src)
	return nil
}

// MarshalHeader encrypts h under this Cryptor's content cipher and writes
// it. The header is authenticated on its own (no additional data), since
// nothing besides the vault's own decryption ever needs it.
func (c *Cryptor) MarshalHeader(w io.Writer, h FileHeader) error {
	var payload headerPayload
	if err := copySameLength(payload.Reserved[:], h.Reserved, "Reserved"); err != nil {
		return err
	}
	if err := copySameLength(payload.ContentKey[:], h.ContentKey, "ContentKey"); err != nil {
		return err
	}

	var encBuffer bytes.Buffer
	if err := binary.Write(&encBuffer, binary.BigEndian, &payload); err != nil {
		return err
	}
	encPayload := c.contentCryptor.EncryptChunk(encBuffer.Bytes(), h.Nonce, nil)
	_, err := w.Write(encPayload)
	return err
}

// UnmarshalHeader reads and decrypts a header. A tampered or foreign-key
// header surfaces as ErrIntegrityViolation; a header whose Reserved field
// fails to decrypt to the all-ones sentinel does too.
func (c *Cryptor) UnmarshalHeader(r io.Reader) (header FileHeader, err error) {
	encHeader := make([]byte, c.contentCryptor.NonceSize()+HeaderPayloadSize+c.contentCryptor.TagSize())
	if _, err = io.ReadFull(r, encHeader); err != nil {
		return
	}
	nonce := append([]byte{}, encHeader[:c.contentCryptor.NonceSize()]...)

	decrypted, err := c.contentCryptor.DecryptChunk(encHeader, nil)
	if err != nil {
		return header, err
	}

	var payload headerPayload
	if err = binary.Read(bytes.NewReader(decrypted), binary.BigEndian, &payload); err != nil {
		return
	}
	if binary.BigEndian.Uint64(payload.Reserved[:]) != HeaderReservedValue {
		return header, ErrIntegrityViolation
	}

	header.Nonce = nonce
	header.ContentKey = payload.ContentKey[:]
	header.Reserved = payload.Reserved[:]
	return header, nil
}
