package vault

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestHeaderNew(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cryptor := drawTestCryptor(t)
		h, err := cryptor.NewHeader()
		require.NoError(t, err)

		assert.Len(t, h.Nonce, cryptor.contentCryptor.NonceSize())
		assert.Len(t, h.ContentKey, HeaderContentKeySize)
		assert.Len(t, h.Reserved, HeaderReservedSize)

		assert.Equal(t, HeaderReservedValue, binary.BigEndian.Uint64(h.Reserved))
	})
}

func TestHeaderRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		buf := &bytes.Buffer{}
		cryptor := drawTestCryptor(t)

		h1, err := cryptor.NewHeader()
		require.NoError(t, err)

		err = cryptor.MarshalHeader(buf, h1)
		require.NoError(t, err)

		assert.Len(t, buf.Bytes(), HeaderPayloadSize+cryptor.encryptionOverhead())

		h2, err := cryptor.UnmarshalHeader(buf)
		require.NoError(t, err)

		assert.Equal(t, h1, h2)
	})
}

func TestHeaderTamperedRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		buf := &bytes.Buffer{}
		cryptor := drawTestCryptor(t)

		h1, err := cryptor.NewHeader()
		require.NoError(t, err)
		require.NoError(t, cryptor.MarshalHeader(buf, h1))

		tampered := buf.Bytes()
		tampered[len(tampered)-1] ^= 0xFF

		_, err = cryptor.UnmarshalHeader(bytes.NewReader(tampered))
		assert.ErrorIs(t, err, ErrIntegrityViolation)
	})
}
