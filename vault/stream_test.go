package vault

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestStreamRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		stepSize := rapid.SampledFrom([]int{512, 600, 1000, ChunkPayloadSize}).Draw(t, "stepSize")
		maxLength := 10000
		length := rapid.IntRange(0, maxLength).Draw(t, "length")

		src := fixedSizeByteArray(length).Draw(t, "src")
		cryptor := drawTestCryptor(t)
		nonce := fixedSizeByteArray(cryptor.contentCryptor.NonceSize()).Draw(t, "nonce")
		contentKey := fixedSizeByteArray(HeaderContentKeySize).Draw(t, "contentKey")
		header := FileHeader{ContentKey: contentKey, Nonce: nonce}

		buf := &bytes.Buffer{}

		w, err := cryptor.NewContentWriter(buf, header)
		require.NoError(t, err)

		n := 0
		for n < length {
			b := length - n
			if b > stepSize {
				b = stepSize
			}

			nn, err := w.Write(src[n : n+b])
			require.NoError(t, err)
			assert.Equal(t, b, nn, "wrong number of bytes written")

			n += nn
		}

		require.NoError(t, w.Close(), "close returned an error")

		r, err := cryptor.NewContentReader(buf, header, 0)
		require.NoError(t, err)

		n = 0
		readBuf := make([]byte, stepSize)
		for n < length {
			nn, err := r.Read(readBuf)
			require.NoErrorf(t, err, "read error at index %d", n)

			assert.Equalf(t, readBuf[:nn], src[n:n+nn], "wrong data at indexes %d - %d", n, n+nn)

			if nn == 0 {
				t.Fatal() // avoid infinite loop
			}
			n += nn
		}
	})
}

func TestHeaderWriter(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxLength := 10000
		length := rapid.IntRange(0, maxLength).Draw(t, "length")
		data := fixedSizeByteArray(length).Draw(t, "src")

		cryptor := drawTestCryptor(t)

		buf := &bytes.Buffer{}
		w, err := cryptor.NewWriter(buf)
		require.NoError(t, err)

		_, err = w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		header, err := cryptor.UnmarshalHeader(buf)
		require.NoError(t, err)
		r, err := cryptor.NewContentReader(buf, header, 0)
		require.NoError(t, err)

		readBuf := make([]byte, length)
		_, err = io.ReadFull(r, readBuf)
		require.NoError(t, err)
		assert.Equal(t, data, readBuf)
	})
}

func TestHeaderReader(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxLength := 10000
		length := rapid.IntRange(0, maxLength).Draw(t, "length")
		data := fixedSizeByteArray(length).Draw(t, "src")

		cryptor := drawTestCryptor(t)

		buf := &bytes.Buffer{}
		w, err := cryptor.NewWriter(buf)
		require.NoError(t, err)

		_, err = w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		r, err := cryptor.NewReader(buf)
		require.NoError(t, err)

		readBuf := make([]byte, length)
		_, err = io.ReadFull(r, readBuf)
		require.NoError(t, err)
		assert.Equal(t, data, readBuf)
	})
}

func TestEmptyFileRoundTrips(t *testing.T) {
	cryptor := NewMasterKeyCryptorForTest(t)

	buf := &bytes.Buffer{}
	w, err := cryptor.NewWriter(buf)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.NotZero(t, buf.Len(), "empty file must still produce header plus one empty chunk")

	r, err := cryptor.NewReader(buf)
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Empty(t, out)
}

// TestEncryptedSize checks the literal chunk-boundary byte-size scenario:
// a 32769-byte plaintext file (one full chunk plus one byte) encrypts to
// 32893 bytes under SIV_GCM (68-byte header + 32796-byte full chunk, i.e.
// 32768 bytes plus 28 bytes of overhead + 29-byte final chunk, i.e. 1 byte
// plus 28 bytes of overhead).
func TestEncryptedSize(t *testing.T) {
	cryptor := NewMasterKeyCryptorForTest(t)

	assert.EqualValues(t, 32893, cryptor.EncryptedFileSize(32769))
	assert.EqualValues(t, 32769, cryptor.DecryptedFileSize(32893))
}

// NewMasterKeyCryptorForTest builds a SIV_GCM Cryptor over a freshly
// generated master key, for tests that don't need property-based key
// generation.
func NewMasterKeyCryptorForTest(t testingT) Cryptor {
	key, err := NewMasterKey()
	if err != nil {
		t.Fatalf("generating master key: %v", err)
	}
	c, err := NewCryptor(key, CipherComboSivGcm)
	if err != nil {
		t.Fatalf("creating cryptor: %v", err)
	}
	return c
}

type testingT interface {
	Fatalf(format string, args ...any)
}
