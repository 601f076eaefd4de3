package mountrt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteBufferWriteAndRead(t *testing.T) {
	w := NewWriteBuffer(nil)
	n, err := w.Write(0, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.True(t, w.Dirty())

	buf := make([]byte, 5)
	n, err = w.Read(0, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestWriteBufferRandomAccessWithGap(t *testing.T) {
	w := NewWriteBuffer(nil)
	_, err := w.Write(5, []byte("world"))
	require.NoError(t, err)
	assert.EqualValues(t, 10, w.Len())

	buf := make([]byte, 10)
	n, err := w.Read(0, buf)
	require.NoError(t, err)
	assert.Equal(t, "\x00\x00\x00\x00\x00world", string(buf[:n]))
}

func TestWriteBufferSeededFromExistingContent(t *testing.T) {
	w := NewWriteBuffer([]byte("0123456789"))
	_, err := w.Write(2, []byte("XY"))
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, _ := w.Read(0, buf)
	assert.Equal(t, "01XY456789", string(buf[:n]))
}

func TestWriteBufferTruncate(t *testing.T) {
	w := NewWriteBuffer([]byte("0123456789"))

	require.NoError(t, w.Truncate(4))
	assert.Equal(t, "0123", string(w.Bytes()))

	require.NoError(t, w.Truncate(6))
	assert.Equal(t, []byte("0123\x00\x00"), w.Bytes())

	err := w.Truncate(-1)
	assert.Error(t, err)
}

func TestWriteBufferMarkFlushed(t *testing.T) {
	w := NewWriteBuffer(nil)
	_, _ = w.Write(0, []byte("x"))
	assert.True(t, w.Dirty())
	w.MarkFlushed()
	assert.False(t, w.Dirty())
}
