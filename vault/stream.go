package vault

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// ChunkPayloadSize is the plaintext size of every file chunk but the last.
const ChunkPayloadSize = 32 * 1024

// encryptionOverhead returns the per-chunk nonce+tag overhead added by this
// Cryptor's content cipher.
func (c *Cryptor) encryptionOverhead() int {
	return c.contentCryptor.NonceSize() + c.contentCryptor.TagSize()
}

// EncryptedFileSize returns the ciphertext size (header + chunks) of a
// plaintext file of the given size.
func (c *Cryptor) EncryptedFileSize(size int64) int64 {
	overhead := int64(c.encryptionOverhead())

	fullChunksSize := (size / ChunkPayloadSize) * (ChunkPayloadSize + overhead)
	rest := size % ChunkPayloadSize
	if rest > 0 || size == 0 {
		rest += overhead
	}

	return int64(HeaderPayloadSize) + overhead + fullChunksSize + rest
}

// DecryptedFileSize returns the plaintext size of a ciphertext file of the
// given size.
func (c *Cryptor) DecryptedFileSize(size int64) int64 {
	overhead := int64(c.encryptionOverhead())

	size -= int64(HeaderPayloadSize) + overhead

	fullChunksSize := (size / (ChunkPayloadSize + overhead)) * ChunkPayloadSize
	rest := size % (ChunkPayloadSize + overhead)
	if rest > 0 {
		rest -= overhead
	}

	return fullChunksSize + rest
}

const (
	lastChunk    = true
	notLastChunk = false
)

// Reader decrypts a vault file's content stream as it is read.
type Reader struct {
	cryptor contentCryptor
	header  FileHeader
	src     io.Reader

	unread []byte
	buf    []byte

	chunkNr uint64

	err error
}

// NewContentReader builds a Reader for a file's content given its already
// unmarshaled header. Use this when the caller wants to seek to a chunk
// boundary before handing the remaining stream to the reader.
func (c *Cryptor) NewContentReader(src io.Reader, header FileHeader, startChunk uint64) (*Reader, error) {
	cc, err := c.newChunkCryptor(header.ContentKey)
	if err != nil {
		return nil, err
	}
	return &Reader{
		cryptor: cc,
		header:  header,
		src:     src,
		buf:     make([]byte, ChunkPayloadSize+c.encryptionOverhead()),
		chunkNr: startChunk,
	}, nil
}

// NewReader reads the file header from src and returns a Reader positioned
// at the start of the content stream.
func (c *Cryptor) NewReader(src io.Reader) (*Reader, error) {
	header, err := c.UnmarshalHeader(src)
	if err != nil {
		return nil, err
	}
	return c.NewContentReader(src, header, 0)
}

func (r *Reader) Read(p []byte) (int, error) {
	if len(r.unread) > 0 {
		n := copy(p, r.unread)
		r.unread = r.unread[n:]
		return n, nil
	}

	if r.err != nil {
		return 0, r.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	last, err := r.readChunk()
	if err != nil {
		r.err = err
		return 0, err
	}

	n := copy(p, r.unread)
	r.unread = r.unread[n:]

	if last {
		if _, err := r.src.Read(make([]byte, 1)); err == nil {
			r.err = errors.New("vault: trailing data after end of encrypted file")
		} else if err != io.EOF {
			r.err = fmt.Errorf("reading after end of encrypted file: %w", err)
		} else {
			r.err = io.EOF
		}
	}

	return n, nil
}

func (r *Reader) readChunk() (last bool, err error) {
	if len(r.unread) != 0 {
		panic("vault: internal error: readChunk called with dirty buffer")
	}

	in := r.buf
	n, err := io.ReadFull(r.src, in)

	switch {
	case err == io.EOF:
		return true, nil
	case err == io.ErrUnexpectedEOF:
		last = true
		in = in[:n]
	case err != nil:
		return false, err
	}

	ad := r.cryptor.fileAssociatedData(r.header.Nonce, r.chunkNr)
	payload, err := r.cryptor.DecryptChunk(in, ad)
	if err != nil {
		return false, err
	}

	r.chunkNr++
	r.unread = r.buf[:copy(r.buf, payload)]
	return last, nil
}

// Writer encrypts a vault file's content stream as it is written.
type Writer struct {
	cryptor contentCryptor
	header  FileHeader

	dst       io.Writer
	unwritten []byte
	buf       []byte

	err error

	chunkNr uint64
}

// NewContentWriter builds a Writer for a file's content given an
// already-written header.
func (c *Cryptor) NewContentWriter(dst io.Writer, header FileHeader) (*Writer, error) {
	cc, err := c.newChunkCryptor(header.ContentKey)
	if err != nil {
		return nil, err
	}
	w := &Writer{
		cryptor: cc,
		header:  header,
		dst:     dst,
		buf:     make([]byte, ChunkPayloadSize+c.encryptionOverhead()),
	}
	w.unwritten = w.buf[:0]
	return w, nil
}

// NewWriter creates a fresh random header, writes it, and returns a Writer
// for the content that follows.
func (c *Cryptor) NewWriter(dst io.Writer) (*Writer, error) {
	header, err := c.NewHeader()
	if err != nil {
		return nil, err
	}
	if err := c.MarshalHeader(dst, header); err != nil {
		return nil, err
	}
	return c.NewContentWriter(dst, header)
}

func (w *Writer) Write(p []byte) (n int, err error) {
	if w.err != nil {
		return 0, w.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	total := len(p)
	for len(p) > 0 {
		freeBuf := w.buf[len(w.unwritten):ChunkPayloadSize]
		n := copy(freeBuf, p)
		p = p[n:]
		w.unwritten = w.unwritten[:len(w.unwritten)+n]

		if len(w.unwritten) == ChunkPayloadSize && len(p) > 0 {
			if err := w.flushChunk(notLastChunk); err != nil {
				w.err = err
				return 0, err
			}
		}
	}
	return total, nil
}

// Close flushes the last (possibly empty) chunk. It does not close the
// underlying writer. An empty file still produces a header plus one
// authenticated empty chunk.
func (w *Writer) Close() error {
	if w.err != nil {
		return w.err
	}

	if err := w.flushChunk(lastChunk); err != nil {
		w.err = err
		return err
	}

	w.err = errors.New("vault: writer already closed")
	return nil
}

func (w *Writer) flushChunk(last bool) error {
	if !last && len(w.unwritten) != ChunkPayloadSize {
		panic("vault: internal error: flush called with partial chunk")
	}

	if len(w.unwritten) == 0 && !last {
		return nil
	}
	if len(w.unwritten) == 0 && w.chunkNr > 0 {
		// Non-empty file whose size is an exact multiple of the chunk
		// size: nothing left to flush for the final call.
		return nil
	}

	nonce := make([]byte, w.cryptor.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating chunk nonce: %w", err)
	}
	ad := w.cryptor.fileAssociatedData(w.header.Nonce, w.chunkNr)
	out := w.cryptor.EncryptChunk(w.unwritten, nonce, ad)

	if _, err := w.dst.Write(out); err != nil {
		return err
	}

	w.unwritten = w.buf[:0]
	w.chunkNr++
	return nil
}
