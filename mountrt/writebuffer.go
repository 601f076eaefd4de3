package mountrt

import "fmt"

// WriteBuffer accumulates random-access writes for a single open file
// handle in memory before a single sequential vaultfs.WriteFile flush --
// needed because the vault content stream is write-once/sequential per
// file, while FUSE/WebDAV/NFS clients issue writes at arbitrary offsets.
type WriteBuffer struct {
	data  []byte
	dirty bool
}

// NewWriteBuffer returns an empty buffer, optionally seeded with a file's
// current contents (read back before the first write, so a partial
// rewrite doesn't truncate the rest of the file).
func NewWriteBuffer(initial []byte) *WriteBuffer {
	b := make([]byte, len(initial))
	copy(b, initial)
	return &WriteBuffer{data: b}
}

// Write overwrites (and grows, zero-filling any gap) the buffer starting
// at offset.
func (w *WriteBuffer) Write(offset int64, p []byte) (int, error) {
	if offset < 0 {
		return 0, fmt.Errorf("mountrt: negative write offset %d", offset)
	}
	end := offset + int64(len(p))
	if end > int64(len(w.data)) {
		grown := make([]byte, end)
		copy(grown, w.data)
		w.data = grown
	}
	copy(w.data[offset:end], p)
	w.dirty = true
	return len(p), nil
}

// Read copies up to len(p) bytes starting at offset into p, returning the
// number of bytes copied (short reads at EOF, like io.ReaderAt).
func (w *WriteBuffer) Read(offset int64, p []byte) (int, error) {
	if offset < 0 || offset >= int64(len(w.data)) {
		return 0, nil
	}
	n := copy(p, w.data[offset:])
	return n, nil
}

// Truncate resizes the buffer to exactly n bytes, zero-filling on growth.
func (w *WriteBuffer) Truncate(n int64) error {
	if n < 0 {
		return fmt.Errorf("mountrt: negative truncate size %d", n)
	}
	if n <= int64(len(w.data)) {
		w.data = w.data[:n]
	} else {
		grown := make([]byte, n)
		copy(grown, w.data)
		w.data = grown
	}
	w.dirty = true
	return nil
}

// Len returns the buffer's current size.
func (w *WriteBuffer) Len() int64 { return int64(len(w.data)) }

// Dirty reports whether the buffer has unflushed writes.
func (w *WriteBuffer) Dirty() bool { return w.dirty }

// Bytes returns the buffer's full contents, for a flush to
// vaultfs.Fs.WriteFile.
func (w *WriteBuffer) Bytes() []byte { return w.data }

// MarkFlushed clears the dirty flag after a successful flush.
func (w *WriteBuffer) MarkFlushed() { w.dirty = false }
