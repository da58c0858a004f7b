// Package tailbuffer provides a fixed-size ring buffer used to retain the
// most recent bytes of a worker's stdout/stderr for crash diagnostics,
// without holding the entire process lifetime's output in memory.
package tailbuffer

import (
	"io"
	"sync"
)

type tailBuffer struct {
	lock     sync.Mutex
	buf      []byte
	capacity uint
	size     uint
	read     uint
	write    uint
}

// New returns an io.ReadWriter backed by a ring buffer of the given size. A
// Write that exceeds the remaining capacity discards the oldest bytes.
func New(size uint) io.ReadWriter {
	return &tailBuffer{
		buf:      make([]byte, size),
		capacity: size,
	}
}

func (w *tailBuffer) Write(buffer []byte) (int, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	written := 0
	shouldPushRead := false
	si := 0
	if len(buffer) > int(w.capacity) {
		si = len(buffer) - int(w.capacity)
	}
	for _, b := range buffer[si:] {
		if shouldPushRead {
			if w.read+1 < w.capacity {
				w.read++
			} else {
				w.read = 0
			}
		}
		w.buf[w.write] = b
		if w.write+1 < w.capacity {
			w.write++
		} else {
			w.write = 0
		}
		w.size++
		if w.size > w.capacity {
			w.size = w.capacity
		}
		shouldPushRead = w.write == w.read
		written++
	}
	return si + written, nil
}

func (w *tailBuffer) Read(buffer []byte) (int, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	var err error
	read := uint(0)
	for read < w.size && int(read) < len(buffer) {
		buffer[read] = w.buf[w.read]
		if w.read+1 < w.capacity {
			w.read++
		} else {
			w.read = 0
		}
		read++
	}
	w.size -= read
	if read == 0 {
		err = io.EOF
	}
	return int(read), err
}

// string drains the buffer's current contents without needing a
// caller-supplied slice, convenient for embedding the tail in a log line or
// error message.
func (w *tailBuffer) string() string {
	buf := make([]byte, w.capacity)
	n, _ := w.Read(buf)
	return string(buf[:n])
}

// Snapshot returns the buffered tail as a string without requiring the
// caller to manage a byte slice, for use when reporting a worker crash.
func Snapshot(rw io.ReadWriter) string {
	if tb, ok := rw.(*tailBuffer); ok {
		return tb.string()
	}
	buf, _ := io.ReadAll(rw)
	return string(buf)
}
