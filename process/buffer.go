package process

import "sync"

// Buffer implements a concurrent-safe output buffer for processes.
type Buffer struct {
	mu  sync.Mutex
	buf []byte
}

// Write appends data to the buffer.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// ReadAndTruncate reads the unread contents of the buffer, and then truncates
// (empties) the buffer.
func (b *Buffer) ReadAndTruncate() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) == 0 {
		return nil
	}
	// Hand back the current buf, and put a fresh one of the same capacity in
	// its place.
	out := b.buf
	b.buf = make([]byte, 0, cap(b.buf))
	return out
}
