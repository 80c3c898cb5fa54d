package process

import (
	"io"
	"sync"
	"time"
)

// Timestamper is an io.Writer interceptor that inserts a timestamp at the
// start of each line of output. A line starts after a newline, after an
// erase-in-line sequence, or when output resumes on the same line after the
// timeout has passed. Timestamps are never inserted in the middle of an ANSI
// escape sequence.
type Timestamper struct {
	w         io.Writer
	timestamp func(time.Time) string
	timeout   time.Duration

	mu        sync.Mutex
	ansi      ansiParser
	inCSI     bool
	pending   bool
	lastWrite time.Time
}

// NewTimestamper creates a timestamper that writes to w, using f to format
// the timestamps.
func NewTimestamper(w io.Writer, f func(time.Time) string, timeout time.Duration) *Timestamper {
	return &Timestamper{
		w:         w,
		timestamp: f,
		timeout:   timeout,
		pending:   true,
	}
}

func (t *Timestamper) Write(data []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if !t.pending && t.timeout > 0 && now.Sub(t.lastWrite) > t.timeout {
		// Output has stalled on this line for a while, so it deserves a
		// fresh timestamp when it resumes.
		t.pending = true
	}
	t.lastWrite = now

	out := make([]byte, 0, len(data)+32)

	for _, b := range data {
		inside := t.ansi.insideCode()

		if t.pending && !inside {
			out = append(out, t.timestamp(now)...)
			t.pending = false
		}

		t.ansi.Write([]byte{b}) //nolint:errcheck // ansiParser.Write never returns errors
		out = append(out, b)

		switch {
		case !inside && b == 0x1b:
			t.inCSI = false

		case inside && !t.ansi.insideCode():
			// The sequence just ended. An erase-in-line means whatever was
			// on this line is gone, so restamp it.
			if t.inCSI && b == 'K' {
				t.pending = true
			}
			t.inCSI = false

		case inside && b == '[':
			t.inCSI = true

		case b == '\n':
			t.pending = true
		}
	}

	if _, err := t.w.Write(out); err != nil {
		return 0, err
	}

	return len(data), nil
}
