// Package replacer provides a streaming string replacer.
package replacer

import (
	"bytes"
	"io"
	"slices"
	"sync"
)

// Replacer is a streaming multi-string replacer suitable for detecting or
// redacting secrets in a stream. Writes are searched for needles, each match
// is passed through a replacement callback, and the result is forwarded to
// the destination writer.
//
// Matches are found earliest-first, preferring the longest needle at a given
// position. Needles that overlap an existing match extend it, so a secret
// can't partially escape by straddling another one. Because a write can end
// in the middle of a potential match, the replacer holds back the last few
// bytes of the stream until they can no longer begin a match; call Flush at
// the end of the stream to release them.
type Replacer struct {
	// The replacement callback. It is given the matched range of the buffer
	// and its return value is forwarded in its place. Returning the argument
	// forwards the stream unaltered.
	replacement func([]byte) []byte

	// For synchronising writes. Each write can touch everything below.
	mu sync.Mutex

	// Output is re-streamed to this writer.
	dst io.Writer

	// Strings being searched for, and the length of the longest one.
	needles   []string
	maxNeedle int

	// Buffered data not yet forwarded: a held-back partial match tail.
	buf []byte
}

// New returns a new Replacer that forwards writes to dst, with each match of
// a needle replaced by the result of the replacement callback.
//
// The callback is given the subslice of the internal buffer that matched. It
// must not retain the slice after returning, and should not grow it.
func New(dst io.Writer, needles []string, replacement func([]byte) []byte) *Replacer {
	r := &Replacer{
		replacement: replacement,
		dst:         dst,
		buf:         make([]byte, 0, 8192),
	}
	r.Reset(needles)
	return r
}

// Write searches the stream for needles, calls the replacement callback to
// obtain any replacements, and forwards the output to the destination writer.
func (r *Replacer) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf = append(r.buf, b...)
	if err := r.scan(false); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Flush writes all buffered data to the destination. It assumes there is no
// more data in the stream, and so any incomplete matches are non-matches.
func (r *Replacer) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scan(true)
}

// scan forwards as much of the buffer as possible. When final is false, the
// last maxNeedle-1 bytes are held back, since they could be the start of a
// match that completes in a later write.
func (r *Replacer) scan(final bool) error {
	limit := len(r.buf)
	if !final && r.maxNeedle > 1 {
		limit = len(r.buf) - (r.maxNeedle - 1)
	}

	flushed := 0
	for r.maxNeedle > 0 {
		start, end := r.earliestMatch(flushed)
		if start < 0 || start >= limit {
			break
		}

		end = r.extendMatch(start, end)
		if !final && r.openTail(start+1, end) {
			// An incomplete needle occurrence inside the range could
			// complete with more input and extend it, so hold everything
			// from the start of the range.
			limit = start
			break
		}

		if _, err := r.dst.Write(r.buf[flushed:start]); err != nil {
			return err
		}
		if repl := r.replacement(r.buf[start:end]); len(repl) > 0 {
			if _, err := r.dst.Write(repl); err != nil {
				return err
			}
		}
		flushed = end
	}

	if limit > flushed {
		if _, err := r.dst.Write(r.buf[flushed:limit]); err != nil {
			return err
		}
		flushed = limit
	}

	if flushed > 0 {
		n := copy(r.buf, r.buf[flushed:])
		r.buf = r.buf[:n]
	}
	return nil
}

// earliestMatch returns the range of the first needle occurrence at or after
// from, preferring the longest needle when several start together. It returns
// (-1, -1) when nothing matches.
func (r *Replacer) earliestMatch(from int) (int, int) {
	start, end := -1, -1
	for _, n := range r.needles {
		i := bytes.Index(r.buf[from:], []byte(n))
		if i < 0 {
			continue
		}
		s := from + i
		if start < 0 || s < start || (s == start && s+len(n) > end) {
			start, end = s, s+len(n)
		}
	}
	return start, end
}

// extendMatch grows the range to cover any needle occurrences that overlap
// it, repeating until the range stops growing.
func (r *Replacer) extendMatch(start, end int) int {
	for {
		extended := false
		for _, n := range r.needles {
			nb := []byte(n)
			from := start + 1
			for from < end {
				i := bytes.Index(r.buf[from:], nb)
				if i < 0 || from+i >= end {
					break
				}
				if e := from + i + len(n); e > end {
					end = e
					extended = true
				}
				from += i + 1
			}
		}
		if !extended {
			return end
		}
	}
}

// openTail reports whether an incomplete occurrence of any needle starts in
// [from, to): one whose buffered bytes are a strict prefix of the needle, so
// it runs past the end of the buffer. With more input such an occurrence can
// become a match overlapping a range found by extendMatch.
func (r *Replacer) openTail(from, to int) bool {
	for s := from; s < to; s++ {
		rem := r.buf[s:]
		for _, n := range r.needles {
			if len(n) > len(rem) && n[:len(rem)] == string(rem) {
				return true
			}
		}
	}
	return false
}

// Size returns the number of needles.
func (r *Replacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.needles)
}

// Needles returns the current needles.
func (r *Replacer) Needles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.needles)
}

// Reset removes all current needles and sets a new set of needles. Needles
// already buffered as potential partial matches are matched against the new
// set on the next write.
func (r *Replacer) Reset(needles []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.needles = r.needles[:0]
	r.maxNeedle = 0
	r.unsafeAdd(needles)
}

// Add adds more needles to be matched by the replacer. New needles are only
// compared against buffer content that has not yet been forwarded.
func (r *Replacer) Add(needles ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.unsafeAdd(needles)
}

func (r *Replacer) unsafeAdd(needles []string) {
	for _, n := range needles {
		if n == "" || slices.Contains(r.needles, n) {
			continue
		}
		r.needles = append(r.needles, n)
		if len(n) > r.maxNeedle {
			r.maxNeedle = len(n)
		}
	}
}
