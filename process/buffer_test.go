package process

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBufferWriteThenDrain(t *testing.T) {
	var b Buffer

	if got := b.ReadAndTruncate(); got != nil {
		t.Errorf("ReadAndTruncate() on an empty buffer = %v, want nil", got)
	}

	line := []byte("kubelet entered running state\n")
	n, err := b.Write(line)
	if err != nil {
		t.Errorf("b.Write(%q) error = %v", line, err)
	}
	if n != len(line) {
		t.Errorf("b.Write(%q) = %d, want %d", line, n, len(line))
	}

	if diff := cmp.Diff(b.ReadAndTruncate(), line); diff != "" {
		t.Errorf("b.ReadAndTruncate() diff (-got +want):\n%s", diff)
	}

	// drained, so the next read has nothing
	if got := b.ReadAndTruncate(); got != nil {
		t.Errorf("ReadAndTruncate() after draining = %v, want nil", got)
	}
}

func TestBufferConcurrentWrites(t *testing.T) {
	var b Buffer

	const writers = 8
	const each = 100

	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range each {
				b.Write([]byte("x")) //nolint:errcheck // Buffer.Write cannot fail
			}
		}()
	}
	wg.Wait()

	if got, want := len(b.ReadAndTruncate()), writers*each; got != want {
		t.Errorf("len(b.ReadAndTruncate()) = %d, want %d", got, want)
	}
}
