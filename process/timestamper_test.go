package process_test

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/kubegate/kubegate/process"
)

func TestTimestamperStampsLines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		desc        string
		input, want string
	}{
		{
			desc:  "one stamp per line",
			input: "pulling images\nstarting kubelet\n",
			want:  "#1: pulling images\n#2: starting kubelet\n",
		},
		{
			desc:  "erase to end of line restamps",
			input: "50%\x1b[K80%\x1bok",
			want:  "#1: 50%\x1b[K#2: 80%\x1bok",
		},
		{
			desc:  "erase whole line restamps",
			input: "downloading\x1b[2Kinstalled",
			want:  "#1: downloading\x1b[2K#2: installed",
		},
		{
			desc:  "cursor movement then erase",
			input: "waiting\x1b[1B\x1b[1A\x1b[2Kready",
			want:  "#1: waiting\x1b[1B\x1b[1A\x1b[2K#2: ready",
		},
		{
			desc:  "bracket K without an escape is plain text",
			input: "ok\n\x1b[1B a literal bracket K pair [Khere",
			want:  "#1: ok\n#2: \x1b[1B a literal bracket K pair [Khere",
		},
	}

	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			var lines atomic.Int32
			out := &bytes.Buffer{}

			pw := process.NewTimestamper(out, func(time.Time) string {
				return fmt.Sprintf("#%d: ", lines.Add(1))
			}, 1*time.Second)

			n, err := pw.Write([]byte(tc.input))
			if err != nil {
				t.Fatalf("pw.Write(%q) error = %v", tc.input, err)
			}

			if got, want := n, len(tc.input); got != want {
				t.Errorf("pw.Write(%q) = %d, want %d", tc.input, got, want)
			}

			if diff := cmp.Diff(out.String(), tc.want); diff != "" {
				t.Errorf("timestamped output diff (-got +want):\n%s", diff)
			}
		})
	}
}

func TestTimestamperRestampsAfterStall(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	pw := process.NewTimestamper(out, func(time.Time) string {
		return "[ts] "
	}, 10*time.Millisecond)

	if _, err := pw.Write([]byte("node ")); err != nil {
		t.Fatalf("pw.Write(`node `) error = %v", err)
	}

	// A second write straight away stays on the same stamp.
	if _, err := pw.Write([]byte("still NotReady\x1b[")); err != nil {
		t.Fatalf("pw.Write(`still NotReady\\x1b[`) error = %v", err)
	}

	// After a stall the line gets a fresh stamp, but not in the middle of
	// the escape sequence left dangling above.
	time.Sleep(100 * time.Millisecond)
	if _, err := pw.Write([]byte("1mwaiting")); err != nil {
		t.Fatalf("pw.Write(`1mwaiting`) error = %v", err)
	}

	want := "[ts] node still NotReady\x1b[1m[ts] waiting"
	if diff := cmp.Diff(out.String(), want); diff != "" {
		t.Errorf("timestamped output diff (-got +want):\n%s", diff)
	}
}
