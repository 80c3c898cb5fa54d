package shell_test

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kubegate/kubegate/internal/shell"
)

const esc = "\x1b"

func TestWriterLogger(t *testing.T) {
	t.Parallel()

	got := &bytes.Buffer{}
	l := shell.NewWriterLogger(got, false)

	l.Headerf("Installing %d packages", 3)
	l.Promptf("yum install -y %s", "kubeadm kubelet kubectl")
	l.Printf("Complete!")
	l.Commentf("Wrote %s", "/etc/yum.repos.d/kubernetes.repo")
	l.Warningf("yum install failed (%s)", "attempt 1/3")
	l.Errorf("Error tearing down gate: %v", io.ErrUnexpectedEOF)

	want := strings.Join([]string{
		"~~~ Installing 3 packages",
		"$ yum install -y kubeadm kubelet kubectl",
		"Complete!",
		"# Wrote /etc/yum.repos.d/kubernetes.repo",
		"⚠️ Warning: yum install failed (attempt 1/3)",
		"^^^ +++",
		"🚨 Error: Error tearing down gate: unexpected EOF",
		"^^^ +++",
		"",
	}, "\n")

	if diff := cmp.Diff(got.String(), want); diff != "" {
		t.Fatalf("shell.WriterLogger output diff (-got +want):\n%s", diff)
	}
}

func TestWriterLoggerAnsi(t *testing.T) {
	t.Parallel()

	got := &bytes.Buffer{}
	l := shell.NewWriterLogger(got, true)

	l.Headerf("Waiting for cluster to become ready")
	l.Promptf("kubectl get nodes --no-headers")
	l.Commentf("probe 1: NotReady")
	l.Warningf("probe error: %v", io.EOF)
	l.Errorf("Failed to setup kubernetes cluster in time")

	// Headerf ignores the Ansi flag.
	want := strings.Join([]string{
		"~~~ Waiting for cluster to become ready",
		esc + "[90m$" + esc + "[0m kubectl get nodes --no-headers",
		esc + "[90m# probe 1: NotReady" + esc + "[0m",
		esc + "[33m⚠️ Warning: probe error: EOF" + esc + "[0m",
		"^^^ +++",
		esc + "[31m🚨 Error: Failed to setup kubernetes cluster in time" + esc + "[0m",
		"^^^ +++",
		"",
	}, "\n")

	if diff := cmp.Diff(got.String(), want); diff != "" {
		t.Fatalf("shell.WriterLogger ansi output diff (-got +want):\n%s", diff)
	}
}

func TestLoggerStreamer(t *testing.T) {
	t.Parallel()

	got := &bytes.Buffer{}
	streamer := shell.NewLoggerStreamer(shell.NewWriterLogger(got, false))

	// Lines arrive in fragments, DOS line endings included.
	fmt.Fprint(streamer, "node-0   NotReady")
	fmt.Fprint(streamer, "   control-plane\r\n")
	fmt.Fprint(streamer, "node-0   Ready   control-plane\nno newline after this")

	if err := streamer.Close(); err != nil {
		t.Errorf("streamer.Close() = %v", err)
	}

	want := strings.Join([]string{
		"node-0   NotReady   control-plane",
		"node-0   Ready   control-plane",
		"no newline after this",
		"",
	}, "\n")

	if diff := cmp.Diff(got.String(), want); diff != "" {
		t.Fatalf("shell.LoggerStreamer output diff (-got +want):\n%s", diff)
	}
}

func BenchmarkDoubleFmt(b *testing.B) {
	//nolint:errcheck // Writes to io.Discard never error.
	logf := func(format string, v ...any) {
		fmt.Fprintf(io.Discard, "%s", fmt.Sprintf(format, v...))
		fmt.Fprintln(io.Discard)
	}
	for b.Loop() {
		logf("asdfghjkl %s %d %t", "hi", 42, true)
	}
}

func BenchmarkFmtConcat(b *testing.B) {
	//nolint:errcheck // Writes to io.Discard never error.
	logf := func(format string, v ...any) {
		fmt.Fprintf(io.Discard, format+"\n", v...)
	}
	for b.Loop() {
		logf("asdfghjkl %s %d %t", "hi", 42, true)
	}
}
