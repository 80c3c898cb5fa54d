package process_test

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kubegate/kubegate/logger"
	"github.com/kubegate/kubegate/process"
)

func TestProcessRunsAndSignalsStartedAndDone(t *testing.T) {
	var started, done int32

	p := process.New(logger.Discard, process.Config{
		Path: os.Args[0],
		Env:  []string{"TEST_MAIN=init"},
	})

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()

		<-p.Started()
		atomic.AddInt32(&started, 1)
		<-p.Done()
		atomic.AddInt32(&done, 1)
	}()

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("p.Run() error = %v", err)
	}

	wg.Wait()

	if got := atomic.LoadInt32(&started); got != 1 {
		t.Errorf("started = %d, want 1", got)
	}
	if got := atomic.LoadInt32(&done); got != 1 {
		t.Errorf("done = %d, want 1", got)
	}
	if got := p.WaitStatus().ExitStatus(); got != 0 {
		t.Errorf("p.WaitStatus().ExitStatus() = %d, want 0", got)
	}
}

func TestProcessOutput(t *testing.T) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	p := process.New(logger.Discard, process.Config{
		Path:   os.Args[0],
		Env:    []string{"TEST_MAIN=install"},
		Stdout: stdout,
		Stderr: stderr,
	})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("p.Run() error = %v", err)
	}

	if got, want := stdout.String(), "install kubelet\ninstall kubeadm\n"; got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}
	if got, want := stderr.String(), "warn selinux\nwarn swapoff\n"; got != want {
		t.Errorf("stderr = %q, want %q", got, want)
	}
}

func TestProcessOutputPTY(t *testing.T) {
	stdout := &process.Buffer{}

	p := process.New(logger.Discard, process.Config{
		Path:   os.Args[0],
		Env:    []string{"TEST_MAIN=install"},
		PTY:    true,
		Stdout: stdout,
	})

	if err := p.Run(context.Background()); err != nil {
		t.Skipf("could not run in a pty: %v", err)
	}

	// a pty merges stderr into stdout, so all four lines land in one stream
	output := string(stdout.ReadAndTruncate())
	for _, want := range []string{"install kubelet", "warn selinux", "install kubeadm", "warn swapoff"} {
		if !strings.Contains(output, want) {
			t.Errorf("pty output %q missing %q", output, want)
		}
	}
}

func TestProcessInterrupts(t *testing.T) {
	stdout := &process.Buffer{}

	p := process.New(logger.Discard, process.Config{
		Path:   os.Args[0],
		Env:    []string{"TEST_MAIN=trap"},
		Stdout: stdout,
	})

	var output []byte

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		<-p.Started()

		// interrupting before the handler is installed would kill the helper,
		// so wait for it to report readiness
		for !bytes.Contains(output, []byte("Ready")) {
			time.Sleep(10 * time.Millisecond)
			output = append(output, stdout.ReadAndTruncate()...)
		}

		if err := p.Interrupt(); err != nil {
			t.Errorf("p.Interrupt() error = %v", err)
		}
	}()

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("p.Run() error = %v", err)
	}

	wg.Wait()

	output = append(output, stdout.ReadAndTruncate()...)
	if !bytes.Contains(output, []byte("SIG terminated")) {
		t.Errorf("output = %q, want it to contain %q", output, "SIG terminated")
	}
}

func TestProcessInterruptsOnContextCancel(t *testing.T) {
	stdout := &process.Buffer{}

	p := process.New(logger.Discard, process.Config{
		Path:              os.Args[0],
		Env:               []string{"TEST_MAIN=sleeper"},
		Stdout:            stdout,
		SignalGracePeriod: time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var output []byte

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		<-p.Started()

		for !bytes.Contains(output, []byte("Ready")) {
			time.Sleep(10 * time.Millisecond)
			output = append(output, stdout.ReadAndTruncate()...)
		}

		cancel()
	}()

	if err := p.Run(ctx); err != nil {
		t.Fatalf("p.Run() error = %v", err)
	}

	wg.Wait()

	if !p.WaitStatus().Signaled() {
		t.Errorf("p.WaitStatus().Signaled() = false, want true")
	}
}

func TestProcessSetsProcessGroupID(t *testing.T) {
	p := process.New(logger.Discard, process.Config{
		Path: os.Args[0],
		Env:  []string{"TEST_MAIN=pgid"},
	})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("p.Run() error = %v", err)
	}

	if got := p.WaitStatus().ExitStatus(); got != 0 {
		t.Errorf("p.WaitStatus().ExitStatus() = %d, want 0", got)
	}
}

func TestProcessTimestampsOutput(t *testing.T) {
	stdout := &bytes.Buffer{}

	p := process.New(logger.Discard, process.Config{
		Path:      os.Args[0],
		Env:       []string{"TEST_MAIN=install"},
		Timestamp: true,
		Stdout:    stdout,
	})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("p.Run() error = %v", err)
	}

	for line := range strings.SplitSeq(strings.TrimSuffix(stdout.String(), "\n"), "\n") {
		if !strings.HasPrefix(line, "[") || !strings.Contains(line, "] install") {
			t.Errorf("line %q does not start with a timestamp", line)
		}
	}
}
