// Package process provides a helper for running and managing a subprocess.
//
// It is intended for internal use by kubegate only.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/kubegate/kubegate/logger"
)

const (
	// DefaultSignalGracePeriod is how long to wait between sending the
	// interrupt signal and forcefully killing the process group.
	DefaultSignalGracePeriod = 9 * time.Second

	termType = "xterm-256color"
)

// Config holds the configuration for a new process.
type Config struct {
	Path              string
	Args              []string
	Env               []string
	Dir               string
	PTY               bool
	Timestamp         bool
	Stdout            io.Writer
	Stderr            io.Writer
	Stdin             io.Reader
	InterruptSignal   Signal
	SignalGracePeriod time.Duration
}

// WaitStatus is the status of a process after it has exited. On unix systems
// it is satisfied by syscall.WaitStatus.
type WaitStatus interface {
	ExitStatus() int
	Signaled() bool
	Signal() syscall.Signal
}

// Process is an operating system level process that can be run and signalled
// as a process group.
type Process struct {
	logger logger.Logger
	conf   Config

	command *exec.Cmd

	mu            sync.Mutex
	pid           int
	started, done chan struct{}
	waitResult    error
	status        syscall.WaitStatus
}

// New returns a new Process. Call Run to start it.
func New(l logger.Logger, c Config) *Process {
	return &Process{
		logger: l,
		conf:   c,
	}
}

// Pid returns the pid of the process, or 0 if it hasn't started yet.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// WaitResult returns the raw error returned by wait(2).
func (p *Process) WaitResult() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitResult
}

// WaitStatus returns the exit status of the process once it has finished.
func (p *Process) WaitStatus() WaitStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Run executes the command and blocks until it finishes. If the context is
// cancelled the process group is interrupted, and killed once the signal
// grace period expires.
func (p *Process) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.command != nil {
		p.mu.Unlock()
		return errors.New("process is already running")
	}

	p.command = exec.Command(p.conf.Path, p.conf.Args...)
	p.command.Dir = p.conf.Dir

	// Copy the current env and merge in the configured vars, so that the
	// subprocess gets PATH and friends from the environment it runs in.
	p.command.Env = append(os.Environ(), p.conf.Env...)
	if p.conf.PTY {
		p.command.Env = append(p.command.Env, "TERM="+termType)
	}

	// Create the channels for signalling Started() and Done() consumers, in
	// case they haven't been created by an early caller already.
	if p.done == nil {
		p.done = make(chan struct{})
	}
	if p.started == nil {
		p.started = make(chan struct{})
	}
	p.mu.Unlock()

	p.setupProcessGroup()

	stdout := p.conf.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := p.conf.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	if p.conf.Timestamp {
		prefix := func(t time.Time) string {
			return fmt.Sprintf("[%s] ", t.Format(time.RFC3339))
		}
		stdout = NewTimestamper(stdout, prefix, 1*time.Second)
	}

	var copyWait sync.WaitGroup

	if p.conf.PTY {
		ptmx, err := StartPTY(p.command)
		if err != nil {
			return err
		}

		p.mu.Lock()
		p.pid = p.command.Process.Pid
		p.mu.Unlock()

		copyWait.Add(1)
		go func() {
			defer copyWait.Done()

			p.logger.Debug("[Process] Copying PTY output")

			_, err := io.Copy(stdout, ptmx)
			var pathErr *os.PathError
			if errors.As(err, &pathErr) && pathErr.Err == syscall.EIO {
				// An EIO from the pty means the child side was closed, which
				// is the normal end of output.
				err = nil
			}
			if err != nil {
				p.logger.Error("[Process] PTY output copy failed: %v", err)
			}
		}()
	} else {
		p.command.Stdout = stdout
		p.command.Stderr = stderr
		p.command.Stdin = p.conf.Stdin

		if err := p.command.Start(); err != nil {
			return err
		}

		p.mu.Lock()
		p.pid = p.command.Process.Pid
		p.mu.Unlock()
	}

	p.logger.Debug("[Process] Process is running with PID: %d", p.Pid())

	// Signal waiting consumers in Started() by closing the started channel.
	close(p.started)

	// Interrupt the process when the context is cancelled, and kill it if it
	// doesn't exit within the grace period.
	go func() {
		select {
		case <-ctx.Done():
			if err := p.Interrupt(); err != nil {
				p.logger.Error("[Process] Failed to interrupt: %v", err)
			}

			gracePeriod := p.conf.SignalGracePeriod
			if gracePeriod <= 0 {
				gracePeriod = DefaultSignalGracePeriod
			}

			select {
			case <-time.After(gracePeriod):
				if err := p.Terminate(); err != nil {
					p.logger.Error("[Process] Failed to terminate: %v", err)
				}
			case <-p.Done():
			}

		case <-p.Done():
		}
	}()

	waitResult := p.command.Wait()

	p.mu.Lock()
	p.waitResult = waitResult
	if state := p.command.ProcessState; state != nil {
		if status, ok := state.Sys().(syscall.WaitStatus); ok {
			p.status = status
		}
	}
	p.mu.Unlock()

	p.logger.Debug("[Process] Process with PID: %d finished with Exit Status: %d", p.Pid(), p.status.ExitStatus())

	// The PTY copy can block forever in some container runtimes, so only
	// wait a bounded amount of time for it to drain.
	if err := timeoutWait(&copyWait); err != nil {
		p.logger.Debug("[Process] Timed out waiting for output to drain: %v", err)
	}

	// Signal waiting consumers in Done() by closing the done channel.
	close(p.done)

	return nil
}

// Done returns a channel that is closed when the process finishes.
func (p *Process) Done() <-chan struct{} {
	p.mu.Lock()
	// We create this here in case this is called before Run()
	if p.done == nil {
		p.done = make(chan struct{})
	}
	d := p.done
	p.mu.Unlock()
	return d
}

// Started returns a channel that is closed when the process is started.
func (p *Process) Started() <-chan struct{} {
	p.mu.Lock()
	// We create this here in case this is called before Run()
	if p.started == nil {
		p.started = make(chan struct{})
	}
	s := p.started
	p.mu.Unlock()
	return s
}

// Interrupt sends the configured interrupt signal to the process group.
func (p *Process) Interrupt() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.command == nil || p.command.Process == nil {
		p.logger.Debug("[Process] No process to interrupt yet")
		return nil
	}

	return p.interruptProcessGroup()
}

// Terminate sends SIGKILL to the process group.
func (p *Process) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.command == nil || p.command.Process == nil {
		p.logger.Debug("[Process] No process to terminate yet")
		return nil
	}

	return p.terminateProcessGroup()
}

func timeoutWait(wg *sync.WaitGroup) error {
	done := make(chan struct{})

	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(10 * time.Second):
		return errors.New("timeout")
	}
}
