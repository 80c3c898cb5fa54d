// Package shell provides the virtual shell the gate phases run their
// commands in. It tracks an environment and a working directory, echoes
// commands to its logger the way a terminal session would, and can log
// commands without executing them in dry-run mode.
//
// It is intended for internal use by kubegate only.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/kubegate/kubegate/env"
	"github.com/kubegate/kubegate/internal/olfactor"
	"github.com/kubegate/kubegate/logger"
	"github.com/kubegate/kubegate/process"
	"github.com/kubegate/kubegate/tracetools"
	"github.com/opentracing/opentracing-go"
)

const lockRetryDuration = time.Second

// Shell executes commands for the gate.
type Shell struct {
	Logger

	// The environment variables commands run with.
	Env *env.Environment

	// Where command output is written. Stdout and stderr of a command are
	// interleaved here, as they would be on a terminal. Defaults to
	// [os.Stdout].
	Writer io.Writer

	// Working directory commands run in.
	wd string

	// Print and log commands without executing them.
	dryRun bool

	// Echo extra diagnostics, and tee command output to the logger.
	debug bool

	// If set, the argv of every command is appended here, whether or not it
	// was actually executed.
	commandLog *[][]string

	// The signal sent to a command when its context is cancelled, and how
	// long it gets to exit before SIGKILL.
	interruptSignal   process.Signal
	signalGracePeriod time.Duration

	// How trace contexts are propagated to subprocesses.
	traceContextCodec tracetools.Codec
}

type NewShellOpt = func(*Shell)

func WithCommandLog(log *[][]string) NewShellOpt { return func(s *Shell) { s.commandLog = log } }
func WithDebug(d bool) NewShellOpt               { return func(s *Shell) { s.debug = d } }
func WithDryRun(d bool) NewShellOpt              { return func(s *Shell) { s.dryRun = d } }
func WithEnv(e *env.Environment) NewShellOpt     { return func(s *Shell) { s.Env = e } }
func WithLogger(l Logger) NewShellOpt            { return func(s *Shell) { s.Logger = l } }
func WithStdout(w io.Writer) NewShellOpt         { return func(s *Shell) { s.Writer = w } }
func WithWD(wd string) NewShellOpt               { return func(s *Shell) { s.wd = wd } }

func WithInterruptSignal(sig process.Signal) NewShellOpt {
	return func(s *Shell) { s.interruptSignal = sig }
}

func WithSignalGracePeriod(d time.Duration) NewShellOpt {
	return func(s *Shell) { s.signalGracePeriod = d }
}

func WithTraceContextCodec(c tracetools.Codec) NewShellOpt {
	return func(s *Shell) { s.traceContextCodec = c }
}

// New returns a Shell ready to run commands. Unless options say otherwise it
// logs to [os.Stderr] with ANSI colors, writes command output to [os.Stdout],
// inherits the process environment, starts in the current working directory
// and encodes trace contexts with gob.
func New(opts ...NewShellOpt) (*Shell, error) {
	shell := &Shell{}
	for _, opt := range opts {
		opt(shell)
	}

	if shell.Logger == nil {
		shell.Logger = &WriterLogger{Writer: os.Stderr, Ansi: true}
	}
	if shell.Env == nil {
		shell.Env = env.FromSlice(os.Environ())
	}
	if shell.Writer == nil {
		shell.Writer = os.Stdout
	}
	if shell.traceContextCodec == nil {
		shell.traceContextCodec = tracetools.CodecGob{}
	}
	if shell.wd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("finding current working directory: %w", err)
		}
		shell.wd = wd
	}

	return shell, nil
}

// Unlocker implementations are things that can be unlocked, such as a
// cross-process lock. This interface exists for implementation-hiding.
type Unlocker interface {
	Unlock() error
}

// LockFile acquires a cross-process file lock, trying for as long as the
// context allows. To give up after a while, pass a context with a timeout.
func (s *Shell) LockFile(ctx context.Context, path string) (Unlocker, error) {
	// + "f" keeps the flock's filename distinct from any plain lockfile or
	// pidfile at the same path.
	absolutePathToLock, err := filepath.Abs(path + "f")
	if err != nil {
		return nil, fmt.Errorf("failed to find absolute path to lock %q: %w", path, err)
	}

	lock := flock.New(absolutePathToLock)

	for {
		gotLock, err := lock.TryLock()
		if err != nil {
			s.Commentf("Could not acquire lock on %q (%v)", absolutePathToLock, err)
			return nil, err
		}
		if gotLock {
			return lock, nil
		}

		s.Commentf("Could not acquire lock on %q (locked by another process)", absolutePathToLock)
		s.Commentf("Trying again in %v...", lockRetryDuration)

		select {
		case <-time.After(lockRetryDuration):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Run echoes the command like a prompt would, then runs it with stdout and
// stderr going to s.Writer.
func (s *Shell) Run(ctx context.Context, command string, arg ...string) error {
	s.Promptf("%s", process.FormatCommand(command, arg))

	cfg, err := s.prepare(command, arg...)
	if err != nil {
		s.Errorf("Error building command: %v", err)
		return err
	}

	return s.execute(ctx, cfg, s.Writer, s.Writer)
}

// RunWithEnv is Run with extra environment variables set for this command
// only.
func (s *Shell) RunWithEnv(ctx context.Context, extra *env.Environment, command string, arg ...string) error {
	s.Promptf("%s", process.FormatCommand(command, arg))

	cfg, err := s.prepare(command, arg...)
	if err != nil {
		s.Errorf("Error building command: %v", err)
		return err
	}
	cfg.Env = append(cfg.Env, extra.ToSlice()...)

	return s.execute(ctx, cfg, s.Writer, s.Writer)
}

// RunWithOlfactor runs the command like Run, and additionally sniffs the
// combined output stream for the given smells. The returned Olfactor reports
// which of them turned up, whether or not the command succeeded. When the
// command fails and a smell was present, the error is an
// *olfactor.OlfactoryError naming the first such smell.
func (s *Shell) RunWithOlfactor(ctx context.Context, smells []string, command string, arg ...string) (*olfactor.Olfactor, error) {
	s.Promptf("%s", process.FormatCommand(command, arg))

	cfg, err := s.prepare(command, arg...)
	if err != nil {
		s.Errorf("Error building command: %v", err)
		return nil, err
	}

	w, olf := olfactor.New(s.Writer, smells)
	err = s.execute(ctx, cfg, w, w)

	// The sniffer buffers the tail of the stream while waiting for more
	// input. The process is done, so there is no more.
	if f, ok := w.(interface{ Flush() error }); ok {
		if ferr := f.Flush(); ferr != nil && err == nil {
			err = ferr
		}
	}

	if err != nil {
		for _, smell := range smells {
			if olf.Smelt(smell) {
				return olf, olfactor.NewOlfactoryError(smell, err)
			}
		}
	}
	return olf, err
}

// RunAndCapture runs a command and returns its stdout, trimmed of whitespace.
// Stderr is discarded. Nothing is echoed unless the shell is in debug mode.
func (s *Shell) RunAndCapture(ctx context.Context, command string, arg ...string) (string, error) {
	if s.debug {
		s.Promptf("%s", process.FormatCommand(command, arg))
	}

	cfg, err := s.prepare(command, arg...)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := s.execute(ctx, cfg, &sb, nil); err != nil {
		return "", err
	}

	return strings.TrimSpace(sb.String()), nil
}

// prepare resolves the command into a process config that execute can run.
func (s *Shell) prepare(name string, arg ...string) (process.Config, error) {
	// Resolve the command against the shell's own PATH, not the parent
	// process's. Dry-run commands are never executed, so they do not need to
	// be installed either.
	absPath := name
	if !s.dryRun {
		var err error
		absPath, err = s.absolutePath(name)
		if err != nil {
			return process.Config{}, err
		}
	}

	return process.Config{
		Path:              absPath,
		Args:              arg,
		Env:               append(s.Env.ToSlice(), "PWD="+s.wd),
		Dir:               s.wd,
		InterruptSignal:   s.interruptSignal,
		SignalGracePeriod: s.signalGracePeriod,
	}, nil
}

// absolutePath resolves an executable name against the PATH in s.Env.
func (s *Shell) absolutePath(executable string) (string, error) {
	if filepath.IsAbs(executable) {
		return executable, nil
	}

	envPath, _ := s.Env.Get("PATH")
	found, err := lookPath(executable, envPath)
	if err != nil {
		return "", err
	}

	// lookPath can return a path relative to the current working directory.
	return filepath.Abs(found)
}

// execute runs a prepared command. A nil stdout or stderr discards that
// stream.
func (s *Shell) execute(ctx context.Context, cfg process.Config, stdout, stderr io.Writer) error {
	environ := env.FromSlice(cfg.Env)
	s.injectTraceCtx(ctx, environ)
	cfg.Env = environ.ToSlice()

	if s.debug {
		t := time.Now()
		defer func() {
			s.Commentf("↳ Command completed in %v", Round(time.Since(t)))
		}()
	}

	cfg.Stdout = stdout
	cfg.Stderr = stderr
	if cfg.Stdout == nil {
		cfg.Stdout = io.Discard
	}
	if cfg.Stderr == nil {
		cfg.Stderr = io.Discard
	}

	if s.debug {
		// Tee output streams to the debug logger.
		stdOutStreamer := NewLoggerStreamer(s.Logger)
		defer stdOutStreamer.Close()
		cfg.Stdout = io.MultiWriter(cfg.Stdout, stdOutStreamer)

		stdErrStreamer := NewLoggerStreamer(s.Logger)
		defer stdErrStreamer.Close()
		cfg.Stderr = io.MultiWriter(cfg.Stderr, stdErrStreamer)
	}

	if s.commandLog != nil {
		*s.commandLog = append(*s.commandLog,
			append([]string{cfg.Path}, cfg.Args...),
		)
	}

	if s.dryRun {
		return nil
	}

	p := process.New(logger.Discard, cfg)
	if err := p.Run(ctx); err != nil {
		return fmt.Errorf("error running %q: %w", process.FormatCommand(cfg.Path, cfg.Args), err)
	}

	return p.WaitResult()
}

// injectTraceCtx encodes the current trace context into the command's
// environment, so spans continue across the phase boundary.
func (s *Shell) injectTraceCtx(ctx context.Context, environ *env.Environment) {
	span := opentracing.SpanFromContext(ctx)
	// Not all shell runs have tracing, nor do they need to.
	if span == nil {
		return
	}
	dump := environ.Dump()
	if err := tracetools.EncodeTraceContext(span, dump, s.traceContextCodec); err != nil {
		if s.debug {
			s.Warningf("Failed to encode trace context: %v", err)
		}
		return
	}
	environ.Set(tracetools.EnvVarTraceContextKey, dump[tracetools.EnvVarTraceContextKey])
}

// ExitCode extracts an exit code from an error. A nil error is 0, and an
// error that carries no exit status is 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if cause := new(exec.ExitError); errors.As(err, &cause) {
		return cause.ExitCode()
	}
	return 1
}

// IsExitSignaled reports whether the error is an [exec.ExitError] from a
// process that died to a signal.
func IsExitSignaled(err error) bool {
	if err == nil {
		return false
	}
	if exitErr := new(exec.ExitError); errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			return status.Signaled()
		}
	}
	return false
}

// Round rounds a duration to 5 significant digits for display. A gate that
// takes 2 hours is not worth reporting down to the microsecond.
func Round(d time.Duration) time.Duration {
	switch {
	case d < 100*time.Microsecond:
		return d
	case d < time.Millisecond:
		return d.Round(10 * time.Nanosecond)
	case d < 10*time.Millisecond:
		return d.Round(100 * time.Nanosecond)
	case d < 100*time.Millisecond:
		return d.Round(time.Microsecond)
	case d < time.Second:
		return d.Round(10 * time.Microsecond)
	case d < 10*time.Second:
		return d.Round(100 * time.Microsecond)
	case d < time.Minute:
		return d.Round(time.Millisecond)
	case d < 10*time.Minute:
		return d.Round(10 * time.Millisecond)
	case d < time.Hour:
		return d.Round(100 * time.Millisecond)
	default:
		return d.Round(10 * time.Second)
	}
}
