package clicommand

import (
	"errors"
	"fmt"
	"os"
)

// An ExitError carries the exit code a command wants the process to finish
// with, wrapping the error that caused it.
type ExitError struct {
	code  int
	inner error
}

func NewExitError(code int, err error) *ExitError {
	return &ExitError{code: code, inner: err}
}

func (e *ExitError) Code() int { return e.code }

func (e *ExitError) Error() string { return e.inner.Error() }

func (e *ExitError) Unwrap() error { return e.inner }

// Is matches any ExitError with the same code, regardless of the wrapped
// error.
func (e *ExitError) Is(target error) bool {
	other, ok := target.(*ExitError)
	return ok && e.code == other.code
}

// A SilentExitError sets the exit code without printing anything. Commands
// return it when the failure has already been reported, such as a probe
// command whose own output tells the story.
type SilentExitError struct {
	code int
}

func NewSilentExitError(code int) *SilentExitError {
	return &SilentExitError{code: code}
}

// Error exists to satisfy the error interface. The message is never printed
// on the silent path.
func (e *SilentExitError) Error() string {
	return fmt.Sprintf("silently exited status %d", e.code)
}

func (e *SilentExitError) Code() int { return e.code }

// Is matches any SilentExitError with the same code.
func (e *SilentExitError) Is(target error) bool {
	other, ok := target.(*SilentExitError)
	return ok && e.code == other.code
}

// PrintMessageAndReturnExitCode turns a command error into a process exit
// code. A nil error is 0. A SilentExitError returns its code with nothing
// printed. Everything else is printed to stderr prefixed "kubegate: fatal:",
// then an ExitError returns its code and any other error returns 1.
func PrintMessageAndReturnExitCode(err error) int {
	if err == nil {
		return 0
	}

	var silent *SilentExitError
	if errors.As(err, &silent) {
		return silent.Code()
	}

	fmt.Fprintf(os.Stderr, "kubegate: fatal: %s\n", err)

	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code()
	}
	return 1
}
