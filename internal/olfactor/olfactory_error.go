package olfactor

import (
	"errors"
	"fmt"
)

// An OlfactoryError reports that a command failed with a known smell in its
// output. It wraps the error the command run returned.
type OlfactoryError struct {
	Smell string
	inner error
}

// NewOlfactoryError wraps a command error, usually an exec.ExitError, with the
// smell that turned up in the command's output.
func NewOlfactoryError(smell string, err error) *OlfactoryError {
	return &OlfactoryError{Smell: smell, inner: err}
}

func (e *OlfactoryError) Error() string {
	return fmt.Sprintf("command failed: %v (output matched %q)", e.inner, e.Smell)
}

func (e *OlfactoryError) Unwrap() error { return e.inner }

// Is matches OlfactoryErrors with the same smell and an equal inner error.
func (e *OlfactoryError) Is(target error) bool {
	terr, ok := target.(*OlfactoryError)
	return ok && e.Smell == terr.Smell && errors.Is(e.inner, terr.inner)
}
