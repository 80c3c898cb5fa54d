// Package readiness implements the polling loop the gate uses to decide that
// the cluster it just provisioned is usable: probe a status on a fixed
// interval until it matches a target or a deadline passes. Probe failures are
// not fatal, they count the same as "not ready yet", since the API server is
// routinely unreachable for the first stretch of the wait.
package readiness

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultInterval is how long to sleep between probes.
	DefaultInterval = 2 * time.Second

	// DefaultTimeout is the total wait budget.
	DefaultTimeout = 600 * time.Second

	// DefaultTarget is the node status that ends the wait.
	DefaultTarget = "Ready"
)

// Config holds the waiter knobs. The zero value is not useful; fill it from
// the manifest or use the defaults above.
type Config struct {
	// Interval is the flat sleep between probes. Must be > 0.
	Interval time.Duration

	// Timeout is the total budget. A value <= 0 permits a single immediate
	// probe and no sleep.
	Timeout time.Duration

	// Target is the status string that satisfies the wait.
	Target string
}

// A Prober checks the target system once and reports its status. Probes run
// repeatedly, so implementations must be safe to call any number of times.
// A non-nil error means the check itself could not be performed, which the
// waiter treats the same as a status that doesn't match.
type Prober interface {
	Probe(ctx context.Context) (string, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context) (string, error)

func (f ProberFunc) Probe(ctx context.Context) (string, error) { return f(ctx) }

// Result reports how a successful wait went.
type Result struct {
	// Status is the observed status that matched the target.
	Status string

	// Attempts is the number of probes performed, including the last one.
	Attempts int

	// Elapsed is how long the wait took.
	Elapsed time.Duration
}

// TimeoutError is returned by Wait when the deadline passed without the
// target status being observed. It carries the last observation to make the
// failure diagnosable from logs alone.
type TimeoutError struct {
	Timeout    time.Duration
	Attempts   int
	LastStatus string
	LastErr    error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %v (%d probes", e.Timeout, e.Attempts)
	if e.LastStatus != "" {
		msg += fmt.Sprintf(", last status %q", e.LastStatus)
	}
	if e.LastErr != nil {
		msg += fmt.Sprintf(", last probe error: %v", e.LastErr)
	}
	return msg + ")"
}

// Unwrap exposes the last probe error, when there was one.
func (e *TimeoutError) Unwrap() error { return e.LastErr }
