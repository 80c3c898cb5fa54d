package readiness

import (
	"context"
	"time"

	"github.com/kubegate/kubegate/logger"
)

// Waiter polls a Prober until its status matches the target or the deadline
// passes. Each Waiter manages its own deadline and holds no shared state, so
// concurrent Waits (even on the same Waiter) are independent.
type Waiter struct {
	logger   logger.Logger
	conf     Config
	match    func(string) bool
	observer func(status string, err error)
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

type WaiterOpt func(*Waiter)

// WithMatch replaces the default predicate (string equality with
// Config.Target) used to decide whether an observed status ends the wait.
func WithMatch(f func(status string) bool) WaiterOpt {
	return func(w *Waiter) { w.match = f }
}

// WithObserver registers a hook invoked after every probe with its raw
// outcome, before the waiter acts on it. Used to feed metrics and the
// diagnostics server.
func WithObserver(f func(status string, err error)) WaiterOpt {
	return func(w *Waiter) { w.observer = f }
}

// WithSleepFunc replaces the sleep between probes.
func WithSleepFunc(f func(ctx context.Context, d time.Duration) error) WaiterOpt {
	return func(w *Waiter) { w.sleep = f }
}

// New returns a Waiter for the given config. A non-positive interval falls
// back to DefaultInterval and an empty target to DefaultTarget. The timeout
// is taken as given: zero or negative means one immediate probe.
func New(l logger.Logger, conf Config, opts ...WaiterOpt) *Waiter {
	if conf.Interval <= 0 {
		conf.Interval = DefaultInterval
	}
	if conf.Target == "" {
		conf.Target = DefaultTarget
	}

	w := &Waiter{
		logger: l,
		conf:   conf,
		match:  func(status string) bool { return status == conf.Target },
		sleep:  sleepCtx,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Wait probes until the match predicate is satisfied, the deadline passes,
// or ctx is cancelled.
//
// On success it returns a Result and nil. When the deadline passes first it
// returns *TimeoutError; probe errors along the way are folded into "keep
// waiting" and only ever surface inside the TimeoutError. Cancellation
// returns ctx.Err, which callers can tell apart from a timeout.
//
// The interval is flat. Probes are cheap status checks and the wait is
// deadline-budgeted rather than attempt-budgeted, so there is nothing for a
// backoff to protect.
func (w *Waiter) Wait(ctx context.Context, prober Prober) (Result, error) {
	start := w.now()
	deadline := start.Add(w.conf.Timeout)

	w.logger.Info("Waiting up to %v for status %q, probing every %v", w.conf.Timeout, w.conf.Target, w.conf.Interval)

	var (
		attempts   int
		lastStatus string
		lastErr    error
	)

	result := func() Result {
		return Result{
			Status:   lastStatus,
			Attempts: attempts,
			Elapsed:  w.now().Sub(start),
		}
	}

	for {
		attempts++

		status, err := prober.Probe(ctx)
		if w.observer != nil {
			w.observer(status, err)
		}

		switch {
		case err != nil:
			lastErr = err
			w.logger.Debug("Probe %d failed: %v", attempts, err)

		case w.match(status):
			lastStatus = status
			res := result()
			w.logger.Info("Observed status %q after %d probes in %v", status, attempts, res.Elapsed)
			return res, nil

		default:
			lastStatus = status
			w.logger.Debug("Probe %d observed status %q", attempts, status)
		}

		if err := ctx.Err(); err != nil {
			return result(), err
		}

		if !w.now().Before(deadline) {
			return result(), &TimeoutError{
				Timeout:    w.conf.Timeout,
				Attempts:   attempts,
				LastStatus: lastStatus,
				LastErr:    lastErr,
			}
		}

		if err := w.sleep(ctx, w.conf.Interval); err != nil {
			return result(), err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
