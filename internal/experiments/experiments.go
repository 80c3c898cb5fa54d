// Package experiments provides a global registry of enabled and disabled
// experiments.
//
// It is intended for internal use by kubegate only.
package experiments

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kubegate/kubegate/logger"
)

type State string

const (
	StateKnown    State = "known"
	StatePromoted State = "promoted"
	StateUnknown  State = "unknown"
)

// Experiments that can be enabled with --experiment.
const (
	DNFPackageManager = "dnf-package-manager"
	ZstdLogArchive    = "zstd-log-archive"
	InlineProbeOutput = "inline-probe-output"
)

// Former experiments that are stable features now.
const (
	ANSITimestamps = "ansi-timestamps"
	FlockFileLocks = "flock-file-locks"
)

var (
	available = map[string]struct{}{
		DNFPackageManager: {},
		ZstdLogArchive:    {},
		InlineProbeOutput: {},
	}

	promoted = map[string]string{
		ANSITimestamps: promotionMsg(ANSITimestamps, "v0.8.0"),
		FlockFileLocks: promotionMsg(FlockFileLocks, "v0.7.0"),
	}

	// Every experiment seen at runtime, however it was spelled.
	seenMu sync.Mutex
	seen   = make(map[string]struct{})
)

func promotionMsg(key, version string) string {
	return fmt.Sprintf("The %s experiment was promoted to a stable feature in kubegate %s. You can remove the `--experiment %s` flag to silence this message; the feature stays on either way", key, version, key)
}

type ctxKey struct {
	experiment string
}

// Enable turns an experiment on in a new context and classifies it as
// known, promoted to stable, or unknown.
func Enable(ctx context.Context, key string) (context.Context, State) {
	seenMu.Lock()
	seen[key] = struct{}{}
	seenMu.Unlock()

	ctx = context.WithValue(ctx, ctxKey{key}, true)

	if _, ok := promoted[key]; ok {
		return ctx, StatePromoted
	}
	if _, ok := available[key]; ok {
		return ctx, StateKnown
	}
	return ctx, StateUnknown
}

// EnableWithWarnings enables an experiment in a new context, warning when it
// is unknown or already promoted.
func EnableWithWarnings(ctx context.Context, l logger.Logger, key string) (context.Context, State) {
	ctx, state := Enable(ctx, key)
	switch state {
	case StateUnknown:
		l.Warn("Unknown experiment %q", key)
	case StatePromoted:
		l.Warn(promoted[key])
	}
	return ctx, state
}

// IsEnabled reports whether the named experiment is enabled in the context.
func IsEnabled(ctx context.Context, key string) bool {
	on, ok := ctx.Value(ctxKey{key}).(bool)
	return ok && on
}

// Enabled returns the names of the enabled experiments, sorted.
func Enabled(ctx context.Context) []string {
	seenMu.Lock()
	defer seenMu.Unlock()

	var keys []string
	for key := range seen {
		if IsEnabled(ctx, key) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}
