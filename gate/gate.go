// Package gate manages the phases of provisioning a CI host into a working
// single node kubernetes cluster: package installs, service enablement, the
// kubeadm playbook, the readiness wait and the log capture session.
//
// It is intended for internal use by kubegate only.
package gate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"
	"github.com/kubegate/kubegate/internal/gateapi"
	"github.com/kubegate/kubegate/internal/manifest"
	"github.com/kubegate/kubegate/internal/shell"
	"github.com/kubegate/kubegate/logger"
	"github.com/kubegate/kubegate/metrics"
	"github.com/kubegate/kubegate/process"
	"github.com/kubegate/kubegate/status"
	"github.com/kubegate/kubegate/tracetools"
)

// Config provides the configuration for a gate run. It is fully resolved by
// the up command before New is called: manifest values have already been
// overlaid with any flags.
type Config struct {
	// Identifies this gate run in logs, traces and the diagnostics API.
	// Generated when empty.
	GateID string

	// The resolved gate manifest. Nil means the built-in default manifest.
	Manifest *manifest.Manifest

	// Phases to run. Empty means all of them. The environment setup always
	// runs, since every phase depends on it.
	Phases []string

	// Where yum repository definitions are written
	RepoDir string

	// Print commands without executing anything
	DryRun bool

	// If the gate is in debug mode
	Debug bool

	// Path to the host lock file guarding concurrent gates
	LockPath string

	// How long to wait for the host lock before giving up
	LockTimeout time.Duration

	// Kubeconfig used by the api probe mode. Empty uses the usual discovery
	// order.
	Kubeconfig string

	// Skip starting the capture session even when the capture phase runs
	SkipCapture bool

	// Names the capture session's log file. Generated when empty.
	CaptureSession string

	// Listen address for the diagnostics HTTP server. Empty disables it.
	HealthAddr string

	// Tags to attach to the gate, plus the sources to fetch more from
	Tags                      []string
	TagsFromHost              bool
	TagsFromEC2MetaData       bool
	TagsFromEC2Tags           bool
	TagsFromECSMetaData       bool
	TagsFromGCPMetaData       bool
	WaitForEC2MetaDataTimeout time.Duration
	WaitForEC2TagsTimeout     time.Duration
	WaitForECSMetaDataTimeout time.Duration

	// Tracing backend to use: "datadog", "opentelemetry" or ""
	TracingBackend     string
	TracingServiceName string
	TraceContextCodec  tracetools.Codec

	// Ship timings to a dogstatsd agent
	MetricsDatadog     bool
	MetricsDatadogHost string

	// The signal to send commands on cancellation, and how long to wait
	// before escalating to SIGKILL
	CancelSignal      process.Signal
	SignalGracePeriod time.Duration

	// Logger for everything that isn't shell output
	Logger logger.Logger
}

// Gate runs the provisioning phases in order.
type Gate struct {
	Config

	// Shell is the shell environment for the gate
	shell *shell.Shell

	// Unique to this invocation, unlike GateID which an operator may reuse
	runUUID string

	// Diagnostics state, shared with the HTTP server when one is running
	state  *gateapi.State
	server *gateapi.Server

	// Dogstatsd, no-op unless MetricsDatadog is set
	collector *metrics.Collector
	scope     *metrics.Scope

	// Held for the duration of the run
	unlock shell.Unlocker

	// A channel to track cancellation
	cancelMu  sync.Mutex
	cancelCh  chan struct{}
	cancelled bool
}

// New returns a new gate instance.
func New(conf Config) *Gate {
	if conf.GateID == "" {
		conf.GateID = petname.Generate(2, "-")
	}
	if conf.Logger == nil {
		conf.Logger = logger.Discard
	}
	if conf.Manifest == nil {
		conf.Manifest = manifest.Default()
	}
	if conf.RepoDir == "" {
		conf.RepoDir = "/etc/yum.repos.d"
	}
	if conf.LockPath == "" {
		conf.LockPath = filepath.Join(os.TempDir(), "kubegate.lock")
	}

	g := &Gate{
		Config:   conf,
		runUUID:  uuid.New().String(),
		cancelCh: make(chan struct{}),
	}
	g.state = gateapi.NewState(conf.GateID)
	g.state.SetRunUUID(g.runUUID)
	g.collector = metrics.NewCollector(conf.Logger, metrics.CollectorConfig{
		Datadog:     conf.MetricsDatadog,
		DatadogHost: conf.MetricsDatadogHost,
	})
	g.scope = g.collector.Scope(metrics.Tags{"gate": conf.GateID})
	return g
}

// Run the gate phases and return the exit code.
func (g *Gate) Run(ctx context.Context) (exitCode int) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if g.shell == nil {
		sh, err := shell.New(
			shell.WithDebug(g.Debug),
			shell.WithDryRun(g.DryRun),
			shell.WithInterruptSignal(g.CancelSignal),
			shell.WithSignalGracePeriod(g.SignalGracePeriod),
			shell.WithTraceContextCodec(g.TraceContextCodec),
		)
		if err != nil {
			fmt.Printf("Error creating shell: %v", err)
			return 1
		}
		g.shell = sh
	}

	var err error
	span, ctx, stopper := g.startTracing(ctx)
	defer stopper()
	defer func() { span.FinishWithError(err) }()
	span.AddAttributes(map[string]string{"gate.id": g.GateID})

	// Once ctx is cancelled, teardown can still run during the grace period.
	graceCtx := withGracePeriod(ctx, g.SignalGracePeriod)

	go func() {
		<-g.cancelCh
		g.shell.Commentf("Received cancellation signal, interrupting")
		cancel()
	}()

	if err := g.collector.Start(); err != nil {
		g.shell.Warningf("Error starting metrics collection: %v", err)
	}
	defer func() {
		if err := g.collector.Stop(); err != nil {
			g.shell.Warningf("Error stopping metrics collection: %v", err)
		}
	}()

	// Tear down the environment before we exit
	defer func() {
		if err := g.tearDown(graceCtx); err != nil {
			g.shell.Errorf("Error tearing down gate: %v", err)

			// this gets passed back via the named return
			exitCode = shell.ExitCode(err)
		}
	}()

	ctx, setStat, unregister := status.AddSimpleItem(ctx, "Gate")
	defer unregister()
	setStat("🚧 Setting up host environment")

	// Initialize the environment, a failure here will still call the tearDown
	if err = g.setUp(ctx); err != nil {
		g.shell.Errorf("Error setting up gate: %v", err)
		return shell.ExitCode(err)
	}

	setStat("🏃 Running phases")

	// Execute the gate phases in order
	var phaseErr error

	if g.includePhase("packages") {
		phaseErr = g.runPhase(ctx, "packages", g.packagesPhase)
	}

	if phaseErr == nil && g.includePhase("services") {
		phaseErr = g.runPhase(ctx, "services", g.servicesPhase)
	}

	if phaseErr == nil && g.includePhase("cluster") {
		phaseErr = g.runPhase(ctx, "cluster", g.clusterPhase)
	}

	if phaseErr == nil && g.includePhase("wait") {
		phaseErr = g.runPhase(ctx, "wait", g.waitPhase)
	}

	if phaseErr == nil && g.includePhase("capture") {
		phaseErr = g.runPhase(ctx, "capture", g.capturePhase)
	}

	// Phase errors are where something of ours broke that merits a big red
	// error.
	if phaseErr != nil {
		err = phaseErr
		g.shell.Errorf("%v", phaseErr)
		return shell.ExitCode(phaseErr)
	}

	setStat("✅ Finished")
	g.shell.Headerf("Gate finished")
	return 0
}

// runPhase times a phase, reflects it into the diagnostics state and wraps it
// in a tracing span.
func (g *Gate) runPhase(ctx context.Context, name string, fn func(context.Context) error) error {
	span, ctx := tracetools.StartSpanFromContext(ctx, name, g.TracingBackend)
	g.state.SetPhase(name)

	ctx, setStat, done := status.AddSimpleItem(ctx, name+" phase")
	defer done()
	setStat("🏃 Running")

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	phaseDurations.WithLabelValues(name).Observe(elapsed.Seconds())
	g.scope.Timing("phase.duration", elapsed, metrics.Tags{"phase": name})
	if err != nil {
		phaseFailures.WithLabelValues(name).Inc()
	}

	span.FinishWithError(err)
	return err
}

func (g *Gate) includePhase(phase string) bool {
	if len(g.Phases) == 0 {
		return true
	}
	return slices.Contains(g.Phases, phase)
}

// Cancel interrupts any running shell processes and causes the gate to stop.
func (g *Gate) Cancel() error {
	// Closing g.cancelCh broadcasts to any goroutine receiving that the gate
	// is being cancelled/stopped.
	// Double-closing a channel is a panic, so guard it with a bool and a mutex.
	g.cancelMu.Lock()
	defer g.cancelMu.Unlock()
	if g.cancelled {
		return errors.New("already cancelled")
	}
	g.cancelled = true
	close(g.cancelCh)
	return nil
}

// State exposes the diagnostics state, mostly so the up command and tests can
// inspect progress.
func (g *Gate) State() *gateapi.State {
	return g.state
}

// withGracePeriod returns a context that is cancelled some time *after* the
// parent context is cancelled. In general this is not a good pattern, since it
// breaks the usual connection between context cancellations and requires an
// extra goroutine. However, we need to enforce the signal grace period from
// within the gate for use-cases where the gate is _not_ forked from something
// else that will enforce the grace period (with SIGKILL).
func withGracePeriod(ctx context.Context, graceTimeout time.Duration) context.Context {
	gctx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	go func() {
		<-ctx.Done()
		time.Sleep(graceTimeout)
		cancel(context.DeadlineExceeded)
	}()
	return gctx
}
