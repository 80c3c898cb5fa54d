package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kubegate/kubegate/internal/experiments"
	"github.com/kubegate/kubegate/internal/manifest"
	"github.com/kubegate/kubegate/internal/shell"
	"github.com/kubegate/kubegate/metrics"
	"github.com/kubegate/kubegate/readiness"
	"github.com/kubegate/kubegate/status"
)

// waitPhase polls the cluster until the manifest's target status is observed
// or the wait budget runs out. A timeout fails the whole gate: this is the
// contract dependent CI steps rely on.
func (g *Gate) waitPhase(ctx context.Context) error {
	conf := g.Manifest.Readiness

	if g.DryRun {
		g.shell.Commentf("Would wait up to %v for status %q", time.Duration(conf.Timeout), conf.Target)
		return nil
	}

	prober, err := g.prober()
	if err != nil {
		return err
	}

	g.shell.Headerf("Waiting for cluster to become ready")

	ctx, setStat, done := status.AddSimpleItem(ctx, "Readiness")
	defer done()
	setStat("⏳ Waiting for first probe")

	inline := experiments.IsEnabled(ctx, experiments.InlineProbeOutput)
	probeScope := g.scope.With(metrics.Tags{"phase": "wait"})
	attempt := 0
	observer := func(observed string, probeErr error) {
		attempt++
		g.state.ObserveProbe(observed, probeErr)
		probesAttempted.Inc()
		if probeErr != nil {
			probeErrors.Inc()
			probeScope.Count("probes", 1, metrics.Tags{"outcome": "error"})
			setStat(fmt.Sprintf("🚨 Probe %d failed: %v", attempt, probeErr))
			if inline {
				g.shell.Commentf("probe %d: %v", attempt, probeErr)
			}
			return
		}
		probeScope.Count("probes", 1, metrics.Tags{"outcome": "ok"})
		setStat(fmt.Sprintf("👀 Probe %d observed %q, want %q", attempt, observed, conf.Target))
		if inline {
			g.shell.Commentf("probe %d: %s", attempt, observed)
		}
	}

	waiter := readiness.New(g.Logger, readiness.Config{
		Interval: time.Duration(conf.Interval),
		Timeout:  time.Duration(conf.Timeout),
		Target:   conf.Target,
	}, readiness.WithObserver(observer))

	start := time.Now()
	res, err := waiter.Wait(ctx, prober)
	waitDurations.Observe(time.Since(start).Seconds())

	var timeout *readiness.TimeoutError
	if errors.As(err, &timeout) {
		g.shell.Errorf("Failed to setup kubernetes cluster in time")
		return err
	}
	if err != nil {
		return err
	}

	g.state.SetReady()
	g.shell.Commentf("Cluster reported %q after %d probes in %v", res.Status, res.Attempts, shell.Round(res.Elapsed))
	return nil
}

// prober picks the probe implementation for the manifest's probe mode.
func (g *Gate) prober() (readiness.Prober, error) {
	conf := g.Manifest.Readiness
	switch conf.Probe {
	case manifest.ProbeAPI:
		return readiness.NewAPIProber(g.Kubeconfig, conf.Node)
	case manifest.ProbeKubectl, "":
		return readiness.NewCommandProber(g.shell, conf.Command, conf.Node)
	default:
		return nil, fmt.Errorf("unknown probe mode %q", conf.Probe)
	}
}
