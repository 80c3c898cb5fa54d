package clicommand

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/kubegate/kubegate/internal/gateapi"
	"github.com/kubegate/kubegate/internal/manifest"
	"github.com/kubegate/kubegate/internal/shell"
	"github.com/kubegate/kubegate/logger"
	"github.com/kubegate/kubegate/readiness"
	statuspage "github.com/kubegate/kubegate/status"
	"github.com/urfave/cli"
)

const waitHelpDescription = `Usage:

    kubegate wait [options...]

Description:

Waits for a cluster node to report the target status, probing on a fixed
interval until the wait budget runs out. The cluster must already exist; this
command runs only the wait, not the provisioning phases.

Exits 0 as soon as a probe observes the target status. If the budget runs
out first, prints "Failed to setup kubernetes cluster in time" and exits
nonzero.

Example:

    # Wait up to 10 minutes for any node to be Ready
    $ kubegate wait

    # Wait for a specific node with a tighter budget, probing the API directly
    $ kubegate wait --node master-0 --timeout 2m --probe api`

type WaitConfig struct {
	GlobalConfig

	Interval        time.Duration `cli:"interval"`
	Timeout         time.Duration `cli:"timeout"`
	Target          string        `cli:"target"`
	Node            string        `cli:"node"`
	Kubeconfig      string        `cli:"kubeconfig" normalize:"filepath"`
	Probe           string        `cli:"probe"`
	ProbeCommand    string        `cli:"probe-command"`
	HealthCheckAddr string        `cli:"health-check-addr"`
}

var WaitCommand = cli.Command{
	Name:        "wait",
	Category:    categoryGate,
	Usage:       "Wait for a cluster node to report the target status",
	Description: waitHelpDescription,
	Flags: slices.Concat(globalFlags(), []cli.Flag{
		cli.DurationFlag{
			Name:   "interval",
			Usage:  "The time to sleep between probes",
			EnvVar: "KUBEGATE_INTERVAL",
			Value:  readiness.DefaultInterval,
		},
		cli.DurationFlag{
			Name:   "timeout",
			Usage:  "The total wait budget",
			EnvVar: "KUBEGATE_TIMEOUT",
			Value:  readiness.DefaultTimeout,
		},
		cli.StringFlag{
			Name:   "target",
			Value:  readiness.DefaultTarget,
			Usage:  "The node status that ends the wait",
			EnvVar: "KUBEGATE_TARGET",
		},
		cli.StringFlag{
			Name:   "node",
			Value:  "",
			Usage:  "Narrow the probe to a single node name",
			EnvVar: "KUBEGATE_NODE",
		},
		cli.StringFlag{
			Name:   "kubeconfig",
			Value:  "",
			Usage:  "The kubeconfig used by probes. The usual kubectl discovery order applies when empty",
			EnvVar: "KUBEGATE_KUBECONFIG",
		},
		cli.StringFlag{
			Name:   "probe",
			Value:  "",
			Usage:  "How to probe the cluster, either 'kubectl' or 'api'",
			EnvVar: "KUBEGATE_PROBE",
		},
		cli.StringFlag{
			Name:   "probe-command",
			Value:  "",
			Usage:  "The full status command to run instead of 'kubectl get nodes --no-headers'",
			EnvVar: "KUBEGATE_PROBE_COMMAND",
		},
		cli.StringFlag{
			Name:   "health-check-addr",
			Value:  "",
			Usage:  "Start an HTTP server on this addr:port that reports the wait's progress",
			EnvVar: "KUBEGATE_HEALTH_CHECK_ADDR",
		},
	}),
	Action: func(c *cli.Context) error {
		ctx := context.Background()
		ctx, cfg, l, _, done := setupLoggerAndConfig[WaitConfig](ctx, c)
		defer done()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(signals)

		// An interrupted wait exits with the signal's conventional code, so
		// callers can tell "no" apart from "stop asking".
		sigCode := make(chan int, 1)
		go func() {
			sig, ok := <-signals
			if !ok {
				return
			}
			l.Info("Received %v, stopping wait", sig)
			if s, ok := sig.(syscall.Signal); ok {
				sigCode <- 128 + int(s)
			}
			cancel()
		}()

		err := wait(ctx, cfg, l)
		if errors.Is(err, context.Canceled) {
			select {
			case code := <-sigCode:
				return NewSilentExitError(code)
			default:
			}
		}
		return err
	},
}

func wait(ctx context.Context, cfg WaitConfig, l logger.Logger) error {
	prober, err := buildProber(cfg.Probe, cfg.ProbeCommand, cfg.Node, cfg.Kubeconfig)
	if err != nil {
		return err
	}

	var state *gateapi.State
	if cfg.HealthCheckAddr != "" {
		state = gateapi.NewState("wait")
		state.SetPhase("wait")
		server, err := gateapi.NewServer(
			gateapi.WithLogger(l, cfg.Debug),
			gateapi.WithAddr(cfg.HealthCheckAddr),
			gateapi.WithState(state),
		)
		if err != nil {
			return fmt.Errorf("could not create diagnostics server: %w", err)
		}
		if err := server.Start(); err != nil {
			return fmt.Errorf("could not start diagnostics server: %w", err)
		}
		defer server.Stop() //nolint:errcheck // best effort on the way out
		l.Info("Diagnostics server listening on http://%s", server.ListenAddr())
	}

	ctx, setStat, done := statuspage.AddSimpleItem(ctx, "Readiness")
	defer done()
	setStat("⏳ Waiting for first probe")

	attempt := 0
	waiter := readiness.New(l, readiness.Config{
		Interval: cfg.Interval,
		Timeout:  cfg.Timeout,
		Target:   cfg.Target,
	}, readiness.WithObserver(func(observed string, err error) {
		attempt++
		if state != nil {
			state.ObserveProbe(observed, err)
		}
		if err != nil {
			setStat(fmt.Sprintf("🚨 Probe %d failed: %v", attempt, err))
			return
		}
		setStat(fmt.Sprintf("👀 Probe %d observed %q", attempt, observed))
	}))

	_, err = waiter.Wait(ctx, prober)

	var timeout *readiness.TimeoutError
	if errors.As(err, &timeout) {
		l.Error("Failed to setup kubernetes cluster in time")
		return NewExitError(1, err)
	}
	if err != nil {
		return err
	}

	if state != nil {
		state.SetReady()
	}
	return nil
}

// buildProber picks the probe implementation for a probe mode. Command
// probes get their own shell, so a kubeconfig flag can point KUBECONFIG
// somewhere else without touching our environment.
func buildProber(mode, command, node, kubeconfig string) (readiness.Prober, error) {
	switch mode {
	case manifest.ProbeAPI:
		return readiness.NewAPIProber(kubeconfig, node)
	case manifest.ProbeKubectl, "":
		sh, err := shell.New()
		if err != nil {
			return nil, err
		}
		if kubeconfig != "" {
			sh.Env.Set("KUBECONFIG", kubeconfig)
		}
		return readiness.NewCommandProber(sh, command, node)
	default:
		return nil, fmt.Errorf("unknown probe mode %q", mode)
	}
}
