package clicommand

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/kubegate/kubegate/logger"
	"github.com/urfave/cli"
)

const statusHelpDescription = `Usage:

    kubegate status [options...]

Description:

Probes the cluster once and prints the observed node status on stdout. This
is the same probe the wait phase runs in a loop, so it is the quickest way to
check what a wait would currently see.

Exits 0 with the status on stdout when the probe succeeds, and nonzero when
the probe itself fails, for example because the API server is unreachable.

Example:

    # Print the status of the only node
    $ kubegate status

    # Probe the API directly with an explicit kubeconfig
    $ kubegate status --probe api --kubeconfig /etc/kubernetes/admin.conf`

type StatusConfig struct {
	GlobalConfig

	Node         string `cli:"node"`
	Kubeconfig   string `cli:"kubeconfig" normalize:"filepath"`
	Probe        string `cli:"probe"`
	ProbeCommand string `cli:"probe-command"`
}

var StatusCommand = cli.Command{
	Name:        "status",
	Category:    categoryGate,
	Usage:       "Probe the cluster once and print the observed node status",
	Description: statusHelpDescription,
	Flags: slices.Concat(globalFlags(), []cli.Flag{
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
	}),
	Action: func(c *cli.Context) error {
		ctx := context.Background()
		ctx, cfg, l, _, done := setupLoggerAndConfig[StatusConfig](ctx, c)
		defer done()
		return status(ctx, cfg, l, c.App.Writer)
	},
}

func status(ctx context.Context, cfg StatusConfig, l logger.Logger, w io.Writer) error {
	prober, err := buildProber(cfg.Probe, cfg.ProbeCommand, cfg.Node, cfg.Kubeconfig)
	if err != nil {
		return err
	}

	l.Debug("Probing cluster status")
	st, err := prober.Probe(ctx)
	if err != nil {
		return NewExitError(1, fmt.Errorf("probing cluster: %w", err))
	}

	fmt.Fprintln(w, st)
	return nil
}
