package clicommand

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/kubegate/kubegate/cliconfig"
	"github.com/kubegate/kubegate/gate"
	"github.com/kubegate/kubegate/internal/manifest"
	"github.com/kubegate/kubegate/internal/stdin"
	"github.com/kubegate/kubegate/logger"
	"github.com/kubegate/kubegate/process"
	"github.com/kubegate/kubegate/tracetools"
	"github.com/urfave/cli"
)

const upHelpDescription = `Usage:

    kubegate up [options...]

Description:

Provisions the host into a single node kubernetes cluster and waits for it to
become ready. The gate runs its phases in order: packages, services, cluster,
wait and capture. A failing phase aborts the run with a nonzero exit, so
dependent CI steps are halted.

What the gate provisions is described by a manifest. Without --manifest the
built-in manifest is used, which installs docker from the docker-ce-stable
repository and expects a kubeadm playbook at
playbooks/kubeadm-single-node.yml. Passing --manifest - reads the manifest
from STDIN instead, allowing scripts to generate one on the fly. Individual
manifest values can be overridden with flags.

If the cluster does not report the target status before the wait budget runs
out, the gate prints "Failed to setup kubernetes cluster in time" and exits
nonzero.

Example:

    # Provision with the built-in manifest and wait up to 10 minutes
    $ kubegate up

    # Provision from a manifest, overriding the playbook and the wait budget
    $ kubegate up --manifest ci/kubegate.yml --playbook playbooks/kubeadm.yml --timeout 5m

    # Generate the manifest in a script
    $ ./ci/render-manifest.sh | kubegate up --manifest -

    # Only rerun the wait phase against an already provisioned host
    $ kubegate up --phase wait`

// The signal grace period is how long a command has after the cancel signal
// before it is killed outright.
const defaultSignalGracePeriodSecs = 9

type UpConfig struct {
	GlobalConfig

	Config   string   `cli:"config"`
	GateID   string   `cli:"gate-id"`
	Manifest string   `cli:"manifest"`
	Phases   []string `cli:"phase" normalize:"list"`
	DryRun   bool     `cli:"dry-run"`

	// Overrides for the manifest's cluster section
	Playbook  string   `cli:"playbook" normalize:"filepath"`
	Inventory string   `cli:"inventory" normalize:"filepath"`
	ExtraVars []string `cli:"extra-var" normalize:"list"`

	// Overrides for the manifest's readiness section
	Interval     time.Duration `cli:"interval"`
	Timeout      time.Duration `cli:"timeout"`
	Target       string        `cli:"target"`
	Probe        string        `cli:"probe"`
	ProbeCommand string        `cli:"probe-command"`
	Node         string        `cli:"node"`

	// Overrides for the manifest's capture section. Capture is tri-state:
	// absent runs capture per the phase selection, a falsy value skips it,
	// and any other value names the session.
	Capture          cliconfig.OptionalString `cli:"capture"`
	CaptureCommand   string                   `cli:"capture-command"`
	CaptureDirectory string                   `cli:"capture-directory" normalize:"filepath"`

	RepoDir     string        `cli:"repo-dir" normalize:"filepath"`
	Kubeconfig  string        `cli:"kubeconfig" normalize:"filepath"`
	LockPath    string        `cli:"lock-path" normalize:"filepath"`
	LockTimeout time.Duration `cli:"lock-timeout"`

	HealthCheckAddr string `cli:"health-check-addr"`

	Tags                      []string      `cli:"tags" normalize:"list"`
	TagsFromHost              bool          `cli:"tags-from-host"`
	TagsFromEC2MetaData       bool          `cli:"tags-from-ec2-meta-data"`
	TagsFromEC2Tags           bool          `cli:"tags-from-ec2-tags"`
	TagsFromECSMetaData       bool          `cli:"tags-from-ecs-meta-data"`
	TagsFromGCPMetaData       bool          `cli:"tags-from-gcp-meta-data"`
	WaitForEC2MetaDataTimeout time.Duration `cli:"wait-for-ec2-meta-data-timeout"`
	WaitForEC2TagsTimeout     time.Duration `cli:"wait-for-ec2-tags-timeout"`
	WaitForECSMetaDataTimeout time.Duration `cli:"wait-for-ecs-meta-data-timeout"`

	TracingBackend     string `cli:"tracing-backend"`
	TracingServiceName string `cli:"tracing-service-name"`
	TraceContextCodec  string `cli:"trace-context-codec"`

	MetricsDatadog     bool   `cli:"metrics-datadog"`
	MetricsDatadogHost string `cli:"metrics-datadog-host"`

	CancelSignal             string `cli:"cancel-signal"`
	SignalGracePeriodSeconds int    `cli:"signal-grace-period-seconds"`

	LogFormat string `cli:"log-format"`
}

func DefaultConfigFilePaths() (paths []string) {
	paths = []string{
		"$HOME/.kubegate/kubegate.cfg",
		"/usr/local/etc/kubegate/kubegate.cfg",
		"/etc/kubegate/kubegate.cfg",
	}

	// Also check to see if there's a kubegate.cfg in the folder that the
	// binary is running in.
	pathToBinary, err := filepath.Abs(filepath.Dir(os.Args[0]))
	if err == nil {
		pathToRelativeConfig := filepath.Join(pathToBinary, "kubegate.cfg")
		paths = append([]string{pathToRelativeConfig}, paths...)
	}

	return paths
}

var UpCommand = cli.Command{
	Name:        "up",
	Category:    categoryGate,
	Usage:       "Provision the host into a single node kubernetes cluster",
	Description: upHelpDescription,
	Flags: slices.Concat(globalFlags(), []cli.Flag{
		cli.StringFlag{
			Name:   "config",
			Value:  "",
			Usage:  "Path to a configuration file",
			EnvVar: "KUBEGATE_CONFIG",
		},
		cli.StringFlag{
			Name:   "gate-id",
			Value:  "",
			Usage:  "An identifier for this gate run, used in logs, traces and the diagnostics API. Generated when empty",
			EnvVar: "KUBEGATE_GATE_ID",
		},
		cli.StringFlag{
			Name:   "manifest",
			Value:  "",
			Usage:  "Path to a YAML manifest describing what to provision, or - to read one from STDIN. The built-in manifest is used when empty",
			EnvVar: "KUBEGATE_MANIFEST",
		},
		cli.StringSliceFlag{
			Name:   "phase",
			Value:  &cli.StringSlice{},
			Usage:  "Limit the gate to the named phases (packages, services, cluster, wait, capture). May be repeated. All phases run when empty",
			EnvVar: "KUBEGATE_PHASES",
		},
		cli.BoolFlag{
			Name:   "dry-run",
			Usage:  "Print the commands that would run without executing anything",
			EnvVar: "KUBEGATE_DRY_RUN",
		},
		cli.StringFlag{
			Name:   "playbook",
			Value:  "",
			Usage:  "Path to the ansible playbook that stands the cluster up, overriding the manifest",
			EnvVar: "KUBEGATE_PLAYBOOK",
		},
		cli.StringFlag{
			Name:   "inventory",
			Value:  "",
			Usage:  "Path to an ansible inventory for the playbook, overriding the manifest",
			EnvVar: "KUBEGATE_INVENTORY",
		},
		cli.StringSliceFlag{
			Name:   "extra-var",
			Value:  &cli.StringSlice{},
			Usage:  "An extra variable for the playbook in key=value form. May be repeated. Merged over the manifest's extra vars",
			EnvVar: "KUBEGATE_EXTRA_VARS",
		},
		cli.DurationFlag{
			Name:   "interval",
			Usage:  "The time to sleep between readiness probes, overriding the manifest",
			EnvVar: "KUBEGATE_INTERVAL",
		},
		cli.DurationFlag{
			Name:   "timeout",
			Usage:  "The total readiness wait budget, overriding the manifest",
			EnvVar: "KUBEGATE_TIMEOUT",
		},
		cli.StringFlag{
			Name:   "target",
			Value:  "",
			Usage:  "The node status that ends the wait, overriding the manifest",
			EnvVar: "KUBEGATE_TARGET",
		},
		cli.StringFlag{
			Name:   "probe",
			Value:  "",
			Usage:  "How to probe the cluster, either 'kubectl' or 'api', overriding the manifest",
			EnvVar: "KUBEGATE_PROBE",
		},
		cli.StringFlag{
			Name:   "probe-command",
			Value:  "",
			Usage:  "The full status command to run instead of 'kubectl get nodes --no-headers', overriding the manifest",
			EnvVar: "KUBEGATE_PROBE_COMMAND",
		},
		cli.StringFlag{
			Name:   "node",
			Value:  "",
			Usage:  "Narrow the probe to a single node name, overriding the manifest",
			EnvVar: "KUBEGATE_NODE",
		},
		cli.GenericFlag{
			Name:   "capture",
			Value:  &cliconfig.OptionalString{},
			Usage:  "Whether to start the log capture session once the cluster is ready. Pass a name to also name the session (e.g. --capture=kubelet-logs)",
			EnvVar: "KUBEGATE_CAPTURE",
		},
		cli.StringFlag{
			Name:   "capture-command",
			Value:  "",
			Usage:  "The command the detached capture session runs, overriding the manifest",
			EnvVar: "KUBEGATE_CAPTURE_COMMAND",
		},
		cli.StringFlag{
			Name:   "capture-directory",
			Value:  "",
			Usage:  "Where the capture session writes its logs, overriding the manifest",
			EnvVar: "KUBEGATE_CAPTURE_DIRECTORY",
		},
		cli.StringFlag{
			Name:   "repo-dir",
			Value:  "",
			Usage:  "Where yum repository definitions are written",
			EnvVar: "KUBEGATE_REPO_DIR",
		},
		cli.StringFlag{
			Name:   "kubeconfig",
			Value:  "",
			Usage:  "The kubeconfig used by probes. The usual kubectl discovery order applies when empty",
			EnvVar: "KUBEGATE_KUBECONFIG",
		},
		cli.StringFlag{
			Name:   "lock-path",
			Value:  "",
			Usage:  "Path to the lock file that prevents two gates provisioning the same host",
			EnvVar: "KUBEGATE_LOCK_PATH",
		},
		cli.DurationFlag{
			Name:   "lock-timeout",
			Usage:  "How long to wait for the host lock before giving up. Waits forever when zero",
			EnvVar: "KUBEGATE_LOCK_TIMEOUT",
		},
		cli.StringFlag{
			Name:   "health-check-addr",
			Value:  "",
			Usage:  "Start an HTTP server on this addr:port that returns whether the gate is healthy, and its progress",
			EnvVar: "KUBEGATE_HEALTH_CHECK_ADDR",
		},
		cli.StringSliceFlag{
			Name:   "tags",
			Value:  &cli.StringSlice{},
			Usage:  "A comma-separated list of tags for the gate (e.g. \"linux\" or \"fedora=38,ci=true\")",
			EnvVar: "KUBEGATE_TAGS",
		},
		cli.BoolFlag{
			Name:   "tags-from-host",
			Usage:  "Include tags from the host (hostname, machine-id, os)",
			EnvVar: "KUBEGATE_TAGS_FROM_HOST",
		},
		cli.BoolFlag{
			Name:   "tags-from-ec2-meta-data",
			Usage:  "Include the host's EC2 meta-data as tags (instance-id, instance-type, ami-id, and instance-life-cycle)",
			EnvVar: "KUBEGATE_TAGS_FROM_EC2_META_DATA",
		},
		cli.BoolFlag{
			Name:   "tags-from-ec2-tags",
			Usage:  "Include the host's EC2 tags as tags",
			EnvVar: "KUBEGATE_TAGS_FROM_EC2_TAGS",
		},
		cli.BoolFlag{
			Name:   "tags-from-ecs-meta-data",
			Usage:  "Include the host's ECS meta-data as tags (container-name, image, and task-arn)",
			EnvVar: "KUBEGATE_TAGS_FROM_ECS_META_DATA",
		},
		cli.BoolFlag{
			Name:   "tags-from-gcp-meta-data",
			Usage:  "Include the host's Google Cloud instance meta-data as tags (instance-id, machine-type, preemptible, project-id, region, and zone)",
			EnvVar: "KUBEGATE_TAGS_FROM_GCP_META_DATA",
		},
		cli.DurationFlag{
			Name:   "wait-for-ec2-meta-data-timeout",
			Usage:  "The amount of time to wait for meta-data from EC2 before proceeding",
			EnvVar: "KUBEGATE_WAIT_FOR_EC2_META_DATA_TIMEOUT",
			Value:  time.Second * 10,
		},
		cli.DurationFlag{
			Name:   "wait-for-ec2-tags-timeout",
			Usage:  "The amount of time to wait for tags from EC2 before proceeding",
			EnvVar: "KUBEGATE_WAIT_FOR_EC2_TAGS_TIMEOUT",
			Value:  time.Second * 10,
		},
		cli.DurationFlag{
			Name:   "wait-for-ecs-meta-data-timeout",
			Usage:  "The amount of time to wait for meta-data from ECS before proceeding",
			EnvVar: "KUBEGATE_WAIT_FOR_ECS_META_DATA_TIMEOUT",
			Value:  time.Second * 10,
		},
		cli.StringFlag{
			Name:   "tracing-backend",
			Usage:  "Enable tracing for gate runs using the given backend, either 'datadog' or 'opentelemetry'",
			Value:  "",
			EnvVar: "KUBEGATE_TRACING_BACKEND",
		},
		cli.StringFlag{
			Name:   "tracing-service-name",
			Usage:  "Service name to use when reporting traces.",
			Value:  "kubegate",
			EnvVar: "KUBEGATE_TRACING_SERVICE_NAME",
		},
		cli.StringFlag{
			Name:   "trace-context-codec",
			Usage:  "Sets the format for KUBEGATE_TRACE_CONTEXT, either 'gob' or 'json'",
			Value:  "gob",
			EnvVar: "KUBEGATE_TRACE_CONTEXT_CODEC",
		},
		cli.BoolFlag{
			Name:   "metrics-datadog",
			Usage:  "Send metrics to DogStatsD for Datadog",
			EnvVar: "KUBEGATE_METRICS_DATADOG",
		},
		cli.StringFlag{
			Name:   "metrics-datadog-host",
			Usage:  "The dogstatsd instance to send metrics to using udp",
			EnvVar: "KUBEGATE_METRICS_DATADOG_HOST",
			Value:  "127.0.0.1:8125",
		},
		cli.StringFlag{
			Name:   "cancel-signal",
			Usage:  "The signal to use for cancellation",
			EnvVar: "KUBEGATE_CANCEL_SIGNAL",
			Value:  "SIGTERM",
		},
		cli.IntFlag{
			Name:   "signal-grace-period-seconds",
			Usage:  "The number of seconds given to a command to handle the cancel signal before SIGKILL",
			EnvVar: "KUBEGATE_SIGNAL_GRACE_PERIOD_SECONDS",
			Value:  defaultSignalGracePeriodSecs,
		},
		cli.StringFlag{
			Name:   "log-format",
			Usage:  "The format to use for the logger output, either 'text' or 'json'",
			EnvVar: "KUBEGATE_LOG_FORMAT",
			Value:  "text",
		},
	}),
	Action: func(c *cli.Context) error {
		ctx := context.Background()
		ctx, cfg, l, configFile, done := setupLoggerAndConfig[UpConfig](ctx, c)
		defer done()

		if configFile != nil {
			l.Info("Configuration loaded from %s", configFile.Path)
		}

		return up(ctx, cfg, l)
	},
}

func up(ctx context.Context, cfg UpConfig, l logger.Logger) error {
	conf, err := gateConfig(cfg, l)
	if err != nil {
		return err
	}
	g := gate.New(conf)

	// Cancel the gate rather than dying on the spot, so teardown still runs
	// and releases the host lock.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
		syscall.SIGQUIT,
	)

	finished := make(chan struct{})
	defer close(finished)

	go func() {
		defer signal.Stop(signals)
		for {
			select {
			case <-finished:
				return
			case sig := <-signals:
				l.Info("Received signal %v, cancelling gate", sig)
				if err := g.Cancel(); err != nil {
					l.Warn("%v", err)
				}
			}
		}
	}()

	if code := g.Run(ctx); code != 0 {
		// The gate already reported what went wrong on its own output.
		return NewSilentExitError(code)
	}
	return nil
}

// gateConfig resolves the flag and manifest soup into a gate config.
func gateConfig(cfg UpConfig, l logger.Logger) (gate.Config, error) {
	for _, p := range cfg.Phases {
		switch p {
		case "packages", "services", "cluster", "wait", "capture":
		default:
			return gate.Config{}, fmt.Errorf("unknown phase %q, valid phases are packages, services, cluster, wait and capture", p)
		}
	}

	m, err := resolveManifest(cfg, l)
	if err != nil {
		return gate.Config{}, fmt.Errorf("resolving manifest: %w", err)
	}

	cancelSig := process.SIGTERM
	if cfg.CancelSignal != "" {
		cancelSig, err = process.ParseSignal(cfg.CancelSignal)
		if err != nil {
			return gate.Config{}, fmt.Errorf("parsing cancel-signal: %w", err)
		}
	}

	codec, err := traceContextCodec(cfg.TraceContextCodec)
	if err != nil {
		return gate.Config{}, err
	}

	// The tri-state --capture flag.
	skipCapture := false
	captureSession := ""
	if v := cfg.Capture.Value; v != "" {
		if !cfg.Capture.Trueish {
			skipCapture = true
		} else if _, err := strconv.ParseBool(v); err != nil {
			captureSession = v
		}
	}

	return gate.Config{
		GateID:                    cfg.GateID,
		Manifest:                  m,
		Phases:                    cfg.Phases,
		RepoDir:                   cfg.RepoDir,
		DryRun:                    cfg.DryRun,
		Debug:                     cfg.Debug,
		LockPath:                  cfg.LockPath,
		LockTimeout:               cfg.LockTimeout,
		Kubeconfig:                cfg.Kubeconfig,
		SkipCapture:               skipCapture,
		CaptureSession:            captureSession,
		HealthAddr:                cfg.HealthCheckAddr,
		Tags:                      cfg.Tags,
		TagsFromHost:              cfg.TagsFromHost,
		TagsFromEC2MetaData:       cfg.TagsFromEC2MetaData,
		TagsFromEC2Tags:           cfg.TagsFromEC2Tags,
		TagsFromECSMetaData:       cfg.TagsFromECSMetaData,
		TagsFromGCPMetaData:       cfg.TagsFromGCPMetaData,
		WaitForEC2MetaDataTimeout: cfg.WaitForEC2MetaDataTimeout,
		WaitForEC2TagsTimeout:     cfg.WaitForEC2TagsTimeout,
		WaitForECSMetaDataTimeout: cfg.WaitForECSMetaDataTimeout,
		TracingBackend:            cfg.TracingBackend,
		TracingServiceName:        cfg.TracingServiceName,
		TraceContextCodec:         codec,
		MetricsDatadog:            cfg.MetricsDatadog,
		MetricsDatadogHost:        cfg.MetricsDatadogHost,
		CancelSignal:              cancelSig,
		SignalGracePeriod:         time.Duration(cfg.SignalGracePeriodSeconds) * time.Second,
		Logger:                    l,
	}, nil
}

// resolveManifest loads the manifest, from a file, STDIN or the built-in
// default, and overlays any flag overrides on it.
func resolveManifest(cfg UpConfig, l logger.Logger) (*manifest.Manifest, error) {
	var m *manifest.Manifest
	switch {
	case cfg.Manifest == "-":
		if !stdin.IsReadable() {
			return nil, errors.New("manifest is \"-\" but nothing is piped to STDIN")
		}
		l.Info("Reading manifest from STDIN")

		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading manifest from STDIN: %w", err)
		}
		if m, err = manifest.Parse(b); err != nil {
			return nil, err
		}

	case cfg.Manifest != "":
		var err error
		if m, err = manifest.Load(cfg.Manifest); err != nil {
			return nil, err
		}

	default:
		m = manifest.Default()
	}

	if cfg.Playbook != "" {
		m.Cluster.Playbook = cfg.Playbook
	}
	if cfg.Inventory != "" {
		m.Cluster.Inventory = cfg.Inventory
	}
	for _, kv := range cfg.ExtraVars {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("extra-var %q is not in key=value form", kv)
		}
		if m.Cluster.ExtraVars == nil {
			m.Cluster.ExtraVars = make(map[string]string)
		}
		m.Cluster.ExtraVars[k] = v
	}
	if cfg.Interval > 0 {
		m.Readiness.Interval = manifest.Duration(cfg.Interval)
	}
	if cfg.Timeout > 0 {
		m.Readiness.Timeout = manifest.Duration(cfg.Timeout)
	}
	if cfg.Target != "" {
		m.Readiness.Target = cfg.Target
	}
	if cfg.Probe != "" {
		m.Readiness.Probe = cfg.Probe
	}
	if cfg.ProbeCommand != "" {
		m.Readiness.Command = cfg.ProbeCommand
	}
	if cfg.Node != "" {
		m.Readiness.Node = cfg.Node
	}
	if cfg.CaptureCommand != "" {
		m.Capture.Command = cfg.CaptureCommand
	}
	if cfg.CaptureDirectory != "" {
		m.Capture.Directory = cfg.CaptureDirectory
	}

	return m, nil
}

func traceContextCodec(name string) (tracetools.Codec, error) {
	switch name {
	case "", "gob":
		return tracetools.CodecGob{}, nil
	case "json":
		return tracetools.CodecJSON{}, nil
	default:
		return nil, fmt.Errorf("unknown trace context codec %q", name)
	}
}
