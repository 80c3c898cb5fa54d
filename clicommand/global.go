package clicommand

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kubegate/kubegate/cliconfig"
	"github.com/kubegate/kubegate/internal/experiments"
	"github.com/kubegate/kubegate/logger"
	"github.com/oleiade/reflections"
	"github.com/urfave/cli"
)

// Command categories, used to group subcommands in the help output.
const (
	categoryGate     = "Gate commands"
	categoryInternal = "Internal"
)

var DebugFlag = cli.BoolFlag{
	Name:   "debug",
	Usage:  "Enable debug mode. Synonym for `--log-level debug`. Takes precedence over `--log-level`",
	EnvVar: "KUBEGATE_DEBUG",
}

var LogLevelFlag = cli.StringFlag{
	Name:   "log-level",
	Value:  "notice",
	Usage:  "Set the log level, making logging more or less verbose. Allowed values are: debug, info, error, warn, fatal",
	EnvVar: "KUBEGATE_LOG_LEVEL",
}

var NoColorFlag = cli.BoolFlag{
	Name:   "no-color",
	Usage:  "Don't show colors in logging",
	EnvVar: "KUBEGATE_NO_COLOR",
}

var ExperimentsFlag = cli.StringSliceFlag{
	Name:   "experiment",
	Value:  &cli.StringSlice{},
	Usage:  "Enable experimental features within kubegate",
	EnvVar: "KUBEGATE_EXPERIMENT",
}

var ProfileFlag = cli.StringFlag{
	Name:   "profile",
	Usage:  "Enable a profiling mode, either cpu, memory, mutex or block",
	EnvVar: "KUBEGATE_PROFILE",
}

type GlobalConfig struct {
	Debug       bool     `cli:"debug"`
	LogLevel    string   `cli:"log-level"`
	NoColor     bool     `cli:"no-color"`
	Experiments []string `cli:"experiment" normalize:"list"`
	Profile     string   `cli:"profile"`
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		NoColorFlag,
		DebugFlag,
		LogLevelFlag,
		ExperimentsFlag,
		ProfileFlag,
	}
}

// CreateLogger creates a logger based on the Debug, LogLevel, LogFormat and
// NoColor fields of the config, any of which may be absent.
func CreateLogger(cfg any) logger.Logger {
	var l logger.Logger

	logFormat := "text"
	if format, err := reflections.GetField(cfg, "LogFormat"); err == nil {
		if str, ok := format.(string); ok && str != "" {
			logFormat = str
		}
	}

	switch logFormat {
	case "text", "":
		printer := logger.NewTextPrinter(os.Stderr)
		if noColor, err := reflections.GetField(cfg, "NoColor"); noColor == true && err == nil {
			printer.Colors = false
		}
		l = logger.NewConsoleLogger(printer, os.Exit)

	case "json":
		l = logger.NewConsoleLogger(logger.NewJSONPrinter(os.Stdout), os.Exit)

	default:
		fmt.Printf("Unknown log-format %q\n", logFormat)
		os.Exit(1)
	}

	if logLevel, err := reflections.GetField(cfg, "LogLevel"); err == nil {
		if str, ok := logLevel.(string); ok && str != "" {
			level, err := logger.LevelFromString(str)
			if err != nil {
				l.Fatal("%s", err)
			}
			l.SetLevel(level)
		}
	}

	// Enable debugging if a Debug option is present
	if debug, err := reflections.GetField(cfg, "Debug"); debug == true && err == nil {
		l.SetLevel(logger.DEBUG)
	}

	return l
}

// HandleGlobalFlags enables any configured experiments in a new context and
// starts the profiler if one was asked for. The returned func stops the
// profiler, and must be called before the command exits.
func HandleGlobalFlags(ctx context.Context, l logger.Logger, cfg any) (context.Context, func()) {
	// Enable experiments
	if experimentNames, err := reflections.GetField(cfg, "Experiments"); err == nil {
		if names, ok := experimentNames.([]string); ok {
			for _, name := range names {
				ctx, _ = experiments.EnableWithWarnings(ctx, l, name)
			}
			if enabled := experiments.Enabled(ctx); len(enabled) > 0 {
				l.Info("Experiments enabled: %s", strings.Join(enabled, ", "))
			}
		}
	}

	// Handle profiling flag
	if profileMode, err := reflections.GetField(cfg, "Profile"); err == nil {
		if mode, ok := profileMode.(string); ok && mode != "" {
			return ctx, Profile(l, mode)
		}
	}

	return ctx, func() {}
}

// setupLoggerAndConfig loads the config for the command from flags, the
// environment and any config file, creates a logger honoring the global
// flags, and enables experiments and profiling. Most command actions start
// with it:
//
//	ctx, cfg, l, _, done := setupLoggerAndConfig[FooConfig](ctx, c)
//	defer done()
func setupLoggerAndConfig[T any](ctx context.Context, c *cli.Context) (
	newCtx context.Context,
	cfg T,
	l logger.Logger,
	f *cliconfig.File,
	done func(),
) {
	loader := cliconfig.Loader{
		CLI:                    c,
		Config:                 &cfg,
		DefaultConfigFilePaths: DefaultConfigFilePaths(),
	}

	warnings, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}

	l = CreateLogger(&cfg)

	// Now that we have a logger, log out the warnings that loading config generated
	for _, warning := range warnings {
		l.Warn("%s", warning)
	}

	// Setup any global configuration options
	ctx, done = HandleGlobalFlags(ctx, l, cfg)

	return ctx, cfg, l, loader.File, done
}
