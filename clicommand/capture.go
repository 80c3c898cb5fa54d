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
	"syscall"
	"time"

	"github.com/buildkite/shellwords"
	humanize "github.com/dustin/go-humanize"
	petname "github.com/dustinkirkland/golang-petname"
	"github.com/klauspost/compress/zstd"
	"github.com/kubegate/kubegate/env"
	"github.com/kubegate/kubegate/internal/experiments"
	"github.com/kubegate/kubegate/internal/manifest"
	"github.com/kubegate/kubegate/internal/redact"
	"github.com/kubegate/kubegate/internal/replacer"
	"github.com/kubegate/kubegate/internal/shell"
	"github.com/kubegate/kubegate/internal/shellscript"
	"github.com/kubegate/kubegate/logger"
	"github.com/kubegate/kubegate/process"
	"github.com/urfave/cli"
)

const captureHelpDescription = `Usage:

    kubegate capture [options...]

Description:

Runs a log collection command in the foreground and tees its output to stdout
and a log file under the capture directory. The up command starts this in a
detached session after the cluster is ready, so the logs keep flowing for the
rest of the CI run; it can also be run by hand against a live cluster.

The session ends when the capture command exits or when this process is
signalled. Signals are forwarded to the capture command, and it is killed
outright if it ignores them past the grace period.

Example:

    # Follow the journal into /var/log/kubegate
    $ kubegate capture

    # Capture kubelet logs only, with timestamps, into a build-local directory
    $ kubegate capture --command "journalctl --follow --unit kubelet" \
        --directory ./logs --timestamp-lines`

type CaptureConfig struct {
	GlobalConfig

	Command                  string   `cli:"command"`
	Directory                string   `cli:"directory" normalize:"filepath"`
	SessionName              string   `cli:"session-name"`
	LogFormat                string   `cli:"log-format"`
	TimestampLines           bool     `cli:"timestamp-lines"`
	RedactedVars             []string `cli:"redacted-vars" normalize:"list"`
	PidFile                  string   `cli:"pid-file" normalize:"filepath"`
	NoPTY                    bool     `cli:"no-pty"`
	CancelSignal             string   `cli:"cancel-signal"`
	SignalGracePeriodSeconds int      `cli:"signal-grace-period-seconds"`
}

var CaptureCommand = cli.Command{
	Name:        "capture",
	Category:    categoryInternal,
	Usage:       "Run a log collection command and tee its output to a log file",
	Description: captureHelpDescription,
	Flags: slices.Concat(globalFlags(), []cli.Flag{
		cli.StringFlag{
			Name:   "command",
			Value:  manifest.DefaultCaptureCommand,
			Usage:  "The command whose output to capture",
			EnvVar: "KUBEGATE_CAPTURE_COMMAND",
		},
		cli.StringFlag{
			Name:   "directory",
			Value:  manifest.DefaultCaptureDirectory,
			Usage:  "The directory the log file is written to",
			EnvVar: "KUBEGATE_CAPTURE_DIRECTORY",
		},
		cli.StringFlag{
			Name:   "session-name",
			Value:  "",
			Usage:  "The name of the log file, without extension. A generated name is used when empty",
			EnvVar: "KUBEGATE_CAPTURE_SESSION_NAME",
		},
		cli.StringFlag{
			Name:   "log-format",
			Value:  "text",
			Usage:  "The log file format, either 'text' or 'json'. JSON records carry a timestamp and the session name",
			EnvVar: "KUBEGATE_CAPTURE_LOG_FORMAT",
		},
		cli.BoolFlag{
			Name:   "timestamp-lines",
			Usage:  "Prepend an RFC3339 timestamp to each captured line",
			EnvVar: "KUBEGATE_TIMESTAMP_LINES",
		},
		cli.StringSliceFlag{
			Name:   "redacted-vars",
			Usage:  "Pattern of environment variable names containing sensitive values",
			EnvVar: "KUBEGATE_REDACTED_VARS",
			Value:  &cli.StringSlice{"*_PASSWORD", "*_SECRET", "*_TOKEN", "*_ACCESS_KEY", "*_SECRET_KEY"},
		},
		cli.StringFlag{
			Name:   "pid-file",
			Value:  "",
			Usage:  "Also write this process's PID to this file, and remove it on exit",
			EnvVar: "KUBEGATE_CAPTURE_PID_FILE",
		},
		cli.BoolFlag{
			Name:   "no-pty",
			Usage:  "Run the capture command without a PTY",
			EnvVar: "KUBEGATE_NO_PTY",
		},
		cli.StringFlag{
			Name:   "cancel-signal",
			Usage:  "The signal forwarded to the capture command on shutdown",
			EnvVar: "KUBEGATE_CANCEL_SIGNAL",
			Value:  "SIGTERM",
		},
		cli.IntFlag{
			Name:   "signal-grace-period-seconds",
			Usage:  "The number of seconds given to the capture command to handle the cancel signal before it is killed",
			EnvVar: "KUBEGATE_SIGNAL_GRACE_PERIOD_SECONDS",
			Value:  defaultSignalGracePeriodSecs,
		},
	}),
	Action: func(c *cli.Context) error {
		ctx := context.Background()
		ctx, cfg, l, _, done := setupLoggerAndConfig[CaptureConfig](ctx, c)
		defer done()
		return capture(ctx, cfg, l)
	},
}

func capture(ctx context.Context, cfg CaptureConfig, l logger.Logger) error {
	args, err := shellwords.Split(cfg.Command)
	if err != nil {
		return fmt.Errorf("parsing capture command: %w", err)
	}
	if len(args) == 0 {
		return errors.New("the capture command is empty")
	}
	// A capture command pointing at a non-executable script still works.
	args = shellscript.WithInterpreter(args)

	if cfg.LogFormat != "" && cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q, valid formats are text and json", cfg.LogFormat)
	}

	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return fmt.Errorf("creating capture directory %q: %w", cfg.Directory, err)
	}

	name := cfg.SessionName
	if name == "" {
		name = petname.Generate(2, "-")
	}
	l = l.WithFields(logger.StringField("session", name))

	logPath := filepath.Join(cfg.Directory, name+".log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()

	var fileDst io.Writer = logFile
	if cfg.LogFormat == "json" {
		fileDst = process.NewStructure(logFile, map[string]string{"session": name})
	}

	if cfg.PidFile != "" {
		pid := strconv.Itoa(os.Getpid()) + "\n"
		if err := os.WriteFile(cfg.PidFile, []byte(pid), 0o644); err != nil {
			return fmt.Errorf("writing pidfile %q: %w", cfg.PidFile, err)
		}
		defer os.Remove(cfg.PidFile)
	}

	var dst io.Writer = io.MultiWriter(fileDst, os.Stdout)

	// Redaction wraps the tee, so secrets reach neither the file nor stdout.
	var red *replacer.Replacer
	if len(cfg.RedactedVars) > 0 {
		needles := redact.Values(shell.StderrLogger, cfg.RedactedVars, env.FromSlice(os.Environ()).Dump())
		if len(needles) > 0 {
			red = replacer.New(dst, needles, redact.Redact)
			dst = red
		}
	}

	cancelSig := process.SIGTERM
	if cfg.CancelSignal != "" {
		cancelSig, err = process.ParseSignal(cfg.CancelSignal)
		if err != nil {
			return err
		}
	}

	l.Info("Capturing the output of %q to %s", cfg.Command, logPath)

	proc := process.New(l, process.Config{
		Path:              args[0],
		Args:              args[1:],
		Stdout:            dst,
		Stderr:            dst,
		PTY:               !cfg.NoPTY,
		Timestamp:         cfg.TimestampLines,
		InterruptSignal:   cancelSig,
		SignalGracePeriod: time.Duration(cfg.SignalGracePeriodSeconds) * time.Second,
	})

	// The session mostly ends by being signalled, either by the CI runner
	// tearing the host down or by someone kill-ing the pidfile PID. Forward
	// whatever we get to the capture command.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
		syscall.SIGQUIT,
	)

	go func() {
		defer signal.Stop(signals)
		for {
			select {
			case <-ctx.Done():
				return
			case <-proc.Done():
				return
			case <-signals:
				proc.Interrupt()
			}
		}
	}()

	runErr := proc.Run(ctx)

	if red != nil {
		if err := red.Flush(); err != nil {
			l.Warn("Failed to flush redacted output: %v", err)
		}
	}

	if runErr != nil {
		return NewExitError(1, fmt.Errorf("running capture command: %w", runErr))
	}

	if info, err := logFile.Stat(); err == nil {
		l.Info("Captured %s to %s", humanize.IBytes(uint64(info.Size())), logPath)
	}

	if experiments.IsEnabled(ctx, experiments.ZstdLogArchive) {
		if err := archiveLog(l, logPath); err != nil {
			l.Warn("Failed to archive %s: %v", logPath, err)
		}
	}

	status := proc.WaitStatus()
	switch {
	case status.Signaled():
		l.Info("Capture command stopped by %v", status.Signal())
	case status.ExitStatus() != 0:
		return NewSilentExitError(status.ExitStatus())
	}
	return nil
}

// archiveLog compresses the finished log next to the original. The original
// is kept; whatever rotates the capture directory decides what to drop.
func archiveLog(l logger.Logger, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".zst")
	if err != nil {
		return err
	}
	defer dst.Close()

	zw, err := zstd.NewWriter(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	info, err := dst.Stat()
	if err != nil {
		return err
	}
	l.Info("Archived log to %s (%s)", dst.Name(), humanize.IBytes(uint64(info.Size())))
	return nil
}
