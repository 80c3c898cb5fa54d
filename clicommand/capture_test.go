package clicommand

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/kubegate/kubegate/internal/experiments"
	"github.com/kubegate/kubegate/logger"
)

func TestCaptureWritesLog(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := CaptureConfig{
		Command:     "echo hello from the cluster",
		Directory:   dir,
		SessionName: "session",
		NoPTY:       true,
	}
	l := logger.NewBuffer()

	if err := capture(context.Background(), cfg, l); err != nil {
		t.Errorf("capture(ctx, %v, l) = %v", cfg, err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "session.log"))
	if err != nil {
		t.Fatalf("reading captured log: %v", err)
	}
	if got, want := string(b), "hello from the cluster"; !strings.Contains(got, want) {
		t.Errorf("captured log = %q, want it to contain %q", got, want)
	}
	if got, want := l.Messages, "[info] Captured "; !containsPrefix(got, want) {
		t.Errorf("after capture, l.Messages = %q\nis missing a message starting %q", got, want)
	}
}

func TestCaptureWritesJSONRecords(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := CaptureConfig{
		Command:     "echo etcd is healthy",
		Directory:   dir,
		SessionName: "session",
		LogFormat:   "json",
		NoPTY:       true,
	}

	if err := capture(context.Background(), cfg, logger.NewBuffer()); err != nil {
		t.Errorf("capture(ctx, %v, l) = %v", cfg, err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "session.log"))
	if err != nil {
		t.Fatalf("reading captured log: %v", err)
	}

	var record map[string]string
	if err := json.Unmarshal([]byte(strings.SplitN(string(b), "\n", 2)[0]), &record); err != nil {
		t.Fatalf("unmarshaling the first log record %q: %v", string(b), err)
	}
	if got, want := record["message"], "etcd is healthy"; got != want {
		t.Errorf("record message = %q, want %q", got, want)
	}
	if got, want := record["session"], "session"; got != want {
		t.Errorf("record session = %q, want %q", got, want)
	}
	if record["timestamp"] == "" {
		t.Errorf("record %v is missing a timestamp", record)
	}
}

func TestCaptureRejectsUnknownLogFormat(t *testing.T) {
	t.Parallel()

	cfg := CaptureConfig{
		Command:     "echo ok",
		Directory:   t.TempDir(),
		SessionName: "session",
		LogFormat:   "yaml",
		NoPTY:       true,
	}

	err := capture(context.Background(), cfg, logger.NewBuffer())
	if err == nil || !strings.Contains(err.Error(), `unknown log format "yaml"`) {
		t.Errorf("capture(ctx, %v, l) = %v, want an unknown log format error", cfg, err)
	}
}

func TestCaptureTimestampsLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := CaptureConfig{
		Command:        "echo stamped",
		Directory:      dir,
		SessionName:    "session",
		NoPTY:          true,
		TimestampLines: true,
	}

	if err := capture(context.Background(), cfg, logger.NewBuffer()); err != nil {
		t.Errorf("capture(ctx, %v, l) = %v", cfg, err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "session.log"))
	if err != nil {
		t.Fatalf("reading captured log: %v", err)
	}
	if matched := regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2}T`).Match(b); !matched {
		t.Errorf("captured log = %q, want each line to start with an RFC3339 timestamp", string(b))
	}
}

func TestCaptureRedactsSecrets(t *testing.T) {
	t.Setenv("KUBEGATE_TEST_SECRET", "hunter2-is-sensitive")

	dir := t.TempDir()
	cfg := CaptureConfig{
		Command:      "echo the password is hunter2-is-sensitive",
		Directory:    dir,
		SessionName:  "session",
		NoPTY:        true,
		RedactedVars: []string{"*_SECRET"},
	}

	if err := capture(context.Background(), cfg, logger.NewBuffer()); err != nil {
		t.Errorf("capture(ctx, %v, l) = %v", cfg, err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "session.log"))
	if err != nil {
		t.Fatalf("reading captured log: %v", err)
	}
	if strings.Contains(string(b), "hunter2-is-sensitive") {
		t.Errorf("captured log %q contains the secret value", string(b))
	}
	if !strings.Contains(string(b), "[REDACTED]") {
		t.Errorf("captured log %q is missing the redaction marker", string(b))
	}
}

func TestCaptureArchivesLogUnderExperiment(t *testing.T) {
	t.Parallel()

	ctx, _ := experiments.Enable(context.Background(), experiments.ZstdLogArchive)

	dir := t.TempDir()
	cfg := CaptureConfig{
		Command:     "echo archive me",
		Directory:   dir,
		SessionName: "session",
		NoPTY:       true,
	}

	if err := capture(ctx, cfg, logger.NewBuffer()); err != nil {
		t.Errorf("capture(ctx, %v, l) = %v", cfg, err)
	}

	f, err := os.Open(filepath.Join(dir, "session.log.zst"))
	if err != nil {
		t.Fatalf("opening archived log: %v", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("creating zstd reader: %v", err)
	}
	defer zr.Close()

	b, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("decompressing archived log: %v", err)
	}
	if got, want := string(b), "archive me"; !strings.Contains(got, want) {
		t.Errorf("archived log = %q, want it to contain %q", got, want)
	}
}

func TestCaptureWritesAndRemovesPidFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pidFile := filepath.Join(dir, "capture.pid")
	cfg := CaptureConfig{
		Command:     "echo ok",
		Directory:   dir,
		SessionName: "session",
		NoPTY:       true,
		PidFile:     pidFile,
	}

	if err := capture(context.Background(), cfg, logger.NewBuffer()); err != nil {
		t.Errorf("capture(ctx, %v, l) = %v", cfg, err)
	}
	if _, err := os.Stat(pidFile); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("after capture, pidfile %s still exists (stat error %v)", pidFile, err)
	}
}

func TestCaptureReportsCommandExitStatus(t *testing.T) {
	t.Parallel()

	cfg := CaptureConfig{
		Command:     "false",
		Directory:   t.TempDir(),
		SessionName: "session",
		NoPTY:       true,
	}

	err := capture(context.Background(), cfg, logger.NewBuffer())

	silent := new(SilentExitError)
	if !errors.As(err, &silent) || silent.Code() != 1 {
		t.Errorf("capture(ctx, %v, l) = %v, want a silent exit error with code 1", cfg, err)
	}
}
