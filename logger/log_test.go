package logger_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/kubegate/kubegate/logger"
)

func TestConsoleLoggerFiltersByLevel(t *testing.T) {
	b := &bytes.Buffer{}
	exitCode := -1

	printer := logger.NewTextPrinter(b)
	printer.Colors = false

	l := logger.NewConsoleLogger(printer, func(c int) {
		exitCode = c
	})
	l.SetLevel(logger.INFO)

	l.Debug("Probing %q", "kubelet")
	l.Info("Starting %q", "kubelet")
	l.Warn("Restarting %q", "kubelet")
	l.Error("Lost %q", "kubelet")
	l.Fatal("Gave up on %q", "kubelet")

	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	wantSuffixes := []string{
		`Starting "kubelet"`,
		`Restarting "kubelet"`,
		`Lost "kubelet"`,
		`Gave up on "kubelet"`,
	}

	if len(lines) != len(wantSuffixes) {
		t.Fatalf("got %d lines %q, want %d", len(lines), lines, len(wantSuffixes))
	}
	for i, want := range wantSuffixes {
		if !strings.HasSuffix(lines[i], want) {
			t.Errorf("line %d = %q, want suffix %q", i, lines[i], want)
		}
	}

	if exitCode != 1 {
		t.Errorf("exit code after Fatal = %d, want 1", exitCode)
	}
}

func TestConsoleLoggerWithFields(t *testing.T) {
	b := &bytes.Buffer{}

	printer := logger.NewTextPrinter(b)
	printer.Colors = false

	l := logger.NewConsoleLogger(printer, func(int) {})
	l.SetLevel(logger.INFO)

	scoped := l.WithFields(logger.StringField("session", "etcd-logs"))
	scoped.Info("Capture started")
	l.Info("Gate running")

	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines %q, want 2", len(lines), lines)
	}

	if !strings.HasSuffix(lines[0], "Capture started session=etcd-logs") {
		t.Errorf("scoped line = %q, want session field suffix", lines[0])
	}

	// The parent logger stays unscoped.
	if strings.Contains(lines[1], "session=") {
		t.Errorf("parent line = %q, should not carry the session field", lines[1])
	}
}

func TestTextPrinter(t *testing.T) {
	b := &bytes.Buffer{}

	printer := logger.NewTextPrinter(b)
	printer.Colors = false

	printer.Print(logger.NOTICE, "cluster ready", logger.Fields{logger.IntField("nodes", 1)})

	if msg := b.String(); !strings.HasSuffix(msg, "cluster ready nodes=1\n") {
		t.Fatalf("printed line = %q, want field suffix", msg)
	}
}

func TestJSONPrinter(t *testing.T) {
	b := &bytes.Buffer{}

	printer := logger.NewJSONPrinter(b)
	printer.Print(logger.INFO, "cluster ready", logger.Fields{logger.StringField("phase", "wait")})

	var line map[string]any
	if err := json.Unmarshal(b.Bytes(), &line); err != nil {
		t.Fatalf("json.Unmarshal(%q) error = %v", b.String(), err)
	}

	for key, want := range map[string]any{
		"msg":   "cluster ready",
		"level": "INFO",
		"phase": "wait",
	} {
		if got, ok := line[key]; !ok || got != want {
			t.Errorf("line[%q] = %v, want %v", key, got, want)
		}
	}

	if ts, ok := line["ts"]; !ok || ts == "" {
		t.Errorf("line[\"ts\"] = %v, want a timestamp", ts)
	}
}

func TestJSONPrinterEscapesControlCharacters(t *testing.T) {
	b := &bytes.Buffer{}

	printer := logger.NewJSONPrinter(b)
	printer.Print(logger.INFO, "ansi \x1b[1m output", nil)

	var line map[string]any
	if err := json.Unmarshal(b.Bytes(), &line); err != nil {
		t.Fatalf("json.Unmarshal(%q) error = %v", b.String(), err)
	}
}

func TestLevelFromString(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want logger.Level
	}{
		{"debug", logger.DEBUG},
		{"Info", logger.INFO},
		{"warn", logger.WARN},
		{"WARNING", logger.WARN},
		{"notice", logger.NOTICE},
		{"error", logger.ERROR},
		{"fatal", logger.FATAL},
	} {
		got, err := logger.LevelFromString(tc.in)
		if err != nil {
			t.Errorf("LevelFromString(%q) error = %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("LevelFromString(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	if _, err := logger.LevelFromString("verbose"); err == nil {
		t.Errorf("LevelFromString(%q) error = nil, want error", "verbose")
	}
}
