package gate

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/kubegate/kubegate/internal/self"
)

// capturePhase starts the detached log capture session. The session is a
// re-exec of this binary in its own session group, so it outlives the gate
// and keeps collecting logs for the rest of the CI run.
func (g *Gate) capturePhase(ctx context.Context) error {
	if g.SkipCapture {
		g.shell.Commentf("Log capture is disabled")
		return nil
	}

	capture := g.Manifest.Capture

	args := []string{
		"capture",
		"--command", capture.Command,
		"--directory", capture.Directory,
	}
	if g.CaptureSession != "" {
		args = append(args, "--session-name", g.CaptureSession)
	}
	if g.Debug {
		args = append(args, "--debug")
	}

	if g.DryRun {
		g.shell.Commentf("Would start capture session: %s %s", self.Path(ctx), strings.Join(args, " "))
		return nil
	}

	if err := os.MkdirAll(capture.Directory, 0o755); err != nil {
		return fmt.Errorf("creating capture directory %q: %w", capture.Directory, err)
	}

	g.shell.Headerf("Starting log capture session")
	g.shell.Promptf("%s %s", self.Path(ctx), strings.Join(args, " "))

	cmd := exec.Command(self.Path(ctx), args...)
	// A new session detaches the capture from our controlling terminal, so it
	// is not signalled when the CI step's process group is torn down.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	// stdio left nil: the child gets /dev/null and writes to its own files
	// under the capture directory.

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting capture session: %w", err)
	}

	pidfile := filepath.Join(capture.Directory, "capture.pid")
	if err := os.WriteFile(pidfile, []byte(strconv.Itoa(cmd.Process.Pid)+"\n"), 0o644); err != nil {
		g.shell.Warningf("Failed to write pidfile %s: %v", pidfile, err)
	}

	g.shell.Commentf("Capture session running with PID %d", cmd.Process.Pid)
	captureSessions.Inc()

	// Release rather than wait. The session is meant to outlive us.
	return cmd.Process.Release()
}
