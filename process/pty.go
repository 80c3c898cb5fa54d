package process

import (
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// StartPTY starts the command with its stdio attached to a new pty, and
// returns the controlling side of the pty.
func StartPTY(c *exec.Cmd) (*os.File, error) {
	return pty.Start(c)
}
