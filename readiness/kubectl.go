package readiness

import (
	"context"
	"fmt"

	"github.com/buildkite/shellwords"
	"github.com/kubegate/kubegate/internal/shell"
	"github.com/kubegate/kubegate/internal/shellscript"
)

// DefaultProbeCommand is the status query CommandProber runs when no command
// is configured.
const DefaultProbeCommand = "kubectl get nodes --no-headers"

// CommandProber probes by running a status command through a shell and
// extracting the node status from the first line of its output. It is the
// production prober on hosts where kubectl is the only way in.
type CommandProber struct {
	sh      *shell.Shell
	command string
	args    []string
}

// NewCommandProber builds a prober for the given command line. An empty
// command falls back to DefaultProbeCommand, narrowed to a single node when
// node is non-empty. The command is split shellwords-style, so quoted
// arguments survive.
func NewCommandProber(sh *shell.Shell, command, node string) (*CommandProber, error) {
	if command == "" {
		command = DefaultProbeCommand
		if node != "" {
			command = fmt.Sprintf("kubectl get node %s --no-headers", shellwords.Quote(node))
		}
	}

	argv, err := shellwords.Split(command)
	if err != nil {
		return nil, fmt.Errorf("splitting probe command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("probe command %q is empty", command)
	}

	// Probe scripts dropped into place without chmod +x still run.
	argv = shellscript.WithInterpreter(argv)

	return &CommandProber{sh: sh, command: argv[0], args: argv[1:]}, nil
}

// Command returns the argv the prober will run, for logging.
func (p *CommandProber) Command() []string {
	return append([]string{p.command}, p.args...)
}

func (p *CommandProber) Probe(ctx context.Context) (string, error) {
	out, err := p.sh.RunAndCapture(ctx, p.command, p.args...)
	if err != nil {
		return "", err
	}
	return ParseNodeStatus(out)
}
