package process

import (
	"fmt"
	"strings"
	"syscall"
)

// Signal represents a UNIX signal that can be sent to a process.
type Signal int

const (
	SIGHUP  Signal = 1
	SIGINT  Signal = 2
	SIGQUIT Signal = 3
	SIGUSR1 Signal = 10
	SIGUSR2 Signal = 12
	SIGTERM Signal = 15
)

func (s Signal) String() string {
	return SignalString(syscall.Signal(s))
}

// interruptSignals are the signals --cancel-signal accepts: ones a process
// can be expected to handle and shut down from.
var interruptSignals = []Signal{SIGHUP, SIGINT, SIGQUIT, SIGUSR1, SIGUSR2, SIGTERM}

// ParseSignal returns the Signal for a name like "SIGTERM".
func ParseSignal(sig string) (Signal, error) {
	name := strings.ToUpper(sig)
	for _, s := range interruptSignals {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown signal %q", sig)
}

func (p *Process) setupProcessGroup() {
	// A PTY session leader is already in its own group, and forcing a new
	// one breaks the pty setup. See https://github.com/kr/pty/issues/35
	if p.conf.PTY {
		return
	}
	p.command.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
}

func (p *Process) terminateProcessGroup() error {
	p.logger.Debug("[Process] Sending signal SIGKILL to PGID: %d", p.pid)
	return syscall.Kill(-p.pid, syscall.SIGKILL)
}

func (p *Process) interruptProcessGroup() error {
	sig := p.conf.InterruptSignal
	if sig == 0 {
		sig = SIGTERM
	}
	p.logger.Debug("[Process] Sending signal %s to PGID: %d", sig, p.pid)
	return syscall.Kill(-p.pid, syscall.Signal(sig))
}

// GetPgid returns the process group id for a pid.
func GetPgid(pid int) (int, error) {
	return syscall.Getpgid(pid)
}

// Linux signal names, indexed by signal number.
var signalNames = [...]string{
	1:  "SIGHUP",
	2:  "SIGINT",
	3:  "SIGQUIT",
	4:  "SIGILL",
	5:  "SIGTRAP",
	6:  "SIGABRT",
	7:  "SIGBUS",
	8:  "SIGFPE",
	9:  "SIGKILL",
	10: "SIGUSR1",
	11: "SIGSEGV",
	12: "SIGUSR2",
	13: "SIGPIPE",
	14: "SIGALRM",
	15: "SIGTERM",
	16: "SIGSTKFLT",
	17: "SIGCHLD",
	18: "SIGCONT",
	19: "SIGSTOP",
	20: "SIGTSTP",
	21: "SIGTTIN",
	22: "SIGTTOU",
	23: "SIGURG",
	24: "SIGXCPU",
	25: "SIGXFSZ",
	26: "SIGVTALRM",
	27: "SIGPROF",
	28: "SIGWINCH",
	29: "SIGIO",
	30: "SIGPWR",
	31: "SIGSYS",
}

// SignalString returns the Linux name for a signal number, or the number
// itself when there is no name for it.
func SignalString(s syscall.Signal) string {
	if n := int(s); n > 0 && n < len(signalNames) {
		return signalNames[n]
	}
	return fmt.Sprintf("%d", int(s))
}
