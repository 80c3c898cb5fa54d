package shell_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/buildkite/bintest/v3"
	"github.com/google/go-cmp/cmp"
	"github.com/kubegate/kubegate/env"
	"github.com/kubegate/kubegate/internal/olfactor"
	"github.com/kubegate/kubegate/internal/replacer"
	"github.com/kubegate/kubegate/internal/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunEchoesPromptAndOutput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	systemctl, err := bintest.CompileProxy("systemctl")
	if err != nil {
		t.Fatalf("bintest.CompileProxy(systemctl) error = %v", err)
	}
	defer systemctl.Close()

	out := &bytes.Buffer{}
	sh := newShellForTest(t,
		shell.WithLogger(shell.NewWriterLogger(out, false)),
		shell.WithStdout(out),
	)

	go func() {
		call := <-systemctl.Ch
		fmt.Fprintln(call.Stdout, "Created symlink /etc/systemd/system/multi-user.target.wants/kubelet.service.")
		call.Exit(0)
	}()

	if err := sh.Run(ctx, systemctl.Path, "enable", "--now", "kubelet"); err != nil {
		t.Errorf(`sh.Run(systemctl, "enable", "--now", "kubelet") error = %v`, err)
	}

	want := "$ " + systemctl.Path + " enable --now kubelet\n" +
		"Created symlink /etc/systemd/system/multi-user.target.wants/kubelet.service.\n"
	if diff := cmp.Diff(out.String(), want); diff != "" {
		t.Fatalf("sh.Writer diff (-got +want):\n%s", diff)
	}
}

func TestRunAndCapture(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	kubectl, err := bintest.CompileProxy("kubectl")
	if err != nil {
		t.Fatalf("bintest.CompileProxy(kubectl) error = %v", err)
	}
	defer kubectl.Close()

	sh := newShellForTest(t)

	go func() {
		call := <-kubectl.Ch
		fmt.Fprintln(call.Stdout, "node-0   Ready   control-plane   5m   v1.33.2")
		call.Exit(0)
	}()

	got, err := sh.RunAndCapture(ctx, kubectl.Path, "get", "nodes", "--no-headers")
	if err != nil {
		t.Errorf(`sh.RunAndCapture(kubectl, "get", "nodes", "--no-headers") error = %v`, err)
	}

	// The trailing newline is trimmed.
	if want := "node-0   Ready   control-plane   5m   v1.33.2"; got != want {
		t.Errorf(`sh.RunAndCapture(kubectl, "get", "nodes", "--no-headers") output = %q, want %q`, got, want)
	}
}

func TestRunAndCaptureExitCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	kubectl, err := bintest.CompileProxy("kubectl")
	if err != nil {
		t.Fatalf("bintest.CompileProxy(kubectl) error = %v", err)
	}
	defer kubectl.Close()

	sh := newShellForTest(t)

	go func() {
		call := <-kubectl.Ch
		fmt.Fprintln(call.Stderr, "The connection to the server localhost:6443 was refused")
		call.Exit(24)
	}()

	_, err = sh.RunAndCapture(ctx, kubectl.Path, "get", "nodes")
	if err == nil {
		t.Errorf("sh.RunAndCapture(ctx, kubectl) error = %v, want non-nil error", err)
	}

	if got, want := shell.ExitCode(err), 24; got != want {
		t.Errorf("shell.ExitCode(%v) = %d, want %d", err, got, want)
	}
}

func TestRunWithEnv(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ansible, err := bintest.CompileProxy("ansible-playbook")
	if err != nil {
		t.Fatalf("bintest.CompileProxy(ansible-playbook) error = %v", err)
	}
	defer ansible.Close()

	sh := newShellForTest(t)

	extra := env.FromMap(map[string]string{"ANSIBLE_FORCE_COLOR": "true"})

	go func() {
		call := <-ansible.Ch
		if got, want := call.GetEnv("ANSIBLE_FORCE_COLOR"), "true"; got != want {
			t.Errorf("call.GetEnv(ANSIBLE_FORCE_COLOR) = %q, want %q", got, want)
		}
		call.Exit(0)
	}()

	if err := sh.RunWithEnv(ctx, extra, ansible.Path, "playbooks/kubeadm-single-node.yml"); err != nil {
		t.Errorf("sh.RunWithEnv(ansible-playbook) error = %v", err)
	}
}

func TestRunWithOlfactor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		script       string
		want         string
		smelt        bool
		wantSmellErr bool
	}{
		{
			name:         "smell_on_stdout",
			script:       "echo 'Error: Unable to find a match: kubeadm'; false",
			want:         "Error: Unable to find a match: kubeadm\n",
			smelt:        true,
			wantSmellErr: true,
		},
		{
			name:         "smell_on_stderr",
			script:       "echo 'Error: Unable to find a match: kubeadm' >&2; false",
			want:         "Error: Unable to find a match: kubeadm\n",
			smelt:        true,
			wantSmellErr: true,
		},
		{
			name:         "smell_mid_stream",
			script:       "echo 'Last metadata expiration check'; echo 'Error: Unable to find a match: cri-o'; false",
			want:         "Last metadata expiration check\nError: Unable to find a match: cri-o\n",
			smelt:        true,
			wantSmellErr: true,
		},
		{
			name:   "no_smell",
			script: "echo 'Could not resolve host: pkgs.k8s.io'; false",
			want:   "Could not resolve host: pkgs.k8s.io\n",
			smelt:  false,
		},
		{
			// an exit status of 0 never gets a smell error
			name:   "smell_without_failure",
			script: "echo 'Unable to find a match would be odd here'",
			want:   "Unable to find a match would be odd here\n",
			smelt:  true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			out := &bytes.Buffer{}
			sh := newShellForTest(t, shell.WithStdout(out))

			const smell = "Unable to find a match"
			olf, err := sh.RunWithOlfactor(ctx, []string{smell}, "bash", "-ec", test.script)
			if eerr := new(exec.ExitError); !errors.As(err, &eerr) {
				require.NoError(t, err)
			}

			if diff := cmp.Diff(out.String(), test.want); diff != "" {
				t.Errorf("output diff (-got +want):\n%s", diff)
			}
			if got, want := olf.Smelt(smell), test.smelt; got != want {
				t.Errorf("olf.Smelt(%q) = %t, want %t", smell, got, want)
			}

			var smellErr *olfactor.OlfactoryError
			if got := errors.As(err, &smellErr); got != test.wantSmellErr {
				t.Fatalf("errors.As(err, &smellErr) = %t, want %t", got, test.wantSmellErr)
			}
			if test.wantSmellErr && smellErr.Smell != smell {
				t.Errorf("smellErr.Smell = %q, want %q", smellErr.Smell, smell)
			}
		})
	}
}

func TestDryRunLogsWithoutExecuting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var commandLog [][]string
	out := &bytes.Buffer{}
	sh := newShellForTest(t,
		shell.WithDryRun(true),
		shell.WithCommandLog(&commandLog),
		shell.WithLogger(shell.NewWriterLogger(out, false)),
		shell.WithStdout(out),
	)

	// yum is not installed on the machine running this test. A dry run
	// neither resolves nor executes the command, so that is fine.
	if err := sh.Run(ctx, "yum", "install", "-y", "kubeadm", "kubelet"); err != nil {
		t.Fatalf(`sh.Run(yum, "install", "-y", "kubeadm", "kubelet") error = %v`, err)
	}

	wantLog := [][]string{{"yum", "install", "-y", "kubeadm", "kubelet"}}
	if diff := cmp.Diff(commandLog, wantLog); diff != "" {
		t.Errorf("command log diff (-got +want):\n%s", diff)
	}

	if got, want := out.String(), "$ yum install -y kubeadm kubelet\n"; got != want {
		t.Errorf("sh.Writer = %q, want %q", got, want)
	}
}

func TestContextCancelInterrupts(t *testing.T) {
	t.Parallel()

	sleepCmd, err := bintest.CompileProxy("sleep")
	if err != nil {
		t.Fatalf("bintest.CompileProxy(sleep) error = %v", err)
	}
	defer sleepCmd.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sh := newShellForTest(t)

	go func() {
		call := <-sleepCmd.Ch
		time.Sleep(60 * time.Second)
		call.Exit(0)
	}()

	cancel()

	if err := sh.Run(ctx, sleepCmd.Path); !shell.IsExitSignaled(err) {
		t.Errorf("sh.Run(ctx, sleep) error = %v, want shell.IsExitSignaled(err) = true", err)
	}
}

func TestWorkingDir(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("filepath.EvalSymlinks(t.TempDir()) error = %v", err)
	}

	sh := newShellForTest(t, shell.WithWD(dir))

	pwd, err := sh.RunAndCapture(ctx, "pwd")
	if err != nil {
		t.Fatalf("sh.RunAndCapture(pwd) error = %v", err)
	}
	if got, want := pwd, dir; got != want {
		t.Errorf("sh.RunAndCapture(pwd) = %q, want %q", got, want)
	}
}

func TestLockFileRetriesAndTimesOut(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	lockPath := filepath.Join(t.TempDir(), "kubegate.lock")

	cmd := acquireLockInOtherProcess(t, lockPath)
	defer func() { require.NoError(t, cmd.Process.Kill()) }()

	sh := newShellForTest(t, shell.WithStdout(io.Discard))

	ctx, canc := context.WithTimeout(ctx, 2*time.Second)
	defer canc()

	lock, err := sh.LockFile(ctx, lockPath)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, lock)
}

func acquireLockInOtherProcess(t *testing.T, lockfile string) *exec.Cmd {
	t.Helper()

	t.Logf("acquiring lock in other process: %s", lockfile)

	done := make(chan struct{})
	search := replacer.New(os.Stderr, []string{"🔒 Acquired lock"}, func(b []byte) []byte {
		t.Logf("✅ Acquired lock in other process!")
		close(done)
		return b
	})

	cmd := exec.Command(os.Args[0], "--", lockfile)
	cmd.Env = []string{"TEST_MAIN_WANT_HELPER_PROCESS=1"}
	cmd.Stdout = os.Stdout
	cmd.Stderr = search

	require.NoError(t, cmd.Start())

	// Wait until the child reports holding the lock. Merely waiting for the
	// lock file to exist is not enough: taking the lock is a two-step
	// process (open, then flock), so this test could sneak in between the
	// two and acquire the lock itself.
	<-done

	return cmd
}

func TestRound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want string
	}{
		{54321 * time.Nanosecond, "54.321µs"},
		{7654321 * time.Nanosecond, "7.6543ms"},
		{987654321 * time.Nanosecond, "987.65ms"},
		{1987654321 * time.Nanosecond, "1.9877s"},
		{21987654321 * time.Nanosecond, "21.988s"},
		{321987654321 * time.Nanosecond, "5m21.99s"},
		{4321987654321 * time.Nanosecond, "1h12m0s"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			if got := shell.Round(tt.in).String(); got != tt.want {
				t.Errorf("shell.Round(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func newShellForTest(t *testing.T, opts ...shell.NewShellOpt) *shell.Shell {
	t.Helper()
	sh, err := shell.New(append([]shell.NewShellOpt{shell.WithLogger(shell.DiscardLogger)}, opts...)...)
	if err != nil {
		t.Fatalf("shell.New() error = %v", err)
	}
	return sh
}
