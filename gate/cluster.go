package gate

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/kubegate/kubegate/env"
)

// adminConf is where kubeadm leaves the cluster admin credentials.
const adminConf = "/etc/kubernetes/admin.conf"

// clusterPhase runs the playbook that stands the cluster up, then installs a
// kubeconfig for the probing user if none exists yet.
//
// The playbook is never retried. A playbook that died half way leaves the
// host in an unknown state, and re-running kubeadm against it hides the
// original failure.
func (g *Gate) clusterPhase(ctx context.Context) error {
	cluster := g.Manifest.Cluster
	if cluster.Playbook == "" {
		g.shell.Commentf("No playbook configured, skipping cluster provisioning")
		return nil
	}

	g.shell.Headerf("Provisioning cluster with %s", cluster.Playbook)

	args := []string{cluster.Playbook}
	if cluster.Inventory != "" {
		args = append(args, "-i", cluster.Inventory)
	}
	for _, k := range slices.Sorted(maps.Keys(cluster.ExtraVars)) {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, cluster.ExtraVars[k]))
	}

	// Ansible disables color without a TTY
	environ := env.FromMap(map[string]string{"ANSIBLE_FORCE_COLOR": "true"})

	if err := g.shell.RunWithEnv(ctx, environ, "ansible-playbook", args...); err != nil {
		return fmt.Errorf("running playbook %s: %w", cluster.Playbook, err)
	}

	return g.installKubeconfig()
}

// installKubeconfig copies kubeadm's admin.conf to the probing user's
// kubeconfig path, unless they already have one.
func (g *Gate) installKubeconfig() error {
	dest := g.Kubeconfig
	if dest == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("finding home directory: %w", err)
		}
		dest = filepath.Join(home, ".kube", "config")
	}

	if _, err := os.Stat(dest); err == nil {
		g.shell.Commentf("Kubeconfig %s already exists", dest)
		return nil
	}

	if g.DryRun {
		g.shell.Commentf("Would install %s as %s", adminConf, dest)
		return nil
	}

	conf, err := os.ReadFile(adminConf)
	if err != nil {
		if os.IsNotExist(err) {
			g.shell.Warningf("%s does not exist, skipping kubeconfig install", adminConf)
			return nil
		}
		return fmt.Errorf("reading %s: %w", adminConf, err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dest), err)
	}
	if err := os.WriteFile(dest, conf, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}

	g.shell.Commentf("Installed %s as %s", adminConf, dest)
	return nil
}
