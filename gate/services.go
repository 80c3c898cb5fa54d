package gate

import (
	"context"
	"fmt"
)

// servicesPhase enables and starts the manifest's system services, then
// verifies that each one reports active.
func (g *Gate) servicesPhase(ctx context.Context) error {
	if len(g.Manifest.Services) == 0 {
		g.shell.Commentf("No services to enable")
		return nil
	}

	g.shell.Headerf("Enabling services")

	for _, service := range g.Manifest.Services {
		if err := g.shell.Run(ctx, "systemctl", "enable", service); err != nil {
			return fmt.Errorf("enabling service %q: %w", service, err)
		}
		if err := g.shell.Run(ctx, "systemctl", "start", service); err != nil {
			return fmt.Errorf("starting service %q: %w", service, err)
		}
	}

	if g.DryRun {
		return nil
	}

	for _, service := range g.Manifest.Services {
		// is-active exits nonzero for anything but "active"
		state, err := g.shell.RunAndCapture(ctx, "systemctl", "is-active", service)
		if err != nil {
			return fmt.Errorf("service %q did not come up: %w", service, err)
		}
		g.shell.Commentf("Service %s is %s", service, state)
	}

	return nil
}
