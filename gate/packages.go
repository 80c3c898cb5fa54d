package gate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/buildkite/roko"
	"github.com/kubegate/kubegate/internal/experiments"
	"github.com/kubegate/kubegate/internal/olfactor"
)

// packagesPhase writes the manifest's yum repo definitions and installs its
// packages.
func (g *Gate) packagesPhase(ctx context.Context) error {
	if len(g.Manifest.Repos) > 0 {
		g.shell.Headerf("Configuring package repositories")

		for _, repo := range g.Manifest.Repos {
			path := filepath.Join(g.RepoDir, repo.Name+".repo")
			if g.DryRun {
				g.shell.Commentf("Would write %s", path)
				continue
			}
			if err := os.WriteFile(path, []byte(repo.Render()), 0o644); err != nil {
				return fmt.Errorf("writing repo %q: %w", repo.Name, err)
			}
			g.shell.Commentf("Wrote %s", path)
		}
	}

	if len(g.Manifest.Packages) == 0 {
		g.shell.Commentf("No packages to install")
		return nil
	}

	packageManager := "yum"
	if experiments.IsEnabled(ctx, experiments.DNFPackageManager) {
		packageManager = "dnf"
	}

	g.shell.Headerf("Installing packages with %s", packageManager)

	args := append([]string{"install", "-y"}, g.Manifest.Packages...)

	// dnf and yum phrase an unknown package differently.
	const noMatch = "No match for argument"
	const noPackage = "No package"

	// Package mirrors flake routinely on CI hosts. This error will cause
	// retries.
	err := roko.NewRetrier(
		roko.WithMaxAttempts(3),
		roko.WithStrategy(roko.Constant(5*time.Second)),
		roko.WithJitter(),
	).DoWithContext(ctx, func(r *roko.Retrier) error {
		_, err := g.shell.RunWithOlfactor(ctx, []string{noMatch, noPackage}, packageManager, args...)
		if err == nil {
			return nil
		}

		// An unknown package will not become known on a retry.
		var smellErr *olfactor.OlfactoryError
		if errors.As(err, &smellErr) {
			g.shell.Warningf("%s does not know one of the requested packages, its output matched %q", packageManager, smellErr.Smell)
			r.Break()
			return err
		}

		g.shell.Warningf("%s install failed (%s)", packageManager, r)
		return err
	})
	if err != nil {
		return fmt.Errorf("installing packages: %w", err)
	}

	packagesInstalled.Add(float64(len(g.Manifest.Packages)))
	return nil
}
