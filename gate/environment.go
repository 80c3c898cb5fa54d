package gate

import (
	"context"
	"fmt"
	"strings"

	"github.com/kubegate/kubegate/internal/gateapi"
	"github.com/kubegate/kubegate/internal/osutil"
	"github.com/kubegate/kubegate/tracetools"
	"github.com/kubegate/kubegate/version"
)

// setUp is run before all the phases run. It's responsible for initializing
// the gate environment: the host lock, the gate tags and the diagnostics
// server live for the whole run.
func (g *Gate) setUp(ctx context.Context) error {
	span, ctx := tracetools.StartSpanFromContext(ctx, "environment", g.TracingBackend)
	var err error
	defer func() { span.FinishWithError(err) }()

	g.state.SetPhase("environment")
	g.shell.Headerf("Preparing environment")
	g.shell.Commentf("Gate %s (kubegate %s)", g.GateID, version.FullVersion())

	release, relErr := osutil.ReadRelease()
	if relErr != nil {
		g.shell.Warningf("Could not read /etc/os-release: %v", relErr)
	} else {
		g.shell.Commentf("Host is running %s", release)
		if !release.IsRHELFamily() {
			g.shell.Warningf("%s is not a RHEL family distribution. The package and service phases assume yum and systemd.", release.ID)
		}
	}

	if g.Debug {
		g.shell.Headerf("Environment variables")
		for _, envar := range g.shell.Env.ToSlice() {
			if strings.HasPrefix(envar, "KUBE") || strings.HasPrefix(envar, "ANSIBLE_") || strings.HasPrefix(envar, "OTEL_") || strings.HasPrefix(envar, "PATH") {
				g.shell.Printf("%s", strings.ReplaceAll(envar, "\n", "\\n"))
			}
		}
	}

	// kubectl probes and any manifest commands see the same kubeconfig the
	// api probe was configured with.
	if g.Kubeconfig != "" {
		g.shell.Env.Set("KUBECONFIG", g.Kubeconfig)
	}

	// Playbooks and phase commands can correlate their own output with this
	// run. The gate id repeats when a CI step is retried, the run uuid does
	// not.
	g.shell.Env.Set("KUBEGATE_GATE_ID", g.GateID)
	g.shell.Env.Set("KUBEGATE_GATE_RUN_UUID", g.runUUID)

	// Only one gate may provision a host at a time. The flock is released in
	// tearDown, or by the OS if we die.
	lockCtx := ctx
	if g.LockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, g.LockTimeout)
		defer cancel()
	}
	unlock, lockErr := g.shell.LockFile(lockCtx, g.LockPath)
	if lockErr != nil {
		err = fmt.Errorf("could not acquire host lock %q: %w", g.LockPath, lockErr)
		return err
	}
	g.unlock = unlock

	tags := FetchTags(ctx, g.Logger, FetchTagsConfig{
		Tags:                      g.Tags,
		TagsFromHost:              g.TagsFromHost,
		TagsFromEC2MetaData:       g.TagsFromEC2MetaData,
		TagsFromEC2Tags:           g.TagsFromEC2Tags,
		TagsFromECSMetaData:       g.TagsFromECSMetaData,
		TagsFromGCPMetaData:       g.TagsFromGCPMetaData,
		WaitForEC2MetaDataTimeout: g.WaitForEC2MetaDataTimeout,
		WaitForEC2TagsTimeout:     g.WaitForEC2TagsTimeout,
		WaitForECSMetaDataTimeout: g.WaitForECSMetaDataTimeout,
	})
	if len(tags) > 0 {
		g.shell.Commentf("Tags: %s", strings.Join(tags, " "))
	}
	g.state.SetTags(tags)

	if g.HealthAddr != "" {
		server, serverErr := gateapi.NewServer(
			gateapi.WithLogger(g.Logger, g.Debug),
			gateapi.WithAddr(g.HealthAddr),
			gateapi.WithState(g.state),
		)
		if serverErr != nil {
			err = fmt.Errorf("could not create diagnostics server: %w", serverErr)
			return err
		}
		if serverErr := server.Start(); serverErr != nil {
			err = fmt.Errorf("could not start diagnostics server: %w", serverErr)
			return err
		}
		g.server = server
		g.shell.Commentf("Diagnostics server listening on http://%s", server.ListenAddr())
	}

	return nil
}

// tearDown is called before the gate exits, even on error
func (g *Gate) tearDown(ctx context.Context) error {
	span, _ := tracetools.StartSpanFromContext(ctx, "pre-exit", g.TracingBackend)
	var err error
	defer func() { span.FinishWithError(err) }()

	if g.server != nil {
		if stopErr := g.server.Stop(); stopErr != nil {
			err = fmt.Errorf("stopping diagnostics server: %w", stopErr)
			return err
		}
	}

	if g.unlock != nil {
		if unlockErr := g.unlock.Unlock(); unlockErr != nil {
			g.shell.Warningf("Failed to release host lock: %v", unlockErr)
		}
	}

	return nil
}
