package clicommand

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kubegate/kubegate/cliconfig"
	"github.com/kubegate/kubegate/internal/manifest"
	"github.com/kubegate/kubegate/logger"
	"github.com/kubegate/kubegate/process"
	"github.com/kubegate/kubegate/tracetools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveManifestDefaults(t *testing.T) {
	t.Parallel()

	m, err := resolveManifest(UpConfig{}, logger.Discard)
	require.NoError(t, err)

	assert.Equal(t, "playbooks/kubeadm-single-node.yml", m.Cluster.Playbook)
	assert.Equal(t, manifest.Duration(2*time.Second), m.Readiness.Interval)
	assert.Equal(t, manifest.Duration(10*time.Minute), m.Readiness.Timeout)
	assert.Equal(t, "Ready", m.Readiness.Target)
	assert.Equal(t, manifest.ProbeKubectl, m.Readiness.Probe)
	assert.Equal(t, manifest.DefaultCaptureCommand, m.Capture.Command)
}

func TestResolveManifestOverrides(t *testing.T) {
	t.Parallel()

	cfg := UpConfig{
		Playbook:       "/ci/kubeadm.yml",
		ExtraVars:      []string{"pod_network_cidr=10.244.0.0/16"},
		Interval:       5 * time.Second,
		Timeout:        5 * time.Minute,
		Probe:          manifest.ProbeAPI,
		Node:           "master-0",
		CaptureCommand: "journalctl --follow --unit kubelet",
	}

	m, err := resolveManifest(cfg, logger.Discard)
	require.NoError(t, err)

	assert.Equal(t, "/ci/kubeadm.yml", m.Cluster.Playbook)
	assert.Equal(t, map[string]string{"pod_network_cidr": "10.244.0.0/16"}, m.Cluster.ExtraVars)
	assert.Equal(t, manifest.Duration(5*time.Second), m.Readiness.Interval)
	assert.Equal(t, manifest.Duration(5*time.Minute), m.Readiness.Timeout)
	assert.Equal(t, manifest.ProbeAPI, m.Readiness.Probe)
	assert.Equal(t, "master-0", m.Readiness.Node)
	assert.Equal(t, "journalctl --follow --unit kubelet", m.Capture.Command)

	// Sections without an override keep their defaults.
	assert.Equal(t, manifest.DefaultCaptureDirectory, m.Capture.Directory)
	assert.Equal(t, "Ready", m.Readiness.Target)
}

func TestResolveManifestFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "kubegate.yml")
	doc := "packages: [kubeadm, kubelet]\ncluster:\n  playbook: /ci/kubeadm.yml\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	m, err := resolveManifest(UpConfig{Manifest: path, Timeout: 90 * time.Second}, logger.Discard)
	require.NoError(t, err)

	assert.Equal(t, []string{"kubeadm", "kubelet"}, m.Packages)
	assert.Equal(t, "/ci/kubeadm.yml", m.Cluster.Playbook)
	assert.Equal(t, manifest.Duration(90*time.Second), m.Readiness.Timeout)
}

func TestResolveManifestBadExtraVar(t *testing.T) {
	t.Parallel()

	_, err := resolveManifest(UpConfig{ExtraVars: []string{"novalue"}}, logger.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "novalue")
}

func TestResolveManifestFromStdin(t *testing.T) {
	// Swaps the process wide os.Stdin, so this cannot run in parallel.
	r, w, err := os.Pipe()
	require.NoError(t, err)
	origStdin := os.Stdin
	os.Stdin = r
	t.Cleanup(func() {
		os.Stdin = origStdin
		_ = r.Close()
	})

	doc := "packages: [kubeadm, kubelet]\nreadiness:\n  probe: api\n"
	_, err = w.WriteString(doc)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	m, err := resolveManifest(UpConfig{Manifest: "-"}, logger.Discard)
	require.NoError(t, err)

	assert.Equal(t, []string{"kubeadm", "kubelet"}, m.Packages)
	assert.Equal(t, manifest.ProbeAPI, m.Readiness.Probe)

	// Everything the document leaves out still gets its default.
	assert.Equal(t, "Ready", m.Readiness.Target)
	assert.Equal(t, manifest.DefaultCaptureCommand, m.Capture.Command)
}

func TestResolveManifestStdinNotReadable(t *testing.T) {
	// The null device is not readable, regardless of how the test binary
	// itself was invoked.
	devNull, err := os.Open(os.DevNull)
	require.NoError(t, err)
	origStdin := os.Stdin
	os.Stdin = devNull
	t.Cleanup(func() {
		os.Stdin = origStdin
		_ = devNull.Close()
	})

	_, err = resolveManifest(UpConfig{Manifest: "-"}, logger.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STDIN")
}

func TestGateConfig(t *testing.T) {
	t.Parallel()

	cfg := UpConfig{
		GateID:                   "gate-1",
		CancelSignal:             "SIGINT",
		SignalGracePeriodSeconds: 4,
		TraceContextCodec:        "json",
	}

	conf, err := gateConfig(cfg, logger.Discard)
	require.NoError(t, err)

	assert.Equal(t, "gate-1", conf.GateID)
	assert.Equal(t, process.SIGINT, conf.CancelSignal)
	assert.Equal(t, 4*time.Second, conf.SignalGracePeriod)
	assert.Equal(t, tracetools.CodecJSON{}, conf.TraceContextCodec)
}

func TestGateConfigCaptureFlag(t *testing.T) {
	t.Parallel()

	conf, err := gateConfig(UpConfig{}, logger.Discard)
	require.NoError(t, err)
	assert.False(t, conf.SkipCapture)
	assert.Empty(t, conf.CaptureSession)

	conf, err = gateConfig(UpConfig{Capture: cliconfig.OptionalString{Trueish: false, Value: "false"}}, logger.Discard)
	require.NoError(t, err)
	assert.True(t, conf.SkipCapture)

	conf, err = gateConfig(UpConfig{Capture: cliconfig.OptionalString{Trueish: true, Value: "true"}}, logger.Discard)
	require.NoError(t, err)
	assert.False(t, conf.SkipCapture)
	assert.Empty(t, conf.CaptureSession)

	conf, err = gateConfig(UpConfig{Capture: cliconfig.OptionalString{Trueish: true, Value: "kubelet-logs"}}, logger.Discard)
	require.NoError(t, err)
	assert.False(t, conf.SkipCapture)
	assert.Equal(t, "kubelet-logs", conf.CaptureSession)
}

func TestGateConfigUnknownCodec(t *testing.T) {
	t.Parallel()

	_, err := gateConfig(UpConfig{TraceContextCodec: "yaml"}, logger.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yaml")
}

func TestGateConfigUnknownPhase(t *testing.T) {
	t.Parallel()

	_, err := gateConfig(UpConfig{Phases: []string{"wait", "teardown"}}, logger.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown phase "teardown"`)
}
