// Package manifest defines the YAML document that tells the gate what to
// provision: yum repositories, packages to install, services to enable, the
// cluster playbook to run, and how to probe readiness and capture logs
// afterwards.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kubegate/kubegate/readiness"
	"gopkg.in/yaml.v3"
)

// Probe modes accepted by the readiness section.
const (
	ProbeKubectl = "kubectl"
	ProbeAPI     = "api"
)

// Defaults for the capture section.
const (
	DefaultCaptureCommand   = "journalctl --follow --no-pager --output short-precise"
	DefaultCaptureDirectory = "/var/log/kubegate"
)

var _ yaml.Unmarshaler = (*Duration)(nil)

// Manifest describes everything the gate provisions on a host.
type Manifest struct {
	Repos     []Repo    `yaml:"repos,omitempty"`
	Packages  []string  `yaml:"packages,omitempty"`
	Services  []string  `yaml:"services,omitempty"`
	Cluster   Cluster   `yaml:"cluster,omitempty"`
	Readiness Readiness `yaml:"readiness,omitempty"`
	Capture   Capture   `yaml:"capture,omitempty"`
}

// Repo is a yum repository definition written to /etc/yum.repos.d before
// packages are installed.
type Repo struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	BaseURL     string `yaml:"baseurl"`
	GPGKey      string `yaml:"gpgkey,omitempty"`
	Enabled     bool   `yaml:"enabled"`
	GPGCheck    bool   `yaml:"gpgcheck"`
}

// Render returns the repository definition in yum .repo file format.
func (r Repo) Render() string {
	name := r.Description
	if name == "" {
		name = r.Name
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s]\n", r.Name)
	fmt.Fprintf(&sb, "name=%s\n", name)
	fmt.Fprintf(&sb, "baseurl=%s\n", r.BaseURL)
	fmt.Fprintf(&sb, "enabled=%s\n", onOff(r.Enabled))
	fmt.Fprintf(&sb, "gpgcheck=%s\n", onOff(r.GPGCheck))
	if r.GPGKey != "" {
		fmt.Fprintf(&sb, "gpgkey=%s\n", r.GPGKey)
	}
	return sb.String()
}

func onOff(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Cluster configures the ansible-playbook run that bootstraps kubernetes.
type Cluster struct {
	Playbook  string            `yaml:"playbook,omitempty"`
	Inventory string            `yaml:"inventory,omitempty"`
	ExtraVars map[string]string `yaml:"extra_vars,omitempty"`
}

// Readiness configures how the gate decides the cluster is up.
type Readiness struct {
	Interval Duration `yaml:"interval,omitempty"`
	Timeout  Duration `yaml:"timeout,omitempty"`
	Target   string   `yaml:"target,omitempty"`
	Probe    string   `yaml:"probe,omitempty"`
	Command  string   `yaml:"command,omitempty"`
	Node     string   `yaml:"node,omitempty"`
}

// Capture configures the detached log capture session started once the
// cluster is ready.
type Capture struct {
	Command   string `yaml:"command,omitempty"`
	Directory string `yaml:"directory,omitempty"`
}

// Duration is a time.Duration that unmarshals from Go duration strings
// ("2s", "10m", "1h30m").
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML parses a duration string scalar.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	parsed, err := time.ParseDuration(n.Value)
	if err != nil {
		return fmt.Errorf("line %d, col %d: %q is not a valid duration", n.Line, n.Column, n.Value)
	}
	*d = Duration(parsed)
	return nil
}

// Parse validates b against the manifest schema, decodes it strictly, and
// fills in defaults. An empty document parses to an empty manifest with
// defaults applied.
func Parse(b []byte) (*Manifest, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if doc.IsZero() {
		m := &Manifest{}
		m.applyDefaults()
		return m, nil
	}

	if err := validate(&doc); err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	m.applyDefaults()
	return &m, nil
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	m, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// Default returns the built-in manifest: Docker CE from its upstream yum
// repository, the docker service, and a kubeadm single node playbook probed
// with kubectl every 2 seconds for up to 10 minutes.
func Default() *Manifest {
	m := &Manifest{
		Repos: []Repo{
			{
				Name:        "docker-ce-stable",
				Description: "Docker CE Stable - $basearch",
				BaseURL:     "https://download.docker.com/linux/centos/7/$basearch/stable",
				GPGKey:      "https://download.docker.com/linux/centos/gpg",
				Enabled:     true,
				GPGCheck:    true,
			},
		},
		Packages: []string{"docker-ce", "docker-ce-cli", "containerd.io"},
		Services: []string{"docker"},
		Cluster: Cluster{
			Playbook: "playbooks/kubeadm-single-node.yml",
		},
	}
	m.applyDefaults()
	return m
}

// applyDefaults fills in the readiness and capture values the rest of the
// gate assumes are present. Zero durations mean unset here; a genuinely
// zero probe timeout is only reachable through the wait command's flags.
func (m *Manifest) applyDefaults() {
	if m.Readiness.Interval <= 0 {
		m.Readiness.Interval = Duration(readiness.DefaultInterval)
	}
	if m.Readiness.Timeout <= 0 {
		m.Readiness.Timeout = Duration(readiness.DefaultTimeout)
	}
	if m.Readiness.Target == "" {
		m.Readiness.Target = readiness.DefaultTarget
	}
	if m.Readiness.Probe == "" {
		m.Readiness.Probe = ProbeKubectl
	}
	if m.Capture.Command == "" {
		m.Capture.Command = DefaultCaptureCommand
	}
	if m.Capture.Directory == "" {
		m.Capture.Directory = DefaultCaptureDirectory
	}
}
