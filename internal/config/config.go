// Package config contains the loader and strongly typed model for services.yaml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Default health-gate parameters applied when services.yaml leaves them unset.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxAttempts  = 30
)

// DefaultPublishPort is the SSH port used when publish.port is unset.
const DefaultPublishPort = 22

// Topology is the declarative description of a release: the services to
// smoke-test, the manifests to render, and where the artifact goes.
type Topology struct {
	// Project is the short project name used to prefix generated names.
	Project string `yaml:"project"`
	// Namespace is the target namespace stamped into rendered manifests.
	Namespace string `yaml:"namespace"`
	// Host is the ingress hostname offered to templates as a binding.
	Host string `yaml:"host,omitempty"`
	// SecretFiles lists env-style files the secret bundle is loaded from.
	SecretFiles []string `yaml:"secretFiles,omitempty"`
	// Services lists the service tiers in declaration order.
	Services []Service `yaml:"services"`
	// Manifests is the render plan; the Secret manifest is implicit.
	Manifests []ManifestRef `yaml:"manifests"`
	// HealthGate tunes the smoke-test poll loop.
	HealthGate GateConfig `yaml:"healthGate,omitempty"`
	// Package names the archive root directory and file.
	Package PackageConfig `yaml:"package,omitempty"`
	// Publish describes the SFTP destination; nil disables publishing.
	Publish *PublishConfig `yaml:"publish,omitempty"`

	// dir is the directory services.yaml was loaded from; template and
	// secret-file paths resolve against it.
	dir string
}

// Service describes one service tier of the topology.
type Service struct {
	// Name is the service name, a DNS label.
	Name string `yaml:"name"`
	// Image is the container image reference.
	Image string `yaml:"image"`
	// Tier selects probe defaults; empty means application.
	Tier Tier `yaml:"tier,omitempty"`
	// Replicas is the deployment replica count (manifests only; the
	// smoke run always starts a single container per service).
	Replicas int `yaml:"replicas"`
	// Port is the container port exposed by the service.
	Port int `yaml:"port,omitempty"`
	// DependsOn lists services that must be applied before this one.
	DependsOn []string `yaml:"dependsOn,omitempty"`
	// Env holds plain, non-secret container environment literals.
	Env map[string]string `yaml:"env,omitempty"`
	// SecretEnv maps container env var names to secret names; values are
	// injected as file paths during the smoke run, never inline.
	SecretEnv map[string]string `yaml:"secretEnv,omitempty"`
	// Secrets lists the secret names this service consumes.
	Secrets []string `yaml:"secrets,omitempty"`
	// Resources declares CPU/memory requests and limits.
	Resources Resources `yaml:"resources,omitempty"`
	// Storage declares the persistent volume claim, if any.
	Storage *Storage `yaml:"storage,omitempty"`
	// Probes overrides the tier's default probe parameters.
	Probes *ProbeOverrides `yaml:"probes,omitempty"`
}

// Tier classifies a service for probe-default selection.
type Tier string

// Supported tiers.
const (
	TierDatabase    Tier = "database"
	TierApplication Tier = "application"
)

// EffectiveTier returns the tier, defaulting to application when unset.
func (s *Service) EffectiveTier() Tier {
	if s.Tier == "" {
		return TierApplication
	}
	return s.Tier
}

// Resources declares container resource bounds.
type Resources struct {
	// Requests are the scheduler-facing resource requests.
	Requests ResourceList `yaml:"requests,omitempty"`
	// Limits are the hard resource limits.
	Limits ResourceList `yaml:"limits,omitempty"`
}

// ResourceList holds CPU and memory quantities in Kubernetes notation.
type ResourceList struct {
	CPU    string `yaml:"cpu,omitempty"`
	Memory string `yaml:"memory,omitempty"`
}

// Storage declares a persistent volume claim for a service.
type Storage struct {
	// Size is the requested capacity, e.g. "5Gi".
	Size string `yaml:"size"`
	// Access is the writer policy: exclusive or shared.
	Access AccessMode `yaml:"access"`
}

// AccessMode is the declarative writer policy for a volume.
type AccessMode string

// Supported access modes.
const (
	AccessExclusive AccessMode = "exclusive"
	AccessShared    AccessMode = "shared"
)

// KubernetesMode translates the writer policy into a PVC access mode.
func (m AccessMode) KubernetesMode() string {
	if m == AccessShared {
		return "ReadWriteMany"
	}
	return "ReadWriteOnce"
}

// ManifestRef is one entry of the render plan.
type ManifestRef struct {
	// Kind is the manifest kind the template produces.
	Kind string `yaml:"kind"`
	// Service binds the entry to a service for per-service bindings.
	Service string `yaml:"service,omitempty"`
	// Template is the skeleton path, relative to the project root.
	Template string `yaml:"template"`
	// Name overrides the object name recorded for the rendered manifest;
	// empty derives it from the service or project name.
	Name string `yaml:"name,omitempty"`
	// Vars adds or overrides template bindings for this entry only.
	Vars map[string]string `yaml:"vars,omitempty"`
}

// GateConfig tunes the health-gate poll loop.
type GateConfig struct {
	// PollInterval is the delay between poll rounds, e.g. "2s".
	PollInterval string `yaml:"pollInterval,omitempty"`
	// MaxAttempts bounds the number of poll rounds; zero means the gate
	// times out immediately after startup.
	MaxAttempts *int `yaml:"maxAttempts,omitempty"`
}

// Interval returns the configured poll interval or the default.
// Validate guarantees the value parses.
func (g GateConfig) Interval() time.Duration {
	if g.PollInterval == "" {
		return DefaultPollInterval
	}
	d, err := time.ParseDuration(g.PollInterval)
	if err != nil {
		return DefaultPollInterval
	}
	return d
}

// Attempts returns the configured poll budget or the default.
func (g GateConfig) Attempts() int {
	if g.MaxAttempts == nil {
		return DefaultMaxAttempts
	}
	return *g.MaxAttempts
}

// PackageConfig names the packaging outputs.
type PackageConfig struct {
	// RootDir is the single directory the archive unpacks into;
	// empty defaults to "<project>-manifests".
	RootDir string `yaml:"rootDir,omitempty"`
	// ArchiveName is the archive file name; empty defaults to
	// "<rootDir>.tar.gz".
	ArchiveName string `yaml:"archiveName,omitempty"`
}

// PublishConfig describes the SFTP destination for the packaged artifact.
type PublishConfig struct {
	// Host is the SFTP server.
	Host string `yaml:"host"`
	// Port is the SSH port; zero means 22.
	Port int `yaml:"port,omitempty"`
	// User is the SSH user.
	User string `yaml:"user"`
	// Dir is the remote directory the artifact lands in.
	Dir string `yaml:"dir"`
	// KnownHostsFile pins acceptable host keys.
	KnownHostsFile string `yaml:"knownHostsFile,omitempty"`
	// InsecureSkipHostKey disables host-key verification. This is an
	// explicit trust decision and mutually exclusive with KnownHostsFile.
	InsecureSkipHostKey bool `yaml:"insecureSkipHostKey,omitempty"`
}

// EffectivePort returns the configured port or the SSH default.
func (p *PublishConfig) EffectivePort() int {
	if p.Port == 0 {
		return DefaultPublishPort
	}
	return p.Port
}

// Load reads and strictly parses services.yaml. Unknown fields are rejected
// so typos surface as validation failures rather than silent defaults.
// Load does not validate semantics; call Validate on the result.
func Load(path string) (*Topology, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", absPath, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var topo Topology
	if err := dec.Decode(&topo); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ValidationError{Issues: []string{fmt.Sprintf("config %q is empty", absPath)}}
		}
		return nil, &ValidationError{Issues: []string{fmt.Sprintf("parse %s: %v", filepath.Base(absPath), err)}}
	}

	topo.dir = filepath.Dir(absPath)
	return &topo, nil
}

// Dir returns the directory services.yaml was loaded from.
func (t *Topology) Dir() string {
	return t.dir
}

// Service returns the named service, if declared.
func (t *Topology) Service(name string) (*Service, bool) {
	for i := range t.Services {
		if t.Services[i].Name == name {
			return &t.Services[i], true
		}
	}
	return nil, false
}

// ServiceNames returns the service names in declaration order.
func (t *Topology) ServiceNames() []string {
	out := make([]string, 0, len(t.Services))
	for _, svc := range t.Services {
		out = append(out, svc.Name)
	}
	return out
}

// RequiredSecrets returns the sorted union of all secret names the services
// reference. The renderer and the health gate both treat these as required.
func (t *Topology) RequiredSecrets() []string {
	set := make(map[string]struct{})
	for _, svc := range t.Services {
		for _, name := range svc.Secrets {
			set[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SecretManifestName is the object name of the generated Secret manifest.
func (t *Topology) SecretManifestName() string {
	return t.Project + "-secrets"
}

// RootDirName resolves the archive root directory name.
func (t *Topology) RootDirName() string {
	if t.Package.RootDir != "" {
		return t.Package.RootDir
	}
	return t.Project + "-manifests"
}

// ArchiveFileName resolves the archive file name.
func (t *Topology) ArchiveFileName() string {
	if t.Package.ArchiveName != "" {
		return t.Package.ArchiveName
	}
	return t.RootDirName() + ".tar.gz"
}

// TopologicalServices returns service names ordered so every dependency
// precedes its dependents, declaration order breaking ties. It fails on
// dependency cycles and on references to undeclared services.
func (t *Topology) TopologicalServices() ([]string, error) {
	indegree := make(map[string]int, len(t.Services))
	dependents := make(map[string][]string, len(t.Services))
	for _, svc := range t.Services {
		if _, ok := indegree[svc.Name]; !ok {
			indegree[svc.Name] = 0
		}
		for _, dep := range svc.DependsOn {
			if _, ok := t.Service(dep); !ok {
				return nil, fmt.Errorf("service %q depends on undeclared service %q", svc.Name, dep)
			}
			indegree[svc.Name]++
			dependents[dep] = append(dependents[dep], svc.Name)
		}
	}

	order := make([]string, 0, len(t.Services))
	for len(order) < len(t.Services) {
		progressed := false
		for _, svc := range t.Services {
			if indegree[svc.Name] != 0 {
				continue
			}
			indegree[svc.Name] = -1
			order = append(order, svc.Name)
			for _, dep := range dependents[svc.Name] {
				indegree[dep]--
			}
			progressed = true
		}
		if !progressed {
			return nil, fmt.Errorf("dependency cycle among services")
		}
	}
	return order, nil
}
