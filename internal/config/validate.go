package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/slipway-k8s/slipway/internal/manifest"
)

// ValidationError reports every structural violation found in a topology,
// not only the first one.
type ValidationError struct {
	Issues []string
}

// Error implements error.
func (e *ValidationError) Error() string {
	switch len(e.Issues) {
	case 0:
		return "invalid topology"
	case 1:
		return fmt.Sprintf("invalid topology: %s", e.Issues[0])
	default:
		return fmt.Sprintf("invalid topology: %d issues: %s", len(e.Issues), strings.Join(e.Issues, "; "))
	}
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

var (
	dnsLabelRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
	hostnameRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)
	// quantityRe covers the common Kubernetes quantity forms (plain numbers
	// plus the usual decimal and binary suffixes).
	quantityRe = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?(m|k|M|G|T|Ki|Mi|Gi|Ti)?$`)
)

// manifest kinds that only make sense bound to a concrete service.
var serviceBoundKinds = map[manifest.Kind]bool{
	manifest.KindPersistentVolumeClaim: true,
	manifest.KindDeployment:            true,
	manifest.KindService:               true,
}

// Validate checks the topology structurally: naming, quantities, references,
// dependency acyclicity, render-plan coverage and publish settings. It is
// pure and deterministic; on failure it returns a ValidationError listing
// every violation found.
func (t *Topology) Validate() error {
	var issues []string
	add := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	if !dnsLabelRe.MatchString(t.Project) || len(t.Project) > 63 {
		add("project %q is not a DNS label", t.Project)
	}
	if !dnsLabelRe.MatchString(t.Namespace) || len(t.Namespace) > 63 {
		add("namespace %q is not a DNS label", t.Namespace)
	}
	if t.Host != "" && !hostnameRe.MatchString(t.Host) {
		add("host %q is not a valid hostname", t.Host)
	}

	if len(t.Services) == 0 {
		add("at least one service is required")
	}

	seen := make(map[string]bool, len(t.Services))
	namesUnique := true
	depsResolved := true
	for i := range t.Services {
		svc := &t.Services[i]
		label := svc.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}

		if !dnsLabelRe.MatchString(svc.Name) || len(svc.Name) > 63 {
			add("service %s: name is not a DNS label", label)
		}
		if seen[svc.Name] {
			add("service %s: duplicate name", label)
			namesUnique = false
		}
		seen[svc.Name] = true

		if strings.TrimSpace(svc.Image) == "" {
			add("service %s: image is required", label)
		}
		if svc.Replicas < 1 {
			add("service %s: replicas must be at least 1", label)
		}
		if svc.Port != 0 && (svc.Port < 1 || svc.Port > 65535) {
			add("service %s: port %d out of range", label, svc.Port)
		}
		if svc.Tier != "" && svc.Tier != TierDatabase && svc.Tier != TierApplication {
			add("service %s: unknown tier %q", label, svc.Tier)
		}

		checkQuantity(&issues, label, "resources.requests.cpu", svc.Resources.Requests.CPU)
		checkQuantity(&issues, label, "resources.requests.memory", svc.Resources.Requests.Memory)
		checkQuantity(&issues, label, "resources.limits.cpu", svc.Resources.Limits.CPU)
		checkQuantity(&issues, label, "resources.limits.memory", svc.Resources.Limits.Memory)

		if svc.Storage != nil {
			if !quantityRe.MatchString(svc.Storage.Size) {
				add("service %s: storage.size %q is not a quantity", label, svc.Storage.Size)
			}
			if svc.Storage.Access != AccessExclusive && svc.Storage.Access != AccessShared {
				add("service %s: storage.access %q must be %q or %q", label, svc.Storage.Access, AccessExclusive, AccessShared)
			}
		}

		for _, dep := range svc.DependsOn {
			if dep == svc.Name {
				add("service %s: depends on itself", label)
				depsResolved = false
				continue
			}
			if _, ok := t.Service(dep); !ok {
				add("service %s: depends on undeclared service %q", label, dep)
				depsResolved = false
			}
		}

		secretSeen := make(map[string]bool, len(svc.Secrets))
		for _, name := range svc.Secrets {
			if !dnsLabelRe.MatchString(name) {
				add("service %s: secret name %q is not a DNS label", label, name)
				continue
			}
			if secretSeen[name] {
				add("service %s: duplicate secret %q", label, name)
			}
			secretSeen[name] = true
		}
		for envVar, secretName := range svc.SecretEnv {
			if strings.TrimSpace(envVar) == "" {
				add("service %s: secretEnv contains an empty variable name", label)
			}
			if !secretSeen[secretName] {
				add("service %s: secretEnv %s references %q, which is not in secrets", label, envVar, secretName)
			}
		}
	}

	if namesUnique && depsResolved && len(t.Services) > 0 {
		if _, err := t.TopologicalServices(); err != nil {
			add("%v", err)
		}
	}

	t.validatePlan(&issues)
	t.validateGate(&issues)
	t.validatePublish(&issues)

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func checkQuantity(issues *[]string, svc, field, value string) {
	if value == "" {
		return
	}
	if !quantityRe.MatchString(value) {
		*issues = append(*issues, fmt.Sprintf("service %s: %s %q is not a quantity", svc, field, value))
	}
}

func (t *Topology) validatePlan(issues *[]string) {
	add := func(format string, args ...any) {
		*issues = append(*issues, fmt.Sprintf(format, args...))
	}

	hasDeployment := make(map[string]bool)
	hasClaim := make(map[string]bool)
	for i, ref := range t.Manifests {
		label := fmt.Sprintf("manifests[%d]", i)

		kind, err := manifest.ParseKind(ref.Kind)
		if err != nil {
			add("%s: %v", label, err)
			continue
		}
		if kind == manifest.KindSecret {
			add("%s: the Secret manifest is generated from the bundle, not rendered from a template", label)
			continue
		}
		if strings.TrimSpace(ref.Template) == "" {
			add("%s: template path is required", label)
		}
		if ref.Service != "" {
			if _, ok := t.Service(ref.Service); !ok {
				add("%s: unknown service %q", label, ref.Service)
				continue
			}
		} else if serviceBoundKinds[kind] {
			add("%s: kind %s requires a service binding", label, kind)
			continue
		}
		switch kind {
		case manifest.KindDeployment:
			hasDeployment[ref.Service] = true
		case manifest.KindPersistentVolumeClaim:
			hasClaim[ref.Service] = true
		}
	}

	for _, svc := range t.Services {
		if svc.Name == "" {
			continue
		}
		if !hasDeployment[svc.Name] {
			add("service %s: no Deployment entry in the render plan", svc.Name)
		}
		if svc.Storage != nil && !hasClaim[svc.Name] {
			add("service %s: declares storage but has no PersistentVolumeClaim entry", svc.Name)
		}
	}
}

func (t *Topology) validateGate(issues *[]string) {
	if t.HealthGate.PollInterval != "" {
		d, err := time.ParseDuration(t.HealthGate.PollInterval)
		if err != nil {
			*issues = append(*issues, fmt.Sprintf("healthGate.pollInterval %q is not a duration", t.HealthGate.PollInterval))
		} else if d < 0 {
			*issues = append(*issues, fmt.Sprintf("healthGate.pollInterval %q is negative", t.HealthGate.PollInterval))
		}
	}
	if t.HealthGate.MaxAttempts != nil && *t.HealthGate.MaxAttempts < 0 {
		*issues = append(*issues, fmt.Sprintf("healthGate.maxAttempts %d is negative", *t.HealthGate.MaxAttempts))
	}
}

func (t *Topology) validatePublish(issues *[]string) {
	p := t.Publish
	if p == nil {
		return
	}
	add := func(format string, args ...any) {
		*issues = append(*issues, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(p.Host) == "" {
		add("publish.host is required")
	}
	if strings.TrimSpace(p.User) == "" {
		add("publish.user is required")
	}
	if strings.TrimSpace(p.Dir) == "" {
		add("publish.dir is required")
	}
	if p.Port < 0 || p.Port > 65535 {
		add("publish.port %d out of range", p.Port)
	}
	if p.KnownHostsFile != "" && p.InsecureSkipHostKey {
		add("publish.knownHostsFile and publish.insecureSkipHostKey are mutually exclusive")
	}
	if p.KnownHostsFile == "" && !p.InsecureSkipHostKey {
		add("publish requires knownHostsFile or the explicit insecureSkipHostKey opt-out")
	}
}
