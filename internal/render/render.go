// Package render produces the ordered manifest set from template skeletons,
// topology values and the secret bundle. Rendering is a pure function of its
// inputs: the same topology, bundle and templates always yield byte-identical
// manifests.
package render

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/slipway-k8s/slipway/internal/config"
	"github.com/slipway-k8s/slipway/internal/manifest"
	"github.com/slipway-k8s/slipway/internal/secrets"
)

// Renderer renders manifest sets for one project root.
type Renderer struct {
	logger *slog.Logger
	// root resolves relative template paths.
	root string
}

// New constructs a Renderer rooted at the topology's directory.
func New(logger *slog.Logger, root string) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{logger: logger, root: root}
}

// secretDocument is the generated Secret manifest shape.
type secretDocument struct {
	APIVersion string            `yaml:"apiVersion"`
	Kind       string            `yaml:"kind"`
	Metadata   objectMeta        `yaml:"metadata"`
	Type       string            `yaml:"type"`
	Data       map[string]string `yaml:"data"`
}

type objectMeta struct {
	Name      string `yaml:"name"`
	Namespace string `yaml:"namespace"`
}

// SecretManifest builds the Secret manifest from the bundle: one data field
// per required secret, base64-encoded the way the manifest format expects.
// The encoding is reversible; consumers decode it back to the original value.
// Any required secret absent from the bundle fails the render.
func (r *Renderer) SecretManifest(topo *config.Topology, bundle secrets.Bundle) (manifest.Manifest, error) {
	required := topo.RequiredSecrets()
	if missing := bundle.Missing(required); len(missing) > 0 {
		return manifest.Manifest{}, &Error{
			Target: "secret manifest",
			Reason: fmt.Sprintf("required secrets missing from bundle: %s", strings.Join(missing, ", ")),
		}
	}

	data := make(map[string]string, len(required))
	for _, name := range required {
		value, _ := bundle.Get(name)
		data[name] = base64.StdEncoding.EncodeToString([]byte(value))
	}

	doc := secretDocument{
		APIVersion: "v1",
		Kind:       "Secret",
		Metadata:   objectMeta{Name: topo.SecretManifestName(), Namespace: topo.Namespace},
		Type:       "Opaque",
		Data:       data,
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		_ = enc.Close()
		return manifest.Manifest{}, &Error{Target: "secret manifest", Err: err}
	}
	if err := enc.Close(); err != nil {
		return manifest.Manifest{}, &Error{Target: "secret manifest", Err: err}
	}

	return manifest.Manifest{
		Kind: manifest.KindSecret,
		Name: topo.SecretManifestName(),
		Data: buf.Bytes(),
	}, nil
}

// FromTemplate renders a single template with the given bindings. It is pure
// placeholder substitution: unrelated bytes pass through untouched, and any
// placeholder without a binding fails the render.
func (r *Renderer) FromTemplate(path string, bindings map[string]any) ([]byte, error) {
	fullPath := path
	if !filepath.IsAbs(fullPath) && r.root != "" {
		fullPath = filepath.Join(r.root, path)
	}

	raw, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, &Error{Target: path, Err: fmt.Errorf("read template: %w", err)}
	}

	tmpl, err := template.New(filepath.Base(path)).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, &Error{Target: path, Err: err}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, bindings); err != nil {
		return nil, &Error{Target: path, Err: err}
	}
	return buf.Bytes(), nil
}

// RenderAll renders the complete manifest set: the generated Secret manifest
// plus one manifest per render-plan entry, ordered by the publishing
// contract (Secret first, claims before the workloads mounting them,
// dependencies before dependents).
func (r *Renderer) RenderAll(topo *config.Topology, bundle secrets.Bundle) (manifest.Set, error) {
	secretManifest, err := r.SecretManifest(topo, bundle)
	if err != nil {
		return manifest.Set{}, err
	}

	set := manifest.Set{Manifests: []manifest.Manifest{secretManifest}}
	for _, ref := range topo.Manifests {
		m, err := r.renderRef(topo, ref)
		if err != nil {
			return manifest.Set{}, err
		}
		set.Manifests = append(set.Manifests, m)
	}

	order, err := topo.TopologicalServices()
	if err != nil {
		return manifest.Set{}, fmt.Errorf("order services: %w", err)
	}
	set.Sort(order)

	r.logger.Debug("rendered manifest set", "count", set.Len(), "files", set.Names())
	return set, nil
}

// renderRef renders one plan entry and checks the produced document against
// the plan's declared kind.
func (r *Renderer) renderRef(topo *config.Topology, ref config.ManifestRef) (manifest.Manifest, error) {
	kind, err := manifest.ParseKind(ref.Kind)
	if err != nil {
		return manifest.Manifest{}, &Error{Target: ref.Template, Err: err}
	}

	data, err := r.FromTemplate(ref.Template, r.bindings(topo, ref))
	if err != nil {
		return manifest.Manifest{}, err
	}

	doc, err := decodeSingleDocument(data)
	if err != nil {
		return manifest.Manifest{}, &Error{Target: ref.Template, Err: err}
	}

	docKind, _ := doc["kind"].(string)
	if docKind != string(kind) {
		return manifest.Manifest{}, &Error{
			Target: ref.Template,
			Reason: fmt.Sprintf("template produced kind %q, plan declares %q", docKind, kind),
		}
	}

	name := ref.Name
	if name == "" {
		name = documentName(doc)
	}
	if name == "" {
		return manifest.Manifest{}, &Error{Target: ref.Template, Reason: "rendered document has no metadata.name"}
	}

	return manifest.Manifest{
		Kind:    kind,
		Name:    name,
		Service: ref.Service,
		Data:    data,
	}, nil
}

// bindings assembles the template bindings for one plan entry: global
// topology values, per-service values with resolved probe parameters, and
// the entry's own vars, in increasing precedence.
func (r *Renderer) bindings(topo *config.Topology, ref config.ManifestRef) map[string]any {
	b := map[string]any{
		"Project":    topo.Project,
		"Namespace":  topo.Namespace,
		"Host":       topo.Host,
		"SecretName": topo.SecretManifestName(),
	}

	if ref.Service != "" {
		if svc, ok := topo.Service(ref.Service); ok {
			b["Service"] = svc.Name
			b["Image"] = svc.Image
			b["Replicas"] = svc.Replicas
			b["Port"] = svc.Port
			b["CPURequest"] = svc.Resources.Requests.CPU
			b["CPULimit"] = svc.Resources.Limits.CPU
			b["MemoryRequest"] = svc.Resources.Requests.Memory
			b["MemoryLimit"] = svc.Resources.Limits.Memory
			if svc.Storage != nil {
				b["StorageSize"] = svc.Storage.Size
				b["StorageAccessMode"] = svc.Storage.Access.KubernetesMode()
			}
			probes := svc.ProbeParams()
			b["LivenessInitialDelaySeconds"] = probes.Liveness.InitialDelaySeconds
			b["LivenessPeriodSeconds"] = probes.Liveness.PeriodSeconds
			b["LivenessTimeoutSeconds"] = probes.Liveness.TimeoutSeconds
			b["LivenessFailureThreshold"] = probes.Liveness.FailureThreshold
			b["ReadinessInitialDelaySeconds"] = probes.Readiness.InitialDelaySeconds
			b["ReadinessPeriodSeconds"] = probes.Readiness.PeriodSeconds
			b["ReadinessTimeoutSeconds"] = probes.Readiness.TimeoutSeconds
			b["ReadinessFailureThreshold"] = probes.Readiness.FailureThreshold
		}
	}

	for k, v := range ref.Vars {
		b[k] = v
	}
	return b
}

// decodeSingleDocument parses rendered bytes and requires exactly one
// non-empty YAML document.
func decodeSingleDocument(data []byte) (map[string]any, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var doc map[string]any
	for {
		var candidate map[string]any
		if err := dec.Decode(&candidate); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode rendered document: %w", err)
		}
		if len(candidate) == 0 {
			continue
		}
		if doc != nil {
			return nil, fmt.Errorf("template must produce exactly one document")
		}
		doc = candidate
	}
	if doc == nil {
		return nil, fmt.Errorf("template produced no document")
	}
	return doc, nil
}

// documentName extracts metadata.name from a decoded document.
func documentName(doc map[string]any) string {
	meta, _ := doc["metadata"].(map[string]any)
	if meta == nil {
		return ""
	}
	name, _ := meta["name"].(string)
	return name
}
