package compose

import (
	"bytes"
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/slipway-k8s/slipway/internal/config"
)

// secretMountDir is where compose mounts file-based secrets in containers.
const secretMountDir = "/run/secrets"

type composeFile struct {
	Services map[string]composeService `yaml:"services"`
	Secrets  map[string]composeSecret  `yaml:"secrets,omitempty"`
}

type composeService struct {
	Image       string            `yaml:"image"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Secrets     []string          `yaml:"secrets,omitempty"`
	DependsOn   []string          `yaml:"depends_on,omitempty"`
}

type composeSecret struct {
	File string `yaml:"file"`
}

// Generate builds the compose file for a smoke run. Secret values are wired
// as file-based secrets from secretsDir; secretEnv variables receive the
// mounted file path, so values never appear in the compose file itself.
func Generate(topo *config.Topology, secretsDir string) ([]byte, error) {
	services := make(map[string]composeService, len(topo.Services))
	secretRefs := make(map[string]composeSecret)

	for _, svc := range topo.Services {
		env := make(map[string]string, len(svc.Env)+len(svc.SecretEnv))
		for k, v := range svc.Env {
			env[k] = v
		}
		for k, secretName := range svc.SecretEnv {
			env[k] = secretMountDir + "/" + secretName
		}

		for _, name := range svc.Secrets {
			secretRefs[name] = composeSecret{File: filepath.Join(secretsDir, name)}
		}

		services[svc.Name] = composeService{
			Image:       svc.Image,
			Environment: env,
			Secrets:     append([]string(nil), svc.Secrets...),
			DependsOn:   append([]string(nil), svc.DependsOn...),
		}
	}

	spec := composeFile{Services: services}
	if len(secretRefs) > 0 {
		spec.Secrets = secretRefs
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(spec); err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("encode compose file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize compose file: %w", err)
	}
	return buf.Bytes(), nil
}
