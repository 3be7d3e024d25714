package render_test

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/slipway-k8s/slipway/internal/config"
	"github.com/slipway-k8s/slipway/internal/manifest"
	"github.com/slipway-k8s/slipway/internal/render"
	"github.com/slipway-k8s/slipway/internal/secrets"
)

func referenceSecrets() secrets.Bundle {
	return secrets.New(map[string]string{
		"db-root-password": "root-pw",
		"db-password":      "app-pw",
		"db-user":          "wordpress",
		"db-name":          "wordpress",
	})
}

func loadReferenceTopology(t *testing.T) *config.Topology {
	t.Helper()
	topo, err := config.Load(filepath.Join("..", "..", "services.yaml"))
	require.NoError(t, err)
	require.NoError(t, topo.Validate())
	return topo
}

func TestRenderAllReferenceTopology(t *testing.T) {
	topo := loadReferenceTopology(t)
	r := render.New(nil, topo.Dir())

	set, err := r.RenderAll(topo, referenceSecrets())
	require.NoError(t, err)

	require.Equal(t, 10, set.Len())
	assert.Equal(t, []string{
		"00-secret-blog-secrets.yaml",
		"01-persistentvolumeclaim-db-data.yaml",
		"02-persistentvolumeclaim-app-data.yaml",
		"03-configmap-blog-config.yaml",
		"04-service-db.yaml",
		"05-service-app.yaml",
		"06-deployment-db.yaml",
		"07-deployment-app.yaml",
		"08-ingress-blog.yaml",
		"09-networkpolicy-db-ingress.yaml",
	}, set.Names())

	require.Equal(t, manifest.KindSecret, set.Manifests[0].Kind)
	require.NoError(t, render.ValidateAll(set))
}

func TestRenderAllOptionalCronJobSortsLast(t *testing.T) {
	topo := loadReferenceTopology(t)
	topo.Manifests = append(topo.Manifests, config.ManifestRef{
		Kind:     "CronJob",
		Service:  "db",
		Template: "templates/cronjob.yaml",
		Vars:     map[string]string{"Schedule": "0 3 * * *"},
	})
	r := render.New(nil, topo.Dir())

	set, err := r.RenderAll(topo, referenceSecrets())
	require.NoError(t, err)

	require.Equal(t, 11, set.Len())
	names := set.Names()
	assert.Equal(t, "10-cronjob-db-backup.yaml", names[len(names)-1])
	require.NoError(t, render.ValidateAll(set))
}

func TestRenderAllIsDeterministic(t *testing.T) {
	topo := loadReferenceTopology(t)
	r := render.New(nil, topo.Dir())

	first, err := r.RenderAll(topo, referenceSecrets())
	require.NoError(t, err)
	second, err := r.RenderAll(topo, referenceSecrets())
	require.NoError(t, err)

	require.Equal(t, first.Len(), second.Len())
	for i := range first.Manifests {
		assert.Equal(t, first.Manifests[i].Data, second.Manifests[i].Data, first.Manifests[i].Name)
	}
}

func TestSecretManifestRoundTrip(t *testing.T) {
	topo := loadReferenceTopology(t)
	r := render.New(nil, topo.Dir())

	m, err := r.SecretManifest(topo, referenceSecrets())
	require.NoError(t, err)

	var doc struct {
		Kind     string `yaml:"kind"`
		Metadata struct {
			Name      string `yaml:"name"`
			Namespace string `yaml:"namespace"`
		} `yaml:"metadata"`
		Data map[string]string `yaml:"data"`
	}
	require.NoError(t, yaml.Unmarshal(m.Data, &doc))

	assert.Equal(t, "Secret", doc.Kind)
	assert.Equal(t, "blog-secrets", doc.Metadata.Name)
	assert.Equal(t, "blog", doc.Metadata.Namespace)
	require.Len(t, doc.Data, 4)

	want := map[string]string{
		"db-root-password": "root-pw",
		"db-password":      "app-pw",
		"db-user":          "wordpress",
		"db-name":          "wordpress",
	}
	for name, encoded := range doc.Data {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		require.NoError(t, err)
		assert.Equal(t, want[name], string(decoded), name)
	}
}

func TestSecretManifestMissingSecretFails(t *testing.T) {
	topo := loadReferenceTopology(t)
	r := render.New(nil, topo.Dir())

	bundle := secrets.New(map[string]string{
		"db-root-password": "root-pw",
		"db-password":      "app-pw",
		"db-name":          "wordpress",
	})

	_, err := r.RenderAll(topo, bundle)
	require.Error(t, err)
	assert.True(t, render.IsRenderError(err))
	assert.Contains(t, err.Error(), "db-user")
}

func TestFromTemplatePassesUnrelatedBytesThrough(t *testing.T) {
	dir := t.TempDir()
	content := "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: static\ndata:\n  key: value\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "static.yaml"), []byte(content), 0o600))

	r := render.New(nil, dir)
	out, err := r.FromTemplate("static.yaml", nil)
	require.NoError(t, err)
	assert.Equal(t, content, string(out))
}

func TestFromTemplateUnresolvedPlaceholderFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "broken.yaml"),
		[]byte("apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: {{ .MissingName }}\n"),
		0o600,
	))

	r := render.New(nil, dir)
	_, err := r.FromTemplate("broken.yaml", map[string]any{"Project": "blog"})
	require.Error(t, err)
	assert.True(t, render.IsRenderError(err))
	assert.Contains(t, err.Error(), "MissingName")
}

func TestFromTemplateMissingFileFails(t *testing.T) {
	r := render.New(nil, t.TempDir())
	_, err := r.FromTemplate("absent.yaml", nil)
	require.Error(t, err)
	assert.True(t, render.IsRenderError(err))
}

func TestRenderAllRejectsKindMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "cm.yaml"),
		[]byte("apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: {{ .Project }}-config\ndata: {}\n"),
		0o600,
	))

	topo := &config.Topology{
		Project:   "blog",
		Namespace: "blog",
		Services: []config.Service{
			{Name: "db", Image: "mariadb:11.4", Replicas: 1},
		},
		Manifests: []config.ManifestRef{
			{Kind: "Ingress", Template: "cm.yaml"},
		},
	}

	r := render.New(nil, dir)
	_, err := r.RenderAll(topo, secrets.New(nil))
	require.Error(t, err)
	assert.True(t, render.IsRenderError(err))
	assert.Contains(t, err.Error(), "plan declares")
}

func TestValidateAllFlagsMalformedDocuments(t *testing.T) {
	set := manifest.Set{Manifests: []manifest.Manifest{
		{Kind: manifest.KindConfigMap, Name: "ok", Data: []byte("apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: ok\n")},
		{Kind: manifest.KindConfigMap, Name: "broken", Data: []byte("kind: [unclosed\n")},
		{Kind: manifest.KindConfigMap, Name: "anonymous", Data: []byte("apiVersion: v1\nkind: ConfigMap\nmetadata: {}\n")},
	}}

	err := render.ValidateAll(set)
	require.Error(t, err)
	assert.True(t, config.IsValidationError(err))
	assert.Contains(t, err.Error(), "01-configmap-broken.yaml")
	assert.Contains(t, err.Error(), "metadata.name")
}

func TestWriteFilesUsesContractNames(t *testing.T) {
	topo := loadReferenceTopology(t)
	r := render.New(nil, topo.Dir())

	set, err := r.RenderAll(topo, referenceSecrets())
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "manifests")
	require.NoError(t, render.WriteFiles(set, out))

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 10)
	assert.Equal(t, "00-secret-blog-secrets.yaml", entries[0].Name())

	require.Error(t, render.WriteFiles(manifest.Set{}, out))
}
