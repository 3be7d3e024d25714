package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipway-k8s/slipway/internal/config"
)

func intPtr(v int) *int { return &v }

// validTopology mirrors the two-tier reference stack: a database with an
// exclusive volume and a scaled application tier depending on it.
func validTopology() *config.Topology {
	return &config.Topology{
		Project:   "blog",
		Namespace: "blog",
		Host:      "blog.example.com",
		Services: []config.Service{
			{
				Name:     "db",
				Image:    "mariadb:11.4",
				Tier:     config.TierDatabase,
				Replicas: 1,
				Port:     3306,
				Resources: config.Resources{
					Requests: config.ResourceList{CPU: "250m", Memory: "512Mi"},
					Limits:   config.ResourceList{CPU: "1", Memory: "1Gi"},
				},
				Storage: &config.Storage{Size: "5Gi", Access: config.AccessExclusive},
				Secrets: []string{"db-root-password", "db-password", "db-user", "db-name"},
				SecretEnv: map[string]string{
					"MARIADB_ROOT_PASSWORD_FILE": "db-root-password",
				},
			},
			{
				Name:      "app",
				Image:     "wordpress:6.5-apache",
				Tier:      config.TierApplication,
				Replicas:  4,
				Port:      80,
				DependsOn: []string{"db"},
				Storage:   &config.Storage{Size: "5Gi", Access: config.AccessShared},
				Secrets:   []string{"db-password", "db-user", "db-name"},
			},
		},
		Manifests: []config.ManifestRef{
			{Kind: "PersistentVolumeClaim", Service: "db", Template: "templates/pvc.yaml"},
			{Kind: "PersistentVolumeClaim", Service: "app", Template: "templates/pvc.yaml"},
			{Kind: "ConfigMap", Template: "templates/configmap.yaml"},
			{Kind: "Service", Service: "db", Template: "templates/service.yaml"},
			{Kind: "Service", Service: "app", Template: "templates/service.yaml"},
			{Kind: "Deployment", Service: "db", Template: "templates/deployment-db.yaml"},
			{Kind: "Deployment", Service: "app", Template: "templates/deployment-app.yaml"},
			{Kind: "Ingress", Template: "templates/ingress.yaml", Vars: map[string]string{"Service": "app", "Port": "80"}},
			{Kind: "NetworkPolicy", Template: "templates/networkpolicy.yaml", Vars: map[string]string{"From": "app", "To": "db", "Port": "3306"}},
		},
		Publish: &config.PublishConfig{
			Host:           "artifacts.internal",
			User:           "releasebot",
			Dir:            "/srv/releases/blog",
			KnownHostsFile: "/etc/ssh/known_hosts",
		},
	}
}

func TestLoadParsesTopology(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "services.yaml")
	content := `
project: blog
namespace: blog
secretFiles: [.secrets.env]
services:
  - name: db
    image: mariadb:11.4
    tier: database
    replicas: 1
    secrets: [db-password]
manifests:
  - kind: Deployment
    service: db
    template: templates/deployment-db.yaml
healthGate:
  pollInterval: 5s
  maxAttempts: 10
publish:
  host: artifacts.internal
  user: releasebot
  dir: /srv/releases/blog
  insecureSkipHostKey: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	topo, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "blog", topo.Project)
	assert.Equal(t, dir, topo.Dir())
	assert.Equal(t, 5*time.Second, topo.HealthGate.Interval())
	assert.Equal(t, 10, topo.HealthGate.Attempts())
	require.NotNil(t, topo.Publish)
	assert.Equal(t, 22, topo.Publish.EffectivePort())
	assert.True(t, topo.Publish.InsecureSkipHostKey)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte("project: blog\nreplcias: 3\n"), 0o600))

	_, err := config.Load(path)
	require.Error(t, err)
	assert.True(t, config.IsValidationError(err))
}

func TestLoadRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := config.Load(path)
	require.Error(t, err)
	assert.True(t, config.IsValidationError(err))
}

func TestValidateAcceptsReferenceTopology(t *testing.T) {
	require.NoError(t, validTopology().Validate())
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*config.Topology)
		message string
	}{
		{
			name:    "bad project",
			mutate:  func(tp *config.Topology) { tp.Project = "Blog Stack" },
			message: "project",
		},
		{
			name: "duplicate service name",
			mutate: func(tp *config.Topology) {
				tp.Services[1].Name = "db"
				tp.Manifests = tp.Manifests[:7]
			},
			message: "duplicate name",
		},
		{
			name:    "missing image",
			mutate:  func(tp *config.Topology) { tp.Services[0].Image = "" },
			message: "image is required",
		},
		{
			name:    "zero replicas",
			mutate:  func(tp *config.Topology) { tp.Services[1].Replicas = 0 },
			message: "replicas",
		},
		{
			name:    "unknown tier",
			mutate:  func(tp *config.Topology) { tp.Services[0].Tier = "cache" },
			message: "unknown tier",
		},
		{
			name:    "bad cpu quantity",
			mutate:  func(tp *config.Topology) { tp.Services[0].Resources.Requests.CPU = "lots" },
			message: "not a quantity",
		},
		{
			name:    "bad access mode",
			mutate:  func(tp *config.Topology) { tp.Services[0].Storage.Access = "solo" },
			message: "storage.access",
		},
		{
			name:    "self dependency",
			mutate:  func(tp *config.Topology) { tp.Services[0].DependsOn = []string{"db"} },
			message: "depends on itself",
		},
		{
			name:    "unknown dependency",
			mutate:  func(tp *config.Topology) { tp.Services[1].DependsOn = []string{"cache"} },
			message: "undeclared service",
		},
		{
			name: "dependency cycle",
			mutate: func(tp *config.Topology) {
				tp.Services[0].DependsOn = []string{"app"}
			},
			message: "cycle",
		},
		{
			name:    "secret env outside secrets",
			mutate:  func(tp *config.Topology) { tp.Services[0].SecretEnv["EXTRA_FILE"] = "unknown-secret" },
			message: "not in secrets",
		},
		{
			name: "secret kind in plan",
			mutate: func(tp *config.Topology) {
				tp.Manifests = append(tp.Manifests, config.ManifestRef{Kind: "Secret", Template: "templates/secret.yaml"})
			},
			message: "generated from the bundle",
		},
		{
			name: "unsupported kind",
			mutate: func(tp *config.Topology) {
				tp.Manifests = append(tp.Manifests, config.ManifestRef{Kind: "StatefulSet", Template: "templates/sts.yaml"})
			},
			message: "unsupported manifest kind",
		},
		{
			name: "plan references unknown service",
			mutate: func(tp *config.Topology) {
				tp.Manifests[0].Service = "cache"
			},
			message: "unknown service",
		},
		{
			name: "deployment without service binding",
			mutate: func(tp *config.Topology) {
				tp.Manifests[5].Service = ""
			},
			message: "requires a service binding",
		},
		{
			name: "service without deployment entry",
			mutate: func(tp *config.Topology) {
				tp.Manifests = append(tp.Manifests[:5], tp.Manifests[6:]...)
			},
			message: "no Deployment entry",
		},
		{
			name: "storage without claim entry",
			mutate: func(tp *config.Topology) {
				tp.Manifests = tp.Manifests[1:]
			},
			message: "no PersistentVolumeClaim entry",
		},
		{
			name:    "bad poll interval",
			mutate:  func(tp *config.Topology) { tp.HealthGate.PollInterval = "soon" },
			message: "not a duration",
		},
		{
			name:    "negative max attempts",
			mutate:  func(tp *config.Topology) { tp.HealthGate.MaxAttempts = intPtr(-1) },
			message: "negative",
		},
		{
			name: "publish without host",
			mutate: func(tp *config.Topology) {
				tp.Publish.Host = ""
			},
			message: "publish.host",
		},
		{
			name: "publish with both host key options",
			mutate: func(tp *config.Topology) {
				tp.Publish.InsecureSkipHostKey = true
			},
			message: "mutually exclusive",
		},
		{
			name: "publish without trust decision",
			mutate: func(tp *config.Topology) {
				tp.Publish.KnownHostsFile = ""
			},
			message: "insecureSkipHostKey",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			topo := validTopology()
			tc.mutate(topo)

			err := topo.Validate()
			require.Error(t, err)
			require.True(t, config.IsValidationError(err))
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestValidateIsPureAndRepeatable(t *testing.T) {
	topo := validTopology()
	require.NoError(t, topo.Validate())
	require.NoError(t, topo.Validate())
}

func TestTopologicalServicesOrdersDependenciesFirst(t *testing.T) {
	topo := validTopology()

	order, err := topo.TopologicalServices()
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "app"}, order)
}

func TestRequiredSecretsUnionSorted(t *testing.T) {
	topo := validTopology()

	assert.Equal(t,
		[]string{"db-name", "db-password", "db-root-password", "db-user"},
		topo.RequiredSecrets(),
	)
}

func TestResolvedPackagingNames(t *testing.T) {
	topo := validTopology()
	assert.Equal(t, "blog-manifests", topo.RootDirName())
	assert.Equal(t, "blog-manifests.tar.gz", topo.ArchiveFileName())
	assert.Equal(t, "blog-secrets", topo.SecretManifestName())

	topo.Package.RootDir = "release"
	assert.Equal(t, "release", topo.RootDirName())
	assert.Equal(t, "release.tar.gz", topo.ArchiveFileName())

	topo.Package.ArchiveName = "blog.tgz"
	assert.Equal(t, "blog.tgz", topo.ArchiveFileName())
}

func TestGateConfigResolution(t *testing.T) {
	var gate config.GateConfig
	assert.Equal(t, 2*time.Second, gate.Interval())
	assert.Equal(t, 30, gate.Attempts())

	gate = config.GateConfig{PollInterval: "250ms", MaxAttempts: intPtr(0)}
	assert.Equal(t, 250*time.Millisecond, gate.Interval())
	assert.Equal(t, 0, gate.Attempts())
}

func TestProbeParams(t *testing.T) {
	topo := validTopology()

	db := topo.Services[0].ProbeParams()
	assert.Equal(t, 30, db.Liveness.InitialDelaySeconds)
	assert.Equal(t, 10, db.Liveness.PeriodSeconds)
	assert.Equal(t, 5, db.Liveness.TimeoutSeconds)
	assert.Equal(t, 3, db.Liveness.FailureThreshold)
	assert.Equal(t, 20, db.Readiness.InitialDelaySeconds)
	assert.Equal(t, 2, db.Readiness.FailureThreshold)

	app := topo.Services[1].ProbeParams()
	assert.Equal(t, 40, app.Liveness.InitialDelaySeconds)
	assert.Equal(t, 15, app.Liveness.PeriodSeconds)

	topo.Services[1].Probes = &config.ProbeOverrides{
		Liveness: &config.ProbeSpec{InitialDelaySeconds: 90},
	}
	overridden := topo.Services[1].ProbeParams()
	assert.Equal(t, 90, overridden.Liveness.InitialDelaySeconds)
	assert.Equal(t, 15, overridden.Liveness.PeriodSeconds)
}

func TestAccessModeKubernetesMode(t *testing.T) {
	assert.Equal(t, "ReadWriteOnce", config.AccessExclusive.KubernetesMode())
	assert.Equal(t, "ReadWriteMany", config.AccessShared.KubernetesMode())
}
