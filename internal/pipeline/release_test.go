package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipway-k8s/slipway/internal/archive"
	"github.com/slipway-k8s/slipway/internal/config"
	"github.com/slipway-k8s/slipway/internal/manifest"
	"github.com/slipway-k8s/slipway/internal/pipeline"
	"github.com/slipway-k8s/slipway/internal/render"
	"github.com/slipway-k8s/slipway/internal/secrets"
)

// These tests run the reference topology through the stage wiring the run
// command uses, with the health gate and the upload replaced by fakes so the
// flow needs neither docker nor a network. Gate behavior has its own tests.

func loadReferenceTopology(t *testing.T) *config.Topology {
	t.Helper()
	topo, err := config.Load(filepath.Join("..", "..", "services.yaml"))
	require.NoError(t, err)
	return topo
}

type releaseRun struct {
	set       manifest.Set
	artifact  archive.Artifact
	published string
}

func releaseStages(topo *config.Topology, bundle secrets.Bundle, outDir string, run *releaseRun) []pipeline.Stage {
	return []pipeline.Stage{
		{Name: "validate", Run: func(context.Context) error {
			return topo.Validate()
		}},
		{Name: "health gate", Run: func(context.Context) error {
			return nil
		}},
		{Name: "render", Run: func(context.Context) error {
			set, err := render.New(nil, topo.Dir()).RenderAll(topo, bundle)
			if err != nil {
				return err
			}
			if err := render.ValidateAll(set); err != nil {
				return err
			}
			run.set = set
			return nil
		}},
		{Name: "package", Run: func(context.Context) error {
			artifact, err := archive.Pack(run.set, topo.RootDirName(), topo.ArchiveFileName(), outDir)
			if err != nil {
				return err
			}
			run.artifact = artifact
			return nil
		}},
		{Name: "publish", Run: func(context.Context) error {
			run.published = run.artifact.Path
			return nil
		}},
	}
}

func TestReleasePipelineProducesPublishedArchive(t *testing.T) {
	topo := loadReferenceTopology(t)
	bundle := secrets.New(map[string]string{
		"db-root-password": "root-pw",
		"db-password":      "app-pw",
		"db-user":          "wordpress",
		"db-name":          "wordpress",
	})
	outDir := t.TempDir()

	var run releaseRun
	report := pipeline.NewRunner(nil).Run(context.Background(), releaseStages(topo, bundle, outDir, &run))

	require.True(t, report.Passed())
	require.Len(t, report.Results, 5)

	require.Equal(t, 10, run.set.Len())
	assert.Equal(t, manifest.KindSecret, run.set.Manifests[0].Kind, "the Secret manifest leads the set")

	assert.Equal(t, filepath.Join(outDir, "blog-manifests.tar.gz"), run.artifact.Path)
	assert.NotEmpty(t, run.artifact.SHA256)
	_, err := os.Stat(run.artifact.Path)
	require.NoError(t, err)

	assert.Equal(t, run.artifact.Path, run.published, "publish receives the packaged artifact")
}

func TestReleasePipelineHaltsOnMissingSecret(t *testing.T) {
	topo := loadReferenceTopology(t)
	bundle := secrets.New(map[string]string{
		"db-root-password": "root-pw",
		"db-user":          "wordpress",
		"db-name":          "wordpress",
	})
	outDir := t.TempDir()

	var run releaseRun
	report := pipeline.NewRunner(nil).Run(context.Background(), releaseStages(topo, bundle, outDir, &run))

	require.False(t, report.Passed())
	require.Len(t, report.Results, 3, "package and publish never start")

	failure := report.Failure()
	require.NotNil(t, failure)
	assert.Equal(t, "render", failure.Stage)
	assert.Contains(t, failure.Reason, "db-password", "the failure names the missing secret")
	assert.Empty(t, run.published)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no archive may exist after a failed run")

	_, err = render.New(nil, topo.Dir()).RenderAll(topo, bundle)
	assert.True(t, render.IsRenderError(err))
}
