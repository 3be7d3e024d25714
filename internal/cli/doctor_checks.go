package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/slipway-k8s/slipway/internal/config"
	"github.com/slipway-k8s/slipway/internal/secrets"
	"github.com/slipway-k8s/slipway/internal/transfer"
)

// runDoctorChecks verifies the machine can carry a release run end to end:
// docker with the compose plugin, every referenced template on disk, full
// secret coverage, and a publishable endpoint when the topology wants one.
func runDoctorChecks(ctx context.Context, logger *slog.Logger, topo *config.Topology, bundle secrets.Bundle) error {
	if logger == nil {
		logger = slog.Default()
	}

	var fatalErrs []error

	if _, err := exec.LookPath("docker"); err != nil {
		logger.Error("doctor check failed: missing required tool", "tool", "docker", "error", err)
		fatalErrs = append(fatalErrs, err)
	} else {
		logger.Info("doctor check ok", "tool", "docker")

		if err := runComposeVersion(ctx); err != nil {
			logger.Error("docker compose plugin check failed", "error", err)
			fatalErrs = append(fatalErrs, err)
		} else {
			logger.Info("docker compose plugin check ok")
		}
	}

	if missing := missingTemplates(topo); len(missing) > 0 {
		err := fmt.Errorf("template files missing: %s", strings.Join(missing, ", "))
		logger.Error("template check failed", "error", err)
		fatalErrs = append(fatalErrs, err)
	} else {
		logger.Info("template check ok", "templates", len(topo.Manifests))
	}

	if missing := bundle.Missing(topo.RequiredSecrets()); len(missing) > 0 {
		err := fmt.Errorf("secret values missing for: %s", strings.Join(missing, ", "))
		logger.Error("secret coverage check failed", "error", err)
		fatalErrs = append(fatalErrs, err)
	} else {
		logger.Info("secret coverage ok", "secrets", bundle)
	}

	if topo.Publish == nil {
		logger.Info("publish not configured; skipping publish checks")
	} else if err := checkPublish(topo); err != nil {
		logger.Error("publish check failed", "error", err)
		fatalErrs = append(fatalErrs, err)
	} else {
		logger.Info("publish check ok", "host", topo.Publish.Host)
	}

	if len(fatalErrs) > 0 {
		return fmt.Errorf("doctor found %d fatal issue(s); see log for details", len(fatalErrs))
	}
	return nil
}

func runComposeVersion(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "docker", "compose", "version")
	return cmd.Run()
}

// missingTemplates stats every template the render plan references, deduped,
// resolving relative paths the same way the renderer does.
func missingTemplates(topo *config.Topology) []string {
	seen := make(map[string]bool)
	var missing []string
	for _, ref := range topo.Manifests {
		if seen[ref.Template] {
			continue
		}
		seen[ref.Template] = true

		path := ref.Template
		if !filepath.IsAbs(path) {
			path = filepath.Join(topo.Dir(), path)
		}
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, ref.Template)
		}
	}
	return missing
}

// checkPublish verifies credentials and host-key policy without dialing.
func checkPublish(topo *config.Topology) error {
	creds, err := publishCredentials()
	if err != nil {
		return err
	}
	return transfer.Preflight(transfer.EndpointFromConfig(topo.Publish), creds)
}
