// Package compose adapts a local docker compose runtime for smoke runs. Each
// run gets an isolated project name and a scratch directory holding the
// generated compose file and the secret files; teardown removes both.
package compose

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/slipway-k8s/slipway/internal/config"
	"github.com/slipway-k8s/slipway/internal/healthgate"
	"github.com/slipway-k8s/slipway/internal/logging"
	"github.com/slipway-k8s/slipway/internal/secrets"
)

// Runner drives one ephemeral compose project through start, status polling
// and teardown. It implements healthgate.Runtime.
type Runner struct {
	logger  *slog.Logger
	topo    *config.Topology
	bundle  secrets.Bundle
	project string

	dir      string
	filePath string

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewRunner prepares a runner for one smoke run. The runID isolates
// concurrent runs: the compose project becomes "<project>-<runID>".
func NewRunner(logger *slog.Logger, topo *config.Topology, bundle secrets.Bundle, runID string) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		logger:  logger,
		topo:    topo,
		bundle:  bundle,
		project: topo.Project + "-" + runID,
	}
}

// Project returns the compose project name for this run.
func (r *Runner) Project() string {
	return r.project
}

// Start materializes the scratch directory (compose file plus 0600 secret
// files) and brings the services up detached. The smoke run starts a single
// container per service; replica counts only shape manifests.
func (r *Runner) Start(ctx context.Context) error {
	if missing := r.bundle.Missing(r.topo.RequiredSecrets()); len(missing) > 0 {
		return fmt.Errorf("secret values missing for: %s", strings.Join(missing, ", "))
	}

	dir, err := os.MkdirTemp("", "slipway-"+r.project+"-")
	if err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	r.dir = dir

	if err := r.bundle.WriteFiles(filepath.Join(dir, "secrets")); err != nil {
		return err
	}

	spec, err := Generate(r.topo, filepath.Join(dir, "secrets"))
	if err != nil {
		return err
	}
	r.filePath = filepath.Join(dir, "compose.yaml")
	if err := os.WriteFile(r.filePath, spec, 0o600); err != nil {
		return fmt.Errorf("write compose file: %w", err)
	}

	r.logger.Info("starting services", "project", r.project, "services", r.topo.ServiceNames())

	r.mu.Lock()
	r.started = true
	r.mu.Unlock()

	return r.runCompose(ctx, "up", "--detach")
}

// Status reports the container state for one service.
func (r *Runner) Status(ctx context.Context, service string) (healthgate.ServiceState, error) {
	out, err := r.runComposeCapture(ctx, "ps", "--all", "--format", "json", service)
	if err != nil {
		return healthgate.ServiceState{}, err
	}

	entries, err := parsePS(out)
	if err != nil {
		return healthgate.ServiceState{}, fmt.Errorf("parse compose ps output for %q: %w", service, err)
	}
	if len(entries) == 0 {
		return healthgate.ServiceState{Service: service, Detail: "no container"}, nil
	}
	return entries[0].state(service), nil
}

// LogTail captures the last lines of a service's log output.
func (r *Runner) LogTail(ctx context.Context, service string, lines int) (string, error) {
	out, err := r.runComposeCapture(ctx, "logs", "--no-color", "--tail", strconv.Itoa(lines), service)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// Stop tears the project down: containers, networks, volumes and the scratch
// directory with the secret files. Calling Stop again is a no-op.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	var firstErr error
	if started {
		if err := r.runCompose(ctx, "down", "--volumes", "--remove-orphans"); err != nil {
			firstErr = err
		}
	}
	if r.dir != "" {
		if err := os.RemoveAll(r.dir); err != nil {
			r.logger.Error("remove run dir failed", "dir", r.dir, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("remove run dir %q: %w", r.dir, err)
			}
		}
	}
	return firstErr
}

func (r *Runner) runCompose(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "docker", r.composeArgs(args...)...)
	writer := logging.NewWriter(r.logger.With("project", r.project), "compose output")
	cmd.Stdout = writer
	cmd.Stderr = writer
	defer writer.Flush()

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker compose %v failed: %w", args, err)
	}
	return nil
}

func (r *Runner) runComposeCapture(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "docker", r.composeArgs(args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("docker compose %v failed: %w (stderr: %s)", args, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (r *Runner) composeArgs(args ...string) []string {
	out := []string{"compose", "--project-name", r.project, "--file", r.filePath}
	return append(out, args...)
}
