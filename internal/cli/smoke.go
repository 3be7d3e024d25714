package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rs/xid"
	"github.com/spf13/cobra"

	"github.com/slipway-k8s/slipway/internal/compose"
	"github.com/slipway-k8s/slipway/internal/config"
	"github.com/slipway-k8s/slipway/internal/healthgate"
	"github.com/slipway-k8s/slipway/internal/secrets"
)

// newSmokeCommand creates the "smoke" subcommand that boots the topology on
// docker compose and gates on every service reporting healthy.
func newSmokeCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Boot the topology on docker compose and wait for every service to report healthy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			topo, err := loadTopology(opts)
			if err != nil {
				return err
			}
			bundle, err := loadSecrets(topo, opts.SecretsFiles)
			if err != nil {
				return err
			}
			gateOpts, err := gateOptions(topo, cmd)
			if err != nil {
				return err
			}

			verdict, err := runSmoke(cmd.Context(), logger, topo, bundle, gateOpts)
			if err != nil {
				logUnhealthy(logger, err)
				return err
			}

			logger.Info("all services healthy",
				"attempts", verdict.Attempts,
				"services", len(verdict.Services),
			)
			return nil
		},
	}

	addGateFlags(cmd)

	return cmd
}

// runSmoke wires a fresh compose runtime into the health gate. Each run gets
// its own compose project name so concurrent runs cannot collide.
func runSmoke(ctx context.Context, logger *slog.Logger, topo *config.Topology, bundle secrets.Bundle, gateOpts healthgate.Options) (healthgate.Verdict, error) {
	services, err := topo.TopologicalServices()
	if err != nil {
		return healthgate.Verdict{}, err
	}

	runtime := compose.NewRunner(logger, topo, bundle, xid.New().String())
	logger.Info("starting smoke run",
		"project", runtime.Project(),
		"services", services,
		"pollInterval", gateOpts.PollInterval,
		"maxAttempts", gateOpts.MaxAttempts,
	)

	return healthgate.AwaitHealthy(ctx, logger, runtime, services, gateOpts)
}

// logUnhealthy surfaces per-service diagnostics when the gate timed out.
func logUnhealthy(logger *slog.Logger, err error) {
	var timeout *healthgate.TimeoutError
	if !errors.As(err, &timeout) {
		return
	}
	for _, sv := range timeout.Services {
		if sv.Healthy {
			continue
		}
		logger.Error("service never became healthy",
			"service", sv.Service,
			"state", sv.Detail,
			"logTail", sv.LogTail,
		)
	}
}
