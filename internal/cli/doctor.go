package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// newDoctorCommand creates the "doctor" subcommand that runs release preflight checks.
func newDoctorCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run release preflight checks",
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

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			if err := runDoctorChecks(ctx, logger, topo, bundle); err != nil {
				return err
			}

			logger.Info("doctor checks completed successfully", "project", topo.Project)
			return nil
		},
	}

	return cmd
}
