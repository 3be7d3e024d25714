package cli

import (
	"github.com/spf13/cobra"
)

// newValidateCommand creates the "validate" subcommand that structurally checks the topology.
func newValidateCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Structurally validate the services.yaml topology",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			topo, err := loadTopology(opts)
			if err != nil {
				return err
			}

			logger.Info("topology is valid",
				"project", topo.Project,
				"services", len(topo.Services),
				"manifests", len(topo.Manifests)+1,
				"requiredSecrets", len(topo.RequiredSecrets()),
			)
			return nil
		},
	}

	return cmd
}
