package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/slipway-k8s/slipway/internal/render"
)

// newRenderCommand creates the "render" subcommand that renders the manifest set.
func newRenderCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the Kubernetes manifest set from the topology",
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

			set, err := render.New(logger, topo.Dir()).RenderAll(topo, bundle)
			if err != nil {
				return err
			}
			if err := render.ValidateAll(set); err != nil {
				return err
			}

			outputDir := cmd.Flag("output").Value.String()
			if outputDir == "" {
				for i, m := range set.Manifests {
					if i > 0 {
						if _, err := fmt.Fprintln(os.Stdout, "---"); err != nil {
							return err
						}
					}
					if _, err := os.Stdout.Write(m.Data); err != nil {
						return err
					}
				}
				return nil
			}

			if err := render.WriteFiles(set, outputDir); err != nil {
				return err
			}

			logger.Info("rendered manifest set", "dir", outputDir, "manifests", set.Len())
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Output directory for numbered manifest files (if empty, prints a multi-document stream to stdout)")

	return cmd
}
