package cli

import (
	"github.com/spf13/cobra"

	"github.com/slipway-k8s/slipway/internal/archive"
	"github.com/slipway-k8s/slipway/internal/render"
)

// newPackageCommand creates the "package" subcommand that renders the
// manifest set and packs it into the release archive.
func newPackageCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "package",
		Short: "Render the manifest set and pack it into a single tar.gz artifact",
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

			outDir := cmd.Flag("output").Value.String()
			artifact, err := archive.Pack(set, topo.RootDirName(), topo.ArchiveFileName(), outDir)
			if err != nil {
				return err
			}

			logger.Info("packaged release artifact",
				"path", artifact.Path,
				"sha256", artifact.SHA256,
				"size", artifact.Size,
				"manifests", set.Len(),
			)
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "dist", "Output directory for the archive")

	return cmd
}
