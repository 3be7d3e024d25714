package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slipway-k8s/slipway/internal/archive"
	"github.com/slipway-k8s/slipway/internal/transfer"
)

// newPublishCommand creates the "publish" subcommand that uploads an
// already-packaged artifact to the topology's publish destination.
func newPublishCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a packaged artifact over SFTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			topo, err := loadTopology(opts)
			if err != nil {
				return err
			}
			if topo.Publish == nil {
				return fmt.Errorf("topology %q has no publish block", opts.ConfigPath)
			}

			artifact, err := archive.FromFile(cmd.Flag("archive").Value.String())
			if err != nil {
				return err
			}

			creds, err := publishCredentials()
			if err != nil {
				return err
			}

			receipt, err := transfer.New(logger).Publish(cmd.Context(), artifact, transfer.EndpointFromConfig(topo.Publish), creds)
			if err != nil {
				return err
			}

			logger.Info("artifact published",
				"remote", receipt.RemotePath,
				"sha256", receipt.SHA256,
				"bytes", receipt.Bytes,
			)
			return nil
		},
	}

	cmd.Flags().String("archive", "", "Path to the packaged tar.gz artifact")
	_ = cmd.MarkFlagRequired("archive")

	return cmd
}
