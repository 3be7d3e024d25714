package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/slipway-k8s/slipway/internal/archive"
	"github.com/slipway-k8s/slipway/internal/ciout"
	"github.com/slipway-k8s/slipway/internal/config"
	"github.com/slipway-k8s/slipway/internal/manifest"
	"github.com/slipway-k8s/slipway/internal/pipeline"
	"github.com/slipway-k8s/slipway/internal/render"
	"github.com/slipway-k8s/slipway/internal/secrets"
	"github.com/slipway-k8s/slipway/internal/transfer"
)

// newRunCommand creates the "run" subcommand that executes the full gated
// release pipeline.
func newRunCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the gated release pipeline: validate, health gate, render, package, publish",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			outDir := cmd.Flag("output").Value.String()
			skipPublish, err := cmd.Flags().GetBool("skip-publish")
			if err != nil {
				return err
			}

			// Stage outputs flow forward through these; each stage only
			// reads what an earlier stage produced.
			var (
				topo     *config.Topology
				bundle   secrets.Bundle
				set      manifest.Set
				artifact archive.Artifact
			)

			stages := []pipeline.Stage{
				{Name: "validate", Run: func(context.Context) error {
					t, err := loadTopology(opts)
					if err != nil {
						return err
					}
					topo = t
					return nil
				}},
				{Name: "health gate", Run: func(ctx context.Context) error {
					b, err := loadSecrets(topo, opts.SecretsFiles)
					if err != nil {
						return err
					}
					bundle = b
					gateOpts, err := gateOptions(topo, cmd)
					if err != nil {
						return err
					}
					_, err = runSmoke(ctx, logger, topo, bundle, gateOpts)
					if err != nil {
						logUnhealthy(logger, err)
					}
					return err
				}},
				{Name: "render", Run: func(context.Context) error {
					s, err := render.New(logger, topo.Dir()).RenderAll(topo, bundle)
					if err != nil {
						return err
					}
					if err := render.ValidateAll(s); err != nil {
						return err
					}
					set = s
					return nil
				}},
				{Name: "package", Run: func(context.Context) error {
					a, err := archive.Pack(set, topo.RootDirName(), topo.ArchiveFileName(), outDir)
					if err != nil {
						return err
					}
					artifact = a
					return nil
				}},
				{Name: "publish", Skip: skipPublish, SkipReason: "skip-publish requested", Run: func(ctx context.Context) error {
					if topo.Publish == nil {
						return fmt.Errorf("topology has no publish block; use --skip-publish to stop after packaging")
					}
					creds, err := publishCredentials()
					if err != nil {
						return err
					}
					_, err = transfer.New(logger).Publish(ctx, artifact, transfer.EndpointFromConfig(topo.Publish), creds)
					return err
				}},
			}

			report := pipeline.NewRunner(logger).Run(cmd.Context(), stages)

			outputs := ciout.ReportValues(report)
			if artifact.Path != "" {
				outputs["archive_path"] = artifact.Path
				outputs["archive_sha256"] = artifact.SHA256
			}
			if err := ciout.Write(outputs); err != nil {
				logger.Warn("writing CI outputs failed", "error", err)
			}

			if failure := report.Failure(); failure != nil {
				return fmt.Errorf("pipeline failed at %s: %s", failure.Stage, failure.Reason)
			}

			logger.Info("pipeline passed",
				"stages", len(report.Results),
				"archive", artifact.Path,
				"sha256", artifact.SHA256,
			)
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "dist", "Output directory for the archive")
	cmd.Flags().Bool("skip-publish", false, "Stop after packaging and report the publish stage as skipped")
	addGateFlags(cmd)

	return cmd
}
