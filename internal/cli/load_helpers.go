package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/slipway-k8s/slipway/internal/config"
	"github.com/slipway-k8s/slipway/internal/healthgate"
	"github.com/slipway-k8s/slipway/internal/secrets"
)

// loadTopology reads the topology named by --config and runs the structural
// validator over it.
func loadTopology(opts *Options) (*config.Topology, error) {
	topo, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	return topo, nil
}

// loadSecrets assembles the bundle from the topology's secretFiles plus any
// --secrets-file paths. Topology files resolve against the topology's
// directory; flag paths against the working directory.
func loadSecrets(topo *config.Topology, extra []string) (secrets.Bundle, error) {
	files := make([]string, 0, len(topo.SecretFiles)+len(extra))
	files = append(files, topo.SecretFiles...)
	for _, f := range extra {
		abs, err := filepath.Abs(f)
		if err != nil {
			return secrets.Bundle{}, fmt.Errorf("resolve secrets file %q: %w", f, err)
		}
		files = append(files, abs)
	}
	return secrets.Load(topo.Dir(), files)
}

// gateOptions merges the topology's healthGate block with the command's
// --poll-interval and --max-attempts overrides.
func gateOptions(topo *config.Topology, cmd *cobra.Command) (healthgate.Options, error) {
	opts := healthgate.DefaultOptions()
	opts.PollInterval = topo.HealthGate.Interval()
	opts.MaxAttempts = topo.HealthGate.Attempts()

	if cmd.Flags().Changed("poll-interval") {
		d, err := cmd.Flags().GetDuration("poll-interval")
		if err != nil {
			return opts, err
		}
		opts.PollInterval = d
	}
	if cmd.Flags().Changed("max-attempts") {
		n, err := cmd.Flags().GetInt("max-attempts")
		if err != nil {
			return opts, err
		}
		opts.MaxAttempts = n
	}
	return opts, nil
}

// addGateFlags registers the health-gate override flags shared by smoke and run.
func addGateFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("poll-interval", config.DefaultPollInterval, "Delay between health poll rounds")
	cmd.Flags().Int("max-attempts", config.DefaultMaxAttempts, "Poll rounds before the gate times out (0 times out immediately)")
}
