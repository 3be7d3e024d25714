// Package cli defines the command-line interface for slipway.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/slipway-k8s/slipway/internal/logging"
)

const (
	// defaultConfigPath is the default path to the topology file.
	defaultConfigPath = "services.yaml"
)

// Options stores global CLI options shared between commands.
type Options struct {
	ConfigPath   string
	SecretsFiles []string
	LogLevel     logging.Level
}

// Execute builds the root command, runs it with the provided args and logger, and returns any error.
func Execute(args []string, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewLogger(os.Stderr, logging.LevelInfo)
	}

	base, err := parseBaseEnv()
	if err != nil {
		return err
	}

	rootOpts := &Options{
		ConfigPath: defaultConfigPath,
		LogLevel:   logging.LevelInfo,
	}

	rootCmd := newRootCommand(rootOpts, base, logger)
	rootCmd.SetArgs(args)

	return rootCmd.Execute()
}

// newRootCommand constructs the root cobra.Command with global flags and subcommands.
func newRootCommand(opts *Options, base baseEnv, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slipway",
		Short: "slipway is a gated release pipeline for compose-smoked Kubernetes manifests",
		Long: "slipway validates a services.yaml topology, smoke-tests it on docker compose behind a health gate, " +
			"renders the Kubernetes manifest set, and packages it into a single archive published over SFTP. " +
			"Stages run strictly in order and the first failure stops the run.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := logging.ParseLevel(cmd.Flag("log-level").Value.String())
			opts.LogLevel = level
			logger = logging.NewLogger(os.Stderr, level)
			cmd.SetContext(context.WithValue(cmd.Context(), loggerKey{}, logger))
			logger.Debug("logger initialized", "level", level)
			return nil
		},
	}

	configDefault := defaultConfigPath
	if base.ConfigPath != "" {
		configDefault = base.ConfigPath
	}
	levelDefault := "info"
	if base.LogLevel != "" {
		levelDefault = base.LogLevel
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", configDefault, "Path to the services.yaml topology file")
	cmd.PersistentFlags().StringArrayVar(&opts.SecretsFiles, "secrets-file", base.SecretsFiles, "Additional secrets env file merged over the topology's secretFiles (repeatable)")
	cmd.PersistentFlags().String("log-level", levelDefault, "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newValidateCommand(opts),
		newSmokeCommand(opts),
		newRenderCommand(opts),
		newPackageCommand(opts),
		newPublishCommand(opts),
		newRunCommand(opts),
		newDoctorCommand(opts),
	)

	return cmd
}

// loggerKey is a private context key used to store a logger in command contexts.
type loggerKey struct{}

// LoggerFromContext extracts a logger from the context or falls back to a default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return logging.NewLogger(os.Stderr, logging.LevelInfo)
	}
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return logging.NewLogger(os.Stderr, logging.LevelInfo)
}
