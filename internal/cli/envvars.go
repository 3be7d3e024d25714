package cli

import (
	"fmt"

	envparse "github.com/caarlos0/env/v11"

	"github.com/slipway-k8s/slipway/internal/transfer"
)

// baseEnv defines root CLI defaults sourced from SLIPWAY_* env vars.
type baseEnv struct {
	// ConfigPath is the services.yaml path from SLIPWAY_CONFIG.
	ConfigPath string `env:"SLIPWAY_CONFIG"`
	// LogLevel is the logging level from SLIPWAY_LOG_LEVEL.
	LogLevel string `env:"SLIPWAY_LOG_LEVEL"`
	// SecretsFiles lists extra secrets env files from SLIPWAY_SECRETS_FILES.
	SecretsFiles []string `env:"SLIPWAY_SECRETS_FILES" envSeparator:","`
}

// sshEnv carries publish credentials sourced from SLIPWAY_SSH_* env vars.
// Values stay out of logs; see transfer.Credentials.
type sshEnv struct {
	// KeyFile is the private key path from SLIPWAY_SSH_KEY_FILE.
	KeyFile string `env:"SLIPWAY_SSH_KEY_FILE"`
	// KeyPassphrase unlocks the key, from SLIPWAY_SSH_KEY_PASSPHRASE.
	KeyPassphrase string `env:"SLIPWAY_SSH_KEY_PASSPHRASE"`
	// Password is the password fallback from SLIPWAY_SSH_PASSWORD.
	Password string `env:"SLIPWAY_SSH_PASSWORD"`
}

// parseBaseEnv fills root defaults from SLIPWAY_* env vars via caarlos0/env.
func parseBaseEnv() (baseEnv, error) {
	var base baseEnv
	if err := envparse.Parse(&base); err != nil {
		return baseEnv{}, fmt.Errorf("parse SLIPWAY_* environment: %w", err)
	}
	return base, nil
}

// publishCredentials builds transfer credentials from SLIPWAY_SSH_* env vars.
func publishCredentials() (transfer.Credentials, error) {
	var e sshEnv
	if err := envparse.Parse(&e); err != nil {
		return transfer.Credentials{}, fmt.Errorf("parse SLIPWAY_SSH_* environment: %w", err)
	}
	return transfer.Credentials{
		KeyFile:       e.KeyFile,
		KeyPassphrase: e.KeyPassphrase,
		Password:      e.Password,
	}, nil
}
