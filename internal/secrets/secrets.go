// Package secrets assembles the secret bundle handed to the health gate and
// the manifest renderer. Values come from env-style files and the process
// environment; they never appear in the topology file or in log output.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix marks process-environment variables that carry secret values,
// e.g. SLIPWAY_SECRET_DB_ROOT_PASSWORD supplies the secret db-root-password.
const EnvPrefix = "SLIPWAY_SECRET_"

// Bundle is an immutable name-to-value map of secret material assembled once
// per run. Names are lower-kebab; keys from files and the environment are
// folded so DB_PASSWORD and db-password address the same secret.
type Bundle struct {
	values map[string]string
}

// New builds a Bundle from the given values, copying the map and folding keys.
func New(values map[string]string) Bundle {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[normalizeName(k)] = v
	}
	return Bundle{values: out}
}

// Load assembles a Bundle from env-style files merged in order (later files
// override earlier keys) and from SLIPWAY_SECRET_* process variables, which
// override file values. Relative paths are resolved against baseDir.
func Load(baseDir string, files []string) (Bundle, error) {
	values := make(map[string]string)
	for _, name := range files {
		if name == "" {
			continue
		}
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, name)
		}
		fileValues, err := loadEnvFile(path)
		if err != nil {
			return Bundle{}, fmt.Errorf("load secrets file %q: %w", path, err)
		}
		for k, v := range fileValues {
			values[normalizeName(k)] = v
		}
	}
	for k, v := range fromProcessEnv() {
		values[k] = v
	}
	return Bundle{values: values}, nil
}

// Get returns the value for name and whether the bundle holds it.
func (b Bundle) Get(name string) (string, bool) {
	v, ok := b.values[normalizeName(name)]
	return v, ok
}

// Len reports how many secrets the bundle holds.
func (b Bundle) Len() int {
	return len(b.values)
}

// Names returns the sorted names of all secrets in the bundle.
func (b Bundle) Names() []string {
	out := make([]string, 0, len(b.values))
	for name := range b.values {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Missing returns the sorted subset of required names absent from the bundle.
func (b Bundle) Missing(required []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, name := range required {
		folded := normalizeName(name)
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}
		if _, ok := b.values[folded]; !ok {
			out = append(out, folded)
		}
	}
	sort.Strings(out)
	return out
}

// WriteFiles materializes every secret as a 0600 file named after the secret
// under dir. The caller owns the directory lifetime; teardown removes it.
func (b Bundle) WriteFiles(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create secrets dir %q: %w", dir, err)
	}
	for name, value := range b.values {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(value), 0o600); err != nil {
			return fmt.Errorf("write secret file %q: %w", name, err)
		}
	}
	return nil
}

// LogValue renders the bundle as its name list so values never reach logs.
func (b Bundle) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("count", b.Len()),
		slog.Any("names", b.Names()),
	)
}

// loadEnvFile loads a single .env-style file.
func loadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return godotenv.Parse(f)
}

// fromProcessEnv collects SLIPWAY_SECRET_* variables with folded names.
func fromProcessEnv() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[0], EnvPrefix) {
			continue
		}
		name := normalizeName(strings.TrimPrefix(parts[0], EnvPrefix))
		if name == "" {
			continue
		}
		out[name] = parts[1]
	}
	return out
}

// normalizeName folds an env-style key to the lower-kebab secret name.
func normalizeName(key string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(key), "_", "-"))
}
