// Package ciout surfaces run results to CI by appending key=value pairs to
// the file named by GITHUB_OUTPUT. Outside CI (no GITHUB_OUTPUT) every call
// is a no-op.
package ciout

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/slipway-k8s/slipway/internal/pipeline"
)

// Write appends the given outputs to the GITHUB_OUTPUT file when available.
func Write(values map[string]string) error {
	path := strings.TrimSpace(os.Getenv("GITHUB_OUTPUT"))
	if path == "" {
		return nil
	}
	if len(values) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	keys := make([]string, 0, len(values))
	for k := range values {
		if strings.TrimSpace(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := sanitize(values[key])
		if _, err := fmt.Fprintf(f, "%s=%s\n", key, value); err != nil {
			return err
		}
	}
	return nil
}

// ReportValues flattens a pipeline report into CI outputs: one
// stage_<name>=<status> pair per stage plus an overall pipeline verdict
// and, on failure, the failing stage's reason.
func ReportValues(report pipeline.Report) map[string]string {
	verdict := pipeline.StatusPass
	if !report.Passed() {
		verdict = pipeline.StatusFail
	}
	values := map[string]string{
		"pipeline": string(verdict),
	}
	for _, res := range report.Results {
		values["stage_"+keyify(res.Stage)] = string(res.Status)
	}
	if failure := report.Failure(); failure != nil {
		values["failure_stage"] = keyify(failure.Stage)
		values["failure_reason"] = failure.Reason
	}
	return values
}

// keyify folds a stage name into an output key fragment.
func keyify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func sanitize(value string) string {
	if value == "" {
		return ""
	}
	value = strings.ReplaceAll(value, "\r", "%0D")
	value = strings.ReplaceAll(value, "\n", "%0A")
	return value
}
