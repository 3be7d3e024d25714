package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/slipway-k8s/slipway/internal/config"
	"github.com/slipway-k8s/slipway/internal/manifest"
)

// ValidateAll checks that every rendered manifest is well-formed: parseable
// YAML carrying the apiVersion/kind/metadata.name envelope. The check is
// purely syntactic; nothing is sent to a cluster.
func ValidateAll(set manifest.Set) error {
	var issues []string
	for i, m := range set.Manifests {
		if issue := checkDocument(m.Data); issue != "" {
			issues = append(issues, fmt.Sprintf("%s: %s", m.FileName(i), issue))
		}
	}
	if len(issues) > 0 {
		return &config.ValidationError{Issues: issues}
	}
	return nil
}

func checkDocument(data []byte) string {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return "empty document"
		}
		return fmt.Sprintf("not valid YAML: %v", err)
	}

	if v, _ := doc["apiVersion"].(string); v == "" {
		return "missing apiVersion"
	}
	if v, _ := doc["kind"].(string); v == "" {
		return "missing kind"
	}
	if documentName(doc) == "" {
		return "missing metadata.name"
	}
	return ""
}

// WriteFiles writes the set into dir using the contract file names, creating
// the directory if needed. Existing files are overwritten.
func WriteFiles(set manifest.Set, dir string) error {
	if set.Empty() {
		return fmt.Errorf("manifest set is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir %q: %w", dir, err)
	}
	for i, m := range set.Manifests {
		path := filepath.Join(dir, m.FileName(i))
		if err := os.WriteFile(path, m.Data, 0o644); err != nil {
			return fmt.Errorf("write manifest %q: %w", path, err)
		}
	}
	return nil
}
