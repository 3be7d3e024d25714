package compose

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/slipway-k8s/slipway/internal/healthgate"
)

// psEntry is one container row from `docker compose ps --format json`.
type psEntry struct {
	Name     string `json:"Name"`
	Service  string `json:"Service"`
	State    string `json:"State"`
	Health   string `json:"Health"`
	ExitCode int    `json:"ExitCode"`
}

// parsePS handles both output shapes compose has shipped: one JSON object
// per line, and a single JSON array.
func parsePS(out []byte) ([]psEntry, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var entries []psEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	}

	var entries []psEntry
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry psEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// state folds a ps row into the gate's view of one service.
func (e psEntry) state(service string) healthgate.ServiceState {
	running := e.State == "running" && (e.Health == "" || e.Health == "healthy")

	detail := e.State
	switch {
	case e.Health != "":
		detail = fmt.Sprintf("%s (%s)", e.State, e.Health)
	case e.State == "exited":
		detail = fmt.Sprintf("exited (code %d)", e.ExitCode)
	}

	name := e.Service
	if name == "" {
		name = service
	}
	return healthgate.ServiceState{Service: name, Running: running, Detail: detail}
}
