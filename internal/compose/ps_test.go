package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePSHandlesJSONLines(t *testing.T) {
	out := []byte(`{"Name":"blog-run1-db-1","Service":"db","State":"running","Health":"healthy","ExitCode":0}
{"Name":"blog-run1-app-1","Service":"app","State":"restarting","Health":"","ExitCode":0}
`)

	entries, err := parsePS(out)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "db", entries[0].Service)
	assert.Equal(t, "running", entries[0].State)
}

func TestParsePSHandlesJSONArray(t *testing.T) {
	out := []byte(`[{"Name":"blog-run1-db-1","Service":"db","State":"exited","Health":"","ExitCode":137}]`)

	entries, err := parsePS(out)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 137, entries[0].ExitCode)
}

func TestParsePSEmptyOutput(t *testing.T) {
	entries, err := parsePS([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPSEntryState(t *testing.T) {
	cases := []struct {
		name    string
		entry   psEntry
		running bool
		detail  string
	}{
		{
			name:    "running without healthcheck",
			entry:   psEntry{Service: "db", State: "running"},
			running: true,
			detail:  "running",
		},
		{
			name:    "running and healthy",
			entry:   psEntry{Service: "db", State: "running", Health: "healthy"},
			running: true,
			detail:  "running (healthy)",
		},
		{
			name:    "running but unhealthy",
			entry:   psEntry{Service: "db", State: "running", Health: "unhealthy"},
			running: false,
			detail:  "running (unhealthy)",
		},
		{
			name:    "exited",
			entry:   psEntry{Service: "app", State: "exited", ExitCode: 1},
			running: false,
			detail:  "exited (code 1)",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state := tc.entry.state(tc.entry.Service)
			assert.Equal(t, tc.running, state.Running)
			assert.Equal(t, tc.detail, state.Detail)
		})
	}
}
