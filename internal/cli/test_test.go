package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `
name: lowercase
description: levels are lowercased
definitions:
  main:
    processors:
      - lowercase: {field: level}
batches:
  - events:
      - {"@timestamp": "2024-06-01T12:00:00Z", level: INFO}
    expect:
      outcomes: [transformed]
assertions:
  - type: field_equals
    field: level
    value: info
`

const failingScenario = `
name: wrong
description: expects a drop that never happens
definitions:
  main:
    processors: []
batches:
  - events: [{n: 1}]
    expect:
      outcomes: [dropped]
`

func TestTestCommandMissingArgs(t *testing.T) {
	_, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), "", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), "", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandPassAndFail(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lowercase.yaml", passingScenario)
	writeFile(t, dir, "wrong.yaml", failingScenario)

	out, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), "", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ lowercase (1 batch(es), 1 matched)")
	assert.Contains(t, out, "✗ wrong")
	assert.Contains(t, out, "batch 0: event 0: expected dropped, got transformed")
	assert.Contains(t, out, "Test Summary: 1 passed, 1 failed, 2 total")

	// --filter selects by file name.
	out, _, err = execute(NewTestCommand(&RootOptions{Format: "text"}), "", dir, "--filter", "lower*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandGoldenFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lowercase.yaml", passingScenario)
	goldenPath := filepath.Join(dir, "golden", "lowercase.golden")

	out, _, err := execute(NewTestCommand(&RootOptions{Format: "text"}), "", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ lowercase (golden updated)")

	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Equal(t,
		`{"batches":[{"matched":1,"outcomes":[{"event":{"@timestamp":"2024-06-01T12:00:00Z","level":"info"},"index":0,"outcome":"transformed"}],"seq":1}],"scenario_name":"lowercase"}`,
		string(golden))

	_, _, err = execute(NewTestCommand(&RootOptions{Format: "text"}), "", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"stale":true}`), 0644))
	out, _, err = execute(NewTestCommand(&RootOptions{Format: "text"}), "", dir)
	require.Error(t, err)
	assert.Contains(t, out, "Golden file mismatch")
}

func TestTestCommandJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lowercase.yaml", passingScenario)

	out, _, err := execute(NewTestCommand(&RootOptions{Format: "json"}), "", dir)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Passed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "lowercase", resp.Data.Scenarios[0].Name)
}

func TestTestCommandJSONFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wrong.yaml", failingScenario)

	out, _, err := execute(NewTestCommand(&RootOptions{Format: "json"}), "", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeScenarioFailed, resp.Error.Code)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.False(t, resp.Data.Scenarios[0].Pass)
	assert.Equal(t, "missing", resp.Data.Scenarios[0].Golden)
	assert.Equal(t, 1, resp.Data.Scenarios[0].Batches)
}
