package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// routingDefinitions tags every event, lowercases its level and drops
// events carrying a debug field.
const routingDefinitions = `
main:
  processors:
    - set: {field: stage, value: main}
    - pipeline: {name: sub}
sub:
  processors:
    - lowercase: {field: level}
    - pipeline: {name: debug_filter, ignore_failure: true}
debug_filter:
  processors:
    - remove: {field: debug}
    - drop: {}
`

const routingInput = `{"@timestamp":"2024-06-01T12:00:00Z","message":"hello","level":"INFO"}
{"@timestamp":"2024-06-01T12:00:01Z","message":"noise","level":"DEBUG","debug":true}
{"@timestamp":"2024-06-01T12:00:02Z","message":"world","level":"WARN"}
`

// writeFile writes content to name under dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs cmd with args and stdin, returning stdout and stderr.
func execute(cmd *cobra.Command, stdin string, args ...string) (string, string, error) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetIn(bytes.NewBufferString(stdin))
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
