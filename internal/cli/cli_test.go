package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const soloManifest = `
host "solo" {
  address = "127.0.0.1"
  port    = 7000
}

group "g" {
  span "a" {
    method = "Print"
  }
  span "b" {
    method   = "Print"
    requires = ["a"]
  }
}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, logs bytes.Buffer
	err := Execute(context.Background(), args, &out, &logs)
	t.Logf("logs:\n%s", logs.String())
	return out.String(), err
}

func requireExitCode(t *testing.T, err error, code int) *ExitError {
	t.Helper()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "want *ExitError, got %v", err)
	assert.Equal(t, code, exitErr.Code)
	return exitErr
}

func TestExecute_Help(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "serve")
	assert.Contains(t, out, "plan")
}

func TestExecute_UsageErrors(t *testing.T) {
	manifest := writeFile(t, "main.hcl", soloManifest)

	cases := []struct {
		name string
		args []string
		msg  string
	}{
		{"unknown flag", []string{"run", "--this-is-not-a-valid-flag"}, "unknown flag: --this-is-not-a-valid-flag"},
		{"bad log format", []string{"plan", "g", "-m", manifest, "--log-format", "xml"}, "invalid log-format"},
		{"bad log level", []string{"plan", "g", "-m", manifest, "--log-level", "loud"}, "invalid log-level"},
		{"missing manifest", []string{"plan", "g"}, "ManifestPath is a required"},
		{"run without host", []string{"run", "g", "-m", manifest}, "run requires --host"},
		{"serve without host", []string{"serve", "-m", manifest}, "serve requires --host"},
		{"bad propagate", []string{"run", "g", "-m", manifest, "--host", "solo", "--propagate", "sideways"}, "invalid propagate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execute(t, tc.args...)
			exitErr := requireExitCode(t, err, 2)
			assert.Contains(t, exitErr.Message, tc.msg)
		})
	}
}

func TestExecute_Plan(t *testing.T) {
	manifest := writeFile(t, "main.hcl", soloManifest)

	out, err := execute(t, "plan", "g", "-m", manifest, "--log-level", "debug")
	require.NoError(t, err)

	var plan struct {
		Group string `json:"group"`
		Spans []struct {
			Name string `json:"name"`
			Host string `json:"host"`
		} `json:"spans"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	require.Len(t, plan.Spans, 2)
	assert.Equal(t, "a", plan.Spans[0].Name)
	assert.Equal(t, "solo", plan.Spans[1].Host)
}

func TestExecute_RunPrintsOutput(t *testing.T) {
	// --- Arrange ---
	manifest := writeFile(t, "main.hcl", soloManifest)
	input := writeFile(t, "in.json", `{"diagram":[],"stats":{},"ticket":"T-1"}`)

	// --- Act ---
	out, err := execute(t, "run", "g", "-m", manifest, "--host", "solo", "--input", input, "--log-format", "text")

	// --- Assert ---
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []any{"solo->solo: a", "solo->solo: b"}, got["diagram"])
	assert.Equal(t, "T-1", got["ticket"])
	assert.NotEmpty(t, got["run_id"])
}

func TestExecute_RunUnknownGroup(t *testing.T) {
	manifest := writeFile(t, "main.hcl", soloManifest)
	_, err := execute(t, "run", "nope", "-m", manifest, "--host", "solo")
	assert.ErrorContains(t, err, "group 'nope' is not defined")
}

func TestExecute_RunRejectsNullInput(t *testing.T) {
	manifest := writeFile(t, "main.hcl", soloManifest)
	input := writeFile(t, "in.json", `null`)

	_, err := execute(t, "run", "g", "-m", manifest, "--host", "solo", "--input", input)
	assert.ErrorContains(t, err, "output must be a JSON object")
}
