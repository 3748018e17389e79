package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	planPath := filepath.Join(dir, "smoke.yaml")
	require.NoError(t, os.WriteFile(planPath, []byte(`
root:
  id: smoke
  children:
    - id: math
      assert: "2 + 2 == 4"
`), 0o644))

	t.Run("version", func(t *testing.T) {
		out, err := execute(t, "version")
		require.NoError(t, err)
		assert.Contains(t, out, "arbor version dev")
	})

	t.Run("schema", func(t *testing.T) {
		out, err := execute(t, "schema")
		require.NoError(t, err)
		assert.Contains(t, out, `"root"`)
	})

	t.Run("validate", func(t *testing.T) {
		out, err := execute(t, "validate", "--dir", dir, "--log-level", "error", planPath)
		require.NoError(t, err)
		assert.Contains(t, out, "Plan smoke is valid!")
	})

	t.Run("run and list", func(t *testing.T) {
		out, err := execute(t, "run", "--dir", dir, "--log-level", "error", "--save", planPath)
		require.NoError(t, err)
		assert.Contains(t, out, "1 passed, 0 failed")

		out, err = execute(t, "reports", "ls", "--dir", dir, "--log-level", "error")
		require.NoError(t, err)
		assert.Contains(t, out, "smoke")
		assert.Contains(t, out, "passed")
	})

	t.Run("graph with the latest outcome", func(t *testing.T) {
		out, err := execute(t, "graph", "--dir", dir, "--log-level", "error", "--report", "latest", planPath)
		require.NoError(t, err)
		assert.Contains(t, out, "graph TD")
		assert.Contains(t, out, "smoke --> math")
		assert.Contains(t, out, "class math successful;")
	})

	t.Run("bad log level", func(t *testing.T) {
		_, err := execute(t, "validate", "--dir", dir, "--log-level", "loud", planPath)
		assert.ErrorContains(t, err, "unknown log level")
	})
}
