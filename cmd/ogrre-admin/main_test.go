package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runAdmin(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("PROJECT_ID", "")
	t.Setenv("STORAGE_BUCKET_NAME", "")
	var out bytes.Buffer
	cmd := rootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestImportProcessors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
processors:
  - id: proc1
    model_id: v3
    name: Completion report
    attributes:
      - name: spud_date
        cleaning_function: clean_date
`), 0o600))

	out, err := runAdmin(t, "import-processors", path)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 1 processors")

	_, err = runAdmin(t, "import-processors", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestReleaseLocks(t *testing.T) {
	out, err := runAdmin(t, "release-locks")
	require.NoError(t, err)
	assert.Contains(t, out, "released 0 expired locks")

	out, err = runAdmin(t, "release-locks", "--user", "alice@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "locks released")
}

func TestCleanRequiresKnownUser(t *testing.T) {
	_, err := runAdmin(t, "clean", "rg1", "--user", "nobody@example.com")
	assert.ErrorContains(t, err, "permission denied")

	_, err = runAdmin(t, "clean", "rg1")
	assert.Error(t, err)
}

func TestHistoryEmpty(t *testing.T) {
	out, err := runAdmin(t, "history", "r1")
	require.NoError(t, err)
	assert.Contains(t, out, "null")
}
