package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeRun(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: format})
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRun_PrintsWriteLog(t *testing.T) {
	out, err := executeRun(t, "text", "testdata/schema", "testdata/scenarios/user_profile.yaml")
	require.NoError(t, err)

	assert.Contains(t, out, "Scenario user_profile")
	assert.Contains(t, out, "step 1: 2 write(s)")
	assert.Contains(t, out, "[1] default.insert users values=map[email:a@x.com]")
	assert.Contains(t, out, "[2] default.insert profiles")
	assert.Contains(t, out, "[3] default.update users values=map[email:b@x.com] where=map[id:1]")
	assert.Contains(t, out, "Write log hash: ")
	assert.Contains(t, out, "✓ Scenario passed")
}

func TestRun_JSON(t *testing.T) {
	out, err := executeRun(t, "json", "testdata/schema", "testdata/scenarios/user_profile.yaml")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Data.Pass)
	assert.Equal(t, "user_profile", resp.Data.Scenario)
	assert.Len(t, resp.Data.Writes, 3)
	assert.Len(t, resp.Data.LogHash, 64)

	again, err := executeRun(t, "json", "testdata/schema", "testdata/scenarios/user_profile.yaml")
	require.NoError(t, err)
	assert.Equal(t, out, again, "runs are deterministic")
}

func TestRun_CommandErrors(t *testing.T) {
	_, err := executeRun(t, "text", "testdata/nope", "testdata/scenarios/user_profile.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "schema directory not found")

	_, err = executeRun(t, "text", "testdata/schema", "testdata/scenarios/missing.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load scenario")

	_, err = executeRun(t, "text", "testdata/schema")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 2 arg")
}
