package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/persist/internal/ir"
)

func executeCompile(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewCompileCommand(&RootOptions{Format: format})
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCompile_Text(t *testing.T) {
	out, err := executeCompile(t, "text", "testdata/schema")
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Compiled 2 role(s)")
	assert.Contains(t, out, "user: default.users, 2 field(s), 1 relation(s), auto keys")
	assert.Contains(t, out, "profile: hasOne → profile (id → user_id)")
	assert.Contains(t, out, "Schema hash: ")
}

func TestCompile_JSONIncludesDefaultsAndHash(t *testing.T) {
	out, err := executeCompile(t, "json", "testdata/schema")
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, ir.IRVersion, resp.Data.IRVersion)

	user := resp.Data.Schema.Roles["user"]
	require.NotNil(t, user)
	rel, ok := user.Relation("profile")
	require.True(t, ok)
	assert.Equal(t, "user_id", rel.OuterKey)
	assert.True(t, rel.Cascade)

	assert.Equal(t, ir.MustSchemaHash(resp.Data.Schema), resp.Data.Hash)
}

func TestCompile_OutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	out, err := executeCompile(t, "text", "testdata/schema", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote canonical IR to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	loaded, err := LoadSchema("testdata/schema")
	require.NoError(t, err)
	want, err := ir.CanonicalSchema(loaded.Schema)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(data))
}

func TestCompile_Errors(t *testing.T) {
	_, err := executeCompile(t, "text", "testdata/invalid")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "(and 2 more)")

	out, err := executeCompile(t, "json", "testdata/nope")
	require.Error(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)

	_, err = executeCompile(t, "text", "testdata/schema", "-o", filepath.Join(t.TempDir(), "missing", "x.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeWriteFailed)
}

func TestFindCUEFiles(t *testing.T) {
	files, err := FindCUEFiles("testdata")
	require.NoError(t, err)
	assert.Contains(t, files, filepath.Join("testdata", "schema", "blog.cue"))
	assert.Contains(t, files, filepath.Join("testdata", "cycle", "schema.cue"))
	for _, f := range files {
		assert.Equal(t, ".cue", filepath.Ext(f))
	}
}
