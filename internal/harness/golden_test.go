package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/persist/internal/command"
)

func TestRunWithGolden_UserProfile(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/user_profile.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestSnapshot_FlagsRolledBackWrites(t *testing.T) {
	result := NewResult()
	result.Log = []LogEntry{
		{Seq: 1, Step: 1, Database: "default", Op: command.OpInsert, Table: "users", Values: map[string]any{"email": "a"}, RolledBack: true},
		{Seq: 2, Step: 2, Database: "default", Op: command.OpDelete, Table: "users", Where: map[string]any{"id": int64(1)}},
	}

	data, err := Snapshot("s", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario":"s","writes":[`+
			`{"database":"default","op":"insert","rolled_back":true,"seq":1,"step":1,"table":"users","values":{"email":"a"}},`+
			`{"database":"default","op":"delete","seq":2,"step":2,"table":"users","where":{"id":1}}]}`,
		string(data))
}

func TestLogHash_StableAndContentSensitive(t *testing.T) {
	a := NewResult()
	a.Log = []LogEntry{{Seq: 1, Step: 1, Database: "default", Op: command.OpInsert, Table: "users"}}
	b := NewResult()
	b.Log = []LogEntry{{Seq: 1, Step: 1, Database: "default", Op: command.OpInsert, Table: "users"}}

	ha, err := LogHash(a)
	require.NoError(t, err)
	hb, err := LogHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	b.Log[0].RolledBack = true
	hc, err := LogHash(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}
