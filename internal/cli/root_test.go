package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "persist", cmd.Use)
	assert.Contains(t, cmd.Version, "ir 1")

	for _, name := range []string{"compile", "validate", "run", "test"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	tests := []struct {
		flag, shorthand, def string
	}{
		{"verbose", "v", "false"},
		{"format", "", "text"},
		{"driver", "", "sqlite3"},
		{"dsn", "", ":memory:"},
	}
	for _, tt := range tests {
		f := cmd.PersistentFlags().Lookup(tt.flag)
		require.NotNil(t, f, tt.flag)
		assert.Equal(t, tt.shorthand, f.Shorthand, tt.flag)
		assert.Equal(t, tt.def, f.DefValue, tt.flag)
	}

	compile, _, err := cmd.Find([]string{"compile"})
	require.NoError(t, err)
	assert.Equal(t, "o", compile.Flags().Lookup("output").Shorthand)

	test, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)
	assert.NotNil(t, test.Flags().Lookup("update"))
	assert.NotNil(t, test.Flags().Lookup("filter"))
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("yaml"))

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "yaml", "validate", "testdata/schema"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestResolveConnection(t *testing.T) {
	t.Run("environment fills unset flags", func(t *testing.T) {
		t.Setenv(EnvDriver, "postgres")
		t.Setenv(EnvDSN, "postgres://localhost/persist")

		cmd := NewRootCommand()
		opts := &RootOptions{Driver: "sqlite3", DSN: ":memory:"}
		opts.resolveConnection(cmd)
		assert.Equal(t, "postgres", opts.Driver)
		assert.Equal(t, "postgres://localhost/persist", opts.DSN)
	})

	t.Run("flag wins over environment", func(t *testing.T) {
		t.Setenv(EnvDriver, "postgres")
		t.Setenv(EnvDSN, "")

		cmd := NewRootCommand()
		require.NoError(t, cmd.PersistentFlags().Set("driver", "mysql"))
		opts := &RootOptions{Driver: "mysql", DSN: ":memory:"}
		opts.resolveConnection(cmd)
		assert.Equal(t, "mysql", opts.Driver)
		assert.Equal(t, ":memory:", opts.DSN)
	})
}

func TestLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	(&RootOptions{Format: "json"}).Logger(buf).Info("hidden")
	(&RootOptions{Format: "json"}).Logger(buf).Warn("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	(&RootOptions{Format: "text", Verbose: true}).Logger(buf).Debug("detail")
	assert.Contains(t, buf.String(), "msg=detail")
}
