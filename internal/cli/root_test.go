package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/revgraph/internal/ir"
	"github.com/roach88/revgraph/internal/store"
	"github.com/roach88/revgraph/internal/testutil"
)

// seedDatabase writes a small graph to a file database:
//
//	r1 commit doc {n:1}
//	r2 commit doc {n:2}
//	r3 remote from c1, note {text:"hi"}
func seedDatabase(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "graph.db")
	st, err := store.Open(path)
	require.NoError(t, err)

	g := testutil.NewGraphBuilder(t, st)
	g.Commit(ir.None, testutil.Set("doc", ir.Object{"n": ir.Int(1)}))
	g.Commit(1, testutil.Set("doc", ir.Object{"n": ir.Int(2)}))
	g.Remote(2, "c1", testutil.Set("note", ir.Object{"text": ir.String("hi")}))

	require.NoError(t, st.Close())
	return path
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "revgraph", cmd.Use)
	assert.Contains(t, cmd.Long, "new revision")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"log", "track", "undo", "redo", "serve", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestTrackCommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"track", "undo", "redo"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)

			dbFlag := sub.Flags().Lookup("db")
			require.NotNil(t, dbFlag)
			// --db is required, so default is empty
			assert.Equal(t, "", dbFlag.DefValue)

			entityFlag := sub.Flags().Lookup("entity")
			require.NotNil(t, entityFlag)
			assert.Equal(t, "e", entityFlag.Shorthand)

			require.NotNil(t, sub.Flags().Lookup("inner"))
			require.NotNil(t, sub.Flags().Lookup("branch"))
		})
	}
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	configFlag := serveCmd.Flags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	for _, name := range []string{"db", "listen", "path", "tracked", "inner"} {
		assert.NotNil(t, serveCmd.Flags().Lookup(name), "flag %s", name)
	}
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	filterFlag := testCmd.Flags().Lookup("filter")
	require.NotNil(t, filterFlag)
}

func TestFormatValidation(t *testing.T) {
	// Test valid formats
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	// Test invalid formats
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	_, err := execute(t, "--format", "invalid", "log", "--db", "graph.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRequiredFlags(t *testing.T) {
	_, err := execute(t, "track", "--db", "graph.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity")

	_, err = execute(t, "log")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db")
}
