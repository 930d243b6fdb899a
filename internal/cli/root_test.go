package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "casesync", cmd.Use)
	assert.Contains(t, cmd.Long, "CASESYNC_")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"sync", "undo", "log", "runs", "statuses", "serve", "scenario"}

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

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	require.NotNil(t, cmd.PersistentFlags().Lookup("log-file"))
}

func TestSyncCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	syncCmd, _, err := cmd.Find([]string{"sync"})
	require.NoError(t, err)

	dirFlag := syncCmd.Flags().Lookup("direction")
	require.NotNil(t, dirFlag)
	assert.Equal(t, "d", dirFlag.Shorthand)
	assert.Equal(t, "", dirFlag.DefValue)

	require.NotNil(t, syncCmd.Flags().Lookup("id"))
	require.NotNil(t, syncCmd.Flags().Lookup("dry-run"))
}

func TestRunsCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runsCmd, _, err := cmd.Find([]string{"runs"})
	require.NoError(t, err)

	limitFlag := runsCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag)
	assert.Equal(t, "n", limitFlag.Shorthand)
	assert.Equal(t, "20", limitFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, _, err := f.run(t, "--format", "xml", "statuses")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestMissingConfigFile(t *testing.T) {
	_, _, err := execute(&RootOptions{}, "--config", "/nonexistent/casesync.yaml", "statuses")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestLogFile(t *testing.T) {
	f := newFixture(t, nil, nil)
	logPath := filepath.Join(f.dir, "casesync.log")

	_, stderr, err := f.run(t, "--log-file", logPath, "-v", "sync")
	require.NoError(t, err)
	assert.NotContains(t, stderr, "sync started")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"sync started"`)
}
