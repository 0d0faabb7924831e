package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notesync/internal/config"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "notesync", cmd.Use)
	assert.Contains(t, cmd.Long, "in sync")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"serve"},
		{"notes", "list"}, {"notes", "show"}, {"notes", "create"}, {"notes", "update"}, {"notes", "rm"},
		{"tasks", "list"}, {"tasks", "add"}, {"tasks", "toggle"}, {"tasks", "due"}, {"tasks", "rm"},
		{"prefs", "show"}, {"prefs", "set"},
		{"watch"}, {"open"}, {"edit"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
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
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	for _, name := range []string{"addr", "db", "driver"} {
		f := serveCmd.Flags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, "", f.DefValue)
	}
}

func TestWatchAndOpenDefaults(t *testing.T) {
	cmd := NewRootCommand()

	watchCmd, _, err := cmd.Find([]string{"watch"})
	require.NoError(t, err)
	assert.Equal(t, "*", watchCmd.Flags().Lookup("table").DefValue)

	openCmd, _, err := cmd.Find([]string{"open"})
	require.NoError(t, err)
	assert.Equal(t, "popup", openCmd.Flags().Lookup("mode").DefValue)
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--format", "xml", "prefs", "show"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRootLoadsOrCreatesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	opts := &RootOptions{ConfigPath: path}

	require.NoError(t, opts.load(&bytes.Buffer{}))
	_, err := os.Stat(path)
	require.NoError(t, err, "defaults written")
	assert.Equal(t, config.DefaultAddr, opts.Config.Server.Addr)
	assert.Equal(t, []string{"--config", path}, opts.childArgs())
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o644))

	cmd := NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--config", path, "prefs", "show"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}
