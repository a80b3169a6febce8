package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{
		"download", "convert", "landpoint", "nearest", "analyze", "composite",
		"indices", "overpass", "scenes", "runs", "serve",
	}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "spectral-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestDownloadCommand_Args(t *testing.T) {
	assert.Error(t, downloadCmd.Args(downloadCmd, []string{"manifest.xlsx"}))
	assert.NoError(t, downloadCmd.Args(downloadCmd, []string{"manifest.xlsx", "out"}))

	for _, name := range []string{"sheet", "ext", "workers", "overwrite"} {
		assert.NotNil(t, downloadCmd.Flags().Lookup(name), "download should have --%s", name)
	}
}

func TestQueryCommands_Flags(t *testing.T) {
	for _, cmdName := range []string{"analyze", "composite", "scenes"} {
		cmd, _, err := rootCmd.Find([]string{cmdName})
		require.NoError(t, err)
		for _, name := range []string{"lat", "lon", "start", "end", "cloud"} {
			assert.NotNil(t, cmd.Flags().Lookup(name), "%s should have --%s", cmdName, name)
		}
	}

	flag := analyzeCmd.Flags().Lookup("random")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "stats", "samples"} {
		assert.True(t, names[name], "runs should have subcommand %q", name)
	}
}
