package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"enrich", "sync", "settings", "runs", "import", "serve", "purge"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "catalog-enrich", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestEnrichCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"brand", "category", "limit", "samples", "full", "offline", "purge"} {
		flag := enrichCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "enrich should have --%s flag", flagName)
	}

	full := enrichCmd.Flags().Lookup("full")
	require.NotNil(t, full)
	assert.Equal(t, "false", full.DefValue)
}

func TestSyncCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"brand", "category", "limit", "purge", "settings"} {
		flag := syncCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "sync should have --%s flag", flagName)
	}
}

func TestImportCommand_RequiredFlag(t *testing.T) {
	flag := importCmd.Flags().Lookup("file")
	require.NotNil(t, flag, "import command should have --file flag")
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	cmds := runsCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	for _, name := range []string{"list", "show", "logs"} {
		assert.True(t, names[name], "runs should have subcommand %q", name)
	}
}

func TestKeyIdentity(t *testing.T) {
	assert.Equal(t, "sk-ant-api03", keyIdentity("sk-ant-REDACTED"))
	assert.Equal(t, "short", keyIdentity("short"))
}
