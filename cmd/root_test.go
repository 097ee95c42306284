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
	expected := []string{"parse", "warm", "facts"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "xbrl-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestParseCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"json", "save", "db", "threshold"} {
		flag := parseCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "parse should have --%s flag", flagName)
	}

	flag := parseCmd.Flags().Lookup("save")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestWarmCommand_Flags(t *testing.T) {
	flag := warmCmd.Flags().Lookup("namespace")
	require.NotNil(t, flag, "warm should have --namespace flag")
}

func TestFactsCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"db", "location", "concept", "limit", "offset"} {
		flag := factsCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "facts should have --%s flag", flagName)
	}

	limit := factsCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "100", limit.DefValue)
}
