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

	for _, name := range []string{"run", "watch", "serve", "runs", "prune"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "change-monitor", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		cmd  string
		flag string
		def  string
	}{
		{"run", "entity", ""},
		{"run", "format", "table"},
		{"serve", "port", "0"},
		{"runs", "limit", "20"},
		{"runs", "since", "0s"},
		{"runs", "json", "false"},
		{"prune", "days", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd+"/"+tt.flag, func(t *testing.T) {
			c, _, err := rootCmd.Find([]string{tt.cmd})
			require.NoError(t, err)
			f := c.Flags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.def, f.DefValue)
		})
	}
}
