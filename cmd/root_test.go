package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"run"},
		{"serve"},
		{"version"},
		{"config", "connections", "add", "postgres"},
		{"config", "connections", "add", "mock"},
		{"config", "conn", "list"},
		{"config", "connections", "rm"},
		{"config", "defaults", "set"},
		{"config", "defaults", "list"},
		{"config", "defaults", "remove"},
	} {
		c, rest, err := rootCmd.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		require.Empty(t, rest, strings.Join(path, " "))
		require.NotEqual(t, rootCmd, c, strings.Join(path, " "))
	}
}

func TestVersionCommand(t *testing.T) {
	buf := &bytes.Buffer{}
	versionCmd.SetOut(buf)
	versionCmd.Run(versionCmd, nil)
	require.True(t, strings.HasPrefix(buf.String(), "etl "+version+" (built "))
}
