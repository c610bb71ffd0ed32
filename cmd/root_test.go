package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"generate", "inspect"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "commentary-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestGenerateCommand_Flags(t *testing.T) {
	for flagName, def := range map[string]string{
		"mode":        "top_bottom",
		"top-n":       "5",
		"effort":      "medium",
		"out":         "output",
		"concurrency": "20",
	} {
		flag := generateCmd.Flags().Lookup(flagName)
		require.NotNil(t, flag, "generate should have --%s flag", flagName)
		assert.Equal(t, def, flag.DefValue, "--%s default", flagName)
	}
}

func TestCollectInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"B_report.xlsx", "A_report.xlsx", "~$A_report.xlsx", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	loose := filepath.Join(dir, "A_report.xlsx")

	inputs, err := collectInputs([]string{dir})

	require.NoError(t, err)
	// Lock files and non-xlsx entries are skipped; output is sorted.
	require.Len(t, inputs, 2)
	assert.Equal(t, loose, inputs[0])
	assert.Equal(t, filepath.Join(dir, "B_report.xlsx"), inputs[1])
}

func TestCollectInputs_MissingPath(t *testing.T) {
	_, err := collectInputs([]string{"/nonexistent/path.xlsx"})
	assert.Error(t, err)
}
