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

	expected := []string{"fetch", "normalize", "review", "migrate", "config"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "indemnizatii", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestFetchCommand_Flags(t *testing.T) {
	for _, name := range []string{"url", "out"} {
		flag := fetchCmd.Flags().Lookup(name)
		require.NotNil(t, flag, "fetch command should have --%s flag", name)
	}
}

func TestNormalizeCommand_Flags(t *testing.T) {
	flag := normalizeCmd.Flags().Lookup("output")
	require.NotNil(t, flag)
	assert.Equal(t, "data/ind-nom-enriched.csv", flag.DefValue)

	flag = normalizeCmd.Flags().Lookup("year")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)

	for _, name := range []string{"input", "sheet", "delimiter", "load"} {
		assert.NotNil(t, normalizeCmd.Flags().Lookup(name), "normalize should have --%s flag", name)
	}
}

func TestReviewCommand_Flags(t *testing.T) {
	defaults := map[string]string{
		"source":      "analytics.fact_indemnizatii",
		"year":        "0",
		"limit":       "0",
		"min-score":   "-1",
		"out":         "artifacts/anomaly_candidates.csv",
		"reviews-out": "artifacts/anomaly_reviews.csv",
		"write-db":    "false",
		"from-csv":    "",
	}
	for name, def := range defaults {
		flag := reviewCmd.Flags().Lookup(name)
		require.NotNil(t, flag, "review should have --%s flag", name)
		assert.Equal(t, def, flag.DefValue, "--%s default", name)
	}
}

func TestConfigCommand_HasShow(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range configCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["show"])
}
