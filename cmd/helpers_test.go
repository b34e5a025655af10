package main

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/indemnizatii/internal/config"
	"github.com/sells-group/indemnizatii/internal/scorer"
)

// testConfig returns a config backed by a fresh SQLite database.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "test.db"),
		},
		Log:       config.LogConfig{Level: "info", Format: "console"},
		Scorer:    scorer.DefaultScorerConfig(),
		Normalize: config.NormalizeConfig{Workers: 2},
		Retry:     config.RetryConfig{MaxAttempts: 1, BaseDelayMs: 1, MaxDelayMs: 2},
		Fetch:     config.FetchConfig{UserAgent: "indemnizatii-test", TimeoutSecs: 5},
	}
}

func writeCSV(t *testing.T, path string, records [][]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	require.NoError(t, w.WriteAll(records))
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return recs
}

// column returns the named cell of rec.
func column(t *testing.T, header, rec []string, name string) string {
	t.Helper()
	for i, h := range header {
		if h == name {
			return rec[i]
		}
	}
	t.Fatalf("no column %q in %v", name, header)
	return ""
}
