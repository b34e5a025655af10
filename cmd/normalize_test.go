package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/indemnizatii/internal/config"
	"github.com/sells-group/indemnizatii/internal/normalize"
	"github.com/sells-group/indemnizatii/internal/store"
)

var exportHeader = []string{
	"Nr. crt.",
	"Autoritate publică tutelară (APT)",
	"Nume întreprindere publică",
	"CUI",
	"Nume personal conducere",
	"Calitate (membru CA/CS director/membru directorat)",
	"Valoare indemnizație fix lunar conform contract (brut-lei)*",
	"Valoare indemnizație variabila anual conform contract (brut-lei)*",
}

func writeExport(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "ind-nom.csv")
	writeCSV(t, path, [][]string{
		exportHeader,
		{"1", "Ministerul Energiei", "Hidro SA", "100", "Ion Pop", "membru CA", "5000", ""},
		{"", "Ministerul Energiei", "Hidro SA", "100", "Maria Ionescu", "membru CA", "4500 + 500", "12 000"},
		{"3", "Ministerul Energiei", "Nuclear SA", "200", "Ana Radu", "director", "nu a fost stabilită", ""},
		{"1", "Ministerul Energiei", "Hidro SA", "100", "Ion Pop", "membru CA", "5000", ""},
	})
	return path
}

func TestRunNormalize_WritesEnrichedCSV(t *testing.T) {
	dir := t.TempDir()
	c := testConfig(t)
	out := filepath.Join(dir, "out", "enriched.csv")

	err := runNormalize(context.Background(), c, normalizeOptions{
		Input:  writeExport(t, dir),
		Output: out,
		Year:   2023,
	})
	require.NoError(t, err)

	recs := readCSV(t, out)
	require.Len(t, recs, 4, "header plus three rows after the duplicate is dropped")
	header := recs[0]
	assert.Equal(t, normalize.EnrichedHeader, header)

	assert.Equal(t, "2023", column(t, header, recs[1], normalize.ColAnRaportare))
	assert.Equal(t, "5000", column(t, header, recs[1], normalize.ColTotalPlata))

	// blank nr_crt backfilled from the first row with the same cui
	assert.Equal(t, "1", column(t, header, recs[2], normalize.ColNrCrt))
	assert.Equal(t, "backfilled", column(t, header, recs[2], normalize.ColNrCrtSource))
	assert.Equal(t, "5000", column(t, header, recs[2], normalize.ColSumaTotalNum))
	assert.Equal(t, "17000", column(t, header, recs[2], normalize.ColTotalPlata))

	// absent compensation stays blank, storage amount coerces to 0
	assert.Equal(t, "", column(t, header, recs[3], normalize.ColTotalPlata))
	assert.Equal(t, "0", column(t, header, recs[3], normalize.ColSumaNum))
}

func TestRunNormalize_LoadReplacesTable(t *testing.T) {
	dir := t.TempDir()
	c := testConfig(t)
	opts := normalizeOptions{
		Input:  writeExport(t, dir),
		Output: filepath.Join(dir, "enriched.csv"),
		Load:   true,
	}

	ctx := context.Background()
	require.NoError(t, runNormalize(ctx, c, opts))
	require.NoError(t, runNormalize(ctx, c, opts))

	st, err := openStore(ctx, c)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	facts, err := st.ReadFacts(ctx, store.FactQuery{Source: store.FactTable})
	require.NoError(t, err)
	assert.Len(t, facts, 3)
	for _, f := range facts {
		assert.Nil(t, f.Year)
	}
}

func TestRunNormalize_Errors(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.csv")
	writeCSV(t, empty, [][]string{exportHeader, {"", "", "", "", "", "", "", ""}})

	tests := []struct {
		name    string
		opts    normalizeOptions
		mutate  func(c *config.Config)
		wantErr string
	}{
		{name: "missing input", opts: normalizeOptions{Output: filepath.Join(dir, "x.csv")}, wantErr: "--input is required"},
		{name: "unsupported file", opts: normalizeOptions{Input: filepath.Join(dir, "x.json"), Output: filepath.Join(dir, "x.csv")}, wantErr: "unsupported file type"},
		{name: "no usable rows", opts: normalizeOptions{Input: empty, Output: filepath.Join(dir, "x.csv")}, wantErr: "no usable rows"},
		{name: "bad delimiter", opts: normalizeOptions{Input: empty, Output: filepath.Join(dir, "x.csv"), Delimiter: ";;"}, wantErr: "single character"},
		{name: "bad workers", opts: normalizeOptions{Input: empty}, mutate: func(c *config.Config) { c.Normalize.Workers = 0 }, wantErr: "normalize.workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig(t)
			if tt.mutate != nil {
				tt.mutate(c)
			}
			err := runNormalize(context.Background(), c, tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReportingYear(t *testing.T) {
	assert.Equal(t, 2024, *reportingYear(2024, 2023))
	assert.Equal(t, 2023, *reportingYear(0, 2023))
	assert.Nil(t, reportingYear(0, 0))
}
