package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/indemnizatii/internal/config"
	"github.com/sells-group/indemnizatii/internal/fetcher"
	"github.com/sells-group/indemnizatii/internal/model"
	"github.com/sells-group/indemnizatii/internal/normalize"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Normalize a registry export into the enriched table",
	Long: `Reads a CSV or XLSX registry export, canonicalizes its headers, resolves the
compound compensation values, backfills missing sequence numbers and writes
the enriched CSV. With --load the rows also replace the contents of the
normalized-row table.

Examples:
  indemnizatii normalize --input data/ind-nom.xlsx --output data/ind-nom-enriched.csv --year 2023
  indemnizatii normalize --input data/ind-nom.csv --output data/enriched.csv --load`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var opts normalizeOptions
		opts.Input, _ = cmd.Flags().GetString("input")
		opts.Output, _ = cmd.Flags().GetString("output")
		opts.Year, _ = cmd.Flags().GetInt("year")
		opts.Sheet, _ = cmd.Flags().GetString("sheet")
		opts.Delimiter, _ = cmd.Flags().GetString("delimiter")
		opts.Load, _ = cmd.Flags().GetBool("load")
		return runNormalize(ctx, cfg, opts)
	},
}

func init() {
	f := normalizeCmd.Flags()
	f.String("input", "", "registry export, .csv or .xlsx (required)")
	f.String("output", "data/ind-nom-enriched.csv", "enriched CSV destination")
	f.Int("year", 0, "reporting year stamped on every row (0=use config)")
	f.String("sheet", "", "XLSX sheet name (default: first sheet)")
	f.String("delimiter", ",", "CSV field delimiter")
	f.Bool("load", false, "replace the normalized-row table with the result")
	_ = normalizeCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(normalizeCmd)
}

type normalizeOptions struct {
	Input     string
	Output    string
	Year      int
	Sheet     string
	Delimiter string
	Load      bool
}

func runNormalize(ctx context.Context, c *config.Config, opts normalizeOptions) error {
	if err := c.Validate("normalize"); err != nil {
		return err
	}
	if opts.Input == "" {
		return eris.New("normalize: --input is required")
	}

	log := zap.L().With(zap.String("command", "normalize"))

	delim := ','
	if d := []rune(opts.Delimiter); len(d) == 1 {
		delim = d[0]
	} else if opts.Delimiter != "" {
		return eris.Errorf("normalize: --delimiter must be a single character (got %q)", opts.Delimiter)
	}

	table, err := fetcher.ReadTable(ctx, opts.Input, fetcher.TableOptions{Delimiter: delim, Sheet: opts.Sheet})
	if err != nil {
		return eris.Wrap(err, "normalize: read input")
	}

	raw, stats := normalize.BuildRows(table.Header, table.Records)
	log.Info("rows read",
		zap.Int("read", stats.Read),
		zap.Int("kept", len(raw)),
		zap.Int("malformed", stats.Malformed),
		zap.Int("empty", stats.Empty),
		zap.Int("duplicates", stats.Duplicates),
	)
	if len(raw) == 0 {
		return eris.Errorf("normalize: %s has no usable rows", opts.Input)
	}

	rows, err := normalize.NormalizeAll(ctx, raw, reportingYear(opts.Year, c.Normalize.Year), c.Normalize.Workers)
	if err != nil {
		return err
	}

	rows, bstats := normalize.Backfill(rows)
	logMissingKeys(log, rows)
	log.Info("backfill complete", zap.Int("filled", bstats.Filled), zap.Int("missing", bstats.Missing))

	if err := writeEnrichedFile(opts.Output, rows); err != nil {
		return err
	}
	log.Info("enriched file written", zap.String("output", opts.Output), zap.Int("rows", len(rows)))

	if !opts.Load {
		return nil
	}

	st, err := openStore(ctx, c)
	if err != nil {
		return eris.Wrap(err, "normalize: open store")
	}
	defer st.Close() //nolint:errcheck

	n, err := st.LoadNormalized(ctx, rows)
	if err != nil {
		return eris.Wrap(err, "normalize: load")
	}
	log.Info("normalized rows loaded", zap.Int64("rows", n))
	return nil
}

// reportingYear picks the flag value over the configured one. Zero means
// unknown.
func reportingYear(flag, configured int) *int {
	switch {
	case flag > 0:
		return model.IntPtr(flag)
	case configured > 0:
		return model.IntPtr(configured)
	default:
		return nil
	}
}

func logMissingKeys(log *zap.Logger, rows []model.EntityRow) {
	counts := make(map[string]int)
	for _, r := range rows {
		for _, col := range normalize.MissingKeyFields(r) {
			counts[col]++
		}
	}
	for col, n := range counts {
		log.Warn("rows with blank key field", zap.String("column", col), zap.Int("rows", n))
	}
}

func writeEnrichedFile(path string, rows []model.EntityRow) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "normalize: create %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "normalize: create output file %s", path)
	}
	if err := normalize.WriteEnriched(f, rows); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return eris.Wrap(err, "normalize: sync output")
	}
	return eris.Wrapf(f.Close(), "normalize: close output file %s", path)
}
