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
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download a compensation registry export",
	Long: `Downloads a registry export (CSV or XLSX) over HTTP. Transient failures
are retried with exponential backoff and requests are rate limited per host.

Examples:
  indemnizatii fetch --url https://example.gov.ro/ind-nom.xlsx --out data/ind-nom.xlsx`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		url, _ := cmd.Flags().GetString("url")
		out, _ := cmd.Flags().GetString("out")
		return runFetch(ctx, cfg, url, out)
	},
}

func init() {
	f := fetchCmd.Flags()
	f.String("url", "", "export URL (required)")
	f.String("out", "", "destination file (required)")
	_ = fetchCmd.MarkFlagRequired("url")
	_ = fetchCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(fetchCmd)
}

func runFetch(ctx context.Context, c *config.Config, url, out string) error {
	if url == "" || out == "" {
		return eris.New("fetch: --url and --out are required")
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "fetch: create %s", dir)
		}
	}

	var f fetcher.Fetcher = fetcher.NewHTTPFetcherFromConfig(c.Fetch, c.Retry)
	n, err := f.DownloadToFile(ctx, url, out)
	if err != nil {
		return eris.Wrap(err, "fetch")
	}

	zap.L().Info("fetch complete", zap.String("out", out), zap.Int64("bytes", n))
	return nil
}
