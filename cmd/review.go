package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/indemnizatii/internal/config"
	"github.com/sells-group/indemnizatii/internal/cost"
	"github.com/sells-group/indemnizatii/internal/fetcher"
	"github.com/sells-group/indemnizatii/internal/model"
	"github.com/sells-group/indemnizatii/internal/normalize"
	"github.com/sells-group/indemnizatii/internal/resilience"
	"github.com/sells-group/indemnizatii/internal/review"
	"github.com/sells-group/indemnizatii/internal/scorer"
	"github.com/sells-group/indemnizatii/internal/store"
)

// runIDLayout formats run identifiers as UTC timestamps, e.g. 20240131T235959Z.
const runIDLayout = "20060102T150405Z"

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Score compensation facts and classify the anomalies",
	Long: `Reads compensation facts from the store (or an enriched CSV), scores every
record against its company-year and year peers, writes the flagged records to
a CSV artifact and classifies each one as LIKELY_ERROR, NEEDS_REVIEW or OK.

Without an Anthropic key the deterministic offline classifier is used. With
--write-db the candidates and decisions are recorded in the audit tables.

Examples:
  indemnizatii review --year 2023
  indemnizatii review --source analytics.fact_indemnizatii --min-score 4 --write-db
  indemnizatii review --from-csv data/ind-nom-enriched.csv --out artifacts/candidates.csv`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var opts reviewOptions
		opts.Source, _ = cmd.Flags().GetString("source")
		opts.Year, _ = cmd.Flags().GetInt("year")
		opts.Limit, _ = cmd.Flags().GetInt("limit")
		opts.MinScore, _ = cmd.Flags().GetFloat64("min-score")
		opts.Out, _ = cmd.Flags().GetString("out")
		opts.ReviewsOut, _ = cmd.Flags().GetString("reviews-out")
		opts.WriteDB, _ = cmd.Flags().GetBool("write-db")
		opts.FromCSV, _ = cmd.Flags().GetString("from-csv")
		return runReview(ctx, cfg, opts)
	},
}

func init() {
	f := reviewCmd.Flags()
	f.String("source", store.FactTable, "fact table or view to read")
	f.Int("year", 0, "only review this reporting year (0=all years)")
	f.Int("limit", 0, "maximum number of source rows (0=use config)")
	f.Float64("min-score", -1, "minimum anomaly score to flag (-1=use config)")
	f.String("out", "artifacts/anomaly_candidates.csv", "flagged records CSV")
	f.String("reviews-out", "artifacts/anomaly_reviews.csv", "review decisions CSV (empty to skip)")
	f.Bool("write-db", false, "record candidates and decisions in the audit tables")
	f.String("from-csv", "", "read an enriched CSV instead of the store")

	rootCmd.AddCommand(reviewCmd)
}

type reviewOptions struct {
	Source     string
	Year       int
	Limit      int
	MinScore   float64
	Out        string
	ReviewsOut string
	WriteDB    bool
	FromCSV    string

	// now is overridden in tests.
	now func() time.Time
}

func runReview(ctx context.Context, c *config.Config, opts reviewOptions) error {
	scorerCfg := c.Scorer
	if opts.Limit > 0 {
		scorerCfg.Limit = opts.Limit
	}
	if opts.MinScore >= 0 {
		scorerCfg.MinScore = opts.MinScore
	}
	rc := *c
	rc.Scorer = scorerCfg
	if err := rc.Validate("review"); err != nil {
		return err
	}
	if err := scorer.ValidateConfig(scorerCfg); err != nil {
		return err
	}
	if opts.Out == "" {
		return eris.New("review: --out is required")
	}
	if opts.Source == "" {
		opts.Source = store.FactTable
	}
	if opts.now == nil {
		opts.now = time.Now
	}

	log := zap.L().With(zap.String("command", "review"))

	// A misconfigured classifier is fatal before any record is read.
	classifier, err := review.NewClassifier(c.Anthropic, nil, resilience.FromConfig(c.Retry))
	if err != nil {
		return err
	}

	var st store.Store
	if opts.FromCSV == "" || opts.WriteDB {
		st, err = openStore(ctx, c)
		if err != nil {
			return eris.Wrap(err, "review: open store")
		}
		defer st.Close() //nolint:errcheck
	}

	q := store.FactQuery{Source: opts.Source, Limit: scorerCfg.Limit}
	if opts.Year > 0 {
		q.Year = model.IntPtr(opts.Year)
	}

	var facts []model.FactRow
	if opts.FromCSV != "" {
		q.Source = opts.FromCSV
		facts, err = readFactsCSV(ctx, opts.FromCSV, q)
	} else {
		facts, err = st.ReadFacts(ctx, q)
	}
	if err != nil {
		return eris.Wrap(err, "review: read facts")
	}
	log.Info("facts read", zap.String("source", q.Source), zap.Int("rows", len(facts)))
	if len(facts) == 0 {
		return eris.Errorf("review: %s returned 0 rows; the year filter or the source table is likely wrong", q.Source)
	}

	scored := scorer.Score(facts, scorerCfg)
	flagged := scorer.Filter(scored, scorerCfg.MinScore, 0)

	runID := opts.now().UTC().Format(runIDLayout)
	if err := writeCSVFile(opts.Out, func(w io.Writer) error { return writeCandidatesCSV(w, flagged) }); err != nil {
		return err
	}
	log.Info("candidates written",
		zap.String("run_id", runID),
		zap.Int("flagged", len(flagged)),
		zap.Float64("min_score", scorerCfg.MinScore),
		zap.String("out", opts.Out),
	)
	if len(flagged) == 0 {
		return nil
	}

	var ids []int64
	if opts.WriteDB {
		ids, err = st.WriteCandidates(ctx, runID, q.Source, flagged)
		if err != nil {
			return eris.Wrap(err, "review: write candidates")
		}
	}

	decisions, err := review.ClassifyAll(ctx, classifier, flagged)
	logReviewCost(log, classifier)
	if err != nil {
		return err
	}

	if opts.ReviewsOut != "" {
		if err := writeCSVFile(opts.ReviewsOut, func(w io.Writer) error {
			return writeReviewsCSV(w, runID, flagged, decisions)
		}); err != nil {
			return err
		}
	}
	if opts.WriteDB {
		if err := st.WriteReviews(ctx, ids, decisions); err != nil {
			return eris.Wrap(err, "review: write reviews")
		}
		log.Info("audit trail recorded", zap.String("run_id", runID), zap.Int("reviews", len(decisions)))
	}
	return nil
}

// logReviewCost reports token usage and the estimated spend of a remote run.
func logReviewCost(log *zap.Logger, c review.Classifier) {
	rc, ok := c.(*review.RemoteClassifier)
	if !ok {
		return
	}
	calls, in, out := rc.Usage()
	calc := cost.NewCalculator(cost.DefaultRates())
	fields := []zap.Field{
		zap.String("model", rc.Model()),
		zap.Int("calls", calls),
		zap.Int64("input_tokens", in),
		zap.Int64("output_tokens", out),
	}
	if calc.Known(rc.Model()) {
		fields = append(fields, zap.Float64("estimated_cost_usd", calc.Claude(rc.Model(), in, out)))
	}
	log.Info("remote review usage", fields...)
}

// readFactsCSV reads an enriched CSV and applies the same year filter and
// row limit the store query would.
func readFactsCSV(ctx context.Context, path string, q store.FactQuery) ([]model.FactRow, error) {
	t, err := fetcher.ReadTable(ctx, path, fetcher.TableOptions{})
	if err != nil {
		return nil, err
	}
	rows, err := normalize.ParseEnriched(t.Header, t.Records)
	if err != nil {
		return nil, err
	}

	facts := scorer.FromEntityRows(rows)
	if q.Year != nil {
		kept := facts[:0]
		for _, f := range facts {
			if f.Year != nil && *f.Year == *q.Year {
				kept = append(kept, f)
			}
		}
		facts = kept
	}
	if q.Limit > 0 && len(facts) > q.Limit {
		facts = facts[:q.Limit]
	}
	return facts, nil
}

// writeCSVFile creates path and its directory and runs write against it. A
// failed close is reported so a truncated artifact never passes as written.
func writeCSVFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "review: create %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "review: create output file %s", path)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "review: close output file %s", path)
}

var candidateHeader = []string{
	"record_pk", "year", "company_id", "person_id", "total_ron",
	"suma_clean", "variabila_clean", "anomaly_score", "anomaly_reasons",
}

func writeCandidatesCSV(w io.Writer, recs []model.ScoredRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(candidateHeader); err != nil {
		return eris.Wrap(err, "review: write CSV header")
	}
	for _, r := range recs {
		row := []string{
			r.RecordPK,
			formatYear(r.Year),
			r.CompanyID,
			r.PersonID,
			formatFloat(r.TotalRON),
			formatFloat(r.SumaClean),
			formatFloat(r.VariabilaClean),
			strconv.FormatFloat(r.AnomalyScore, 'f', -1, 64),
			strings.Join(r.AnomalyReasons, ";"),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "review: write CSV row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "review: flush CSV")
}

var reviewHeader = []string{
	"run_id", "record_pk", "label", "confidence", "rationale",
	"reviewer_type", "model", "prompt_fingerprint",
}

func writeReviewsCSV(w io.Writer, runID string, recs []model.ScoredRecord, decisions []model.ReviewDecision) error {
	if len(recs) != len(decisions) {
		return eris.Errorf("review: %d decisions for %d records", len(decisions), len(recs))
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(reviewHeader); err != nil {
		return eris.Wrap(err, "review: write CSV header")
	}
	for i, d := range decisions {
		row := []string{
			runID,
			recs[i].RecordPK,
			string(d.Label),
			strconv.FormatFloat(d.Confidence, 'f', -1, 64),
			d.Rationale,
			string(d.ReviewerType),
			d.Model,
			d.PromptFingerprint,
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "review: write CSV row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "review: flush CSV")
}

func formatYear(y *int) string {
	if y == nil {
		return ""
	}
	return strconv.Itoa(*y)
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
