// Package store persists normalized rows, anomaly candidates and review
// decisions.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/indemnizatii/internal/config"
	"github.com/sells-group/indemnizatii/internal/model"
	"github.com/sells-group/indemnizatii/internal/resilience"
)

// Table names shared by both backends. SQLite flattens the schema prefix.
const (
	CleanTable      = "raw.indemnizatii_clean"
	FactTable       = "analytics.fact_indemnizatii"
	CandidatesTable = "audit.anomaly_candidates"
	ReviewsTable    = "audit.anomaly_reviews"
)

// FactQuery selects fact rows for scoring. Year nil means all years.
type FactQuery struct {
	Source string
	Year   *int
	Limit  int
}

// Store defines the persistence interface for the normalization and review
// runs.
type Store interface {
	// Normalized rows
	LoadNormalized(ctx context.Context, rows []model.EntityRow) (int64, error)

	// Facts
	ReadFacts(ctx context.Context, q FactQuery) ([]model.FactRow, error)

	// Audit trail
	WriteCandidates(ctx context.Context, runID, source string, recs []model.ScoredRecord) ([]int64, error)
	WriteReviews(ctx context.Context, candidateIDs []int64, decisions []model.ReviewDecision) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the backend named by cfg.Driver. Postgres connection
// attempts are retried on transient failures.
func Open(ctx context.Context, cfg config.StoreConfig, retry resilience.RetryConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "postgres":
		if retry.OnRetry == nil {
			retry.OnRetry = resilience.RetryLogger("postgres", "connect")
		}
		return resilience.DoVal(ctx, retry, func(ctx context.Context) (Store, error) {
			s, err := NewPostgres(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return s, nil
		})
	case "sqlite":
		s, err := NewSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// cleanColumns is the column order of the normalized-row table.
var cleanColumns = []string{
	"nr_crt",
	"nr_crt_source",
	"autoritate_tutelara",
	"intreprindere",
	"cui",
	"personal",
	"calitate_membru",
	"suma",
	"indemnizatie_variabila",
	"suma_num",
	"indemnizatie_variabila_num",
	"an_raportare",
	"base",
	"extra",
	"total",
	"variable",
	"pattern",
	"ambiguous",
	"total_plata",
}

// cleanValues flattens an EntityRow in cleanColumns order.
func cleanValues(r model.EntityRow) []any {
	return []any{
		r.NrCrt,
		string(r.NrCrtSource),
		r.AutoritateTutelara,
		r.Intreprindere,
		r.CUI,
		r.Personal,
		r.CalitateMembru,
		r.Suma,
		r.IndemnizatieVariabila,
		r.SumaNum,
		r.IndemnizatieVariabilaNum,
		r.Year,
		r.Compensation.Base,
		r.Compensation.Extra,
		r.Compensation.Total,
		r.Variable,
		string(r.Pattern),
		r.Ambiguous,
		r.TotalPlata,
	}
}

func checkPairs(ids []int64, decisions []model.ReviewDecision) error {
	if len(ids) != len(decisions) {
		return eris.Errorf("store: %d candidate ids for %d decisions", len(ids), len(decisions))
	}
	return nil
}

func nullString(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func nullBytes(b []byte) *string {
	if len(b) == 0 {
		return nil
	}
	s := string(b)
	return &s
}
