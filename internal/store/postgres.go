package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/indemnizatii/internal/config"
	"github.com/sells-group/indemnizatii/internal/db"
	"github.com/sells-group/indemnizatii/internal/model"
)

//go:embed migrations/postgres/*.sql
var migrationFS embed.FS

// migrationLockKey serializes concurrent migrate runs.
const migrationLockKey = 72210417

// LocalHosts are the database hosts on which truncating reloads are allowed
// without store.allow_cloud_truncate.
var LocalHosts = map[string]bool{
	"localhost":            true,
	"127.0.0.1":            true,
	"postgres":             true,
	"host.docker.internal": true,
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool               db.Pool
	host               string
	allowCloudTruncate bool
	closeFn            func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, cfg config.StoreConfig) (*PostgresStore, error) {
	if cfg.DatabaseURL == "" {
		return nil, eris.New("postgres: database_url is empty")
	}
	pgxCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if cfg.MaxConns > 0 {
		maxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		minConns = cfg.MinConns
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{
		pool:               pool,
		host:               pgxCfg.ConnConfig.Host,
		allowCloudTruncate: cfg.AllowCloudTruncate,
		closeFn:            pool.Close,
	}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Migrate runs all pending SQL migrations in lexicographic order in one
// transaction. A transaction-scoped advisory lock serializes concurrent runs
// and is released on commit or rollback. Applied files are recorded in
// audit.schema_migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: migrate: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, fmt.Sprintf("SELECT pg_advisory_xact_lock(%d)", migrationLockKey)); err != nil {
		return eris.Wrap(err, "postgres: acquire migration advisory lock")
	}

	if err := ensureMigrationTable(ctx, tx); err != nil {
		return err
	}

	entries, err := fs.ReadDir(migrationFS, "migrations/postgres")
	if err != nil {
		return eris.Wrap(err, "postgres: read migration dir")
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	applied, err := appliedMigrations(ctx, tx)
	if err != nil {
		return err
	}

	var pending int
	for _, entry := range entries {
		name := entry.Name()
		if applied[name] {
			continue
		}

		data, err := migrationFS.ReadFile("migrations/postgres/" + name)
		if err != nil {
			return eris.Wrapf(err, "postgres: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))

		if _, err := tx.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "postgres: apply migration %s", name)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO audit.schema_migrations (filename, applied_at) VALUES ($1, now())",
			name,
		); err != nil {
			return eris.Wrapf(err, "postgres: record migration %s", name)
		}
		pending++
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: migrate: commit tx")
	}
	log.Debug("migrations up to date", zap.Int("applied", pending))
	return nil
}

func ensureMigrationTable(ctx context.Context, tx pgx.Tx) error {
	sql := `
		CREATE SCHEMA IF NOT EXISTS audit;
		CREATE TABLE IF NOT EXISTS audit.schema_migrations (
			id         SERIAL PRIMARY KEY,
			filename   TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`
	if _, err := tx.Exec(ctx, sql); err != nil {
		return eris.Wrap(err, "postgres: ensure migration table")
	}
	return nil
}

func appliedMigrations(ctx context.Context, tx pgx.Tx) (map[string]bool, error) {
	rows, err := tx.Query(ctx, "SELECT filename FROM audit.schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// CheckTruncate refuses destructive reloads against hosts outside
// LocalHosts unless allowCloud is set.
func CheckTruncate(host string, allowCloud bool) error {
	host = strings.TrimSpace(host)
	if LocalHosts[host] {
		return nil
	}
	if !allowCloud {
		return eris.Errorf("postgres: refusing to truncate on non-local host %q (set store.allow_cloud_truncate)", host)
	}
	zap.L().Warn("postgres: cloud truncate enabled", zap.String("host", host))
	return nil
}

// LoadNormalized replaces the contents of raw.indemnizatii_clean with rows.
func (s *PostgresStore) LoadNormalized(ctx context.Context, rows []model.EntityRow) (int64, error) {
	if err := CheckTruncate(s.host, s.allowCloudTruncate); err != nil {
		return 0, err
	}

	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = cleanValues(r)
	}

	n, err := db.ReplaceAll(ctx, s.pool, db.ReplaceConfig{Table: CleanTable, Columns: cleanColumns}, values)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: load normalized rows")
	}
	zap.L().Info("postgres: loaded normalized rows", zap.String("table", CleanTable), zap.Int64("rows", n))
	return n, nil
}

const factSelect = `SELECT
	cast(pk AS text) AS record_pk,
	cast(person_id AS text) AS person_id,
	cast(company_id AS text) AS company_id,
	cast(total_plata AS double precision) AS total_ron,
	cast(suma_clean AS double precision) AS suma_clean,
	cast(variabila_clean AS double precision) AS variabila_clean,
	an_raportare AS year
FROM %s
WHERE ($1::int IS NULL OR an_raportare = $1)
ORDER BY an_raportare DESC, pk
LIMIT $2`

// ReadFacts reads fact rows, newest year first. A missing source table is
// reported as such.
func (s *PostgresStore) ReadFacts(ctx context.Context, q FactQuery) ([]model.FactRow, error) {
	if q.Source == "" {
		return nil, eris.New("postgres: read facts: source table is required")
	}
	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(factSelect, db.SanitizeTable(q.Source)), q.Year, limit)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
			return nil, eris.Errorf("postgres: source table %s does not exist", q.Source)
		}
		return nil, eris.Wrapf(err, "postgres: read facts from %s", q.Source)
	}
	defer rows.Close()

	var out []model.FactRow
	for rows.Next() {
		var (
			f                   model.FactRow
			personID, companyID *string
		)
		if err := rows.Scan(&f.RecordPK, &personID, &companyID, &f.TotalRON, &f.SumaClean, &f.VariabilaClean, &f.Year); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fact row")
		}
		if personID != nil {
			f.PersonID = *personID
		}
		if companyID != nil {
			f.CompanyID = *companyID
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "postgres: read facts from %s", q.Source)
	}
	return out, nil
}

// WriteCandidates inserts the flagged records of one run and returns their
// candidate ids in input order.
func (s *PostgresStore) WriteCandidates(ctx context.Context, runID, source string, recs []model.ScoredRecord) ([]int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: write candidates: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ids := make([]int64, 0, len(recs))
	for _, r := range recs {
		reasons := r.AnomalyReasons
		if reasons == nil {
			reasons = []string{}
		}
		var id int64
		err := tx.QueryRow(ctx,
			`INSERT INTO audit.anomaly_candidates
				(run_id, source_table, record_pk, year, company_id, person_id, total_ron, anomaly_score, anomaly_reasons)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING candidate_id`,
			runID, source, r.RecordPK, r.Year, nullString(r.CompanyID), nullString(r.PersonID),
			r.TotalRON, r.AnomalyScore, reasons,
		).Scan(&id)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: insert candidate %s", r.RecordPK)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: write candidates: commit tx")
	}
	return ids, nil
}

// WriteReviews records one decision per candidate id.
func (s *PostgresStore) WriteReviews(ctx context.Context, candidateIDs []int64, decisions []model.ReviewDecision) error {
	if err := checkPairs(candidateIDs, decisions); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: write reviews: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for i, d := range decisions {
		if _, err := tx.Exec(ctx,
			`INSERT INTO audit.anomaly_reviews
				(review_id, candidate_id, reviewer_type, model, prompt_fingerprint, label, confidence, rationale, raw_response)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			uuid.New().String(), candidateIDs[i], string(d.ReviewerType), d.Model, d.PromptFingerprint,
			string(d.Label), d.Confidence, d.Rationale, nullBytes(d.RawResponse),
		); err != nil {
			return eris.Wrapf(err, "postgres: insert review for candidate %d", candidateIDs[i])
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: write reviews: commit tx")
	}
	return nil
}
