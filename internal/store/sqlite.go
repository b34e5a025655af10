package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/indemnizatii/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Schema-qualified
// table names are flattened ("audit.anomaly_reviews" becomes
// "audit_anomaly_reviews").
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, eris.New("sqlite: database path is empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS raw_indemnizatii_clean (
	id                         INTEGER PRIMARY KEY,
	nr_crt                     TEXT NOT NULL DEFAULT '',
	nr_crt_source              TEXT NOT NULL DEFAULT '',
	autoritate_tutelara        TEXT NOT NULL DEFAULT '',
	intreprindere              TEXT NOT NULL DEFAULT '',
	cui                        TEXT NOT NULL DEFAULT '',
	personal                   TEXT NOT NULL DEFAULT '',
	calitate_membru            TEXT NOT NULL DEFAULT '',
	suma                       TEXT NOT NULL DEFAULT '',
	indemnizatie_variabila     TEXT NOT NULL DEFAULT '',
	suma_num                   INTEGER NOT NULL DEFAULT 0,
	indemnizatie_variabila_num INTEGER NOT NULL DEFAULT 0,
	an_raportare               INTEGER,
	base                       INTEGER,
	extra                      INTEGER NOT NULL DEFAULT 0,
	total                      INTEGER,
	variable                   INTEGER,
	pattern                    TEXT NOT NULL DEFAULT 'none',
	ambiguous                  INTEGER NOT NULL DEFAULT 0,
	total_plata                INTEGER
);

CREATE VIEW IF NOT EXISTS analytics_fact_indemnizatii AS
SELECT
	id                                  AS pk,
	NULLIF(trim(personal), '')          AS person_id,
	NULLIF(trim(cui), '')               AS company_id,
	total_plata,
	suma_num                            AS suma_clean,
	indemnizatie_variabila_num          AS variabila_clean,
	an_raportare
FROM raw_indemnizatii_clean;

CREATE TABLE IF NOT EXISTS audit_anomaly_candidates (
	candidate_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id          TEXT NOT NULL,
	source_table    TEXT NOT NULL,
	record_pk       TEXT NOT NULL,
	year            INTEGER,
	company_id      TEXT,
	person_id       TEXT,
	total_ron       REAL,
	anomaly_score   REAL NOT NULL,
	anomaly_reasons TEXT NOT NULL DEFAULT '[]',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS audit_anomaly_reviews (
	review_id          TEXT PRIMARY KEY,
	candidate_id       INTEGER NOT NULL REFERENCES audit_anomaly_candidates(candidate_id),
	reviewer_type      TEXT NOT NULL CHECK (reviewer_type IN ('offline', 'remote')),
	model              TEXT NOT NULL,
	prompt_fingerprint TEXT NOT NULL,
	label              TEXT NOT NULL CHECK (label IN ('LIKELY_ERROR', 'NEEDS_REVIEW', 'OK')),
	confidence         REAL CHECK (confidence >= 0 AND confidence <= 1),
	rationale          TEXT NOT NULL,
	raw_response       TEXT,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_clean_cui ON raw_indemnizatii_clean(cui);
CREATE INDEX IF NOT EXISTS idx_candidates_run ON audit_anomaly_candidates(run_id);
CREATE INDEX IF NOT EXISTS idx_reviews_candidate ON audit_anomaly_reviews(candidate_id);
`

// Migrate creates the tables and views if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteTable maps a schema-qualified name to its flattened, quoted form.
func sqliteTable(name string) string {
	flat := strings.ReplaceAll(name, ".", "_")
	return `"` + strings.ReplaceAll(flat, `"`, `""`) + `"`
}

// LoadNormalized replaces the normalized-row table with rows.
func (s *SQLiteStore) LoadNormalized(ctx context.Context, rows []model.EntityRow) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: load normalized: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	table := sqliteTable(CleanTable)
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return 0, eris.Wrap(err, "sqlite: load normalized: clear table")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cleanColumns)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO "+table+" ("+strings.Join(cleanColumns, ", ")+") VALUES ("+placeholders+")")
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: load normalized: prepare")
	}
	defer stmt.Close() //nolint:errcheck

	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx, sqliteArgs(cleanValues(r))...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: load normalized: insert row %d", i)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: load normalized: commit")
	}
	zap.L().Info("sqlite: loaded normalized rows", zap.Int("rows", len(rows)))
	return int64(len(rows)), nil
}

// sqliteArgs dereferences pointer values so nil pointers bind as NULL.
func sqliteArgs(vals []any) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		switch p := v.(type) {
		case *int:
			if p != nil {
				out[i] = int64(*p)
			}
		case *int64:
			if p != nil {
				out[i] = *p
			}
		case *float64:
			if p != nil {
				out[i] = *p
			}
		case *string:
			if p != nil {
				out[i] = *p
			}
		default:
			out[i] = v
		}
	}
	return out
}

// ReadFacts reads fact rows, newest year first.
func (s *SQLiteStore) ReadFacts(ctx context.Context, q FactQuery) ([]model.FactRow, error) {
	if q.Source == "" {
		return nil, eris.New("sqlite: read facts: source table is required")
	}
	limit := int64(-1)
	if q.Limit > 0 {
		limit = int64(q.Limit)
	}
	var year any
	if q.Year != nil {
		year = int64(*q.Year)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT cast(pk AS text), cast(person_id AS text), cast(company_id AS text),
			total_plata, suma_clean, variabila_clean, an_raportare
		FROM `+sqliteTable(q.Source)+`
		WHERE (? IS NULL OR an_raportare = ?)
		ORDER BY an_raportare DESC, pk
		LIMIT ?`,
		year, year, limit,
	)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return nil, eris.Errorf("sqlite: source table %s does not exist", q.Source)
		}
		return nil, eris.Wrapf(err, "sqlite: read facts from %s", q.Source)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.FactRow
	for rows.Next() {
		var (
			f                      model.FactRow
			personID, companyID    sql.NullString
			total, suma, variabila sql.NullFloat64
			yr                     sql.NullInt64
		)
		if err := rows.Scan(&f.RecordPK, &personID, &companyID, &total, &suma, &variabila, &yr); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fact row")
		}
		f.PersonID = personID.String
		f.CompanyID = companyID.String
		f.TotalRON = nullFloat(total)
		f.SumaClean = nullFloat(suma)
		f.VariabilaClean = nullFloat(variabila)
		if yr.Valid {
			f.Year = model.IntPtr(int(yr.Int64))
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: read facts from %s", q.Source)
	}
	return out, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return model.Float64Ptr(v.Float64)
}

// WriteCandidates inserts the flagged records of one run and returns their
// candidate ids in input order.
func (s *SQLiteStore) WriteCandidates(ctx context.Context, runID, source string, recs []model.ScoredRecord) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: write candidates: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	ids := make([]int64, 0, len(recs))
	for _, r := range recs {
		reasons := r.AnomalyReasons
		if reasons == nil {
			reasons = []string{}
		}
		reasonsJSON, err := json.Marshal(reasons)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal reasons")
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO audit_anomaly_candidates
				(run_id, source_table, record_pk, year, company_id, person_id, total_ron, anomaly_score, anomaly_reasons)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sqliteArgs([]any{runID, source, r.RecordPK, r.Year, nullString(r.CompanyID), nullString(r.PersonID),
				r.TotalRON, r.AnomalyScore, string(reasonsJSON)})...,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert candidate %s", r.RecordPK)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: candidate id")
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: write candidates: commit")
	}
	return ids, nil
}

// WriteReviews records one decision per candidate id.
func (s *SQLiteStore) WriteReviews(ctx context.Context, candidateIDs []int64, decisions []model.ReviewDecision) error {
	if err := checkPairs(candidateIDs, decisions); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: write reviews: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for i, d := range decisions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO audit_anomaly_reviews
				(review_id, candidate_id, reviewer_type, model, prompt_fingerprint, label, confidence, rationale, raw_response)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sqliteArgs([]any{uuid.New().String(), candidateIDs[i], string(d.ReviewerType), d.Model, d.PromptFingerprint,
				string(d.Label), d.Confidence, d.Rationale, nullBytes(d.RawResponse)})...,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert review for candidate %d", candidateIDs[i])
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: write reviews: commit")
}
