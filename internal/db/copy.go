package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom bulk-inserts rows into a table using PostgreSQL COPY protocol.
// table may be schema-qualified ("raw.indemnizatii_clean").
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := pool.CopyFrom(ctx, Identifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}

	return n, nil
}

// ReplaceConfig describes a full-table reload.
type ReplaceConfig struct {
	Table   string   // target table, optionally schema-qualified
	Columns []string // columns written by COPY, in row order
}

// ReplaceAll empties the table and reloads it from rows inside one
// transaction:
// 1. TRUNCATE ... RESTART IDENTITY
// 2. COPY rows into the table
// 3. COMMIT
// A failure at any step leaves the previous contents in place.
func ReplaceAll(ctx context.Context, pool Pool, cfg ReplaceConfig, rows [][]any) (int64, error) {
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: replace: no columns specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: replace: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+SanitizeTable(cfg.Table)+" RESTART IDENTITY"); err != nil {
		return 0, eris.Wrapf(err, "db: replace: truncate %s", cfg.Table)
	}

	var n int64
	if len(rows) > 0 {
		n, err = tx.CopyFrom(ctx, Identifier(cfg.Table), cfg.Columns, pgx.CopyFromRows(rows))
		if err != nil {
			return 0, eris.Wrapf(err, "db: replace: COPY INTO %s", cfg.Table)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: replace: commit tx")
	}

	return n, nil
}

// Identifier splits a possibly schema-qualified name into a pgx.Identifier.
func Identifier(table string) pgx.Identifier {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}
	}
	return pgx.Identifier{table}
}

// SanitizeTable quotes a schema-qualified table name like
// "analytics.fact_indemnizatii" for direct use in SQL text.
func SanitizeTable(table string) string {
	return Identifier(table).Sanitize()
}

// QuoteAndJoin quotes each column name and joins with commas.
func QuoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
