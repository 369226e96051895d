package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig defines the parameters for a bulk upsert operation.
type UpsertConfig struct {
	Table        string   // target table, optionally schema-qualified
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
}

// BulkUpsert loads rows through a temp table and INSERT ... ON CONFLICT, so
// re-running a load replaces earlier values instead of duplicating them.
// All non-key columns are updated on conflict.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: upsert: no conflict keys specified")
	}

	conflictSet := make(map[string]bool, len(cfg.ConflictKeys))
	for _, k := range cfg.ConflictKeys {
		conflictSet[k] = true
	}
	var setClauses []string
	for _, col := range cfg.Columns {
		if conflictSet[col] {
			continue
		}
		q := pgx.Identifier{col}.Sanitize()
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
	}
	if len(setClauses) == 0 {
		return 0, eris.New("db: upsert: no non-key columns to update")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx)

	tempTable := "_load_" + strings.ReplaceAll(cfg.Table, ".", "_")

	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{tempTable}.Sanitize(),
		SanitizeTable(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into temp table for %s", cfg.Table)
	}

	colList := quoteAndJoin(cfg.Columns)
	upsertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s",
		SanitizeTable(cfg.Table),
		colList,
		colList,
		pgx.Identifier{tempTable}.Sanitize(),
		quoteAndJoin(cfg.ConflictKeys),
		strings.Join(setClauses, ", "),
	)
	tag, err := tx.Exec(ctx, upsertSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

// SanitizeTable quotes a table name, handling schema-qualified names like
// "public.counts".
func SanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
