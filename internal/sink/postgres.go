package sink

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quadrat-io/trapline/internal/carabid"
	"github.com/quadrat-io/trapline/internal/db"
)

// countColumns is the counts table layout, in CountColumns order.
var countColumns = []string{
	"sample_id",
	"domain_id",
	"site_id",
	"plot_id",
	"trap_id",
	"collect_date",
	"trapping_days",
	"bout_id",
	"taxon_id",
	"scientific_name",
	"taxon_rank",
	"count",
}

// conflictKeys identify a count row: the trap sample plus the taxon. The
// sample determines every other trap column.
var conflictKeys = []string{"sample_id", "taxon_id", "scientific_name", "taxon_rank"}

// PostgresSink upserts counts into a PostgreSQL table, creating it on first
// use. Re-running a load replaces earlier values for the same sample and
// taxon.
type PostgresSink struct {
	pool  db.Pool
	table string
}

// NewPostgres returns a sink writing to the given table.
func NewPostgres(pool db.Pool, table string) *PostgresSink {
	return &PostgresSink{pool: pool, table: table}
}

func (s *PostgresSink) Write(ctx context.Context, counts []carabid.CountRow) error {
	if err := s.ensureTable(ctx); err != nil {
		return err
	}

	rows := make([][]any, len(counts))
	for i, c := range counts {
		rows[i] = []any{
			c.SampleID,
			c.DomainID,
			c.SiteID,
			c.PlotID,
			c.TrapID,
			c.CollectDate,
			c.TrappingDays,
			c.BoutID,
			c.TaxonID,
			c.ScientificName,
			c.TaxonRank,
			c.Count,
		}
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        s.table,
		Columns:      countColumns,
		ConflictKeys: conflictKeys,
	}, rows)
	if err != nil {
		return err
	}

	zap.L().Info("sink: upserted counts",
		zap.String("table", s.table),
		zap.Int64("rows", n),
	)
	return nil
}

func (s *PostgresSink) ensureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	sample_id       TEXT NOT NULL,
	domain_id       TEXT NOT NULL,
	site_id         TEXT NOT NULL,
	plot_id         TEXT NOT NULL,
	trap_id         TEXT NOT NULL,
	collect_date    DATE NOT NULL,
	trapping_days   INTEGER NOT NULL,
	bout_id         TEXT NOT NULL,
	taxon_id        TEXT NOT NULL,
	scientific_name TEXT NOT NULL,
	taxon_rank      TEXT NOT NULL,
	count           INTEGER NOT NULL,
	PRIMARY KEY (sample_id, taxon_id, scientific_name, taxon_rank)
)`, db.SanitizeTable(s.table))

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return eris.Wrapf(err, "sink: ensure table %s", s.table)
	}
	return nil
}
