package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Sync run statuses.
const (
	SyncRunning = "running"
	SyncSuccess = "success"
	SyncFailed  = "failed"
)

// SyncRun is one recorded portal sync attempt.
type SyncRun struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Status     string     `json:"status"`
	Sites      int        `json:"sites"`
	Months     int        `json:"months"`
	Files      int        `json:"files"`
	Bytes      int64      `json:"bytes"`
	Error      string     `json:"error,omitempty"`
}

// SyncStats summarizes what a completed sync touched.
type SyncStats struct {
	Sites  int
	Months int
	Files  int
	Bytes  int64
}

// StartSync records the beginning of a sync run and returns its id.
func (c *Cache) StartSync(ctx context.Context) (string, error) {
	id := uuid.New().String()
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO sync_log (id, started_at, status) VALUES (?, ?, ?)`,
		id, time.Now().UTC(), SyncRunning,
	)
	if err != nil {
		return "", eris.Wrap(err, "store: start sync")
	}
	return id, nil
}

// CompleteSync marks a sync run as successful and records its stats.
func (c *Cache) CompleteSync(ctx context.Context, id string, stats SyncStats) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE sync_log
		 SET finished_at = ?, status = ?, sites = ?, months = ?, files = ?, bytes = ?
		 WHERE id = ?`,
		time.Now().UTC(), SyncSuccess, stats.Sites, stats.Months, stats.Files, stats.Bytes, id,
	)
	if err != nil {
		return eris.Wrapf(err, "store: complete sync %s", id)
	}
	return checkRowsAffected(res, "sync run", id)
}

// FailSync marks a sync run as failed with the given reason.
func (c *Cache) FailSync(ctx context.Context, id, reason string) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE sync_log SET finished_at = ?, status = ?, error = ? WHERE id = ?`,
		time.Now().UTC(), SyncFailed, reason, id,
	)
	if err != nil {
		return eris.Wrapf(err, "store: fail sync %s", id)
	}
	return checkRowsAffected(res, "sync run", id)
}

// LastSync returns the most recently started sync run, or nil when the log
// is empty.
func (c *Cache) LastSync(ctx context.Context) (*SyncRun, error) {
	runs, err := c.ListSyncs(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// ListSyncs returns up to limit sync runs, newest first.
func (c *Cache) ListSyncs(ctx context.Context, limit int) ([]SyncRun, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, status, sites, months, files, bytes, error
		 FROM sync_log ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: list syncs")
	}
	defer rows.Close()

	var out []SyncRun
	for rows.Next() {
		var (
			run      SyncRun
			finished sql.NullTime
			reason   sql.NullString
		)
		err := rows.Scan(&run.ID, &run.StartedAt, &finished, &run.Status,
			&run.Sites, &run.Months, &run.Files, &run.Bytes, &reason)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan sync run")
		}
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		run.Error = reason.String
		out = append(out, run)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate sync runs")
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "store: rows affected")
	}
	if n == 0 {
		return eris.Errorf("store: %s %s not found", kind, id)
	}
	return nil
}
