// Package store persists raw portal table files and sync history in a local
// SQLite database, and adapts that cache to the pipeline's table Provider
// interface.
package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Cache is the local store of downloaded portal files.
type Cache struct {
	db *sql.DB
}

// Open opens the cache database at the given path and configures WAL mode.
func Open(dsn string) (*Cache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "store: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "store: exec %s", pragma)
		}
	}
	return &Cache{db: db}, nil
}

const cacheMigration = `
CREATE TABLE IF NOT EXISTS raw_files (
	id         TEXT PRIMARY KEY,
	table_name TEXT NOT NULL,
	site_id    TEXT NOT NULL,
	month      TEXT NOT NULL,
	file_name  TEXT NOT NULL,
	etag       TEXT NOT NULL DEFAULT '',
	md5        TEXT NOT NULL DEFAULT '',
	size       INTEGER NOT NULL,
	data       BLOB NOT NULL,
	fetched_at DATETIME NOT NULL,
	UNIQUE(table_name, site_id, month)
);

CREATE TABLE IF NOT EXISTS sync_log (
	id          TEXT PRIMARY KEY,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	status      TEXT NOT NULL DEFAULT 'running',
	sites       INTEGER NOT NULL DEFAULT 0,
	months      INTEGER NOT NULL DEFAULT 0,
	files       INTEGER NOT NULL DEFAULT 0,
	bytes       INTEGER NOT NULL DEFAULT 0,
	error       TEXT
);

CREATE INDEX IF NOT EXISTS idx_raw_files_table ON raw_files(table_name);
CREATE INDEX IF NOT EXISTS idx_raw_files_site ON raw_files(site_id, month);
CREATE INDEX IF NOT EXISTS idx_sync_log_started ON sync_log(started_at);
`

// Migrate creates the cache schema.
func (c *Cache) Migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, cacheMigration)
	return eris.Wrap(err, "store: migrate")
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// RawFile is one cached portal CSV for a (table, site, month) slot.
type RawFile struct {
	TableName string
	SiteID    string
	Month     string
	FileName  string
	ETag      string
	MD5       string
	Data      []byte
	FetchedAt time.Time
}

// FileStamp identifies the cached revision of a site-month file, used for
// conditional re-downloads.
type FileStamp struct {
	FileName string
	ETag     string
	MD5      string
}

// PutFile inserts or replaces the cached copy of a site-month table file.
func (c *Cache) PutFile(ctx context.Context, f RawFile) error {
	if f.FetchedAt.IsZero() {
		f.FetchedAt = time.Now().UTC()
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO raw_files (id, table_name, site_id, month, file_name, etag, md5, size, data, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(table_name, site_id, month) DO UPDATE SET
			file_name  = excluded.file_name,
			etag       = excluded.etag,
			md5        = excluded.md5,
			size       = excluded.size,
			data       = excluded.data,
			fetched_at = excluded.fetched_at`,
		uuid.New().String(), f.TableName, f.SiteID, f.Month,
		f.FileName, f.ETag, f.MD5, len(f.Data), f.Data, f.FetchedAt,
	)
	return eris.Wrapf(err, "store: put %s %s %s", f.TableName, f.SiteID, f.Month)
}

// GetStamp returns the cached revision stamp for a site-month file, or nil
// when the slot has never been fetched.
func (c *Cache) GetStamp(ctx context.Context, table, site, month string) (*FileStamp, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT file_name, etag, md5 FROM raw_files
		 WHERE table_name = ? AND site_id = ? AND month = ?`,
		table, site, month,
	)

	var st FileStamp
	err := row.Scan(&st.FileName, &st.ETag, &st.MD5)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get stamp %s %s %s", table, site, month)
	}
	return &st, nil
}

// tableBlobs returns the cached payloads for a table, optionally filtered to
// specific sites, ordered by site and month for deterministic stacking.
func (c *Cache) tableBlobs(ctx context.Context, table string, sites []string) ([][]byte, error) {
	query := `SELECT data FROM raw_files WHERE table_name = ?`
	args := []any{table}
	if len(sites) > 0 {
		query += ` AND site_id IN (?` + strings.Repeat(",?", len(sites)-1) + `)`
		for _, s := range sites {
			args = append(args, s)
		}
	}
	query += ` ORDER BY site_id, month`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "store: read table %s", table)
	}
	defer rows.Close()

	var blobs [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrapf(err, "store: scan blob for %s", table)
		}
		blobs = append(blobs, data)
	}
	return blobs, eris.Wrapf(rows.Err(), "store: iterate table %s", table)
}

// InventoryRow summarizes cache coverage for one table and site.
type InventoryRow struct {
	TableName string    `json:"table"`
	SiteID    string    `json:"siteID"`
	Months    int       `json:"months"`
	Bytes     int64     `json:"bytes"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Inventory reports what the cache holds, one row per table and site.
// Folding happens Go-side: the driver only maps plain DATETIME columns to
// time.Time, not aggregates of them.
func (c *Cache) Inventory(ctx context.Context) ([]InventoryRow, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT table_name, site_id, size, fetched_at
		 FROM raw_files
		 ORDER BY table_name, site_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: inventory")
	}
	defer rows.Close()

	var out []InventoryRow
	for rows.Next() {
		var (
			table, site string
			size        int64
			fetched     time.Time
		)
		if err := rows.Scan(&table, &site, &size, &fetched); err != nil {
			return nil, eris.Wrap(err, "store: scan inventory")
		}
		if n := len(out); n > 0 && out[n-1].TableName == table && out[n-1].SiteID == site {
			r := &out[n-1]
			r.Months++
			r.Bytes += size
			if fetched.After(r.FetchedAt) {
				r.FetchedAt = fetched
			}
			continue
		}
		out = append(out, InventoryRow{
			TableName: table,
			SiteID:    site,
			Months:    1,
			Bytes:     size,
			FetchedAt: fetched,
		})
	}
	return out, eris.Wrap(rows.Err(), "store: iterate inventory")
}
