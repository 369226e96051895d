package store

import (
	"bytes"
	"context"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quadrat-io/trapline/internal/carabid"
)

// Provider reads the four tables out of the cache. Each table is stacked
// from every cached site-month file in site and month order; rows the portal
// republishes across releases are de-duplicated by uid, first occurrence
// wins.
type Provider struct {
	cache *Cache
	sites []string
}

// Provider returns a pipeline table provider over the cache, optionally
// restricted to the given sites.
func (c *Cache) Provider(sites ...string) *Provider {
	return &Provider{cache: c, sites: sites}
}

func (p *Provider) FieldData(ctx context.Context) ([]carabid.FieldSample, error) {
	return stackTable(ctx, p.cache, carabid.TableFieldData, p.sites, carabid.ReadFieldData,
		func(s carabid.FieldSample) string { return s.UID })
}

func (p *Provider) Sorting(ctx context.Context) ([]carabid.SortRecord, error) {
	return stackTable(ctx, p.cache, carabid.TableSorting, p.sites, carabid.ReadSorting,
		func(r carabid.SortRecord) string { return r.UID })
}

func (p *Provider) Pinning(ctx context.Context) ([]carabid.PinRecord, error) {
	return stackTable(ctx, p.cache, carabid.TablePinning, p.sites, carabid.ReadPinning,
		func(r carabid.PinRecord) string { return r.UID })
}

func (p *Provider) Expert(ctx context.Context) ([]carabid.ExpertRecord, error) {
	return stackTable(ctx, p.cache, carabid.TableExpert, p.sites, carabid.ReadExpert,
		func(r carabid.ExpertRecord) string { return r.UID })
}

// stackTable parses and concatenates every cached file of one table.
func stackTable[T any](ctx context.Context, c *Cache, table string, sites []string,
	parse func(io.Reader) ([]T, error), uid func(T) string) ([]T, error) {

	blobs, err := c.tableBlobs(ctx, table, sites)
	if err != nil {
		return nil, err
	}

	var out []T
	seen := make(map[string]bool)
	dropped := 0
	for _, blob := range blobs {
		rows, err := parse(bytes.NewReader(blob))
		if err != nil {
			return nil, eris.Wrapf(err, "store: parse cached %s", table)
		}
		out, dropped = appendDedup(out, rows, seen, uid, dropped)
	}
	if dropped > 0 {
		zap.L().Debug("store: dropped republished rows",
			zap.String("table", table),
			zap.Int("rows", dropped),
		)
	}
	return out, nil
}

// appendDedup appends rows to dst skipping uids already seen. Rows with an
// empty uid are always kept.
func appendDedup[T any](dst, rows []T, seen map[string]bool, uid func(T) string, dropped int) ([]T, int) {
	for _, r := range rows {
		if id := uid(r); id != "" {
			if seen[id] {
				dropped++
				continue
			}
			seen[id] = true
		}
		dst = append(dst, r)
	}
	return dst, dropped
}
