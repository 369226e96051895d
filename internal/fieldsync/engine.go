// Package fieldsync downloads portal site-month files into the local cache.
package fieldsync

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quadrat-io/trapline/internal/carabid"
	"github.com/quadrat-io/trapline/internal/neon"
	"github.com/quadrat-io/trapline/internal/store"
)

// Engine orchestrates portal sync runs.
type Engine struct {
	client *neon.Client
	cache  *store.Cache
}

// RunOpts selects which site-months to sync and how.
type RunOpts struct {
	Sites       []string // restrict to specific site codes
	StartMonth  string   // inclusive YYYY-MM lower bound
	EndMonth    string   // inclusive YYYY-MM upper bound
	Concurrency int      // parallel site-month downloads
	Force       bool     // re-download even when the cached revision matches
}

// NewEngine creates a new sync engine.
func NewEngine(client *neon.Client, cache *store.Cache) *Engine {
	return &Engine{client: client, cache: cache}
}

type siteMonth struct {
	site  string
	month string
}

// Run discovers available site-months, downloads the four tables for each,
// and records the run in the sync log. Unchanged files are skipped unless
// opts.Force is set.
func (e *Engine) Run(ctx context.Context, opts RunOpts) (*store.SyncStats, error) {
	log := zap.L().With(zap.String("component", "fieldsync.engine"))

	work, siteCount, err := e.plan(ctx, opts, log)
	if err != nil {
		return nil, err
	}
	if len(work) == 0 {
		log.Info("no site-months to sync")
		return &store.SyncStats{}, nil
	}

	log.Info("starting sync",
		zap.Int("sites", siteCount),
		zap.Int("months", len(work)),
	)

	syncID, err := e.cache.StartSync(ctx)
	if err != nil {
		return nil, err
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	var files, bytes atomic.Int64

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, sm := range work {
		g.Go(func() error {
			n, b, err := e.syncMonth(gctx, sm, opts.Force, log)
			if err != nil {
				return err
			}
			files.Add(int64(n))
			bytes.Add(b)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if logErr := e.cache.FailSync(ctx, syncID, err.Error()); logErr != nil {
			log.Error("failed to record sync failure", zap.Error(logErr))
		}
		return nil, err
	}

	stats := store.SyncStats{
		Sites:  siteCount,
		Months: len(work),
		Files:  int(files.Load()),
		Bytes:  bytes.Load(),
	}
	if err := e.cache.CompleteSync(ctx, syncID, stats); err != nil {
		log.Error("failed to record sync completion", zap.Error(err))
	}

	log.Info("sync complete",
		zap.Int("sites", stats.Sites),
		zap.Int("months", stats.Months),
		zap.Int("files", stats.Files),
		zap.Int64("bytes", stats.Bytes),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &stats, nil
}

// plan resolves product availability against the requested sites and month
// range.
func (e *Engine) plan(ctx context.Context, opts RunOpts, log *zap.Logger) ([]siteMonth, int, error) {
	sites, err := e.client.Sites(ctx)
	if err != nil {
		return nil, 0, err
	}

	wanted := make(map[string]bool, len(opts.Sites))
	for _, s := range opts.Sites {
		wanted[s] = true
	}

	var work []siteMonth
	seen := make(map[string]bool)
	for _, site := range sites {
		if len(wanted) > 0 && !wanted[site.SiteCode] {
			continue
		}
		delete(wanted, site.SiteCode)
		for _, month := range site.AvailableMonths {
			if opts.StartMonth != "" && month < opts.StartMonth {
				continue
			}
			if opts.EndMonth != "" && month > opts.EndMonth {
				continue
			}
			work = append(work, siteMonth{site: site.SiteCode, month: month})
			seen[site.SiteCode] = true
		}
	}
	for code := range wanted {
		log.Warn("requested site not in product availability", zap.String("site", code))
	}

	sort.Slice(work, func(i, j int) bool {
		if work[i].site != work[j].site {
			return work[i].site < work[j].site
		}
		return work[i].month < work[j].month
	})
	return work, len(seen), nil
}

// syncMonth downloads the four tables for one site-month. It returns the
// number of files written and their total size.
func (e *Engine) syncMonth(ctx context.Context, sm siteMonth, force bool, log *zap.Logger) (int, int64, error) {
	manifest, err := e.client.Files(ctx, sm.site, sm.month)
	if err != nil {
		return 0, 0, err
	}

	written := 0
	var bytes int64
	for _, table := range carabid.Tables {
		meta, ok := neon.TableFile(manifest, table)
		if !ok {
			// Not every table is published for every month; traps with no
			// pinned individuals have no pinning file.
			log.Debug("table not published",
				zap.String("site", sm.site),
				zap.String("month", sm.month),
				zap.String("table", table),
			)
			continue
		}

		etag := ""
		if !force {
			stamp, err := e.cache.GetStamp(ctx, table, sm.site, sm.month)
			if err != nil {
				return written, bytes, err
			}
			if stamp != nil {
				if stamp.MD5 != "" && stamp.MD5 == meta.MD5 {
					log.Debug("file unchanged",
						zap.String("site", sm.site),
						zap.String("month", sm.month),
						zap.String("table", table),
					)
					continue
				}
				etag = stamp.ETag
			}
		}

		data, newETag, changed, err := e.client.FetchFileIfChanged(ctx, meta, etag)
		if err != nil {
			return written, bytes, eris.Wrapf(err, "fieldsync: fetch %s %s %s", sm.site, sm.month, table)
		}
		if !changed {
			continue
		}

		err = e.cache.PutFile(ctx, store.RawFile{
			TableName: table,
			SiteID:    sm.site,
			Month:     sm.month,
			FileName:  meta.Name,
			ETag:      newETag,
			MD5:       meta.MD5,
			Data:      data,
		})
		if err != nil {
			return written, bytes, err
		}
		written++
		bytes += int64(len(data))
	}

	log.Info("site-month synced",
		zap.String("site", sm.site),
		zap.String("month", sm.month),
		zap.Int("files", written),
	)
	return written, bytes, nil
}
