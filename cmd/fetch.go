package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quadrat-io/trapline/internal/fetcher"
	"github.com/quadrat-io/trapline/internal/fieldsync"
	"github.com/quadrat-io/trapline/internal/neon"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download trap tables from the data portal",
	Long: `Download the four carabid tables for every available site-month into
the local cache.

By default every site the product covers is synced. Use --site to restrict
to specific sites, or --site-file to read a curated YAML site list.
Files whose published checksum matches the cached copy are skipped;
--force re-downloads everything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		opts, err := parseFetchOpts(cmd)
		if err != nil {
			return err
		}

		cache, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer cache.Close()

		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  cfg.NEON.UserAgent,
			MaxRetries: 3,
		})
		client := neon.NewClient(cfg.NEON.BaseURL, cfg.NEON.ProductCode, f)
		engine := fieldsync.NewEngine(client, cache)

		zap.L().Info("starting fetch",
			zap.Strings("sites", opts.Sites),
			zap.String("start_month", opts.StartMonth),
			zap.String("end_month", opts.EndMonth),
			zap.Bool("force", opts.Force),
		)

		stats, err := engine.Run(ctx, opts)
		if err != nil {
			return eris.Wrap(err, "fetch")
		}

		fmt.Printf("Fetched %d files (%d bytes) across %d sites, %d site-months\n",
			stats.Files, stats.Bytes, stats.Sites, stats.Months)
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringSlice("site", nil, "site codes to sync (default: all available)")
	fetchCmd.Flags().String("site-file", "", "YAML file listing site codes")
	fetchCmd.Flags().String("start", "", "inclusive start month (YYYY-MM)")
	fetchCmd.Flags().String("end", "", "inclusive end month (YYYY-MM)")
	fetchCmd.Flags().Int("concurrency", 0, "parallel site-month downloads (default from config)")
	fetchCmd.Flags().Bool("force", false, "re-download files even when unchanged")
	rootCmd.AddCommand(fetchCmd)
}

// parseFetchOpts merges fetch flags over the configured sync defaults.
func parseFetchOpts(cmd *cobra.Command) (fieldsync.RunOpts, error) {
	sites, _ := cmd.Flags().GetStringSlice("site")
	siteFile, _ := cmd.Flags().GetString("site-file")
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	force, _ := cmd.Flags().GetBool("force")

	opts := fieldsync.RunOpts{
		Sites:       cfg.Sync.Sites,
		StartMonth:  cfg.Sync.StartMonth,
		EndMonth:    cfg.Sync.EndMonth,
		Concurrency: cfg.Sync.Concurrency,
		Force:       force,
	}
	if len(sites) > 0 {
		opts.Sites = sites
	}
	if start != "" {
		opts.StartMonth = start
	}
	if end != "" {
		opts.EndMonth = end
	}
	if concurrency > 0 {
		opts.Concurrency = concurrency
	}

	if siteFile == "" {
		siteFile = cfg.Sync.SiteFile
	}
	if siteFile != "" && len(sites) == 0 {
		listed, err := fieldsync.LoadSiteList(siteFile)
		if err != nil {
			return fieldsync.RunOpts{}, err
		}
		opts.Sites = listed
	}

	return opts, nil
}
