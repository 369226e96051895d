package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quadrat-io/trapline/internal/config"
	"github.com/quadrat-io/trapline/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "trapline",
	Short: "NEON ground-beetle trap data pipeline",
	Long: "Downloads the carabid pitfall-trap tables from the NEON data portal,\n" +
		"reconciles the three identification tiers, and aggregates per-trap\n" +
		"beetle counts.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// openCache opens and migrates the local cache database.
func openCache(cmd *cobra.Command) (*store.Cache, error) {
	cache, err := store.Open(cfg.Cache.Path)
	if err != nil {
		return nil, err
	}
	if err := cache.Migrate(cmd.Context()); err != nil {
		cache.Close()
		return nil, err
	}
	return cache, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
