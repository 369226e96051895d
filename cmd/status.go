package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quadrat-io/trapline/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache coverage and sync history",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("status"); err != nil {
			return err
		}

		cache, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer cache.Close()

		inventory, err := cache.Inventory(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		runs, err := cache.ListSyncs(ctx, 10)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		if len(inventory) == 0 && len(runs) == 0 {
			zap.L().Info("cache is empty, run 'trapline fetch' to download trap tables")
			return nil
		}

		formatInventory(os.Stdout, inventory)
		fmt.Println()
		formatSyncRuns(os.Stdout, runs)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// formatInventory writes per-table cache coverage to w.
func formatInventory(out io.Writer, rows []store.InventoryRow) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TABLE\tSITE\tMONTHS\tBYTES\tFETCHED")
	_, _ = fmt.Fprintln(w, "-----\t----\t------\t-----\t-------")
	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			r.TableName,
			r.SiteID,
			r.Months,
			r.Bytes,
			r.FetchedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatSyncRuns writes recent sync history to w.
func formatSyncRuns(out io.Writer, runs []store.SyncRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STARTED\tSTATUS\tSITES\tMONTHS\tFILES\tBYTES\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "-------\t------\t-----\t------\t-----\t-----\t--------\t-----")
	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.StartedAt.Format("2006-01-02 15:04"),
			r.Status,
			r.Sites,
			r.Months,
			r.Files,
			r.Bytes,
			dur,
			truncate(r.Error, 60),
		)
	}
	_ = w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
