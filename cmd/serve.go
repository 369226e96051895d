package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quadrat-io/trapline/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve counts and sync status over HTTP",
	Long: `Start a read-only HTTP API over the local cache.

Endpoints:
  GET /health        liveness check
  GET /v1/sync       recent sync runs
  GET /v1/inventory  cached table coverage
  GET /v1/counts     aggregated counts (repeat ?site= to filter,
                     ?format=csv for CSV instead of JSON)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		cache, err := openCache(cmd)
		if err != nil {
			return err
		}
		defer cache.Close()

		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: server.New(cache).Handler(),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(cmd.Context())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
