// Package server exposes cache status, sync history, and aggregated counts
// over HTTP.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/quadrat-io/trapline/internal/carabid"
	"github.com/quadrat-io/trapline/internal/sink"
	"github.com/quadrat-io/trapline/internal/store"
)

// Server answers read-only API requests from the local cache.
type Server struct {
	cache *store.Cache
}

// New creates a server over the cache.
func New(cache *store.Cache) *Server {
	return &Server{cache: cache}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/sync", s.handleSyncRuns)
		r.Get("/inventory", s.handleInventory)
		r.Get("/counts", s.handleCounts)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSyncRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 500")
			return
		}
		limit = n
	}

	runs, err := s.cache.ListSyncs(r.Context(), limit)
	if err != nil {
		serverError(w, "list sync runs", err)
		return
	}
	if runs == nil {
		runs = []store.SyncRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	rows, err := s.cache.Inventory(r.Context())
	if err != nil {
		serverError(w, "inventory", err)
		return
	}
	if rows == nil {
		rows = []store.InventoryRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory": rows})
}

// handleCounts runs the pipeline over the cached tables and returns the
// aggregated counts with the integrity report. Repeat ?site= params restrict
// the run to those sites; ?format=csv returns the count table alone in the
// canonical column order.
func (s *Server) handleCounts(w http.ResponseWriter, r *http.Request) {
	sites := r.URL.Query()["site"]
	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "csv" {
		writeError(w, http.StatusBadRequest, "format must be json or csv")
		return
	}

	pipe := carabid.NewPipeline(s.cache.Provider(sites...))
	res, err := pipe.Run(r.Context(), carabid.RunOpts{})
	if err != nil {
		serverError(w, "counts", err)
		return
	}

	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		if err := sink.WriteCSV(w, res.Counts); err != nil {
			zap.L().Error("server: write csv counts", zap.Error(err))
		}
		return
	}

	counts := res.Counts
	if counts == nil {
		counts = []carabid.CountRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"counts":    counts,
		"integrity": res.Integrity,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func serverError(w http.ResponseWriter, op string, err error) {
	zap.L().Error("server: "+op+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
