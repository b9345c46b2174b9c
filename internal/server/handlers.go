package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/coinwatch/internal/history"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "coinwatch",
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleStatus handles engine status requests
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	streamConnected := false
	if s.stream != nil {
		streamConnected = s.stream.IsConnected()
	}

	response := map[string]interface{}{
		"status":           "running",
		"engine":           s.engine.Status(),
		"stream_connected": streamConnected,
		"memory": map[string]interface{}{
			"alloc_mb": m.Alloc / 1024 / 1024,
			"sys_mb":   m.Sys / 1024 / 1024,
			"num_gc":   m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handlePositions returns all open positions
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.positions.GetAll()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load positions")
		s.writeError(w, http.StatusInternalServerError, "failed to load positions")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(positions),
		"positions": positions,
	})
}

// handleTrades returns recent closed trades
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	trades, err := s.trades.GetRecent(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load trades")
		s.writeError(w, http.StatusInternalServerError, "failed to load trades")
		return
	}

	totalPnL, err := s.trades.GetTotalRealizedPnL()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to compute realized PnL")
		s.writeError(w, http.StatusInternalServerError, "failed to compute realized pnl")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":              len(trades),
		"total_realized_pnl": totalPnL,
		"trades":             trades,
	})
}

// handlePerformance returns portfolio performance for a history bucket
func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	bucket := history.BucketDaily
	switch r.URL.Query().Get("bucket") {
	case "", "daily":
	case "hourly":
		bucket = history.BucketHourly
	default:
		s.writeError(w, http.StatusBadRequest, "bucket must be hourly or daily")
		return
	}

	perf, err := s.history.Performance(bucket)
	if err != nil {
		s.log.Error().Err(err).Str("bucket", string(bucket)).Msg("Failed to compute performance")
		s.writeError(w, http.StatusInternalServerError, "failed to compute performance")
		return
	}
	s.writeJSON(w, http.StatusOK, perf)
}

// handleAssetPerformance returns aggregate trade stats for one asset
func (s *Server) handleAssetPerformance(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")

	perf, err := s.trades.GetPerformance(asset)
	if err != nil {
		s.log.Error().Err(err).Str("asset", asset).Msg("Failed to load asset performance")
		s.writeError(w, http.StatusInternalServerError, "failed to load asset performance")
		return
	}
	if perf == nil || perf.TradeCount == 0 {
		s.writeError(w, http.StatusNotFound, "no closed trades for asset")
		return
	}

	s.writeJSON(w, http.StatusOK, perf)
}

// handleReconcile triggers a reconcile cycle on demand
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	started, err := s.engine.TryRunCycle(r.Context(), "manual")
	if err != nil {
		s.log.Error().Err(err).Msg("Manual reconcile failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !started {
		s.writeJSON(w, http.StatusConflict, map[string]string{
			"status": "busy",
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "completed",
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
