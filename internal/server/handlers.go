package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/swingscan/swingscan/internal/cache"
	"github.com/swingscan/swingscan/internal/refresh"
	"github.com/swingscan/swingscan/internal/screener"
)

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "swingscan",
	})
}

// planResponse is the payload served for a trade-plan request.
type planResponse struct {
	Symbol    string          `json:"symbol"`
	Plan      json.RawMessage `json:"plan"`
	UpdatedAt time.Time       `json:"updated_at"`
	Source    string          `json:"source"`
	Refreshed bool            `json:"refreshed"`
	Degraded  bool            `json:"degraded"`
}

// handleGetPlan serves the trade plan for a symbol. Viewing a plan counts as
// a refresh trigger: a stale plan is regenerated before serving, and when
// regeneration fails the last cached plan is served flagged as degraded.
// GET /api/plans/{symbol}
func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	symbol := normalizeSymbol(chi.URLParam(r, "symbol"))
	if symbol == "" {
		s.writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}

	outcome, err := s.coordinator.RefreshPlan(r.Context(), symbol, cache.SourcePageView)
	if outcome == nil {
		s.log.Error().Err(err).Str("symbol", symbol).Msg("Plan unavailable")
		s.writeError(w, http.StatusBadGateway, "plan unavailable: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, planResponse{
		Symbol:    symbol,
		Plan:      outcome.Payload,
		UpdatedAt: outcome.UpdatedAt,
		Source:    outcome.Source,
		Refreshed: outcome.Refreshed,
		Degraded:  outcome.Degraded,
	})
}

// handleRefreshPlan forces a staleness-checked refresh of a symbol's trade
// plan on user demand.
// POST /api/refresh/{symbol}
func (s *Server) handleRefreshPlan(w http.ResponseWriter, r *http.Request) {
	symbol := normalizeSymbol(chi.URLParam(r, "symbol"))
	if symbol == "" {
		s.writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}

	outcome, err := s.coordinator.RefreshPlan(r.Context(), symbol, cache.SourceUser)
	if outcome == nil {
		s.log.Error().Err(err).Str("symbol", symbol).Msg("Refresh failed")
		s.writeError(w, http.StatusBadGateway, "refresh failed: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, planResponse{
		Symbol:    symbol,
		Plan:      outcome.Payload,
		UpdatedAt: outcome.UpdatedAt,
		Source:    outcome.Source,
		Refreshed: outcome.Refreshed,
		Degraded:  outcome.Degraded,
	})
}

// screenerRow is one row of the screener listing.
type screenerRow struct {
	Symbol    string           `json:"symbol"`
	Score     int              `json:"score"`
	SetupType string           `json:"setup_type"`
	Pass      bool             `json:"pass"`
	Result    *screener.Result `json:"result"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// handleScreener lists cached screener results sorted by score, best first.
// Only passing candidates are returned unless ?all=true.
// GET /api/screener
func (s *Server) handleScreener(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListByPrefix(cache.ScreenerPrefix)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list screener entries")
		s.writeError(w, http.StatusInternalServerError, "failed to list screener results")
		return
	}
	includeAll := r.URL.Query().Get("all") == "true"

	rows := make([]screenerRow, 0, len(entries))
	for _, entry := range entries {
		var result screener.Result
		if err := json.Unmarshal(entry.Payload, &result); err != nil {
			s.log.Warn().Err(err).Str("key", entry.Key).Msg("Skipping undecodable screener entry")
			continue
		}
		if !result.Pass && !includeAll {
			continue
		}
		rows = append(rows, screenerRow{
			Symbol:    result.Symbol,
			Score:     result.Score,
			SetupType: result.SetupType,
			Pass:      result.Pass,
			Result:    &result,
			UpdatedAt: entry.UpdatedAt,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].Symbol < rows[j].Symbol
	})

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(rows),
		"results": rows,
	})
}

// handleRuns returns recent batch-run summaries, newest first.
// GET /api/runs
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	records, err := s.history.Recent(20)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list run history")
		s.writeError(w, http.StatusInternalServerError, "failed to list run history")
		return
	}
	if records == nil {
		records = []refresh.RunRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(records),
		"runs":  records,
	})
}

// normalizeSymbol uppercases and trims a ticker symbol from the URL.
func normalizeSymbol(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
