// Package http implements the HTTP surface of the rank hub.
package http

import (
	"net/http"
	"time"

	"github.com/rankhub/discord-rank-hub/internal/application/query"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not_found", "Unknown endpoint")
		return
	}

	info := map[string]interface{}{
		"name":    "Discord Rank Hub API",
		"version": "v1",
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
		"endpoints": map[string]string{
			"health":       "/healthz",
			"ranking":      "/api/v1/ranking",
			"interactions": "/interactions",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	// Default health response
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING API
// ══════════════════════════════════════════════════════════════════════════════

// rankingRow is the API representation of one ranked member.
type rankingRow struct {
	Rank     int    `json:"rank"`
	MemberID string `json:"member_id"`
	Name     string `json:"name,omitempty"`
}

// handleGetRanking serves GET /api/v1/ranking.
func (s *Server) handleGetRanking(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetRankingHandler == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "Ranking API is not configured")
		return
	}

	q := query.GetRankingQuery{
		Limit:  getQueryParamInt(r, "limit", 0),
		Offset: getQueryParamInt(r, "offset", 0),
	}

	result, err := s.deps.GetRankingHandler.Handle(r.Context(), q)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	rows := make([]rankingRow, 0, len(result.Rows))
	for _, row := range result.Rows {
		rows = append(rows, rankingRow{
			Rank:     int(row.Rank),
			MemberID: string(row.Member),
			Name:     row.Name,
		})
	}

	writeJSONWithMeta(w, r, http.StatusOK, rows, &ResponseMeta{
		TotalCount: result.Total,
		HasMore:    q.Offset+len(rows) < result.Total,
	})
}
