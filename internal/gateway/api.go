// ABOUTME: Admin HTTP API exposing the usage ledger
// ABOUTME: Serves usage totals and widget session records behind the admin token

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/chatia-gateway/internal/auth"
	"github.com/2389/chatia-gateway/internal/store"
)

const (
	defaultSessionListLimit = 50
	maxSessionListLimit     = 500
)

// UsageResponse is the body of GET /api/stats/usage.
type UsageResponse struct {
	store.UsageStats
	ActiveSessions int    `json:"active_sessions"`
	Model          string `json:"model"`
}

// SessionsResponse is the body of GET /api/stats/sessions.
type SessionsResponse struct {
	Sessions []*store.WidgetSession `json:"sessions"`
}

func (g *Gateway) registerStatsRoutes(mux *http.ServeMux) {
	admin := auth.AdminTokenMiddleware(g.config.Auth.AdminToken)
	mux.Handle("GET /api/stats/usage", admin(http.HandlerFunc(g.handleUsageStats)))
	mux.Handle("GET /api/stats/sessions", admin(http.HandlerFunc(g.handleListSessions)))
}

// handleUsageStats handles GET /api/stats/usage?session_id=&since=&until=
// with since and until in RFC 3339.
func (g *Gateway) handleUsageStats(w http.ResponseWriter, r *http.Request) {
	var filter store.UsageFilter
	q := r.URL.Query()

	if id := q.Get("session_id"); id != "" {
		filter.SessionID = &id
	}

	var err error
	if filter.Since, err = parseTimeParam(q.Get("since")); err != nil {
		sendJSONError(w, fmt.Sprintf("invalid since: %v", err), http.StatusBadRequest)
		return
	}
	if filter.Until, err = parseTimeParam(q.Get("until")); err != nil {
		sendJSONError(w, fmt.Sprintf("invalid until: %v", err), http.StatusBadRequest)
		return
	}

	stats, err := g.store.GetUsageStats(r.Context(), filter)
	if err != nil {
		g.logger.Error("failed to get usage stats", "error", err)
		sendJSONError(w, "failed to get usage stats", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, UsageResponse{
		UsageStats:     *stats,
		ActiveSessions: g.conversation.ActiveSessions(),
		Model:          g.model,
	})
}

// handleListSessions handles GET /api/stats/sessions?active=true&limit=N
func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SessionFilter{
		ActiveOnly: q.Get("active") == "true",
		Limit:      defaultSessionListLimit,
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			sendJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Limit = min(limit, maxSessionListLimit)
	}

	sessions, err := g.store.ListSessions(r.Context(), filter)
	if err != nil {
		g.logger.Error("failed to list sessions", "error", err)
		sendJSONError(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []*store.WidgetSession{}
	}

	writeJSON(w, http.StatusOK, SessionsResponse{Sessions: sessions})
}

func parseTimeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError sends a JSON error response.
func sendJSONError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
