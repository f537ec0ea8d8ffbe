// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/fieldrank/fieldrank/internal/rankings"
)

// RankingsHandler handles ranking read requests.
type RankingsHandler struct {
	deps Dependencies
}

// NewRankingsHandler creates a new rankings handler.
func NewRankingsHandler(deps Dependencies) *RankingsHandler {
	return &RankingsHandler{deps: deps}
}

// HandleGetRankings handles GET /rankings?period=YYYY-MM-DD&limit=N requests.
func (h *RankingsHandler) HandleGetRankings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	period := r.URL.Query().Get("period")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}

	rows, err := h.deps.TopN(r.Context(), period, limit)
	if err != nil {
		if errors.Is(err, rankings.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", errors.New("no rankings for period"))
			return
		}
		writeError(w, http.StatusInternalServerError, "rankings_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"period":   period,
		"count":    len(rows),
		"rankings": rows,
	})
}

// HandleGetTeam handles GET /rankings/{team}?period=YYYY-MM-DD requests.
func (h *RankingsHandler) HandleGetTeam(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	teamID := strings.TrimPrefix(r.URL.Path, "/rankings/")
	if teamID == "" || strings.Contains(teamID, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing team id"))
		return
	}

	row, err := h.deps.Rank(r.Context(), r.URL.Query().Get("period"), teamID)
	if err != nil {
		if errors.Is(err, rankings.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", errors.New("team not ranked"))
			return
		}
		writeError(w, http.StatusInternalServerError, "ranking_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}
