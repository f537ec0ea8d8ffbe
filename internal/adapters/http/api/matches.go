// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/fieldrank/fieldrank/internal/app"
	"github.com/fieldrank/fieldrank/internal/domain/model"
)

// MatchesHandler handles match ingestion requests.
type MatchesHandler struct {
	deps Dependencies
}

// NewMatchesHandler creates a new matches handler.
func NewMatchesHandler(deps Dependencies) *MatchesHandler {
	return &MatchesHandler{deps: deps}
}

type ingestRequest struct {
	Matches []model.Match `json:"matches"`
}

// HandlePostMatches handles POST /matches requests.
func (h *MatchesHandler) HandlePostMatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("invalid request body"))
		return
	}
	if len(req.Matches) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("no matches provided"))
		return
	}

	count, err := h.deps.IngestMatches(r.Context(), req.Matches)
	if err != nil {
		if errors.Is(err, service.ErrInvalidMatch) {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "ingest_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ingested": count})
}
