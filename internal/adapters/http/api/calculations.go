package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	service "github.com/fieldrank/fieldrank/internal/app"
	"github.com/fieldrank/fieldrank/internal/lifecycle"
	"github.com/fieldrank/fieldrank/internal/saga"
)

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// CalculationsHandler handles calculation and pipeline requests.
type CalculationsHandler struct {
	deps Dependencies
}

// NewCalculationsHandler creates a new calculations handler.
func NewCalculationsHandler(deps Dependencies) *CalculationsHandler {
	return &CalculationsHandler{deps: deps}
}

func decodeCalculationRequest(r *http.Request) (service.CalculationRequest, error) {
	var req service.CalculationRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, errors.New("invalid request body")
		}
	}
	for _, d := range []string{req.Period, req.StartDate, req.EndDate} {
		if d != "" && !dateRe.MatchString(d) {
			return req, errors.New("dates must be YYYY-MM-DD")
		}
	}
	if req.StartDate != "" && req.EndDate != "" && req.StartDate > req.EndDate {
		return req, errors.New("start_date must not be after end_date")
	}
	return req, nil
}

// HandlePostCalculation handles POST /calculations requests.
func (h *CalculationsHandler) HandlePostCalculation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	req, err := decodeCalculationRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	outcome, err := h.deps.RunCalculation(r.Context(), req)
	if err != nil {
		var conflict *lifecycle.ConflictError
		if errors.As(err, &conflict) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"code":           "calculation_in_progress",
				"calculation_id": conflict.CalculationID,
				"period":         conflict.Period,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "calculation_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// HandleGetCalculation handles GET /calculations/{id} requests.
func (h *CalculationsHandler) HandleGetCalculation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/calculations/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing calculation id"))
		return
	}

	run, err := h.deps.Run(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", errors.New("calculation not found"))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// HandlePostPipeline handles POST /pipelines requests.
func (h *CalculationsHandler) HandlePostPipeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	req, err := decodeCalculationRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	sagaID, err := h.deps.StartPipeline(r.Context(), req)
	if err != nil {
		var up *saga.UpstreamError
		if errors.As(err, &up) {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"code":        "pipeline_step_failed",
				"saga_id":     sagaID,
				"failed_step": string(up.Step),
				"message":     up.Error(),
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "pipeline_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"saga_id": sagaID, "status": string(saga.StatusCompleted)})
}

// HandleGetPipeline handles GET /pipelines/{id} requests.
func (h *CalculationsHandler) HandleGetPipeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/pipelines/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing saga id"))
		return
	}

	sg, err := h.deps.PipelineStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, saga.ErrSagaNotFound) {
			writeError(w, http.StatusNotFound, "not_found", errors.New("pipeline not found"))
			return
		}
		writeError(w, http.StatusInternalServerError, "pipeline_lookup_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, sg)
}
