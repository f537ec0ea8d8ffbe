// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/fieldrank/fieldrank/internal/app"
	"github.com/fieldrank/fieldrank/internal/domain/model"
	"github.com/fieldrank/fieldrank/internal/saga"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// RunCalculation computes (or serves from cache) one period's ratings.
	RunCalculation(ctx context.Context, req service.CalculationRequest) (service.CalculationOutcome, error)

	// StartPipeline runs the calculation as a compensated saga.
	StartPipeline(ctx context.Context, req service.CalculationRequest) (string, error)

	// PipelineStatus returns the saga record for a pipeline run.
	PipelineStatus(ctx context.Context, sagaID string) (saga.Saga, error)

	// Run returns the bookkeeping record for a calculation run.
	Run(ctx context.Context, runID string) (model.CalculationRun, error)

	// IngestMatches validates and stores a batch of matches.
	IngestMatches(ctx context.Context, matches []model.Match) (int, error)

	// Read operations expose ranking data.
	TopN(ctx context.Context, period string, n int) ([]model.RatingResult, error)
	Rank(ctx context.Context, period, teamID string) (model.RatingResult, error)

	// GetStats returns service statistics for monitoring.
	GetStats(ctx context.Context, period string) map[string]any
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler       *HealthHandler
	statsHandler        *StatsHandler
	calculationsHandler *CalculationsHandler
	rankingsHandler     *RankingsHandler
	matchesHandler      *MatchesHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:       NewHealthHandler(),
		statsHandler:        NewStatsHandler(deps),
		calculationsHandler: NewCalculationsHandler(deps),
		rankingsHandler:     NewRankingsHandler(deps),
		matchesHandler:      NewMatchesHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/calculations", MetricsMiddleware(s.calculationsHandler.HandlePostCalculation, "calculations"))
	mux.HandleFunc("/calculations/", MetricsMiddleware(s.calculationsHandler.HandleGetCalculation, "calculation"))
	mux.HandleFunc("/pipelines", MetricsMiddleware(s.calculationsHandler.HandlePostPipeline, "pipelines"))
	mux.HandleFunc("/pipelines/", MetricsMiddleware(s.calculationsHandler.HandleGetPipeline, "pipeline"))
	mux.HandleFunc("/matches", MetricsMiddleware(s.matchesHandler.HandlePostMatches, "matches"))
	mux.HandleFunc("/rankings", MetricsMiddleware(s.rankingsHandler.HandleGetRankings, "rankings"))
	mux.HandleFunc("/rankings/", MetricsMiddleware(s.rankingsHandler.HandleGetTeam, "team_ranking"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
