// Package service provides the core business service that implements
// the dependencies required by the HTTP API: it owns the rating pipeline,
// its saga coordination, and the read view the API serves from.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/fieldrank/fieldrank/internal/adapters/invoke"
	"github.com/fieldrank/fieldrank/internal/adapters/metadata"
	"github.com/fieldrank/fieldrank/internal/adapters/sink"
	"github.com/fieldrank/fieldrank/internal/adapters/store"
	"github.com/fieldrank/fieldrank/internal/domain/model"
	"github.com/fieldrank/fieldrank/internal/domain/rating"
	"github.com/fieldrank/fieldrank/internal/events"
	"github.com/fieldrank/fieldrank/internal/lifecycle"
	"github.com/fieldrank/fieldrank/internal/rankings"
	"github.com/fieldrank/fieldrank/internal/saga"
	"github.com/fieldrank/fieldrank/pkg/logger"
	"github.com/fieldrank/fieldrank/pkg/metrics"
)

// CachedCalculationID marks an outcome served from the result cache.
const CachedCalculationID = "cached"

// Default service configuration constants.
const (
	defaultSeasonStart   = "08-01"
	defaultSeasonEnd     = "12-31"
	defaultMatchPageSize = 500
	defaultMaxRankings   = 100
)

// CalculationRequest asks for the ratings of one period.
type CalculationRequest struct {
	// Period labels the calculation, e.g. "2025-10-04". Defaults to today.
	Period string `json:"period"`
	// StartDate and EndDate (YYYY-MM-DD) bound the match window. When empty
	// the season window for the period's year applies.
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	// Force skips the result cache.
	Force bool `json:"force"`
}

// CalculationOutcome reports one finished (or cache-served) calculation.
type CalculationOutcome struct {
	CalculationID string               `json:"calculation_id"`
	Period        string               `json:"period"`
	Cached        bool                 `json:"cached"`
	TotalMatches  int                  `json:"total_matches"`
	TotalTeams    int                  `json:"total_teams"`
	Results       []model.RatingResult `json:"results,omitempty"`
	Artifacts     []sink.Artifact      `json:"artifacts,omitempty"`
}

// Service implements the API dependencies for the rating system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store       store.Store
	tracker     *lifecycle.Tracker
	coordinator *saga.Coordinator
	publisher   *events.Publisher
	bus         *events.Bus
	artifacts   sink.Sink
	invoker     invoke.Invoker
	view        *rankings.View
	lookup      metadata.Lookup

	// Configuration
	seasonStart     string
	seasonEnd       string
	matchPageSize   int
	maxRankings     int
	busCapacity     int
	collectFunction string
	trackerOpts     []lifecycle.Option

	// State
	started bool
	cancel  context.CancelFunc

	// Logging
	logger logger.Logger

	now func() time.Time
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the record store. Defaults to the in-memory store.
func WithStore(s store.Store) Option {
	return func(svc *Service) {
		if s != nil {
			svc.store = s
		}
	}
}

// WithSink sets the artifact sink. Nil disables artifact publishing.
func WithSink(s sink.Sink) Option {
	return func(svc *Service) {
		svc.artifacts = s
	}
}

// WithInvoker sets the function invoker used for out-of-process steps.
func WithInvoker(i invoke.Invoker) Option {
	return func(svc *Service) {
		svc.invoker = i
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(svc *Service) {
		if log != nil {
			svc.logger = log
		}
	}
}

// WithMetadataLookup sets the team metadata source for result enrichment.
func WithMetadataLookup(l metadata.Lookup) Option {
	return func(svc *Service) {
		if l != nil {
			svc.lookup = l
		}
	}
}

// WithSeasonWindow sets the default match window bounds as MM-DD strings.
func WithSeasonWindow(start, end string) Option {
	return func(svc *Service) {
		if start != "" && end != "" {
			svc.seasonStart = start
			svc.seasonEnd = end
		}
	}
}

// WithMatchPageSize bounds one page of the match query.
func WithMatchPageSize(n int) Option {
	return func(svc *Service) {
		if n > 0 {
			svc.matchPageSize = n
		}
	}
}

// WithMaxRankingsLimit caps ranking reads.
func WithMaxRankingsLimit(n int) Option {
	return func(svc *Service) {
		if n > 0 {
			svc.maxRankings = n
		}
	}
}

// WithBusCapacity bounds the notification bus.
func WithBusCapacity(n int) Option {
	return func(svc *Service) {
		if n > 0 {
			svc.busCapacity = n
		}
	}
}

// WithTrackerOptions forwards options to the lifecycle tracker.
func WithTrackerOptions(opts ...lifecycle.Option) Option {
	return func(svc *Service) {
		svc.trackerOpts = append(svc.trackerOpts, opts...)
	}
}

// WithCollectFunction names the ingestion function the pipeline's collect
// step invokes before querying matches. Empty skips the invocation.
func WithCollectFunction(name string) Option {
	return func(svc *Service) {
		svc.collectFunction = name
	}
}

// WithClock overrides the service time source.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) {
		if now != nil {
			svc.now = now
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		seasonStart:   defaultSeasonStart,
		seasonEnd:     defaultSeasonEnd,
		matchPageSize: defaultMatchPageSize,
		maxRankings:   defaultMaxRankings,
		view:          rankings.NewView(),
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.store == nil {
		s.store = store.NewMem()
	}
	if s.lookup == nil {
		s.lookup = metadata.NewStoreLookup(s.store, s.logger)
	}
	if s.invoker == nil {
		s.invoker = invoke.NewRegistry()
	}

	s.logger.Info(ctx, "starting rating service...")

	s.tracker = lifecycle.NewTracker(s.store, s.logger, s.trackerOpts...)

	var busOpts []events.Option
	if s.busCapacity > 0 {
		busOpts = append(busOpts, events.WithCapacity(s.busCapacity))
	}
	s.bus = events.NewBus(s.logger, busOpts...)
	s.publisher = events.NewPublisher(s.store, s.bus, s.logger)

	s.coordinator = saga.NewCoordinator(s.store, s.logger,
		saga.Handlers{
			CollectMatches: s.handleCollectMatches,
			CalculateRPI:   s.handleCalculateRPI,
			PublishResults: s.handlePublishResults,
			UpdateCache:    s.handleUpdateCache,
		},
		saga.Compensators{
			RollbackMatches: s.rollbackMatches,
			RollbackRPI:     s.rollbackRPI,
			RollbackPublish: s.rollbackPublish,
			RollbackCache:   s.rollbackCache,
		},
	)

	busCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.bus.Start(busCtx)

	s.started = true
	s.logger.Info(ctx, "rating service started",
		logger.String("season_start", s.seasonStart),
		logger.String("season_end", s.seasonEnd),
		logger.Int("match_page_size", s.matchPageSize),
	)
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping rating service...")

	if s.bus != nil {
		s.bus.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.store != nil {
		if err := s.store.Close(ctx); err != nil {
			s.logger.Warn(ctx, "store close failed", logger.Err(err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "rating service stopped")
}

// Subscribe registers an event subscriber. Call before Start.
func (s *Service) Subscribe(eventType string, fn events.Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bus == nil {
		s.bus = events.NewBus(logger.Get())
	}
	s.bus.Subscribe(eventType, fn)
}

// RunCalculation computes ratings for the requested period. A fresh cached
// result short-circuits the computation unless the request forces a rerun.
// A concurrent run for the same period surfaces as *lifecycle.ConflictError.
func (s *Service) RunCalculation(ctx context.Context, req CalculationRequest) (CalculationOutcome, error) {
	req, err := s.normalize(req)
	if err != nil {
		return CalculationOutcome{}, err
	}
	log := s.logger.With(logger.String("period", req.Period))

	if !req.Force {
		if results, ok := s.tracker.LoadFreshCache(ctx, req.Period); ok {
			s.view.Replace(ctx, req.Period, CachedCalculationID, results)
			outcome := CalculationOutcome{
				CalculationID: CachedCalculationID,
				Period:        req.Period,
				Cached:        true,
				TotalTeams:    len(results),
				Results:       results,
			}
			// Downstream consumers get the same notification a fresh run
			// would produce.
			_, err := s.publisher.Publish(ctx, events.TypeResultsPublished, req.Period, map[string]any{
				"calculation_id": CachedCalculationID,
				"total_teams":    len(results),
			})
			if err != nil {
				log.Warn(ctx, "cached result notification failed", logger.Err(err))
			}
			return outcome, nil
		}
	}

	run, err := s.tracker.StartRun(ctx, req.Period)
	if err != nil {
		var conflict *lifecycle.ConflictError
		if errors.As(err, &conflict) {
			return CalculationOutcome{CalculationID: conflict.CalculationID, Period: req.Period}, err
		}
		return CalculationOutcome{}, err
	}

	outcome, err := s.compute(ctx, req, run)
	if err != nil {
		if ferr := s.tracker.FailRun(ctx, run.CalculationID); ferr != nil {
			log.Warn(ctx, "run failure bookkeeping failed", logger.Err(ferr))
		}
		return CalculationOutcome{}, err
	}
	return outcome, nil
}

// compute runs the full pipeline for an already-started run.
func (s *Service) compute(ctx context.Context, req CalculationRequest, run model.CalculationRun) (CalculationOutcome, error) {
	started := s.now()
	log := s.logger.With(
		logger.String("period", req.Period),
		logger.String("calculation_id", run.CalculationID))

	matches, err := s.collectMatches(ctx, req.StartDate, req.EndDate)
	if err != nil {
		return CalculationOutcome{}, fmt.Errorf("collect matches: %w", err)
	}
	log.Info(ctx, "collected matches", logger.Int("count", len(matches)))

	results, err := s.engineFor(run.CalculationID).Compute(ctx, matches)
	if err != nil {
		return CalculationOutcome{}, fmt.Errorf("compute ratings: %w", err)
	}

	if err := s.tracker.CompleteRun(ctx, run.CalculationID, len(matches), len(results)); err != nil {
		return CalculationOutcome{}, err
	}
	if err := s.tracker.SaveCache(ctx, req.Period, results, run.CalculationID); err != nil {
		log.Warn(ctx, "cache save failed", logger.Err(err))
	}
	if err := s.persistResults(ctx, req.Period, run.CalculationID, results); err != nil {
		return CalculationOutcome{}, err
	}

	outcome := CalculationOutcome{
		CalculationID: run.CalculationID,
		Period:        req.Period,
		TotalMatches:  len(matches),
		TotalTeams:    len(results),
		Results:       results,
	}

	if s.artifacts != nil {
		artifacts, err := s.artifacts.Write(ctx, s.resultSet(ctx, req.Period, run.CalculationID, results))
		if err != nil {
			return CalculationOutcome{}, fmt.Errorf("publish artifacts: %w", err)
		}
		outcome.Artifacts = artifacts
	}

	s.view.Replace(ctx, req.Period, run.CalculationID, results)

	if _, err := s.publisher.Publish(ctx, events.TypeCalculationCompleted, req.Period, map[string]any{
		"calculation_id": run.CalculationID,
		"total_teams":    len(results),
		"total_matches":  len(matches),
	}); err != nil {
		log.Warn(ctx, "completion notification failed", logger.Err(err))
	}

	metrics.AddMatchesProcessed(len(matches))
	metrics.SetTeamsRanked(len(results))
	metrics.ObserveCalculationDuration(s.now().Sub(started).Seconds())

	log.Info(ctx, "calculation complete",
		logger.Int("total_matches", len(matches)),
		logger.Int("total_teams", len(results)))
	return outcome, nil
}

// IngestMatches validates and stores a batch of matches, then announces the
// collection. The batch is atomic from the caller's view: one invalid match
// rejects the whole request.
func (s *Service) IngestMatches(ctx context.Context, matches []model.Match) (int, error) {
	docs := make([]store.Doc, 0, len(matches))
	for _, m := range matches {
		if m.MatchID == "" || m.Date == "" || !m.Valid() {
			return 0, fmt.Errorf("match %q: %w", m.MatchID, ErrInvalidMatch)
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = s.now()
		}
		docs = append(docs, store.Doc{ID: m.MatchID, Item: m})
	}
	if len(docs) == 0 {
		return 0, nil
	}
	if err := s.store.BatchPut(ctx, store.KindMatch, docs); err != nil {
		return 0, fmt.Errorf("ingest matches: %w", err)
	}

	if _, err := s.publisher.Publish(ctx, events.TypeMatchesCollected, s.normalizePeriod(""), map[string]any{
		"match_count": len(docs),
	}); err != nil {
		s.logger.Warn(ctx, "collection notification failed", logger.Err(err))
	}
	return len(docs), nil
}

// collectMatches pages through completed matches inside the date window.
func (s *Service) collectMatches(ctx context.Context, startDate, endDate string) ([]model.Match, error) {
	var out []model.Match
	token := ""
	for {
		page, err := s.store.Query(ctx, store.Query{
			Kind:       store.KindMatch,
			Conditions: map[string]string{"status": string(model.MatchCompleted)},
			Range:      &store.Range{Field: "date", From: startDate, To: endDate},
			Limit:      s.matchPageSize,
			StartToken: token,
		})
		if err != nil {
			return nil, err
		}
		matches, err := store.DecodeAll[model.Match](page.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
		if page.NextToken == "" {
			return out, nil
		}
		token = page.NextToken
	}
}

func (s *Service) persistResults(ctx context.Context, period, calculationID string, results []model.RatingResult) error {
	if len(results) == 0 {
		return nil
	}
	docs := make([]store.Doc, len(results))
	for i, r := range results {
		docs[i] = store.Doc{
			ID: fmt.Sprintf("%s#%s", period, r.TeamID),
			Item: storedResult{
				RatingResult:  r,
				Period:        period,
				CalculationID: calculationID,
			},
		}
	}
	if err := s.store.BatchPut(ctx, store.KindResult, docs); err != nil {
		return fmt.Errorf("persist results: %w", err)
	}
	return nil
}

// storedResult is the persisted form of one ranked row.
type storedResult struct {
	model.RatingResult `bson:",inline"`
	Period             string `bson:"period"`
	CalculationID      string `bson:"calculation_id"`
}

// engineFor builds a rating engine whose progress checkpoints land on the
// given run.
func (s *Service) engineFor(runID string) *rating.Engine {
	return rating.NewEngine(
		rating.WithMetadataLookup(s.lookup),
		rating.WithProgress(func(matchesProcessed, teamsCalculated int) {
			s.tracker.RecordProgress(context.Background(), runID, matchesProcessed, teamsCalculated)
		}),
	)
}

// resultSet assembles the artifact payload for a period's results.
func (s *Service) resultSet(ctx context.Context, period, calculationID string, results []model.RatingResult) sink.ResultSet {
	totalMatches := 0
	if run, err := s.tracker.Run(ctx, calculationID); err == nil {
		totalMatches = run.TotalMatches
	}
	return sink.ResultSet{
		CalculationID: calculationID,
		Period:        period,
		Timestamp:     s.now().UTC().Format(time.RFC3339),
		TotalTeams:    len(results),
		TotalMatches:  totalMatches,
		Results:       results,
	}
}

// TopN returns the best n ranked rows for a period.
func (s *Service) TopN(ctx context.Context, period string, n int) ([]model.RatingResult, error) {
	if n <= 0 || n > s.maxRankings {
		n = s.maxRankings
	}
	return s.view.TopN(ctx, s.normalizePeriod(period), n)
}

// Rank returns the ranked row for one team in a period.
func (s *Service) Rank(ctx context.Context, period, teamID string) (model.RatingResult, error) {
	return s.view.Rank(ctx, s.normalizePeriod(period), teamID)
}

// Run returns the bookkeeping record for a calculation run.
func (s *Service) Run(ctx context.Context, runID string) (model.CalculationRun, error) {
	return s.tracker.Run(ctx, runID)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context, period string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	period = s.normalizePeriod(period)
	stats := map[string]any{
		"started":        s.started,
		"period":         period,
		"teams_ranked":   s.view.Count(ctx, period),
		"season_start":   s.seasonStart,
		"season_end":     s.seasonEnd,
		"max_rankings":   s.maxRankings,
		"match_pagesize": s.matchPageSize,
	}
	if id, err := s.view.CalculationID(ctx, period); err == nil {
		stats["calculation_id"] = id
	}
	return stats
}

var periodRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

/// normalize fills request defaults: today's period and the season window.
// The period must be a YYYY-MM-DD date; callers below the HTTP layer reach
// this path directly, so the shape is checked here too.
func (s *Service) normalize(req CalculationRequest) (CalculationRequest, error) {
	req.Period = s.normalizePeriod(req.Period)
	if !periodRe.MatchString(req.Period) {
		return req, fmt.Errorf("%q: %w", req.Period, ErrInvalidPeriod)
	}
	year := req.Period[:4]
	if req.StartDate == "" {
		req.StartDate = year + "-" + s.seasonStart
	}
	if req.EndDate == "" {
		req.EndDate = year + "-" + s.seasonEnd
	}
	return req, nil
}

func (s *Service) normalizePeriod(period string) string {
	if period == "" {
		return s.now().UTC().Format("2006-01-02")
	}
	return period
}
