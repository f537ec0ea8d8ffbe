// Package lifecycle manages the state machine of a single rating computation
// run: at most one run per period may be in progress, progress is
// checkpointed, and completed results are cached behind a freshness window.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldrank/fieldrank/internal/adapters/store"
	"github.com/fieldrank/fieldrank/internal/domain/model"
	"github.com/fieldrank/fieldrank/pkg/logger"
	"github.com/fieldrank/fieldrank/pkg/metrics"
)

// Default tracker configuration constants.
const (
	defaultFreshnessWindow = time.Hour
	defaultRunTTL          = 2 * time.Hour
	defaultCacheTTL        = 24 * time.Hour

	guardPrefix    = "guard#"
	cacheKeyPrefix = "rpi_calculation_"
)

// guard is the single-flight record for one period. Its id is derived from
// the period alone, so the store's conditional write rejects a second start
// even when two invocations race.
type guard struct {
	Period        string    `bson:"period"`
	CalculationID string    `bson:"calculation_id"`
	StartTime     time.Time `bson:"start_time"`
	TTL           int64     `bson:"ttl"`
}

// Tracker coordinates calculation run state through the record store.
type Tracker struct {
	store store.Store
	log   logger.Logger

	freshness time.Duration
	runTTL    time.Duration
	cacheTTL  time.Duration
	now       func() time.Time
}

// NewTracker creates a Tracker with configuration options.
func NewTracker(s store.Store, log logger.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		store:     s,
		log:       log.Named("lifecycle"),
		freshness: defaultFreshnessWindow,
		runTTL:    defaultRunTTL,
		cacheTTL:  defaultCacheTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartRun begins a run for the period. If one is already in progress the
// returned error is a *ConflictError carrying the existing run's identifier
// and status, so callers can report "already running" instead of failing.
func (t *Tracker) StartRun(ctx context.Context, period string) (model.CalculationRun, error) {
	// Advisory check first: gives the caller the existing run's details.
	if existing, ok := t.inProgressRun(ctx, period); ok {
		metrics.RecordCalculationConflict()
		return existing, &ConflictError{
			Period:        period,
			CalculationID: existing.CalculationID,
			Status:        existing.Status,
		}
	}

	now := t.now()
	run := model.CalculationRun{
		CalculationID: newCalculationID(now),
		Period:        period,
		Status:        model.RunInProgress,
		StartTime:     now,
		TTL:           now.Add(t.runTTL).Unix(),
	}

	// Conditional write on the period-keyed guard closes the read-then-write
	// race the advisory check leaves open.
	g := guard{Period: period, CalculationID: run.CalculationID, StartTime: now, TTL: run.TTL}
	err := t.store.PutIfAbsent(ctx, store.KindRun, guardID(period), g)
	if errors.Is(err, store.ErrConditionFailed) {
		// A guard left behind by a crashed run (or a failed release) expires
		// with its TTL: reclaim it and retry the conditional write once.
		var held guard
		gerr := t.store.Get(ctx, store.Key{Kind: store.KindRun, ID: guardID(period)}, &held)
		if gerr == nil && held.TTL <= now.Unix() {
			t.log.Warn(ctx, "reclaiming expired single-flight guard",
				logger.String("period", period),
				logger.String("calculation_id", held.CalculationID))
			if derr := t.store.Delete(ctx, store.Key{Kind: store.KindRun, ID: guardID(period)}); derr == nil {
				err = t.store.PutIfAbsent(ctx, store.KindRun, guardID(period), g)
			}
		}
	}
	if errors.Is(err, store.ErrConditionFailed) {
		metrics.RecordCalculationConflict()
		existing, ok := t.inProgressRun(ctx, period)
		if !ok {
			// The winner's run record may not be visible yet; the guard
			// still names the winning calculation.
			var held guard
			if gerr := t.store.Get(ctx, store.Key{Kind: store.KindRun, ID: guardID(period)}, &held); gerr == nil {
				existing.CalculationID = held.CalculationID
				existing.Status = model.RunInProgress
			}
		}
		return existing, &ConflictError{
			Period:        period,
			CalculationID: existing.CalculationID,
			Status:        existing.Status,
		}
	}
	if err != nil {
		return model.CalculationRun{}, fmt.Errorf("start run for %s: %w", period, err)
	}

	if err := t.store.Put(ctx, store.KindRun, run.CalculationID, run); err != nil {
		// Release the guard so the period is not wedged until TTL expiry.
		_ = t.store.Delete(ctx, store.Key{Kind: store.KindRun, ID: guardID(period)})
		return model.CalculationRun{}, fmt.Errorf("start run for %s: %w", period, err)
	}

	metrics.RecordCalculationStarted()
	t.log.Info(ctx, "started calculation run",
		logger.String("calculation_id", run.CalculationID),
		logger.String("period", period))
	return run, nil
}

// RecordProgress checkpoints counters for an in-progress run. Counters are
// monotonic: a stale caller cannot move them backwards. Storage failures are
// logged and swallowed; bookkeeping must not abort the computation.
func (t *Tracker) RecordProgress(ctx context.Context, runID string, matchesProcessed, teamsCalculated int) {
	var run model.CalculationRun
	if err := t.store.Get(ctx, store.Key{Kind: store.KindRun, ID: runID}, &run); err != nil {
		t.warn(ctx, "progress update skipped: run not loadable", runID, err)
		return
	}
	if run.Status != model.RunInProgress {
		t.log.Warn(ctx, "progress update refused: run is terminal",
			logger.String("calculation_id", runID),
			logger.String("status", string(run.Status)))
		return
	}
	if matchesProcessed < run.MatchesProcessed {
		matchesProcessed = run.MatchesProcessed
	}
	if teamsCalculated < run.TeamsCalculated {
		teamsCalculated = run.TeamsCalculated
	}

	err := t.store.Update(ctx, store.Key{Kind: store.KindRun, ID: runID}, map[string]any{
		"matches_processed": matchesProcessed,
		"teams_calculated":  teamsCalculated,
	})
	if err != nil {
		t.warn(ctx, "progress update failed", runID, err)
	}
}

// CompleteRun transitions the run to completed and releases the period's
// single-flight guard. Completed is terminal.
func (t *Tracker) CompleteRun(ctx context.Context, runID string, totalMatches, totalTeams int) error {
	return t.finishRun(ctx, runID, model.RunCompleted, map[string]any{
		"status":          string(model.RunCompleted),
		"completion_time": t.now(),
		"total_matches":   totalMatches,
		"total_teams":     totalTeams,
	})
}

// FailRun transitions the run to failed and releases the guard.
func (t *Tracker) FailRun(ctx context.Context, runID string) error {
	metrics.RecordCalculationFailed()
	return t.finishRun(ctx, runID, model.RunFailed, map[string]any{
		"status":          string(model.RunFailed),
		"completion_time": t.now(),
	})
}

func (t *Tracker) finishRun(ctx context.Context, runID string, status model.RunStatus, set map[string]any) error {
	var run model.CalculationRun
	if err := t.store.Get(ctx, store.Key{Kind: store.KindRun, ID: runID}, &run); err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if run.Status != model.RunInProgress {
		return fmt.Errorf("finish run %s: status %s is terminal", runID, run.Status)
	}

	if err := t.store.Update(ctx, store.Key{Kind: store.KindRun, ID: runID}, set); err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if err := t.store.Delete(ctx, store.Key{Kind: store.KindRun, ID: guardID(run.Period)}); err != nil {
		// Guard has a TTL; a failed delete heals itself eventually.
		t.warn(ctx, "guard release failed", runID, err)
	}

	if status == model.RunCompleted {
		metrics.RecordCalculationCompleted()
	}
	t.log.Info(ctx, "finished calculation run",
		logger.String("calculation_id", runID),
		logger.String("status", string(status)))
	return nil
}

// LoadFreshCache returns the cached result set for a period, or ok=false when
// there is no usable entry: a run is in progress, the entry is missing, or it
// is older than the freshness window.
func (t *Tracker) LoadFreshCache(ctx context.Context, period string) ([]model.RatingResult, bool) {
	if _, inProgress := t.inProgressRun(ctx, period); inProgress {
		t.log.Info(ctx, "calculation in progress; skipping cache",
			logger.String("period", period))
		metrics.RecordCacheMiss()
		return nil, false
	}

	var entry model.CacheEntry
	err := t.store.Get(ctx, store.Key{Kind: store.KindCache, ID: cacheKey(period)}, &entry)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			t.warn(ctx, "cache load failed", period, err)
		}
		metrics.RecordCacheMiss()
		return nil, false
	}
	if !entry.Fresh(t.now(), t.freshness) {
		metrics.RecordCacheMiss()
		return nil, false
	}

	var results []model.RatingResult
	if err := json.Unmarshal(entry.Data, &results); err != nil {
		t.warn(ctx, "cache decode failed", period, err)
		metrics.RecordCacheMiss()
		return nil, false
	}

	metrics.RecordCacheHit()
	t.log.Info(ctx, "using cached calculation",
		logger.String("period", period),
		logger.String("calculation_id", entry.CalculationID))
	return results, true
}

// SaveCache stores a result set for the period. The write is refused (logged,
// nil error) unless the owning run is in the completed state, which keeps
// partial results out of the cache.
func (t *Tracker) SaveCache(ctx context.Context, period string, results []model.RatingResult, runID string) error {
	var run model.CalculationRun
	if err := t.store.Get(ctx, store.Key{Kind: store.KindRun, ID: runID}, &run); err != nil {
		t.warn(ctx, "cache save refused: run not loadable", runID, err)
		return nil
	}
	if run.Status != model.RunCompleted {
		t.log.Warn(ctx, "cache save refused: run not completed",
			logger.String("calculation_id", runID),
			logger.String("status", string(run.Status)))
		return nil
	}

	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode cache for %s: %w", period, err)
	}

	now := t.now()
	entry := model.CacheEntry{
		Period:        period,
		Data:          data,
		Timestamp:     now,
		CalculationID: runID,
		TTL:           now.Add(t.cacheTTL).Unix(),
	}
	if err := t.store.Put(ctx, store.KindCache, cacheKey(period), entry); err != nil {
		t.warn(ctx, "cache save failed", period, err)
		return nil
	}

	t.log.Info(ctx, "cached calculation results",
		logger.String("period", period),
		logger.Int("teams", len(results)))
	return nil
}

// DropCache removes the cached entry for a period. Used by saga compensation.
func (t *Tracker) DropCache(ctx context.Context, period string) error {
	if err := t.store.Delete(ctx, store.Key{Kind: store.KindCache, ID: cacheKey(period)}); err != nil {
		return fmt.Errorf("drop cache for %s: %w", period, err)
	}
	return nil
}

// Run returns the run record for the given id.
func (t *Tracker) Run(ctx context.Context, runID string) (model.CalculationRun, error) {
	var run model.CalculationRun
	if err := t.store.Get(ctx, store.Key{Kind: store.KindRun, ID: runID}, &run); err != nil {
		return model.CalculationRun{}, fmt.Errorf("load run %s: %w", runID, err)
	}
	return run, nil
}

// inProgressRun queries for an in-progress run for the period. A run whose
// TTL has passed is garbage awaiting collection, not a live computation, so
// it no longer blocks a new start.
func (t *Tracker) inProgressRun(ctx context.Context, period string) (model.CalculationRun, bool) {
	page, err := t.store.Query(ctx, store.Query{
		Kind: store.KindRun,
		Conditions: map[string]string{
			"period": period,
			"status": string(model.RunInProgress),
		},
	})
	if err != nil {
		t.warn(ctx, "in-progress check failed", period, err)
		return model.CalculationRun{}, false
	}
	runs, err := store.DecodeAll[model.CalculationRun](page.Items)
	if err != nil {
		return model.CalculationRun{}, false
	}
	now := t.now().Unix()
	for _, run := range runs {
		if run.TTL > 0 && run.TTL <= now {
			continue
		}
		return run, true
	}
	return model.CalculationRun{}, false
}

func (t *Tracker) warn(ctx context.Context, msg, id string, err error) {
	t.log.Warn(ctx, msg, logger.String("id", id), logger.Err(err))
}

func newCalculationID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("rpi_calc_%s_%s", now.Format("20060102_150405"), suffix)
}

func guardID(period string) string { return guardPrefix + period }

func cacheKey(period string) string { return cacheKeyPrefix + period }
