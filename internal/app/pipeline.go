package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fieldrank/fieldrank/internal/adapters/store"
	"github.com/fieldrank/fieldrank/internal/domain/model"
	"github.com/fieldrank/fieldrank/internal/events"
	"github.com/fieldrank/fieldrank/internal/saga"
	"github.com/fieldrank/fieldrank/pkg/logger"
)

// PipelineSagaType labels the four-step rating pipeline saga.
const PipelineSagaType = "rpi_calculation"

// StartPipeline runs the rating pipeline as a compensated saga: collect
// matches, calculate ratings, publish artifacts, refresh the cache. Returns
// the saga id; on step failure the coordinator has already compensated and
// the error names the failed step.
func (s *Service) StartPipeline(ctx context.Context, req CalculationRequest) (string, error) {
	req, err := s.normalize(req)
	if err != nil {
		return "", err
	}
	data := map[string]any{
		"period":     req.Period,
		"start_date": req.StartDate,
		"end_date":   req.EndDate,
	}

	sagaID, err := s.coordinator.Start(ctx, PipelineSagaType, data)
	if err != nil {
		return "", err
	}

	steps := []struct {
		kind         saga.StepKind
		compensation saga.CompensationKind
	}{
		{saga.StepCollectMatches, saga.RollbackMatches},
		{saga.StepCalculateRPI, saga.RollbackRPI},
		{saga.StepPublishResults, saga.RollbackPublish},
		{saga.StepUpdateCache, saga.RollbackCache},
	}
	for _, st := range steps {
		if err := s.coordinator.AddStep(ctx, sagaID, st.kind, data, st.compensation); err != nil {
			return sagaID, err
		}
	}

	if err := s.coordinator.ExecuteStep(ctx, sagaID, 0); err != nil {
		if _, perr := s.publisher.Publish(ctx, events.TypeSagaFailed, req.Period, map[string]any{
			"saga_id": sagaID,
			"error":   err.Error(),
		}); perr != nil {
			s.logger.Warn(ctx, "saga failure notification failed", logger.Err(perr))
		}
		return sagaID, err
	}
	return sagaID, nil
}

// PipelineStatus returns the saga record for a pipeline run.
func (s *Service) PipelineStatus(ctx context.Context, sagaID string) (saga.Saga, error) {
	return s.coordinator.Saga(ctx, sagaID)
}

// handleCollectMatches triggers external match ingestion when a collector
// function is configured, then reports how many completed matches the window
// holds.
func (s *Service) handleCollectMatches(ctx context.Context, data map[string]any) (map[string]any, error) {
	startDate, endDate := stringAt(data, "start_date"), stringAt(data, "end_date")

	if s.collectFunction != "" {
		payload, err := json.Marshal(map[string]string{
			"start_date": startDate,
			"end_date":   endDate,
		})
		if err != nil {
			return nil, fmt.Errorf("encode collector payload: %w", err)
		}
		if _, err := s.invoker.Invoke(ctx, s.collectFunction, payload); err != nil {
			return nil, fmt.Errorf("collect matches: %w", err)
		}
	}

	matches, err := s.collectMatches(ctx, startDate, endDate)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"match_count": len(matches),
		"start_date":  startDate,
		"end_date":    endDate,
	}, nil
}

// handleCalculateRPI runs the computation and persists ranked results. The
// cache and artifact publication belong to the later steps.
func (s *Service) handleCalculateRPI(ctx context.Context, data map[string]any) (map[string]any, error) {
	req := CalculationRequest{
		Period:    stringAt(data, "period"),
		StartDate: stringAt(data, "start_date"),
		EndDate:   stringAt(data, "end_date"),
	}

	run, err := s.tracker.StartRun(ctx, req.Period)
	if err != nil {
		return nil, err
	}

	matches, err := s.collectMatches(ctx, req.StartDate, req.EndDate)
	if err != nil {
		s.failQuietly(ctx, run.CalculationID)
		return nil, fmt.Errorf("collect matches: %w", err)
	}
	results, err := s.engineFor(run.CalculationID).Compute(ctx, matches)
	if err != nil {
		s.failQuietly(ctx, run.CalculationID)
		return nil, fmt.Errorf("compute ratings: %w", err)
	}

	if err := s.tracker.CompleteRun(ctx, run.CalculationID, len(matches), len(results)); err != nil {
		return nil, err
	}
	if err := s.persistResults(ctx, req.Period, run.CalculationID, results); err != nil {
		s.failQuietly(ctx, run.CalculationID)
		return nil, err
	}
	s.view.Replace(ctx, req.Period, run.CalculationID, results)

	return map[string]any{
		"calculation_id": run.CalculationID,
		"total_matches":  len(matches),
		"total_teams":    len(results),
	}, nil
}

// handlePublishResults writes artifacts for the period's latest results and
// announces them.
func (s *Service) handlePublishResults(ctx context.Context, data map[string]any) (map[string]any, error) {
	period := stringAt(data, "period")
	calculationID, results, err := s.latestResults(ctx, period)
	if err != nil {
		return nil, err
	}

	artifactCount := 0
	if s.artifacts != nil {
		artifacts, err := s.artifacts.Write(ctx, s.resultSet(ctx, period, calculationID, results))
		if err != nil {
			return nil, fmt.Errorf("publish artifacts: %w", err)
		}
		artifactCount = len(artifacts)
	}

	if _, err := s.publisher.Publish(ctx, events.TypeResultsPublished, period, map[string]any{
		"calculation_id": calculationID,
		"total_teams":    len(results),
	}); err != nil {
		return nil, err
	}
	return map[string]any{
		"calculation_id": calculationID,
		"artifact_count": artifactCount,
	}, nil
}

// handleUpdateCache refreshes the period's result cache.
func (s *Service) handleUpdateCache(ctx context.Context, data map[string]any) (map[string]any, error) {
	period := stringAt(data, "period")
	calculationID, results, err := s.latestResults(ctx, period)
	if err != nil {
		return nil, err
	}
	if err := s.tracker.SaveCache(ctx, period, results, calculationID); err != nil {
		return nil, err
	}

	if _, err := s.publisher.Publish(ctx, events.TypeCacheRefreshed, period, map[string]any{
		"calculation_id": calculationID,
	}); err != nil {
		s.logger.Warn(ctx, "cache refresh notification failed", logger.Err(err))
	}
	return map[string]any{"calculation_id": calculationID}, nil
}

// rollbackMatches undoes match collection. Collected matches are source data
// shared with other consumers, so the rollback only records the decision.
func (s *Service) rollbackMatches(ctx context.Context, data map[string]any) error {
	s.logger.Info(ctx, "match collection rollback: source records retained",
		logger.String("period", stringAt(data, "period")))
	return nil
}

// rollbackRPI deletes the period's persisted rating results.
func (s *Service) rollbackRPI(ctx context.Context, data map[string]any) error {
	period := stringAt(data, "period")
	token := ""
	for {
		page, err := s.store.Query(ctx, store.Query{
			Kind:       store.KindResult,
			Conditions: map[string]string{"period": period},
			Limit:      s.matchPageSize,
			StartToken: token,
		})
		if err != nil {
			return fmt.Errorf("rollback ratings for %s: %w", period, err)
		}
		rows, err := store.DecodeAll[storedResult](page.Items)
		if err != nil {
			return fmt.Errorf("rollback ratings for %s: %w", period, err)
		}
		for _, row := range rows {
			key := store.Key{Kind: store.KindResult, ID: fmt.Sprintf("%s#%s", period, row.TeamID)}
			if err := s.store.Delete(ctx, key); err != nil {
				return fmt.Errorf("rollback ratings for %s: %w", period, err)
			}
		}
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}
	s.logger.Info(ctx, "rolled back rating results", logger.String("period", period))
	return nil
}

// rollbackPublish records that published artifacts stay in place. Object
// storage artifacts are immutable snapshots; consumers key on calculation id.
func (s *Service) rollbackPublish(ctx context.Context, data map[string]any) error {
	s.logger.Info(ctx, "publish rollback: artifacts retained",
		logger.String("period", stringAt(data, "period")))
	return nil
}

// rollbackCache drops the period's cache entry.
func (s *Service) rollbackCache(ctx context.Context, data map[string]any) error {
	return s.tracker.DropCache(ctx, stringAt(data, "period"))
}

// latestResults loads the read view's snapshot for the period.
func (s *Service) latestResults(ctx context.Context, period string) (string, []model.RatingResult, error) {
	calculationID, err := s.view.CalculationID(ctx, period)
	if err != nil {
		return "", nil, fmt.Errorf("no results held for %s: %w", period, err)
	}
	results, err := s.view.TopN(ctx, period, 0)
	if err != nil {
		return "", nil, fmt.Errorf("no results held for %s: %w", period, err)
	}
	return calculationID, results, nil
}

func (s *Service) failQuietly(ctx context.Context, runID string) {
	if err := s.tracker.FailRun(ctx, runID); err != nil {
		s.logger.Warn(ctx, "run failure bookkeeping failed",
			logger.String("calculation_id", runID), logger.Err(err))
	}
}

func stringAt(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
