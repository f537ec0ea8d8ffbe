package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldrank/fieldrank/internal/adapters/store"
	"github.com/fieldrank/fieldrank/pkg/logger"
	"github.com/fieldrank/fieldrank/pkg/metrics"
)

// Handler executes one step kind against its downstream collaborator.
type Handler func(ctx context.Context, data map[string]any) (map[string]any, error)

// Compensator undoes one completed step.
type Compensator func(ctx context.Context, data map[string]any) error

// Handlers is the closed dispatch table: one handler per step kind. A nil
// entry makes that kind fail with ErrUnknownStep at execution time.
type Handlers struct {
	CollectMatches Handler
	CalculateRPI   Handler
	PublishResults Handler
	UpdateCache    Handler
}

func (h Handlers) dispatch(kind StepKind) (Handler, bool) {
	switch kind {
	case StepCollectMatches:
		return h.CollectMatches, h.CollectMatches != nil
	case StepCalculateRPI:
		return h.CalculateRPI, h.CalculateRPI != nil
	case StepPublishResults:
		return h.PublishResults, h.PublishResults != nil
	case StepUpdateCache:
		return h.UpdateCache, h.UpdateCache != nil
	default:
		return nil, false
	}
}

// Compensators maps rollback names to their actions. Missing entries are
// skipped during compensation.
type Compensators struct {
	RollbackMatches Compensator
	RollbackRPI     Compensator
	RollbackPublish Compensator
	RollbackCache   Compensator
}

func (c Compensators) dispatch(kind CompensationKind) (Compensator, bool) {
	switch kind {
	case RollbackMatches:
		return c.RollbackMatches, c.RollbackMatches != nil
	case RollbackRPI:
		return c.RollbackRPI, c.RollbackRPI != nil
	case RollbackPublish:
		return c.RollbackPublish, c.RollbackPublish != nil
	case RollbackCache:
		return c.RollbackCache, c.RollbackCache != nil
	default:
		return nil, false
	}
}

// Coordinator runs sagas against the record store.
type Coordinator struct {
	store        store.Store
	log          logger.Logger
	handlers     Handlers
	compensators Compensators
	now          func() time.Time
}

// NewCoordinator creates a Coordinator with the given dispatch tables.
func NewCoordinator(s store.Store, log logger.Logger, handlers Handlers, compensators Compensators) *Coordinator {
	return &Coordinator{
		store:        s,
		log:          log.Named("saga"),
		handlers:     handlers,
		compensators: compensators,
		now:          time.Now,
	}
}

// Start creates a saga record with status started and no steps.
func (c *Coordinator) Start(ctx context.Context, sagaType string, data map[string]any) (string, error) {
	sg := newSaga(sagaType, data, c.now())
	if err := c.store.Put(ctx, store.KindSaga, sg.SagaID, sg); err != nil {
		return "", fmt.Errorf("start saga: %w", err)
	}
	c.log.Info(ctx, "started saga",
		logger.String("saga_id", sg.SagaID),
		logger.String("saga_type", sagaType))
	return sg.SagaID, nil
}

// AddStep appends a pending step to the saga.
func (c *Coordinator) AddStep(ctx context.Context, sagaID string, kind StepKind, data map[string]any, compensation CompensationKind) error {
	sg, err := c.load(ctx, sagaID)
	if err != nil {
		return err
	}
	sg.Steps = append(sg.Steps, Step{
		Name:         kind,
		Data:         data,
		Status:       StepPending,
		Compensation: compensation,
	})
	sg.LastUpdated = c.now()
	if err := c.store.Put(ctx, store.KindSaga, sagaID, sg); err != nil {
		return fmt.Errorf("add step to saga %s: %w", sagaID, err)
	}
	return nil
}

// ExecuteStep runs the step at index and every step after it, in order. An
// already-completed step is skipped as a no-op so a manual retry cannot run
// work twice. When the final step completes the saga is marked completed; on
// any failure the saga is marked failed, completed steps are compensated in
// reverse order, and the step's error is returned wrapped in *UpstreamError.
func (c *Coordinator) ExecuteStep(ctx context.Context, sagaID string, index int) error {
	sg, err := c.load(ctx, sagaID)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(sg.Steps) {
		return fmt.Errorf("saga %s: index %d with %d steps: %w", sagaID, index, len(sg.Steps), ErrStepOutOfRange)
	}

	// Sequential loop rather than self-recursion: same semantics, bounded
	// stack, and each iteration reloads nothing it does not need.
	for i := index; i < len(sg.Steps); i++ {
		step := &sg.Steps[i]

		if step.Status == StepCompleted {
			c.log.Info(ctx, "skipping completed step",
				logger.String("saga_id", sagaID),
				logger.String("step", string(step.Name)))
			continue
		}

		if err := c.runStep(ctx, &sg, i); err != nil {
			c.fail(ctx, &sg, i, err)
			c.compensate(ctx, &sg, i)
			return &UpstreamError{SagaID: sagaID, Step: step.Name, Index: i, Err: err}
		}
	}

	sg.Status = StatusCompleted
	sg.LastUpdated = c.now()
	if err := c.store.Put(ctx, store.KindSaga, sagaID, sg); err != nil {
		return fmt.Errorf("complete saga %s: %w", sagaID, err)
	}
	c.log.Info(ctx, "completed saga", logger.String("saga_id", sagaID))
	return nil
}

// Saga returns the saga record for the id.
func (c *Coordinator) Saga(ctx context.Context, sagaID string) (Saga, error) {
	return c.load(ctx, sagaID)
}

func (c *Coordinator) runStep(ctx context.Context, sg *Saga, i int) error {
	step := &sg.Steps[i]

	step.Status = StepRunning
	step.StartTime = c.now()
	if err := c.persist(ctx, sg); err != nil {
		return err
	}

	handler, ok := c.handlers.dispatch(step.Name)
	if !ok || !step.Name.known() {
		metrics.RecordSagaStep(string(step.Name), "unknown")
		return fmt.Errorf("%q: %w", step.Name, ErrUnknownStep)
	}

	result, err := handler(ctx, step.Data)
	if err != nil {
		metrics.RecordSagaStep(string(step.Name), "failed")
		return err
	}

	step.Status = StepCompleted
	step.EndTime = c.now()
	step.Result = result
	metrics.RecordSagaStep(string(step.Name), "completed")
	if err := c.persist(ctx, sg); err != nil {
		return err
	}

	c.log.Info(ctx, "completed step",
		logger.String("saga_id", sg.SagaID),
		logger.String("step", string(step.Name)))
	return nil
}

func (c *Coordinator) fail(ctx context.Context, sg *Saga, failedIndex int, cause error) {
	step := &sg.Steps[failedIndex]
	step.Status = StepFailed
	step.EndTime = c.now()
	step.Error = cause.Error()

	sg.Status = StatusFailed
	sg.FailedStep = failedIndex
	sg.LastUpdated = c.now()
	metrics.RecordSagaFailed()

	if err := c.persist(ctx, sg); err != nil {
		c.log.Error(ctx, "failed to persist saga failure",
			logger.String("saga_id", sg.SagaID), logger.Err(err))
	}
	c.log.Error(ctx, "saga step failed",
		logger.String("saga_id", sg.SagaID),
		logger.String("step", string(step.Name)),
		logger.Int("index", failedIndex),
		logger.Err(cause))
}

// compensate walks completed steps in strict reverse order from the failed
// index and invokes each declared compensation. Best-effort only.
func (c *Coordinator) compensate(ctx context.Context, sg *Saga, failedIndex int) {
	for i := failedIndex - 1; i >= 0; i-- {
		step := sg.Steps[i]
		if step.Status != StepCompleted || step.Compensation == CompensateNone {
			continue
		}

		action, ok := c.compensators.dispatch(step.Compensation)
		if !ok {
			c.log.Warn(ctx, "unknown compensation action",
				logger.String("saga_id", sg.SagaID),
				logger.String("compensation", string(step.Compensation)))
			continue
		}

		metrics.RecordSagaCompensation(string(step.Name))
		if err := action(ctx, step.Data); err != nil {
			c.log.Error(ctx, "compensation failed",
				logger.String("saga_id", sg.SagaID),
				logger.String("step", string(step.Name)),
				logger.Err(err))
			continue
		}
		c.log.Info(ctx, "compensated step",
			logger.String("saga_id", sg.SagaID),
			logger.String("step", string(step.Name)))
	}
}

func (c *Coordinator) load(ctx context.Context, sagaID string) (Saga, error) {
	var sg Saga
	err := c.store.Get(ctx, store.Key{Kind: store.KindSaga, ID: sagaID}, &sg)
	if errors.Is(err, store.ErrNotFound) {
		return Saga{}, fmt.Errorf("%s: %w", sagaID, ErrSagaNotFound)
	}
	if err != nil {
		return Saga{}, fmt.Errorf("load saga %s: %w", sagaID, err)
	}
	return sg, nil
}

func (c *Coordinator) persist(ctx context.Context, sg *Saga) error {
	sg.LastUpdated = c.now()
	if err := c.store.Put(ctx, store.KindSaga, sg.SagaID, *sg); err != nil {
		return fmt.Errorf("persist saga %s: %w", sg.SagaID, err)
	}
	return nil
}
