// Package saga coordinates multi-step jobs with compensating rollback.
//
// A saga is an ordered list of named steps executed strictly in sequence.
// When a step fails the coordinator marks the saga failed and walks the
// already-completed steps in reverse order, invoking each step's declared
// compensation. Compensation is best-effort: failures are logged, never
// re-raised.
package saga

import (
	"time"

	"github.com/google/uuid"
)

// StepKind is the closed set of step names the coordinator can dispatch.
type StepKind string

// Pipeline steps.
const (
	StepCollectMatches StepKind = "collect_matches"
	StepCalculateRPI   StepKind = "calculate_rpi"
	StepPublishResults StepKind = "publish_results"
	StepUpdateCache    StepKind = "update_cache"
)

// known reports whether the kind is in the dispatch table.
func (k StepKind) known() bool {
	switch k {
	case StepCollectMatches, StepCalculateRPI, StepPublishResults, StepUpdateCache:
		return true
	default:
		return false
	}
}

// CompensationKind names a rollback action a step may declare.
type CompensationKind string

// Rollback actions.
const (
	CompensateNone  CompensationKind = ""
	RollbackMatches CompensationKind = "rollback_matches"
	RollbackRPI     CompensationKind = "rollback_rpi"
	RollbackPublish CompensationKind = "rollback_publish"
	RollbackCache   CompensationKind = "rollback_cache"
)

// StepStatus tracks one step through its lifecycle.
type StepStatus string

// Step states.
const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Status tracks the whole saga.
type Status string

// Saga states.
const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Step is one unit of work inside a saga.
type Step struct {
	Name         StepKind         `bson:"name" json:"name"`
	Data         map[string]any   `bson:"data,omitempty" json:"data,omitempty"`
	Status       StepStatus       `bson:"status" json:"status"`
	Compensation CompensationKind `bson:"compensation,omitempty" json:"compensation,omitempty"`
	StartTime    time.Time        `bson:"start_time,omitempty" json:"start_time,omitempty"`
	EndTime      time.Time        `bson:"end_time,omitempty" json:"end_time,omitempty"`
	Result       map[string]any   `bson:"result,omitempty" json:"result,omitempty"`
	Error        string           `bson:"error,omitempty" json:"error,omitempty"`
}

// Saga is the persisted record of one coordinated job.
type Saga struct {
	SagaID      string         `bson:"saga_id" json:"saga_id"`
	Type        string         `bson:"saga_type" json:"saga_type"`
	Status      Status         `bson:"status" json:"status"`
	Data        map[string]any `bson:"data,omitempty" json:"data,omitempty"`
	Steps       []Step         `bson:"steps" json:"steps"`
	FailedStep  int            `bson:"failed_step" json:"failed_step"` // -1 until a step fails
	StartTime   time.Time      `bson:"start_time" json:"start_time"`
	LastUpdated time.Time      `bson:"last_updated" json:"last_updated"`
}

func newSaga(sagaType string, data map[string]any, now time.Time) Saga {
	return Saga{
		SagaID:      uuid.NewString(),
		Type:        sagaType,
		Status:      StatusStarted,
		Data:        data,
		Steps:       []Step{},
		FailedStep:  -1,
		StartTime:   now,
		LastUpdated: now,
	}
}
