package saga

import (
	"errors"
	"fmt"
)

// Sentinel kinds for coordinator errors.
var (
	// ErrUnknownStep means the dispatch table has no handler for a step
	// name. Fatal to the saga; triggers compensation.
	ErrUnknownStep = errors.New("unknown saga step")

	// ErrStepOutOfRange means the requested step index does not exist.
	// A programming or integration error, not a runtime condition.
	ErrStepOutOfRange = errors.New("step index out of range")

	// ErrSagaNotFound means no saga record exists for the id.
	ErrSagaNotFound = errors.New("saga not found")
)

// UpstreamError wraps a failure raised by a step's downstream collaborator.
// The saga has already been marked failed and compensation attempted by the
// time callers see one.
type UpstreamError struct {
	SagaID string
	Step   StepKind
	Index  int
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("saga %s: step %d (%s) failed: %v", e.SagaID, e.Index, e.Step, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
