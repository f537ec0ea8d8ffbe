package lifecycle

import (
	"fmt"

	"github.com/fieldrank/fieldrank/internal/domain/model"
)

// ConflictError rejects a run start because one is already in progress for
// the period. It carries the existing run's identity so callers can answer
// "already running" instead of surfacing an opaque failure.
type ConflictError struct {
	Period        string
	CalculationID string
	Status        model.RunStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("calculation already in progress for %s: %s", e.Period, e.CalculationID)
}
