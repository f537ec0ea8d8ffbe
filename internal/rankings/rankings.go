// Package rankings keeps an in-memory read view of the latest completed
// rating results per period. The view is replaced wholesale when a run
// finishes; reads never observe a partially applied result set.
package rankings

import (
	"context"
	"errors"
	"sync"

	"github.com/fieldrank/fieldrank/internal/domain/model"
)

// ErrNotFound is returned when no ranking is held for the given key.
var ErrNotFound = errors.New("rankings: not found")

// snapshot is one immutable result set for a period.
type snapshot struct {
	calculationID string
	ordered       []model.RatingResult
	byTeam        map[string]model.RatingResult
}

// View serves rank lookups over the most recent snapshots.
type View struct {
	mu      sync.RWMutex
	periods map[string]*snapshot
}

// NewView creates an empty view.
func NewView() *View {
	return &View{periods: make(map[string]*snapshot)}
}

// Replace installs the results for a period, displacing any prior snapshot.
// Results must already be ranked in descending RPI order.
func (v *View) Replace(_ context.Context, period, calculationID string, results []model.RatingResult) {
	s := &snapshot{
		calculationID: calculationID,
		ordered:       append([]model.RatingResult(nil), results...),
		byTeam:        make(map[string]model.RatingResult, len(results)),
	}
	for _, r := range results {
		s.byTeam[r.TeamID] = r
	}

	v.mu.Lock()
	v.periods[period] = s
	v.mu.Unlock()
}

// Rank returns the ranked row for one team in a period.
func (v *View) Rank(_ context.Context, period, teamID string) (model.RatingResult, error) {
	v.mu.RLock()
	s, ok := v.periods[period]
	v.mu.RUnlock()
	if !ok {
		return model.RatingResult{}, ErrNotFound
	}
	r, ok := s.byTeam[teamID]
	if !ok {
		return model.RatingResult{}, ErrNotFound
	}
	return r, nil
}

// TopN returns the best n rows for a period, fewer when the period holds
// fewer teams.
func (v *View) TopN(_ context.Context, period string, n int) ([]model.RatingResult, error) {
	v.mu.RLock()
	s, ok := v.periods[period]
	v.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if n <= 0 || n > len(s.ordered) {
		n = len(s.ordered)
	}
	return append([]model.RatingResult(nil), s.ordered[:n]...), nil
}

// Count returns the number of teams ranked in a period, zero when unknown.
func (v *View) Count(_ context.Context, period string) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if s, ok := v.periods[period]; ok {
		return len(s.ordered)
	}
	return 0
}

// CalculationID returns the id of the run backing a period's snapshot.
func (v *View) CalculationID(_ context.Context, period string) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if s, ok := v.periods[period]; ok {
		return s.calculationID, nil
	}
	return "", ErrNotFound
}
