// Package metadata resolves team enrichment attributes for rating output.
package metadata

import (
	"context"
	"errors"
	"sync"

	"github.com/fieldrank/fieldrank/internal/adapters/store"
	"github.com/fieldrank/fieldrank/internal/domain/model"
	"github.com/fieldrank/fieldrank/pkg/logger"
)

// Lookup resolves metadata for a team id. The bool result reports whether a
// row was found; callers fall back to model.UnknownMetadata() on a miss.
type Lookup interface {
	TeamMetadata(ctx context.Context, teamID string) (model.TeamMetadata, bool)
}

// record is the stored shape of one team's metadata.
type record struct {
	TeamID             string `bson:"team_id"`
	model.TeamMetadata `bson:",inline"`
}

// StoreLookup reads team metadata through the record store with an
// in-process cache. Misses are not cached, so late-arriving rows show up on
// the next run.
type StoreLookup struct {
	store store.Store
	log   logger.Logger

	mu    sync.RWMutex
	cache map[string]model.TeamMetadata
}

var _ Lookup = (*StoreLookup)(nil)

// NewStoreLookup creates a lookup over the given record store.
func NewStoreLookup(s store.Store, log logger.Logger) *StoreLookup {
	return &StoreLookup{
		store: s,
		log:   log.Named("metadata"),
		cache: make(map[string]model.TeamMetadata),
	}
}

// TeamMetadata resolves one team. Store errors degrade to a miss: the rating
// output then carries the Unknown sentinel instead of failing the run.
func (l *StoreLookup) TeamMetadata(ctx context.Context, teamID string) (model.TeamMetadata, bool) {
	l.mu.RLock()
	md, ok := l.cache[teamID]
	l.mu.RUnlock()
	if ok {
		return md, true
	}

	var rec record
	err := l.store.Get(ctx, store.Key{Kind: store.KindTeamMetadata, ID: teamID}, &rec)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			l.log.Warn(ctx, "metadata lookup failed",
				logger.String("team_id", teamID), logger.Err(err))
		}
		return model.TeamMetadata{}, false
	}

	l.mu.Lock()
	l.cache[teamID] = rec.TeamMetadata
	l.mu.Unlock()
	return rec.TeamMetadata, true
}

// Static is a fixed in-memory Lookup for tests and seeded deployments.
type Static map[string]model.TeamMetadata

var _ Lookup = Static{}

// TeamMetadata resolves from the fixed map.
func (s Static) TeamMetadata(_ context.Context, teamID string) (model.TeamMetadata, bool) {
	md, ok := s[teamID]
	return md, ok
}
