// Package rating computes Rating Percentage Index scores from completed
// match results.
//
// RPI = (0.25 × WP) + (0.50 × OWP) + (0.25 × OOWP)
//
// The computation is pure over its inputs: every call builds fresh team
// records and per-run memo tables, so concurrent computations for different
// periods never share state.
package rating

import (
	"context"
	"math"
	"sort"

	"github.com/fieldrank/fieldrank/internal/domain/model"
)

// Default RPI weighting constants.
const (
	defaultWPWeight   = 0.25
	defaultOWPWeight  = 0.50
	defaultOOWPWeight = 0.25
	defaultPrecision  = 4
)

// MetadataLookup resolves enrichment attributes for a team id.
// A nil lookup or a miss yields model.UnknownMetadata().
type MetadataLookup interface {
	TeamMetadata(ctx context.Context, teamID string) (model.TeamMetadata, bool)
}

// ProgressFunc receives checkpoint counters while a computation is running.
type ProgressFunc func(matchesProcessed, teamsCalculated int)

// Engine computes RPI ratings. The zero value is not usable; construct with
// NewEngine.
type Engine struct {
	wpWeight   float64
	owpWeight  float64
	oowpWeight float64
	precision  int
	lookup     MetadataLookup
	progress   ProgressFunc

	// Checkpoint cadence during record building.
	progressEvery int
}

// NewEngine creates an Engine with configuration options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		wpWeight:      defaultWPWeight,
		owpWeight:     defaultOWPWeight,
		oowpWeight:    defaultOOWPWeight,
		precision:     defaultPrecision,
		progressEvery: 100,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute builds team records from the given matches and returns one ranked
// RatingResult per team. Only matches that are completed and valid contribute;
// the caller is expected to have filtered already, but the engine re-checks so
// a stray scheduled row cannot skew a run. Compute never fails on well-formed
// input; the error return is reserved for context cancellation.
func (e *Engine) Compute(ctx context.Context, matches []model.Match) ([]model.RatingResult, error) {
	records, order := e.buildRecords(matches)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Two-pass aggregation over explicit memo tables instead of recursive
	// per-opponent lookups: WP for everyone, then OWP from WP, then OOWP
	// from OWP. Complexity is O(teams × avg distinct opponents).
	wp := make(map[string]float64, len(records))
	for id, rec := range records {
		wp[id] = winPercentage(rec)
	}

	owp := make(map[string]float64, len(records))
	for id, rec := range records {
		owp[id] = meanOver(opponentsOf(rec), wp)
	}

	// OOWP is the mean of opponents' OWP. An opponent's OWP may itself
	// include games against this team; that inclusion is part of the
	// published formula and is reproduced as-is.
	oowp := make(map[string]float64, len(records))
	for id, rec := range records {
		oowp[id] = meanOver(opponentsOf(rec), owp)
	}

	results := make([]model.RatingResult, 0, len(records))
	for i, id := range order {
		rec := records[id]
		score := e.wpWeight*wp[id] + e.owpWeight*owp[id] + e.oowpWeight*oowp[id]

		results = append(results, model.RatingResult{
			TeamID:        id,
			RPI:           round(score, e.precision),
			WP:            wp[id],
			OWP:           owp[id],
			OOWP:          oowp[id],
			Wins:          rec.Wins,
			Losses:        rec.Losses,
			Ties:          rec.Ties,
			TotalGames:    rec.TotalGames(),
			WinPercentage: round(wp[id], e.precision),
			Metadata:      e.metadataFor(ctx, id),
		})

		if e.progress != nil && (i+1)%e.progressEvery == 0 {
			e.progress(len(matches), i+1)
		}
	}

	// Descending by RPI; SliceStable keeps input-population order on ties.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RPI > results[j].RPI
	})
	for i := range results {
		results[i].Rank = i + 1
	}

	return results, nil
}

// buildRecords folds matches into per-team records. The returned order slice
// preserves first-appearance order so ranking tie-breaks are deterministic.
func (e *Engine) buildRecords(matches []model.Match) (map[string]*model.TeamRecord, []string) {
	records := make(map[string]*model.TeamRecord)
	var order []string

	ensure := func(id string) *model.TeamRecord {
		rec, ok := records[id]
		if !ok {
			rec = &model.TeamRecord{TeamID: id}
			records[id] = rec
			order = append(order, id)
		}
		return rec
	}

	processed := 0
	for _, m := range matches {
		if !m.Completed() || !m.Valid() {
			continue
		}

		home := ensure(m.HomeTeam)
		away := ensure(m.AwayTeam)
		hs, as := *m.HomeScore, *m.AwayScore

		switch {
		case hs > as:
			home.Wins++
			away.Losses++
		case as > hs:
			away.Wins++
			home.Losses++
		default:
			home.Ties++
			away.Ties++
		}

		home.Games = append(home.Games, model.Game{Opponent: m.AwayTeam, Home: true, Result: resultFor(hs, as)})
		away.Games = append(away.Games, model.Game{Opponent: m.HomeTeam, Home: false, Result: resultFor(as, hs)})

		processed++
		if e.progress != nil && processed%e.progressEvery == 0 {
			e.progress(processed, len(records))
		}
	}

	return records, order
}

func (e *Engine) metadataFor(ctx context.Context, teamID string) model.TeamMetadata {
	if e.lookup == nil {
		return model.UnknownMetadata()
	}
	md, ok := e.lookup.TeamMetadata(ctx, teamID)
	if !ok {
		return model.UnknownMetadata()
	}
	return md
}

func resultFor(own, other int) model.Result {
	switch {
	case own > other:
		return model.Win
	case own < other:
		return model.Loss
	default:
		return model.Tie
	}
}

// winPercentage is (wins + 0.5*ties) / total, 0.0 for a team with no games.
func winPercentage(rec *model.TeamRecord) float64 {
	total := rec.TotalGames()
	if total == 0 {
		return 0.0
	}
	return (float64(rec.Wins) + 0.5*float64(rec.Ties)) / float64(total)
}

// opponentsOf returns the set of distinct opponents, first-faced order.
// A team faced multiple times counts once.
func opponentsOf(rec *model.TeamRecord) []string {
	seen := make(map[string]struct{}, len(rec.Games))
	opponents := make([]string, 0, len(rec.Games))
	for _, g := range rec.Games {
		if _, ok := seen[g.Opponent]; ok {
			continue
		}
		seen[g.Opponent] = struct{}{}
		opponents = append(opponents, g.Opponent)
	}
	return opponents
}

// meanOver averages table values over the given keys; 0.0 for no keys.
func meanOver(keys []string, table map[string]float64) float64 {
	if len(keys) == 0 {
		return 0.0
	}
	var sum float64
	for _, k := range keys {
		sum += table[k]
	}
	return sum / float64(len(keys))
}

func round(x float64, places int) float64 {
	pow := math.Pow10(places)
	return math.Round(x*pow) / pow
}
