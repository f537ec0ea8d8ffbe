// Package model contains domain models passed between layers.
package model

import "time"

// MatchStatus describes where a match is in its lifecycle.
type MatchStatus string

// Match lifecycle states.
const (
	MatchScheduled MatchStatus = "scheduled"
	MatchCompleted MatchStatus = "completed"
)

// Result is the outcome of a match from one team's perspective.
type Result string

// Per-team results.
const (
	Win  Result = "win"
	Loss Result = "loss"
	Tie  Result = "tie"
)

// Match is a single fixture as produced by the match collector.
// Scores are pointers because a scheduled match has none yet; a match is
// immutable once its status is MatchCompleted.
type Match struct {
	MatchID   string      `bson:"match_id" json:"match_id"`
	Date      string      `bson:"date" json:"date"` // YYYY-MM-DD
	HomeTeam  string      `bson:"home_team" json:"home_team"`
	AwayTeam  string      `bson:"away_team" json:"away_team"`
	HomeScore *int        `bson:"home_score,omitempty" json:"home_score,omitempty"`
	AwayScore *int        `bson:"away_score,omitempty" json:"away_score,omitempty"`
	Status    MatchStatus `bson:"status" json:"status"`
	Timestamp time.Time   `bson:"timestamp" json:"timestamp"`
}

// Completed reports whether the match can feed a rating computation:
// final status and both scores present.
func (m Match) Completed() bool {
	return m.Status == MatchCompleted && m.HomeScore != nil && m.AwayScore != nil
}

// Valid reports whether the match identifies both sides. Matches missing a
// team id must be rejected upstream; the rating engine assumes them away.
func (m Match) Valid() bool {
	return m.HomeTeam != "" && m.AwayTeam != "" && m.HomeTeam != m.AwayTeam
}

// Game is one team's view of one match: two Games per completed match.
type Game struct {
	Opponent string
	Home     bool
	Result   Result
}

// TeamRecord accumulates a team's results over one computation run.
// Built fresh from the match set each run and never persisted.
type TeamRecord struct {
	TeamID string
	Wins   int
	Losses int
	Ties   int
	Games  []Game
}

// TotalGames returns the number of games contributing to the record.
func (r TeamRecord) TotalGames() int {
	return r.Wins + r.Losses + r.Ties
}
