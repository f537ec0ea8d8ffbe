package model

import "time"

// TeamMetadata carries enrichment attributes attached to a rating row.
// Fields mirror the team-metadata lookup service.
type TeamMetadata struct {
	Organization string `bson:"organization" json:"organization"`
	Division     string `bson:"division" json:"division"`
	Gender       string `bson:"gender" json:"gender"`
	Conference   string `bson:"conference" json:"conference"`
	City         string `bson:"city" json:"city"`
	State        string `bson:"state" json:"state"`
	Country      string `bson:"country" json:"country"`
}

// UnknownMetadata is the sentinel used when the lookup has no row for a team.
// Output rows never carry null metadata fields.
func UnknownMetadata() TeamMetadata {
	return TeamMetadata{
		Organization: "Unknown",
		Division:     "Unknown",
		Gender:       "Unknown",
		Conference:   "Unknown",
		City:         "",
		State:        "",
		Country:      "USA",
	}
}

// RatingResult is one ranked row of a completed rating computation.
// Immutable after creation; persisted keyed by (period, team id).
type RatingResult struct {
	TeamID        string       `bson:"team_id" json:"team"`
	Rank          int          `bson:"rank" json:"rank"`
	RPI           float64      `bson:"rpi" json:"rpi"`
	WP            float64      `bson:"wp" json:"wp"`
	OWP           float64      `bson:"owp" json:"owp"`
	OOWP          float64      `bson:"oowp" json:"oowp"`
	Wins          int          `bson:"wins" json:"wins"`
	Losses        int          `bson:"losses" json:"losses"`
	Ties          int          `bson:"ties" json:"ties"`
	TotalGames    int          `bson:"total_games" json:"total_games"`
	WinPercentage float64      `bson:"win_percentage" json:"win_percentage"`
	Metadata      TeamMetadata `bson:"metadata" json:"metadata"`
}

// RunStatus describes the state of a calculation run.
type RunStatus string

// Calculation run states. Exactly one run per period may be RunInProgress.
const (
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// CalculationRun is the bookkeeping record for a single rating computation.
type CalculationRun struct {
	CalculationID    string    `bson:"calculation_id" json:"calculation_id"`
	Period           string    `bson:"period" json:"period"` // e.g. "2025-10-04"
	Status           RunStatus `bson:"status" json:"status"`
	StartTime        time.Time `bson:"start_time" json:"start_time"`
	CompletionTime   time.Time `bson:"completion_time,omitempty" json:"completion_time,omitempty"`
	MatchesProcessed int       `bson:"matches_processed" json:"matches_processed"`
	TeamsCalculated  int       `bson:"teams_calculated" json:"teams_calculated"`
	TotalMatches     int       `bson:"total_matches,omitempty" json:"total_matches,omitempty"`
	TotalTeams       int       `bson:"total_teams,omitempty" json:"total_teams,omitempty"`
	TTL              int64     `bson:"ttl" json:"ttl"` // unix seconds; GC eligibility, not cancellation
}

// CacheEntry holds a serialized result set for a period.
type CacheEntry struct {
	Period        string    `bson:"period" json:"period"`
	Data          []byte    `bson:"data" json:"data"` // JSON-encoded []RatingResult
	Timestamp     time.Time `bson:"timestamp" json:"timestamp"`
	CalculationID string    `bson:"calculation_id" json:"calculation_id"`
	TTL           int64     `bson:"ttl" json:"ttl"`
}

// Fresh reports whether the entry is still within the freshness window.
func (c CacheEntry) Fresh(now time.Time, window time.Duration) bool {
	return now.Sub(c.Timestamp) < window
}
