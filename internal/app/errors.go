package service

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrInvalidMatch rejects an ingested match missing an id, date, or a
	// distinct pair of team ids.
	ErrInvalidMatch = errors.New("invalid match")

	// ErrInvalidPeriod rejects a calculation request whose period is not a
	// YYYY-MM-DD date.
	ErrInvalidPeriod = errors.New("invalid period")
)
