package store

import "errors"

// Sentinel kinds for record store errors.
var (
	ErrNotFound        = errors.New("record not found")
	ErrConditionFailed = errors.New("conditional write failed: record exists")
	ErrClosed          = errors.New("store closed")
)
