package lifecycle

import "time"

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithFreshnessWindow sets the maximum age of a usable cache entry.
func WithFreshnessWindow(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.freshness = d
		}
	}
}

// WithRunTTL sets the garbage-collection TTL stamped on run records. The TTL
// bounds the lifetime of a stuck in-progress run; it does not cancel work.
func WithRunTTL(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.runTTL = d
		}
	}
}

// WithCacheTTL sets the garbage-collection TTL stamped on cache entries.
func WithCacheTTL(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.cacheTTL = d
		}
	}
}

// WithClock overrides the time source; tests use this to age cache entries.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}
