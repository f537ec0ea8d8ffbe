// Package rating computes Rating Percentage Index scores from completed
// match results.
package rating

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithWeights sets the WP/OWP/OOWP combination weights. Invalid weight sets
// (non-positive total) are ignored and the standard 0.25/0.50/0.25 split kept.
func WithWeights(wp, owp, oowp float64) Option {
	return func(e *Engine) {
		if wp+owp+oowp > 0 {
			e.wpWeight = wp
			e.owpWeight = owp
			e.oowpWeight = oowp
		}
	}
}

// WithPrecision sets the number of decimal places for the final score.
func WithPrecision(places int) Option {
	return func(e *Engine) {
		if places >= 0 {
			e.precision = places
		}
	}
}

// WithMetadataLookup injects the enrichment lookup used to annotate rows.
func WithMetadataLookup(lookup MetadataLookup) Option {
	return func(e *Engine) {
		e.lookup = lookup
	}
}

// WithProgress installs a checkpoint callback invoked periodically while the
// computation is running.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// WithProgressInterval sets how many processed items elapse between
// checkpoint callbacks.
func WithProgressInterval(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.progressEvery = n
		}
	}
}
