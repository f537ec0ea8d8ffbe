// Package metrics provides Prometheus metrics for the rating pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fieldrank"

var registry = prometheus.NewRegistry()

// GetRegistry returns the registry backing the /metrics endpoint.
func GetRegistry() *prometheus.Registry {
	return registry
}

var (
	factory = promauto.With(registry)

	// Calculation lifecycle.
	calculationsStarted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "calc", Name: "runs_started_total",
		Help: "Calculation runs started.",
	})
	calculationsCompleted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "calc", Name: "runs_completed_total",
		Help: "Calculation runs completed successfully.",
	})
	calculationsFailed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "calc", Name: "runs_failed_total",
		Help: "Calculation runs that ended in failure.",
	})
	calculationConflicts = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "calc", Name: "run_conflicts_total",
		Help: "Run starts rejected because one was already in progress.",
	})
	calculationDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "calc", Name: "run_duration_seconds",
		Help:    "Wall time of a full rating computation.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})
	matchesProcessed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "calc", Name: "matches_processed_total",
		Help: "Completed matches folded into team records.",
	})
	teamsRanked = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "calc", Name: "teams_ranked",
		Help: "Teams ranked in the most recent run.",
	})

	// Result cache.
	cacheHits = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "cache", Name: "hits_total",
		Help: "Fresh cache entries served instead of recomputing.",
	})
	cacheMisses = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "cache", Name: "misses_total",
		Help: "Cache lookups that required a recomputation.",
	})

	// Saga coordination.
	sagaSteps = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "saga", Name: "steps_total",
		Help: "Saga step executions by step and outcome.",
	}, []string{"step", "outcome"})
	sagaCompensations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "saga", Name: "compensations_total",
		Help: "Compensation actions invoked, by step.",
	}, []string{"step"})
	sagasFailed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "saga", Name: "failed_total",
		Help: "Sagas that ended in the failed state.",
	})

	// Event publishing.
	eventsPublished = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "events", Name: "published_total",
		Help: "Events published, by event type.",
	}, []string{"event_type"})
	eventsDropped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "events", Name: "dropped_total",
		Help: "Events dropped by the notification bus (full or closed).",
	})

	// Record store.
	storeOpDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "store", Name: "op_duration_seconds",
		Help:    "Record store operation latency, by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	storeErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "store", Name: "errors_total",
		Help: "Record store errors, by operation.",
	}, []string{"op"})

	// HTTP front door.
	httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "http", Name: "requests_total",
		Help: "HTTP requests, by endpoint, method and status.",
	}, []string{"endpoint", "method", "status"})
	httpDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
		Help:    "HTTP request latency, by endpoint and method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "method"})
)

// Calculation lifecycle.
func RecordCalculationStarted()                  { calculationsStarted.Inc() }
func RecordCalculationCompleted()                { calculationsCompleted.Inc() }
func RecordCalculationFailed()                   { calculationsFailed.Inc() }
func RecordCalculationConflict()                 { calculationConflicts.Inc() }
func ObserveCalculationDuration(seconds float64) { calculationDuration.Observe(seconds) }
func AddMatchesProcessed(n int)                  { matchesProcessed.Add(float64(n)) }
func SetTeamsRanked(n int)                       { teamsRanked.Set(float64(n)) }

// Cache.
func RecordCacheHit()  { cacheHits.Inc() }
func RecordCacheMiss() { cacheMisses.Inc() }

// Saga.
func RecordSagaStep(step, outcome string) { sagaSteps.WithLabelValues(step, outcome).Inc() }
func RecordSagaCompensation(step string)  { sagaCompensations.WithLabelValues(step).Inc() }
func RecordSagaFailed()                   { sagasFailed.Inc() }

// Events.
func RecordEventPublished(eventType string) { eventsPublished.WithLabelValues(eventType).Inc() }
func RecordEventDropped()                   { eventsDropped.Inc() }

// Store.
func ObserveStoreOp(op string, seconds float64) { storeOpDuration.WithLabelValues(op).Observe(seconds) }
func RecordStoreError(op string)                { storeErrors.WithLabelValues(op).Inc() }

// HTTP.
func RecordHTTPRequest(endpoint, method, status string) {
	httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

func ObserveHTTPDuration(endpoint, method string, seconds float64) {
	httpDuration.WithLabelValues(endpoint, method).Observe(seconds)
}
