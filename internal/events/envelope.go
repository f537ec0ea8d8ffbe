// Package events publishes typed event envelopes to a durable append-only
// log and routes them onto an in-memory notification bus. Producers and
// consumers stay decoupled: the saga coordinator and calculation handlers
// publish; subscribers register per event type.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is stamped on every published envelope.
const EnvelopeVersion = "1.0"

// Well-known event types emitted by the pipeline.
const (
	TypeMatchesCollected     = "matches_collected"
	TypeCalculationCompleted = "rpi_calculation_completed"
	TypeResultsPublished     = "results_published"
	TypeCacheRefreshed       = "cache_refreshed"
	TypeSagaFailed           = "saga_failed"
)

// Envelope is the wire form of one event.
type Envelope struct {
	EventID     string         `bson:"event_id" json:"event_id"`
	EventType   string         `bson:"event_type" json:"event_type"`
	AggregateID string         `bson:"aggregate_id" json:"aggregate_id"`
	Timestamp   string         `bson:"timestamp" json:"timestamp"` // ISO-8601
	Data        map[string]any `bson:"data,omitempty" json:"data,omitempty"`
	Version     string         `bson:"version" json:"version"`
}

// NewEnvelope builds an envelope with a fresh id and the current time.
func NewEnvelope(eventType, aggregateID string, data map[string]any, now time.Time) Envelope {
	return Envelope{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		AggregateID: aggregateID,
		Timestamp:   now.UTC().Format(time.RFC3339Nano),
		Data:        data,
		Version:     EnvelopeVersion,
	}
}
