package events

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldrank/fieldrank/internal/adapters/store"
	"github.com/fieldrank/fieldrank/pkg/logger"
	"github.com/fieldrank/fieldrank/pkg/metrics"
)

// Publisher writes envelopes to the durable event log and routes them onto
// the notification bus. The log write is authoritative: a failed append is an
// error, while a dropped notification is not.
type Publisher struct {
	store store.Store
	bus   *Bus
	seen  *seenSet
	log   logger.Logger
	now   func() time.Time
}

// PublisherOption applies a configuration option to the Publisher.
type PublisherOption func(*Publisher)

// WithClock overrides the publisher's time source.
func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// WithDedupeCapacity bounds the redelivery-suppression window.
func WithDedupeCapacity(n int) PublisherOption {
	return func(p *Publisher) {
		p.seen = newSeenSet(n)
	}
}

// NewPublisher creates a Publisher over the given store and bus.
func NewPublisher(s store.Store, bus *Bus, log logger.Logger, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		store: s,
		bus:   bus,
		seen:  newSeenSet(defaultSeenCapacity),
		log:   log.Named("events"),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish builds a fresh envelope and emits it.
func (p *Publisher) Publish(ctx context.Context, eventType, aggregateID string, data map[string]any) (Envelope, error) {
	e := NewEnvelope(eventType, aggregateID, data, p.now())
	if err := p.PublishEnvelope(ctx, e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// PublishEnvelope emits a pre-built envelope. Re-publishing an envelope that
// was already seen is a logged no-op, which makes retries safe.
func (p *Publisher) PublishEnvelope(ctx context.Context, e Envelope) error {
	if p.seen.seenAndRecord(e.EventID) {
		p.log.Info(ctx, "duplicate event suppressed",
			logger.String("event_id", e.EventID),
			logger.String("event_type", e.EventType))
		return nil
	}

	if err := p.store.Put(ctx, store.KindEvent, e.EventID, e); err != nil {
		return fmt.Errorf("append event %s: %w", e.EventID, err)
	}

	metrics.RecordEventPublished(e.EventType)
	if p.bus != nil && !p.bus.Route(e) {
		p.log.Warn(ctx, "notification dropped",
			logger.String("event_id", e.EventID),
			logger.String("event_type", e.EventType))
	}

	p.log.Info(ctx, "published event",
		logger.String("event_id", e.EventID),
		logger.String("event_type", e.EventType),
		logger.String("aggregate_id", e.AggregateID))
	return nil
}
