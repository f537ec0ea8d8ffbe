package events

import (
	"context"
	"sync"

	"github.com/fieldrank/fieldrank/pkg/logger"
	"github.com/fieldrank/fieldrank/pkg/metrics"
)

// Default bus configuration constants.
const defaultBusCapacity = 1024

// Subscriber receives routed envelopes. Subscribers run on the dispatch
// goroutine; long work belongs behind the invoker, not here.
type Subscriber func(ctx context.Context, e Envelope)

// Bus is a bounded in-memory notification channel with per-type routing.
// Publishing never blocks: a full or closed bus drops the envelope, which is
// acceptable for notifications because the durable log is written first.
type Bus struct {
	ch  chan Envelope
	log logger.Logger

	mu      sync.RWMutex
	subs    map[string][]Subscriber
	closed  bool
	started bool
	done    chan struct{}
}

// Option applies a configuration option to the Bus.
type Option func(*busConfig)

type busConfig struct {
	capacity int
}

// WithCapacity bounds the number of undelivered envelopes.
func WithCapacity(n int) Option {
	return func(c *busConfig) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// NewBus creates a notification bus.
func NewBus(log logger.Logger, opts ...Option) *Bus {
	cfg := busConfig{capacity: defaultBusCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Bus{
		ch:   make(chan Envelope, cfg.capacity),
		log:  log.Named("bus"),
		subs: make(map[string][]Subscriber),
		done: make(chan struct{}),
	}
}

// Subscribe registers a subscriber for an event type. Registration is
// expected at wiring time, before Start.
func (b *Bus) Subscribe(eventType string, fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventType] = append(b.subs[eventType], fn)
}

// Route enqueues an envelope for delivery. Returns false when dropped.
func (b *Bus) Route(e Envelope) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		metrics.RecordEventDropped()
		return false
	}
	select {
	case b.ch <- e:
		return true
	default:
		metrics.RecordEventDropped()
		return false
	}
}

// Start runs the dispatch loop until ctx is canceled or the bus is closed.
// Starting twice is a no-op.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started || b.closed {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	go func() {
		defer close(b.done)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-b.ch:
				if !ok {
					return
				}
				b.dispatch(ctx, e)
			}
		}
	}()
}

// Close stops accepting envelopes and waits for the dispatcher to drain.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	started := b.started
	close(b.ch)
	b.mu.Unlock()

	if started {
		<-b.done
	}
}

func (b *Bus) dispatch(ctx context.Context, e Envelope) {
	b.mu.RLock()
	subscribers := b.subs[e.EventType]
	b.mu.RUnlock()

	if len(subscribers) == 0 {
		b.log.Debug(ctx, "no subscribers for event",
			logger.String("event_type", e.EventType))
		return
	}
	for _, fn := range subscribers {
		fn(ctx, e)
	}
}
