// Package events provides a small in-process publish/subscribe bus with
// at-least-once delivery. It decouples domains that react to each other's
// state changes, such as payments driving visit stage transitions.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is a single published fact. Payload keys are topic-specific.
type Event struct {
	ID         string
	Topic      string
	OccurredAt time.Time
	Payload    map[string]string
}

// Handler consumes one event. A non-nil error triggers redelivery, so
// handlers must be idempotent.
type Handler func(ctx context.Context, evt Event) error

const (
	defaultBuffer      = 256
	defaultMaxAttempts = 3
)

// Bus dispatches published events to topic subscribers from a single worker
// goroutine. Delivery is at-least-once: a failing handler is retried with
// backoff up to maxAttempts before the event is dropped and logged.
type Bus struct {
	mu          sync.RWMutex
	subs        map[string][]Handler
	queue       chan Event
	logger      zerolog.Logger
	maxAttempts int

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	drained   chan struct{}
}

func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		subs:        make(map[string][]Handler),
		queue:       make(chan Event, defaultBuffer),
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		done:        make(chan struct{}),
		drained:     make(chan struct{}),
	}
}

// Subscribe registers a handler for a topic. Subscriptions made after Start
// take effect for subsequently delivered events.
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], h)
}

// Publish enqueues an event for delivery. It assigns ID and OccurredAt when
// unset. Publish never blocks the caller beyond queue capacity.
func (b *Bus) Publish(evt Event) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	select {
	case b.queue <- evt:
	case <-b.done:
		b.logger.Warn().Str("topic", evt.Topic).Str("event_id", evt.ID).Msg("event bus closed, event dropped")
	}
}

// PublishSync delivers an event to its subscribers before returning, skipping
// the queue. Callers use it when the event must not sit in memory between a
// committed state change and its side effects.
func (b *Bus) PublishSync(ctx context.Context, evt Event) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	b.dispatch(ctx, evt)
}

// Start launches the dispatch worker. It returns immediately.
func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		go b.run(ctx)
	})
}

func (b *Bus) run(ctx context.Context) {
	defer close(b.drained)
	for {
		select {
		case evt := <-b.queue:
			b.dispatch(ctx, evt)
		case <-b.done:
			// Drain whatever was queued before shutdown.
			for {
				select {
				case evt := <-b.queue:
					b.dispatch(ctx, evt)
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, evt Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.subs[evt.Topic]))
	copy(handlers, b.subs[evt.Topic])
	b.mu.RUnlock()

	for _, h := range handlers {
		var err error
		for attempt := 1; attempt <= b.maxAttempts; attempt++ {
			if err = h(ctx, evt); err == nil {
				break
			}
			b.logger.Warn().
				Err(err).
				Str("topic", evt.Topic).
				Str("event_id", evt.ID).
				Int("attempt", attempt).
				Msg("event handler failed")
			select {
			case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			b.logger.Error().
				Err(err).
				Str("topic", evt.Topic).
				Str("event_id", evt.ID).
				Msg("event dropped after retries")
		}
	}
}

// Close stops accepting new events and waits for queued events to be
// delivered.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
	<-b.drained
}
