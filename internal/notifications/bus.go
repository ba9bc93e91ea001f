package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"shelver/internal/logging"
)

const defaultBufferSize = 256

// delivery bounds one subscriber call so a slow transport cannot stall the
// dispatcher indefinitely.
const deliveryTimeout = 30 * time.Second

type envelope struct {
	event   Event
	payload Payload
}

// Bus is a buffered, non-blocking Publisher that dispatches to subscribers.
type Bus struct {
	logger      *slog.Logger
	subscribers []Subscriber
	events      chan envelope
	done        chan struct{}

	// OnDrop is called when an event is discarded because the buffer is full.
	OnDrop func(Event)

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// NewBus starts a bus with the given buffer size. A non-positive size uses
// the default.
func NewBus(bufferSize int, logger *slog.Logger, subscribers ...Subscriber) *Bus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	b := &Bus{
		logger:      logging.NewComponentLogger(logger, "notifications"),
		subscribers: subscribers,
		events:      make(chan envelope, bufferSize),
		done:        make(chan struct{}),
	}
	b.OnDrop = func(event Event) {
		logging.WarnWithContext(b.logger, "notification dropped", "notification_dropped",
			logging.String("event", string(event)),
			logging.String(logging.FieldImpact, "subscribers will not see this event"),
			logging.String(logging.FieldErrorHint, "raise notifications.buffer_size if this repeats"),
		)
	}
	go b.run()
	return b
}

// Publish enqueues the event or drops it when the buffer is full or the bus
// is closed.
func (b *Bus) Publish(_ context.Context, event Event, payload Payload) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.events <- envelope{event: event, payload: payload}:
	default:
		if b.OnDrop != nil {
			b.OnDrop(event)
		}
	}
}

// Close stops accepting events and waits for buffered events to be delivered.
// It is safe to call more than once.
func (b *Bus) Close() {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.events)
		b.mu.Unlock()
	})
	<-b.done
}

func (b *Bus) run() {
	defer close(b.done)
	for env := range b.events {
		for _, sub := range b.subscribers {
			b.deliver(sub, env)
		}
	}
}

func (b *Bus) deliver(sub Subscriber, env envelope) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(b.logger, "notification subscriber panicked", "notification_panic",
				logging.String("event", string(env.event)),
				logging.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	if err := sub.Notify(ctx, env.event, env.payload); err != nil {
		logging.WarnWithContext(b.logger, "notification delivery failed", "notification_failed",
			logging.String("event", string(env.event)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "notification not delivered"),
		)
	}
}
