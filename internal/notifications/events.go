package notifications

import "context"

// Event identifies a workflow milestone.
type Event string

const (
	EventDiscovered           Event = "discovered"
	EventClassified           Event = "classified"
	EventReadyForConfirmation Event = "ready_for_confirmation"
	EventMoved                Event = "moved"
	EventFailed               Event = "failed"
	EventTest                 Event = "test"
)

// Payload carries event details. Common keys are fingerprint, name,
// category, confidence, decision, target, kind and error.
type Payload map[string]any

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Publish(ctx context.Context, event Event, payload Payload)
}

// Subscriber receives dispatched events.
type Subscriber interface {
	Notify(ctx context.Context, event Event, payload Payload) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, event Event, payload Payload) error

// Notify calls f.
func (f SubscriberFunc) Notify(ctx context.Context, event Event, payload Payload) error {
	return f(ctx, event, payload)
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event, Payload) {}
