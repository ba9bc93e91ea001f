package notifications

import (
	"context"
	"log/slog"
	"sort"

	"shelver/internal/logging"
)

// LogSubscriber writes each event as a structured INFO line.
type LogSubscriber struct {
	Logger *slog.Logger
}

// Notify implements Subscriber.
func (s LogSubscriber) Notify(ctx context.Context, event Event, payload Payload) error {
	if s.Logger == nil {
		return nil
	}
	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	attrs := make([]logging.Attr, 0, len(keys)+1)
	attrs = append(attrs, logging.String(logging.FieldEventType, string(event)))
	for _, key := range keys {
		attrs = append(attrs, logging.Any(key, payload[key]))
	}
	s.Logger.InfoContext(ctx, "workflow event", logging.Args(attrs...)...)
	return nil
}
