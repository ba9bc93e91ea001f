package workflow

import (
	"context"

	"shelver/internal/notifications"
	"shelver/internal/queue"
)

func (m *Manager) publishDiscovered(ctx context.Context, item *queue.Item) {
	m.publisher.Publish(ctx, notifications.EventDiscovered, notifications.Payload{
		"fingerprint": item.Fingerprint,
		"name":        item.DisplayName,
		"source":      item.SourcePath,
		"size_bytes":  item.SizeBytes,
	})
}

// publish emits an item event with the payload fields its formatter reads.
func (m *Manager) publish(ctx context.Context, event notifications.Event, item *queue.Item) {
	payload := notifications.Payload{
		"fingerprint": item.Fingerprint,
		"name":        item.DisplayName,
	}
	switch event {
	case notifications.EventClassified, notifications.EventReadyForConfirmation:
		payload["category"] = item.Category
		payload["confidence"] = item.Confidence
		payload["decision"] = string(item.Decision)
		if len(item.Alternatives) > 0 {
			names := make([]string, 0, len(item.Alternatives))
			for _, alt := range item.Alternatives {
				names = append(names, alt.Category)
			}
			payload["alternatives"] = names
		}
	case notifications.EventFailed:
		payload["kind"] = string(item.ErrorKind)
		payload["error"] = item.ErrorDetail
		payload["retry_count"] = item.RetryCount
		payload["will_retry"] = item.NextAttemptAt != nil
	}
	m.publisher.Publish(ctx, event, payload)
}
