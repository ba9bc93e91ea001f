package workflow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"shelver/internal/logging"
	"shelver/internal/notifications"
	"shelver/internal/queue"
	"shelver/internal/services"
)

// handleFailure routes a stage error through the retry policy: retryable
// kinds are scheduled while the budget lasts, everything else is a terminal
// error. The failure is published either way.
func (m *Manager) handleFailure(ctx context.Context, logger *slog.Logger, item *queue.Item, from queue.Status, cause error) {
	persistCtx := context.WithoutCancel(ctx)
	kind := services.KindOf(cause)
	detail := strings.TrimSpace(cause.Error())

	updated, err := m.store.Fail(persistCtx, item.Fingerprint, from, kind, detail, m.policy)
	if err != nil {
		m.setLastError(err)
		logging.ErrorWithContext(logger, "failed to persist stage failure", "failure_persist_failed",
			logging.Error(err),
			logging.String("cause", detail),
		)
		return
	}
	m.setLastError(cause)
	m.setLastItem(updated)

	attrs := []logging.Attr{
		logging.Error(cause),
		logging.String("error_kind", string(kind)),
		logging.Int("retry_count", updated.RetryCount),
		logging.Bool("will_retry", updated.NextAttemptAt != nil),
		logging.String(logging.FieldErrorHint, failureHint(kind, updated.NextAttemptAt != nil)),
	}
	if updated.NextAttemptAt != nil {
		attrs = append(attrs, logging.String("next_attempt_at", updated.NextAttemptAt.Format(time.RFC3339)))
	}
	logging.ErrorWithContext(logger, "stage failed", "stage_failure", attrs...)

	m.publish(ctx, notifications.EventFailed, updated)
}

func failureHint(kind services.ErrorKind, willRetry bool) string {
	if willRetry {
		return "retry is scheduled automatically"
	}
	switch kind {
	case services.KindPermission:
		return "fix file permissions, then run shelver queue retry"
	case services.KindValidation:
		return "inspect the item with shelver queue show"
	case services.KindConfiguration:
		return "fix the configuration and restart the daemon"
	case services.KindCorruption:
		return "the file changed while it was processed; retry once it is stable"
	default:
		return "retry budget exhausted; run shelver queue retry when the cause is fixed"
	}
}
