package workflow

import (
	"context"

	"shelver/internal/logging"
)

// runPreflightChecks logs the readiness of the classifier and the library
// before work starts. Failures do not block startup: an unavailable
// classifier postpones items and an unwritable library fails moves with a
// retryable error.
func (m *Manager) runPreflightChecks(ctx context.Context) {
	for _, checker := range m.checkers() {
		h := checker.HealthCheck(ctx)
		if h.Ready {
			m.logger.Info("preflight check passed",
				logging.String("check", h.Name),
				logging.String(logging.FieldEventType, "preflight_passed"),
			)
			continue
		}
		logging.WarnWithContext(m.logger, "preflight check failed", "preflight_failed",
			logging.String("check", h.Name),
			logging.String("detail", h.Detail),
			logging.String(logging.FieldImpact, "items wait until the component recovers"),
			logging.String(logging.FieldErrorHint, "run shelver status for component health"),
		)
	}
}
