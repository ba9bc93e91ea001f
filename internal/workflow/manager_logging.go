package workflow

import (
	"context"
	"log/slog"

	"shelver/internal/logging"
	"shelver/internal/queue"
	"shelver/internal/services"
)

// itemLogger returns a logger tagged with the stage, the item fingerprint
// and its display name.
func (m *Manager) itemLogger(ctx context.Context, item *queue.Item, stageName string) *slog.Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	if stageName != "" {
		if current, ok := services.StageFromContext(ctx); !ok || current != stageName {
			ctx = services.WithStage(ctx, stageName)
		}
	}
	if item != nil {
		if _, ok := services.FingerprintFromContext(ctx); !ok {
			ctx = services.WithFingerprint(ctx, item.Fingerprint)
		}
	}
	logger := logging.WithContext(ctx, m.logger)
	if item != nil && item.DisplayName != "" {
		logger = logger.With(logging.String("name", item.DisplayName))
	}
	return logger
}
