package notifications

import (
	"log/slog"

	"shelver/internal/config"
)

// NewFromConfig builds a Bus with the log subscriber and, when a topic is
// configured, the ntfy subscriber.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Bus {
	subscribers := []Subscriber{LogSubscriber{Logger: logger}}
	if ntfy := NewNtfySubscriber(cfg); ntfy != nil {
		subscribers = append(subscribers, ntfy)
	}
	return NewBus(cfg.Notifications.BufferSize, logger, subscribers...)
}
