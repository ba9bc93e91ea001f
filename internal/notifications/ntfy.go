package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shelver/internal/config"
)

const userAgent = "Shelver-Go/0.1.0"

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfySubscriber struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

// NewNtfySubscriber builds an ntfy subscriber when a topic is configured.
// It returns nil when notifications are disabled.
func NewNtfySubscriber(cfg *config.Config) Subscriber {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return nil
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfySubscriber{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventDiscovered:           cfg.Notifications.Discovered,
			EventClassified:           cfg.Notifications.Classified,
			EventReadyForConfirmation: cfg.Notifications.ReadyForConfirmation,
			EventMoved:                cfg.Notifications.Moved,
			EventFailed:               cfg.Notifications.Failed,
			EventTest:                 true,
		},
	}
}

func (n *ntfySubscriber) Notify(ctx context.Context, event Event, p Payload) error {
	if !n.enabled[event] {
		return nil
	}
	data, ok := format(event, p)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func format(event Event, p Payload) (payload, bool) {
	name := text(p, "name")
	switch event {
	case EventDiscovered:
		return payload{
			title:   "Shelver - Discovered",
			message: fmt.Sprintf("📥 New file: %s", name),
			tags:    []string{"shelver", "discovered"},
		}, true
	case EventClassified:
		return payload{
			title:   "Shelver - Classified",
			message: fmt.Sprintf("🏷️ %s → %s (%s, %s)", name, orUnknown(text(p, "category")), confidenceText(p), orUnknown(text(p, "decision"))),
			tags:    []string{"shelver", "classified"},
		}, true
	case EventReadyForConfirmation:
		message := fmt.Sprintf("Confirm category for %s", name)
		if category := text(p, "category"); category != "" {
			message = fmt.Sprintf("%s\nSuggested: %s (%s)", message, category, confidenceText(p))
		}
		if fp := text(p, "fingerprint"); fp != "" {
			message = fmt.Sprintf("%s\nshelver confirm %s <category>", message, shortID(fp))
		}
		return payload{
			title:   "Shelver - Needs Confirmation",
			message: message,
			tags:    []string{"shelver", "review"},
		}, true
	case EventMoved:
		message := fmt.Sprintf("📚 Shelved: %s", name)
		if target := text(p, "target"); target != "" {
			message = fmt.Sprintf("%s\nFile: %s", message, target)
		}
		return payload{
			title:   "Shelver - Library Updated",
			message: message,
			tags:    []string{"shelver", "moved"},
		}, true
	case EventFailed:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if name != "" {
			builder.WriteString(" with ")
			builder.WriteString(name)
		}
		builder.WriteString(": ")
		if errText := text(p, "error"); errText != "" {
			builder.WriteString(errText)
		} else {
			builder.WriteString("unknown")
		}
		return payload{
			title:    "Shelver - Error",
			message:  builder.String(),
			tags:     []string{"shelver", "error", orUnknown(text(p, "kind"))},
			priority: "high",
		}, true
	case EventTest:
		return payload{
			title:    "Shelver - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"shelver", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func text(p Payload, key string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

func confidenceText(p Payload) string {
	switch v := p["confidence"].(type) {
	case float64:
		return fmt.Sprintf("%.0f%%", v*100)
	case float32:
		return fmt.Sprintf("%.0f%%", v*100)
	default:
		return "n/a"
	}
}

func shortID(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func (n *ntfySubscriber) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
