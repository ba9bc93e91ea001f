package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"shelver/internal/config"
	"shelver/internal/notifications"
)

func TestNewNtfySubscriberDisabledWithoutTopic(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	if sub := notifications.NewNtfySubscriber(&cfg); sub != nil {
		t.Fatalf("expected nil subscriber without topic, got %T", sub)
	}
}

func TestNtfySubscriberFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "moved",
			event: notifications.EventMoved,
			payload: notifications.Payload{
				"name":   "Show.Name.S01E01.mkv",
				"target": "/library/Show Name/Season 01/Show.Name.S01E01.mkv",
			},
			expectTitle:   "Shelver - Library Updated",
			expectMessage: "📚 Shelved: Show.Name.S01E01.mkv\nFile: /library/Show Name/Season 01/Show.Name.S01E01.mkv",
			expectTags:    "shelver,moved",
		},
		{
			name:  "ready for confirmation",
			event: notifications.EventReadyForConfirmation,
			payload: notifications.Payload{
				"name":        "holiday.mov",
				"category":    "Home Videos",
				"confidence":  0.72,
				"fingerprint": "0123456789abcdef0123",
			},
			expectTitle:   "Shelver - Needs Confirmation",
			expectMessage: "Confirm category for holiday.mov\nSuggested: Home Videos (72%)\nshelver confirm 0123456789ab <category>",
			expectTags:    "shelver,review",
		},
		{
			name:  "failed",
			event: notifications.EventFailed,
			payload: notifications.Payload{
				"name":  "report.pdf",
				"kind":  "move_conflict",
				"error": "target exists",
			},
			expectTitle:    "Shelver - Error",
			expectMessage:  "❌ Error with report.pdf: target exists",
			expectTags:     "shelver,error,move_conflict",
			expectPriority: "high",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			payload:        notifications.Payload{},
			expectTitle:    "Shelver - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "shelver,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			sub := notifications.NewNtfySubscriber(&cfg)
			if err := sub.Notify(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfySubscriberHonoursToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.Header.Get("Title"))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Discovered = false
	cfg.Notifications.Classified = false
	cfg.Notifications.Moved = false

	sub := notifications.NewNtfySubscriber(&cfg)
	for _, event := range []notifications.Event{
		notifications.EventDiscovered,
		notifications.EventClassified,
		notifications.EventMoved,
		notifications.Event("unknown"),
	} {
		if err := sub.Notify(context.Background(), event, notifications.Payload{"name": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfySubscriberReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	sub := notifications.NewNtfySubscriber(&cfg)
	if err := sub.Notify(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
