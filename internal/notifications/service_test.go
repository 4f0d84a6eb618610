package notifications_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scribe/internal/config"
	"scribe/internal/notifications"
)

func TestNewServiceReturnsNoopWhenWebhookMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.WebhookURL = ""
	svc := notifications.NewService(&cfg)
	if _, err := svc.Publish(context.Background(), notifications.EventCompletion, notifications.Payload{"title": "Example"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestWebhookServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name          string
		event         notifications.Event
		payload       notifications.Payload
		expectMessage string
	}{
		{
			name:  "completion with document link",
			event: notifications.EventCompletion,
			payload: notifications.Payload{
				"title":        "Weekly Sync",
				"document_url": "https://docs.example.com/doc-1",
			},
			expectMessage: "Meeting notes ready: Weekly Sync\nhttps://docs.example.com/doc-1",
		},
		{
			name:  "failure with reason",
			event: notifications.EventFailure,
			payload: notifications.Payload{
				"title": "Weekly Sync",
				"error": "recording link expired",
			},
			expectMessage: "Processing failed: Weekly Sync\nReason: recording link expired",
		},
		{
			name:          "recovery",
			event:         notifications.EventRecovery,
			payload:       notifications.Payload{"title": "Weekly Sync"},
			expectMessage: "Retrying stalled meeting: Weekly Sync",
		},
		{
			name:          "test",
			event:         notifications.EventTest,
			payload:       nil,
			expectMessage: "Scribe notification test",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotBody []byte
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s", r.Method)
				}
				if ct := r.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
					t.Errorf("content type = %q", ct)
				}
				gotBody, _ = io.ReadAll(r.Body)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.WebhookURL = server.URL
			svc := notifications.NewService(&cfg)

			if _, err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("Publish: %v", err)
			}

			var parsed map[string]string
			if err := json.Unmarshal(gotBody, &parsed); err != nil {
				t.Fatalf("unmarshal body: %v", err)
			}
			if parsed["text"] != tc.expectMessage {
				t.Fatalf("message = %q, want %q", parsed["text"], tc.expectMessage)
			}
		})
	}
}

func TestWebhookServiceHonorsEventToggles(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.WebhookURL = server.URL
	cfg.Notifications.Completion = false
	svc := notifications.NewService(&cfg)

	if _, err := svc.Publish(context.Background(), notifications.EventCompletion, notifications.Payload{"title": "Suppressed"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if calls != 0 {
		t.Fatalf("disabled event should not send, got %d calls", calls)
	}
}

func TestWebhookServiceSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "channel archived", http.StatusBadRequest)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.WebhookURL = server.URL
	svc := notifications.NewService(&cfg)

	_, err := svc.Publish(context.Background(), notifications.EventFailure, notifications.Payload{"title": "x", "error": "y"})
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Fatalf("error should carry status: %v", err)
	}
}

func TestWebhookServiceReturnsMessageID(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expectID string
	}{
		{name: "id field", response: `{"id":"msg-42"}`, expectID: "msg-42"},
		{name: "ts field", response: `{"ok":true,"ts":"1724900000.000100"}`, expectID: "1724900000.000100"},
		{name: "plain ok body", response: "ok", expectID: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tc.response)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.WebhookURL = server.URL
			svc := notifications.NewService(&cfg)

			id, err := svc.Publish(context.Background(), notifications.EventCompletion, notifications.Payload{"title": "Weekly Sync"})
			if err != nil {
				t.Fatalf("Publish: %v", err)
			}
			if id != tc.expectID {
				t.Fatalf("message id = %q, want %q", id, tc.expectID)
			}
		})
	}
}
