package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scribe/internal/config"
)

const userAgent = "Scribe/0.1.0"

// Event identifies a notification kind.
type Event string

const (
	EventCompletion Event = "completion"
	EventFailure    Event = "failure"
	EventRecovery   Event = "recovery"
	EventTest       Event = "test"
)

// Payload carries event-specific fields used to format the message.
type Payload map[string]any

// Service defines the notification surface exposed to pipeline components.
// Publish returns the provider's message id when the webhook reports one, so
// callers can persist a reference to the posted message.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) (string, error)
}

// NewService builds a notification service backed by a chat webhook when
// configured. When no webhook URL is configured, a noop implementation is
// returned.
func NewService(cfg *config.Config) Service {
	endpoint := strings.TrimSpace(cfg.Notifications.WebhookURL)
	if endpoint == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &webhookService{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventCompletion: cfg.Notifications.Completion,
			EventFailure:    cfg.Notifications.Failure,
			EventRecovery:   cfg.Notifications.Recovery,
			EventTest:       true,
		},
	}
}

type webhookService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (w *webhookService) Publish(ctx context.Context, event Event, payload Payload) (string, error) {
	if w == nil || w.client == nil {
		return "", nil
	}
	if enabled, ok := w.enabled[event]; ok && !enabled {
		return "", nil
	}

	message := formatMessage(event, payload)
	if message == "" {
		return "", nil
	}
	return w.send(ctx, message)
}

func formatMessage(event Event, payload Payload) string {
	title := stringField(payload, "title")
	switch event {
	case EventCompletion:
		message := fmt.Sprintf("Meeting notes ready: %s", title)
		if url := stringField(payload, "document_url"); url != "" {
			message = fmt.Sprintf("%s\n%s", message, url)
		}
		return message
	case EventFailure:
		message := fmt.Sprintf("Processing failed: %s", title)
		if reason := stringField(payload, "error"); reason != "" {
			message = fmt.Sprintf("%s\nReason: %s", message, reason)
		}
		return message
	case EventRecovery:
		return fmt.Sprintf("Retrying stalled meeting: %s", title)
	case EventTest:
		return "Scribe notification test"
	default:
		return ""
	}
}

func stringField(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	switch value := payload[key].(type) {
	case string:
		return strings.TrimSpace(value)
	case error:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(value.Error())
	case fmt.Stringer:
		return strings.TrimSpace(value.String())
	default:
		return ""
	}
}

func (w *webhookService) send(ctx context.Context, message string) (string, error) {
	body, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return "", fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send webhook notification: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return messageID(respBody), nil
}

// messageID extracts the posted message's id from a webhook response. Chat
// providers answer with a JSON object carrying either an "id" or "ts" field;
// an empty string means the provider did not report one.
func messageID(body []byte) string {
	var resp struct {
		ID string `json:"id"`
		TS string `json:"ts"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	if resp.ID != "" {
		return resp.ID
	}
	return resp.TS
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) (string, error) { return "", nil }
