package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// apiClient talks to the daemon's management API over HTTP.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(addr string) *apiClient {
	base := strings.TrimSpace(addr)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &apiClient{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type meetingView struct {
	ID                    int64         `json:"id"`
	PublicID              string        `json:"public_id"`
	SessionID             string        `json:"session_id"`
	ConferenceID          string        `json:"conference_id"`
	CalendarEventID       string        `json:"calendar_event_id"`
	Title                 string        `json:"title"`
	Status                string        `json:"status"`
	BotJoinStatus         string        `json:"bot_join_status"`
	ErrorMessage          string        `json:"error_message"`
	RecordingUploadID     string        `json:"recording_upload_id"`
	RecordingViewURL      string        `json:"recording_view_url"`
	DocumentID            string        `json:"document_id"`
	DocumentViewURL       string        `json:"document_view_url"`
	CreatedAt             time.Time     `json:"created_at"`
	StatusChangedAt       time.Time     `json:"status_changed_at"`
	ProcessingStartedAt   *time.Time    `json:"processing_started_at"`
	ProcessingCompletedAt *time.Time    `json:"processing_completed_at"`
	Attempts              []attemptView `json:"attempts"`
}

type attemptView struct {
	Step       string     `json:"step"`
	Outcome    string     `json:"outcome"`
	Attempt    int        `json:"attempt"`
	Error      string     `json:"error"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	DurationMS int64      `json:"duration_ms"`
}

type healthView struct {
	Status     string `json:"status"`
	Total      int64  `json:"total"`
	Active     int64  `json:"active"`
	Processing int64  `json:"processing"`
	Completed  int64  `json:"completed"`
	Failed     int64  `json:"failed"`
}

func (c *apiClient) ListMeetings(ctx context.Context, statuses string) ([]meetingView, error) {
	path := "/api/meetings"
	if trimmed := strings.TrimSpace(statuses); trimmed != "" {
		path += "?status=" + trimmed
	}
	var body struct {
		Meetings []meetingView `json:"meetings"`
	}
	if err := c.do(ctx, http.MethodGet, path, &body); err != nil {
		return nil, err
	}
	return body.Meetings, nil
}

func (c *apiClient) GetMeeting(ctx context.Context, id string) (*meetingView, error) {
	var body meetingView
	if err := c.do(ctx, http.MethodGet, "/api/meetings/"+id, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

func (c *apiClient) RetryMeeting(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/meetings/"+id+"/retry", nil)
}

func (c *apiClient) ProcessMeeting(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/meetings/"+id+"/process", nil)
}

func (c *apiClient) Health(ctx context.Context) (*healthView, error) {
	var body healthView
	if err := c.do(ctx, http.MethodGet, "/api/health", &body); err != nil {
		return nil, err
	}
	return &body, nil
}

func (c *apiClient) TestNotify(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/notify/test", nil)
}

func (c *apiClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return wrapDialError(err, c.baseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return apiError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode daemon response: %w", err)
	}
	return nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return fmt.Errorf("%s (HTTP %d)", body.Error, resp.StatusCode)
	}
	return fmt.Errorf("daemon returned HTTP %d", resp.StatusCode)
}

func wrapDialError(err error, base string) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("connect to daemon at %s: connection refused; verify scribed is running", base)
	}
	return fmt.Errorf("connect to daemon: %w", err)
}
