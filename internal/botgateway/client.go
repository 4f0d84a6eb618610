// Package botgateway wraps the meeting-bot provider API: session metadata,
// recording link validation, and recording downloads.
package botgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scribe/internal/config"
	"scribe/internal/services"
)

const (
	defaultRequestTimeout  = 30 * time.Second
	defaultDownloadTimeout = 10 * time.Minute
)

// Client talks to the provider's session API.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	downloadClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the client used for metadata requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithDownloadClient overrides the client used for recording downloads.
func WithDownloadClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.downloadClient = client
		}
	}
}

// NewClient constructs a provider client from configuration.
func NewClient(cfg config.Provider, opts ...Option) *Client {
	requestTimeout := defaultRequestTimeout
	if cfg.RequestTimeout > 0 {
		requestTimeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	downloadTimeout := defaultDownloadTimeout
	if cfg.DownloadTimeout > 0 {
		downloadTimeout = time.Duration(cfg.DownloadTimeout) * time.Second
	}

	client := &Client{
		baseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:         strings.TrimSpace(cfg.APIKey),
		httpClient:     &http.Client{Timeout: requestTimeout},
		downloadClient: &http.Client{Timeout: downloadTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// GetSessionData fetches the provider's metadata for a bot session.
func (c *Client) GetSessionData(ctx context.Context, sessionID string) (*SessionData, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, services.Wrap(services.ErrValidation, "botgateway", "session", "session id is required", nil)
	}

	endpoint := c.baseURL + "/v1/sessions/" + url.PathEscape(sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "botgateway", "session", "build request", err)
	}
	c.authorize(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "botgateway", "session", "request failed", err)
	}
	defer resp.Body.Close()

	if err := mapStatus("session", resp.StatusCode); err != nil {
		return nil, err
	}

	var data SessionData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, services.Wrap(services.ErrTransient, "botgateway", "session", "decode response", err)
	}
	if data.SessionID == "" {
		data.SessionID = sessionID
	}
	return &data, nil
}

// ValidateSource checks a recording link without downloading it. Expired or
// removed links surface as not-found errors so callers stop retrying.
func (c *Client) ValidateSource(ctx context.Context, recordingURL string) (*SourceInfo, error) {
	recordingURL = strings.TrimSpace(recordingURL)
	if recordingURL == "" {
		return nil, services.Wrap(services.ErrValidation, "botgateway", "validate", "recording url is required", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, recordingURL, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "botgateway", "validate", "build request", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "botgateway", "validate", "request failed", err)
	}
	defer resp.Body.Close()

	if err := mapStatus("validate", resp.StatusCode); err != nil {
		return nil, err
	}
	if resp.ContentLength == 0 {
		return nil, services.Wrap(services.ErrValidation, "botgateway", "validate", "recording is empty", nil)
	}

	return &SourceInfo{
		SizeBytes:   resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// DownloadRecording opens a streaming download of the recording. The caller
// owns the returned body and must close it.
func (c *Client) DownloadRecording(ctx context.Context, recordingURL string) (io.ReadCloser, *SourceInfo, error) {
	recordingURL = strings.TrimSpace(recordingURL)
	if recordingURL == "" {
		return nil, nil, services.Wrap(services.ErrValidation, "botgateway", "download", "recording url is required", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL, nil)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "botgateway", "download", "build request", err)
	}
	c.authorize(req)

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "botgateway", "download", "request failed", err)
	}
	if err := mapStatus("download", resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, nil, err
	}

	info := &SourceInfo{
		SizeBytes:   resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
	}
	return resp.Body, info, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// mapStatus classifies provider responses. Forbidden, missing, and gone links
// all mean the recording window closed, which is permanent.
func mapStatus(operation string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusForbidden, status == http.StatusNotFound, status == http.StatusGone:
		return services.Wrap(services.ErrNotFound, "botgateway", operation,
			fmt.Sprintf("recording unavailable (status %d)", status), nil)
	case status == http.StatusUnauthorized:
		return services.Wrap(services.ErrConfiguration, "botgateway", operation, "provider rejected credentials", nil)
	case status == http.StatusTooManyRequests:
		return services.Wrap(services.ErrTransient, "botgateway", operation, "provider throttled request", nil)
	case status >= 500:
		return services.Wrap(services.ErrTransient, "botgateway", operation,
			fmt.Sprintf("provider error (status %d)", status), nil)
	default:
		return services.Wrap(services.ErrTransient, "botgateway", operation,
			fmt.Sprintf("unexpected status %d", status), nil)
	}
}
