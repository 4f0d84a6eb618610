// Package docstore wraps the document service that receives generated
// meeting transcripts.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"scribe/internal/config"
	"scribe/internal/services"
)

const defaultRequestTimeout = 30 * time.Second

// Document is the stored transcript document as reported by the service.
type Document struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	ViewURL string `json:"view_url"`
}

// CreateRequest is the payload for a new transcript document.
type CreateRequest struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	MeetingID string `json:"meeting_id,omitempty"`
}

// Client talks to the document service API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a document service client from configuration.
func NewClient(cfg config.Docs, opts ...Option) *Client {
	timeout := defaultRequestTimeout
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// CreateDocument stores a transcript document and returns its identifiers.
func (c *Client) CreateDocument(ctx context.Context, req CreateRequest) (*Document, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, services.Wrap(services.ErrValidation, "docstore", "create", "document title is required", nil)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "docstore", "create", "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/documents", bytes.NewReader(payload))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "docstore", "create", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "docstore", "create", "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, services.Wrap(services.ErrConfiguration, "docstore", "create", "document service rejected credentials", nil)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, services.Wrap(services.ErrValidation, "docstore", "create",
			fmt.Sprintf("document service rejected request (status %d)", resp.StatusCode), nil)
	default:
		return nil, services.Wrap(services.ErrTransient, "docstore", "create",
			fmt.Sprintf("document service error (status %d)", resp.StatusCode), nil)
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, services.Wrap(services.ErrTransient, "docstore", "create", "decode response", err)
	}
	if doc.ID == "" {
		return nil, services.Wrap(services.ErrTransient, "docstore", "create", "document service returned no id", nil)
	}
	return &doc, nil
}
