package botgateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"scribe/internal/config"
	"scribe/internal/services"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.Provider{BaseURL: baseURL, APIKey: "secret"})
}

func TestGetSessionData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sessions/sess-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
            "conference_id": "conf-1",
            "title": "Design Review",
            "recording_url": "https://cdn.example.com/rec.mp4",
            "recording_ready": true,
            "duration_seconds": 1800,
            "transcript": [{"speaker": "ada", "text": "hello", "offset_seconds": 1.5}]
        }`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	data, err := client.GetSessionData(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetSessionData: %v", err)
	}
	if data.SessionID != "sess-1" {
		t.Errorf("session id = %q", data.SessionID)
	}
	if data.Title != "Design Review" || data.ConferenceID != "conf-1" {
		t.Errorf("metadata = %+v", data)
	}
	if !data.HasRecording() {
		t.Error("expected a downloadable recording")
	}
	if len(data.Transcript) != 1 || data.Transcript[0].Speaker != "ada" {
		t.Errorf("transcript = %+v", data.Transcript)
	}
}

func TestGetSessionDataStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		marker error
	}{
		{http.StatusNotFound, services.ErrNotFound},
		{http.StatusGone, services.ErrNotFound},
		{http.StatusForbidden, services.ErrNotFound},
		{http.StatusUnauthorized, services.ErrConfiguration},
		{http.StatusTooManyRequests, services.ErrTransient},
		{http.StatusBadGateway, services.ErrTransient},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		client := newTestClient(server.URL)
		_, err := client.GetSessionData(context.Background(), "sess-x")
		server.Close()
		if err == nil {
			t.Errorf("status %d: expected error", tc.status)
			continue
		}
		if !errors.Is(err, tc.marker) {
			t.Errorf("status %d: error %v does not match marker", tc.status, err)
		}
	}
}

func TestValidateSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s", r.Method)
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", "2048")
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	info, err := client.ValidateSource(context.Background(), server.URL+"/rec.mp4")
	if err != nil {
		t.Fatalf("ValidateSource: %v", err)
	}
	if info.SizeBytes != 2048 || info.ContentType != "video/mp4" {
		t.Fatalf("info = %+v", info)
	}
}

func TestValidateSourceExpiredLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.ValidateSource(context.Background(), server.URL+"/rec.mp4")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found marker, got %v", err)
	}
	if !services.IsFatal(err) {
		t.Fatal("expired link should be fatal")
	}
}

func TestDownloadRecordingStreams(t *testing.T) {
	payload := []byte("fake video bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	body, info, err := client.DownloadRecording(context.Background(), server.URL+"/rec.mp4")
	if err != nil {
		t.Fatalf("DownloadRecording: %v", err)
	}
	defer body.Close()

	got, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("body = %q", got)
	}
	if info.ContentType != "video/mp4" {
		t.Fatalf("info = %+v", info)
	}
}

func TestDownloadRecordingExpired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, _, err := client.DownloadRecording(context.Background(), server.URL+"/rec.mp4")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found marker, got %v", err)
	}
}

func TestEmptyArgumentsRejected(t *testing.T) {
	client := newTestClient("http://127.0.0.1:0")
	if _, err := client.GetSessionData(context.Background(), "  "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := client.ValidateSource(context.Background(), ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, _, err := client.DownloadRecording(context.Background(), ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
