package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func executeCommand(t *testing.T, server *httptest.Server, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--server", strings.TrimPrefix(server.URL, "http://")))
	err := root.Execute()
	return out.String(), err
}

func TestListCommandRendersTable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"meetings": [
			{"id": 3, "title": "Planning", "status": "completed", "bot_join_status": "joined", "status_changed_at": "2026-08-28T10:00:00Z"}
		]}`))
	}))
	defer ts.Close()

	out, err := executeCommand(t, ts, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "Planning") || !strings.Contains(out, "completed") {
		t.Fatalf("output = %s", out)
	}
}

func TestListCommandEmpty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"meetings": []}`))
	}))
	defer ts.Close()

	out, err := executeCommand(t, ts, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "No meetings found") {
		t.Fatalf("output = %s", out)
	}
}

func TestRetryCommandReportsConflict(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error": "meeting is being processed"}`))
	}))
	defer ts.Close()

	_, err := executeCommand(t, ts, "retry", "3")
	if err == nil || !strings.Contains(err.Error(), "meeting is being processed") {
		t.Fatalf("err = %v", err)
	}
}

func TestShowCommandRendersAttempts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/api/meetings/3") {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": 3, "public_id": "abc", "session_id": "sess-3", "title": "Planning",
			"status": "completed", "bot_join_status": "joined",
			"created_at": "2026-08-28T10:00:00Z", "status_changed_at": "2026-08-28T11:00:00Z",
			"document_view_url": "https://docs.example.com/d/1",
			"attempts": [
				{"step": "fetch-metadata", "outcome": "success", "attempt": 1,
				 "started_at": "2026-08-28T10:30:00Z", "finished_at": "2026-08-28T10:30:01Z", "duration_ms": 1000}
			]
		}`))
	}))
	defer ts.Close()

	out, err := executeCommand(t, ts, "show", "3")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"Planning", "fetch-metadata", "success", "https://docs.example.com/d/1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
