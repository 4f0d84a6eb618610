package testsupport

import (
	"context"
	"testing"

	"scribe/internal/config"
	"scribe/internal/meeting"
)

// MustOpenStore opens a meeting.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *meeting.Store {
	t.Helper()

	store, err := meeting.Open(cfg)
	if err != nil {
		t.Fatalf("meeting.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewMeeting creates a meeting row for tests using the provided store.
func NewMeeting(t testing.TB, store *meeting.Store, sessionID, title string) *meeting.Meeting {
	t.Helper()

	m, err := store.Create(context.Background(), &meeting.Meeting{
		SessionID: sessionID,
		Title:     title,
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return m
}
