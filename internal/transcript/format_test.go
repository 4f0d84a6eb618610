package transcript

import (
	"strings"
	"testing"
	"time"

	"scribe/internal/botgateway"
)

func TestRenderGroupsSpeakerTurns(t *testing.T) {
	entries := []botgateway.TranscriptEntry{
		{Speaker: "ada lovelace", Text: "Good morning.", OffsetSeconds: 2},
		{Speaker: "ADA LOVELACE", Text: "Let's get started.", OffsetSeconds: 5},
		{Speaker: "grace hopper", Text: "Agenda is shared.", OffsetSeconds: 12},
		{Speaker: "ada lovelace", Text: "Thanks.", OffsetSeconds: 19},
	}

	out := Render(entries)

	want := "Ada Lovelace [00:02]:\nGood morning. Let's get started.\n\n" +
		"Grace Hopper [00:12]:\nAgenda is shared.\n\n" +
		"Ada Lovelace [00:19]:\nThanks."
	if out != want {
		t.Fatalf("render mismatch:\n got: %q\nwant: %q", out, want)
	}
}

func TestRenderEmptyAndBlankEntries(t *testing.T) {
	if out := Render(nil); !strings.Contains(out, "No transcript") {
		t.Fatalf("empty transcript output = %q", out)
	}
	entries := []botgateway.TranscriptEntry{{Speaker: "ada", Text: "   "}}
	if out := Render(entries); !strings.Contains(out, "No transcript") {
		t.Fatalf("blank transcript output = %q", out)
	}
}

func TestRenderLongOffsets(t *testing.T) {
	entries := []botgateway.TranscriptEntry{
		{Speaker: "ada", Text: "Still here.", OffsetSeconds: 3725},
	}
	out := Render(entries)
	if !strings.Contains(out, "[1:02:05]") {
		t.Fatalf("expected hour offset, got %q", out)
	}
}

func TestSpeakerName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"ada lovelace", "Ada Lovelace"},
		{"GRACE HOPPER", "Grace Hopper"},
		{"  ", "Unknown Speaker"},
	}
	for _, tc := range cases {
		if got := SpeakerName(tc.in); got != tc.want {
			t.Errorf("SpeakerName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDocumentTitle(t *testing.T) {
	started := time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC)
	if got := DocumentTitle("Weekly Sync", &started); got != "Weekly Sync (2025-06-03)" {
		t.Fatalf("DocumentTitle = %q", got)
	}
	if got := DocumentTitle("", nil); got != "Meeting Notes" {
		t.Fatalf("DocumentTitle = %q", got)
	}
}
