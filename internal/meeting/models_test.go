package meeting

import (
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	cases := []struct {
		input string
		want  Status
		ok    bool
	}{
		{"started", StatusStarted, true},
		{"  Recording ", StatusRecording, true},
		{"PROCESSING", StatusProcessing, true},
		{"", "", false},
		{"exploded", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseStatus(tc.input)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseStatus(%q) = (%q, %v), want (%q, %v)", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusStarted, StatusBotJoining},
		{StatusStarted, StatusProcessing},
		{StatusBotJoining, StatusBotJoined},
		{StatusBotJoined, StatusRecording},
		{StatusRecording, StatusProcessing},
		{StatusProcessing, StatusCompleted},
		{StatusProcessing, StatusFailed},
		{StatusFailed, StatusProcessing},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be legal", tc.from, tc.to)
		}
	}

	forbidden := []struct{ from, to Status }{
		{StatusCompleted, StatusProcessing},
		{StatusCompleted, StatusFailed},
		{StatusProcessing, StatusRecording},
		{StatusRecording, StatusBotJoined},
		{StatusFailed, StatusCompleted},
		{StatusBotJoined, StatusStarted},
	}
	for _, tc := range forbidden {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be illegal", tc.from, tc.to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(StatusCompleted) || !IsTerminal(StatusFailed) {
		t.Fatal("completed and failed should be terminal")
	}
	for _, status := range []Status{StatusStarted, StatusBotJoining, StatusBotJoined, StatusRecording, StatusProcessing} {
		if IsTerminal(status) {
			t.Errorf("%s should not be terminal", status)
		}
	}
}

func TestStepsOrder(t *testing.T) {
	steps := Steps()
	want := []Step{StepFetchMetadata, StepValidateSource, StepTransferBinary, StepGenerateDocument, StepNotify}
	if len(steps) != len(want) {
		t.Fatalf("expected %d steps, got %d", len(want), len(steps))
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Errorf("step %d = %s, want %s", i, steps[i], want[i])
		}
	}
}

func TestParseStep(t *testing.T) {
	if step, ok := ParseStep(" Transfer-Binary "); !ok || step != StepTransferBinary {
		t.Fatalf("ParseStep = (%q, %v)", step, ok)
	}
	if _, ok := ParseStep("rewind"); ok {
		t.Fatal("expected unknown step to be rejected")
	}
}

func TestDisplayTitle(t *testing.T) {
	m := &Meeting{PublicID: "abc123"}
	if got := m.DisplayTitle(); got != "Meeting abc123" {
		t.Fatalf("DisplayTitle = %q", got)
	}
	m.ConferenceID = "conf-9"
	if got := m.DisplayTitle(); got != "Conference conf-9" {
		t.Fatalf("DisplayTitle = %q", got)
	}
	m.Title = "  Weekly Sync  "
	if got := m.DisplayTitle(); got != "Weekly Sync" {
		t.Fatalf("DisplayTitle = %q", got)
	}
}

func TestStuckAge(t *testing.T) {
	now := time.Now().UTC()
	m := &Meeting{StatusChangedAt: now.Add(-90 * time.Minute)}
	if age := m.StuckAge(now); age != 90*time.Minute {
		t.Fatalf("StuckAge = %s", age)
	}
	if age := (&Meeting{}).StuckAge(now); age != 0 {
		t.Fatalf("zero StatusChangedAt should yield zero age, got %s", age)
	}
}

func TestAttemptDuration(t *testing.T) {
	started := time.Now().UTC()
	finished := started.Add(3 * time.Second)
	attempt := &ProcessingAttempt{StartedAt: started}
	if attempt.Duration() != 0 {
		t.Fatal("open attempt should have zero duration")
	}
	attempt.FinishedAt = &finished
	if attempt.Duration() != 3*time.Second {
		t.Fatalf("Duration = %s", attempt.Duration())
	}
}
