package meeting

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a meeting.
type Status string

const (
	StatusStarted    Status = "started"
	StatusBotJoining Status = "bot_joining"
	StatusBotJoined  Status = "bot_joined"
	StatusRecording  Status = "recording"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// BotJoinStatus tracks whether the external bot made it into the conference.
type BotJoinStatus string

const (
	BotJoinPending BotJoinStatus = "pending"
	BotJoinJoined  BotJoinStatus = "joined"
	BotJoinFailed  BotJoinStatus = "failed"
)

var allStatuses = []Status{
	StatusStarted,
	StatusBotJoining,
	StatusBotJoined,
	StatusRecording,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// validTransitions encodes the forward edges of the lifecycle. The recovery
// edge failed -> processing is intentionally listed: it is legal, but only the
// claim operations in the store take it, never a plain status update.
var validTransitions = map[Status][]Status{
	StatusStarted:    {StatusBotJoining, StatusBotJoined, StatusRecording, StatusProcessing, StatusFailed},
	StatusBotJoining: {StatusBotJoined, StatusRecording, StatusProcessing, StatusFailed},
	StatusBotJoined:  {StatusRecording, StatusProcessing, StatusFailed},
	StatusRecording:  {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusProcessing},
	StatusCompleted:  {},
}

// claimableStatuses are the states from which the pipeline may take the
// processing transition on a normal trigger. failed is excluded: duplicate
// finished events for a dead meeting stay no-ops, and recovery goes through
// the explicit reclaim path instead.
var claimableStatuses = []Status{
	StatusStarted,
	StatusBotJoining,
	StatusBotJoined,
	StatusRecording,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, candidate := range validTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status ends the lifecycle. failed is terminal
// for everything except the bounded poller-driven recovery edge.
func IsTerminal(status Status) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Meeting represents one tracked conference occurrence and its artifacts.
type Meeting struct {
	ID              int64
	PublicID        string
	CalendarEventID string
	ConferenceID    string
	SessionID       string
	Title           string

	Status        Status
	BotJoinStatus BotJoinStatus
	ErrorMessage  string

	RecordingUploadID string
	RecordingViewURL  string
	DocumentID        string
	DocumentViewURL   string
	ChatMessageID     string

	CreatedAt             time.Time
	StatusChangedAt       time.Time
	ProcessingStartedAt   *time.Time
	ProcessingCompletedAt *time.Time
}

// IsProcessing reports whether a pipeline run owns this meeting right now.
func (m *Meeting) IsProcessing() bool {
	return m.Status == StatusProcessing
}

// StuckAge returns how long the meeting has rested in its current status.
func (m *Meeting) StuckAge(now time.Time) time.Duration {
	if m.StatusChangedAt.IsZero() {
		return 0
	}
	return now.Sub(m.StatusChangedAt)
}

// DisplayTitle returns the best human-readable label for the meeting.
func (m *Meeting) DisplayTitle() string {
	if title := strings.TrimSpace(m.Title); title != "" {
		return title
	}
	if m.ConferenceID != "" {
		return "Conference " + m.ConferenceID
	}
	return "Meeting " + m.PublicID
}
