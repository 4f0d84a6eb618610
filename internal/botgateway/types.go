package botgateway

import "time"

// TranscriptEntry is one caption line captured by the bot during a session.
type TranscriptEntry struct {
	Speaker       string  `json:"speaker"`
	Text          string  `json:"text"`
	OffsetSeconds float64 `json:"offset_seconds"`
}

// SessionData is the provider's view of one bot session: conference metadata,
// the recording link, and the captured transcript.
type SessionData struct {
	SessionID       string            `json:"session_id"`
	ConferenceID    string            `json:"conference_id"`
	Title           string            `json:"title"`
	BotStatus       string            `json:"bot_status"`
	RecordingURL    string            `json:"recording_url"`
	RecordingReady  bool              `json:"recording_ready"`
	DurationSeconds int               `json:"duration_seconds"`
	StartedAt       *time.Time        `json:"started_at"`
	EndedAt         *time.Time        `json:"ended_at"`
	Transcript      []TranscriptEntry `json:"transcript"`
}

// HasRecording reports whether the provider exposes a downloadable recording.
func (s *SessionData) HasRecording() bool {
	return s != nil && s.RecordingReady && s.RecordingURL != ""
}

// SourceInfo describes a recording link checked without downloading it.
type SourceInfo struct {
	SizeBytes   int64
	ContentType string
}
