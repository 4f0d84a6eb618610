package pipeline

import (
	"time"

	"scribe/internal/botgateway"
	"scribe/internal/meeting"
	"scribe/internal/transcript"
)

func transcriptTitle(m *meeting.Meeting, startedAt *time.Time) string {
	if startedAt == nil && !m.CreatedAt.IsZero() {
		created := m.CreatedAt
		startedAt = &created
	}
	return transcript.DocumentTitle(m.DisplayTitle(), startedAt)
}

func transcriptBody(entries []botgateway.TranscriptEntry, m *meeting.Meeting) string {
	body := transcript.Render(entries)
	if m.RecordingViewURL != "" {
		body += "\n\nRecording: " + m.RecordingViewURL
	}
	return body
}
