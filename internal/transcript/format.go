// Package transcript renders captured caption lines into a readable document
// body.
package transcript

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"scribe/internal/botgateway"
)

var titleCaser = cases.Title(language.English)

// DocumentTitle builds the document name for a processed meeting.
func DocumentTitle(meetingTitle string, startedAt *time.Time) string {
	title := strings.TrimSpace(meetingTitle)
	if title == "" {
		title = "Meeting Notes"
	}
	if startedAt == nil {
		return title
	}
	return fmt.Sprintf("%s (%s)", title, startedAt.UTC().Format("2006-01-02"))
}

// Render formats transcript entries as speaker turns. Contiguous lines from
// the same speaker merge into one block headed by the speaker name and the
// offset of the first line.
func Render(entries []botgateway.TranscriptEntry) string {
	if len(entries) == 0 {
		return "No transcript was captured for this meeting."
	}

	var b strings.Builder
	var currentSpeaker string
	open := false

	for _, entry := range entries {
		text := strings.TrimSpace(entry.Text)
		if text == "" {
			continue
		}
		speaker := SpeakerName(entry.Speaker)
		if !open || speaker != currentSpeaker {
			if open {
				b.WriteString("\n\n")
			}
			b.WriteString(fmt.Sprintf("%s [%s]:\n", speaker, formatOffset(entry.OffsetSeconds)))
			currentSpeaker = speaker
			open = true
		} else {
			b.WriteString(" ")
		}
		b.WriteString(text)
	}

	if !open {
		return "No transcript was captured for this meeting."
	}
	return b.String()
}

// SpeakerName normalizes a raw speaker label into display casing.
func SpeakerName(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "Unknown Speaker"
	}
	// Provider labels often arrive lowercased or shouty.
	return titleCaser.String(strings.ToLower(name))
}

func formatOffset(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
