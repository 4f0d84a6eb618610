package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"scribe/internal/services"
)

func newBufferLogger(t *testing.T, format string) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelDebug)
	var handler slog.Handler
	switch format {
	case "json":
		handler = newJSONHandler(&buf, levelVar)
	default:
		handler = newConsoleHandler(&buf, levelVar)
	}
	return slog.New(handler), &buf
}

func TestConsoleHandlerFormatsLine(t *testing.T) {
	logger, buf := newBufferLogger(t, "console")
	logger = NewComponentLogger(logger, "pipeline")
	logger.Info("step completed", String(FieldStep, "transfer-binary"), Int64(FieldMeetingID, 7))

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, "INFO pipeline: step completed") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "step=transfer-binary") || !strings.Contains(line, "meeting_id=7") {
		t.Fatalf("missing attributes: %q", line)
	}
}

func TestConsoleHandlerQuotesValuesWithSpaces(t *testing.T) {
	logger, buf := newBufferLogger(t, "console")
	logger.Warn("validation skipped", String("reason", "signed URL rejected"))
	if !strings.Contains(buf.String(), `reason="signed URL rejected"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestWithContextAddsFields(t *testing.T) {
	logger, buf := newBufferLogger(t, "console")
	ctx := services.WithMeetingID(context.Background(), 42)
	ctx = services.WithStep(ctx, "notify")
	ctx = services.WithRequestID(ctx, "req-1")

	WithContext(ctx, logger).Info("hello")
	line := buf.String()
	for _, want := range []string{"meeting_id=42", "step=notify", "correlation_id=req-1"} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestJSONHandlerLowercasesLevel(t *testing.T) {
	logger, buf := newBufferLogger(t, "json")
	logger.Error("boom")
	line := buf.String()
	if !strings.Contains(line, `"level":"error"`) {
		t.Fatalf("expected lowercase level, got %q", line)
	}
	if !strings.Contains(line, `"msg":"boom"`) {
		t.Fatalf("expected message attribute, got %q", line)
	}
}
