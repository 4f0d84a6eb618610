// Package stepexec runs one pipeline step with durable attempt records and
// bounded retries.
package stepexec

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"scribe/internal/logging"
	"scribe/internal/meeting"
	"scribe/internal/services"
)

// Sleeper pauses between retries. Tests inject a no-op implementation.
type Sleeper func(ctx context.Context, d time.Duration) error

// Options controls step execution and attempt persistence behavior.
type Options struct {
	Logger      *slog.Logger
	Store       *meeting.Store
	MeetingID   int64
	Step        meeting.Step
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       Sleeper
	ContextJSON string
}

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 2 * time.Second
)

// Run executes op up to MaxAttempts times, recording one attempt row per try.
// Delays between tries double from BaseDelay. Fatal errors stop retries
// immediately; the returned error always describes the last failure and how
// many tries were spent.
func Run(ctx context.Context, opts Options, op func(context.Context) error) error {
	if opts.Store == nil {
		return fmt.Errorf("meeting store is required")
	}
	if op == nil {
		return fmt.Errorf("step operation unavailable: %s", opts.Step)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	stepCtx := services.WithStep(ctx, string(opts.Step))
	stepLogger := logging.WithContext(stepCtx, logger)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		record, err := opts.Store.StartAttempt(stepCtx, opts.MeetingID, opts.Step, attempt, opts.ContextJSON)
		if err != nil {
			return fmt.Errorf("record attempt start: %w", err)
		}

		opErr := op(stepCtx)
		if opErr == nil {
			if err := opts.Store.FinalizeAttempt(stepCtx, record.ID, meeting.AttemptCompleted, ""); err != nil {
				return fmt.Errorf("record attempt completion: %w", err)
			}
			if attempt > 1 {
				stepLogger.Info(
					"step recovered",
					logging.String(logging.FieldEventType, "step_retry_success"),
					logging.Int("attempt", attempt),
				)
			}
			return nil
		}

		lastErr = opErr
		summary := strings.TrimSpace(opErr.Error())
		if err := opts.Store.FinalizeAttempt(stepCtx, record.ID, meeting.AttemptFailed, summary); err != nil {
			return fmt.Errorf("record attempt failure: %w", err)
		}

		if services.IsFatal(opErr) {
			stepLogger.Error(
				"step failed permanently",
				logging.String(logging.FieldEventType, "step_failure"),
				logging.String(logging.FieldErrorKind, services.Kind(opErr)),
				logging.Int("attempt", attempt),
				logging.Error(opErr),
			)
			return fmt.Errorf("step %s failed on attempt %d: %w", opts.Step, attempt, opErr)
		}
		if attempt == maxAttempts {
			break
		}

		delay := baseDelay << (attempt - 1)
		stepLogger.Warn(
			"step attempt failed, retrying",
			logging.String(logging.FieldEventType, "step_retry"),
			logging.Int("attempt", attempt),
			logging.Duration("retry_in", delay),
			logging.Error(opErr),
		)
		if err := sleep(stepCtx, delay); err != nil {
			return fmt.Errorf("step %s interrupted after attempt %d: %w", opts.Step, attempt, err)
		}
	}

	stepLogger.Error(
		"step exhausted retries",
		logging.String(logging.FieldEventType, "step_failure"),
		logging.String(logging.FieldErrorKind, services.Kind(lastErr)),
		logging.Int("attempts", maxAttempts),
		logging.Error(lastErr),
	)
	return fmt.Errorf("step %s failed after %d attempts: %w", opts.Step, maxAttempts, lastErr)
}
