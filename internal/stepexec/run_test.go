package stepexec_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"scribe/internal/meeting"
	"scribe/internal/services"
	"scribe/internal/stepexec"
	"scribe/internal/testsupport"
)

func recordingSleeper(delays *[]time.Duration) stepexec.Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestRunRetriesTransientThenSucceeds(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	m := testsupport.NewMeeting(t, store, "sess-step-1", "Retry")

	var delays []time.Duration
	calls := 0
	err := stepexec.Run(context.Background(), stepexec.Options{
		Store:       store,
		MeetingID:   m.ID,
		Step:        meeting.StepTransferBinary,
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Sleep:       recordingSleeper(&delays),
	}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return services.Wrap(services.ErrTransient, "storage", "upload", "connection reset", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 tries, got %d", calls)
	}
	if len(delays) != 2 || delays[0] != 2*time.Second || delays[1] != 4*time.Second {
		t.Fatalf("delays = %v", delays)
	}

	attempts, err := store.AttemptsForMeeting(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("AttemptsForMeeting: %v", err)
	}
	if len(attempts) != 3 {
		t.Fatalf("expected 3 attempt rows, got %d", len(attempts))
	}
	for i, attempt := range attempts {
		if attempt.Attempt != i+1 {
			t.Errorf("attempt %d numbered %d", i, attempt.Attempt)
		}
	}
	if attempts[0].Outcome != meeting.AttemptFailed || attempts[2].Outcome != meeting.AttemptCompleted {
		t.Fatalf("outcomes = %s, %s, %s", attempts[0].Outcome, attempts[1].Outcome, attempts[2].Outcome)
	}
	if attempts[0].ErrorSummary == "" {
		t.Fatal("failed attempts should record an error summary")
	}
}

func TestRunStopsOnFatalError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	m := testsupport.NewMeeting(t, store, "sess-step-2", "Gone")

	var delays []time.Duration
	calls := 0
	fatal := services.Wrap(services.ErrNotFound, "botgateway", "download", "recording expired", nil)
	err := stepexec.Run(context.Background(), stepexec.Options{
		Store:       store,
		MeetingID:   m.ID,
		Step:        meeting.StepValidateSource,
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Sleep:       recordingSleeper(&delays),
	}, func(ctx context.Context) error {
		calls++
		return fatal
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("error should keep the not-found marker: %v", err)
	}
	if calls != 1 {
		t.Fatalf("fatal error should not retry, got %d calls", calls)
	}
	if len(delays) != 0 {
		t.Fatalf("no backoff expected, got %v", delays)
	}

	attempts, lookupErr := store.AttemptsForMeeting(context.Background(), m.ID)
	if lookupErr != nil {
		t.Fatalf("AttemptsForMeeting: %v", lookupErr)
	}
	if len(attempts) != 1 || attempts[0].Outcome != meeting.AttemptFailed {
		t.Fatalf("attempts = %+v", attempts)
	}
}

func TestRunExhaustsAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	m := testsupport.NewMeeting(t, store, "sess-step-3", "Flaky")

	var delays []time.Duration
	calls := 0
	err := stepexec.Run(context.Background(), stepexec.Options{
		Store:       store,
		MeetingID:   m.ID,
		Step:        meeting.StepGenerateDocument,
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Sleep:       recordingSleeper(&delays),
	}, func(ctx context.Context) error {
		calls++
		return services.Wrap(services.ErrTransient, "docstore", "create", "service unavailable", nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Fatalf("error should mention attempt count: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 tries, got %d", calls)
	}
	if len(delays) != 2 {
		t.Fatalf("expected 2 sleeps, got %v", delays)
	}
	for i := 1; i < len(delays); i++ {
		if delays[i] <= delays[i-1] {
			t.Fatalf("delays should grow: %v", delays)
		}
	}

	attempts, lookupErr := store.AttemptsForMeeting(context.Background(), m.ID)
	if lookupErr != nil {
		t.Fatalf("AttemptsForMeeting: %v", lookupErr)
	}
	if len(attempts) != 3 {
		t.Fatalf("expected 3 attempt rows, got %d", len(attempts))
	}
	for _, attempt := range attempts {
		if attempt.Outcome != meeting.AttemptFailed {
			t.Errorf("attempt %d outcome = %s", attempt.Attempt, attempt.Outcome)
		}
	}
}

func TestRunHonorsContextCancellation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	m := testsupport.NewMeeting(t, store, "sess-step-4", "Cancelled")

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := stepexec.Run(ctx, stepexec.Options{
		Store:       store,
		MeetingID:   m.ID,
		Step:        meeting.StepFetchMetadata,
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}, func(ctx context.Context) error {
		calls++
		return services.Wrap(services.ErrTransient, "botgateway", "metadata", "timeout", nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single try, got %d", calls)
	}
}

func TestRunDefaultsRequireStoreAndOp(t *testing.T) {
	if err := stepexec.Run(context.Background(), stepexec.Options{}, func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("missing store should error")
	}

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	if err := stepexec.Run(context.Background(), stepexec.Options{Store: store, Step: meeting.StepNotify}, nil); err == nil {
		t.Fatal("missing operation should error")
	}
}
