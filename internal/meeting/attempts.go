package meeting

import (
	"strings"
	"time"
)

// Step identifies one named unit of work in the fixed pipeline sequence.
type Step string

const (
	StepFetchMetadata    Step = "fetch-metadata"
	StepValidateSource   Step = "validate-source"
	StepTransferBinary   Step = "transfer-binary"
	StepGenerateDocument Step = "generate-document"
	StepNotify           Step = "notify"
)

// Steps returns the pipeline steps in execution order.
func Steps() []Step {
	return []Step{
		StepFetchMetadata,
		StepValidateSource,
		StepTransferBinary,
		StepGenerateDocument,
		StepNotify,
	}
}

// ParseStep converts a string into a known Step.
func ParseStep(value string) (Step, bool) {
	normalized := Step(strings.ToLower(strings.TrimSpace(value)))
	for _, step := range Steps() {
		if step == normalized {
			return step, true
		}
	}
	return "", false
}

// AttemptOutcome is the final disposition of a single step attempt.
type AttemptOutcome string

const (
	AttemptStarted   AttemptOutcome = "started"
	AttemptCompleted AttemptOutcome = "completed"
	AttemptFailed    AttemptOutcome = "failed"
)

// ProcessingAttempt is the durable audit record of a single try of one step.
// Rows are created when the try begins and finalized exactly once; after
// finalization they are never modified.
type ProcessingAttempt struct {
	ID           int64
	MeetingID    int64
	Step         Step
	Outcome      AttemptOutcome
	Attempt      int
	ErrorSummary string
	ContextJSON  string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// Duration returns how long the attempt ran, zero while still open.
func (a *ProcessingAttempt) Duration() time.Duration {
	if a.FinishedAt == nil {
		return 0
	}
	return a.FinishedAt.Sub(a.StartedAt)
}
