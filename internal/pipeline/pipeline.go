// Package pipeline turns a finished bot session into archived artifacts: the
// recording object, the transcript document, and the completion notification.
package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"scribe/internal/botgateway"
	"scribe/internal/config"
	"scribe/internal/docstore"
	"scribe/internal/logging"
	"scribe/internal/meeting"
	"scribe/internal/notifications"
	"scribe/internal/services"
	"scribe/internal/stepexec"
	"scribe/internal/storage"
)

// SessionSource exposes the provider operations the pipeline needs.
type SessionSource interface {
	GetSessionData(ctx context.Context, sessionID string) (*botgateway.SessionData, error)
	ValidateSource(ctx context.Context, recordingURL string) (*botgateway.SourceInfo, error)
	DownloadRecording(ctx context.Context, recordingURL string) (io.ReadCloser, *botgateway.SourceInfo, error)
}

// RecordingArchive stores recording binaries.
type RecordingArchive interface {
	RecordingKey(publicID, contentType string) string
	UploadRecording(ctx context.Context, key, contentType string, size int64, body io.Reader) (*storage.UploadResult, error)
}

// DocumentCreator stores generated transcript documents.
type DocumentCreator interface {
	CreateDocument(ctx context.Context, req docstore.CreateRequest) (*docstore.Document, error)
}

// Pipeline owns the processing transition for meetings.
type Pipeline struct {
	store    *meeting.Store
	gateway  SessionSource
	archive  RecordingArchive
	docs     DocumentCreator
	notifier notifications.Service
	logger   *slog.Logger

	maxAttempts  int
	baseDelay    time.Duration
	accessWindow time.Duration
	sleep        stepexec.Sleeper
	now          func() time.Time

	wg sync.WaitGroup
}

// Option customizes pipeline behavior.
type Option func(*Pipeline)

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleep stepexec.Sleeper) Option {
	return func(p *Pipeline) {
		p.sleep = sleep
	}
}

// New constructs the pipeline with its collaborators.
func New(cfg *config.Config, store *meeting.Store, gateway SessionSource, archive RecordingArchive, docs DocumentCreator, notifier notifications.Service, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	p := &Pipeline{
		store:        store,
		gateway:      gateway,
		archive:      archive,
		docs:         docs,
		notifier:     notifier,
		logger:       logging.NewComponentLogger(logger, "pipeline"),
		maxAttempts:  cfg.Pipeline.StepMaxAttempts,
		baseDelay:    time.Duration(cfg.Pipeline.RetryBaseDelaySeconds) * time.Second,
		accessWindow: time.Duration(cfg.Provider.LinkExpirationMinutes) * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessRecording drives a meeting through the processing steps. The
// recordingURL and sessionID hints come from the triggering event and may be
// empty; missing values are resolved from the provider. Exactly one caller
// wins the processing claim; losers observe a logged no-op and a nil error.
func (p *Pipeline) ProcessRecording(ctx context.Context, meetingID int64, recordingURL, sessionID string) error {
	ctx = services.WithMeetingID(ctx, meetingID)
	logger := logging.WithContext(ctx, p.logger)

	m, err := p.store.GetByID(ctx, meetingID)
	if err != nil {
		return err
	}
	if m == nil {
		return services.Wrap(services.ErrNotFound, "pipeline", "process", "meeting not found", nil)
	}

	claimed, err := p.store.ClaimForProcessing(ctx, meetingID)
	if err != nil {
		return err
	}
	if !claimed {
		logger.Info("processing already handled, skipping",
			logging.String(logging.FieldEventType, "duplicate_trigger"),
			logging.String("status", string(m.Status)),
		)
		return nil
	}

	return p.runClaimed(ctx, meetingID, recordingURL, sessionID)
}

// RetryProcessing re-runs a failed meeting on explicit request. Completed and
// in-flight meetings are rejected.
func (p *Pipeline) RetryProcessing(ctx context.Context, meetingID int64) error {
	ctx = services.WithMeetingID(ctx, meetingID)

	m, err := p.claimRetry(ctx, meetingID)
	if err != nil {
		return err
	}
	return p.runClaimed(ctx, meetingID, "", m.SessionID)
}

// DispatchRetry performs the retry guards synchronously, then runs the
// pipeline in a supervised goroutine. The management API uses it so callers
// get the rejection immediately and the work in the background.
func (p *Pipeline) DispatchRetry(ctx context.Context, meetingID int64) error {
	ctx = services.WithMeetingID(ctx, meetingID)

	m, err := p.claimRetry(ctx, meetingID)
	if err != nil {
		return err
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		logger := logging.WithContext(ctx, p.logger)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("pipeline run panicked",
					logging.String(logging.FieldEventType, "pipeline_panic"),
					logging.Any("panic", r),
				)
			}
		}()
		if err := p.runClaimed(ctx, meetingID, "", m.SessionID); err != nil {
			logger.Error("dispatched retry failed", logging.Error(err))
		}
	}()
	return nil
}

func (p *Pipeline) claimRetry(ctx context.Context, meetingID int64) (*meeting.Meeting, error) {
	m, err := p.store.GetByID(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", "retry", "meeting not found", nil)
	}
	if m.Status == meeting.StatusCompleted {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "retry", "meeting already completed", nil)
	}
	if m.Status == meeting.StatusProcessing {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "retry", "meeting is being processed", nil)
	}

	claimed, err := p.store.ReclaimForProcessing(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "retry", "meeting changed state, retry later", nil)
	}
	return m, nil
}

// Dispatch runs ProcessRecording in a supervised goroutine. Failures stay on
// the meeting row; the caller only needs the trigger acknowledged.
func (p *Pipeline) Dispatch(ctx context.Context, meetingID int64, recordingURL, sessionID string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		logger := logging.WithContext(services.WithMeetingID(ctx, meetingID), p.logger)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("pipeline run panicked",
					logging.String(logging.FieldEventType, "pipeline_panic"),
					logging.Any("panic", r),
				)
			}
		}()
		if err := p.ProcessRecording(ctx, meetingID, recordingURL, sessionID); err != nil {
			logger.Error("dispatched pipeline run failed", logging.Error(err))
		}
	}()
}

// Wait blocks until all dispatched runs finish.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

type runState struct {
	meeting *meeting.Meeting
	session *botgateway.SessionData

	recordingURL string
	sourceInfo   *botgateway.SourceInfo
	upload       *storage.UploadResult
	document     *docstore.Document
}

func (p *Pipeline) runClaimed(ctx context.Context, meetingID int64, recordingURL, sessionID string) error {
	logger := logging.WithContext(ctx, p.logger)

	m, err := p.store.GetByID(ctx, meetingID)
	if err != nil {
		return err
	}
	if m == nil {
		return services.Wrap(services.ErrNotFound, "pipeline", "process", "meeting disappeared after claim", nil)
	}
	if sessionID == "" {
		sessionID = m.SessionID
	}

	logger.Info("processing started",
		logging.String(logging.FieldEventType, "pipeline_start"),
		logging.String("title", m.DisplayTitle()),
	)

	state := &runState{meeting: m, recordingURL: recordingURL}
	runStart := p.now()

	steps := []struct {
		step meeting.Step
		run  func(context.Context) error
	}{
		{meeting.StepFetchMetadata, func(ctx context.Context) error { return p.fetchMetadata(ctx, state, sessionID) }},
		{meeting.StepValidateSource, func(ctx context.Context) error { return p.validateSource(ctx, state) }},
		{meeting.StepTransferBinary, func(ctx context.Context) error { return p.transferBinary(ctx, state) }},
		{meeting.StepGenerateDocument, func(ctx context.Context) error { return p.generateDocument(ctx, state) }},
	}

	for _, entry := range steps {
		err := stepexec.Run(ctx, stepexec.Options{
			Logger:      p.logger,
			Store:       p.store,
			MeetingID:   meetingID,
			Step:        entry.step,
			MaxAttempts: p.maxAttempts,
			BaseDelay:   p.baseDelay,
			Sleep:       p.sleep,
		}, entry.run)
		if err != nil {
			// Once the provider access window has elapsed the source link is
			// gone; there is no point retrying the run later.
			if p.accessWindow > 0 && p.now().Sub(runStart) > p.accessWindow && !services.IsFatal(err) {
				err = services.Wrap(services.ErrNotFound, "pipeline", string(entry.step),
					"provider access window elapsed during processing", err)
			}
			return p.failRun(ctx, state, err)
		}
	}

	// Notify is best effort: a dead chat webhook must not fail the meeting.
	notifyErr := stepexec.Run(ctx, stepexec.Options{
		Logger:      p.logger,
		Store:       p.store,
		MeetingID:   meetingID,
		Step:        meeting.StepNotify,
		MaxAttempts: p.maxAttempts,
		BaseDelay:   p.baseDelay,
		Sleep:       p.sleep,
	}, func(ctx context.Context) error { return p.notifyCompletion(ctx, state) })
	if notifyErr != nil {
		logger.Warn("completion notification failed", logging.Error(notifyErr))
	}

	completed, err := p.store.MarkCompleted(ctx, meetingID)
	if err != nil {
		return err
	}
	if !completed {
		logger.Warn("meeting left processing before completion could be recorded")
		return nil
	}

	logger.Info("processing completed",
		logging.String(logging.FieldEventType, "pipeline_complete"),
		logging.String("recording_key", state.meeting.RecordingUploadID),
		logging.String("document_id", state.meeting.DocumentID),
	)
	return nil
}

func (p *Pipeline) fetchMetadata(ctx context.Context, state *runState, sessionID string) error {
	if sessionID == "" && state.recordingURL == "" {
		return services.Wrap(services.ErrValidation, "pipeline", "fetch-metadata",
			"meeting has neither a session id nor a recording url", nil)
	}
	if sessionID == "" {
		return nil
	}

	session, err := p.gateway.GetSessionData(ctx, sessionID)
	if err != nil {
		return err
	}
	state.session = session

	m := state.meeting
	if m.Title == "" && session.Title != "" {
		m.Title = session.Title
	}
	if m.ConferenceID == "" && session.ConferenceID != "" {
		m.ConferenceID = session.ConferenceID
	}
	if state.recordingURL == "" {
		state.recordingURL = session.RecordingURL
	}
	if state.recordingURL == "" {
		return services.Wrap(services.ErrNotFound, "pipeline", "fetch-metadata",
			"provider reports no recording for this session", nil)
	}
	return p.store.Update(ctx, m)
}

// validateSource is advisory and never blocks the run. Signed links answer
// HEAD probes unreliably (403s on URLs that download fine), so the result is
// only logged; the download itself is the authoritative check.
func (p *Pipeline) validateSource(ctx context.Context, state *runState) error {
	info, err := p.gateway.ValidateSource(ctx, state.recordingURL)
	if err != nil {
		logging.WithContext(ctx, p.logger).Warn("source validation inconclusive", logging.Error(err))
		return nil
	}
	state.sourceInfo = info
	return nil
}

func (p *Pipeline) transferBinary(ctx context.Context, state *runState) error {
	body, info, err := p.gateway.DownloadRecording(ctx, state.recordingURL)
	if err != nil {
		return err
	}
	defer body.Close()

	contentType := info.ContentType
	size := info.SizeBytes
	if state.sourceInfo != nil {
		if contentType == "" {
			contentType = state.sourceInfo.ContentType
		}
		if size <= 0 {
			size = state.sourceInfo.SizeBytes
		}
	}

	key := p.archive.RecordingKey(state.meeting.PublicID, contentType)
	result, err := p.archive.UploadRecording(ctx, key, contentType, size, body)
	if err != nil {
		return err
	}
	state.upload = result

	m := state.meeting
	m.RecordingUploadID = result.Key
	m.RecordingViewURL = result.ViewURL
	return p.store.Update(ctx, m)
}

func (p *Pipeline) generateDocument(ctx context.Context, state *runState) error {
	var entries []botgateway.TranscriptEntry
	var startedAt *time.Time
	if state.session != nil {
		entries = state.session.Transcript
		startedAt = state.session.StartedAt
	}

	m := state.meeting
	doc, err := p.docs.CreateDocument(ctx, docstore.CreateRequest{
		Title:     transcriptTitle(m, startedAt),
		Body:      transcriptBody(entries, m),
		MeetingID: m.PublicID,
	})
	if err != nil {
		return err
	}
	state.document = doc

	m.DocumentID = doc.ID
	m.DocumentViewURL = doc.ViewURL
	return p.store.Update(ctx, m)
}

func (p *Pipeline) notifyCompletion(ctx context.Context, state *runState) error {
	messageID, err := p.notifier.Publish(ctx, notifications.EventCompletion, notifications.Payload{
		"title":        state.meeting.DisplayTitle(),
		"document_url": state.meeting.DocumentViewURL,
	})
	if err != nil {
		return err
	}
	if messageID == "" {
		return nil
	}
	state.meeting.ChatMessageID = messageID
	return p.store.Update(ctx, state.meeting)
}

func (p *Pipeline) failRun(ctx context.Context, state *runState, runErr error) error {
	logger := logging.WithContext(ctx, p.logger)
	message := services.Summarize(runErr)

	failed, err := p.store.MarkFailed(ctx, state.meeting.ID, message)
	if err != nil {
		logger.Error("failed to persist pipeline failure", logging.Error(err))
	} else if !failed {
		logger.Warn("meeting left processing before failure could be recorded")
	}

	logger.Error("processing failed",
		logging.String(logging.FieldEventType, "pipeline_failure"),
		logging.String(logging.FieldErrorKind, services.Kind(runErr)),
		logging.Error(runErr),
	)

	if _, notifyErr := p.notifier.Publish(ctx, notifications.EventFailure, notifications.Payload{
		"title": state.meeting.DisplayTitle(),
		"error": message,
	}); notifyErr != nil {
		logger.Debug("failure notification failed", logging.Error(notifyErr))
	}

	return runErr
}
