// Package reconcile sweeps for meetings stuck in transient states and either
// escalates them to failed or re-triggers the pipeline with fresh provider
// data.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"scribe/internal/botgateway"
	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/meeting"
	"scribe/internal/notifications"
	"scribe/internal/services"
)

// SessionQuerier looks up fresh provider state for a stuck meeting.
type SessionQuerier interface {
	GetSessionData(ctx context.Context, sessionID string) (*botgateway.SessionData, error)
}

// Dispatcher hands recovered meetings to the pipeline without blocking the
// sweep.
type Dispatcher interface {
	Dispatch(ctx context.Context, meetingID int64, recordingURL, sessionID string)
	Wait()
}

// Poller runs the reconciliation sweep on a fixed cadence.
type Poller struct {
	store    *meeting.Store
	gateway  SessionQuerier
	pipeline Dispatcher
	notifier notifications.Service
	logger   *slog.Logger

	interval         time.Duration
	botJoinedRetry   time.Duration
	botJoinedCeiling time.Duration
	recordingRetry   time.Duration

	now func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stop      chan struct{}
	done      chan struct{}
}

// New constructs the poller from configuration.
func New(cfg *config.Config, store *meeting.Store, gateway SessionQuerier, pipeline Dispatcher, notifier notifications.Service, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Poller{
		store:            store,
		gateway:          gateway,
		pipeline:         pipeline,
		notifier:         notifier,
		logger:           logging.NewComponentLogger(logger, "reconcile"),
		interval:         time.Duration(cfg.Reconcile.PollIntervalSeconds) * time.Second,
		botJoinedRetry:   time.Duration(cfg.Reconcile.BotJoinedRetryMinutes) * time.Minute,
		botJoinedCeiling: time.Duration(cfg.Reconcile.BotJoinedCeilingHours) * time.Hour,
		recordingRetry:   time.Duration(cfg.Reconcile.RecordingRetryMinutes) * time.Minute,
		now:              func() time.Time { return time.Now().UTC() },
		stop:             make(chan struct{}),
		done:             make(chan struct{}),
	}
}

// Start launches the sweep loop. It returns immediately.
func (p *Poller) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.started.Store(true)
		go p.loop(ctx)
	})
}

// Stop halts scheduling immediately and waits for dispatched recoveries. It
// is safe on a poller that was never started.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
	if p.started.Load() {
		<-p.done
	}
	p.pipeline.Wait()
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep runs one reconciliation cycle. Store failures abort only this cycle;
// per-meeting failures are logged and skipped.
func (p *Poller) Sweep(ctx context.Context) {
	now := p.now()

	stuckJoined, err := p.store.StaleInStatus(ctx, meeting.StatusBotJoined, now.Add(-p.botJoinedRetry))
	if err != nil {
		p.logger.Error("sweep aborted, store unavailable", logging.Error(err))
		return
	}
	for _, m := range stuckJoined {
		if m.StuckAge(now) > p.botJoinedCeiling {
			p.forceFail(ctx, m)
			continue
		}
		p.requery(ctx, m)
	}

	stuckRecording, err := p.store.StaleInStatus(ctx, meeting.StatusRecording, now.Add(-p.recordingRetry))
	if err != nil {
		p.logger.Error("sweep aborted, store unavailable", logging.Error(err))
		return
	}
	for _, m := range stuckRecording {
		p.requery(ctx, m)
	}
}

func (p *Poller) forceFail(ctx context.Context, m *meeting.Meeting) {
	logger := logging.WithContext(services.WithMeetingID(ctx, m.ID), p.logger)

	failed, err := p.store.ForceFail(ctx, m.ID, meeting.StatusBotJoined, "bot joined but no recording appeared before the recovery ceiling")
	if err != nil {
		logger.Error("force-fail write failed", logging.Error(err))
		return
	}
	if !failed {
		logger.Info("meeting moved on before force-fail, skipping")
		return
	}

	logger.Warn("meeting force-failed after recovery ceiling",
		logging.String(logging.FieldEventType, "reconcile_force_fail"),
		logging.Duration("stuck_for", m.StuckAge(p.now())),
	)
	if _, notifyErr := p.notifier.Publish(ctx, notifications.EventFailure, notifications.Payload{
		"title": m.DisplayTitle(),
		"error": "no recording appeared before the recovery ceiling",
	}); notifyErr != nil {
		logger.Debug("force-fail notification failed", logging.Error(notifyErr))
	}
}

// requery asks the provider for fresh session state and dispatches the
// pipeline when a recording exists. Provider failures skip this meeting for
// this cycle only.
func (p *Poller) requery(ctx context.Context, m *meeting.Meeting) {
	logger := logging.WithContext(services.WithMeetingID(ctx, m.ID), p.logger)

	if m.SessionID == "" {
		logger.Warn("stuck meeting has no session id, cannot recover")
		return
	}

	session, err := p.gateway.GetSessionData(ctx, m.SessionID)
	if err != nil {
		logger.Warn("provider re-query failed, skipping meeting this cycle",
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.Error(err),
		)
		return
	}
	if !session.HasRecording() {
		logger.Debug("provider has no recording yet",
			logging.String("status", string(m.Status)),
		)
		return
	}

	logger.Info("recovering stuck meeting",
		logging.String(logging.FieldEventType, "reconcile_recover"),
		logging.String("status", string(m.Status)),
		logging.Duration("stuck_for", m.StuckAge(p.now())),
	)
	if _, notifyErr := p.notifier.Publish(ctx, notifications.EventRecovery, notifications.Payload{
		"title": m.DisplayTitle(),
	}); notifyErr != nil {
		logger.Debug("recovery notification failed", logging.Error(notifyErr))
	}

	p.pipeline.Dispatch(ctx, m.ID, session.RecordingURL, m.SessionID)
}
