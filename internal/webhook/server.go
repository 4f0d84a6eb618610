// Package webhook exposes the HTTP surface: the inbound provider event hook
// and the management API the CLI talks to.
package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/meeting"
	"scribe/internal/notifications"
	"scribe/internal/services"
)

// Processor is the pipeline surface the HTTP layer drives.
type Processor interface {
	Dispatch(ctx context.Context, meetingID int64, recordingURL, sessionID string)
	DispatchRetry(ctx context.Context, meetingID int64) error
}

// BotEvent is the closed set of provider lifecycle notifications.
type BotEvent string

const (
	EventBotJoining        BotEvent = "bot.joining"
	EventBotJoined         BotEvent = "bot.joined"
	EventRecordingStarted  BotEvent = "recording.started"
	EventRecordingFinished BotEvent = "recording.finished"
	EventBotFailed         BotEvent = "bot.failed"
)

var knownEvents = map[BotEvent]struct{}{
	EventBotJoining:        {},
	EventBotJoined:         {},
	EventRecordingStarted:  {},
	EventRecordingFinished: {},
	EventBotFailed:         {},
}

// botEventPayload is the provider's webhook body.
type botEventPayload struct {
	Event           string `json:"event"`
	SessionID       string `json:"session_id"`
	ConferenceID    string `json:"conference_id"`
	CalendarEventID string `json:"calendar_event_id"`
	Title           string `json:"title"`
	RecordingURL    string `json:"recording_url"`
	Error           string `json:"error"`
	Timestamp       string `json:"timestamp"`
}

// Server wires the gin router over the store and pipeline.
type Server struct {
	store    *meeting.Store
	pipeline Processor
	notifier notifications.Service
	logger   *slog.Logger
	token    string
	engine   *gin.Engine
}

// New constructs the HTTP server and registers all routes.
func New(cfg *config.Config, store *meeting.Store, pipeline Processor, notifier notifications.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		store:    store,
		pipeline: pipeline,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "webhook"),
		token:    strings.TrimSpace(cfg.Server.WebhookToken),
		engine:   engine,
	}

	engine.POST("/webhooks/bot", s.handleBotEvent)

	api := engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/meetings", s.handleListMeetings)
	api.GET("/meetings/:id", s.handleGetMeeting)
	api.POST("/meetings/:id/retry", s.handleRetryMeeting)
	api.POST("/meetings/:id/process", s.handleProcessMeeting)
	api.POST("/notify/test", s.handleTestNotify)

	return s
}

// Handler returns the underlying HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleBotEvent(c *gin.Context) {
	if s.token != "" && c.GetHeader("X-Webhook-Token") != s.token {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook token"})
		return
	}

	var payload botEventPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	event := BotEvent(strings.ToLower(strings.TrimSpace(payload.Event)))
	if _, ok := knownEvents[event]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event: " + payload.Event})
		return
	}
	if strings.TrimSpace(payload.SessionID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id required"})
		return
	}

	ctx := services.WithRequestID(c.Request.Context(), uuid.NewString())
	logger := logging.WithContext(ctx, s.logger)

	m, err := s.store.GetBySessionID(ctx, payload.SessionID)
	if err != nil {
		logger.Error("session lookup failed", logging.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}
	if m == nil {
		m, err = s.store.Create(ctx, &meeting.Meeting{
			SessionID:       payload.SessionID,
			ConferenceID:    payload.ConferenceID,
			CalendarEventID: payload.CalendarEventID,
			Title:           payload.Title,
		})
		if err != nil {
			logger.Error("meeting create failed", logging.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
			return
		}
		logger.Info("meeting registered from webhook",
			logging.Int64(logging.FieldMeetingID, m.ID),
			logging.String("session_id", payload.SessionID),
		)
	}

	ctx = services.WithMeetingID(ctx, m.ID)
	logger = logging.WithContext(ctx, s.logger)

	switch event {
	case EventBotJoining:
		s.advance(ctx, logger, m, meeting.StatusBotJoining)
	case EventBotJoined:
		s.advance(ctx, logger, m, meeting.StatusBotJoined)
		if err := s.store.UpdateBotJoinStatus(ctx, m.ID, meeting.BotJoinJoined); err != nil {
			logger.Error("bot join status update failed", logging.Error(err))
		}
	case EventRecordingStarted:
		s.advance(ctx, logger, m, meeting.StatusRecording)
	case EventRecordingFinished:
		logger.Info("recording finished, dispatching pipeline",
			logging.String(logging.FieldEventType, "recording_finished"),
		)
		s.pipeline.Dispatch(context.WithoutCancel(ctx), m.ID, payload.RecordingURL, payload.SessionID)
	case EventBotFailed:
		s.failBot(ctx, logger, m, payload.Error)
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// advance moves a meeting forward to target when the edge is legal. Stale and
// replayed events land here with an already-advanced row and become no-ops.
func (s *Server) advance(ctx context.Context, logger *slog.Logger, m *meeting.Meeting, target meeting.Status) {
	if !meeting.CanTransition(m.Status, target) {
		logger.Info("event ignored for current status",
			logging.String(logging.FieldEventType, "stale_event"),
			logging.String("status", string(m.Status)),
			logging.String("target", string(target)),
		)
		return
	}
	moved, err := s.store.TransitionStatus(ctx, m.ID, m.Status, target)
	if err != nil {
		logger.Error("status transition failed", logging.Error(err))
		return
	}
	if !moved {
		logger.Info("status changed concurrently, event dropped",
			logging.String("target", string(target)),
		)
		return
	}
	m.Status = target
}

func (s *Server) failBot(ctx context.Context, logger *slog.Logger, m *meeting.Meeting, reason string) {
	if err := s.store.UpdateBotJoinStatus(ctx, m.ID, meeting.BotJoinFailed); err != nil {
		logger.Error("bot join status update failed", logging.Error(err))
	}
	if meeting.IsTerminal(m.Status) || m.Status == meeting.StatusProcessing {
		logger.Info("bot failure ignored for current status",
			logging.String("status", string(m.Status)),
		)
		return
	}
	message := strings.TrimSpace(reason)
	if message == "" {
		message = "bot failed to join the conference"
	}
	if _, err := s.store.ForceFail(ctx, m.ID, m.Status, message); err != nil {
		logger.Error("bot failure transition failed", logging.Error(err))
		return
	}
	logger.Warn("meeting failed, bot never joined",
		logging.String(logging.FieldEventType, "bot_failed"),
		logging.String("reason", message),
	)
}

func (s *Server) handleHealth(c *gin.Context) {
	health, err := s.store.Health(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"total":      health.Total,
		"active":     health.Active,
		"processing": health.Processing,
		"completed":  health.Completed,
		"failed":     health.Failed,
	})
}

func (s *Server) handleListMeetings(c *gin.Context) {
	var statuses []meeting.Status
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, ok := meeting.ParseStatus(part)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status: " + part})
				return
			}
			statuses = append(statuses, status)
		}
	}

	meetings, err := s.store.List(c.Request.Context(), statuses...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}

	out := make([]gin.H, 0, len(meetings))
	for _, m := range meetings {
		out = append(out, meetingJSON(m))
	}
	c.JSON(http.StatusOK, gin.H{"meetings": out})
}

func (s *Server) handleGetMeeting(c *gin.Context) {
	m, ok := s.lookupMeeting(c)
	if !ok {
		return
	}

	attempts, err := s.store.AttemptsForMeeting(c.Request.Context(), m.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}

	attemptOut := make([]gin.H, 0, len(attempts))
	for _, attempt := range attempts {
		entry := gin.H{
			"step":       string(attempt.Step),
			"outcome":    string(attempt.Outcome),
			"attempt":    attempt.Attempt,
			"error":      attempt.ErrorSummary,
			"started_at": attempt.StartedAt,
		}
		if attempt.FinishedAt != nil {
			entry["finished_at"] = *attempt.FinishedAt
			entry["duration_ms"] = attempt.Duration().Milliseconds()
		}
		attemptOut = append(attemptOut, entry)
	}

	body := meetingJSON(m)
	body["attempts"] = attemptOut
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleRetryMeeting(c *gin.Context) {
	m, ok := s.lookupMeeting(c)
	if !ok {
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	err := s.pipeline.DispatchRetry(ctx, m.ID)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "retry dispatched", "id": m.ID})
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusConflict, gin.H{"error": services.Summarize(err)})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": services.Summarize(err)})
	}
}

func (s *Server) handleProcessMeeting(c *gin.Context) {
	m, ok := s.lookupMeeting(c)
	if !ok {
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	s.pipeline.Dispatch(ctx, m.ID, "", m.SessionID)
	c.JSON(http.StatusAccepted, gin.H{"status": "processing dispatched", "id": m.ID})
}

func (s *Server) handleTestNotify(c *gin.Context) {
	if _, err := s.notifier.Publish(c.Request.Context(), notifications.EventTest, nil); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": services.Summarize(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

// lookupMeeting resolves :id as a numeric row id first, then as a public id.
func (s *Server) lookupMeeting(c *gin.Context) (*meeting.Meeting, bool) {
	raw := c.Param("id")

	var m *meeting.Meeting
	var err error
	if id, parseErr := strconv.ParseInt(raw, 10, 64); parseErr == nil {
		m, err = s.store.GetByID(c.Request.Context(), id)
	} else {
		m, err = s.store.GetByPublicID(c.Request.Context(), raw)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return nil, false
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found"})
		return nil, false
	}
	return m, true
}

func meetingJSON(m *meeting.Meeting) gin.H {
	body := gin.H{
		"id":                m.ID,
		"public_id":         m.PublicID,
		"session_id":        m.SessionID,
		"conference_id":     m.ConferenceID,
		"calendar_event_id": m.CalendarEventID,
		"title":             m.Title,
		"status":            string(m.Status),
		"bot_join_status":   string(m.BotJoinStatus),
		"created_at":        m.CreatedAt,
		"status_changed_at": m.StatusChangedAt,
	}
	if m.ErrorMessage != "" {
		body["error_message"] = m.ErrorMessage
	}
	if m.RecordingViewURL != "" {
		body["recording_view_url"] = m.RecordingViewURL
		body["recording_upload_id"] = m.RecordingUploadID
	}
	if m.DocumentViewURL != "" {
		body["document_view_url"] = m.DocumentViewURL
		body["document_id"] = m.DocumentID
	}
	if m.ProcessingStartedAt != nil {
		body["processing_started_at"] = *m.ProcessingStartedAt
	}
	if m.ProcessingCompletedAt != nil {
		body["processing_completed_at"] = *m.ProcessingCompletedAt
	}
	return body
}
