package meeting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"scribe/internal/config"
)

// Store manages meeting persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy absorbs SQLITE_BUSY from concurrent writers. The busy_timeout
// pragma only binds to the pooled connection it ran on, so contended claims
// still surface raw busy errors without this.
func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

const meetingColumns = `id, public_id, calendar_event_id, conference_id, session_id, title,
    status, bot_join_status, error_message,
    recording_upload_id, recording_view_url, document_id, document_view_url, chat_message_id,
    created_at, status_changed_at, processing_started_at, processing_completed_at`

const attemptColumns = `id, meeting_id, step, outcome, attempt, error_summary, context_json, started_at, finished_at`

// Open initializes or connects to the meeting database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "meetings.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the location of the backing database file.
func (s *Store) Path() string {
	return s.path
}

// Create inserts a new meeting. A public identifier is generated when the
// caller does not supply one; the meeting starts in the started status.
func (s *Store) Create(ctx context.Context, m *Meeting) (*Meeting, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	publicID := strings.TrimSpace(m.PublicID)
	if publicID == "" {
		publicID = uuid.NewString()
	}
	status := m.Status
	if status == "" {
		status = StatusStarted
	}
	botStatus := m.BotJoinStatus
	if botStatus == "" {
		botStatus = BotJoinPending
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO meetings (
            public_id, calendar_event_id, conference_id, session_id, title,
            status, bot_join_status, created_at, status_changed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		publicID,
		nullableString(m.CalendarEventID),
		nullableString(m.ConferenceID),
		nullableString(m.SessionID),
		nullableString(m.Title),
		status,
		botStatus,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert meeting: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID returns the meeting with the given row id, nil when absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*Meeting, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = ?`, id)
	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get meeting: %w", err)
	}
	return m, nil
}

// GetByPublicID returns the meeting with the given public identifier.
func (s *Store) GetByPublicID(ctx context.Context, publicID string) (*Meeting, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE public_id = ?`, publicID)
	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get meeting by public id: %w", err)
	}
	return m, nil
}

// GetBySessionID returns the meeting owning a bot session, nil when unknown.
func (s *Store) GetBySessionID(ctx context.Context, sessionID string) (*Meeting, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE session_id = ?`, sessionID)
	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get meeting by session id: %w", err)
	}
	return m, nil
}

// Update persists changes to an existing meeting. Status transitions should
// go through the guarded operations; Update writes the row as given.
func (s *Store) Update(ctx context.Context, m *Meeting) error {
	if m == nil {
		return errors.New("nil meeting")
	}

	_, err := s.execWithRetry(
		ctx,
		`UPDATE meetings SET
            calendar_event_id = ?, conference_id = ?, session_id = ?, title = ?,
            status = ?, bot_join_status = ?, error_message = ?,
            recording_upload_id = ?, recording_view_url = ?,
            document_id = ?, document_view_url = ?, chat_message_id = ?,
            status_changed_at = ?, processing_started_at = ?, processing_completed_at = ?
        WHERE id = ?`,
		nullableString(m.CalendarEventID),
		nullableString(m.ConferenceID),
		nullableString(m.SessionID),
		nullableString(m.Title),
		m.Status,
		m.BotJoinStatus,
		nullableString(m.ErrorMessage),
		nullableString(m.RecordingUploadID),
		nullableString(m.RecordingViewURL),
		nullableString(m.DocumentID),
		nullableString(m.DocumentViewURL),
		nullableString(m.ChatMessageID),
		m.StatusChangedAt.UTC().Format(time.RFC3339Nano),
		nullableTime(m.ProcessingStartedAt),
		nullableTime(m.ProcessingCompletedAt),
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("update meeting: %w", err)
	}
	return nil
}

// TransitionStatus moves a meeting from one status to another only when the
// row still holds the expected current status and the edge is legal. The
// boolean reports whether this call won the transition.
func (s *Store) TransitionStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	if !CanTransition(from, to) {
		return false, fmt.Errorf("illegal transition %s -> %s", from, to)
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE meetings SET status = ?, status_changed_at = ? WHERE id = ? AND status = ?`,
		to,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		from,
	)
	if err != nil {
		return false, fmt.Errorf("transition meeting: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition rows affected: %w", err)
	}
	return affected > 0, nil
}

// UpdateBotJoinStatus records the bot's join outcome without touching status.
func (s *Store) UpdateBotJoinStatus(ctx context.Context, id int64, status BotJoinStatus) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE meetings SET bot_join_status = ? WHERE id = ?`,
		status,
		id,
	)
	if err != nil {
		return fmt.Errorf("update bot join status: %w", err)
	}
	return nil
}

// ClaimForProcessing atomically moves a meeting into processing when it still
// sits in a pre-processing status. Exactly one concurrent caller wins; all
// others observe false and must treat the trigger as already handled.
func (s *Store) ClaimForProcessing(ctx context.Context, id int64) (bool, error) {
	return s.claim(ctx, id, claimableStatuses)
}

// ReclaimForProcessing is the recovery variant of ClaimForProcessing: it also
// accepts meetings already marked failed. Only retry requests and the stuck
// sweep use it.
func (s *Store) ReclaimForProcessing(ctx context.Context, id int64) (bool, error) {
	statuses := append([]Status{}, claimableStatuses...)
	statuses = append(statuses, StatusFailed)
	return s.claim(ctx, id, statuses)
}

func (s *Store) claim(ctx context.Context, id int64, statuses []Status) (bool, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	placeholders := makePlaceholders(len(statuses))

	args := make([]any, 0, len(statuses)+3)
	args = append(args, timestamp, timestamp, id)
	for _, status := range statuses {
		args = append(args, status)
	}

	res, err := s.execWithRetry(
		ctx,
		`UPDATE meetings
        SET status = '`+string(StatusProcessing)+`', status_changed_at = ?,
            processing_started_at = ?, processing_completed_at = NULL, error_message = NULL
        WHERE id = ? AND status IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("claim meeting: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkCompleted finishes a processing run successfully. It only applies while
// the meeting is still in processing.
func (s *Store) MarkCompleted(ctx context.Context, id int64) (bool, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE meetings
        SET status = ?, status_changed_at = ?, processing_completed_at = ?, error_message = NULL
        WHERE id = ? AND status = ?`,
		StatusCompleted,
		timestamp,
		timestamp,
		id,
		StatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("mark meeting completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkFailed records a processing failure with its user-facing message. It
// only applies while the meeting is still in processing.
func (s *Store) MarkFailed(ctx context.Context, id int64, message string) (bool, error) {
	return s.fail(ctx, id, StatusProcessing, message)
}

// ForceFail moves a meeting to failed from an arbitrary expected status. The
// stuck sweep uses it for meetings past the recovery ceiling.
func (s *Store) ForceFail(ctx context.Context, id int64, from Status, message string) (bool, error) {
	return s.fail(ctx, id, from, message)
}

func (s *Store) fail(ctx context.Context, id int64, from Status, message string) (bool, error) {
	// The completion timestamp records when the run ended, success or not.
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE meetings
        SET status = ?, status_changed_at = ?, processing_completed_at = ?, error_message = ?
        WHERE id = ? AND status = ?`,
		StatusFailed,
		timestamp,
		timestamp,
		nullableString(message),
		id,
		from,
	)
	if err != nil {
		return false, fmt.Errorf("mark meeting failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail rows affected: %w", err)
	}
	return affected > 0, nil
}

// List returns meetings, optionally filtered by status, oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Meeting, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + meetingColumns + ` FROM meetings`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	defer rows.Close()

	var meetings []*Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

// StaleInStatus returns meetings resting in a status since before the cutoff,
// oldest first.
func (s *Store) StaleInStatus(ctx context.Context, status Status, cutoff time.Time) ([]*Meeting, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+meetingColumns+` FROM meetings
        WHERE status = ? AND status_changed_at < ?
        ORDER BY status_changed_at`,
		status,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("stale meetings: %w", err)
	}
	defer rows.Close()

	var meetings []*Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

// Stats returns per-status meeting counts.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM meetings GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("meeting stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// HealthSummary aggregates meeting state for diagnostic output.
type HealthSummary struct {
	Total      int
	Active     int
	Processing int
	Completed  int
	Failed     int
}

// Health aggregates meeting counts for the health endpoint and CLI status.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusProcessing:
			health.Processing += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		default:
			health.Active += count
		}
	}
	return health, nil
}

// Remove deletes a meeting and, through the schema, its attempt history.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM meetings WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("remove meeting: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove rows affected: %w", err)
	}
	return affected > 0, nil
}

// StartAttempt records the beginning of one try of a pipeline step.
func (s *Store) StartAttempt(ctx context.Context, meetingID int64, step Step, attempt int, contextJSON string) (*ProcessingAttempt, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO processing_attempts (meeting_id, step, outcome, attempt, context_json, started_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		meetingID,
		step,
		AttemptStarted,
		attempt,
		nullableString(contextJSON),
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert attempt: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("attempt insert id: %w", err)
	}
	return s.getAttempt(ctx, id)
}

// FinalizeAttempt closes an attempt exactly once with its outcome. Already
// finalized rows are left untouched.
func (s *Store) FinalizeAttempt(ctx context.Context, attemptID int64, outcome AttemptOutcome, errorSummary string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE processing_attempts SET outcome = ?, error_summary = ?, finished_at = ?
        WHERE id = ? AND finished_at IS NULL`,
		outcome,
		nullableString(errorSummary),
		time.Now().UTC().Format(time.RFC3339Nano),
		attemptID,
	)
	if err != nil {
		return fmt.Errorf("finalize attempt: %w", err)
	}
	return nil
}

// AttemptsForMeeting returns a meeting's attempt history in execution order.
func (s *Store) AttemptsForMeeting(ctx context.Context, meetingID int64) ([]*ProcessingAttempt, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+attemptColumns+` FROM processing_attempts WHERE meeting_id = ? ORDER BY id`,
		meetingID,
	)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*ProcessingAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

func (s *Store) getAttempt(ctx context.Context, id int64) (*ProcessingAttempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM processing_attempts WHERE id = ?`, id)
	attempt, err := scanAttempt(row)
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return attempt, nil
}

func scanMeeting(scanner interface{ Scan(dest ...any) error }) (*Meeting, error) {
	var (
		id                int64
		publicID          string
		calendarEventID   sql.NullString
		conferenceID      sql.NullString
		sessionID         sql.NullString
		title             sql.NullString
		statusStr         string
		botJoinStatusStr  string
		errorMessage      sql.NullString
		recordingUploadID sql.NullString
		recordingViewURL  sql.NullString
		documentID        sql.NullString
		documentViewURL   sql.NullString
		chatMessageID     sql.NullString
		createdRaw        sql.NullString
		statusChangedRaw  sql.NullString
		startedRaw        sql.NullString
		completedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&publicID,
		&calendarEventID,
		&conferenceID,
		&sessionID,
		&title,
		&statusStr,
		&botJoinStatusStr,
		&errorMessage,
		&recordingUploadID,
		&recordingViewURL,
		&documentID,
		&documentViewURL,
		&chatMessageID,
		&createdRaw,
		&statusChangedRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	m := &Meeting{
		ID:                id,
		PublicID:          publicID,
		CalendarEventID:   calendarEventID.String,
		ConferenceID:      conferenceID.String,
		SessionID:         sessionID.String,
		Title:             title.String,
		Status:            Status(statusStr),
		BotJoinStatus:     BotJoinStatus(botJoinStatusStr),
		ErrorMessage:      errorMessage.String,
		RecordingUploadID: recordingUploadID.String,
		RecordingViewURL:  recordingViewURL.String,
		DocumentID:        documentID.String,
		DocumentViewURL:   documentViewURL.String,
		ChatMessageID:     chatMessageID.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		m.CreatedAt = created
	}
	if changed, err := parseTimeString(statusChangedRaw.String); err == nil {
		m.StatusChangedAt = changed
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			m.ProcessingStartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			m.ProcessingCompletedAt = &completed
		}
	}

	return m, nil
}

func scanAttempt(scanner interface{ Scan(dest ...any) error }) (*ProcessingAttempt, error) {
	var (
		id           int64
		meetingID    int64
		stepStr      string
		outcomeStr   string
		attemptNum   int
		errorSummary sql.NullString
		contextJSON  sql.NullString
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&meetingID,
		&stepStr,
		&outcomeStr,
		&attemptNum,
		&errorSummary,
		&contextJSON,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	attempt := &ProcessingAttempt{
		ID:           id,
		MeetingID:    meetingID,
		Step:         Step(stepStr),
		Outcome:      AttemptOutcome(outcomeStr),
		Attempt:      attemptNum,
		ErrorSummary: errorSummary.String,
		ContextJSON:  contextJSON.String,
	}

	if started, err := parseTimeString(startedRaw.String); err == nil {
		attempt.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			attempt.FinishedAt = &finished
		}
	}

	return attempt, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", count), ", ")
}
