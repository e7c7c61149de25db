// Package db provides the embedded local mirror store for the sync core.
package db

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/eventra/mobilesync/internal/errors"
	"github.com/eventra/mobilesync/internal/models"
)

// LocalStore provides upsert/read operations on the local mirror.
// Any storage-layer failure is wrapped as a fatal LOCAL_STORAGE_ERROR:
// without a working local store no sync is possible, so callers must not
// retry or swallow these.
type LocalStore struct {
	db *sql.DB

	// Prepared statement cache for frequently used queries.
	// Statements are prepared on first use and cached for reuse.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewLocalStore creates a LocalStore on an open database.
func NewLocalStore(db *DB) *LocalStore {
	return &LocalStore{db: db.DB}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (s *LocalStore) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := s.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements. Used on teardown only;
// the underlying DB handle is closed separately.
func (s *LocalStore) Close() error {
	var firstErr error
	s.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.stmtCache.Delete(key)
		return true
	})
	return firstErr
}

func storageErr(op string, err error) error {
	return apperrors.Wrap(apperrors.ErrLocalStorage, op, err)
}

// nullableUnix maps the zero timestamp to SQL NULL.
func nullableUnix(v int64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

// =====================================================
// Event Operations
// =====================================================

// SaveEvent upserts an event row by primary key. Callers pass a complete
// row; a missing ID is assigned here.
func (s *LocalStore) SaveEvent(e *models.Event) error {
	if e.ID == "" {
		e.ID = models.UUID(uuid.New().String())
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	if e.UpdatedAt == 0 {
		e.UpdatedAt = e.CreatedAt
	}

	query := `
	INSERT INTO events (id, title, description, location, organizer_id, status,
		max_attendees, starts_at, ends_at, created_at, updated_at, synced_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title=excluded.title, description=excluded.description,
		location=excluded.location, organizer_id=excluded.organizer_id,
		status=excluded.status, max_attendees=excluded.max_attendees,
		starts_at=excluded.starts_at, ends_at=excluded.ends_at,
		updated_at=excluded.updated_at, synced_at=excluded.synced_at
	`
	_, err := s.db.Exec(query, e.ID, e.Title, e.Description, e.Location,
		e.OrganizerID, e.Status, e.MaxAttendees, e.StartsAt, e.EndsAt,
		e.CreatedAt, e.UpdatedAt, nullableUnix(e.SyncedAt))
	if err != nil {
		return storageErr("save event", err)
	}
	return nil
}

// GetEventByID retrieves an event by ID.
func (s *LocalStore) GetEventByID(id models.UUID) (*models.Event, error) {
	query := `
	SELECT id, title, description, location, organizer_id, status,
		   max_attendees, starts_at, ends_at, created_at, updated_at, synced_at
	FROM events WHERE id = ?
	`
	stmt, err := s.PrepareStmt(query)
	if err != nil {
		return nil, storageErr("get event", err)
	}

	var e models.Event
	var description, location sql.NullString
	var syncedAt sql.NullInt64
	err = stmt.QueryRow(id).Scan(
		&e.ID, &e.Title, &description, &location, &e.OrganizerID, &e.Status,
		&e.MaxAttendees, &e.StartsAt, &e.EndsAt, &e.CreatedAt, &e.UpdatedAt,
		&syncedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("event %s not found", id))
	}
	if err != nil {
		return nil, storageErr("get event", err)
	}
	e.Description = description.String
	e.Location = location.String
	e.SyncedAt = syncedAt.Int64
	return &e, nil
}

// GetEvents returns events ordered by start date. An empty status matches
// all rows. The mirror is bounded in size by design, so no pagination.
func (s *LocalStore) GetEvents(status string) ([]*models.Event, error) {
	query := `
	SELECT id, title, description, location, organizer_id, status,
		   max_attendees, starts_at, ends_at, created_at, updated_at, synced_at
	FROM events
	`
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY starts_at ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, storageErr("list events", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var e models.Event
		var description, location sql.NullString
		var syncedAt sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Title, &description, &location,
			&e.OrganizerID, &e.Status, &e.MaxAttendees, &e.StartsAt, &e.EndsAt,
			&e.CreatedAt, &e.UpdatedAt, &syncedAt); err != nil {
			return nil, storageErr("scan event", err)
		}
		e.Description = description.String
		e.Location = location.String
		e.SyncedAt = syncedAt.Int64
		events = append(events, &e)
	}
	return events, rows.Err()
}

// =====================================================
// AttendanceLog Operations
// =====================================================

// SaveAttendanceLog upserts a check-in by its (event_id, user_id) natural
// key so that a re-save of the same check-in is idempotent.
func (s *LocalStore) SaveAttendanceLog(a *models.AttendanceLog) error {
	if a.ID == "" {
		a.ID = models.UUID(uuid.New().String())
	}
	if a.UpdatedAt == 0 {
		a.UpdatedAt = time.Now().Unix()
	}

	query := `
	INSERT INTO attendance_logs (id, event_id, user_id, method, qr_payload,
		qr_validated, checked_in_at, updated_at, synced_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(event_id, user_id) DO UPDATE SET
		method=excluded.method, qr_payload=excluded.qr_payload,
		qr_validated=excluded.qr_validated, checked_in_at=excluded.checked_in_at,
		updated_at=excluded.updated_at, synced_at=excluded.synced_at
	`
	_, err := s.db.Exec(query, a.ID, a.EventID, a.UserID, a.Method, a.QRPayload,
		a.QRValidated, a.CheckedInAt, a.UpdatedAt, nullableUnix(a.SyncedAt))
	if err != nil {
		return storageErr("save attendance log", err)
	}
	return nil
}

// GetAttendanceLogs returns check-ins filtered by optional event and user,
// oldest first.
func (s *LocalStore) GetAttendanceLogs(eventID, userID models.UUID) ([]*models.AttendanceLog, error) {
	query := `
	SELECT id, event_id, user_id, method, qr_payload, qr_validated,
		   checked_in_at, updated_at, synced_at
	FROM attendance_logs WHERE 1=1
	`
	args := []interface{}{}
	if eventID != "" {
		query += " AND event_id = ?"
		args = append(args, eventID)
	}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY checked_in_at ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, storageErr("list attendance logs", err)
	}
	defer rows.Close()

	var logs []*models.AttendanceLog
	for rows.Next() {
		var a models.AttendanceLog
		var qrPayload sql.NullString
		var syncedAt sql.NullInt64
		if err := rows.Scan(&a.ID, &a.EventID, &a.UserID, &a.Method, &qrPayload,
			&a.QRValidated, &a.CheckedInAt, &a.UpdatedAt, &syncedAt); err != nil {
			return nil, storageErr("scan attendance log", err)
		}
		a.QRPayload = qrPayload.String
		a.SyncedAt = syncedAt.Int64
		logs = append(logs, &a)
	}
	return logs, rows.Err()
}

// =====================================================
// SurveyResponse Operations
// =====================================================

// SaveSurveyResponse upserts a response by its (survey_id, user_id) natural key.
func (s *LocalStore) SaveSurveyResponse(r *models.SurveyResponse) error {
	if r.ID == "" {
		r.ID = models.UUID(uuid.New().String())
	}
	if r.UpdatedAt == 0 {
		r.UpdatedAt = time.Now().Unix()
	}

	query := `
	INSERT INTO survey_responses (id, survey_id, event_id, user_id, answers,
		submitted_at, updated_at, synced_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(survey_id, user_id) DO UPDATE SET
		answers=excluded.answers, submitted_at=excluded.submitted_at,
		updated_at=excluded.updated_at, synced_at=excluded.synced_at
	`
	_, err := s.db.Exec(query, r.ID, r.SurveyID, r.EventID, r.UserID,
		string(r.Answers), r.SubmittedAt, r.UpdatedAt, nullableUnix(r.SyncedAt))
	if err != nil {
		return storageErr("save survey response", err)
	}
	return nil
}

// GetSurveyResponses returns responses filtered by optional event and user.
func (s *LocalStore) GetSurveyResponses(eventID, userID models.UUID) ([]*models.SurveyResponse, error) {
	query := `
	SELECT id, survey_id, event_id, user_id, answers, submitted_at, updated_at, synced_at
	FROM survey_responses WHERE 1=1
	`
	args := []interface{}{}
	if eventID != "" {
		query += " AND event_id = ?"
		args = append(args, eventID)
	}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY submitted_at ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, storageErr("list survey responses", err)
	}
	defer rows.Close()

	var responses []*models.SurveyResponse
	for rows.Next() {
		var r models.SurveyResponse
		var answers string
		var syncedAt sql.NullInt64
		if err := rows.Scan(&r.ID, &r.SurveyID, &r.EventID, &r.UserID, &answers,
			&r.SubmittedAt, &r.UpdatedAt, &syncedAt); err != nil {
			return nil, storageErr("scan survey response", err)
		}
		r.Answers = []byte(answers)
		r.SyncedAt = syncedAt.Int64
		responses = append(responses, &r)
	}
	return responses, rows.Err()
}

// =====================================================
// Registration Operations
// =====================================================

// SaveRegistration upserts a registration by its (event_id, user_id) natural key.
func (s *LocalStore) SaveRegistration(r *models.Registration) error {
	if r.ID == "" {
		r.ID = models.UUID(uuid.New().String())
	}
	if r.RegisteredAt == 0 {
		r.RegisteredAt = time.Now().Unix()
	}
	if r.UpdatedAt == 0 {
		r.UpdatedAt = r.RegisteredAt
	}

	query := `
	INSERT INTO registrations (id, event_id, user_id, status, registered_at,
		updated_at, synced_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(event_id, user_id) DO UPDATE SET
		status=excluded.status, updated_at=excluded.updated_at,
		synced_at=excluded.synced_at
	`
	_, err := s.db.Exec(query, r.ID, r.EventID, r.UserID, r.Status,
		r.RegisteredAt, r.UpdatedAt, nullableUnix(r.SyncedAt))
	if err != nil {
		return storageErr("save registration", err)
	}
	return nil
}

// GetRegistrations returns registrations filtered by optional event, user
// and status.
func (s *LocalStore) GetRegistrations(eventID, userID models.UUID, status string) ([]*models.Registration, error) {
	query := `
	SELECT id, event_id, user_id, status, registered_at, updated_at, synced_at
	FROM registrations WHERE 1=1
	`
	args := []interface{}{}
	if eventID != "" {
		query += " AND event_id = ?"
		args = append(args, eventID)
	}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY registered_at ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, storageErr("list registrations", err)
	}
	defer rows.Close()

	var regs []*models.Registration
	for rows.Next() {
		var r models.Registration
		var syncedAt sql.NullInt64
		if err := rows.Scan(&r.ID, &r.EventID, &r.UserID, &r.Status,
			&r.RegisteredAt, &r.UpdatedAt, &syncedAt); err != nil {
			return nil, storageErr("scan registration", err)
		}
		r.SyncedAt = syncedAt.Int64
		regs = append(regs, &r)
	}
	return regs, rows.Err()
}

// =====================================================
// Certificate Operations
// =====================================================

// SaveCertificate upserts a certificate row by primary key.
func (s *LocalStore) SaveCertificate(c *models.Certificate) error {
	if c.ID == "" {
		c.ID = models.UUID(uuid.New().String())
	}
	if c.UpdatedAt == 0 {
		c.UpdatedAt = time.Now().Unix()
	}

	query := `
	INSERT INTO certificates (id, event_id, user_id, template_id, file_url,
		issued_at, updated_at, synced_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		template_id=excluded.template_id, file_url=excluded.file_url,
		issued_at=excluded.issued_at, updated_at=excluded.updated_at,
		synced_at=excluded.synced_at
	`
	_, err := s.db.Exec(query, c.ID, c.EventID, c.UserID, c.TemplateID,
		c.FileURL, c.IssuedAt, c.UpdatedAt, nullableUnix(c.SyncedAt))
	if err != nil {
		return storageErr("save certificate", err)
	}
	return nil
}

// GetCertificates returns certificates for a user, newest issue first.
func (s *LocalStore) GetCertificates(userID models.UUID) ([]*models.Certificate, error) {
	query := `
	SELECT id, event_id, user_id, template_id, file_url, issued_at, updated_at, synced_at
	FROM certificates WHERE user_id = ? ORDER BY issued_at DESC
	`
	stmt, err := s.PrepareStmt(query)
	if err != nil {
		return nil, storageErr("list certificates", err)
	}

	rows, err := stmt.Query(userID)
	if err != nil {
		return nil, storageErr("list certificates", err)
	}
	defer rows.Close()

	var certs []*models.Certificate
	for rows.Next() {
		var c models.Certificate
		var templateID, fileURL sql.NullString
		var syncedAt sql.NullInt64
		if err := rows.Scan(&c.ID, &c.EventID, &c.UserID, &templateID, &fileURL,
			&c.IssuedAt, &c.UpdatedAt, &syncedAt); err != nil {
			return nil, storageErr("scan certificate", err)
		}
		c.TemplateID = models.UUID(templateID.String)
		c.FileURL = fileURL.String
		c.SyncedAt = syncedAt.Int64
		certs = append(certs, &c)
	}
	return certs, rows.Err()
}

// =====================================================
// PhotoUpload Operations
// =====================================================

// SavePhotoUpload upserts photo metadata by primary key. Image bytes are
// not stored in the mirror.
func (s *LocalStore) SavePhotoUpload(p *models.PhotoUpload) error {
	if p.ID == "" {
		p.ID = models.UUID(uuid.New().String())
	}
	if p.UpdatedAt == 0 {
		p.UpdatedAt = time.Now().Unix()
	}

	query := `
	INSERT INTO photo_uploads (id, event_id, user_id, local_path, remote_path,
		content_type, size_bytes, captured_at, updated_at, synced_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		local_path=excluded.local_path, remote_path=excluded.remote_path,
		content_type=excluded.content_type, size_bytes=excluded.size_bytes,
		updated_at=excluded.updated_at, synced_at=excluded.synced_at
	`
	_, err := s.db.Exec(query, p.ID, p.EventID, p.UserID, p.LocalPath,
		p.RemotePath, p.ContentType, p.SizeBytes, p.CapturedAt, p.UpdatedAt,
		nullableUnix(p.SyncedAt))
	if err != nil {
		return storageErr("save photo upload", err)
	}
	return nil
}

// GetPhotoUploads returns photo metadata for an event, oldest capture first.
func (s *LocalStore) GetPhotoUploads(eventID models.UUID) ([]*models.PhotoUpload, error) {
	query := `
	SELECT id, event_id, user_id, local_path, remote_path, content_type,
		   size_bytes, captured_at, updated_at, synced_at
	FROM photo_uploads WHERE event_id = ? ORDER BY captured_at ASC
	`
	rows, err := s.db.Query(query, eventID)
	if err != nil {
		return nil, storageErr("list photo uploads", err)
	}
	defer rows.Close()

	var photos []*models.PhotoUpload
	for rows.Next() {
		var p models.PhotoUpload
		var syncedAt sql.NullInt64
		if err := rows.Scan(&p.ID, &p.EventID, &p.UserID, &p.LocalPath,
			&p.RemotePath, &p.ContentType, &p.SizeBytes, &p.CapturedAt,
			&p.UpdatedAt, &syncedAt); err != nil {
			return nil, storageErr("scan photo upload", err)
		}
		p.SyncedAt = syncedAt.Int64
		photos = append(photos, &p)
	}
	return photos, rows.Err()
}

// =====================================================
// ChatMessage Operations
// =====================================================

// SaveChatMessage upserts a chat message by primary key.
func (s *LocalStore) SaveChatMessage(m *models.ChatMessage) error {
	if m.ID == "" {
		m.ID = models.UUID(uuid.New().String())
	}
	if m.UpdatedAt == 0 {
		m.UpdatedAt = time.Now().Unix()
	}

	query := `
	INSERT INTO chat_messages (id, event_id, user_id, body, sent_at, edited_at,
		updated_at, synced_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		body=excluded.body, edited_at=excluded.edited_at,
		updated_at=excluded.updated_at, synced_at=excluded.synced_at
	`
	_, err := s.db.Exec(query, m.ID, m.EventID, m.UserID, m.Body, m.SentAt,
		nullableUnix(m.EditedAt), m.UpdatedAt, nullableUnix(m.SyncedAt))
	if err != nil {
		return storageErr("save chat message", err)
	}
	return nil
}

// GetChatMessages returns messages for an event in send order.
func (s *LocalStore) GetChatMessages(eventID models.UUID) ([]*models.ChatMessage, error) {
	query := `
	SELECT id, event_id, user_id, body, sent_at, edited_at, updated_at, synced_at
	FROM chat_messages WHERE event_id = ? ORDER BY sent_at ASC
	`
	rows, err := s.db.Query(query, eventID)
	if err != nil {
		return nil, storageErr("list chat messages", err)
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		var editedAt, syncedAt sql.NullInt64
		if err := rows.Scan(&m.ID, &m.EventID, &m.UserID, &m.Body, &m.SentAt,
			&editedAt, &m.UpdatedAt, &syncedAt); err != nil {
			return nil, storageErr("scan chat message", err)
		}
		m.EditedAt = editedAt.Int64
		m.SyncedAt = syncedAt.Int64
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// SaveChatSettings upserts the local user's chat preferences for an event.
func (s *LocalStore) SaveChatSettings(cs *models.ChatSettings) error {
	if cs.UpdatedAt == 0 {
		cs.UpdatedAt = time.Now().Unix()
	}
	query := `
	INSERT INTO chat_settings (event_id, muted, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(event_id) DO UPDATE SET
		muted=excluded.muted, updated_at=excluded.updated_at
	`
	_, err := s.db.Exec(query, cs.EventID, cs.Muted, cs.UpdatedAt)
	if err != nil {
		return storageErr("save chat settings", err)
	}
	return nil
}

// GetChatSettings returns the chat preferences for an event, defaulting to
// unmuted when no row exists.
func (s *LocalStore) GetChatSettings(eventID models.UUID) (*models.ChatSettings, error) {
	query := `SELECT event_id, muted, updated_at FROM chat_settings WHERE event_id = ?`
	stmt, err := s.PrepareStmt(query)
	if err != nil {
		return nil, storageErr("get chat settings", err)
	}

	var cs models.ChatSettings
	err = stmt.QueryRow(eventID).Scan(&cs.EventID, &cs.Muted, &cs.UpdatedAt)
	if err == sql.ErrNoRows {
		return &models.ChatSettings{EventID: eventID}, nil
	}
	if err != nil {
		return nil, storageErr("get chat settings", err)
	}
	return &cs, nil
}

// =====================================================
// Sync Bookkeeping
// =====================================================

// MarkSynced records the server acknowledgement for a mirror row.
func (s *LocalStore) MarkSynced(dt models.DataType, id models.UUID) error {
	if !dt.Valid() {
		return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown data type %q", dt))
	}
	query := fmt.Sprintf("UPDATE %s SET synced_at = ? WHERE id = ?", dt.RemoteTable())
	_, err := s.db.Exec(query, time.Now().Unix(), id)
	if err != nil {
		return storageErr("mark synced", err)
	}
	return nil
}

// UnsyncedRecords returns all rows of a mirror table that the server has
// not yet acknowledged, as generic column maps.
func (s *LocalStore) UnsyncedRecords(dt models.DataType) ([]map[string]interface{}, error) {
	if !dt.Valid() {
		return nil, apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown data type %q", dt))
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE synced_at IS NULL", dt.RemoteTable())
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, storageErr("list unsynced records", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, storageErr("list unsynced records", err)
	}

	var records []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, storageErr("scan unsynced record", err)
		}
		record := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			record[col] = values[i]
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// DeleteRecord removes a mirror row by id. Used only for explicit delete
// operations; sync never deletes rows on its own.
func (s *LocalStore) DeleteRecord(dt models.DataType, id models.UUID) error {
	if !dt.Valid() {
		return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown data type %q", dt))
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", dt.RemoteTable())
	_, err := s.db.Exec(query, id)
	if err != nil {
		return storageErr("delete record", err)
	}
	return nil
}
