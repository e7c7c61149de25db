// Package db provides the embedded local mirror store for the sync core.
package db

// Initial schema for the local mirror, applied as migration V1. One
// table per synced entity plus the durable sync queue. Every mirror
// table carries synced_at (NULL until
// the server has acknowledged the latest local state) and a data_type
// tag. Natural-key UNIQUE constraints make re-saves idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		location TEXT,
		organizer_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'published',
		max_attendees INTEGER NOT NULL DEFAULT 0,
		starts_at INTEGER NOT NULL,
		ends_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		synced_at INTEGER,
		data_type TEXT NOT NULL DEFAULT 'event_metadata'
	);`,
	`CREATE INDEX IF NOT EXISTS idx_events_starts_at ON events(starts_at);`,

	`CREATE TABLE IF NOT EXISTS attendance_logs (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT 'qr',
		qr_payload TEXT,
		qr_validated INTEGER NOT NULL DEFAULT 0,
		checked_in_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		synced_at INTEGER,
		data_type TEXT NOT NULL DEFAULT 'attendance_record',
		UNIQUE(event_id, user_id)
	);`,

	`CREATE TABLE IF NOT EXISTS survey_responses (
		id TEXT PRIMARY KEY,
		survey_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		answers TEXT NOT NULL,
		submitted_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		synced_at INTEGER,
		data_type TEXT NOT NULL DEFAULT 'survey_response',
		UNIQUE(survey_id, user_id)
	);`,

	`CREATE TABLE IF NOT EXISTS registrations (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'registered',
		registered_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		synced_at INTEGER,
		data_type TEXT NOT NULL DEFAULT 'event_registration',
		UNIQUE(event_id, user_id)
	);`,

	`CREATE TABLE IF NOT EXISTS certificates (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		template_id TEXT,
		file_url TEXT,
		issued_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		synced_at INTEGER,
		data_type TEXT NOT NULL DEFAULT 'certificate'
	);`,
	`CREATE INDEX IF NOT EXISTS idx_certificates_user ON certificates(user_id);`,

	`CREATE TABLE IF NOT EXISTS photo_uploads (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		local_path TEXT NOT NULL,
		remote_path TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT 'image/jpeg',
		size_bytes INTEGER NOT NULL DEFAULT 0,
		captured_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		synced_at INTEGER,
		data_type TEXT NOT NULL DEFAULT 'image_upload'
	);`,

	`CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		body TEXT NOT NULL,
		sent_at INTEGER NOT NULL,
		edited_at INTEGER,
		updated_at INTEGER NOT NULL,
		synced_at INTEGER,
		data_type TEXT NOT NULL DEFAULT 'event_message'
	);`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_event ON chat_messages(event_id, sent_at);`,

	`CREATE TABLE IF NOT EXISTS chat_settings (
		event_id TEXT PRIMARY KEY,
		muted INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS sync_queue (
		id TEXT PRIMARY KEY,
		table_name TEXT NOT NULL,
		data_type TEXT NOT NULL,
		operation TEXT NOT NULL,
		payload TEXT NOT NULL,
		priority INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		conflict_data TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_sync_queue_order ON sync_queue(priority, created_at);`,
}
