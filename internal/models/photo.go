// Package models provides data model definitions for the Eventra sync core.
package models

// PhotoUpload represents metadata for a photo queued for upload.
// The image bytes stay on disk at LocalPath until the upload succeeds;
// only metadata is mirrored in the local store.
type PhotoUpload struct {
	ID          UUID   `db:"id" json:"id"`
	EventID     UUID   `db:"event_id" json:"event_id"`
	UserID      UUID   `db:"user_id" json:"user_id"`
	LocalPath   string `db:"local_path" json:"local_path"`
	RemotePath  string `db:"remote_path" json:"remote_path"`
	ContentType string `db:"content_type" json:"content_type"`
	SizeBytes   int64  `db:"size_bytes" json:"size_bytes"`
	CapturedAt  int64  `db:"captured_at" json:"captured_at"`
	UpdatedAt   int64  `db:"updated_at" json:"updated_at"`
	SyncedAt    int64  `db:"synced_at" json:"synced_at,omitempty"`
}

// TableName returns the table name for PhotoUpload.
func (PhotoUpload) TableName() string {
	return "photo_uploads"
}
