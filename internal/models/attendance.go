// Package models provides data model definitions for the Eventra sync core.
package models

import "time"

// AttendanceLog represents a check-in for an event.
// Natural key: (event_id, user_id).
type AttendanceLog struct {
	ID          UUID   `db:"id" json:"id"`
	EventID     UUID   `db:"event_id" json:"event_id"`
	UserID      UUID   `db:"user_id" json:"user_id"`
	Method      string `db:"method" json:"method"` // qr, manual
	QRPayload   string `db:"qr_payload" json:"qr_payload,omitempty"`
	QRValidated bool   `db:"qr_validated" json:"qr_validated"`
	CheckedInAt int64  `db:"checked_in_at" json:"checked_in_at"`
	UpdatedAt   int64  `db:"updated_at" json:"updated_at"`
	SyncedAt    int64  `db:"synced_at" json:"synced_at,omitempty"`
}

// TableName returns the table name for AttendanceLog.
func (AttendanceLog) TableName() string {
	return "attendance_logs"
}

// CheckedInAtTime returns CheckedInAt as time.Time.
func (a *AttendanceLog) CheckedInAtTime() time.Time {
	return time.Unix(a.CheckedInAt, 0)
}
