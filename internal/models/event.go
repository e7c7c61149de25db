// Package models provides data model definitions for the Eventra sync core.
package models

import "time"

// Event represents event metadata mirrored from the remote store.
// Organizer-controlled; the server is authoritative for these rows.
type Event struct {
	ID           UUID   `db:"id" json:"id"`
	Title        string `db:"title" json:"title"`
	Description  string `db:"description" json:"description,omitempty"`
	Location     string `db:"location" json:"location,omitempty"`
	OrganizerID  UUID   `db:"organizer_id" json:"organizer_id"`
	Status       string `db:"status" json:"status"` // draft, published, cancelled, finished
	MaxAttendees int    `db:"max_attendees" json:"max_attendees"`
	StartsAt     int64  `db:"starts_at" json:"starts_at"`
	EndsAt       int64  `db:"ends_at" json:"ends_at"`
	CreatedAt    int64  `db:"created_at" json:"created_at"`
	UpdatedAt    int64  `db:"updated_at" json:"updated_at"`
	SyncedAt     int64  `db:"synced_at" json:"synced_at,omitempty"` // 0 = not yet acknowledged
}

// TableName returns the table name for Event.
func (Event) TableName() string {
	return "events"
}

// StartsAtTime returns StartsAt as time.Time.
func (e *Event) StartsAtTime() time.Time {
	return time.Unix(e.StartsAt, 0)
}

// Touch updates the UpdatedAt timestamp and clears the sync acknowledgement.
func (e *Event) Touch() {
	e.UpdatedAt = time.Now().Unix()
	e.SyncedAt = 0
}
