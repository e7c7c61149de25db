// Package models provides data model definitions for the Eventra sync core.
package models

import "time"

// Registration status values as stored remotely.
const (
	RegistrationStatusRegistered = "registered"
	RegistrationStatusCancelled  = "cancelled"
	RegistrationStatusWaitlisted = "waitlisted"
)

// Registration represents a participant's registration for an event.
// Natural key: (event_id, user_id).
type Registration struct {
	ID           UUID   `db:"id" json:"id"`
	EventID      UUID   `db:"event_id" json:"event_id"`
	UserID       UUID   `db:"user_id" json:"user_id"`
	Status       string `db:"status" json:"status"`
	RegisteredAt int64  `db:"registered_at" json:"registered_at"`
	UpdatedAt    int64  `db:"updated_at" json:"updated_at"`
	SyncedAt     int64  `db:"synced_at" json:"synced_at,omitempty"`
}

// TableName returns the table name for Registration.
func (Registration) TableName() string {
	return "registrations"
}

// Touch updates the UpdatedAt timestamp and clears the sync acknowledgement.
func (r *Registration) Touch() {
	r.UpdatedAt = time.Now().Unix()
	r.SyncedAt = 0
}
