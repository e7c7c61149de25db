// Package models provides data model definitions for the Eventra sync core.
package models

// Certificate represents an attendance certificate issued for an event.
// Certificates are generated server-side; the local row is a read mirror.
type Certificate struct {
	ID         UUID   `db:"id" json:"id"`
	EventID    UUID   `db:"event_id" json:"event_id"`
	UserID     UUID   `db:"user_id" json:"user_id"`
	TemplateID UUID   `db:"template_id" json:"template_id,omitempty"`
	FileURL    string `db:"file_url" json:"file_url,omitempty"`
	IssuedAt   int64  `db:"issued_at" json:"issued_at"`
	UpdatedAt  int64  `db:"updated_at" json:"updated_at"`
	SyncedAt   int64  `db:"synced_at" json:"synced_at,omitempty"`
}

// TableName returns the table name for Certificate.
func (Certificate) TableName() string {
	return "certificates"
}
