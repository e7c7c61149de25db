// Package models provides data model definitions for the Eventra sync core.
package models

import "time"

// ChatMessage represents a message in an event chat room.
type ChatMessage struct {
	ID        UUID   `db:"id" json:"id"`
	EventID   UUID   `db:"event_id" json:"event_id"`
	UserID    UUID   `db:"user_id" json:"user_id"`
	Body      string `db:"body" json:"body"`
	SentAt    int64  `db:"sent_at" json:"sent_at"`
	EditedAt  int64  `db:"edited_at" json:"edited_at,omitempty"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
	SyncedAt  int64  `db:"synced_at" json:"synced_at,omitempty"`
}

// TableName returns the table name for ChatMessage.
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// SentAtTime returns SentAt as time.Time.
func (m *ChatMessage) SentAtTime() time.Time {
	return time.Unix(m.SentAt, 0)
}

// ChatSettings holds per-event chat preferences for the local user.
type ChatSettings struct {
	EventID   UUID  `db:"event_id" json:"event_id"`
	Muted     bool  `db:"muted" json:"muted"`
	UpdatedAt int64 `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for ChatSettings.
func (ChatSettings) TableName() string {
	return "chat_settings"
}
