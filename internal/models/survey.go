// Package models provides data model definitions for the Eventra sync core.
package models

import "encoding/json"

// SurveyResponse represents a participant's answers to an event survey.
// Natural key: (survey_id, user_id). A participant submits at most once,
// so re-saves are upserts rather than duplicates.
type SurveyResponse struct {
	ID          UUID            `db:"id" json:"id"`
	SurveyID    UUID            `db:"survey_id" json:"survey_id"`
	EventID     UUID            `db:"event_id" json:"event_id"`
	UserID      UUID            `db:"user_id" json:"user_id"`
	Answers     json.RawMessage `db:"answers" json:"answers"`
	SubmittedAt int64           `db:"submitted_at" json:"submitted_at"`
	UpdatedAt   int64           `db:"updated_at" json:"updated_at"`
	SyncedAt    int64           `db:"synced_at" json:"synced_at,omitempty"`
}

// TableName returns the table name for SurveyResponse.
func (SurveyResponse) TableName() string {
	return "survey_responses"
}
