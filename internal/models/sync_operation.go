// Package models provides data model definitions for the Eventra sync core.
package models

import (
	"encoding/json"
	"time"
)

// OperationKind is the kind of mutation a sync operation carries.
type OperationKind string

const (
	OperationCreate OperationKind = "create"
	OperationUpdate OperationKind = "update"
	OperationDelete OperationKind = "delete"
)

// Priority controls drain order. Lower values drain first so that
// time-sensitive actions (check-ins) do not starve behind bulk uploads.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	}
	return "unknown"
}

// OperationStatus is the lifecycle state of a queued sync operation.
// Transitions only move forward: pending -> processing -> one of
// completed, failed, conflict. Failed operations re-enter pending on retry.
type OperationStatus string

const (
	StatusPending    OperationStatus = "pending"
	StatusProcessing OperationStatus = "processing"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
	StatusConflict   OperationStatus = "conflict"
)

// CanTransition reports whether moving from s to next is allowed.
func (s OperationStatus) CanTransition(next OperationStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed || next == StatusConflict
	case StatusFailed:
		return next == StatusPending
	case StatusConflict:
		return next == StatusPending
	}
	return false
}

// ConflictData snapshots both sides of a detected conflict. Stored only
// while an operation is in the conflict state.
type ConflictData struct {
	Local  map[string]interface{} `json:"local"`
	Server map[string]interface{} `json:"server"`
}

// SyncOperation represents a pending mutation awaiting transmission.
type SyncOperation struct {
	ID         UUID                   `db:"id" json:"id"`
	Table      string                 `db:"table_name" json:"table"`
	DataType   DataType               `db:"data_type" json:"data_type"`
	Op         OperationKind          `db:"operation" json:"operation"`
	Payload    map[string]interface{} `db:"payload" json:"payload"`
	Priority   Priority               `db:"priority" json:"priority"`
	Status     OperationStatus        `db:"status" json:"status"`
	RetryCount int                    `db:"retry_count" json:"retry_count"`
	LastError  string                 `db:"last_error" json:"last_error,omitempty"`
	ErrorCode  string                 `db:"error_code" json:"error_code,omitempty"`
	Conflict   *ConflictData          `db:"conflict_data" json:"conflict_data,omitempty"`
	CreatedAt  int64                  `db:"created_at" json:"created_at"`
	UpdatedAt  int64                  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for SyncOperation.
func (SyncOperation) TableName() string {
	return "sync_queue"
}

// CreatedAtTime returns CreatedAt as time.Time.
func (o *SyncOperation) CreatedAtTime() time.Time {
	return time.Unix(o.CreatedAt, 0)
}

// MarshalPayload serializes the payload for durable storage.
func (o *SyncOperation) MarshalPayload() (json.RawMessage, error) {
	return json.Marshal(o.Payload)
}

// MarshalConflict serializes the conflict snapshot, or returns nil when
// the operation carries none.
func (o *SyncOperation) MarshalConflict() (json.RawMessage, error) {
	if o.Conflict == nil {
		return nil, nil
	}
	return json.Marshal(o.Conflict)
}
