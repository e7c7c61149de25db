// Package models provides data model definitions for the Eventra sync core.
package models

import (
	"database/sql/driver"
	"fmt"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*u = ""
	case string:
		*u = UUID(v)
	case []byte:
		*u = UUID(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", value)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// DataType identifies which kind of record a sync operation carries.
// It drives table routing and conflict policy selection.
type DataType string

const (
	DataTypeEventMetadata     DataType = "event_metadata"
	DataTypeAttendanceRecord  DataType = "attendance_record"
	DataTypeSurveyResponse    DataType = "survey_response"
	DataTypeEventRegistration DataType = "event_registration"
	DataTypeCertificate       DataType = "certificate"
	DataTypeImageUpload       DataType = "image_upload"
	DataTypeEventMessage      DataType = "event_message"
)

// AllDataTypes lists every DataType in a stable order.
func AllDataTypes() []DataType {
	return []DataType{
		DataTypeEventMetadata,
		DataTypeAttendanceRecord,
		DataTypeSurveyResponse,
		DataTypeEventRegistration,
		DataTypeCertificate,
		DataTypeImageUpload,
		DataTypeEventMessage,
	}
}

// Valid reports whether dt is a known DataType.
func (dt DataType) Valid() bool {
	switch dt {
	case DataTypeEventMetadata, DataTypeAttendanceRecord, DataTypeSurveyResponse,
		DataTypeEventRegistration, DataTypeCertificate, DataTypeImageUpload,
		DataTypeEventMessage:
		return true
	}
	return false
}

// RemoteTable returns the remote collection name for the data type.
func (dt DataType) RemoteTable() string {
	switch dt {
	case DataTypeEventMetadata:
		return "events"
	case DataTypeAttendanceRecord:
		return "attendance_logs"
	case DataTypeSurveyResponse:
		return "survey_responses"
	case DataTypeEventRegistration:
		return "registrations"
	case DataTypeCertificate:
		return "certificates"
	case DataTypeImageUpload:
		return "photo_uploads"
	case DataTypeEventMessage:
		return "chat_messages"
	}
	return ""
}
