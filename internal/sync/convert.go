package sync

import (
	"encoding/json"
	"time"

	apperrors "github.com/eventra/mobilesync/internal/errors"
	"github.com/eventra/mobilesync/internal/models"
	"github.com/eventra/mobilesync/internal/remote"
)

// decodeRow converts a remote row into a typed model. Column names and
// json tags are kept identical across the wire and the mirror, so a
// marshal round trip is the whole conversion.
func decodeRow(row remote.Row, dst interface{}) error {
	data, err := json.Marshal(row)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode remote row", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to decode remote row", err)
	}
	return nil
}

// applyPulledRow writes an authoritative server row into the local
// mirror, stamped as synced now.
func (e *Engine) applyPulledRow(dt models.DataType, row remote.Row) error {
	now := time.Now().Unix()

	switch dt {
	case models.DataTypeEventMetadata:
		var m models.Event
		if err := decodeRow(row, &m); err != nil {
			return err
		}
		m.SyncedAt = now
		return e.deps.Store.SaveEvent(&m)

	case models.DataTypeAttendanceRecord:
		var m models.AttendanceLog
		if err := decodeRow(row, &m); err != nil {
			return err
		}
		m.SyncedAt = now
		return e.deps.Store.SaveAttendanceLog(&m)

	case models.DataTypeSurveyResponse:
		var m models.SurveyResponse
		if err := decodeRow(row, &m); err != nil {
			return err
		}
		m.SyncedAt = now
		return e.deps.Store.SaveSurveyResponse(&m)

	case models.DataTypeEventRegistration:
		var m models.Registration
		if err := decodeRow(row, &m); err != nil {
			return err
		}
		m.SyncedAt = now
		return e.deps.Store.SaveRegistration(&m)

	case models.DataTypeCertificate:
		var m models.Certificate
		if err := decodeRow(row, &m); err != nil {
			return err
		}
		m.SyncedAt = now
		return e.deps.Store.SaveCertificate(&m)

	case models.DataTypeImageUpload:
		var m models.PhotoUpload
		if err := decodeRow(row, &m); err != nil {
			return err
		}
		m.SyncedAt = now
		return e.deps.Store.SavePhotoUpload(&m)

	case models.DataTypeEventMessage:
		var m models.ChatMessage
		if err := decodeRow(row, &m); err != nil {
			return err
		}
		m.SyncedAt = now
		return e.deps.Store.SaveChatMessage(&m)
	}

	return apperrors.New(apperrors.ErrInvalid, "unknown data type "+string(dt))
}
