// Package sync orchestrates the offline-first synchronization of locally
// queued mutations with the remote store.
package sync

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/eventra/mobilesync/internal/errors"
	"github.com/eventra/mobilesync/internal/logging"
	"github.com/eventra/mobilesync/internal/models"
	"github.com/eventra/mobilesync/internal/remote"
	"github.com/eventra/mobilesync/internal/sync/conflict"
)

// conflictDetected signals that an operation needs resolution before it
// can complete. It is neither a success nor a failure.
type conflictDetected struct {
	snapshot *models.ConflictData
}

func (c *conflictDetected) Error() string {
	return "conflict requires resolution"
}

func isConflict(err error) bool {
	var cd *conflictDetected
	return errors.As(err, &cd)
}

func conflictSnapshot(err error) *models.ConflictData {
	var cd *conflictDetected
	if errors.As(err, &cd) {
		return cd.snapshot
	}
	return nil
}

// syncCreate transmits a locally created record. Each data type carries
// its own idempotence policy so retries and races collapse into upserts.
func (e *Engine) syncCreate(ctx context.Context, op *models.SyncOperation) error {
	row := remoteRow(op.Payload)

	switch op.DataType {
	case models.DataTypeSurveyResponse:
		// A participant submits at most once; the natural key makes the
		// last local write an overwrite, never a duplicate.
		_, err := e.deps.Data.Upsert(ctx, op.Table, []remote.Row{row}, []string{"survey_id", "user_id"})
		return err

	case models.DataTypeAttendanceRecord:
		return e.createAttendance(ctx, op, row)

	case models.DataTypeImageUpload:
		return e.createImageUpload(ctx, op, row)

	case models.DataTypeEventRegistration:
		return e.createRegistration(ctx, op, row)

	case models.DataTypeEventMetadata, models.DataTypeCertificate, models.DataTypeEventMessage:
		_, err := e.deps.Data.Insert(ctx, op.Table, row)
		if apperrors.Is(err, apperrors.ErrDuplicateKey) {
			if _, ok := payloadID(op.Payload); ok {
				// The row already landed (e.g. a retry after a dropped
				// response); converge by updating instead of failing.
				return e.syncUpdate(ctx, op)
			}
		}
		return err
	}

	return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown data type %q", op.DataType))
}

// createAttendance validates an offline QR check-in against the
// authoritative store before transmitting it. Validation is deferred to
// sync time because it needs a round trip; a check-in that fails
// validation is surfaced as a descriptive failure, never dropped.
func (e *Engine) createAttendance(ctx context.Context, op *models.SyncOperation, row remote.Row) error {
	eventID := stringField(op.Payload, "event_id")
	userID := stringField(op.Payload, "user_id")

	if qr := stringField(op.Payload, "qr_payload"); qr != "" {
		regs, err := e.deps.Data.Select(ctx, "registrations",
			map[string]interface{}{"event_id": eventID, "user_id": userID}, 1)
		if err != nil {
			return err
		}
		if len(regs) == 0 {
			return apperrors.New(apperrors.ErrCheckInRejected,
				"check-in could not be confirmed: no registration found for this event")
		}
		if stringField(regs[0], "status") == models.RegistrationStatusCancelled {
			return apperrors.New(apperrors.ErrCheckInRejected,
				"check-in could not be confirmed: the registration was cancelled")
		}

		events, err := e.deps.Data.Select(ctx, "events",
			map[string]interface{}{"id": eventID}, 1)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return apperrors.New(apperrors.ErrCheckInRejected,
				"check-in could not be confirmed: the event no longer exists")
		}
		if code := stringField(events[0], "checkin_code"); code != "" && code != qr {
			return apperrors.New(apperrors.ErrCheckInRejected,
				"check-in could not be confirmed: the QR code is not valid for this event")
		}

		row["qr_validated"] = true
	}

	_, err := e.deps.Data.Upsert(ctx, op.Table, []remote.Row{row}, []string{"event_id", "user_id"})
	return err
}

// createImageUpload streams queued photo bytes to object storage, then
// records the metadata row. A path collision is resolved by retrying
// once under a disambiguated name: never silently overwrite a photo.
func (e *Engine) createImageUpload(ctx context.Context, op *models.SyncOperation, row remote.Row) error {
	localPath := stringField(op.Payload, "local_path")
	remotePath := stringField(op.Payload, "remote_path")

	if !e.deps.Files.Exists(localPath) {
		return apperrors.New(apperrors.ErrValidation,
			fmt.Sprintf("queued photo %q no longer exists locally", localPath))
	}
	data, err := e.deps.Files.ReadBytes(localPath)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, "failed to read queued photo", err)
	}

	opts := remote.UploadOptions{
		ContentType: stringField(op.Payload, "content_type"),
		Overwrite:   false,
	}

	err = e.deps.Objects.Upload(ctx, remotePath, data, opts)
	if apperrors.Is(err, apperrors.ErrObjectExists) {
		renamed := disambiguate(remotePath)
		logging.Warn("Photo path collision, keeping both", map[string]interface{}{
			"path":    remotePath,
			"renamed": renamed,
		})
		if err = e.deps.Objects.Upload(ctx, renamed, data, opts); err != nil {
			return err
		}
		remotePath = renamed
		row["remote_path"] = renamed
	} else if err != nil {
		return err
	}

	_, err = e.deps.Data.Upsert(ctx, op.Table, []remote.Row{row}, []string{"id"})
	if err != nil {
		return err
	}

	// Keep the mirror's remote path in step with the disambiguated name.
	if renamedPath := stringField(row, "remote_path"); renamedPath != stringField(op.Payload, "remote_path") {
		var photo models.PhotoUpload
		if derr := decodeRow(remote.Row(op.Payload), &photo); derr == nil {
			photo.RemotePath = remotePath
			if serr := e.deps.Store.SavePhotoUpload(&photo); serr != nil {
				return serr
			}
		}
	}
	return nil
}

// createRegistration reconciles against a registration that may already
// exist remotely for this (event, user) pair: cancelled flips back to
// registered, an active one is an idempotent no-op.
func (e *Engine) createRegistration(ctx context.Context, op *models.SyncOperation, row remote.Row) error {
	eventID := stringField(op.Payload, "event_id")
	userID := stringField(op.Payload, "user_id")

	existing, err := e.deps.Data.Select(ctx, op.Table,
		map[string]interface{}{"event_id": eventID, "user_id": userID}, 1)
	if err != nil {
		return err
	}

	if len(existing) > 0 {
		return e.reconcileExistingRegistration(ctx, op, existing[0])
	}

	_, err = e.deps.Data.Insert(ctx, op.Table, row)
	if apperrors.Is(err, apperrors.ErrDuplicateKey) {
		// Created through another path between our check and the insert.
		existing, serr := e.deps.Data.Select(ctx, op.Table,
			map[string]interface{}{"event_id": eventID, "user_id": userID}, 1)
		if serr != nil {
			return serr
		}
		if len(existing) > 0 {
			return e.reconcileExistingRegistration(ctx, op, existing[0])
		}
	}
	return err
}

func (e *Engine) reconcileExistingRegistration(ctx context.Context, op *models.SyncOperation, server remote.Row) error {
	remoteID := stringField(server, "id")
	switch stringField(server, "status") {
	case models.RegistrationStatusCancelled:
		return e.deps.Data.Update(ctx, op.Table, remoteID, remote.Row{
			"status":     models.RegistrationStatusRegistered,
			"updated_at": time.Now().Unix(),
		})
	default:
		// Already registered: treat as already-synced.
		logging.Debug("Registration already exists remotely", map[string]interface{}{
			"event_id": stringField(server, "event_id"),
			"user_id":  stringField(server, "user_id"),
		})
		return nil
	}
}

// syncUpdate fetches the server copy, consults the resolver and applies
// the decided record. A user-chooses decision persists the snapshot and
// leaves the operation queued as a conflict.
func (e *Engine) syncUpdate(ctx context.Context, op *models.SyncOperation) error {
	id, ok := payloadID(op.Payload)
	if !ok {
		return apperrors.New(apperrors.ErrInvalid, "update payload missing id")
	}

	rows, err := e.deps.Data.Select(ctx, op.Table, map[string]interface{}{"id": string(id)}, 1)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		// The server never saw this record; converge via insert.
		_, err := e.deps.Data.Insert(ctx, op.Table, remoteRow(op.Payload))
		return err
	}
	server := rows[0]

	local := conflict.Record(op.Payload)
	ts := conflict.Timestamps{
		Local:      int64Field(op.Payload, "updated_at"),
		Server:     int64Field(server, "updated_at"),
		LastSynced: int64Field(op.Payload, "synced_at"),
	}

	if e.deps.Resolver.HasConflict(local, conflict.Record(server), op.DataType, ts) {
		decision := e.deps.Resolver.Resolve(local, conflict.Record(server), op.DataType, ts)

		switch decision.Strategy {
		case conflict.StrategyUserChooses:
			return &conflictDetected{snapshot: &models.ConflictData{
				Local:  local,
				Server: server,
			}}

		case conflict.StrategyServerWins:
			// The queued local mutation is superseded and discarded;
			// pull the authoritative copy into the mirror. Surfaced in
			// the log because this is silent data loss for the user.
			logging.Warn("Local change superseded by server", map[string]interface{}{
				"data_type": op.DataType,
				"id":        id,
			})
			return e.applyPulledRow(op.DataType, server)

		default:
			if sameRecord(decision.Resolved, conflict.Record(server)) {
				// Server side won on timestamps; adopt it locally.
				return e.applyPulledRow(op.DataType, server)
			}
		}
	}

	return e.deps.Data.Update(ctx, op.Table, string(id), updatePatch(op))
}

// syncDelete removes the record remotely and from the mirror. Deletes
// are final: no conflict handling.
func (e *Engine) syncDelete(ctx context.Context, op *models.SyncOperation) error {
	id, ok := payloadID(op.Payload)
	if !ok {
		return apperrors.New(apperrors.ErrInvalid, "delete payload missing id")
	}

	if err := e.deps.Data.Delete(ctx, op.Table, string(id)); err != nil {
		return err
	}
	return e.deps.Store.DeleteRecord(op.DataType, id)
}

// updatePatch builds the remote patch for an update operation.
// Registration status changes patch only the status; everything else
// sends the domain fields minus local bookkeeping.
func updatePatch(op *models.SyncOperation) remote.Row {
	if op.DataType == models.DataTypeEventRegistration {
		return remote.Row{
			"status":     stringField(op.Payload, "status"),
			"updated_at": int64Field(op.Payload, "updated_at"),
		}
	}
	return remoteRow(op.Payload)
}

// remoteRow strips local-only bookkeeping fields from a payload.
func remoteRow(payload map[string]interface{}) remote.Row {
	row := make(remote.Row, len(payload))
	for k, v := range payload {
		switch k {
		case "synced_at", "data_type", "local_path":
			continue
		}
		row[k] = v
	}
	return row
}

// disambiguate inserts a short random suffix before the extension so a
// colliding upload keeps both objects.
func disambiguate(p string) string {
	ext := path.Ext(p)
	base := strings.TrimSuffix(p, ext)
	suffix := strings.Split(uuid.New().String(), "-")[0]
	return fmt.Sprintf("%s-%s%s", base, suffix, ext)
}

func payloadID(payload map[string]interface{}) (models.UUID, bool) {
	id := stringField(payload, "id")
	if id == "" {
		return "", false
	}
	return models.UUID(id), true
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func int64Field(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// sameRecord reports whether two records refer to identical content.
func sameRecord(a, b conflict.Record) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || fmt.Sprintf("%v", v) != fmt.Sprintf("%v", bv) {
			return false
		}
	}
	return true
}
