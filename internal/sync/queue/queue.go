// Package queue provides the durable, priority-ordered queue of pending
// sync operations. Operations are mirrored into the sync_queue table so
// pending mutations survive restarts; the in-memory map is the working
// copy. Enqueue never touches the network and is safe while offline.
package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eventra/mobilesync/internal/db"
	apperrors "github.com/eventra/mobilesync/internal/errors"
	"github.com/eventra/mobilesync/internal/logging"
	"github.com/eventra/mobilesync/internal/models"
)

// Queue manages pending sync operations with durable bookkeeping.
type Queue struct {
	db      *sql.DB
	mu      sync.RWMutex
	items   map[string]*models.SyncOperation
	maxSize int

	// id of the operation currently marked processing; the orchestrator
	// must call MarkProcessingComplete before claiming the next one.
	processing string
}

// New creates a Queue backed by the given local database.
func New(database *db.DB, maxSize int) *Queue {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Queue{
		db:      database.DB,
		items:   make(map[string]*models.SyncOperation),
		maxSize: maxSize,
	}
}

// Load restores persisted operations into memory. Operations left in the
// processing state by a crash re-enter pending. Idempotent.
func (q *Queue) Load() error {
	rows, err := q.db.Query(`
		SELECT id, table_name, data_type, operation, payload, priority, status,
		       retry_count, last_error, error_code, conflict_data, created_at, updated_at
		FROM sync_queue`)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrLocalStorage, "load sync queue", err)
	}
	defer rows.Close()

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = make(map[string]*models.SyncOperation)

	for rows.Next() {
		var op models.SyncOperation
		var payload string
		var lastError, errorCode, conflictData sql.NullString
		if err := rows.Scan(&op.ID, &op.Table, &op.DataType, &op.Op, &payload,
			&op.Priority, &op.Status, &op.RetryCount, &lastError, &errorCode,
			&conflictData, &op.CreatedAt, &op.UpdatedAt); err != nil {
			return apperrors.Wrap(apperrors.ErrLocalStorage, "scan sync queue row", err)
		}
		if err := json.Unmarshal([]byte(payload), &op.Payload); err != nil {
			return apperrors.Wrap(apperrors.ErrLocalStorage, "decode operation payload", err)
		}
		op.LastError = lastError.String
		op.ErrorCode = errorCode.String
		if conflictData.Valid && conflictData.String != "" {
			var cd models.ConflictData
			if err := json.Unmarshal([]byte(conflictData.String), &cd); err == nil {
				op.Conflict = &cd
			}
		}
		if op.Status == models.StatusProcessing {
			op.Status = models.StatusPending
		}
		q.items[string(op.ID)] = &op
	}
	if err := rows.Err(); err != nil {
		return apperrors.Wrap(apperrors.ErrLocalStorage, "load sync queue", err)
	}

	logging.Info("Sync queue loaded", map[string]interface{}{"operations": len(q.items)})
	return nil
}

// Enqueue creates a pending operation and appends it durably.
func (q *Queue) Enqueue(dataType models.DataType, kind models.OperationKind, payload map[string]interface{}, priority models.Priority) (*models.SyncOperation, error) {
	if !dataType.Valid() {
		return nil, apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown data type %q", dataType))
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.maxSize {
		return nil, apperrors.New(apperrors.ErrQueueFull, fmt.Sprintf("queue is full (max size: %d)", q.maxSize))
	}

	now := time.Now().Unix()
	op := &models.SyncOperation{
		ID:        models.UUID(uuid.New().String()),
		Table:     dataType.RemoteTable(),
		DataType:  dataType,
		Op:        kind,
		Payload:   payload,
		Priority:  priority,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := q.persist(op, true); err != nil {
		return nil, err
	}
	q.items[string(op.ID)] = op

	logging.Info("Enqueued sync operation", map[string]interface{}{
		"id":        op.ID,
		"data_type": op.DataType,
		"operation": op.Op,
		"priority":  op.Priority.String(),
	})

	return op, nil
}

// Pending returns pending operations ordered by priority (critical first)
// and, within a priority, by creation time ascending. Copies are returned
// to avoid external mutation.
func (q *Queue) Pending() []*models.SyncOperation {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var pending []*models.SyncOperation
	for _, op := range q.items {
		if op.Status == models.StatusPending {
			cp := *op
			pending = append(pending, &cp)
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority < pending[j].Priority
		}
		if pending[i].CreatedAt != pending[j].CreatedAt {
			return pending[i].CreatedAt < pending[j].CreatedAt
		}
		return pending[i].ID < pending[j].ID
	})

	return pending
}

// Get returns a copy of an operation by id.
func (q *Queue) Get(id models.UUID) (*models.SyncOperation, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	op, ok := q.items[string(id)]
	if !ok {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("operation %s not found", id))
	}
	cp := *op
	return &cp, nil
}

// UpdateStatus mutates operation bookkeeping, enforcing the forward-only
// status lattice. Failing an operation increments its retry count and
// records the failure's error code so RequeueFailed can tell recoverable
// failures from permanent ones; a conflict stores the snapshot of both
// sides. A nil cause clears both the message and the code.
func (q *Queue) UpdateStatus(id models.UUID, status models.OperationStatus, cause error, conflict *models.ConflictData) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	op, ok := q.items[string(id)]
	if !ok {
		return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("operation %s not found", id))
	}

	if !op.Status.CanTransition(status) {
		return apperrors.New(apperrors.ErrInvalid,
			fmt.Sprintf("illegal status transition %s -> %s for operation %s", op.Status, status, id))
	}

	if status == models.StatusProcessing {
		if q.processing != "" {
			return apperrors.New(apperrors.ErrInvalid,
				fmt.Sprintf("operation %s still processing", q.processing))
		}
		q.processing = string(id)
	}

	op.Status = status
	op.UpdatedAt = time.Now().Unix()
	if cause != nil {
		op.LastError = cause.Error()
		op.ErrorCode = string(apperrors.CodeOf(cause))
	} else {
		op.LastError = ""
		op.ErrorCode = ""
	}
	if status == models.StatusFailed {
		op.RetryCount++
	}
	if status == models.StatusConflict {
		op.Conflict = conflict
	} else {
		op.Conflict = nil
	}

	return q.persist(op, false)
}

// MarkProcessingComplete releases the per-item processing barrier. Called
// by the orchestrator after each operation finishes regardless of outcome.
func (q *Queue) MarkProcessingComplete() {
	q.mu.Lock()
	q.processing = ""
	q.mu.Unlock()
}

// Remove deletes an operation from the queue and durable storage.
func (q *Queue) Remove(id models.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.items[string(id)]; !ok {
		return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("operation %s not found", id))
	}

	if _, err := q.db.Exec("DELETE FROM sync_queue WHERE id = ?", id); err != nil {
		return apperrors.Wrap(apperrors.ErrLocalStorage, "delete operation", err)
	}
	delete(q.items, string(id))
	if q.processing == string(id) {
		q.processing = ""
	}
	return nil
}

// RequeueFailed flips retryable failed operations back to pending. An
// operation is retryable when its recorded failure is recoverable, its
// retry count is below maxRetries and its backoff window has elapsed.
// Operations that hit the ceiling are stamped RETRY_EXHAUSTED so they
// surface to the user instead of silently cycling. Returns how many
// were requeued.
func (q *Queue) RequeueFailed(maxRetries int) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().Unix()
	count := 0

	for _, op := range q.items {
		if op.Status != models.StatusFailed {
			continue
		}
		if op.ErrorCode != "" && !apperrors.RecoverableCode(apperrors.ErrorCode(op.ErrorCode)) {
			continue
		}
		if op.RetryCount >= maxRetries {
			op.ErrorCode = string(apperrors.ErrRetryExhausted)
			op.UpdatedAt = now
			if err := q.persist(op, false); err != nil {
				logging.Error("Failed to mark operation exhausted", err,
					map[string]interface{}{"id": op.ID})
				continue
			}
			logging.Warn("Operation exhausted its retries",
				map[string]interface{}{"id": op.ID, "data_type": op.DataType})
			continue
		}
		if now < op.UpdatedAt+backoffSeconds(op.RetryCount) {
			continue
		}
		op.Status = models.StatusPending
		op.UpdatedAt = now
		if err := q.persist(op, false); err != nil {
			logging.Error("Failed to requeue operation", err,
				map[string]interface{}{"id": op.ID})
			continue
		}
		count++
	}

	if count > 0 {
		logging.Info("Requeued failed operations", map[string]interface{}{"count": count})
	}
	return count
}

// RetryConflict flips a conflict operation back to pending after the user
// resolved it out of band.
func (q *Queue) RetryConflict(id models.UUID) error {
	return q.UpdateStatus(id, models.StatusPending, nil, nil)
}

// backoffSeconds calculates exponential backoff delay in seconds.
// Formula: 2^retry_count * 60, capped at 3600 seconds (1 hour).
func backoffSeconds(retryCount int) int64 {
	backoff := int64(1) << uint(retryCount)
	backoff = backoff * 60

	maxBackoff := int64(3600)
	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	return backoff
}

// Size returns the number of operations in the queue.
func (q *Queue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// Stats returns a per-status count of queued operations.
func (q *Queue) Stats() map[string]int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := map[string]int{
		"total":      0,
		"pending":    0,
		"processing": 0,
		"failed":     0,
		"conflict":   0,
	}

	for _, op := range q.items {
		stats["total"]++
		switch op.Status {
		case models.StatusPending:
			stats["pending"]++
		case models.StatusProcessing:
			stats["processing"]++
		case models.StatusFailed:
			stats["failed"]++
		case models.StatusConflict:
			stats["conflict"]++
		}
	}

	return stats
}

// persist writes an operation to the sync_queue table.
func (q *Queue) persist(op *models.SyncOperation, insert bool) error {
	payload, err := op.MarshalPayload()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "encode operation payload", err)
	}
	conflict, err := op.MarshalConflict()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "encode conflict snapshot", err)
	}
	var conflictArg interface{}
	if conflict != nil {
		conflictArg = string(conflict)
	}

	if insert {
		_, err = q.db.Exec(`
			INSERT INTO sync_queue (id, table_name, data_type, operation, payload,
				priority, status, retry_count, last_error, error_code,
				conflict_data, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			op.ID, op.Table, string(op.DataType), string(op.Op), string(payload),
			int(op.Priority), string(op.Status), op.RetryCount, op.LastError,
			op.ErrorCode, conflictArg, op.CreatedAt, op.UpdatedAt)
	} else {
		_, err = q.db.Exec(`
			UPDATE sync_queue SET status = ?, retry_count = ?, last_error = ?,
				error_code = ?, conflict_data = ?, updated_at = ?
			WHERE id = ?`,
			string(op.Status), op.RetryCount, op.LastError, op.ErrorCode,
			conflictArg, op.UpdatedAt, op.ID)
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrLocalStorage, "persist operation", err)
	}
	return nil
}
