// Package sync orchestrates the offline-first synchronization of locally
// queued mutations with the remote store.
package sync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/eventra/mobilesync/internal/config"
	"github.com/eventra/mobilesync/internal/db"
	apperrors "github.com/eventra/mobilesync/internal/errors"
	"github.com/eventra/mobilesync/internal/logging"
	"github.com/eventra/mobilesync/internal/models"
	"github.com/eventra/mobilesync/internal/netmon"
	"github.com/eventra/mobilesync/internal/remote"
	"github.com/eventra/mobilesync/internal/sync/conflict"
	"github.com/eventra/mobilesync/internal/sync/queue"
)

// State is the engine's run state. Only one run may be draining or
// pulling at a time.
type State string

const (
	StateIdle     State = "idle"
	StateDraining State = "draining"
	StatePulling  State = "pulling"
)

// Result summarizes one sync run.
type Result struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Synced    int
	Failed    int
	Conflicts int
	Pulled    int

	// per-category success counts for the aggregated notification
	Categories map[models.DataType]int
}

// Zero reports whether the run did nothing (e.g. a run refused because
// another was in flight).
func (r *Result) Zero() bool {
	return r.Synced == 0 && r.Failed == 0 && r.Conflicts == 0 && r.Pulled == 0
}

// StatusSink receives sync lifecycle events for the UI status stream.
// All methods must be non-blocking.
type StatusSink interface {
	SyncStarted(pending int)
	SyncProgress(completed, total int, current string)
	SyncCompleted(synced, failed, conflicts int, duration time.Duration)
	ConflictDetected(operationID, dataType string)
}

// Deps bundles the collaborators an Engine is constructed over. Every
// field is substitutable with a fake in tests.
type Deps struct {
	Store    *db.LocalStore
	Queue    *queue.Queue
	Resolver *conflict.Resolver
	Monitor  *netmon.Monitor
	Data     remote.DataStore
	Objects  remote.ObjectStore
	Notifier remote.Notifier
	Files    remote.FileStore
	Config   *config.Config

	// UserID scopes pulls and notifications to the signed-in participant.
	UserID models.UUID
}

// Engine drains the queue against the remote store when online, pulls
// authoritative updates back into the local mirror, and reports
// progress. It is the only component that performs outbound sync calls.
type Engine struct {
	deps Deps

	mu       sync.Mutex
	state    State
	lastSync *time.Time
	lastErr  error
	sink     StatusSink
}

// New creates an Engine over its collaborators.
func New(deps Deps) *Engine {
	if deps.Resolver == nil {
		deps.Resolver = conflict.NewResolver()
	}
	if deps.Files == nil {
		deps.Files = remote.OSFileStore{}
	}
	return &Engine{
		deps:  deps,
		state: StateIdle,
	}
}

// Initialize restores the durable queue and takes the first connectivity
// reading. Must complete before Sync is called.
func (e *Engine) Initialize(ctx context.Context) error {
	if err := e.deps.Queue.Load(); err != nil {
		return err
	}
	e.deps.Monitor.Initialize(ctx)
	return nil
}

// SetStatusSink wires the UI status stream. Optional.
func (e *Engine) SetStatusSink(sink StatusSink) {
	e.mu.Lock()
	e.sink = sink
	e.mu.Unlock()
}

// State returns the current run state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsSyncing reports whether a run is in flight.
func (e *Engine) IsSyncing() bool {
	return e.State() != StateIdle
}

// LastSync returns the end time of the last completed run.
func (e *Engine) LastSync() *time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync
}

// LastError returns the last run-level error.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// PendingChanges returns the number of operations awaiting transmission.
func (e *Engine) PendingChanges() int {
	return len(e.deps.Queue.Pending())
}

// Sync performs one run: drain the queue sequentially, then pull
// authoritative updates. If a run is already in flight the call returns
// a zero Result immediately; overlapping runs are never queued.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		logging.Debug("Sync already in progress, skipping")
		return &Result{Categories: map[models.DataType]int{}}, nil
	}
	e.state = StateDraining
	e.lastErr = nil
	sink := e.sink
	e.mu.Unlock()

	result := &Result{
		StartTime:  time.Now(),
		Categories: map[models.DataType]int{},
	}

	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		e.mu.Lock()
		e.state = StateIdle
		if e.lastErr == nil {
			end := result.EndTime
			e.lastSync = &end
		}
		e.mu.Unlock()
	}()

	if !e.deps.Monitor.IsOnline() {
		logging.Debug("Skipping sync - offline")
		return result, nil
	}

	e.deps.Queue.RequeueFailed(e.deps.Config.MaxRetries)
	ops := e.deps.Queue.Pending()

	if sink != nil {
		sink.SyncStarted(len(ops))
	}

	// Sequential drain: one operation at a time, awaited to completion,
	// so two operations against the same natural key are never in
	// flight simultaneously.
	for i, op := range ops {
		select {
		case <-ctx.Done():
			e.mu.Lock()
			e.lastErr = ctx.Err()
			e.mu.Unlock()
			return result, ctx.Err()
		default:
		}

		e.processOne(ctx, op, result, sink)

		if sink != nil {
			sink.SyncProgress(i+1, len(ops), string(op.DataType))
		}
	}

	e.mu.Lock()
	e.state = StatePulling
	e.mu.Unlock()

	if err := e.pullUpdates(ctx, result); err != nil {
		// Pull failures do not fail the run; queued work already landed.
		logging.ErrorWithCode("Pull updates failed", string(apperrors.CodeOf(err)), err)
	}

	e.notifyRun(ctx, result)

	if sink != nil {
		sink.SyncCompleted(result.Synced, result.Failed, result.Conflicts, time.Since(result.StartTime))
	}

	logging.Info("Sync run completed", map[string]interface{}{
		"synced":    result.Synced,
		"failed":    result.Failed,
		"conflicts": result.Conflicts,
		"pulled":    result.Pulled,
	})

	return result, nil
}

// processOne claims, executes and settles a single operation. The
// per-item barrier is released regardless of outcome.
func (e *Engine) processOne(ctx context.Context, op *models.SyncOperation, result *Result, sink StatusSink) {
	if err := e.deps.Queue.UpdateStatus(op.ID, models.StatusProcessing, nil, nil); err != nil {
		logging.Error("Failed to claim operation", err, map[string]interface{}{"id": op.ID})
		return
	}
	defer e.deps.Queue.MarkProcessingComplete()

	opCtx, cancel := context.WithTimeout(ctx, e.requestTimeout())
	err := e.dispatch(opCtx, op)
	cancel()

	switch {
	case err == nil:
		result.Synced++
		result.Categories[op.DataType]++
		if uerr := e.deps.Queue.UpdateStatus(op.ID, models.StatusCompleted, nil, nil); uerr != nil {
			logging.Error("Failed to complete operation", uerr, map[string]interface{}{"id": op.ID})
			return
		}
		if rerr := e.deps.Queue.Remove(op.ID); rerr != nil {
			logging.Error("Failed to remove completed operation", rerr, map[string]interface{}{"id": op.ID})
		}
		if id, ok := payloadID(op.Payload); ok && op.Op != models.OperationDelete {
			if merr := e.deps.Store.MarkSynced(op.DataType, id); merr != nil {
				logging.Error("Failed to mark record synced", merr, map[string]interface{}{"id": id})
			}
		}

	case isConflict(err):
		result.Conflicts++
		snapshot := conflictSnapshot(err)
		cause := apperrors.Wrap(apperrors.ErrSyncConflict, "operation requires user resolution", err)
		if uerr := e.deps.Queue.UpdateStatus(op.ID, models.StatusConflict, cause, snapshot); uerr != nil {
			logging.Error("Failed to record conflict", uerr, map[string]interface{}{"id": op.ID})
		}
		if sink != nil {
			sink.ConflictDetected(string(op.ID), string(op.DataType))
		}
		logging.Warn("Operation in conflict", map[string]interface{}{
			"id":        op.ID,
			"data_type": op.DataType,
		})

	default:
		result.Failed++
		if uerr := e.deps.Queue.UpdateStatus(op.ID, models.StatusFailed, err, nil); uerr != nil {
			logging.Error("Failed to record failure", uerr, map[string]interface{}{"id": op.ID})
		}
		logging.ErrorWithCode("Operation failed", string(apperrors.CodeOf(err)), err,
			map[string]interface{}{
				"id":         op.ID,
				"data_type":  op.DataType,
				"will_retry": apperrors.Recoverable(err),
			})
	}
}

func (e *Engine) requestTimeout() time.Duration {
	return time.Duration(e.deps.Config.RequestTimeoutSeconds) * time.Second
}

// dispatch routes an operation to its handler by mutation kind.
func (e *Engine) dispatch(ctx context.Context, op *models.SyncOperation) error {
	switch op.Op {
	case models.OperationCreate:
		return e.syncCreate(ctx, op)
	case models.OperationUpdate:
		return e.syncUpdate(ctx, op)
	case models.OperationDelete:
		return e.syncDelete(ctx, op)
	}
	return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown operation kind %q", op.Op))
}

// notifyRun emits at most one aggregated notification per run plus
// separate failure and conflict notifications. Notifier errors are
// logged and never propagated into the result.
func (e *Engine) notifyRun(ctx context.Context, result *Result) {
	if e.deps.Notifier == nil || e.deps.UserID == "" {
		return
	}

	if result.Synced > 0 {
		title, message := summarize(result.Categories)
		e.notify(ctx, title, message, "info")
	}
	if result.Failed > 0 {
		e.notify(ctx, "Sync Issues",
			fmt.Sprintf("%d change(s) could not be synced and will be retried.", result.Failed),
			"error")
	}
	if result.Conflicts > 0 {
		e.notify(ctx, "Sync Conflicts",
			fmt.Sprintf("%d change(s) need your review before they can be synced.", result.Conflicts),
			"warning")
	}
}

func (e *Engine) notify(ctx context.Context, title, message, severity string) {
	err := e.deps.Notifier.CreateNotification(ctx, string(e.deps.UserID), title, message, severity, nil)
	if err != nil {
		logging.ErrorWithCode("Notification failed", string(apperrors.ErrNotification), err,
			map[string]interface{}{"title": title})
	}
}

// summarize builds the aggregated per-run notification. A run whose only
// successes are check-ins gets the dedicated check-in title.
func summarize(categories map[models.DataType]int) (title, message string) {
	labels := []struct {
		dt    models.DataType
		label string
	}{
		{models.DataTypeAttendanceRecord, "check-in(s) synced"},
		{models.DataTypeImageUpload, "photo(s) uploaded"},
		{models.DataTypeSurveyResponse, "survey(s) submitted"},
		{models.DataTypeEventRegistration, "registration(s) confirmed"},
		{models.DataTypeEventMessage, "message(s) sent"},
		{models.DataTypeEventMetadata, "event update(s) synced"},
		{models.DataTypeCertificate, "certificate(s) synced"},
	}

	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		if n := categories[l.dt]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, l.label))
		}
	}

	title = "Sync Complete"
	if len(categories) == 1 && categories[models.DataTypeAttendanceRecord] > 0 {
		title = "Check-in Confirmed"
	}

	message = "Everything is up to date."
	if len(parts) > 0 {
		message = strings.Join(parts, ", ") + "."
	}
	return title, message
}
