package sync

import (
	"context"

	"github.com/eventra/mobilesync/internal/logging"
	"github.com/eventra/mobilesync/internal/models"
)

// pullUpdates refreshes the local mirror with bounded authoritative
// snapshots after the queue has drained. Rows with pending local
// changes are left alone so a queued mutation is never clobbered by
// its own stale server copy.
func (e *Engine) pullUpdates(ctx context.Context, result *Result) error {
	user := string(e.deps.UserID)
	limit := e.deps.Config.PullLimit

	pulls := []struct {
		dt      models.DataType
		filters map[string]interface{}
	}{
		{models.DataTypeEventMetadata, nil},
		{models.DataTypeEventRegistration, map[string]interface{}{"user_id": user}},
		{models.DataTypeCertificate, map[string]interface{}{"user_id": user}},
		{models.DataTypeAttendanceRecord, map[string]interface{}{"user_id": user}},
	}

	for _, p := range pulls {
		if err := e.pullTable(ctx, p.dt, p.filters, limit, result); err != nil {
			return err
		}
	}

	// Messages are scoped per event the user holds locally.
	events, err := e.deps.Store.GetEvents("")
	if err != nil {
		return err
	}
	for _, ev := range events {
		filters := map[string]interface{}{"event_id": string(ev.ID)}
		if err := e.pullTable(ctx, models.DataTypeEventMessage, filters, limit, result); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) pullTable(ctx context.Context, dt models.DataType, filters map[string]interface{}, limit int, result *Result) error {
	callCtx, cancel := context.WithTimeout(ctx, e.requestTimeout())
	defer cancel()

	rows, err := e.deps.Data.Select(callCtx, dt.RemoteTable(), filters, limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	dirty, err := e.dirtyIDs(dt)
	if err != nil {
		return err
	}

	for _, row := range rows {
		id := stringField(row, "id")
		if _, pending := dirty[id]; pending {
			continue
		}
		if err := e.applyPulledRow(dt, row); err != nil {
			logging.Warn("Failed to apply pulled row", map[string]interface{}{
				"data_type": dt,
				"id":        id,
				"error":     err.Error(),
			})
			continue
		}
		result.Pulled++
	}
	return nil
}

// dirtyIDs collects the ids of mirror rows that still carry unsynced
// local changes.
func (e *Engine) dirtyIDs(dt models.DataType) (map[string]struct{}, error) {
	rows, err := e.deps.Store.UnsyncedRecords(dt)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if id := stringField(row, "id"); id != "" {
			ids[id] = struct{}{}
		}
	}
	return ids, nil
}
