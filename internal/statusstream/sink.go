package statusstream

import (
	"time"
)

// Sink adapts the Hub to the sync engine's status callbacks. Every
// lifecycle event becomes a broadcast envelope on the stream.
type Sink struct {
	hub *Hub
}

// NewSink creates a Sink over the hub.
func NewSink(hub *Hub) *Sink {
	return &Sink{hub: hub}
}

// SyncStarted reports a run beginning with the number of queued
// operations.
func (s *Sink) SyncStarted(pending int) {
	s.hub.Broadcast(EventSyncStarted, map[string]interface{}{
		"pending": pending,
		"status":  "started",
	})
}

// SyncProgress reports per-operation progress during the drain.
func (s *Sink) SyncProgress(completed, total int, current string) {
	percent := 0
	if total > 0 {
		percent = completed * 100 / total
	}
	s.hub.Broadcast(EventSyncProgress, map[string]interface{}{
		"percent":      percent,
		"completed":    completed,
		"total":        total,
		"current_item": current,
	})
}

// SyncCompleted reports the run's final counters.
func (s *Sink) SyncCompleted(synced, failed, conflicts int, duration time.Duration) {
	s.hub.Broadcast(EventSyncCompleted, map[string]interface{}{
		"synced":      synced,
		"failed":      failed,
		"conflicts":   conflicts,
		"duration_ms": duration.Milliseconds(),
		"status":      "completed",
	})
}

// ConflictDetected reports an operation parked for user resolution.
func (s *Sink) ConflictDetected(operationID, dataType string) {
	s.hub.Broadcast(EventSyncConflictDetected, map[string]interface{}{
		"operation_id": operationID,
		"data_type":    dataType,
		"resolution":   "user_review",
	})
}

// NetworkChanged reports a connectivity transition to subscribers.
func (s *Sink) NetworkChanged(online bool) {
	s.hub.Broadcast(EventNetworkChanged, map[string]interface{}{
		"online": online,
	})
}
