package sync

import (
	"context"
	"time"
)

// Service is the surface consumers program against. It allows mocking
// in tests and alternative implementations.
type Service interface {
	// Sync performs a full synchronization run: drain the queue, then
	// pull authoritative updates. A run refused because another is in
	// flight returns a zero Result and no error.
	Sync(ctx context.Context) (*Result, error)

	// SetStatusSink sets the receiver of sync lifecycle events.
	SetStatusSink(sink StatusSink)

	// State returns the current run state.
	State() State

	// IsSyncing reports whether a run is in flight.
	IsSyncing() bool

	// LastSync returns the time of the last completed run, or nil.
	LastSync() *time.Time

	// LastError returns the last run's error, or nil.
	LastError() error

	// PendingChanges returns the number of queued operations awaiting
	// transmission.
	PendingChanges() int
}

var _ Service = (*Engine)(nil)
