// Package scheduler runs background synchronization: a periodic sync
// when connectivity is available plus an immediate sync on every
// offline-to-online transition.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/eventra/mobilesync/internal/errors"
	"github.com/eventra/mobilesync/internal/logging"
	"github.com/eventra/mobilesync/internal/netmon"
	syncpkg "github.com/eventra/mobilesync/internal/sync"
)

// runTimeout bounds a single scheduled run.
const runTimeout = 5 * time.Minute

// Scheduler drives the sync engine in the background.
type Scheduler struct {
	engine   syncpkg.Service
	monitor  *netmon.Monitor
	interval time.Duration

	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.RWMutex
	isRunning   bool
	unsubscribe func()
}

// New creates a Scheduler over the engine and network monitor.
func New(engine syncpkg.Service, monitor *netmon.Monitor, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		engine:   engine,
		monitor:  monitor,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins background scheduling: an immediate run when online,
// then a fixed-interval ticker. Reconnection syncs fire immediately on
// the transition.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	// A fresh channel per Start lets the scheduler be restarted after
	// Stop closed the previous one.
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	go s.tickLoop(ctx, stopCh)

	if s.monitor.IsOnline() && !s.engine.IsSyncing() {
		go s.runSync(ctx)
	}

	wasOnline := s.monitor.IsOnline()
	s.mu.Lock()
	s.unsubscribe = s.monitor.Subscribe(func(online bool) {
		if online && !wasOnline {
			logging.Info("Connectivity restored, starting sync", nil)
			go s.runSync(ctx)
		}
		wasOnline = online
	})
	s.mu.Unlock()

	logging.Info("Background sync scheduler started",
		map[string]interface{}{"interval_seconds": s.interval.Seconds()})
}

// Stop halts scheduling and waits for the tick loop to exit. A run
// already in flight finishes on its own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	unsub := s.unsubscribe
	s.unsubscribe = nil
	stopCh := s.stopCh
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	close(stopCh)
	s.wg.Wait()

	logging.Info("Background sync scheduler stopped", nil)
}

// IsRunning reports whether the scheduler is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// TriggerSync requests an immediate run. Returns false if the engine
// is already syncing.
func (s *Scheduler) TriggerSync(ctx context.Context) bool {
	if s.engine.IsSyncing() {
		return false
	}
	go s.runSync(ctx)
	return true
}

func (s *Scheduler) tickLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if !s.monitor.IsOnline() {
				continue
			}
			if s.engine.IsSyncing() {
				logging.Debug("Sync already in progress, skipping tick", nil)
				continue
			}
			s.runSync(ctx)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	syncCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	result, err := s.engine.Sync(syncCtx)
	if err != nil {
		logging.ErrorWithCode("Scheduled sync failed", string(errors.ErrSyncFailed), err,
			map[string]interface{}{"interval_seconds": s.interval.Seconds()})
		return
	}
	if result.Zero() {
		return
	}

	logging.Info("Scheduled sync completed",
		map[string]interface{}{
			"synced":    result.Synced,
			"failed":    result.Failed,
			"conflicts": result.Conflicts,
			"pulled":    result.Pulled,
		})
}
