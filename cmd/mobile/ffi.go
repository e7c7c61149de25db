// Package main provides the FFI bridge for mobile platforms.
// Build as shared library: libeventrasync.so (Android) / eventrasync.framework (iOS)

package main

/*
#cgo CFLAGS: -Wall -Wextra
#cgo LDFLAGS: -shared
#include <stdlib.h>
#include <string.h>
*/
import "C"
import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	gosync "sync"
	"time"
	"unsafe"

	"github.com/eventra/mobilesync/internal/config"
	"github.com/eventra/mobilesync/internal/db"
	"github.com/eventra/mobilesync/internal/logging"
	"github.com/eventra/mobilesync/internal/models"
	"github.com/eventra/mobilesync/internal/netmon"
	"github.com/eventra/mobilesync/internal/remote"
	"github.com/eventra/mobilesync/internal/statusstream"
	syncpkg "github.com/eventra/mobilesync/internal/sync"
	"github.com/eventra/mobilesync/internal/sync/queue"
	"github.com/eventra/mobilesync/internal/sync/scheduler"
)

var (
	once      gosync.Once
	database  *db.DB
	store     *db.LocalStore
	syncQueue *queue.Queue
	monitor   *netmon.Monitor
	engine    *syncpkg.Engine
	sched     *scheduler.Scheduler
	cancelBg  context.CancelFunc
	lastErr   string
	lastMu    gosync.RWMutex

	statusHub   *statusstream.Hub
	statusSrv   *http.Server
	statusUnsub func()
)

// Init initializes the sync core: local database, durable queue,
// network monitor, engine and background scheduler. Safe to call more
// than once; only the first call takes effect. Returns 0 on success.
//export Init
func Init(dataDir, baseURL, apiKey, userID *C.char) int32 {
	rc := int32(0)
	once.Do(func() {
		dir := C.GoString(dataDir)

		cfg, err := config.Initialize(dir, C.GoString(baseURL), C.GoString(apiKey))
		if err != nil {
			setLastError(fmt.Sprintf("Failed to load config: %v", err))
			rc = 1
			return
		}

		logging.Init(os.Stdout, logging.LevelInfo)

		database, err = db.Open(dir)
		if err != nil {
			setLastError(fmt.Sprintf("Failed to open database: %v", err))
			rc = 1
			return
		}

		store = db.NewLocalStore(database)
		syncQueue = queue.New(database, cfg.QueueMaxSize)

		timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
		dataClient := remote.NewRESTClient(&remote.RESTConfig{
			BaseURL: cfg.RemoteBaseURL,
			APIKey:  cfg.RemoteAPIKey,
			Timeout: timeout,
		})
		objectClient := remote.NewStorageClient(&remote.StorageConfig{
			BaseURL: cfg.RemoteBaseURL,
			APIKey:  cfg.RemoteAPIKey,
			Bucket:  cfg.StorageBucket,
			Timeout: timeout,
		})

		monitor = netmon.New(
			netmon.NewHTTPProber(cfg.ReachabilityURL, timeout),
			time.Duration(cfg.SyncIntervalSeconds)*time.Second,
		)

		engine = syncpkg.New(syncpkg.Deps{
			Store:    store,
			Queue:    syncQueue,
			Monitor:  monitor,
			Data:     dataClient,
			Objects:  objectClient,
			Notifier: remote.NewRESTNotifier(dataClient),
			Config:   cfg,
			UserID:   models.UUID(C.GoString(userID)),
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancelBg = cancel

		if err := engine.Initialize(ctx); err != nil {
			setLastError(fmt.Sprintf("Failed to initialize engine: %v", err))
			rc = 1
			return
		}

		monitor.StartListening(ctx)
		sched = scheduler.New(engine, monitor, time.Duration(cfg.SyncIntervalSeconds)*time.Second)
		sched.Start(ctx)
	})
	return rc
}

// StartStatusStream serves the WebSocket status stream on the given
// loopback port and attaches it to the engine and network monitor.
// Idempotent; returns 0 on success.
//export StartStatusStream
func StartStatusStream(port int32) int32 {
	if engine == nil || monitor == nil {
		setLastError("Sync core not initialized")
		return 1
	}
	if statusSrv != nil {
		return 0
	}

	statusHub = statusstream.NewHub()
	sink := statusstream.NewSink(statusHub)
	engine.SetStatusSink(sink)
	statusUnsub = monitor.Subscribe(func(online bool) {
		sink.NetworkChanged(online)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/sync/status", statusHub.ServeWS)
	statusSrv = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", port),
		Handler: mux,
	}
	go func(srv *http.Server) {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			setLastError(fmt.Sprintf("Status stream server failed: %v", err))
		}
	}(statusSrv)
	return 0
}

// StopStatusStream detaches the stream and closes its listener.
//export StopStatusStream
func StopStatusStream() {
	if statusUnsub != nil {
		statusUnsub()
		statusUnsub = nil
	}
	if statusSrv != nil {
		statusSrv.Close()
		statusSrv = nil
	}
	if statusHub != nil {
		statusHub.Close()
		statusHub = nil
	}
	if engine != nil {
		engine.SetStatusSink(nil)
	}
}

// Cleanup stops background work and closes the database.
//export Cleanup
func Cleanup() {
	StopStatusStream()
	if sched != nil {
		sched.Stop()
	}
	if monitor != nil {
		monitor.StopListening()
	}
	if cancelBg != nil {
		cancelBg()
	}
	if store != nil {
		store.Close()
	}
	if database != nil {
		database.Close()
	}
}

// GetLastError returns the last error message, or NULL when none.
// The caller must free the returned string.
//export GetLastError
func GetLastError() *C.char {
	lastMu.RLock()
	defer lastMu.RUnlock()
	if lastErr == "" {
		return nil
	}
	return C.CString(lastErr)
}

func setLastError(err string) {
	lastMu.Lock()
	defer lastMu.Unlock()
	lastErr = err
}

// SetNetworkOnline feeds the platform's reachability callback into the
// network monitor: 1 = online, 0 = offline. A transition to online
// triggers an immediate sync via the scheduler's subscription.
//export SetNetworkOnline
func SetNetworkOnline(online int32) {
	if monitor == nil {
		setLastError("Sync core not initialized")
		return
	}
	monitor.SetOnline(online != 0)
}

// IsOnline returns 1 when the device is online, 0 otherwise.
//export IsOnline
func IsOnline() int32 {
	if monitor == nil || !monitor.IsOnline() {
		return 0
	}
	return 1
}

// SyncNow runs a full synchronization and returns the run summary as
// JSON. Returns NULL on error; the caller must free the result.
//export SyncNow
func SyncNow() *C.char {
	if engine == nil {
		setLastError("Sync core not initialized")
		return nil
	}

	result, err := engine.Sync(context.Background())
	if err != nil {
		setLastError(fmt.Sprintf("Sync failed: %v", err))
		return nil
	}

	data, err := json.Marshal(map[string]interface{}{
		"synced":      result.Synced,
		"failed":      result.Failed,
		"conflicts":   result.Conflicts,
		"pulled":      result.Pulled,
		"duration_ms": result.Duration.Milliseconds(),
	})
	if err != nil {
		setLastError(fmt.Sprintf("Failed to serialize: %v", err))
		return nil
	}
	return C.CString(string(data))
}

// PendingChanges returns the number of queued operations awaiting sync.
//export PendingChanges
func PendingChanges() int32 {
	if engine == nil {
		return 0
	}
	return int32(engine.PendingChanges())
}

// SyncState returns the engine's run state ("idle", "draining",
// "pulling"). The caller must free the result.
//export SyncState
func SyncState() *C.char {
	if engine == nil {
		setLastError("Sync core not initialized")
		return nil
	}
	return C.CString(string(engine.State()))
}

// EnqueueOperation queues a local mutation for synchronization.
// payloadJSON is the full record as JSON; priority is 0 (critical)
// through 3 (low). Returns the queued operation as JSON, or NULL on
// error. The caller must free the result.
//export EnqueueOperation
func EnqueueOperation(dataType, operation, payloadJSON *C.char, priority int32) *C.char {
	if syncQueue == nil {
		setLastError("Sync core not initialized")
		return nil
	}

	dt := models.DataType(C.GoString(dataType))
	if !dt.Valid() {
		setLastError(fmt.Sprintf("Unknown data type: %s", dt))
		return nil
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(C.GoString(payloadJSON)), &payload); err != nil {
		setLastError(fmt.Sprintf("Invalid payload JSON: %v", err))
		return nil
	}

	op, err := syncQueue.Enqueue(dt, models.OperationKind(C.GoString(operation)), payload, models.Priority(priority))
	if err != nil {
		setLastError(fmt.Sprintf("Failed to enqueue: %v", err))
		return nil
	}

	data, err := json.Marshal(op)
	if err != nil {
		setLastError(fmt.Sprintf("Failed to serialize: %v", err))
		return nil
	}
	return C.CString(string(data))
}

// QueueStats returns per-status queue counts as JSON. The caller must
// free the result.
//export QueueStats
func QueueStats() *C.char {
	if syncQueue == nil {
		setLastError("Sync core not initialized")
		return nil
	}

	data, err := json.Marshal(syncQueue.Stats())
	if err != nil {
		setLastError(fmt.Sprintf("Failed to serialize: %v", err))
		return nil
	}
	return C.CString(string(data))
}

// RetryConflict requeues a conflicted operation after the user chose a
// resolution. Returns 0 on success.
//export RetryConflict
func RetryConflict(operationID *C.char) int32 {
	if syncQueue == nil {
		setLastError("Sync core not initialized")
		return 1
	}
	if err := syncQueue.RetryConflict(models.UUID(C.GoString(operationID))); err != nil {
		setLastError(fmt.Sprintf("Failed to retry: %v", err))
		return 1
	}
	return 0
}

// FreeString frees a string returned by any bridge function.
//export FreeString
func FreeString(ptr *C.char) {
	if ptr != nil {
		C.free(unsafe.Pointer(ptr))
	}
}

func main() {
	// Main function is required for c-shared build mode
	// but is not actually executed when used as shared library
}
