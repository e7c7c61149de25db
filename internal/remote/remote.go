// Package remote defines the collaborator contracts the sync core depends
// on: the hosted row store, object storage, notifications and the local
// file system. Concrete HTTP clients live alongside the contracts;
// everything here is substitutable with in-memory fakes in tests.
package remote

import (
	"context"
	"os"
)

// Row is a structured record with named fields, as exchanged with the
// hosted row store.
type Row map[string]interface{}

// DataStore is the remote row store collaborator. A duplicate-key insert
// must surface as an error carrying the DUPLICATE_KEY code so callers can
// fall back to update semantics.
type DataStore interface {
	// Select returns rows matching the equality filters, bounded by limit
	// when limit > 0.
	Select(ctx context.Context, table string, filters map[string]interface{}, limit int) ([]Row, error)

	// Insert creates a row and returns the stored representation with
	// server-assigned fields.
	Insert(ctx context.Context, table string, row Row) (Row, error)

	// Update patches a row by id.
	Update(ctx context.Context, table, id string, patch Row) error

	// Delete removes a row by id.
	Delete(ctx context.Context, table, id string) error

	// Upsert inserts rows, merging on the conflict key columns.
	Upsert(ctx context.Context, table string, rows []Row, conflictKeys []string) ([]Row, error)
}

// UploadOptions controls an object storage upload.
type UploadOptions struct {
	ContentType string
	Overwrite   bool
}

// ObjectStore is the remote object storage collaborator. With
// Overwrite=false an existing object must surface as an error carrying
// the OBJECT_EXISTS code; callers implement the KEEP_BOTH rename policy.
type ObjectStore interface {
	Upload(ctx context.Context, path string, data []byte, opts UploadOptions) error
}

// Notifier delivers user notifications. Fire-and-forget: a Notifier
// failure must never abort or roll back a sync operation.
type Notifier interface {
	CreateNotification(ctx context.Context, userID, title, message, severity string, opts map[string]interface{}) error
}

// FileStore reads locally queued files (photo bytes awaiting upload).
type FileStore interface {
	Exists(path string) bool
	ReadBytes(path string) ([]byte, error)
}

// OSFileStore is the os-backed FileStore.
type OSFileStore struct{}

// Exists implements FileStore.
func (OSFileStore) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadBytes implements FileStore.
func (OSFileStore) ReadBytes(path string) ([]byte, error) {
	return os.ReadFile(path)
}
