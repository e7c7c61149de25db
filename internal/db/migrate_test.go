package db

import (
	"testing"
)

func TestMigrationsApplyOnOpen(t *testing.T) {
	database, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()

	migrator := NewMigrator(database.DB)
	version, err := migrator.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != 2 {
		t.Errorf("Expected schema version 2, got %d", version)
	}

	applied, err := migrator.Applied()
	if err != nil {
		t.Fatalf("Applied failed: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("Expected 2 applied migrations, got %d", len(applied))
	}
	if applied[0].Description != "initial_schema" {
		t.Errorf("Unexpected description %q", applied[0].Description)
	}
	if applied[1].Description != "queue_error_code" {
		t.Errorf("Unexpected description %q", applied[1].Description)
	}
	for _, mig := range applied {
		if len(mig.Checksum) != 64 {
			t.Errorf("Expected sha256 hex checksum for V%d, got %q", mig.Version, mig.Checksum)
		}
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dir := t.TempDir()

	database, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	database.Close()

	// Reopening must not reapply anything.
	database, err = Open(dir)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer database.Close()

	applied, err := NewMigrator(database.DB).Applied()
	if err != nil {
		t.Fatalf("Applied failed: %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("Expected 2 applied migrations after reopen, got %d", len(applied))
	}
}

func TestQueueErrorCodeColumn(t *testing.T) {
	database, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()

	var count int
	err = database.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info('sync_queue') WHERE name = 'error_code'",
	).Scan(&count)
	if err != nil {
		t.Fatalf("pragma_table_info failed: %v", err)
	}
	if count != 1 {
		t.Error("Expected sync_queue to carry the error_code column")
	}
}

func TestSchemaTablesExist(t *testing.T) {
	database, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()

	tables := []string{
		"events", "attendance_logs", "survey_responses", "registrations",
		"certificates", "photo_uploads", "chat_messages", "chat_settings",
		"sync_queue",
	}
	for _, table := range tables {
		var name string
		err := database.QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("Expected table %s to exist: %v", table, err)
		}
	}
}
