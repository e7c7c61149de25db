package sync

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/eventra/mobilesync/internal/config"
	"github.com/eventra/mobilesync/internal/db"
	apperrors "github.com/eventra/mobilesync/internal/errors"
	"github.com/eventra/mobilesync/internal/models"
	"github.com/eventra/mobilesync/internal/netmon"
	"github.com/eventra/mobilesync/internal/remote"
	"github.com/eventra/mobilesync/internal/sync/queue"
)

// =====================================================
// In-memory collaborators
// =====================================================

type stubProber struct {
	online bool
}

func (p *stubProber) Probe(ctx context.Context) bool {
	return p.online
}

type upsertCall struct {
	table string
	rows  []remote.Row
	keys  []string
}

type updateCall struct {
	table string
	id    string
	patch remote.Row
}

type fakeData struct {
	mu   gosync.Mutex
	rows map[string][]remote.Row

	// selectFn, when set, replaces the canned-row lookup.
	selectFn  func(table string, filters map[string]interface{}) ([]remote.Row, error)
	insertErr error

	inserts []remote.Row
	updates []updateCall
	upserts []upsertCall
	deletes []string
}

func newFakeData() *fakeData {
	return &fakeData{rows: map[string][]remote.Row{}}
}

func (f *fakeData) Select(_ context.Context, table string, filters map[string]interface{}, limit int) ([]remote.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selectFn != nil {
		return f.selectFn(table, filters)
	}
	var out []remote.Row
	for _, row := range f.rows[table] {
		if !rowMatches(row, filters) {
			continue
		}
		out = append(out, row)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeData) Insert(_ context.Context, table string, row remote.Row) (remote.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts = append(f.inserts, row)
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.rows[table] = append(f.rows[table], row)
	return row, nil
}

func (f *fakeData) Update(_ context.Context, table, id string, patch remote.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, updateCall{table: table, id: id, patch: patch})
	return nil
}

func (f *fakeData) Delete(_ context.Context, table, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	return nil
}

func (f *fakeData) Upsert(_ context.Context, table string, rows []remote.Row, conflictKeys []string) ([]remote.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, upsertCall{table: table, rows: rows, keys: conflictKeys})
	return rows, nil
}

func rowMatches(row remote.Row, filters map[string]interface{}) bool {
	for key, want := range filters {
		if fmt.Sprintf("%v", row[key]) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

type uploadRecord struct {
	path string
	size int
	opts remote.UploadOptions
}

type fakeObjects struct {
	mu       gosync.Mutex
	existing map[string]bool
	uploads  []uploadRecord
}

func newFakeObjects(existing ...string) *fakeObjects {
	f := &fakeObjects{existing: map[string]bool{}}
	for _, p := range existing {
		f.existing[p] = true
	}
	return f
}

func (f *fakeObjects) Upload(_ context.Context, path string, data []byte, opts remote.UploadOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, uploadRecord{path: path, size: len(data), opts: opts})
	if !opts.Overwrite && f.existing[path] {
		return apperrors.New(apperrors.ErrObjectExists, fmt.Sprintf("object %q already exists", path))
	}
	f.existing[path] = true
	return nil
}

type notification struct {
	userID   string
	title    string
	message  string
	severity string
}

type fakeNotifier struct {
	mu   gosync.Mutex
	sent []notification
}

func (f *fakeNotifier) CreateNotification(_ context.Context, userID, title, message, severity string, _ map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notification{userID: userID, title: title, message: message, severity: severity})
	return nil
}

type fakeFiles struct {
	files map[string][]byte
}

func (f *fakeFiles) Exists(path string) bool {
	_, ok := f.files[path]
	return ok
}

func (f *fakeFiles) ReadBytes(path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file %q", path)
	}
	return data, nil
}

type fakeSink struct {
	mu        gosync.Mutex
	started   []int
	progress  int
	completed bool
	conflicts []string
}

func (s *fakeSink) SyncStarted(pending int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, pending)
}

func (s *fakeSink) SyncProgress(completed, total int, current string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress++
}

func (s *fakeSink) SyncCompleted(synced, failed, conflicts int, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = true
}

func (s *fakeSink) ConflictDetected(operationID, dataType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = append(s.conflicts, dataType)
}

var (
	_ remote.DataStore   = (*fakeData)(nil)
	_ remote.ObjectStore = (*fakeObjects)(nil)
	_ remote.Notifier    = (*fakeNotifier)(nil)
	_ remote.FileStore   = (*fakeFiles)(nil)
	_ StatusSink         = (*fakeSink)(nil)
)

// =====================================================
// Fixture
// =====================================================

type fixture struct {
	engine   *Engine
	queue    *queue.Queue
	store    *db.LocalStore
	data     *fakeData
	objects  *fakeObjects
	notifier *fakeNotifier
	files    *fakeFiles
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()

	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	store := db.NewLocalStore(database)
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		queue:    queue.New(database, 100),
		store:    store,
		data:     newFakeData(),
		objects:  newFakeObjects(),
		notifier: &fakeNotifier{},
		files:    &fakeFiles{files: map[string][]byte{}},
	}

	cfg := config.Default()
	monitor := netmon.New(&stubProber{online: online}, time.Minute)

	f.engine = New(Deps{
		Store:    store,
		Queue:    f.queue,
		Monitor:  monitor,
		Data:     f.data,
		Objects:  f.objects,
		Notifier: f.notifier,
		Files:    f.files,
		Config:   cfg,
		UserID:   "user-1",
	})
	if err := f.engine.Initialize(context.Background()); err != nil {
		t.Fatalf("Failed to initialize engine: %v", err)
	}
	return f
}

func (f *fixture) sync(t *testing.T) *Result {
	t.Helper()
	result, err := f.engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	return result
}

// =====================================================
// Run guards
// =====================================================

func TestSyncSkipsWhenOffline(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.queue.Enqueue(models.DataTypeSurveyResponse, models.OperationCreate,
		map[string]interface{}{"id": "s-1", "survey_id": "sv-1", "user_id": "user-1"},
		models.PriorityMedium)
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	result := f.sync(t)

	if !result.Zero() {
		t.Errorf("Expected zero result offline, got %+v", result)
	}
	if len(f.data.upserts) != 0 {
		t.Error("Expected no remote calls while offline")
	}
	if f.engine.PendingChanges() != 1 {
		t.Errorf("Expected operation to stay queued, pending = %d", f.engine.PendingChanges())
	}
}

func TestSyncRefusesOverlappingRun(t *testing.T) {
	f := newFixture(t, true)

	f.engine.mu.Lock()
	f.engine.state = StateDraining
	f.engine.mu.Unlock()

	result := f.sync(t)
	if !result.Zero() {
		t.Errorf("Expected zero result for overlapping run, got %+v", result)
	}
	if f.engine.State() != StateDraining {
		t.Errorf("Expected state to be untouched, got %s", f.engine.State())
	}

	f.engine.mu.Lock()
	f.engine.state = StateIdle
	f.engine.mu.Unlock()
}

func TestSyncReturnsToIdleAndRecordsLastSync(t *testing.T) {
	f := newFixture(t, true)

	f.sync(t)

	if f.engine.State() != StateIdle {
		t.Errorf("Expected idle after run, got %s", f.engine.State())
	}
	if f.engine.LastSync() == nil {
		t.Error("Expected last sync time to be recorded")
	}
	if f.engine.LastError() != nil {
		t.Errorf("Expected no run error, got %v", f.engine.LastError())
	}
}

// =====================================================
// Offline check-in
// =====================================================

func TestOfflineCheckInSyncsOnReconnect(t *testing.T) {
	f := newFixture(t, true)

	f.data.rows["registrations"] = []remote.Row{
		{"id": "reg-1", "event_id": "evt-1", "user_id": "user-1",
			"status": models.RegistrationStatusRegistered},
	}
	f.data.rows["events"] = []remote.Row{
		{"id": "evt-1", "title": "Go Meetup", "checkin_code": "QR-1",
			"updated_at": int64(1000)},
	}

	now := time.Now().Unix()
	if err := f.store.SaveAttendanceLog(&models.AttendanceLog{
		ID: "att-1", EventID: "evt-1", UserID: "user-1",
		Method: "qr", QRPayload: "QR-1", CheckedInAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("Failed to save attendance: %v", err)
	}
	_, err := f.queue.Enqueue(models.DataTypeAttendanceRecord, models.OperationCreate,
		map[string]interface{}{
			"id": "att-1", "event_id": "evt-1", "user_id": "user-1",
			"method": "qr", "qr_payload": "QR-1",
			"checked_in_at": now, "updated_at": now,
		}, models.PriorityCritical)
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	result := f.sync(t)

	if result.Synced != 1 || result.Failed != 0 {
		t.Errorf("Expected 1 synced 0 failed, got %d/%d", result.Synced, result.Failed)
	}
	if f.engine.PendingChanges() != 0 {
		t.Errorf("Expected empty queue, pending = %d", f.engine.PendingChanges())
	}

	if len(f.data.upserts) != 1 {
		t.Fatalf("Expected 1 upsert, got %d", len(f.data.upserts))
	}
	up := f.data.upserts[0]
	if up.table != "attendance_logs" {
		t.Errorf("Expected upsert to attendance_logs, got %s", up.table)
	}
	if len(up.keys) != 2 || up.keys[0] != "event_id" || up.keys[1] != "user_id" {
		t.Errorf("Expected natural-key merge, got %v", up.keys)
	}
	if up.rows[0]["qr_validated"] != true {
		t.Error("Expected the check-in to carry the validation flag")
	}
	if _, ok := up.rows[0]["synced_at"]; ok {
		t.Error("Expected local bookkeeping to be stripped from the remote row")
	}

	logs, err := f.store.GetAttendanceLogs("evt-1", "user-1")
	if err != nil {
		t.Fatalf("Failed to read attendance: %v", err)
	}
	if len(logs) != 1 || logs[0].SyncedAt == 0 {
		t.Error("Expected the mirror row to be acknowledged")
	}

	if len(f.notifier.sent) != 1 {
		t.Fatalf("Expected exactly 1 notification, got %d", len(f.notifier.sent))
	}
	if f.notifier.sent[0].title != "Check-in Confirmed" {
		t.Errorf("Expected check-in title, got %q", f.notifier.sent[0].title)
	}
	if f.notifier.sent[0].userID != "user-1" {
		t.Errorf("Expected notification for user-1, got %q", f.notifier.sent[0].userID)
	}
}

func TestCheckInRejectedWithoutRegistration(t *testing.T) {
	f := newFixture(t, true)

	op, err := f.queue.Enqueue(models.DataTypeAttendanceRecord, models.OperationCreate,
		map[string]interface{}{
			"id": "att-1", "event_id": "evt-1", "user_id": "user-1",
			"method": "qr", "qr_payload": "QR-1",
		}, models.PriorityCritical)
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	result := f.sync(t)

	if result.Failed != 1 || result.Synced != 0 {
		t.Errorf("Expected 1 failed 0 synced, got %d/%d", result.Failed, result.Synced)
	}
	if len(f.data.upserts) != 0 {
		t.Error("Expected no upsert for a rejected check-in")
	}

	stored, err := f.queue.Get(op.ID)
	if err != nil {
		t.Fatalf("Failed to get operation: %v", err)
	}
	if stored.Status != models.StatusFailed {
		t.Errorf("Expected failed status, got %s", stored.Status)
	}
	if !strings.Contains(stored.LastError, "no registration found") {
		t.Errorf("Expected rejection reason in last error, got %q", stored.LastError)
	}
	if stored.ErrorCode != string(apperrors.ErrCheckInRejected) {
		t.Errorf("Expected CHECK_IN_REJECTED code, got %q", stored.ErrorCode)
	}

	if len(f.notifier.sent) != 1 || f.notifier.sent[0].title != "Sync Issues" {
		t.Errorf("Expected a sync issues notification, got %+v", f.notifier.sent)
	}
}

func TestCheckInRejectedOnCodeMismatch(t *testing.T) {
	f := newFixture(t, true)

	f.data.rows["registrations"] = []remote.Row{
		{"id": "reg-1", "event_id": "evt-1", "user_id": "user-1",
			"status": models.RegistrationStatusRegistered},
	}
	f.data.rows["events"] = []remote.Row{
		{"id": "evt-1", "checkin_code": "QR-REAL", "updated_at": int64(1000)},
	}

	op, err := f.queue.Enqueue(models.DataTypeAttendanceRecord, models.OperationCreate,
		map[string]interface{}{
			"id": "att-1", "event_id": "evt-1", "user_id": "user-1",
			"method": "qr", "qr_payload": "QR-FORGED",
		}, models.PriorityCritical)
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	result := f.sync(t)

	if result.Failed != 1 {
		t.Errorf("Expected 1 failed, got %d", result.Failed)
	}
	stored, _ := f.queue.Get(op.ID)
	if !strings.Contains(stored.LastError, "not valid for this event") {
		t.Errorf("Expected code mismatch reason, got %q", stored.LastError)
	}
}

// =====================================================
// Creates
// =====================================================

func TestSurveySubmissionUpserts(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.queue.Enqueue(models.DataTypeSurveyResponse, models.OperationCreate,
		map[string]interface{}{
			"id": "s-1", "survey_id": "sv-1", "user_id": "user-1",
			"event_id": "evt-1", "answers": `{"q1":"great"}`,
			"data_type": "survey_response", "synced_at": 0,
		}, models.PriorityMedium)
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	result := f.sync(t)

	if result.Synced != 1 {
		t.Fatalf("Expected 1 synced, got %d", result.Synced)
	}
	if len(f.data.upserts) != 1 {
		t.Fatalf("Expected 1 upsert, got %d", len(f.data.upserts))
	}
	up := f.data.upserts[0]
	if up.table != "survey_responses" {
		t.Errorf("Expected survey_responses, got %s", up.table)
	}
	if len(up.keys) != 2 || up.keys[0] != "survey_id" || up.keys[1] != "user_id" {
		t.Errorf("Expected (survey_id, user_id) merge keys, got %v", up.keys)
	}
	row := up.rows[0]
	if _, ok := row["data_type"]; ok {
		t.Error("Expected data_type to be stripped from the remote row")
	}
	if _, ok := row["synced_at"]; ok {
		t.Error("Expected synced_at to be stripped from the remote row")
	}
}

func TestSurveyResubmissionIsAnUpdateNotADuplicate(t *testing.T) {
	f := newFixture(t, true)

	submit := func(answers string) {
		t.Helper()
		_, err := f.queue.Enqueue(models.DataTypeSurveyResponse, models.OperationCreate,
			map[string]interface{}{
				"id": "s-1", "survey_id": "sv-1", "user_id": "user-1",
				"event_id": "evt-1", "answers": answers,
			}, models.PriorityMedium)
		if err != nil {
			t.Fatalf("Failed to enqueue: %v", err)
		}
		result := f.sync(t)
		if result.Synced != 1 {
			t.Fatalf("Expected 1 synced, got %d", result.Synced)
		}
	}

	submit(`{"q1":"good"}`)
	submit(`{"q1":"great, actually"}`)

	// Both passes converge on the same natural key; the server sees a
	// revision, never a second response.
	if len(f.data.inserts) != 0 {
		t.Errorf("Expected no plain inserts, got %d", len(f.data.inserts))
	}
	if len(f.data.upserts) != 2 {
		t.Fatalf("Expected 2 upserts, got %d", len(f.data.upserts))
	}
	for _, up := range f.data.upserts {
		if up.table != "survey_responses" {
			t.Errorf("Expected survey_responses, got %s", up.table)
		}
		if len(up.keys) != 2 || up.keys[0] != "survey_id" || up.keys[1] != "user_id" {
			t.Errorf("Expected (survey_id, user_id) merge keys, got %v", up.keys)
		}
	}
	if got := f.data.upserts[1].rows[0]["answers"]; got != `{"q1":"great, actually"}` {
		t.Errorf("Expected the revised answers in the second pass, got %v", got)
	}
	if f.queue.Size() != 0 {
		t.Errorf("Expected an empty queue after both passes, got %d", f.queue.Size())
	}
}

func TestRegistrationCreateFlipsCancelledBack(t *testing.T) {
	f := newFixture(t, true)

	f.data.rows["registrations"] = []remote.Row{
		{"id": "reg-1", "event_id": "evt-1", "user_id": "user-1",
			"status": models.RegistrationStatusCancelled},
	}

	_, err := f.queue.Enqueue(models.DataTypeEventRegistration, models.OperationCreate,
		map[string]interface{}{
			"id": "local-reg-1", "event_id": "evt-1", "user_id": "user-1",
			"status": models.RegistrationStatusRegistered,
		}, models.PriorityHigh)
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	result := f.sync(t)

	if result.Synced != 1 {
		t.Fatalf("Expected 1 synced, got %d", result.Synced)
	}
	if len(f.data.inserts) != 0 {
		t.Error("Expected no insert when a remote registration exists")
	}
	if len(f.data.updates) != 1 {
		t.Fatalf("Expected 1 update, got %d", len(f.data.updates))
	}
	u := f.data.updates[0]
	if u.id != "reg-1" {
		t.Errorf("Expected update of the remote row, got id %s", u.id)
	}
	if u.patch["status"] != models.RegistrationStatusRegistered {
		t.Errorf("Expected status flipped to registered, got %v", u.patch["status"])
	}
}

func TestRegistrationCreateSurvivesDuplicateRace(t *testing.T) {
	f := newFixture(t, true)

	// The pre-check sees nothing, the insert hits the unique constraint,
	// and the re-check finds the row created through another path.
	existing := remote.Row{"id": "reg-1", "event_id": "evt-1", "user_id": "user-1",
		"status": models.RegistrationStatusRegistered}
	selects := 0
	f.data.selectFn = func(table string, filters map[string]interface{}) ([]remote.Row, error) {
		if table != "registrations" {
			return nil, nil
		}
		selects++
		if selects == 1 {
			return nil, nil
		}
		return []remote.Row{existing}, nil
	}
	f.data.insertErr = apperrors.New(apperrors.ErrDuplicateKey, "duplicate key")

	_, err := f.queue.Enqueue(models.DataTypeEventRegistration, models.OperationCreate,
		map[string]interface{}{
			"id": "local-reg-1", "event_id": "evt-1", "user_id": "user-1",
			"status": models.RegistrationStatusRegistered,
		}, models.PriorityHigh)
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	result := f.sync(t)

	if result.Synced != 1 || result.Failed != 0 {
		t.Errorf("Expected the race to settle as success, got %d/%d", result.Synced, result.Failed)
	}
	if len(f.data.inserts) != 1 {
		t.Errorf("Expected 1 insert attempt, got %d", len(f.data.inserts))
	}
	if len(f.data.updates) != 0 {
		t.Error("Expected no update for an already registered row")
	}
}

func TestPhotoUploadKeepsBothOnCollision(t *testing.T) {
	f := newFixture(t, true)

	localPath := filepath.Join("queue", "pic.jpg")
	f.files.files[localPath] = []byte("jpeg-bytes")
	f.objects.existing["evt-1/pic.jpg"] = true

	_, err := f.queue.Enqueue(models.DataTypeImageUpload, models.OperationCreate,
		map[string]interface{}{
			"id": "ph-1", "event_id": "evt-1", "user_id": "user-1",
			"local_path": localPath, "remote_path": "evt-1/pic.jpg",
			"content_type": "image/jpeg", "size_bytes": 10,
		}, models.PriorityLow)
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	result := f.sync(t)

	if result.Synced != 1 {
		t.Fatalf("Expected 1 synced, got %d", result.Synced)
	}
	if len(f.objects.uploads) != 2 {
		t.Fatalf("Expected 2 upload attempts, got %d", len(f.objects.uploads))
	}
	renamed := f.objects.uploads[1].path
	if renamed == "evt-1/pic.jpg" {
		t.Error("Expected the second attempt under a new name")
	}
	if !strings.HasPrefix(renamed, "evt-1/pic-") || !strings.HasSuffix(renamed, ".jpg") {
		t.Errorf("Expected a disambiguated name, got %q", renamed)
	}
	if f.objects.uploads[0].opts.Overwrite || f.objects.uploads[1].opts.Overwrite {
		t.Error("Expected uploads to never overwrite")
	}

	if len(f.data.upserts) != 1 {
		t.Fatalf("Expected 1 metadata upsert, got %d", len(f.data.upserts))
	}
	row := f.data.upserts[0].rows[0]
	if row["remote_path"] != renamed {
		t.Errorf("Expected metadata to carry the renamed path, got %v", row["remote_path"])
	}
	if _, ok := row["local_path"]; ok {
		t.Error("Expected local_path to be stripped from the remote row")
	}

	photos, err := f.store.GetPhotoUploads("evt-1")
	if err != nil {
		t.Fatalf("Failed to read photos: %v", err)
	}
	if len(photos) != 1 || photos[0].RemotePath != renamed {
		t.Errorf("Expected the mirror to track the renamed path, got %+v", photos)
	}
}

func TestPhotoUploadFailsWhenFileMissing(t *testing.T) {
	f := newFixture(t, true)

	op, err := f.queue.Enqueue(models.DataTypeImageUpload, models.OperationCreate,
		map[string]interface{}{
			"id": "ph-1", "event_id": "evt-1", "user_id": "user-1",
			"local_path": "gone.jpg", "remote_path": "evt-1/gone.jpg",
		}, models.PriorityLow)
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	result := f.sync(t)

	if result.Failed != 1 {
		t.Errorf("Expected 1 failed, got %d", result.Failed)
	}
	if len(f.objects.uploads) != 0 {
		t.Error("Expected no upload attempt for a missing file")
	}
	stored, _ := f.queue.Get(op.ID)
	if stored.Status != models.StatusFailed {
		t.Errorf("Expected failed status, got %s", stored.Status)
	}
}

// =====================================================
// Updates and conflicts
// =====================================================

func TestUpdateWithoutConflictPatches(t *testing.T) {
	f := newFixture(t, true)

	// Only the local side moved since the last sync point.
	f.data.rows["registrations"] = []remote.Row{
		{"id": "reg-1", "event_id": "evt-1", "user_id": "user-1",
			"status": models.RegistrationStatusRegistered, "updated_at": int64(100)},
	}

	_, err := f.queue.Enqueue(models.DataTypeEventRegistration, models.OperationUpdate,
		map[string]interface{}{
			"id": "reg-1", "event_id": "evt-1", "user_id": "user-1",
			"status":     models.RegistrationStatusCancelled,
			"updated_at": int64(200), "synced_at": int64(150),
		}, models.PriorityHigh)
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	result := f.sync(t)

	if result.Synced != 1 || result.Conflicts != 0 {
		t.Fatalf("Expected a clean update, got synced=%d conflicts=%d", result.Synced, result.Conflicts)
	}
	if len(f.data.updates) != 1 {
		t.Fatalf("Expected 1 update, got %d", len(f.data.updates))
	}
	patch := f.data.updates[0].patch
	if patch["status"] != models.RegistrationStatusCancelled {
		t.Errorf("Expected cancelled status in patch, got %v", patch["status"])
	}
	if len(patch) != 2 {
		t.Errorf("Expected a status-only patch, got %v", patch)
	}
}

func TestUpdateServerWinsDiscardsLocalChange(t *testing.T) {
	f := newFixture(t, true)

	f.data.rows["events"] = []remote.Row{
		{"id": "evt-1", "title": "Rescheduled Meetup", "status": "published",
			"updated_at": int64(300)},
	}

	_, err := f.queue.Enqueue(models.DataTypeEventMetadata, models.OperationUpdate,
		map[string]interface{}{
			"id": "evt-1", "title": "My Stale Edit", "status": "published",
			"updated_at": int64(200), "synced_at": int64(100),
		}, models.PriorityMedium)
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	result := f.sync(t)

	if result.Synced != 1 || result.Conflicts != 0 {
		t.Fatalf("Expected server-wins to settle as success, got %+v", result)
	}
	if len(f.data.updates) != 0 {
		t.Error("Expected no remote update when the server wins")
	}

	event, err := f.store.GetEventByID("evt-1")
	if err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	if event.Title != "Rescheduled Meetup" {
		t.Errorf("Expected the authoritative copy locally, got %q", event.Title)
	}
}

func TestUpdateMessageEditParksAsConflict(t *testing.T) {
	f := newFixture(t, true)

	f.data.rows["chat_messages"] = []remote.Row{
		{"id": "msg-1", "event_id": "evt-1", "user_id": "user-1",
			"body": "see you at 10", "updated_at": int64(300)},
	}

	sink := &fakeSink{}
	f.engine.SetStatusSink(sink)

	op, err := f.queue.Enqueue(models.DataTypeEventMessage, models.OperationUpdate,
		map[string]interface{}{
			"id": "msg-1", "event_id": "evt-1", "user_id": "user-1",
			"body": "see you at 9", "updated_at": int64(200), "synced_at": int64(100),
		}, models.PriorityMedium)
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	result := f.sync(t)

	if result.Conflicts != 1 || result.Synced != 0 || result.Failed != 0 {
		t.Fatalf("Expected 1 conflict, got %+v", result)
	}
	if len(f.data.updates) != 0 {
		t.Error("Expected no remote update for a parked conflict")
	}

	stored, err := f.queue.Get(op.ID)
	if err != nil {
		t.Fatalf("Failed to get operation: %v", err)
	}
	if stored.Status != models.StatusConflict {
		t.Errorf("Expected conflict status, got %s", stored.Status)
	}
	if stored.Conflict == nil {
		t.Fatal("Expected the conflict snapshot to be persisted")
	}
	if stored.ErrorCode != string(apperrors.ErrSyncConflict) {
		t.Errorf("Expected SYNC_CONFLICT code, got %q", stored.ErrorCode)
	}
	if stored.Conflict.Local["body"] != "see you at 9" {
		t.Errorf("Expected local copy in snapshot, got %v", stored.Conflict.Local["body"])
	}
	if stored.Conflict.Server["body"] != "see you at 10" {
		t.Errorf("Expected server copy in snapshot, got %v", stored.Conflict.Server["body"])
	}

	if len(sink.conflicts) != 1 || sink.conflicts[0] != "event_message" {
		t.Errorf("Expected a conflict event on the sink, got %v", sink.conflicts)
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].title != "Sync Conflicts" {
		t.Errorf("Expected a conflict notification, got %+v", f.notifier.sent)
	}
}

func TestUpdateInsertsWhenServerNeverSawRecord(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.queue.Enqueue(models.DataTypeEventMessage, models.OperationUpdate,
		map[string]interface{}{
			"id": "msg-1", "event_id": "evt-1", "user_id": "user-1",
			"body": "hello", "updated_at": int64(200), "synced_at": int64(0),
		}, models.PriorityMedium)
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	result := f.sync(t)

	if result.Synced != 1 {
		t.Fatalf("Expected 1 synced, got %d", result.Synced)
	}
	if len(f.data.inserts) != 1 {
		t.Fatalf("Expected convergence via insert, got %d inserts", len(f.data.inserts))
	}
	if f.data.inserts[0]["body"] != "hello" {
		t.Errorf("Expected the payload body, got %v", f.data.inserts[0]["body"])
	}
}

// =====================================================
// Deletes
// =====================================================

func TestDeleteRemovesRemoteAndMirror(t *testing.T) {
	f := newFixture(t, true)

	now := time.Now().Unix()
	if err := f.store.SaveChatMessage(&models.ChatMessage{
		ID: "msg-1", EventID: "evt-1", UserID: "user-1",
		Body: "typo", SentAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("Failed to save message: %v", err)
	}

	_, err := f.queue.Enqueue(models.DataTypeEventMessage, models.OperationDelete,
		map[string]interface{}{"id": "msg-1"}, models.PriorityMedium)
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	result := f.sync(t)

	if result.Synced != 1 {
		t.Fatalf("Expected 1 synced, got %d", result.Synced)
	}
	if len(f.data.deletes) != 1 || f.data.deletes[0] != "msg-1" {
		t.Errorf("Expected remote delete of msg-1, got %v", f.data.deletes)
	}

	messages, err := f.store.GetChatMessages("evt-1")
	if err != nil {
		t.Fatalf("Failed to read messages: %v", err)
	}
	if len(messages) != 0 {
		t.Error("Expected the mirror row to be removed")
	}
}

// =====================================================
// Pull
// =====================================================

func TestPullSkipsLocallyDirtyRows(t *testing.T) {
	f := newFixture(t, true)

	now := time.Now().Unix()
	if err := f.store.SaveEvent(&models.Event{
		ID: "evt-9", Title: "Local Draft", Status: "published",
		StartsAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("Failed to save event: %v", err)
	}

	f.data.rows["events"] = []remote.Row{
		{"id": "evt-9", "title": "Stale Server Copy", "status": "published",
			"updated_at": int64(100)},
		{"id": "evt-10", "title": "Fresh Event", "status": "published",
			"updated_at": int64(200)},
	}

	result := f.sync(t)

	if result.Pulled != 1 {
		t.Errorf("Expected only the clean row pulled, got %d", result.Pulled)
	}

	dirty, err := f.store.GetEventByID("evt-9")
	if err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	if dirty.Title != "Local Draft" {
		t.Errorf("Expected the dirty row untouched, got %q", dirty.Title)
	}

	pulled, err := f.store.GetEventByID("evt-10")
	if err != nil {
		t.Fatalf("Expected evt-10 to be mirrored: %v", err)
	}
	if pulled.Title != "Fresh Event" || pulled.SyncedAt == 0 {
		t.Errorf("Expected an acknowledged mirror copy, got %+v", pulled)
	}
}

func TestPullScopesUserOwnedTables(t *testing.T) {
	f := newFixture(t, true)

	f.data.rows["registrations"] = []remote.Row{
		{"id": "reg-1", "event_id": "evt-1", "user_id": "user-1",
			"status": models.RegistrationStatusRegistered, "registered_at": int64(50),
			"updated_at": int64(100)},
		{"id": "reg-2", "event_id": "evt-1", "user_id": "someone-else",
			"status": models.RegistrationStatusRegistered, "registered_at": int64(50),
			"updated_at": int64(100)},
	}

	result := f.sync(t)

	if result.Pulled != 1 {
		t.Errorf("Expected only this user's registration pulled, got %d", result.Pulled)
	}
	regs, err := f.store.GetRegistrations("", "", "")
	if err != nil {
		t.Fatalf("Failed to read registrations: %v", err)
	}
	if len(regs) != 1 || regs[0].ID != "reg-1" {
		t.Errorf("Expected exactly reg-1 mirrored, got %+v", regs)
	}
}

// =====================================================
// Status sink
// =====================================================

func TestSinkReceivesLifecycleEvents(t *testing.T) {
	f := newFixture(t, true)

	sink := &fakeSink{}
	f.engine.SetStatusSink(sink)

	_, err := f.queue.Enqueue(models.DataTypeSurveyResponse, models.OperationCreate,
		map[string]interface{}{"id": "s-1", "survey_id": "sv-1", "user_id": "user-1"},
		models.PriorityMedium)
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	f.sync(t)

	if len(sink.started) != 1 || sink.started[0] != 1 {
		t.Errorf("Expected start event with 1 pending, got %v", sink.started)
	}
	if sink.progress != 1 {
		t.Errorf("Expected 1 progress event, got %d", sink.progress)
	}
	if !sink.completed {
		t.Error("Expected a completion event")
	}
}
