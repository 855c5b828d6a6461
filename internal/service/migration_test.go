package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/Ning0612/relocator/internal/config"
	"github.com/Ning0612/relocator/internal/domain"
	"github.com/Ning0612/relocator/internal/lock"
	"github.com/Ning0612/relocator/internal/progress"
	"github.com/Ning0612/relocator/internal/state"
	"github.com/Ning0612/relocator/internal/testutil"
)

type fixture struct {
	svc         *MigrationService
	cfg         *config.Config
	legacy      string
	destination string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()

	cfg := &config.Config{
		DataDir:    filepath.Join(root, "data"),
		StateDir:   filepath.Join(root, "state"),
		ScopedRoot: filepath.Join(root, "scoped"),
		Migration:  config.MigrationConfig{AttemptRename: true, HistoryLimit: 10},
	}

	svc, err := NewMigrationService(cfg)
	if err != nil {
		t.Fatalf("NewMigrationService() error = %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	svc.freeSpace = func(string) (int64, error) { return 1 << 40, nil }

	f := &fixture{
		svc:         svc,
		cfg:         cfg,
		legacy:      testutil.CreateDataDirectory(t, filepath.Join(root, "legacy", "AnkiDroid")),
		destination: filepath.Join(root, "scoped", "AnkiDroid"),
	}
	testutil.CreateTestFile(t, f.legacy, "collection.media/a.jpg", []byte("aaaa"))
	testutil.CreateTestFile(t, f.legacy, "backups/b.colpkg", []byte("bb"))

	if err := svc.SetActiveCollection(f.legacy); err != nil {
		t.Fatalf("SetActiveCollection() error = %v", err)
	}
	return f
}

func (f *fixture) runEssential(t *testing.T) {
	t.Helper()
	record, err := f.svc.RunEssential(context.Background(), f.destination)
	if err != nil {
		t.Fatalf("RunEssential() error = %v", err)
	}
	if record.Status != state.StatusSuccess {
		t.Fatalf("expected success, got %s", record.Status)
	}
}

type recordingReporter struct {
	mu      sync.Mutex
	updates []progress.Update
}

func (r *recordingReporter) callback(u progress.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recordingReporter) last() progress.Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[len(r.updates)-1]
}

func TestNewMigrationService_NilConfig(t *testing.T) {
	if _, err := NewMigrationService(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestMigrationService_BothPhases(t *testing.T) {
	f := newFixture(t)

	record, err := f.svc.RunEssential(context.Background(), f.destination)
	if err != nil {
		t.Fatalf("RunEssential() error = %v", err)
	}
	if record.Status != state.StatusSuccess {
		t.Errorf("expected success, got %s", record.Status)
	}
	if record.Source != f.legacy || record.Destination != f.destination {
		t.Errorf("unexpected record paths: %s -> %s", record.Source, record.Destination)
	}
	if record.FilesMoved == 0 || record.BytesMoved == 0 {
		t.Errorf("expected essential footprint in record, got %d files %d bytes", record.FilesMoved, record.BytesMoved)
	}

	status, err := f.svc.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.ActiveCollection != f.destination {
		t.Errorf("ActiveCollection = %s, want %s", status.ActiveCollection, f.destination)
	}
	if !status.Migration.InProgress() {
		t.Fatal("expected migration in progress")
	}
	if status.RemainingFiles != 2 || status.RemainingBytes != 6 {
		t.Errorf("expected 2 files / 6 bytes remaining, got %d / %d", status.RemainingFiles, status.RemainingBytes)
	}

	rec := &recordingReporter{}
	f.svc.SetProgressReporter(progress.NewCallbackReporter(rec.callback))

	result, userRecord, err := f.svc.RunUserData(context.Background())
	if err != nil {
		t.Fatalf("RunUserData() error = %v", err)
	}
	if !result.Success || !result.Completed {
		t.Errorf("expected completed migration, got %+v", result)
	}
	if userRecord.Status != state.StatusSuccess || userRecord.FilesMoved != 2 || userRecord.BytesMoved != 6 {
		t.Errorf("unexpected user data record: %+v", userRecord)
	}

	first := rec.updates[0]
	if first.Type != progress.UpdateStart || first.Phase != string(domain.PhaseUserData) || first.FilesTotal != 2 {
		t.Errorf("unexpected start update: %+v", first)
	}
	if last := rec.last(); last.Type != progress.UpdateFinish || last.BytesCompleted != 6 {
		t.Errorf("unexpected finish update: %+v", last)
	}

	moved := testutil.ListFiles(t, f.destination)
	for _, name := range []string{"collection.media/a.jpg", "backups/b.colpkg"} {
		if !contains(moved, name) {
			t.Errorf("%s was not moved: %v", name, moved)
		}
	}

	status, err = f.svc.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Migration.InProgress() {
		t.Error("migration state should be cleared")
	}
	if status.Locked {
		t.Error("lock should be released")
	}
	if status.LastEssential == nil || status.LastUserData == nil {
		t.Error("expected a successful run of each phase")
	}

	history, err := f.svc.History("", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(history))
	}
}

func TestMigrationService_RunUserData_NoMigration(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.RunUserData(context.Background())
	if !errors.Is(err, ErrNoMigration) {
		t.Errorf("expected ErrNoMigration, got %v", err)
	}
}

func TestMigrationService_RunUserData_Partial(t *testing.T) {
	f := newFixture(t)
	f.runEssential(t)

	// an entry the destination can't take: a file where a directory is expected
	testutil.CreateTestFile(t, f.destination, "backups", []byte("file"))

	result, record, err := f.svc.RunUserData(context.Background())
	if err != nil {
		t.Fatalf("RunUserData() error = %v", err)
	}
	if result.Completed {
		t.Error("migration should not complete")
	}
	if record.Status != state.StatusPartial {
		t.Errorf("expected partial, got %s", record.Status)
	}
	if record.Passes != 3 {
		t.Errorf("expected 3 passes, got %d", record.Passes)
	}
	if record.Error == "" {
		t.Error("expected errors in record")
	}

	status, err := f.svc.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !status.Migration.InProgress() {
		t.Error("migration should stay in progress")
	}
}

func TestMigrationService_RunEssential_FailureRecorded(t *testing.T) {
	f := newFixture(t)
	testutil.CreateTestFile(t, f.destination, "existing.txt", []byte("x"))

	record, err := f.svc.RunEssential(context.Background(), f.destination)
	if !errors.Is(err, domain.ErrIllegalState) {
		t.Fatalf("expected ErrIllegalState, got %v", err)
	}
	if record.Status != state.StatusFailed || record.Error == "" {
		t.Errorf("unexpected record: %+v", record)
	}

	history, err := f.svc.History(domain.PhaseEssential, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 || history[0].Status != state.StatusFailed {
		t.Errorf("expected one failed run, got %+v", history)
	}
}

func TestMigrationService_LockHeld(t *testing.T) {
	f := newFixture(t)

	other, err := lock.NewFileLock(f.cfg.StateDir)
	if err != nil {
		t.Fatal(err)
	}
	holder := uuid.NewString()
	if err := other.Acquire(holder, domain.PhaseUserData); err != nil {
		t.Fatal(err)
	}
	defer other.Release()

	_, err = f.svc.RunEssential(context.Background(), f.destination)
	if !errors.Is(err, domain.ErrMigrationInProgress) {
		t.Errorf("expected ErrMigrationInProgress, got %v", err)
	}

	status, err := f.svc.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !status.Locked || status.Holder == nil || status.Holder.RunID != holder {
		t.Errorf("expected lock held by %s, got %+v", holder, status.Holder)
	}

	history, err := f.svc.History("", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 0 {
		t.Errorf("a refused run is not recorded, got %d runs", len(history))
	}
}

func TestMigrationService_Unlock(t *testing.T) {
	f := newFixture(t)

	other, _ := lock.NewFileLock(f.cfg.StateDir)
	if err := other.Acquire(uuid.NewString(), domain.PhaseEssential); err != nil {
		t.Fatal(err)
	}

	if err := f.svc.Unlock(); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	f.runEssential(t)
}

func TestMigrationService_SetActiveCollection(t *testing.T) {
	f := newFixture(t)

	if err := f.svc.SetActiveCollection(t.TempDir()); err == nil {
		t.Error("expected error for directory without a collection")
	}

	f.runEssential(t)

	err := f.svc.SetActiveCollection(f.legacy)
	if !errors.Is(err, domain.ErrIllegalState) {
		t.Errorf("expected ErrIllegalState during migration, got %v", err)
	}
}

func TestMigrationService_MigrateFileImmediately(t *testing.T) {
	f := newFixture(t)
	f.runEssential(t)

	expected := filepath.Join(f.destination, "collection.media", "a.jpg")
	if err := f.svc.MigrateFileImmediately(context.Background(), expected); err != nil {
		t.Fatalf("MigrateFileImmediately() error = %v", err)
	}

	content, err := os.ReadFile(expected)
	if err != nil {
		t.Fatalf("file was not moved: %v", err)
	}
	if string(content) != "aaaa" {
		t.Errorf("unexpected content %q", content)
	}
	if _, err := os.Stat(filepath.Join(f.legacy, "collection.media", "a.jpg")); !os.IsNotExist(err) {
		t.Error("source file should be gone")
	}
}

func TestMigrationService_MigrateFileImmediately_NoMigration(t *testing.T) {
	f := newFixture(t)

	err := f.svc.MigrateFileImmediately(context.Background(), filepath.Join(f.destination, "x.jpg"))
	if err != nil {
		t.Errorf("expected nil without a migration, got %v", err)
	}
}

func TestMigrationService_History_InvalidPhase(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.History("sync", 10); err == nil {
		t.Error("expected error for unknown phase")
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
