// Package service wires the migration phases to their collaborators and
// records every run in the history database.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ning0612/relocator/internal/adapter"
	"github.com/Ning0612/relocator/internal/adapter/local"
	"github.com/Ning0612/relocator/internal/collection"
	"github.com/Ning0612/relocator/internal/config"
	"github.com/Ning0612/relocator/internal/core/essential"
	"github.com/Ning0612/relocator/internal/core/userdata"
	"github.com/Ning0612/relocator/internal/domain"
	"github.com/Ning0612/relocator/internal/lock"
	"github.com/Ning0612/relocator/internal/logger"
	"github.com/Ning0612/relocator/internal/prefs"
	"github.com/Ning0612/relocator/internal/progress"
	"github.com/Ning0612/relocator/internal/state"
)

// ErrNoMigration is returned by RunUserData when no migration is in progress
var ErrNoMigration = errors.New("no user data migration in progress")

// MigrationService orchestrates both migration phases
type MigrationService struct {
	config   *config.Config
	fs       adapter.FileSystem
	prefs    prefs.Store
	opener   collection.Opener
	lock     *lock.FileLock
	history  *state.Manager
	reporter progress.Reporter

	// freeSpace overrides the filesystem's free space query
	freeSpace func(path string) (int64, error)

	mu      sync.Mutex
	current *userdata.Migrator
}

// Status describes the migration as seen from the preferences, the lock and the history
type Status struct {
	ActiveCollection string                `json:"active_collection"`
	Migration        domain.MigrationState `json:"migration"`
	Locked           bool                  `json:"locked"`
	Holder           *lock.LockInfo        `json:"holder,omitempty"`

	// Remaining is only set while a user data migration is in progress
	RemainingFiles int   `json:"remaining_files"`
	RemainingBytes int64 `json:"remaining_bytes"`

	LastEssential *state.RunRecord `json:"last_essential,omitempty"`
	LastUserData  *state.RunRecord `json:"last_userdata,omitempty"`
}

// NewMigrationService opens the preference store and the run history in the
// configured data directory
func NewMigrationService(cfg *config.Config) (*MigrationService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	fs := local.New()
	if err := fs.MkdirAll(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	fileLock, err := lock.NewFileLock(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create file lock: %w", err)
	}

	store, err := prefs.NewBoltStore(cfg.PreferencesPath())
	if err != nil {
		return nil, err
	}

	history, err := state.NewManager(cfg.DataDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}

	return &MigrationService{
		config:  cfg,
		fs:      fs,
		prefs:   store,
		opener:  collection.NewSQLiteOpener(),
		lock:    fileLock,
		history: history,
	}, nil
}

// SetProgressReporter sets the progress reporter for migration runs
func (s *MigrationService) SetProgressReporter(reporter progress.Reporter) {
	s.reporter = reporter
}

func (s *MigrationService) getReporter() progress.Reporter {
	if s.reporter != nil {
		return s.reporter
	}
	return progress.NullReporter{}
}

// SetActiveCollection points the preferences at the collection in dir.
// It is refused while a migration is in progress.
func (s *MigrationService) SetActiveCollection(dir string) error {
	migration, err := prefs.LoadMigrationState(s.prefs)
	if err != nil {
		return err
	}
	if migration.InProgress() {
		return fmt.Errorf("%w: migration from '%s' to '%s' is in progress",
			domain.ErrIllegalState, migration.Source, migration.Destination)
	}

	directory, err := domain.NewDirectory(dir)
	if err != nil {
		return err
	}
	if _, err := s.fs.Stat(collection.Path(directory.Path())); err != nil {
		return fmt.Errorf("no collection in '%s': %w", directory, err)
	}

	logger.Get().Info("active collection set", "path", directory.Path())
	return s.prefs.SetString(prefs.KeyCollectionPath, directory.Path())
}

// RunEssential moves the essential files of the active collection to
// destination and switches the active collection over to it
func (s *MigrationService) RunEssential(ctx context.Context, destination string) (*state.RunRecord, error) {
	source, err := prefs.CollectionDirectory(s.prefs)
	if err != nil {
		return nil, err
	}

	record := &state.RunRecord{
		ID:          uuid.NewString(),
		Phase:       domain.PhaseEssential,
		Source:      source,
		Destination: destination,
		StartTime:   time.Now(),
	}
	log := logger.With("run", record.ID, "phase", record.Phase)

	if err := s.acquire(record); err != nil {
		return nil, err
	}
	defer s.release(record)

	reporter := s.getReporter()
	reporter.Start(string(domain.PhaseEssential), 0, 0)
	defer reporter.Finish()

	log.Info("essential files migration started", "source", source, "destination", destination)
	err = essential.MigrateEssentialFiles(ctx, essential.Config{
		FileSystem:  s.fs,
		Opener:      s.opener,
		Preferences: s.prefs,
		ScopedRoot:  s.config.ScopedRoot,
		FreeSpace:   s.freeSpace,
	}, destination)

	record.EndTime = time.Now()
	if err != nil {
		reporter.Error(err)
		record.Status = state.StatusFailed
		record.Error = err.Error()
		log.Error("essential files migration failed", "error", err)
	} else {
		record.Status = state.StatusSuccess
		if files, bytes, ferr := s.essentialFootprint(destination); ferr == nil {
			record.FilesMoved = files
			record.BytesMoved = bytes
			reporter.Moved(bytes)
		}
		log.Info("essential files migration finished", "duration", record.Duration())
	}

	s.save(record)
	return record, err
}

func (s *MigrationService) essentialFootprint(dir string) (int, int64, error) {
	directory, err := domain.NewDirectory(dir)
	if err != nil {
		return 0, 0, err
	}
	bytes, err := essential.SpaceRequired(s.fs, directory)
	if err != nil {
		return 0, 0, err
	}
	files := 0
	for _, name := range essential.FileNames() {
		if ok, _ := adapter.Exists(s.fs, directory.Join(name)); ok {
			files++
		}
	}
	return files, bytes, nil
}

// RunUserData moves the remaining user data of the migration in progress.
// Returns ErrNoMigration if there is none.
func (s *MigrationService) RunUserData(ctx context.Context) (*userdata.Result, *state.RunRecord, error) {
	migrator, err := userdata.NewFromPreferences(s.prefs, s.fs, s.config.Migration.AttemptRename)
	if err != nil {
		return nil, nil, err
	}
	if migrator == nil {
		return nil, nil, ErrNoMigration
	}

	record := &state.RunRecord{
		ID:          uuid.NewString(),
		Phase:       domain.PhaseUserData,
		Source:      migrator.Source().Path(),
		Destination: migrator.Destination().Path(),
		StartTime:   time.Now(),
	}
	log := logger.With("run", record.ID, "phase", record.Phase)

	if err := s.acquire(record); err != nil {
		return nil, nil, err
	}
	defer s.release(record)

	filesBefore, bytesBefore, err := migrator.Remaining()
	if err != nil {
		return nil, nil, err
	}

	reporter := s.getReporter()
	reporter.Start(string(domain.PhaseUserData), filesBefore, bytesBefore)
	defer reporter.Finish()

	s.setCurrent(migrator)
	defer s.setCurrent(nil)

	log.Info("user data migration started",
		"source", record.Source,
		"destination", record.Destination,
		"files", filesBefore,
		"bytes", bytesBefore)

	result, err := migrator.MigrateFiles(ctx, reporter.Moved)

	record.EndTime = time.Now()
	if result != nil {
		record.Passes = result.Passes
		record.Conflicts = result.Conflicts
		record.BytesMoved = result.BytesMoved
	}
	if filesAfter, _, rerr := migrator.Remaining(); rerr == nil && filesAfter <= filesBefore {
		record.FilesMoved = filesBefore - filesAfter
	}

	switch {
	case err != nil:
		reporter.Error(err)
		record.Status = state.StatusFailed
		record.Error = err.Error()
		log.Error("user data migration failed", "error", err)
	case result.Completed:
		record.Status = state.StatusSuccess
	default:
		record.Status = state.StatusPartial
		if result.Errors != nil {
			reporter.Error(result.Errors)
			record.Error = result.Errors.Error()
		}
		log.Warn("user data migration left files behind", "remaining", filesBefore-record.FilesMoved)
	}

	s.save(record)
	return result, record, err
}

// MigrateFileImmediately makes sure the file at expected, a path in the
// destination, has been moved. A running user data migration is preempted.
func (s *MigrationService) MigrateFileImmediately(ctx context.Context, expected string) error {
	s.mu.Lock()
	migrator := s.current
	s.mu.Unlock()

	if migrator == nil {
		var err error
		migrator, err = userdata.NewFromPreferences(s.prefs, s.fs, s.config.Migration.AttemptRename)
		if err != nil {
			return err
		}
		if migrator == nil {
			return nil
		}
	}
	return migrator.MigrateFileImmediately(ctx, expected)
}

// Status reports the current migration state
func (s *MigrationService) Status() (*Status, error) {
	active, err := prefs.CollectionDirectory(s.prefs)
	if err != nil {
		return nil, err
	}
	migration, err := prefs.LoadMigrationState(s.prefs)
	if err != nil {
		return nil, err
	}

	status := &Status{
		ActiveCollection: active,
		Migration:        migration,
		Locked:           s.lock.IsLocked(),
	}
	if status.Locked {
		// the lock may be released in between
		status.Holder, _ = s.lock.GetHolder()
	}

	if migration.InProgress() {
		migrator, err := userdata.NewFromPreferences(s.prefs, s.fs, s.config.Migration.AttemptRename)
		if err != nil {
			logger.Get().Warn("migration directories unavailable", "error", err)
		} else if migrator != nil {
			status.RemainingFiles, status.RemainingBytes, err = migrator.Remaining()
			if err != nil {
				return nil, err
			}
		}
	}

	if status.LastEssential, err = s.history.GetLastSuccess(domain.PhaseEssential); err != nil {
		return nil, err
	}
	if status.LastUserData, err = s.history.GetLastSuccess(domain.PhaseUserData); err != nil {
		return nil, err
	}
	return status, nil
}

// History returns the most recent runs, of one phase or of both if phase is empty
func (s *MigrationService) History(phase domain.Phase, limit int) ([]state.RunRecord, error) {
	if limit <= 0 {
		limit = s.config.Migration.HistoryLimit
	}
	if phase == "" {
		return s.history.GetAllHistory(limit)
	}
	if !phase.IsValid() {
		return nil, fmt.Errorf("unknown phase %q", phase)
	}
	return s.history.GetHistory(phase, limit)
}

// Unlock forcibly removes the migration lock, e.g. after a crash on another host
func (s *MigrationService) Unlock() error {
	logger.Get().Warn("forcing release of migration lock", "path", s.lock.Path())
	return s.lock.ForceRelease()
}

func (s *MigrationService) acquire(record *state.RunRecord) error {
	if err := s.lock.Acquire(record.ID, record.Phase); err != nil {
		logger.Get().Error("failed to acquire migration lock", "phase", record.Phase, "error", err)
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	return nil
}

func (s *MigrationService) release(record *state.RunRecord) {
	if err := s.lock.Release(); err != nil {
		logger.Get().Error("failed to release migration lock", "run", record.ID, "error", err)
	}
}

func (s *MigrationService) setCurrent(m *userdata.Migrator) {
	s.mu.Lock()
	s.current = m
	s.mu.Unlock()
}

// save records a run. A history failure does not fail the migration.
func (s *MigrationService) save(record *state.RunRecord) {
	if _, err := s.history.SaveRun(*record); err != nil {
		logger.Get().Error("failed to record run", "run", record.ID, "error", err)
	}
}

// Close releases the preference store, open collections and the history database
func (s *MigrationService) Close() error {
	var errs []error
	if err := s.opener.CloseAll(); err != nil {
		errs = append(errs, err)
	}
	if err := s.prefs.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.history.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

var _ io.Closer = (*MigrationService)(nil)
