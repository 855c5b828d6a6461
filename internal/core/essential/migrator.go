// Package essential moves the files needed to open the collection to a new
// data directory and switches the application over to it.
//
// Only the collection and its companions are copied. Everything else stays in
// the old directory and is moved afterwards by the userdata package, which reads
// the migration state written here.
package essential

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ning0612/relocator/internal/adapter"
	"github.com/Ning0612/relocator/internal/collection"
	"github.com/Ning0612/relocator/internal/core/checksum"
	"github.com/Ning0612/relocator/internal/domain"
	"github.com/Ning0612/relocator/internal/logger"
	"github.com/Ning0612/relocator/internal/prefs"
)

// Migrator copies the essential files of Source into Destination
type Migrator struct {
	fs          adapter.FileSystem
	opener      collection.Opener
	store       prefs.Store
	calculator  *checksum.DefaultCalculator
	source      domain.Directory
	destination domain.Directory
}

// NewMigrator creates a migrator from source to destination
func NewMigrator(fs adapter.FileSystem, opener collection.Opener, store prefs.Store, source, destination domain.Directory) *Migrator {
	return &Migrator{
		fs:          fs,
		opener:      opener,
		store:       store,
		calculator:  checksum.NewDefaultCalculator(),
		source:      source,
		destination: destination,
	}
}

// Execute performs the migration. On success the active collection is the one
// in Destination and the migration state is set; on failure the preferences
// are left as they were.
func (m *Migrator) Execute(ctx context.Context) error {
	state, err := prefs.LoadMigrationState(m.store)
	if err != nil {
		return err
	}
	if state.InProgress() {
		return fmt.Errorf("%w: %w", domain.ErrIllegalState, domain.ErrMigrationInProgress)
	}

	if err := m.ensureEmpty(m.destination); err != nil {
		return err
	}
	if err := m.ensureActiveCollection(); err != nil {
		return err
	}

	files, err := listFiles(m.fs, m.source)
	if err != nil {
		return err
	}

	// the collection must be closed before it is checked and locked
	if err := m.opener.CloseAll(); err != nil {
		return fmt.Errorf("failed to close collection: %w", err)
	}

	if err := m.checkCollection(ctx, collection.Path(m.source.Path())); err != nil {
		return err
	}

	if err := m.copyLocked(ctx, files); err != nil {
		return err
	}

	if err := m.verifyCopies(ctx, files); err != nil {
		return err
	}

	if err := m.checkCollection(ctx, collection.Path(m.destination.Path())); err != nil {
		return err
	}

	return m.updatePreferences(ctx)
}

func (m *Migrator) ensureEmpty(dir domain.Directory) error {
	children, err := m.fs.List(dir.Path())
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return fmt.Errorf("%w: destination was non-empty '%s'", domain.ErrIllegalState, dir)
	}
	return nil
}

func (m *Migrator) ensureActiveCollection() error {
	current, err := prefs.CollectionDirectory(m.store)
	if err != nil {
		return err
	}
	if current == "" {
		return fmt.Errorf("%w: no active collection", domain.ErrIllegalState)
	}

	currentDir, err := domain.NewDirectory(current)
	if err != nil {
		return fmt.Errorf("active collection directory: %w", err)
	}
	if currentDir.Path() != m.source.Path() {
		return fmt.Errorf("%w: paths did not match: '%s' and '%s' (collection)", domain.ErrIllegalState, m.source, currentDir)
	}
	return nil
}

// checkCollection opens the collection at path and runs its basic check
func (m *Migrator) checkCollection(ctx context.Context, path string) error {
	col, err := m.opener.Open(ctx, path)
	if err != nil {
		return err
	}

	ok, checkErr := col.BasicCheck(ctx)
	closeErr := col.Close()

	if checkErr != nil {
		return checkErr
	}
	if !ok {
		return fmt.Errorf("%w: '%s'", domain.ErrCheckDatabase, path)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close collection '%s': %w", path, closeErr)
	}
	return nil
}

// copyLocked copies files while the collection is locked.
// The lock is released on every path out.
func (m *Migrator) copyLocked(ctx context.Context, files []essentialFile) error {
	m.opener.Lock()
	defer m.opener.Unlock()

	if err := m.ensureNotOpenable(ctx); err != nil {
		return err
	}

	for _, f := range files {
		logger.Get().Info("migrating essential file", "file", f.name)
		source := m.source.Join(f.name)
		destination := m.destination.Join(f.name)
		logger.Get().Debug("copying file", "source", source, "destination", destination)
		if err := m.fs.CopyFile(source, destination); err != nil {
			return fmt.Errorf("failed to copy '%s': %w", f.name, err)
		}
	}
	return nil
}

func (m *Migrator) ensureNotOpenable(ctx context.Context) error {
	col, err := m.opener.Open(ctx, collection.Path(m.source.Path()))
	if err != nil {
		logger.Get().Debug("collection is not openable while locked", "error", err)
		return nil
	}

	if closeErr := col.Close(); closeErr != nil {
		logger.Get().Warn("failed to close unexpectedly opened collection", "error", closeErr)
	}
	return &domain.RetryableError{Err: fmt.Errorf("%w: collection not locked correctly", domain.ErrIllegalState)}
}

// verifyCopies checks the copied files are byte identical to their source
func (m *Migrator) verifyCopies(ctx context.Context, files []essentialFile) error {
	for _, f := range files {
		equal, err := m.calculator.FilesEqual(ctx, m.fs, m.source.Join(f.name), m.destination.Join(f.name))
		if err == nil && !equal {
			err = fmt.Errorf("essential file '%s' was modified during migration", f.name)
		}
		if err == nil {
			continue
		}
		if f.name == NoMediaFileName {
			// the marker carries no data
			logger.Get().Warn("marker file differs after copy", "file", f.name, "error", err)
			continue
		}
		return err
	}
	return nil
}

// updatePreferences switches the active collection to the destination and
// records the migration. If the collection can't be opened there, the
// previous values are restored.
func (m *Migrator) updatePreferences(ctx context.Context) error {
	keys := []string{prefs.KeyMigrationSource, prefs.KeyMigrationDestination, prefs.KeyCollectionPath}
	previous := make(map[string]string, len(keys))
	for _, key := range keys {
		value, err := m.store.GetString(key, "")
		if err != nil {
			return err
		}
		previous[key] = value
	}

	err := m.store.SetStrings(map[string]string{
		prefs.KeyMigrationSource:      m.source.Path(),
		prefs.KeyMigrationDestination: m.destination.Path(),
		prefs.KeyCollectionPath:       m.destination.Path(),
	})
	if err != nil {
		return fmt.Errorf("failed to update preferences: %w", err)
	}

	openErr := m.openMigrated(ctx)
	if openErr == nil {
		return nil
	}

	logger.Get().Warn("error opening new collection, restoring old values", "error", openErr)
	if err := m.store.SetStrings(previous); err != nil {
		return errors.Join(openErr, fmt.Errorf("failed to restore preferences: %w", err))
	}
	return openErr
}

func (m *Migrator) openMigrated(ctx context.Context) error {
	dir, err := prefs.CollectionDirectory(m.store)
	if err != nil {
		return err
	}
	col, err := m.opener.Open(ctx, collection.Path(dir))
	if err != nil {
		return fmt.Errorf("collection could not be opened: %w", err)
	}
	return col.Close()
}
