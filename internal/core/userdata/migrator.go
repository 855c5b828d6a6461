// Package userdata moves everything left in the old data directory once the
// essential files were migrated. The move runs in the background while the
// application keeps working from the new directory.
package userdata

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Ning0612/relocator/internal/adapter"
	"github.com/Ning0612/relocator/internal/core/conflict"
	"github.com/Ning0612/relocator/internal/core/essential"
	"github.com/Ning0612/relocator/internal/core/operation"
	"github.com/Ning0612/relocator/internal/domain"
	"github.com/Ning0612/relocator/internal/logger"
	"github.com/Ning0612/relocator/internal/prefs"
)

// MaxExternalRetries is the number of extra passes over the source after a
// pass which logged errors
const MaxExternalRetries = 2

// Labels used in MissingDirectoryError by NewFromPreferences
const (
	LabelSource      = "source"
	LabelDestination = "destination"
)

// top-level entries moved first, lowest value first
var priority = map[string]int{
	"card.html": -3,
	"fonts":     -2,
	"backups":   -1,
}

// Result summarizes a call to MigrateFiles
type Result struct {
	// Success is true if no fatal error stopped the migration
	Success bool

	// Errors holds the errors logged by the last pass, nil if there were none
	Errors *domain.AggregateError

	// BytesMoved over all passes
	BytesMoved int64

	// Passes is the number of passes over the source
	Passes int

	// Conflicts is the number of files moved to the conflict directory
	Conflicts int

	// Completed is true once nothing but essential files is left in the source
	// and the migration state was cleared
	Completed bool
}

// Migrator moves the user data from Source to Destination
type Migrator struct {
	fs            adapter.FileSystem
	store         prefs.Store
	source        domain.Directory
	destination   domain.Directory
	attemptRename bool

	mu       sync.Mutex
	executor *operation.Executor
	running  bool
}

// New creates a migrator. store is updated when the migration completes.
func New(fs adapter.FileSystem, store prefs.Store, source, destination domain.Directory, attemptRename bool) *Migrator {
	return &Migrator{
		fs:            fs,
		store:         store,
		source:        source,
		destination:   destination,
		attemptRename: attemptRename,
	}
}

// NewFromPreferences creates a migrator for the migration recorded in store.
// Returns nil, nil if no migration is in progress.
func NewFromPreferences(store prefs.Store, fs adapter.FileSystem, attemptRename bool) (*Migrator, error) {
	state, err := prefs.LoadMigrationState(store)
	if err != nil {
		return nil, err
	}
	if !state.InProgress() {
		return nil, nil
	}

	var missing []domain.MissingFile
	source, err := domain.NewDirectory(state.Source)
	if err != nil {
		missing = append(missing, domain.MissingFile{Label: LabelSource, Path: state.Source})
	}
	destination, err := domain.NewDirectory(state.Destination)
	if err != nil {
		missing = append(missing, domain.MissingFile{Label: LabelDestination, Path: state.Destination})
	}
	if len(missing) > 0 {
		return nil, domain.NewMissingDirectoryError(missing...)
	}

	return New(fs, store, source, destination, attemptRename), nil
}

// Source returns the directory being emptied
func (m *Migrator) Source() domain.Directory { return m.source }

// Destination returns the directory receiving the files
func (m *Migrator) Destination() domain.Directory { return m.destination }

// MigrateFiles moves every top-level entry of the source, except the
// essential files and the conflict directory, to the destination.
//
// A pass which logged errors is followed by up to MaxExternalRetries further
// passes. The returned error is non-nil only if the migration was stopped by
// a fatal error or ctx.
func (m *Migrator) MigrateFiles(ctx context.Context, progress ProgressListener) (*Result, error) {
	result := &Result{}

	for pass := 0; pass <= MaxExternalRetries; pass++ {
		if pass > 0 {
			logger.Get().Info("retrying user data migration", "pass", pass+1)
		}

		mctx, err := m.runPass(ctx, progress)
		result.Passes++
		if mctx != nil {
			result.BytesMoved += mctx.Transferred()
			result.Conflicts += mctx.Conflicts()
		}
		if err != nil {
			return result, err
		}
		if fatal := mctx.Fatal(); fatal != nil {
			return result, fatal
		}

		if mctx.Successful() {
			result.Errors = nil
			break
		}
		result.Errors = domain.NewAggregateError("errors during user data migration", mctx.Errors())
	}

	result.Success = true
	completed, err := m.completeIfEmpty()
	if err != nil {
		return result, err
	}
	result.Completed = completed

	logger.Get().Info("user data migration finished",
		"passes", result.Passes,
		"bytes", result.BytesMoved,
		"conflicts", result.Conflicts,
		"completed", result.Completed)
	return result, nil
}

// runPass lists the source and moves every entry found
func (m *Migrator) runPass(ctx context.Context, progress ProgressListener) (*Context, error) {
	ops, err := m.topLevelOperations()
	if err != nil {
		return nil, err
	}

	executor := operation.NewExecutor(ops...)
	mctx := NewContext(executor, m.fs, m.source, m.attemptRename, progress)

	m.mu.Lock()
	m.executor = executor
	m.running = true
	m.mu.Unlock()

	err = executor.Execute(ctx, mctx)

	m.mu.Lock()
	m.running = false
	m.executor = nil
	m.mu.Unlock()

	// a file requested while the run was stopping must still be moved
	m.runLeftovers(ctx, executor.TakePreempted())

	return mctx, err
}

func (m *Migrator) runLeftovers(ctx context.Context, ops []operation.Operation) {
	ctx = context.WithoutCancel(ctx)
	for _, op := range ops {
		strict := operation.NewStrictContext(m.fs, m.attemptRename, nil)
		if err := operation.NewExecutor(op).Execute(ctx, strict); err != nil {
			logger.Get().Warn("preempted operation failed", "operation", operation.Describe(op), "error", err)
		}
	}
}

// topLevelOperations returns a MoveFileOrDirectory for each entry of the
// source to migrate, in migration order
func (m *Migrator) topLevelOperations() ([]operation.Operation, error) {
	entries, err := m.migratableEntries()
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return priority[entries[i].Name] < priority[entries[j].Name]
	})

	ops := make([]operation.Operation, 0, len(entries))
	for _, entry := range entries {
		ops = append(ops, operation.MoveFileOrDirectory{
			Source:      entry.Path,
			Destination: m.destination.Join(entry.Name),
		})
	}
	return ops, nil
}

func (m *Migrator) migratableEntries() ([]domain.FileInfo, error) {
	children, err := m.fs.List(m.source.Path())
	if err != nil {
		return nil, fmt.Errorf("failed to list source: %w", err)
	}

	entries := children[:0]
	for _, child := range children {
		if skipped(child) {
			continue
		}
		entries = append(entries, child)
	}
	return entries, nil
}

// skipped reports whether a top-level entry of the source stays where it is
func skipped(entry domain.FileInfo) bool {
	switch {
	case entry.IsFile():
		return essential.IsEssentialFileName(entry.Name)
	case entry.IsDir():
		return entry.Name == conflict.DirectoryName
	}
	return false
}

// Remaining counts the files still to be migrated and their total size
func (m *Migrator) Remaining() (files int, bytes int64, err error) {
	entries, err := m.migratableEntries()
	if err != nil {
		return 0, 0, err
	}

	var walk func(entry domain.FileInfo) error
	walk = func(entry domain.FileInfo) error {
		if !entry.IsDir() {
			files++
			bytes += entry.Size
			return nil
		}
		children, err := m.fs.List(entry.Path)
		if err != nil {
			if domain.IsNotFound(err) {
				return nil
			}
			return err
		}
		for _, child := range children {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}

	for _, entry := range entries {
		if err := walk(entry); err != nil {
			return 0, 0, err
		}
	}
	return files, bytes, nil
}

// completeIfEmpty clears the migration state once nothing is left to move.
// The source directory and its essential files are kept.
func (m *Migrator) completeIfEmpty() (bool, error) {
	remaining, err := m.migratableEntries()
	if err != nil {
		return false, err
	}
	if len(remaining) > 0 {
		logger.Get().Info("files remain in source", "count", len(remaining))
		return false, nil
	}

	if err := prefs.ClearMigrationState(m.store); err != nil {
		return false, fmt.Errorf("failed to clear migration state: %w", err)
	}
	logger.Get().Info("user data migration complete", "source", m.source.Path())
	return true, nil
}

// MigrateFileImmediately moves the file which will live at expected, a path
// under the destination, and returns once it is there. If a migration is
// running the move is preempted into it, otherwise it runs on the calling
// goroutine.
//
// Returns nil if the file is already at expected or has no source counterpart.
func (m *Migrator) MigrateFileImmediately(ctx context.Context, expected string) error {
	expected, err := filepath.Abs(expected)
	if err != nil {
		return err
	}

	exists, err := adapter.Exists(m.fs, expected)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	relative, err := domain.RelativePathFrom(m.destination, expected)
	if err != nil {
		return fmt.Errorf("'%s' is not under the destination: %w", expected, err)
	}

	source, err := domain.NewDiskFile(relative.Resolve(m.source))
	if err != nil {
		if domain.IsNotFound(err) || errors.Is(err, domain.ErrNotFile) {
			logger.Get().Debug("no file to migrate", "path", expected)
			return nil
		}
		return err
	}

	// the parent may not have been migrated yet
	if err := m.fs.MkdirAll(filepath.Dir(expected)); err != nil {
		return err
	}

	op := operation.NewAwaitable(operation.MoveFile{Source: source, Destination: expected})

	m.mu.Lock()
	if m.running {
		m.executor.Preempt(op)
		m.mu.Unlock()
		logger.Get().Debug("preempted file migration", "path", expected)
		return op.Wait(ctx)
	}
	m.mu.Unlock()

	strict := operation.NewStrictContext(m.fs, m.attemptRename, nil)
	if err := operation.NewExecutor(op).Execute(ctx, strict); err != nil {
		return err
	}
	return op.Wait(ctx)
}
