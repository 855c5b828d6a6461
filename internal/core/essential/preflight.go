package essential

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Ning0612/relocator/internal/adapter"
	"github.com/Ning0612/relocator/internal/collection"
	"github.com/Ning0612/relocator/internal/domain"
	"github.com/Ning0612/relocator/internal/logger"
	"github.com/Ning0612/relocator/internal/prefs"
)

// SafetyMarginBytes is added to the essential footprint when checking free space
const SafetyMarginBytes = 10 * 1024 * 1024

// Config holds the collaborators of the essential phase
type Config struct {
	FileSystem  adapter.FileSystem
	Opener      collection.Opener
	Preferences prefs.Store

	// ScopedRoot, if set, is the storage area the data must move into.
	// The source must be outside it and the destination inside it.
	ScopedRoot string

	// FreeSpace returns the bytes available at a path. Defaults to FileSystem.FreeSpace.
	FreeSpace func(path string) (int64, error)

	// Wrap, if set, may replace the migrator before it runs
	Wrap func(*Migrator) Runner
}

// Runner runs one migration attempt
type Runner interface {
	Execute(ctx context.Context) error
}

// MigrateEssentialFiles checks the move from the active collection directory
// to destination is possible, then runs the migration, retrying once if the
// failure is retryable.
func MigrateEssentialFiles(ctx context.Context, cfg Config, destination string) error {
	sourcePath, err := prefs.CollectionDirectory(cfg.Preferences)
	if err != nil {
		return err
	}
	if sourcePath == "" {
		return fmt.Errorf("%w: no active collection", domain.ErrIllegalState)
	}
	source, err := domain.NewDirectory(sourcePath)
	if err != nil {
		return fmt.Errorf("active collection directory: %w", err)
	}

	if cfg.ScopedRoot != "" && isUnder(cfg.ScopedRoot, source.Path()) {
		return fmt.Errorf("%w: directory is already under scoped storage '%s'", domain.ErrIllegalState, source)
	}

	// creates the directory and ensures it's empty
	if err := cfg.FileSystem.MkdirAll(destination); err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}
	children, err := cfg.FileSystem.List(destination)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return fmt.Errorf("%w: target directory was not empty: '%s'", domain.ErrIllegalState, destination)
	}

	freeSpace := cfg.FreeSpace
	if freeSpace == nil {
		freeSpace = cfg.FileSystem.FreeSpace
	}
	available, err := freeSpace(destination)
	if err != nil {
		return fmt.Errorf("failed to determine free space: %w", err)
	}
	required, err := SpaceRequired(cfg.FileSystem, source)
	if err != nil {
		return err
	}
	if err := checkSpace(available, required+SafetyMarginBytes); err != nil {
		return err
	}

	destinationDir, err := domain.NewDirectory(destination)
	if err != nil {
		return err
	}
	if cfg.ScopedRoot != "" && !isUnder(cfg.ScopedRoot, destinationDir.Path()) {
		return fmt.Errorf("%w: destination folder was not under scoped storage '%s'", domain.ErrIllegalState, destinationDir)
	}

	migrator := NewMigrator(cfg.FileSystem, cfg.Opener, cfg.Preferences, source, destinationDir)
	var runner Runner = migrator
	if cfg.Wrap != nil {
		runner = cfg.Wrap(migrator)
	}

	return RetryOnce(func() error {
		return runner.Execute(ctx)
	})
}

func checkSpace(available, required int64) error {
	if required > available {
		return &domain.OutOfSpaceError{Available: available, Required: required}
	}
	logger.Get().Debug("appropriate space for operation", "required", required, "available", available)
	return nil
}

// RetryOnce runs fn, and runs it a second time if it failed with a retryable error
func RetryOnce(fn func() error) error {
	err := fn()
	if err == nil || !domain.IsRetryable(err) {
		return err
	}
	logger.Get().Warn("retrying after retryable failure", "error", err)
	return fn()
}

// isUnder reports whether path is root or inside it
func isUnder(root, path string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
