package operation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/Ning0612/relocator/internal/adapter"
	"github.com/Ning0612/relocator/internal/core/conflict"
	"github.com/Ning0612/relocator/internal/domain"
	"github.com/Ning0612/relocator/internal/logger"
)

// MoveConflictedFile moves a file which could not be migrated because its
// destination holds different content.
//
// The file goes to TopLevel/conflict/<Relative>. If that path is taken, even
// by an empty file, the names "<name> (1).<ext>" to "<name> (4).<ext>" are tried in order. When every
// candidate is taken the source file is left untouched.
type MoveConflictedFile struct {
	noRetry
	Source   domain.DiskFile
	TopLevel domain.Directory
	Relative domain.RelativeFilePath
}

// NewMoveConflictedFile builds the operation for source, which must be under topLevel
func NewMoveConflictedFile(source domain.DiskFile, topLevel domain.Directory) (MoveConflictedFile, error) {
	relative, err := domain.RelativePathFrom(topLevel, source.Path())
	if err != nil {
		return MoveConflictedFile{}, err
	}
	return MoveConflictedFile{Source: source, TopLevel: topLevel, Relative: relative}, nil
}

// Execute implements Operation
func (m MoveConflictedFile) Execute(ctx context.Context, mctx MigrationContext) ([]Operation, error) {
	fs := mctx.FileSystem()
	candidates := conflict.Destinations(m.TopLevel, m.Relative)

	sourceInfo, sourceExists, err := stat(fs, m.Source.Path())
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if !sourceExists {
		return completed(), nil
	}

	if err := fs.MkdirAll(filepath.Dir(candidates[0])); err != nil {
		return nil, fmt.Errorf("failed to create conflict directory: %w", err)
	}

	for _, candidate := range candidates {
		// an earlier conflict lives here, whatever its content
		taken, err := adapter.Exists(fs, candidate)
		if err != nil {
			return nil, err
		}
		if taken {
			logger.Get().Debug("conflict destination taken", "destination", candidate)
			continue
		}

		var op Operation = MoveFile{Source: m.Source, Destination: candidate}
		if sourceInfo.Type == domain.FileTypeSymlink {
			op = MoveSymlink{Link: m.Source.Path(), Destination: candidate}
		}

		next, err := op.Execute(ctx, mctx)
		if err == nil {
			logger.Get().Info("moved conflicted file", "source", m.Source.Path(), "destination", candidate)
			return next, nil
		}

		var fileConflict *domain.FileConflictError
		var dirConflict *domain.FileDirectoryConflictError
		if errors.As(err, &fileConflict) || errors.As(err, &dirConflict) {
			// created since the check above
			logger.Get().Debug("conflict destination taken", "destination", candidate)
			continue
		}
		return nil, err
	}

	return nil, &domain.FileConflictResolutionFailedError{
		Source:               m.Source,
		AttemptedDestination: candidates[len(candidates)-1],
	}
}
