package operation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/Ning0612/relocator/internal/adapter"
	"github.com/Ning0612/relocator/internal/core/checksum"
	"github.com/Ning0612/relocator/internal/domain"
	"github.com/Ning0612/relocator/internal/logger"
)

// Labels used in MissingDirectoryError for MoveFile
const (
	LabelSourceParent      = "source - parent dir"
	LabelDestinationParent = "destination - parent dir"
)

var calculator = checksum.NewDefaultCalculator()

// MoveFile moves a single file to Destination, a file path.
//
// The move is safe to repeat: if the source is gone and the destination exists
// the file was already moved. If the destination exists with identical content
// the source is deleted. A destination with different, non-empty content is a
// conflict and neither file is touched.
type MoveFile struct {
	noRetry
	Source      domain.DiskFile
	Destination string
}

// Execute implements Operation
func (m MoveFile) Execute(ctx context.Context, mctx MigrationContext) ([]Operation, error) {
	fs := mctx.FileSystem()
	source := m.Source.Path()
	destination, err := filepath.Abs(m.Destination)
	if err != nil {
		return nil, err
	}

	if source == destination {
		return nil, &domain.EquivalentFileError{Source: source, Destination: destination}
	}

	sourceInfo, sourceExists, err := stat(fs, source)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	destinationInfo, destinationExists, err := stat(fs, destination)
	if err != nil {
		return nil, fmt.Errorf("stat destination: %w", err)
	}

	if destinationExists && destinationInfo.IsDir() {
		return nil, &domain.FileDirectoryConflictError{
			Source:      m.Source,
			Destination: domain.UnsafeDirectory(destination),
		}
	}

	if !sourceExists {
		if destinationExists {
			// moved by an earlier run
			return completed(), nil
		}
		if err := checkParents(fs, source, destination); err != nil {
			return nil, err
		}
		// both files are gone, nothing to move
		mctx.ReportProgress(0)
		return completed(), nil
	}

	size := sourceInfo.Size

	if !destinationExists {
		if err := checkParents(fs, "", destination); err != nil {
			return nil, err
		}

		if mctx.AttemptRename() {
			err := fs.Rename(source, destination)
			if err == nil {
				mctx.ReportProgress(size)
				return completed(), nil
			}
			logger.Get().Debug("rename failed, falling back to copy",
				"source", source, "destination", destination, "error", err)
		}

		if err := copyThenDelete(fs, source, destination); err != nil {
			return nil, err
		}
		mctx.ReportProgress(size)
		return completed(), nil
	}

	equal, err := calculator.FilesEqual(ctx, fs, source, destination)
	if err != nil {
		return nil, fmt.Errorf("compare '%s' with '%s': %w", source, destination, err)
	}
	if equal {
		// copied by an earlier run which stopped before deleting the source
		if err := fs.DeleteFile(source); err != nil {
			return nil, fmt.Errorf("failed to delete source '%s': %w", source, err)
		}
		mctx.ReportProgress(size)
		return completed(), nil
	}

	if destinationInfo.Size == 0 {
		logger.Get().Debug("overwriting empty destination", "destination", destination)
		if err := copyThenDelete(fs, source, destination); err != nil {
			return nil, err
		}
		mctx.ReportProgress(size)
		return completed(), nil
	}

	return nil, &domain.FileConflictError{
		Source:      m.Source,
		Destination: domain.UnsafeDiskFile(destination),
	}
}

// checkParents returns a MissingDirectoryError naming every missing parent.
// An empty path is not checked.
func checkParents(fs adapter.FileSystem, source, destination string) error {
	var missing []domain.MissingFile
	for _, p := range []struct{ label, path string }{
		{LabelSourceParent, source},
		{LabelDestinationParent, destination},
	} {
		if p.path == "" {
			continue
		}
		parent := filepath.Dir(p.path)
		info, exists, err := stat(fs, parent)
		if err != nil {
			return err
		}
		if !exists || !info.IsDir() {
			missing = append(missing, domain.MissingFile{Label: p.label, Path: parent})
		}
	}

	if len(missing) > 0 {
		return domain.NewMissingDirectoryError(missing...)
	}
	return nil
}

// copyThenDelete copies source over destination and deletes source once the
// copy is confirmed
func copyThenDelete(fs adapter.FileSystem, source, destination string) error {
	if err := fs.CopyFile(source, destination); err != nil {
		return fmt.Errorf("failed to copy file to '%s': %w", destination, err)
	}

	exists, err := adapter.Exists(fs, destination)
	if err != nil {
		return fmt.Errorf("failed to copy file to '%s': %w", destination, err)
	}
	if !exists {
		return fmt.Errorf("failed to copy file to '%s'", destination)
	}

	if err := fs.DeleteFile(source); err != nil {
		return fmt.Errorf("failed to delete source '%s' after copy: %w", source, err)
	}
	return nil
}

// DeleteEmptyDirectory deletes Directory if it has no children.
// A directory which no longer exists counts as deleted.
type DeleteEmptyDirectory struct {
	noRetry
	Directory domain.Directory
}

// Execute implements Operation
func (d DeleteEmptyDirectory) Execute(ctx context.Context, mctx MigrationContext) ([]Operation, error) {
	err := mctx.FileSystem().DeleteEmptyDirectory(d.Directory.Path())
	switch {
	case err == nil, errors.Is(err, domain.ErrNotFound):
		return completed(), nil
	case errors.Is(err, domain.ErrDirectoryNotEmpty):
		return nil, &domain.DirectoryNotEmptyError{Directory: d.Directory}
	default:
		return nil, fmt.Errorf("failed to delete directory '%s': %w", d.Directory, err)
	}
}

// MoveFileOrDirectory moves Source, whatever it is, to Destination
type MoveFileOrDirectory struct {
	noRetry
	Source      string
	Destination string
}

// Execute returns a MoveFile, a MoveDirectory or a MoveSymlink, or nothing if
// Source no longer exists. Links are moved as links, never followed.
func (m MoveFileOrDirectory) Execute(ctx context.Context, mctx MigrationContext) ([]Operation, error) {
	info, exists, err := stat(mctx.FileSystem(), m.Source)
	if err != nil {
		return nil, err
	}
	if !exists {
		return completed(), nil
	}

	if info.Type == domain.FileTypeSymlink {
		return []Operation{MoveSymlink{Link: m.Source, Destination: m.Destination}}, nil
	}

	if info.IsDir() {
		dir, err := domain.NewDirectory(m.Source)
		if domain.IsNotFound(err) {
			return completed(), nil
		}
		if err != nil {
			return nil, err
		}
		return []Operation{MoveDirectory{Source: dir, Destination: m.Destination}}, nil
	}

	file, err := domain.NewDiskFile(m.Source)
	if domain.IsNotFound(err) {
		return completed(), nil
	}
	if err != nil {
		return nil, err
	}
	return []Operation{MoveFile{Source: file, Destination: m.Destination}}, nil
}

// stat returns the info of path and whether it exists
func stat(fs adapter.FileSystem, path string) (domain.FileInfo, bool, error) {
	info, err := fs.Stat(path)
	if err == nil {
		return info, true, nil
	}
	if domain.IsNotFound(err) {
		return domain.FileInfo{}, false, nil
	}
	return domain.FileInfo{}, false, err
}
