package operation

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/Ning0612/relocator/internal/domain"
	"github.com/Ning0612/relocator/internal/logger"
)

// MoveSymlink moves the symbolic link Link to Destination without following it.
// The target is kept as written, so a relative link resolves against its new
// parent. Dangling links are moved like any other.
//
// A destination which is already a link to the same target counts as moved.
// Any other destination is a conflict.
type MoveSymlink struct {
	noRetry
	Link        string
	Destination string
}

// Execute implements Operation
func (m MoveSymlink) Execute(ctx context.Context, mctx MigrationContext) ([]Operation, error) {
	fs := mctx.FileSystem()
	link, err := filepath.Abs(m.Link)
	if err != nil {
		return nil, err
	}
	destination, err := filepath.Abs(m.Destination)
	if err != nil {
		return nil, err
	}

	if link == destination {
		return nil, &domain.EquivalentFileError{Source: link, Destination: destination}
	}

	linkInfo, linkExists, err := stat(fs, link)
	if err != nil {
		return nil, fmt.Errorf("stat link: %w", err)
	}
	destinationInfo, destinationExists, err := stat(fs, destination)
	if err != nil {
		return nil, fmt.Errorf("stat destination: %w", err)
	}

	if !linkExists {
		if destinationExists {
			return completed(), nil
		}
		if err := checkParents(fs, link, destination); err != nil {
			return nil, err
		}
		mctx.ReportProgress(0)
		return completed(), nil
	}
	if linkInfo.Type != domain.FileTypeSymlink {
		// replaced by a file or directory since it was listed
		return []Operation{MoveFileOrDirectory{Source: link, Destination: destination}}, nil
	}

	target, err := fs.ReadLink(link)
	if err != nil {
		return nil, fmt.Errorf("failed to read link '%s': %w", link, err)
	}

	if destinationExists {
		return m.resolveExisting(mctx, link, target, destination, destinationInfo)
	}

	if err := checkParents(fs, "", destination); err != nil {
		return nil, err
	}

	if mctx.AttemptRename() {
		err := fs.Rename(link, destination)
		if err == nil {
			mctx.ReportProgress(linkInfo.Size)
			return completed(), nil
		}
		logger.Get().Debug("rename failed, recreating link",
			"link", link, "destination", destination, "error", err)
	}

	if err := fs.Symlink(target, destination); err != nil {
		return nil, fmt.Errorf("failed to create link '%s': %w", destination, err)
	}
	if err := fs.DeleteFile(link); err != nil {
		return nil, fmt.Errorf("failed to delete link '%s' after copy: %w", link, err)
	}
	mctx.ReportProgress(linkInfo.Size)
	return completed(), nil
}

func (m MoveSymlink) resolveExisting(mctx MigrationContext, link, target, destination string, info domain.FileInfo) ([]Operation, error) {
	fs := mctx.FileSystem()

	if info.Type == domain.FileTypeSymlink {
		existing, err := fs.ReadLink(destination)
		if err != nil {
			return nil, fmt.Errorf("failed to read link '%s': %w", destination, err)
		}
		if existing == target {
			// recreated by an earlier run which stopped before deleting the link
			if err := fs.DeleteFile(link); err != nil {
				return nil, fmt.Errorf("failed to delete link '%s': %w", link, err)
			}
			mctx.ReportProgress(0)
			return completed(), nil
		}
	}

	if info.IsDir() {
		return nil, &domain.FileDirectoryConflictError{
			Source:      domain.UnsafeDiskFile(link),
			Destination: domain.UnsafeDirectory(destination),
		}
	}
	return nil, &domain.FileConflictError{
		Source:      domain.UnsafeDiskFile(link),
		Destination: domain.UnsafeDiskFile(destination),
	}
}
