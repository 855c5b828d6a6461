package adapter

import (
	"io"

	"github.com/Ning0612/relocator/internal/domain"
)

// FileSystem defines the filesystem operations the migration engine relies on.
// All paths are absolute. Implementations return domain-level errors
// (domain.ErrNotFound, domain.ErrNotDirectory, ...) for consistent handling.
//
// Calls are synchronous and are never interrupted part way: a copy either
// completes or leaves the destination untouched.
type FileSystem interface {
	// List returns the immediate children of a directory
	// Returns domain.ErrNotFound if path doesn't exist
	// Returns domain.ErrNotDirectory if path is a file
	List(path string) ([]domain.FileInfo, error)

	// Stat returns metadata for a single path without following symlinks
	// Returns domain.ErrNotFound if path doesn't exist
	Stat(path string) (domain.FileInfo, error)

	// Open opens a file for reading
	// Caller is responsible for closing the reader
	Open(path string) (io.ReadCloser, error)

	// CopyFile copies src to dst, replacing dst if it exists.
	// The content is written to a temporary sibling first and renamed into place.
	// The parent directory of dst must exist.
	CopyFile(src, dst string) error

	// Rename atomically moves src to dst
	Rename(src, dst string) error

	// DeleteFile removes a regular file
	DeleteFile(path string) error

	// DeleteEmptyDirectory removes a directory which has no children
	// Returns domain.ErrDirectoryNotEmpty if the directory has children
	DeleteEmptyDirectory(path string) error

	// ReadLink returns the target of a symbolic link
	ReadLink(path string) (string, error)

	// Symlink creates path as a symbolic link to target
	// Returns domain.ErrAlreadyExists if path exists
	Symlink(target, path string) error

	// MkdirAll creates a directory and any necessary parents
	// No error if directory already exists
	MkdirAll(path string) error

	// FreeSpace returns the number of bytes available to the current user
	// on the volume holding path
	FreeSpace(path string) (int64, error)
}

// Exists checks if a path exists, mapping domain.ErrNotFound to false
func Exists(fs FileSystem, path string) (bool, error) {
	_, err := fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if domain.IsNotFound(err) {
		return false, nil
	}
	return false, err
}
