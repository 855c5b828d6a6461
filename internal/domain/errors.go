package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Filesystem errors - 檔案系統層錯誤
var (
	// ErrNotFound indicates the requested path does not exist
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates the path already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrPermissionDenied indicates insufficient permissions
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotDirectory indicates expected a directory but got a file
	ErrNotDirectory = errors.New("not a directory")

	// ErrNotFile indicates expected a regular file but got something else
	ErrNotFile = errors.New("not a file")

	// ErrDirectoryNotEmpty indicates a directory could not be removed as it still has children
	ErrDirectoryNotEmpty = errors.New("directory not empty")

	// ErrNotUnderBase indicates a path could not be expressed relative to a base directory
	ErrNotUnderBase = errors.New("path is not under base directory")
)

// Migration errors - 遷移流程錯誤
var (
	// ErrIllegalState indicates a precondition of the migration was violated
	ErrIllegalState = errors.New("illegal state")

	// ErrMigrationInProgress indicates another migration already owns the data directory
	ErrMigrationInProgress = errors.New("migration is already in progress")

	// ErrCheckDatabase indicates the collection failed its basic check and
	// the user must repair it before migrating
	ErrCheckDatabase = errors.New("collection failed basic check: check database required")

	// ErrCollectionLocked indicates the collection was opened while locked
	ErrCollectionLocked = errors.New("collection is locked")
)

// Config errors - 設定檔錯誤
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed
	ErrConfigInvalid = errors.New("invalid config")
)

// MissingFile names a file or directory which should exist, but did not
type MissingFile struct {
	// Label identifies the role of the path, e.g. "source - parent dir"
	Label string
	Path  string
}

func (m MissingFile) String() string {
	return fmt.Sprintf("%s: '%s'", m.Label, m.Path)
}

// MissingDirectoryError reports one or more required directories which were absent
type MissingDirectoryError struct {
	Directories []MissingFile
}

// NewMissingDirectoryError builds a MissingDirectoryError. At least one directory is required.
func NewMissingDirectoryError(directories ...MissingFile) *MissingDirectoryError {
	if len(directories) == 0 {
		panic("domain: MissingDirectoryError requires at least one directory")
	}
	return &MissingDirectoryError{Directories: directories}
}

func (e *MissingDirectoryError) Error() string {
	parts := make([]string, 0, len(e.Directories))
	for _, d := range e.Directories {
		parts = append(parts, d.String())
	}
	return fmt.Sprintf("directories [%s] are missing", strings.Join(parts, ", "))
}

// FileConflictError reports a destination file which exists with different content
type FileConflictError struct {
	Source      DiskFile
	Destination DiskFile
}

func (e *FileConflictError) Error() string {
	return fmt.Sprintf("file %s can not be copied to %s, destination exists and differs", e.Source, e.Destination)
}

// FileDirectoryConflictError reports a file whose destination is a directory
type FileDirectoryConflictError struct {
	Source      DiskFile
	Destination Directory
}

func (e *FileDirectoryConflictError) Error() string {
	return fmt.Sprintf("file %s can not be copied to %s, as destination is a directory", e.Source, e.Destination)
}

// EquivalentFileError reports a move whose source and destination are the same path
type EquivalentFileError struct {
	Source      string
	Destination string
}

func (e *EquivalentFileError) Error() string {
	return fmt.Sprintf("source and destination path are the same: '%s'", e.Source)
}

// DirectoryNotEmptyError reports a directory which could not be deleted as it still had children
type DirectoryNotEmptyError struct {
	Directory Directory
}

func (e *DirectoryNotEmptyError) Error() string {
	return fmt.Sprintf("directory was not empty: %s", e.Directory)
}

// FileConflictResolutionFailedError reports that every candidate name under the
// conflict directory was already taken
type FileConflictResolutionFailedError struct {
	Source               DiskFile
	AttemptedDestination string
}

func (e *FileConflictResolutionFailedError) Error() string {
	return fmt.Sprintf("failed to move %s to %s", e.Source, e.AttemptedDestination)
}

// OutOfSpaceError reports that the destination lacks free space for the essential files
type OutOfSpaceError struct {
	Available int64
	Required  int64
}

func (e *OutOfSpaceError) Error() string {
	return fmt.Sprintf("more free space is required. Available: %d. Required: %d", e.Available, e.Required)
}

// MissingEssentialFileError reports an essential file which did not exist
type MissingEssentialFileError struct {
	File string
}

func (e *MissingEssentialFileError) Error() string {
	return fmt.Sprintf("missing essential file: %s", e.File)
}

// RetryableError marks a failure which may succeed if the operation is run again
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is, or wraps, a RetryableError
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// AggregateError collects every error reported during one migration run
type AggregateError struct {
	Message string
	Errors  []error
}

// NewAggregateError copies errs into a new AggregateError
func NewAggregateError(message string, errs []error) *AggregateError {
	copied := make([]error, len(errs))
	copy(copied, errs)
	return &AggregateError{Message: message, Errors: copied}
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("%s (%d errors): %s", e.Message, len(e.Errors), strings.Join(parts, "; "))
}

// Unwrap allows errors.Is / errors.As to inspect every collected error
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// IsNotFound reports whether err is, or wraps, ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
