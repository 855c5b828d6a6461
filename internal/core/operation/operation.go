// Package operation implements the unit of migration work and the executor
// which drives a queue of operations to completion.
//
// An Operation performs as little work as possible (list one directory, move
// one file) and returns the operations needed to finish the job. The executor
// pushes those follow-ups to the front of its queue, so the operation tree is
// expanded depth first.
package operation

import (
	"context"
	"fmt"

	"github.com/Ning0612/relocator/internal/adapter"
)

// Operation is a unit of migration work.
//
// Executing an operation which was already completed must be a safe no-op:
// interrupted runs are resumed by executing the same operations again.
type Operation interface {
	// Execute performs the work and returns the follow-up operations
	Execute(ctx context.Context, mctx MigrationContext) ([]Operation, error)

	// RetryOperations returns the operations to substitute if Execute failed
	RetryOperations() []Operation

	// operation seals the interface to the variants of this package
	operation()
}

// MigrationContext is the execution environment shared by every operation of a run
type MigrationContext interface {
	// ReportError is called by the executor when an operation fails.
	// A non-nil return aborts the run with that error.
	ReportError(op Operation, err error) error

	// ReportProgress is called once for each migrated file with its size in bytes
	ReportProgress(bytes int64)

	// AttemptRename reports whether files should be renamed before falling back to copy
	AttemptRename() bool

	// FileSystem returns the filesystem operations are executed against
	FileSystem() adapter.FileSystem
}

// noRetry is embedded by variants without retry operations
type noRetry struct{}

func (noRetry) RetryOperations() []Operation { return nil }

func (noRetry) operation() {}

// completed is returned by operations which have no follow-up
func completed() []Operation {
	return nil
}

// Describe returns a human readable description of op for logging
func Describe(op Operation) string {
	switch o := op.(type) {
	case DeleteEmptyDirectory:
		return fmt.Sprintf("delete empty directory '%s'", o.Directory)
	case MoveFile:
		return fmt.Sprintf("move file '%s' to '%s'", o.Source, o.Destination)
	case MoveDirectory:
		return fmt.Sprintf("move directory '%s' to '%s'", o.Source, o.Destination)
	case MoveDirectoryContent:
		return fmt.Sprintf("move content of '%s' to '%s'", o.Source, o.Destination)
	case MoveConflictedFile:
		return fmt.Sprintf("move conflicted file '%s' to '%s' under '%s'", o.Source, o.Relative, o.TopLevel)
	case MoveSymlink:
		return fmt.Sprintf("move link '%s' to '%s'", o.Link, o.Destination)
	case MoveFileOrDirectory:
		return fmt.Sprintf("move '%s' to '%s'", o.Source, o.Destination)
	case SingleRetry:
		return fmt.Sprintf("%s (retry: %s)", Describe(o.Standard), Describe(o.Retry))
	case *Awaitable:
		return fmt.Sprintf("awaitable %s", Describe(o.op))
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("%T", op)
	}
}
