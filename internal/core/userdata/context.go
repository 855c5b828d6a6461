package userdata

import (
	"errors"
	"sync"

	"github.com/Ning0612/relocator/internal/adapter"
	"github.com/Ning0612/relocator/internal/core/operation"
	"github.com/Ning0612/relocator/internal/domain"
	"github.com/Ning0612/relocator/internal/logger"
)

// MaxConsecutiveErrors is the number of errors in a row, without any file
// being moved, after which a run is abandoned
const MaxConsecutiveErrors = 10

// ProgressListener is called with the size of each migrated file
type ProgressListener func(bytes int64)

// Context is the tolerant MigrationContext of the bulk phase. Errors are
// handled or logged and the run continues, unless the error shows the run
// can't succeed.
type Context struct {
	executor      *operation.Executor
	fs            adapter.FileSystem
	source        domain.Directory
	attemptRename bool
	progress      ProgressListener

	mu          sync.Mutex
	logged      []error
	recent      []error
	consecutive int
	retried     map[string]struct{}
	conflicts   int
	transferred int64
	fatal       error
}

// NewContext creates a context for one pass over source
func NewContext(executor *operation.Executor, fs adapter.FileSystem, source domain.Directory, attemptRename bool, progress ProgressListener) *Context {
	return &Context{
		executor:      executor,
		fs:            fs,
		source:        source,
		attemptRename: attemptRename,
		progress:      progress,
		retried:       make(map[string]struct{}),
	}
}

// ReportError implements operation.MigrationContext. It always returns nil.
func (c *Context) ReportError(op operation.Operation, err error) error {
	var (
		fileConflict  *domain.FileConflictError
		dirConflict   *domain.FileDirectoryConflictError
		notEmpty      *domain.DirectoryNotEmptyError
		missing       *domain.MissingDirectoryError
		equivalent    *domain.EquivalentFileError
		conflictLimit *domain.FileConflictResolutionFailedError
	)

	switch {
	case errors.As(err, &fileConflict):
		c.moveToConflictDirectory(fileConflict.Source)
	case errors.As(err, &dirConflict):
		c.moveToConflictDirectory(dirConflict.Source)
	case errors.As(err, &notEmpty):
		// files may have been added, retry after everything else
		if retry := op.RetryOperations(); len(retry) > 0 && c.markRetried(notEmpty.Directory) {
			logger.Get().Debug("retrying directory", "directory", notEmpty.Directory.Path())
			c.executor.AppendAll(retry)
		} else {
			c.logAndContinue(err)
		}
	case errors.As(err, &missing), errors.As(err, &equivalent):
		c.fail(err)
	case errors.As(err, &conflictLimit):
		c.logAndContinue(err)
	default:
		c.logAndContinue(err)
	}
	return nil
}

// ReportProgress implements operation.MigrationContext
func (c *Context) ReportProgress(bytes int64) {
	c.mu.Lock()
	c.consecutive = 0
	c.transferred += bytes
	c.mu.Unlock()

	if c.progress != nil {
		c.progress(bytes)
	}
}

// AttemptRename implements operation.MigrationContext
func (c *Context) AttemptRename() bool {
	return c.attemptRename
}

// FileSystem implements operation.MigrationContext
func (c *Context) FileSystem() adapter.FileSystem {
	return c.fs
}

// Errors returns every error logged so far
func (c *Context) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.logged...)
}

// Fatal returns the error which terminated the run, if any
func (c *Context) Fatal() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}

// Transferred returns the bytes migrated so far
func (c *Context) Transferred() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transferred
}

// Conflicts returns the number of files sent to the conflict directory
func (c *Context) Conflicts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conflicts
}

// Successful reports whether the run finished without logging any error
func (c *Context) Successful() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.logged) == 0 && c.fatal == nil && !c.executor.Terminated()
}

func (c *Context) markRetried(dir domain.Directory) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.retried[dir.Path()]; ok {
		return false
	}
	c.retried[dir.Path()] = struct{}{}
	return true
}

// moveToConflictDirectory moves <path> to conflict/<path> under the source.
// Files there are never migrated again.
func (c *Context) moveToConflictDirectory(file domain.DiskFile) {
	op, err := operation.NewMoveConflictedFile(file, c.source)
	if err != nil {
		c.logAndContinue(err)
		return
	}

	c.mu.Lock()
	c.conflicts++
	c.mu.Unlock()

	logger.Get().Info("file conflict, moving to conflict directory", "file", file.Path())
	c.executor.Prepend(op)
}

// logAndContinue records err. The last MaxConsecutiveErrors errors are kept
// for the fatal error raised when no progress is made for that many errors.
func (c *Context) logAndContinue(err error) {
	c.mu.Lock()
	c.logged = append(c.logged, err)
	if len(c.recent) >= MaxConsecutiveErrors {
		c.recent = c.recent[1:]
	}
	c.recent = append(c.recent, err)
	c.consecutive++

	var fatal error
	if c.consecutive >= MaxConsecutiveErrors {
		fatal = domain.NewAggregateError("10 consecutive errors without progress", c.recent)
	}
	c.mu.Unlock()

	logger.Get().Warn("migration error, continuing", "error", err)
	if fatal != nil {
		c.fail(fatal)
	}
}

// fail terminates the run with err
func (c *Context) fail(err error) {
	c.mu.Lock()
	if c.fatal == nil {
		c.fatal = err
	}
	c.mu.Unlock()

	logger.Get().Error("migration terminated", "error", err)
	c.executor.Terminate()
}
