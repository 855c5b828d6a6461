package operation

import (
	"sync/atomic"

	"github.com/Ning0612/relocator/internal/adapter"
)

// StrictContext aborts a run on the first reported error.
// Used where partial success is unacceptable.
type StrictContext struct {
	fs            adapter.FileSystem
	attemptRename bool
	progress      func(bytes int64)
	transferred   atomic.Int64
}

// NewStrictContext creates a strict context over fs.
// progress may be nil.
func NewStrictContext(fs adapter.FileSystem, attemptRename bool, progress func(bytes int64)) *StrictContext {
	return &StrictContext{
		fs:            fs,
		attemptRename: attemptRename,
		progress:      progress,
	}
}

// ReportError returns err, aborting the run
func (c *StrictContext) ReportError(op Operation, err error) error {
	return err
}

// ReportProgress accumulates transferred bytes
func (c *StrictContext) ReportProgress(bytes int64) {
	c.transferred.Add(bytes)
	if c.progress != nil {
		c.progress(bytes)
	}
}

// AttemptRename implements MigrationContext
func (c *StrictContext) AttemptRename() bool {
	return c.attemptRename
}

// FileSystem implements MigrationContext
func (c *StrictContext) FileSystem() adapter.FileSystem {
	return c.fs
}

// Transferred returns the bytes reported so far
func (c *StrictContext) Transferred() int64 {
	return c.transferred.Load()
}
