package operation

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Ning0612/relocator/internal/logger"
)

// Executor runs operations one at a time on the goroutine calling Execute.
//
// Two queues are kept: the regular queue and the preempted queue. Preempted
// operations run as soon as the current operation returns, before anything in
// the regular queue. Follow-ups of an operation go to the front of the queue
// the operation came from.
//
// Append, Prepend, Preempt and Terminate may be called from any goroutine.
type Executor struct {
	mu         sync.Mutex
	regular    []Operation
	preempted  []Operation
	terminated atomic.Bool

	// Intercept, if set, is called instead of op.Execute. It is a test hook
	// used to inject faults into a run.
	Intercept func(ctx context.Context, op Operation, mctx MigrationContext) ([]Operation, error)
}

// NewExecutor creates an executor with ops in its regular queue
func NewExecutor(ops ...Operation) *Executor {
	e := &Executor{}
	e.AppendAll(ops)
	return e
}

// Append adds op to the back of the regular queue
func (e *Executor) Append(op Operation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.regular = append(e.regular, op)
}

// AppendAll adds ops to the back of the regular queue, in order
func (e *Executor) AppendAll(ops []Operation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.regular = append(e.regular, ops...)
}

// Prepend adds op to the front of the regular queue
func (e *Executor) Prepend(op Operation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.regular = pushFront(e.regular, []Operation{op})
}

// Preempt schedules op to run immediately after the operation currently
// executing. Several preempted operations run in the order they were preempted.
func (e *Executor) Preempt(op Operation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.preempted = append(e.preempted, op)
}

// Terminate stops the executor once the current operation returns.
// No further operation is started, preempted or not.
func (e *Executor) Terminate() {
	e.terminated.Store(true)
}

// Terminated reports whether Terminate was called
func (e *Executor) Terminated() bool {
	return e.terminated.Load()
}

// TakePreempted removes and returns the operations still waiting in the
// preempted queue, typically after the executor was terminated
func (e *Executor) TakePreempted() []Operation {
	e.mu.Lock()
	defer e.mu.Unlock()
	ops := e.preempted
	e.preempted = nil
	return ops
}

// Len returns the number of queued operations
func (e *Executor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.regular) + len(e.preempted)
}

// Execute runs queued operations until both queues are empty or the executor
// is terminated. Errors are passed to mctx.ReportError; a non-nil result of
// ReportError aborts the run and is returned.
//
// Cancelling ctx terminates the executor; Execute then returns ctx.Err().
func (e *Executor) Execute(ctx context.Context, mctx MigrationContext) error {
	for {
		if err := e.drainPreempted(ctx, mctx); err != nil {
			return err
		}
		if e.stopped(ctx) {
			return ctx.Err()
		}

		op, ok := e.popRegular()
		if !ok {
			return nil
		}

		next, err := e.run(ctx, op, mctx)
		if err != nil {
			if abort := e.report(op, err, mctx); abort != nil {
				return abort
			}
			continue
		}

		e.mu.Lock()
		e.regular = pushFront(e.regular, next)
		e.mu.Unlock()
	}
}

// drainPreempted runs preempted operations until that queue is empty or the
// executor is terminated
func (e *Executor) drainPreempted(ctx context.Context, mctx MigrationContext) error {
	for !e.stopped(ctx) {
		op, ok := e.popPreempted()
		if !ok {
			return nil
		}

		logger.Get().Debug("executing preempted operation", "operation", Describe(op))
		next, err := e.run(ctx, op, mctx)
		if err != nil {
			if abort := e.report(op, err, mctx); abort != nil {
				return abort
			}
			continue
		}

		e.mu.Lock()
		e.preempted = pushFront(e.preempted, next)
		e.mu.Unlock()
	}
	return nil
}

// stopped reports whether the executor is terminated, terminating it if ctx is done
func (e *Executor) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		e.Terminate()
	}
	return e.Terminated()
}

func (e *Executor) run(ctx context.Context, op Operation, mctx MigrationContext) ([]Operation, error) {
	if e.Intercept != nil {
		return e.Intercept(ctx, op, mctx)
	}
	return op.Execute(ctx, mctx)
}

func (e *Executor) report(op Operation, err error, mctx MigrationContext) error {
	logger.Get().Warn("operation failed", "operation", Describe(op), "error", err)
	return mctx.ReportError(op, err)
}

func (e *Executor) popRegular() (Operation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.regular) == 0 {
		return nil, false
	}
	op := e.regular[0]
	e.regular[0] = nil
	e.regular = e.regular[1:]
	return op, true
}

func (e *Executor) popPreempted() (Operation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.preempted) == 0 {
		return nil, false
	}
	op := e.preempted[0]
	e.preempted[0] = nil
	e.preempted = e.preempted[1:]
	return op, true
}

// pushFront returns queue with ops inserted at the front, keeping their order
func pushFront(queue, ops []Operation) []Operation {
	if len(ops) == 0 {
		return queue
	}
	merged := make([]Operation, 0, len(ops)+len(queue))
	merged = append(merged, ops...)
	return append(merged, queue...)
}
