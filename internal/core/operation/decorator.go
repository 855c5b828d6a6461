package operation

import (
	"context"
	"sync"
)

// SingleRetry executes Standard. If Standard fails, the context may substitute
// Retry; any retry operations of Standard are ignored.
type SingleRetry struct {
	Standard Operation
	Retry    Operation
}

// Execute runs the standard operation
func (s SingleRetry) Execute(ctx context.Context, mctx MigrationContext) ([]Operation, error) {
	return s.Standard.Execute(ctx, mctx)
}

// RetryOperations returns the single retry operation
func (s SingleRetry) RetryOperations() []Operation {
	return []Operation{s.Retry}
}

func (SingleRetry) operation() {}

// Awaitable wraps an operation so another goroutine can block until it has executed
type Awaitable struct {
	op   Operation
	done chan struct{}
	once sync.Once
	err  error
}

// NewAwaitable wraps op
func NewAwaitable(op Operation) *Awaitable {
	return &Awaitable{op: op, done: make(chan struct{})}
}

// Execute runs the wrapped operation and releases every waiter, even on failure
func (a *Awaitable) Execute(ctx context.Context, mctx MigrationContext) ([]Operation, error) {
	var (
		next []Operation
		err  error
	)
	defer a.once.Do(func() {
		a.err = err
		close(a.done)
	})

	next, err = a.op.Execute(ctx, mctx)
	return next, err
}

// RetryOperations returns the retry operations of the wrapped operation
func (a *Awaitable) RetryOperations() []Operation {
	return a.op.RetryOperations()
}

func (*Awaitable) operation() {}

// Wait blocks until the wrapped operation executed or ctx is done.
// Returns the error of the wrapped operation.
func (a *Awaitable) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed once the wrapped operation executed
func (a *Awaitable) Done() <-chan struct{} {
	return a.done
}
