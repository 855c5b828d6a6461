package operation

import (
	"context"
	"fmt"

	"github.com/Ning0612/relocator/internal/domain"
)

// MoveDirectory moves Source and everything below it to Destination.
//
// Execution creates the destination directory and returns the content move
// followed by the deletion of the emptied source. If the deletion fails because
// new files appeared, the whole MoveDirectory may be retried once.
type MoveDirectory struct {
	noRetry
	Source      domain.Directory
	Destination string
}

// Execute implements Operation
func (m MoveDirectory) Execute(ctx context.Context, mctx MigrationContext) ([]Operation, error) {
	fs := mctx.FileSystem()

	_, exists, err := stat(fs, m.Source.Path())
	if err != nil {
		return nil, err
	}
	if !exists {
		return completed(), nil
	}

	if err := fs.MkdirAll(m.Destination); err != nil {
		return nil, fmt.Errorf("failed to create destination directory '%s': %w", m.Destination, err)
	}

	return []Operation{
		MoveDirectoryContent{Source: m.Source, Destination: domain.UnsafeDirectory(m.Destination)},
		SingleRetry{
			Standard: DeleteEmptyDirectory{Directory: m.Source},
			Retry:    m,
		},
	}, nil
}

// MoveDirectoryContent moves every child of Source into Destination.
//
// The operation lists Source, returns one MoveFileOrDirectory per child and
// then itself, so files added while the batch runs are picked up by the next
// listing. Children handed out by an earlier listing are not handed out again:
// a child which is still present failed to move and was already reported.
// It stops once a listing has nothing new.
type MoveDirectoryContent struct {
	noRetry
	Source      domain.Directory
	Destination domain.Directory

	dispatched map[string]struct{}
}

// Execute implements Operation
func (m MoveDirectoryContent) Execute(ctx context.Context, mctx MigrationContext) ([]Operation, error) {
	children, err := mctx.FileSystem().List(m.Source.Path())
	if domain.IsNotFound(err) {
		return completed(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list '%s': %w", m.Source, err)
	}

	dispatched := make(map[string]struct{}, len(m.dispatched)+len(children))
	for name := range m.dispatched {
		dispatched[name] = struct{}{}
	}

	ops := make([]Operation, 0, len(children)+1)
	for _, child := range children {
		if _, ok := m.dispatched[child.Name]; ok {
			continue
		}
		dispatched[child.Name] = struct{}{}
		ops = append(ops, MoveFileOrDirectory{
			Source:      child.Path,
			Destination: m.Destination.Join(child.Name),
		})
	}
	if len(ops) == 0 {
		return completed(), nil
	}

	return append(ops, MoveDirectoryContent{
		Source:      m.Source,
		Destination: m.Destination,
		dispatched:  dispatched,
	}), nil
}
