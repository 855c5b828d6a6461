package operation

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ning0612/relocator/internal/adapter"
	"github.com/Ning0612/relocator/internal/adapter/local"
	"github.com/Ning0612/relocator/internal/domain"
)

// recordingContext records errors and progress. Strict contexts return the error.
type recordingContext struct {
	fs       adapter.FileSystem
	rename   bool
	strict   bool
	mu       sync.Mutex
	errors   []error
	progress []int64
}

func newRecordingContext(fs adapter.FileSystem, rename bool) *recordingContext {
	if fs == nil {
		fs = local.New()
	}
	return &recordingContext{fs: fs, rename: rename}
}

func (c *recordingContext) ReportError(op Operation, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
	if c.strict {
		return err
	}
	return nil
}

func (c *recordingContext) ReportProgress(bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = append(c.progress, bytes)
}

func (c *recordingContext) AttemptRename() bool            { return c.rename }
func (c *recordingContext) FileSystem() adapter.FileSystem { return c.fs }

// faultFS wraps the local filesystem and fails selected calls
type faultFS struct {
	adapter.FileSystem
	copyErr   func(src, dst string) error
	deleteErr func(path string) error
	copyNoop  bool
}

func newFaultFS() *faultFS {
	return &faultFS{FileSystem: local.New()}
}

func (f *faultFS) CopyFile(src, dst string) error {
	if f.copyErr != nil {
		if err := f.copyErr(src, dst); err != nil {
			return err
		}
	}
	if f.copyNoop {
		return nil
	}
	return f.FileSystem.CopyFile(src, dst)
}

func (f *faultFS) Rename(src, dst string) error {
	if f.copyErr != nil || f.copyNoop {
		return os.ErrPermission
	}
	return f.FileSystem.Rename(src, dst)
}

func (f *faultFS) DeleteFile(path string) error {
	if f.deleteErr != nil {
		if err := f.deleteErr(path); err != nil {
			return err
		}
	}
	return f.FileSystem.DeleteFile(path)
}

// step is an operation used to observe executor ordering
type step struct {
	noRetry
	name string
	log  *orderLog
	run  func()
	next []Operation
	err  error
}

func (s step) Execute(ctx context.Context, mctx MigrationContext) ([]Operation, error) {
	s.log.add(s.name)
	if s.run != nil {
		s.run()
	}
	return s.next, s.err
}

type orderLog struct {
	mu    sync.Mutex
	names []string
}

func (l *orderLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func (l *orderLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

func writeFile(t *testing.T, path, content string) domain.DiskFile {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	file, err := domain.NewDiskFile(path)
	require.NoError(t, err)
	return file
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func mkdir(t *testing.T, path string) domain.Directory {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0755))
	dir, err := domain.NewDirectory(path)
	require.NoError(t, err)
	return dir
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// runAll executes op and every follow-up depth first with mctx
func runAll(t *testing.T, mctx MigrationContext, op Operation) error {
	t.Helper()
	return NewExecutor(op).Execute(context.Background(), mctx)
}
