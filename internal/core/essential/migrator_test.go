package essential

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/relocator/internal/adapter/local"
	"github.com/Ning0612/relocator/internal/collection"
	"github.com/Ning0612/relocator/internal/domain"
	"github.com/Ning0612/relocator/internal/prefs"
	"github.com/Ning0612/relocator/internal/testutil"
)

type fixture struct {
	source      string
	scopedRoot  string
	destination string
	store       *prefs.MemoryStore
	opener      *collection.SQLiteOpener
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()

	f := &fixture{
		source:      testutil.CreateDataDirectory(t, filepath.Join(root, "legacy", "AnkiDroid")),
		scopedRoot:  filepath.Join(root, "scoped"),
		destination: filepath.Join(root, "scoped", "AnkiDroid"),
		store:       prefs.NewMemoryStore(),
		opener:      collection.NewSQLiteOpener(),
	}
	testutil.CreateTestFile(t, f.source, "collection.media/image.jpg", []byte("image"))
	testutil.CreateTestFile(t, f.source, "collection.log", []byte("log"))
	require.NoError(t, f.store.SetString(prefs.KeyCollectionPath, f.source))
	return f
}

func (f *fixture) config() Config {
	return Config{
		FileSystem:  local.New(),
		Opener:      f.opener,
		Preferences: f.store,
		ScopedRoot:  f.scopedRoot,
		FreeSpace:   func(string) (int64, error) { return 1 << 40, nil },
	}
}

func (f *fixture) pref(t *testing.T, key string) string {
	t.Helper()
	value, err := f.store.GetString(key, "")
	require.NoError(t, err)
	return value
}

func TestMigrateEssentialFiles(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, MigrateEssentialFiles(context.Background(), f.config(), f.destination))

	assert.Equal(t, []string{".nomedia", "collection.anki2", "collection.log"}, testutil.ListFiles(t, f.destination))
	assert.Contains(t, testutil.ListFiles(t, f.source), "collection.anki2", "essential files are copied, not moved")
	assert.Contains(t, testutil.ListFiles(t, f.source), "collection.media/image.jpg")

	assert.Equal(t, f.source, f.pref(t, prefs.KeyMigrationSource))
	assert.Equal(t, f.destination, f.pref(t, prefs.KeyMigrationDestination))
	assert.Equal(t, f.destination, f.pref(t, prefs.KeyCollectionPath))

	// the collection is usable at the new location
	col, err := f.opener.Open(context.Background(), collection.Path(f.destination))
	require.NoError(t, err)
	col.Close()
}

func TestMigrateEssentialFiles_AlreadyInProgress(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetStrings(map[string]string{
		prefs.KeyMigrationSource:      "/somewhere",
		prefs.KeyMigrationDestination: "/else",
	}))

	err := MigrateEssentialFiles(context.Background(), f.config(), f.destination)
	assert.ErrorIs(t, err, domain.ErrMigrationInProgress)
	assert.ErrorIs(t, err, domain.ErrIllegalState)
}

func TestMigrateEssentialFiles_DestinationNotEmpty(t *testing.T) {
	f := newFixture(t)
	testutil.CreateTestFile(t, f.destination, "existing.txt", []byte("x"))

	err := MigrateEssentialFiles(context.Background(), f.config(), f.destination)
	assert.ErrorIs(t, err, domain.ErrIllegalState)
	assert.Contains(t, err.Error(), "not empty")
}

func TestMigrateEssentialFiles_OutOfSpace(t *testing.T) {
	f := newFixture(t)
	cfg := f.config()
	cfg.FreeSpace = func(string) (int64, error) { return 100, nil }

	required, err := SpaceRequired(local.New(), domain.UnsafeDirectory(f.source))
	require.NoError(t, err)

	err = MigrateEssentialFiles(context.Background(), cfg, f.destination)
	var outOfSpace *domain.OutOfSpaceError
	require.ErrorAs(t, err, &outOfSpace)
	assert.Equal(t, int64(100), outOfSpace.Available)
	assert.Equal(t, required+SafetyMarginBytes, outOfSpace.Required)
	assert.Empty(t, f.pref(t, prefs.KeyMigrationSource))
}

func TestMigrateEssentialFiles_SourceAlreadyScoped(t *testing.T) {
	f := newFixture(t)
	cfg := f.config()
	cfg.ScopedRoot = filepath.Dir(filepath.Dir(f.source))

	err := MigrateEssentialFiles(context.Background(), cfg, f.destination)
	assert.ErrorIs(t, err, domain.ErrIllegalState)
	assert.Contains(t, err.Error(), "already under scoped storage")
}

func TestMigrateEssentialFiles_DestinationNotScoped(t *testing.T) {
	f := newFixture(t)
	outside := filepath.Join(t.TempDir(), "elsewhere")

	err := MigrateEssentialFiles(context.Background(), f.config(), outside)
	assert.ErrorIs(t, err, domain.ErrIllegalState)
	assert.Contains(t, err.Error(), "not under scoped storage")
}

func TestMigrateEssentialFiles_MissingCollection(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(collection.Path(f.source)))

	err := MigrateEssentialFiles(context.Background(), f.config(), f.destination)
	var missing *domain.MissingEssentialFileError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, collection.Path(f.source), missing.File)
}

func TestMigrateEssentialFiles_CorruptCollection(t *testing.T) {
	f := newFixture(t)
	cfg := f.config()
	cfg.Opener = &fakeOpener{Opener: f.opener, checkFails: true}

	err := MigrateEssentialFiles(context.Background(), cfg, f.destination)
	assert.ErrorIs(t, err, domain.ErrCheckDatabase)
	assert.Empty(t, testutil.ListFiles(t, f.destination), "nothing is copied")
}

func TestMigrateEssentialFiles_NotLockedIsRetriedOnce(t *testing.T) {
	f := newFixture(t)
	opener := &fakeOpener{Opener: f.opener, ignoreLock: true}
	cfg := f.config()
	cfg.Opener = opener

	runs := 0
	cfg.Wrap = func(m *Migrator) Runner {
		return runnerFunc(func(ctx context.Context) error {
			runs++
			return m.Execute(ctx)
		})
	}

	err := MigrateEssentialFiles(context.Background(), cfg, f.destination)
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, 2, runs)
	assert.False(t, opener.isLocked(), "the lock is released on failure")
	assert.Empty(t, f.pref(t, prefs.KeyMigrationSource))
}

func TestMigrateEssentialFiles_RollbackWhenNewCollectionFailsToOpen(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetString(prefs.KeyMigrationSource, ""))
	opener := &fakeOpener{
		Opener:   f.opener,
		failOpen: collection.Path(f.destination),
		// the first open at the destination is the basic check
		failAfter: 1,
	}
	cfg := f.config()
	cfg.Opener = opener

	err := MigrateEssentialFiles(context.Background(), cfg, f.destination)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection could not be opened")

	assert.Equal(t, f.source, f.pref(t, prefs.KeyCollectionPath), "active collection is restored")
	assert.Empty(t, f.pref(t, prefs.KeyMigrationSource))
	assert.Empty(t, f.pref(t, prefs.KeyMigrationDestination))
}

func TestMigrator_SourceMustBeActiveCollection(t *testing.T) {
	f := newFixture(t)
	other := testutil.CreateDataDirectory(t, filepath.Join(t.TempDir(), "other"))
	require.NoError(t, os.MkdirAll(f.destination, 0755))

	m := NewMigrator(local.New(), f.opener, f.store, domain.UnsafeDirectory(other), domain.UnsafeDirectory(f.destination))
	err := m.Execute(context.Background())
	assert.ErrorIs(t, err, domain.ErrIllegalState)
	assert.Contains(t, err.Error(), "paths did not match")
}

func TestRetryOnce(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name  string
		errs  []error
		want  error
		calls int
	}{
		{"success", []error{nil}, nil, 1},
		{"plain error", []error{boom}, boom, 1},
		{"retryable then success", []error{&domain.RetryableError{Err: boom}, nil}, nil, 2},
		{"retryable twice", []error{&domain.RetryableError{Err: boom}, &domain.RetryableError{Err: boom}}, boom, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := RetryOnce(func() error {
				err := tt.errs[calls]
				calls++
				return err
			})
			assert.Equal(t, tt.calls, calls)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestIsEssentialFileName(t *testing.T) {
	for _, name := range []string{"collection.anki2", "collection.anki2-journal", "collection.media.db", ".nomedia", "collection.log"} {
		assert.True(t, IsEssentialFileName(name), name)
	}
	for _, name := range []string{"collection.media", "backups", "card.html", "collection.media.db-journal"} {
		assert.False(t, IsEssentialFileName(name), name)
	}
}

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Execute(ctx context.Context) error { return f(ctx) }

// fakeOpener alters the behaviour of a real opener
type fakeOpener struct {
	collection.Opener
	checkFails bool
	ignoreLock bool
	failOpen   string
	failAfter  int

	mu     sync.Mutex
	locked bool
	opens  int
}

func (o *fakeOpener) Open(ctx context.Context, path string) (collection.Collection, error) {
	o.mu.Lock()
	if path == o.failOpen {
		o.opens++
		if o.opens > o.failAfter {
			o.mu.Unlock()
			return nil, errors.New("injected open failure")
		}
	}
	o.mu.Unlock()

	col, err := o.Opener.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if o.checkFails {
		return failingCheck{col}, nil
	}
	return col, nil
}

func (o *fakeOpener) Lock() {
	o.mu.Lock()
	o.locked = true
	o.mu.Unlock()
	if !o.ignoreLock {
		o.Opener.Lock()
	}
}

func (o *fakeOpener) Unlock() {
	o.mu.Lock()
	o.locked = false
	o.mu.Unlock()
	o.Opener.Unlock()
}

func (o *fakeOpener) isLocked() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.locked
}

type failingCheck struct {
	collection.Collection
}

func (failingCheck) BasicCheck(ctx context.Context) (bool, error) { return false, nil }
