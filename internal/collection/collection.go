// Package collection opens and validates the user's SQLite collection.
//
// The migration engine never reads the collection's content. It only needs to
// open it, run a basic consistency check, and stop anyone else from opening it
// while its files are copied.
package collection

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Ning0612/relocator/internal/domain"
)

// FileName is the name of the collection database inside a data directory
const FileName = "collection.anki2"

// Path returns the collection path inside dir
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Collection is an open collection
type Collection interface {
	Path() string
	// BasicCheck reports whether the database passed a consistency check
	BasicCheck(ctx context.Context) (bool, error)
	Close() error
}

// Opener opens collections. While locked it refuses to open anything.
type Opener interface {
	Open(ctx context.Context, path string) (Collection, error)
	Lock()
	Unlock()
	// CloseAll closes every collection this opener has open
	CloseAll() error
}

// SQLiteOpener opens collections with mattn/go-sqlite3
type SQLiteOpener struct {
	mu     sync.Mutex
	locked bool
	open   map[*SQLiteCollection]struct{}
}

// NewSQLiteOpener creates an unlocked opener
func NewSQLiteOpener() *SQLiteOpener {
	return &SQLiteOpener{open: make(map[*SQLiteCollection]struct{})}
}

// Open opens an existing collection file
// Returns domain.ErrCollectionLocked while the opener is locked
// Returns domain.ErrNotFound if the file doesn't exist
func (o *SQLiteOpener) Open(ctx context.Context, path string) (Collection, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.locked {
		return nil, fmt.Errorf("%w: '%s'", domain.ErrCollectionLocked, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: '%s'", domain.ErrNotFound, path)
		}
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: '%s'", domain.ErrNotFile, path)
	}

	// mode=rw never creates a missing database
	dsn := fmt.Sprintf("file:%s?mode=rw&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open collection '%s': %w", path, err)
	}

	col := &SQLiteCollection{path: path, db: db, opener: o}
	o.open[col] = struct{}{}
	return col, nil
}

// Lock prevents collections from being opened
func (o *SQLiteOpener) Lock() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.locked = true
}

// Unlock allows collections to be opened again
func (o *SQLiteOpener) Unlock() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.locked = false
}

// CloseAll implements Opener
func (o *SQLiteOpener) CloseAll() error {
	o.mu.Lock()
	cols := make([]*SQLiteCollection, 0, len(o.open))
	for col := range o.open {
		cols = append(cols, col)
	}
	o.mu.Unlock()

	var firstErr error
	for _, col := range cols {
		if err := col.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (o *SQLiteOpener) release(col *SQLiteCollection) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.open, col)
}

// SQLiteCollection is a collection opened by SQLiteOpener
type SQLiteCollection struct {
	path   string
	db     *sql.DB
	opener *SQLiteOpener
	once   sync.Once
	err    error
}

// Path returns the path of the collection file
func (c *SQLiteCollection) Path() string {
	return c.path
}

// BasicCheck runs PRAGMA integrity_check
func (c *SQLiteCollection) BasicCheck(ctx context.Context) (bool, error) {
	var result string
	if err := c.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return false, fmt.Errorf("integrity check failed: %w", err)
	}
	return result == "ok", nil
}

// Close closes the database. Closing twice is a no-op.
func (c *SQLiteCollection) Close() error {
	c.once.Do(func() {
		c.err = c.db.Close()
		c.opener.release(c)
	})
	return c.err
}

// Create creates an empty collection at path. Used to set up a data directory.
func Create(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: '%s'", domain.ErrAlreadyExists, path)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	defer db.Close()

	schema := `
	CREATE TABLE IF NOT EXISTS col (
		id INTEGER PRIMARY KEY,
		crt INTEGER NOT NULL,
		mod INTEGER NOT NULL,
		ver INTEGER NOT NULL
	);
	INSERT INTO col (id, crt, mod, ver) VALUES (1, strftime('%s','now'), strftime('%s','now'), 11);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create collection schema: %w", err)
	}
	return nil
}
