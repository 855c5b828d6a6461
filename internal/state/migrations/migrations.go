// Package migrations holds the schema of the run history database.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

var openSource = func() (source.Driver, error) {
	return iofs.New(migrationFiles, "files")
}

// MigrateUp runs all pending migrations.
// The caller owns db; it is not closed.
func MigrateUp(db *sql.DB) error {
	m, src, err := newMigrate(db)
	if err != nil {
		return err
	}
	// m.Close would also close db
	defer src.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// CheckStatus returns nil if the schema of db is at the latest version
func CheckStatus(db *sql.DB) error {
	m, src, err := newMigrate(db)
	if err != nil {
		return err
	}
	defer src.Close()

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("database has no schema version (needs migration)")
		}
		return fmt.Errorf("failed to get database version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d (migration failed previously)", version)
	}

	latest, err := LatestVersion()
	if err != nil {
		return err
	}
	switch {
	case version < latest:
		return fmt.Errorf("database is at version %d but latest is %d", version, latest)
	case version > latest:
		return fmt.Errorf("database version %d is ahead of binary version %d", version, latest)
	}
	return nil
}

// LatestVersion returns the highest schema version embedded in the binary
func LatestVersion() (uint, error) {
	src, err := openSource()
	if err != nil {
		return 0, fmt.Errorf("failed to read migration files: %w", err)
	}
	defer src.Close()
	return lastVersion(src)
}

// newMigrate returns a migrate instance over db and its source driver.
// The caller closes the source once done.
func newMigrate(db *sql.DB) (*migrate.Migrate, source.Driver, error) {
	src, err := openSource()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, src, nil
}

func lastVersion(src source.Driver) (uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(version)
		if err != nil {
			// no further migration
			return version, nil
		}
		version = next
	}
}
