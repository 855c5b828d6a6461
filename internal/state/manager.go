// Package state keeps the history of migration runs.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Ning0612/relocator/internal/domain"
	"github.com/Ning0612/relocator/internal/state/migrations"
)

// DatabaseFileName is the name of the history database in the data directory
const DatabaseFileName = "relocator.db"

// Run statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	// StatusPartial: the run finished but files were left in the source
	StatusPartial = "partial"
)

// Manager handles run history persistence
type Manager struct {
	db *sql.DB
}

// RunRecord represents a single run of one migration phase
type RunRecord struct {
	ID          string       `json:"id"`
	Phase       domain.Phase `json:"phase"`
	Source      string       `json:"source"`
	Destination string       `json:"destination"`
	StartTime   time.Time    `json:"start_time"`
	EndTime     time.Time    `json:"end_time"`
	Status      string       `json:"status"`
	FilesMoved  int          `json:"files_moved"`
	BytesMoved  int64        `json:"bytes_moved"`
	Passes      int          `json:"passes"`
	Conflicts   int          `json:"conflicts"`
	Error       string       `json:"error,omitempty"`
}

// Duration returns how long the run took
func (r RunRecord) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// NewManager opens the history database in dataDir, migrating its schema
func NewManager(dataDir string) (*Manager, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dataDir, DatabaseFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one connection avoids "database is locked" errors
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode and busy timeout: %w", err)
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Manager{db: db}, nil
}

// SaveRun records a run and returns its ID. An ID is generated if the record has none.
func (m *Manager) SaveRun(record RunRecord) (string, error) {
	switch record.Status {
	case StatusSuccess, StatusFailed, StatusPartial:
	default:
		return "", fmt.Errorf("invalid status: %s (must be '%s', '%s', or '%s')",
			record.Status, StatusSuccess, StatusFailed, StatusPartial)
	}
	if !record.Phase.IsValid() {
		return "", fmt.Errorf("invalid phase: %q", record.Phase)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	} else if _, err := uuid.Parse(record.ID); err != nil {
		return "", fmt.Errorf("invalid run id %q: %w", record.ID, err)
	}

	query := `
		INSERT INTO runs (id, phase, source, destination, start_time, end_time, status,
			files_moved, bytes_moved, passes, conflicts, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := m.db.Exec(query,
		record.ID,
		string(record.Phase),
		record.Source,
		record.Destination,
		record.StartTime,
		record.EndTime,
		record.Status,
		record.FilesMoved,
		record.BytesMoved,
		record.Passes,
		record.Conflicts,
		record.Error,
	)
	if err != nil {
		return "", fmt.Errorf("failed to save run record: %w", err)
	}

	return record.ID, nil
}

const selectRuns = `
	SELECT id, phase, source, destination, start_time, end_time, status,
		files_moved, bytes_moved, passes, conflicts, error
	FROM runs
`

// GetRun returns the run with the given ID, or nil if there is none
func (m *Manager) GetRun(id string) (*RunRecord, error) {
	record, err := scanRun(m.db.QueryRow(selectRuns+"WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return record, nil
}

// GetHistory retrieves the most recent runs of a phase
func (m *Manager) GetHistory(phase domain.Phase, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := m.db.Query(selectRuns+"WHERE phase = ? ORDER BY start_time DESC LIMIT ?", string(phase), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return collectRuns(rows)
}

// GetAllHistory retrieves the most recent runs of every phase
func (m *Manager) GetAllHistory(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := m.db.Query(selectRuns+"ORDER BY start_time DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query all history: %w", err)
	}
	return collectRuns(rows)
}

// GetLastSuccess retrieves the last successful run of a phase, or nil
func (m *Manager) GetLastSuccess(phase domain.Phase) (*RunRecord, error) {
	row := m.db.QueryRow(selectRuns+"WHERE phase = ? AND status = ? ORDER BY start_time DESC LIMIT 1",
		string(phase), StatusSuccess)

	record, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last success: %w", err)
	}
	return record, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*RunRecord, error) {
	var (
		record RunRecord
		phase  string
	)
	err := s.Scan(
		&record.ID,
		&phase,
		&record.Source,
		&record.Destination,
		&record.StartTime,
		&record.EndTime,
		&record.Status,
		&record.FilesMoved,
		&record.BytesMoved,
		&record.Passes,
		&record.Conflicts,
		&record.Error,
	)
	if err != nil {
		return nil, err
	}
	record.Phase = domain.Phase(phase)
	return &record, nil
}

func collectRuns(rows *sql.Rows) ([]RunRecord, error) {
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}
