// Package lock guards a data directory against two processes migrating it at
// the same time.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/Ning0612/relocator/internal/domain"
)

const (
	// LockFileName is the name of the lock file
	LockFileName = ".relocator.lock"
	// DefaultStaleTimeout is the default duration after which a lock held
	// from another host is considered stale
	DefaultStaleTimeout = 30 * time.Minute
)

// LockInfo contains metadata about the lock holder
type LockInfo struct {
	PID       int          `json:"pid"`
	Hostname  string       `json:"hostname"`
	StartTime time.Time    `json:"start_time"`
	RunID     string       `json:"run_id"`
	Phase     domain.Phase `json:"phase,omitempty"`
}

// FileLock is a file-based lock held for the duration of a migration run
type FileLock struct {
	lockPath     string
	staleTimeout time.Duration
	info         *LockInfo
}

// NewFileLock creates a lock in lockDir, by default the relocator state directory
func NewFileLock(lockDir string) (*FileLock, error) {
	if lockDir == "" {
		lockDir = filepath.Join(xdg.StateHome, "relocator")
	}

	if err := os.MkdirAll(lockDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	return &FileLock{
		lockPath:     filepath.Join(lockDir, LockFileName),
		staleTimeout: DefaultStaleTimeout,
	}, nil
}

// Path returns the location of the lock file
func (l *FileLock) Path() string {
	return l.lockPath
}

// SetStaleTimeout sets the duration after which a foreign-host lock is considered stale
func (l *FileLock) SetStaleTimeout(d time.Duration) {
	l.staleTimeout = d
}

// Acquire takes the lock for run runID.
// If this instance already holds it, only the recorded phase is updated.
// Returns a *LockError if the lock is held by another process.
func (l *FileLock) Acquire(runID string, phase domain.Phase) error {
	if l.info != nil {
		existing, err := l.readLockInfo()
		if err == nil && l.isHeldByThisInstance(existing) {
			existing.Phase = phase
			if err := l.writeLockInfo(existing); err != nil {
				return err
			}
			// keep l.info in step with the file, Release compares them
			l.info.Phase = phase
			return nil
		}
	}

	existing, err := l.readLockInfo()
	if err == nil {
		if !l.isStale(existing) {
			return &LockError{
				Holder: existing,
				Reason: "lock is held by another process",
			}
		}
		if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	hostname, _ := os.Hostname()
	info := &LockInfo{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartTime: time.Now(),
		RunID:     runID,
		Phase:     phase,
	}

	// O_EXCL makes creation atomic between processes
	file, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			holder, readErr := l.readLockInfo()
			if readErr != nil {
				return fmt.Errorf("lock acquisition race condition: %w", err)
			}
			return &LockError{
				Holder: holder,
				Reason: "lock acquired by another process during acquisition",
			}
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(info); err != nil {
		os.Remove(l.lockPath)
		return fmt.Errorf("failed to write lock info: %w", err)
	}

	l.info = info
	return nil
}

// Release releases the lock. Releasing a lock which is not held is a no-op.
func (l *FileLock) Release() error {
	if l.info == nil {
		return nil
	}

	existing, err := l.readLockInfo()
	if err != nil {
		// lock file is gone, consider it released
		l.info = nil
		return nil
	}

	if !l.isHeldByThisInstance(existing) {
		l.info = nil
		return fmt.Errorf("lock was taken over by run %s", existing.RunID)
	}

	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}

	l.info = nil
	return nil
}

// IsLocked checks if a live lock exists
func (l *FileLock) IsLocked() bool {
	info, err := l.readLockInfo()
	if err != nil {
		return false
	}
	return !l.isStale(info)
}

// GetHolder returns information about the current lock holder
func (l *FileLock) GetHolder() (*LockInfo, error) {
	info, err := l.readLockInfo()
	if err != nil {
		return nil, err
	}
	if l.isStale(info) {
		return nil, fmt.Errorf("lock is stale")
	}
	return info, nil
}

// ForceRelease removes the lock file whoever holds it.
// Only for use when the holder is known to have crashed.
func (l *FileLock) ForceRelease() error {
	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to force remove lock: %w", err)
	}
	l.info = nil
	return nil
}

func (l *FileLock) readLockInfo() (*LockInfo, error) {
	data, err := os.ReadFile(l.lockPath)
	if err != nil {
		return nil, err
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("invalid lock file format: %w", err)
	}

	return &info, nil
}

func (l *FileLock) writeLockInfo(info *LockInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.lockPath, data, 0644)
}

// isStale reports whether the holder is gone. On the same host that means the
// process is dead, whatever the age of the lock. The timeout only applies to
// locks from another host, whose process can't be checked.
func (l *FileLock) isStale(info *LockInfo) bool {
	hostname, _ := os.Hostname()

	if info.Hostname == hostname {
		return !processExists(info.PID)
	}

	return time.Since(info.StartTime) > l.staleTimeout
}

func (l *FileLock) isHeldByCurrentProcess(info *LockInfo) bool {
	hostname, _ := os.Hostname()
	return info.PID == os.Getpid() && info.Hostname == hostname
}

// isHeldByThisInstance checks if the lock is held by this FileLock
func (l *FileLock) isHeldByThisInstance(info *LockInfo) bool {
	if l.info == nil {
		return false
	}
	return l.isHeldByCurrentProcess(info) &&
		l.info.StartTime.Equal(info.StartTime) &&
		l.info.RunID == info.RunID
}

// LockError represents an error when lock cannot be acquired
type LockError struct {
	Holder *LockInfo
	Reason string
}

func (e *LockError) Error() string {
	if e.Holder != nil {
		return fmt.Sprintf("cannot acquire lock: %s (held by PID %d on %s since %s, run: %s, phase: %s)",
			e.Reason,
			e.Holder.PID,
			e.Holder.Hostname,
			e.Holder.StartTime.Format(time.RFC3339),
			e.Holder.RunID,
			e.Holder.Phase,
		)
	}
	return fmt.Sprintf("cannot acquire lock: %s", e.Reason)
}

// Is makes a LockError match domain.ErrMigrationInProgress
func (e *LockError) Is(target error) bool {
	return target == domain.ErrMigrationInProgress
}

// IsLockError checks if an error is, or wraps, a LockError
func IsLockError(err error) bool {
	var lockErr *LockError
	return errors.As(err, &lockErr)
}
