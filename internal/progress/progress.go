package progress

import (
	"fmt"
	"sync"
	"time"
)

// Reporter handles progress reporting for a migration phase
type Reporter interface {
	// Start begins tracking a phase expected to move totalFiles files of totalBytes.
	// Totals are estimates; zero means unknown.
	Start(phase string, totalFiles int, totalBytes int64)
	// Moved reports one file migrated
	Moved(bytes int64)
	// Error reports a failure which did not stop the phase
	Error(err error)
	// Finish marks the phase as done
	Finish()
}

// Callback is a function that receives progress updates
type Callback func(update Update)

// Update represents a progress update
type Update struct {
	Type           UpdateType
	Phase          string
	FilesCompleted int
	FilesTotal     int
	BytesCompleted int64
	BytesTotal     int64
	BytesPerSecond float64
	Error          error
}

// UpdateType indicates the type of progress update
type UpdateType int

const (
	UpdateStart UpdateType = iota
	UpdateMoved
	UpdateError
	UpdateFinish
)

// CallbackReporter implements Reporter with a callback function
type CallbackReporter struct {
	callback       Callback
	mu             sync.Mutex
	phase          string
	filesTotal     int
	bytesTotal     int64
	filesCompleted int
	bytesCompleted int64
	startTime      time.Time
}

// NewCallbackReporter creates a new CallbackReporter
func NewCallbackReporter(callback Callback) *CallbackReporter {
	return &CallbackReporter{
		callback: callback,
	}
}

// Start resets the counters for a new phase
func (r *CallbackReporter) Start(phase string, totalFiles int, totalBytes int64) {
	r.mu.Lock()
	r.phase = phase
	r.filesTotal = totalFiles
	r.bytesTotal = totalBytes
	r.filesCompleted = 0
	r.bytesCompleted = 0
	r.startTime = time.Now()

	// Capture values for callback outside lock
	update := r.snapshot(UpdateStart)
	r.mu.Unlock()

	r.emit(update)
}

// Moved counts one migrated file
func (r *CallbackReporter) Moved(bytes int64) {
	r.mu.Lock()
	r.filesCompleted++
	r.bytesCompleted += bytes

	update := r.snapshot(UpdateMoved)
	if elapsed := time.Since(r.startTime).Seconds(); elapsed > 0 {
		update.BytesPerSecond = float64(r.bytesCompleted) / elapsed
	}
	r.mu.Unlock()

	r.emit(update)
}

// Error reports a non-fatal failure
func (r *CallbackReporter) Error(err error) {
	r.mu.Lock()
	update := r.snapshot(UpdateError)
	update.Error = err
	r.mu.Unlock()

	r.emit(update)
}

// Finish reports the end of the phase
func (r *CallbackReporter) Finish() {
	r.mu.Lock()
	update := r.snapshot(UpdateFinish)
	r.mu.Unlock()

	r.emit(update)
}

// BytesCompleted returns the bytes moved in the current phase
func (r *CallbackReporter) BytesCompleted() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytesCompleted
}

// snapshot must be called with r.mu held
func (r *CallbackReporter) snapshot(t UpdateType) Update {
	return Update{
		Type:           t,
		Phase:          r.phase,
		FilesCompleted: r.filesCompleted,
		FilesTotal:     r.filesTotal,
		BytesCompleted: r.bytesCompleted,
		BytesTotal:     r.bytesTotal,
	}
}

// emit calls the callback outside the lock to prevent deadlock
func (r *CallbackReporter) emit(update Update) {
	if r.callback != nil {
		r.callback(update)
	}
}

// NullReporter is a no-op reporter
type NullReporter struct{}

func (NullReporter) Start(phase string, totalFiles int, totalBytes int64) {}
func (NullReporter) Moved(bytes int64)                                    {}
func (NullReporter) Error(err error)                                      {}
func (NullReporter) Finish()                                              {}

// FormatBytes formats bytes into human-readable string
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatSpeed formats bytes per second into human-readable string
func FormatSpeed(bytesPerSecond float64) string {
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}

// FormatProgress returns a progress bar string
func FormatProgress(current, total int64, width int) string {
	if total == 0 {
		return ""
	}

	percent := float64(current) / float64(total)
	filled := int(percent * float64(width))
	if filled > width {
		filled = width
	}

	bar := make([]byte, width)
	for i := 0; i < width; i++ {
		if i < filled {
			bar[i] = '='
		} else if i == filled {
			bar[i] = '>'
		} else {
			bar[i] = ' '
		}
	}

	return fmt.Sprintf("[%s] %5.1f%%", string(bar), percent*100)
}
