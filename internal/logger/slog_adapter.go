package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// SlogLogger slog 實作. Messages and key-value pairs pass through a Sanitizer
// before reaching the handler.
type SlogLogger struct {
	logger    *slog.Logger
	level     *slog.LevelVar
	sanitizer *Sanitizer
	// writers is nil for children created by With, so only the root closes files
	writers []io.Closer
}

// NewSlogLogger 建立新的 slog logger
func NewSlogLogger(config Config) (*SlogLogger, error) {
	writers, closers, err := openOutputs(config)
	if err != nil {
		return nil, err
	}

	level := new(slog.LevelVar)
	level.Set(config.Level.slog())
	opts := &slog.HandlerOptions{Level: level}

	out := io.MultiWriter(writers...)
	var handler slog.Handler
	if config.Format == FormatJSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return &SlogLogger{
		logger:    slog.New(handler),
		level:     level,
		sanitizer: NewSanitizer(),
		writers:   closers,
	}, nil
}

func openOutputs(config Config) ([]io.Writer, []io.Closer, error) {
	var (
		writers []io.Writer
		closers []io.Closer
	)
	for _, output := range config.Outputs {
		switch output.Type {
		case OutputStdout, OutputStderr:
			w := output.Writer
			if w == nil {
				w = os.Stderr
				if output.Type == OutputStdout {
					w = os.Stdout
				}
			} else if c, ok := w.(io.Closer); ok && w != os.Stdout && w != os.Stderr {
				closers = append(closers, c)
			}
			writers = append(writers, w)
		case OutputFile:
			if !config.File.Enabled {
				continue
			}
			fw, err := createFileWriter(config.File)
			if err != nil {
				for _, c := range closers {
					c.Close()
				}
				return nil, nil, fmt.Errorf("failed to create file writer: %w", err)
			}
			writers = append(writers, fw)
			closers = append(closers, fw)
		}
	}

	// progress goes to stdout, so logs default to stderr
	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}
	return writers, closers, nil
}

// createFileWriter 建立檔案 writer（使用 lumberjack 支援 rotation）
func createFileWriter(config FileConfig) (io.WriteCloser, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("log file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   config.Path,
		MaxSize:    config.MaxSizeMB,
		MaxAge:     config.MaxAgeDays,
		MaxBackups: config.MaxBackups,
		Compress:   config.Compress,
	}, nil
}

func (l *SlogLogger) log(level slog.Level, msg string, args []any) {
	if !l.logger.Enabled(context.Background(), level) {
		return
	}
	l.logger.Log(context.Background(), level, l.sanitizer.Sanitize(msg), l.sanitizer.SanitizeArgs(args)...)
}

func (l *SlogLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }
func (l *SlogLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args) }
func (l *SlogLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args) }
func (l *SlogLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args) }

// With 建立帶 context 的子 logger. The child shares the level but not the writers.
func (l *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{
		logger:    l.logger.With(l.sanitizer.SanitizeArgs(args)...),
		level:     l.level,
		sanitizer: l.sanitizer,
	}
}

// SetLevel changes the level of this logger and every child
func (l *SlogLogger) SetLevel(level Level) {
	l.level.Set(level.slog())
}

// Sync is a no-op; lumberjack writes through
func (l *SlogLogger) Sync() error {
	return nil
}

// Shutdown closes the writers owned by this logger
func (l *SlogLogger) Shutdown() error {
	var lastErr error
	for _, w := range l.writers {
		if err := w.Close(); err != nil {
			lastErr = err
		}
	}
	l.writers = nil
	return lastErr
}
