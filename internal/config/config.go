package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"

	"github.com/Ning0612/relocator/internal/domain"
	"github.com/Ning0612/relocator/internal/logger"
)

// AppName names the per-user directories and the config search path
const AppName = "relocator"

// PreferencesFileName is the bbolt preference database inside DataDir
const PreferencesFileName = "prefs.db"

// Config represents the complete configuration for relocate
type Config struct {
	// DataDir holds the preference store and the run history
	DataDir string `mapstructure:"data_dir"`

	// StateDir holds the migration lock file
	StateDir string `mapstructure:"state_dir"`

	// ScopedRoot is the storage area data must be moved into. Empty disables the check.
	ScopedRoot string `mapstructure:"scoped_root"`

	Migration MigrationConfig `mapstructure:"migration"`
	Log       LogConfig       `mapstructure:"log"`
}

// MigrationConfig tunes the user data phase
type MigrationConfig struct {
	// AttemptRename tries a rename before copy+delete for each file
	AttemptRename bool `mapstructure:"attempt_rename"`

	// HistoryLimit is the default number of runs shown by history
	HistoryLimit int `mapstructure:"history_limit"`
}

// LogConfig 日誌設定
type LogConfig struct {
	Level   string        `mapstructure:"level"`
	Format  string        `mapstructure:"format"`
	Outputs []string      `mapstructure:"outputs"`
	File    LogFileConfig `mapstructure:"file"`
}

// LogFileConfig configures the rotated log file
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// DefaultDataDir is the data directory used when none is configured
func DefaultDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// DefaultStateDir is the state directory used when none is configured
func DefaultStateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// PreferencesPath is the location of the preference database
func (c *Config) PreferencesPath() string {
	return filepath.Join(c.DataDir, PreferencesFileName)
}

// Validate checks if the configuration is complete and consistent
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir cannot be empty", domain.ErrConfigInvalid)
	}
	if c.StateDir == "" {
		return fmt.Errorf("%w: state_dir cannot be empty", domain.ErrConfigInvalid)
	}
	if c.ScopedRoot != "" && !filepath.IsAbs(c.ScopedRoot) {
		return fmt.Errorf("%w: scoped_root must be absolute: %s", domain.ErrConfigInvalid, c.ScopedRoot)
	}
	if c.Migration.HistoryLimit <= 0 {
		return fmt.Errorf("%w: migration.history_limit must be positive, got %d",
			domain.ErrConfigInvalid, c.Migration.HistoryLimit)
	}
	if _, err := c.LoggerConfig(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	return nil
}

// LoggerConfig converts the log section into a logger.Config
func (c *Config) LoggerConfig() (logger.Config, error) {
	level, err := logger.ParseLevel(c.Log.Level)
	if err != nil {
		return logger.Config{}, err
	}
	format, err := logger.ParseFormat(c.Log.Format)
	if err != nil {
		return logger.Config{}, err
	}

	cfg := logger.Config{
		Level:  level,
		Format: format,
		File: logger.FileConfig{
			Enabled:    c.Log.File.Enabled,
			Path:       c.Log.File.Path,
			MaxSizeMB:  c.Log.File.MaxSizeMB,
			MaxAgeDays: c.Log.File.MaxAgeDays,
			MaxBackups: c.Log.File.MaxBackups,
			Compress:   c.Log.File.Compress,
		},
	}
	for _, name := range c.Log.Outputs {
		output, err := logger.ParseOutput(name)
		if err != nil {
			return logger.Config{}, err
		}
		cfg.Outputs = append(cfg.Outputs, logger.OutputConfig{Type: output})
	}
	if cfg.File.Enabled && cfg.File.Path == "" {
		return logger.Config{}, fmt.Errorf("log.file.path is required when file logging is enabled")
	}
	return cfg, nil
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
				path = filepath.Join(home, path[2:])
			} else if len(path) == 1 {
				path = home
			}
		}
	}
	path = os.ExpandEnv(path)
	return filepath.Clean(path)
}
