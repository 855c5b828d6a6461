package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/Ning0612/relocator/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. RELOCATE_LOG_LEVEL
const EnvPrefix = "RELOCATE"

// DefaultConfigPaths returns the default paths to search for config files
func DefaultConfigPaths() []string {
	paths := []string{
		".",
		"./configs",
		filepath.Join(xdg.ConfigHome, AppName),
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, "."+AppName))
	}
	return paths
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("state_dir", DefaultStateDir())
	v.SetDefault("scoped_root", "")
	v.SetDefault("migration.attempt_rename", true)
	v.SetDefault("migration.history_limit", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.outputs", []string{"stderr"})
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", filepath.Join(DefaultStateDir(), "relocate.log"))
	v.SetDefault("log.file.max_size_mb", 10)
	v.SetDefault("log.file.max_age_days", 30)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.compress", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration file at path. If path is empty the default
// locations are searched for config.yaml; finding none yields the defaults.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
		}
		// no config file: defaults and environment only
	}

	return decode(v)
}

// LoadFromString parses configuration from a YAML string
func LoadFromString(yamlContent string) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	cfg.DataDir = ExpandPath(cfg.DataDir)
	cfg.StateDir = ExpandPath(cfg.StateDir)
	cfg.ScopedRoot = ExpandPath(cfg.ScopedRoot)
	cfg.Log.File.Path = ExpandPath(cfg.Log.File.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
