// Package config loads tablekeeper settings from an optional YAML file and
// TABLEKEEPER_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/example/tablekeeper/internal/logging"
	"github.com/example/tablekeeper/internal/persistence/sqlite"
)

// Config captures store and logging settings. Environment variables take
// precedence over file values; defaults fill whatever neither sets.
type Config struct {
	DBPath             string        `yaml:"db_path" env:"TABLEKEEPER_DB_PATH" env-default:"tablekeeper.db"`
	BusyTimeout        time.Duration `yaml:"busy_timeout" env:"TABLEKEEPER_BUSY_TIMEOUT" env-default:"30s"`
	JournalMode        string        `yaml:"journal_mode" env:"TABLEKEEPER_JOURNAL_MODE" env-default:"WAL"`
	Synchronous        string        `yaml:"synchronous" env:"TABLEKEEPER_SYNCHRONOUS" env-default:"NORMAL"`
	DisableForeignKeys bool          `yaml:"disable_foreign_keys" env:"TABLEKEEPER_DISABLE_FOREIGN_KEYS"`
	CacheSize          int           `yaml:"cache_size" env:"TABLEKEEPER_CACHE_SIZE" env-default:"-2000"`
	LogLevel           string        `yaml:"log_level" env:"TABLEKEEPER_LOG_LEVEL" env-default:"info"`
	LogFormat          string        `yaml:"log_format" env:"TABLEKEEPER_LOG_FORMAT" env-default:"json"`
}

// Load reads the configuration. An empty path reads the environment only.
func Load(path string) (Config, error) {
	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("failed to read environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.DBPath = strings.TrimSpace(c.DBPath)
	c.JournalMode = strings.ToUpper(strings.TrimSpace(c.JournalMode))
	c.Synchronous = strings.ToUpper(strings.TrimSpace(c.Synchronous))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := sqlite.ValidateConfig(c.SQLite()); err != nil {
		return fmt.Errorf("invalid store settings: %w", err)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %q", c.LogFormat)
	}
	return nil
}

// SQLite converts the settings into a store configuration.
func (c Config) SQLite() sqlite.Config {
	return sqlite.Config{
		DSN:               c.DBPath,
		BusyTimeout:       c.BusyTimeout,
		EnableForeignKeys: !c.DisableForeignKeys,
		JournalMode:       c.JournalMode,
		Synchronous:       c.Synchronous,
		CacheSize:         c.CacheSize,
	}
}
