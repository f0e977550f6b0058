package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"TABLEKEEPER_DB_PATH",
	"TABLEKEEPER_BUSY_TIMEOUT",
	"TABLEKEEPER_JOURNAL_MODE",
	"TABLEKEEPER_SYNCHRONOUS",
	"TABLEKEEPER_DISABLE_FOREIGN_KEYS",
	"TABLEKEEPER_CACHE_SIZE",
	"TABLEKEEPER_LOG_LEVEL",
	"TABLEKEEPER_LOG_FORMAT",
}

// clearEnv unsets every tablekeeper variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.DBPath != "tablekeeper.db" {
			t.Fatalf("unexpected default db path: %q", cfg.DBPath)
		}
		if cfg.BusyTimeout != 30*time.Second {
			t.Fatalf("expected default busy timeout 30s, got %v", cfg.BusyTimeout)
		}
		if cfg.JournalMode != "WAL" || cfg.Synchronous != "NORMAL" {
			t.Fatalf("unexpected pragma defaults: %q / %q", cfg.JournalMode, cfg.Synchronous)
		}
		if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
			t.Fatalf("unexpected logging defaults: %q / %q", cfg.LogLevel, cfg.LogFormat)
		}

		store := cfg.SQLite()
		if !store.EnableForeignKeys {
			t.Fatal("expected foreign keys to be enabled by default")
		}
		if store.CacheSize != -2000 {
			t.Fatalf("expected default cache size -2000, got %d", store.CacheSize)
		}
	})

	t.Run("reads overrides", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TABLEKEEPER_DB_PATH", "/var/lib/tablekeeper/store.db")
		t.Setenv("TABLEKEEPER_BUSY_TIMEOUT", "2s")
		t.Setenv("TABLEKEEPER_JOURNAL_MODE", "delete")
		t.Setenv("TABLEKEEPER_DISABLE_FOREIGN_KEYS", "true")
		t.Setenv("TABLEKEEPER_LOG_FORMAT", "TEXT")

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		store := cfg.SQLite()
		if store.DSN != "/var/lib/tablekeeper/store.db" {
			t.Fatalf("unexpected DSN: %q", store.DSN)
		}
		if store.BusyTimeout != 2*time.Second {
			t.Fatalf("expected busy timeout 2s, got %v", store.BusyTimeout)
		}
		if store.JournalMode != "DELETE" {
			t.Fatalf("expected journal mode to be normalized, got %q", store.JournalMode)
		}
		if store.EnableForeignKeys {
			t.Fatal("expected foreign keys to be disabled")
		}
		if cfg.LogFormat != "text" {
			t.Fatalf("expected log format to be normalized, got %q", cfg.LogFormat)
		}
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		tests := []struct {
			key      string
			value    string
			contains string
		}{
			{key: "TABLEKEEPER_JOURNAL_MODE", value: "sideways", contains: "invalid journal mode"},
			{key: "TABLEKEEPER_SYNCHRONOUS", value: "sometimes", contains: "invalid synchronous mode"},
			{key: "TABLEKEEPER_LOG_LEVEL", value: "loud", contains: "invalid log level"},
			{key: "TABLEKEEPER_LOG_FORMAT", value: "xml", contains: "invalid log format"},
			{key: "TABLEKEEPER_BUSY_TIMEOUT", value: "-1s", contains: "BusyTimeout cannot be negative"},
			{key: "TABLEKEEPER_BUSY_TIMEOUT", value: "soon", contains: "failed to read environment"},
		}

		for _, tt := range tests {
			t.Run(tt.key+"="+tt.value, func(t *testing.T) {
				clearEnv(t)
				t.Setenv(tt.key, tt.value)

				_, err := Load("")
				if err == nil {
					t.Fatalf("expected error for %s=%s", tt.key, tt.value)
				}
				if !strings.Contains(err.Error(), tt.contains) {
					t.Fatalf("expected error to contain %q, got %q", tt.contains, err.Error())
				}
			})
		}
	})
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tablekeeper.yaml")
	content := strings.Join([]string{
		"db_path: data/notes.db",
		"busy_timeout: 5s",
		"journal_mode: MEMORY",
		"synchronous: FULL",
		"disable_foreign_keys: true",
		"cache_size: -4000",
		"log_level: warn",
		"log_format: text",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Run("reads file values", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		want := Config{
			DBPath:             "data/notes.db",
			BusyTimeout:        5 * time.Second,
			JournalMode:        "MEMORY",
			Synchronous:        "FULL",
			DisableForeignKeys: true,
			CacheSize:          -4000,
			LogLevel:           "warn",
			LogFormat:          "text",
		}
		if cfg != want {
			t.Fatalf("unexpected config:\n got  %+v\n want %+v", cfg, want)
		}
	})

	t.Run("environment wins over file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TABLEKEEPER_LOG_LEVEL", "debug")

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.LogLevel != "debug" {
			t.Fatalf("expected env log level, got %q", cfg.LogLevel)
		}
		if cfg.DBPath != "data/notes.db" {
			t.Fatalf("expected file db path to survive, got %q", cfg.DBPath)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)

		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
			t.Fatalf("expected file error, got %v", err)
		}
	})
}
