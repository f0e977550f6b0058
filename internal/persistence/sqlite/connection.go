package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Config holds SQLite-specific database configuration
type Config struct {
	// DSN is the database file path or connection string
	DSN string

	// BusyTimeout sets how long to wait for database locks
	BusyTimeout time.Duration

	// EnableForeignKeys enables foreign key constraint checking
	EnableForeignKeys bool

	// JournalMode sets the SQLite journal mode (WAL, DELETE, TRUNCATE, etc.)
	JournalMode string

	// Synchronous sets the synchronous mode (FULL, NORMAL, OFF)
	Synchronous string

	// CacheSize sets the page cache size in KB (negative for pages)
	CacheSize int
}

// DB is a single-connection handle to one store file. Every statement,
// schema or row level, is serialized through that connection.
type DB struct {
	db     *sql.DB
	config Config
}

// Open validates cfg, creates the store file if needed and returns a
// configured single-connection handle.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid SQLite configuration: %w", err)
	}

	if err := createDatabaseFile(cfg.DSN); err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// The engine does not support concurrent DDL-bearing writers, and PRAGMAs
	// are per connection, so the pool is pinned to exactly one connection
	// that is never recycled.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := configureDatabase(ctx, db, cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure SQLite database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	return &DB{db: db, config: cfg}, nil
}

// SQL returns the underlying database handle
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Path returns the DSN the handle was opened with
func (d *DB) Path() string {
	return d.config.DSN
}

// Close closes the connection
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Ping tests the database connection
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Exec executes a statement that doesn't return rows
func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, query, args...)
}

// Query executes a query that returns multiple rows
func (d *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.db.QueryContext(ctx, query, args...)
}

// QueryRow executes a query that returns a single row
func (d *DB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ctx, query, args...)
}

// Conn pins the single connection for work that must not be interleaved,
// such as toggling a connection-scoped PRAGMA around a transaction. The
// caller must Close the returned connection before using d again.
func (d *DB) Conn(ctx context.Context) (*sql.Conn, error) {
	return d.db.Conn(ctx)
}

func configureDatabase(ctx context.Context, db *sql.DB, cfg Config) error {
	pragmas := []struct {
		name  string
		value any
	}{
		{"busy_timeout", int(cfg.BusyTimeout.Milliseconds())},
	}

	if cfg.JournalMode != "" {
		pragmas = append(pragmas, struct {
			name  string
			value any
		}{"journal_mode", cfg.JournalMode})
	}

	if cfg.Synchronous != "" {
		pragmas = append(pragmas, struct {
			name  string
			value any
		}{"synchronous", cfg.Synchronous})
	}

	if cfg.EnableForeignKeys {
		pragmas = append(pragmas, struct {
			name  string
			value any
		}{"foreign_keys", "ON"})
	}

	if cfg.CacheSize != 0 {
		pragmas = append(pragmas, struct {
			name  string
			value any
		}{"cache_size", cfg.CacheSize})
	}

	for _, pragma := range pragmas {
		var stmt string
		switch v := pragma.value.(type) {
		case string:
			stmt = fmt.Sprintf("PRAGMA %s = %s", pragma.name, v)
		case int:
			stmt = fmt.Sprintf("PRAGMA %s = %d", pragma.name, v)
		default:
			stmt = fmt.Sprintf("PRAGMA %s = %v", pragma.name, v)
		}

		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to set PRAGMA %s: %w", pragma.name, err)
		}
	}

	return nil
}

func isFilePath(dsn string) bool {
	return dsn != ":memory:" && !strings.HasPrefix(dsn, "file:")
}

// createDatabaseFile creates the database file and its directory if missing
func createDatabaseFile(dsn string) error {
	if !isFilePath(dsn) {
		return nil
	}

	dbDir := filepath.Dir(dsn)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
	}

	if _, err := os.Stat(dsn); err == nil {
		return nil
	}

	file, err := os.OpenFile(dsn, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create database file %s: %w", dsn, err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close database file %s: %w", dsn, err)
	}

	return nil
}

var (
	validJournalModes = map[string]bool{
		"DELETE":   true,
		"TRUNCATE": true,
		"PERSIST":  true,
		"MEMORY":   true,
		"WAL":      true,
		"OFF":      true,
	}

	validSyncModes = map[string]bool{
		"OFF":    true,
		"NORMAL": true,
		"FULL":   true,
		"EXTRA":  true,
	}
)

// ValidateConfig validates the SQLite configuration
func ValidateConfig(cfg Config) error {
	if cfg.DSN == "" {
		return fmt.Errorf("DSN cannot be empty")
	}

	if cfg.BusyTimeout < 0 {
		return fmt.Errorf("BusyTimeout cannot be negative")
	}

	if cfg.JournalMode != "" && !validJournalModes[cfg.JournalMode] {
		return fmt.Errorf("invalid journal mode: %s", cfg.JournalMode)
	}

	if cfg.Synchronous != "" && !validSyncModes[cfg.Synchronous] {
		return fmt.Errorf("invalid synchronous mode: %s", cfg.Synchronous)
	}

	return nil
}

// DefaultConfig returns a SQLite configuration with sensible defaults
func DefaultConfig(databasePath string) Config {
	return Config{
		DSN:               databasePath,
		BusyTimeout:       30 * time.Second,
		EnableForeignKeys: true,
		JournalMode:       "WAL",
		Synchronous:       "NORMAL",
		CacheSize:         -2000,
	}
}

// InMemoryTestConfig returns a SQLite configuration optimized for in-memory testing
func InMemoryTestConfig() Config {
	return Config{
		DSN:               ":memory:",
		BusyTimeout:       5 * time.Second,
		EnableForeignKeys: true,
		JournalMode:       "MEMORY",
		Synchronous:       "OFF",
		CacheSize:         -1000,
	}
}

// TempFileTestConfig returns a SQLite configuration for temporary file-based testing
func TempFileTestConfig(tempFilePath string) Config {
	return Config{
		DSN:               tempFilePath,
		BusyTimeout:       5 * time.Second,
		EnableForeignKeys: true,
		JournalMode:       "MEMORY",
		Synchronous:       "OFF",
		CacheSize:         -1000,
	}
}
