package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/tablekeeper/internal/persistence/sqlite"
	"github.com/example/tablekeeper/internal/persistence/sqlite/schema"
)

const (
	// RegistryTable is the backing table shared by every managed table of a store file
	RegistryTable = "_tablekeeper_registry"

	registryIndex = "idx__tablekeeper_registry_version"
)

var (
	createRegistrySQL = `
		CREATE TABLE IF NOT EXISTS ` + RegistryTable + ` (
			table_name TEXT PRIMARY KEY,
			version INTEGER NOT NULL DEFAULT 0 CHECK (version >= 0),
			updated_at TEXT NOT NULL
		)
	`
	createRegistryIndexSQL = `CREATE INDEX IF NOT EXISTS ` + registryIndex + ` ON ` + RegistryTable + ` (version)`

	selectVersionSQL = `SELECT version FROM ` + RegistryTable + ` WHERE table_name = ?`

	upsertVersionSQL = `
		INSERT INTO ` + RegistryTable + ` (table_name, version, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (table_name) DO UPDATE SET
			version = excluded.version,
			updated_at = excluded.updated_at
	`

	selectEntriesSQL = `SELECT table_name, version, updated_at FROM ` + RegistryTable + ` ORDER BY table_name ASC`
)

// Registry is the persistent table name → schema version bookkeeping of one
// store file. It also introspects the physical columns of any table.
type Registry struct {
	db  *sqlite.DB
	now func() time.Time
}

// NewRegistry creates a registry over db. A nil now uses time.Now.
func NewRegistry(db *sqlite.DB, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{db: db, now: now}
}

// EnsureMeta creates the registry table and its version index if they do
// not exist yet. It is safe to call on every open.
func (r *Registry) EnsureMeta(ctx context.Context) error {
	err := r.db.ExecBatch(ctx, []string{createRegistrySQL, createRegistryIndexSQL})
	if err != nil {
		return NewStatementError(RegistryTable, 0, PhaseEnsureMeta, err)
	}
	return nil
}

// Version returns the recorded version of table, 0 when it has no entry.
func (r *Registry) Version(ctx context.Context, table string) (int, error) {
	present, err := r.metaPresent(ctx)
	if err != nil || !present {
		return 0, err
	}

	var version int
	err = r.db.QueryRow(ctx, selectVersionSQL, table).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, NewStatementError(table, 0, PhaseRegistry, fmt.Errorf("failed to read version: %w", err))
	}
	return version, nil
}

// SetVersion upserts the entry for table and refreshes its timestamp. It does
// not enforce monotonicity; callers own that invariant. EnsureMeta must have
// run first.
func (r *Registry) SetVersion(ctx context.Context, table string, version int) error {
	if version < 0 {
		return schema.NewConfigurationError("version",
			fmt.Errorf("%w: negative version %d", ErrInvalidTarget, version))
	}

	updatedAt := r.now().UTC().Format(time.RFC3339Nano)
	if _, err := r.db.Exec(ctx, upsertVersionSQL, table, version, updatedAt); err != nil {
		return NewStatementError(table, version, PhaseRegistry, fmt.Errorf("failed to record version: %w", err))
	}
	return nil
}

// ExistingColumns lists the physical columns of table in order. A missing
// table yields an empty slice.
func (r *Registry) ExistingColumns(ctx context.Context, table string) ([]string, error) {
	columns, err := r.db.Columns(ctx, table)
	if err != nil {
		return nil, NewStatementError(table, 0, PhaseIntrospect, err)
	}
	return columns, nil
}

// Entries returns every registry entry ordered by table name.
func (r *Registry) Entries(ctx context.Context) ([]Entry, error) {
	present, err := r.metaPresent(ctx)
	if err != nil || !present {
		return nil, err
	}

	rows, err := r.db.Query(ctx, selectEntriesSQL)
	if err != nil {
		return nil, NewStatementError(RegistryTable, 0, PhaseRegistry, fmt.Errorf("failed to list entries: %w", err))
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var updatedAt string
		if err := rows.Scan(&entry.Table, &entry.Version, &updatedAt); err != nil {
			return nil, NewStatementError(RegistryTable, 0, PhaseRegistry, fmt.Errorf("failed to scan entry: %w", err))
		}
		entry.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			return nil, NewInconsistentStateError(RegistryTable,
				fmt.Sprintf("entry %s has malformed updated_at %q", entry.Table, updatedAt))
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStatementError(RegistryTable, 0, PhaseRegistry, fmt.Errorf("failed to iterate entries: %w", err))
	}

	return entries, nil
}

func (r *Registry) metaPresent(ctx context.Context) (bool, error) {
	columns, err := r.db.Columns(ctx, RegistryTable)
	if err != nil {
		return false, NewStatementError(RegistryTable, 0, PhaseIntrospect, err)
	}
	return len(columns) > 0, nil
}
