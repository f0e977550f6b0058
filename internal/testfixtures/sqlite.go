package testfixtures

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/tablekeeper/internal/persistence/sqlite"
	"github.com/example/tablekeeper/internal/persistence/sqlite/migration"
	"github.com/example/tablekeeper/internal/persistence/sqlite/schema"
)

// SQLiteHarness bundles a temporary store file with reconciliation
// components wired to a deterministic clock and shadow namer.
type SQLiteHarness struct {
	Path       string
	DB         *sqlite.DB
	Clock      *Clock
	Shadows    *ShadowNames
	Registry   *migration.Registry
	Rebuilder  *migration.Rebuilder
	Reconciler *migration.Reconciler

	tb      testing.TB
	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens a store in a temporary directory. Callers may
// optionally invoke Close, but the helper also registers a cleanup callback
// with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "store.db")
	db, err := sqlite.Open(context.Background(), sqlite.TempFileTestConfig(path))
	if err != nil {
		tb.Fatalf("failed to open store: %v", err)
	}

	clock := NewClock(ReferenceTime())
	shadows := NewShadowNames()
	registry := migration.NewRegistry(db, clock.NowFunc())
	rebuilder := migration.NewRebuilder(db, shadows.NextFunc(), nil)

	harness := &SQLiteHarness{
		Path:       path,
		DB:         db,
		Clock:      clock,
		Shadows:    shadows,
		Registry:   registry,
		Rebuilder:  rebuilder,
		Reconciler: migration.NewReconcilerWith(db, registry, rebuilder, nil),
		tb:         tb,
		cleanup: func() {
			_ = db.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// Exec runs statements in order and fails the test on the first error.
func (h *SQLiteHarness) Exec(stmts ...string) {
	h.tb.Helper()
	for _, stmt := range stmts {
		if _, err := h.DB.Exec(context.Background(), stmt); err != nil {
			h.tb.Fatalf("failed to exec %q: %v", stmt, err)
		}
	}
}

// Columns returns the physical columns of table.
func (h *SQLiteHarness) Columns(table string) []string {
	h.tb.Helper()
	columns, err := h.DB.Columns(context.Background(), table)
	if err != nil {
		h.tb.Fatalf("failed to list columns of %s: %v", table, err)
	}
	return columns
}

// Version returns the registry version of table.
func (h *SQLiteHarness) Version(table string) int {
	h.tb.Helper()
	version, err := h.Registry.Version(context.Background(), table)
	if err != nil {
		h.tb.Fatalf("failed to read version of %s: %v", table, err)
	}
	return version
}

// Count returns the number of rows of table.
func (h *SQLiteHarness) Count(table string) int {
	h.tb.Helper()
	var n int
	query := "SELECT COUNT(*) FROM " + schema.QuoteIdent(table)
	if err := h.DB.QueryRow(context.Background(), query).Scan(&n); err != nil {
		h.tb.Fatalf("failed to count rows of %s: %v", table, err)
	}
	return n
}

// Strings returns column of table for every row ordered by the identity
// column. NULL values are returned as "<nil>".
func (h *SQLiteHarness) Strings(table, column string) []string {
	h.tb.Helper()
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		schema.QuoteIdent(column), schema.QuoteIdent(table), schema.QuoteIdent(schema.ReservedColumn))
	rows, err := h.DB.Query(context.Background(), query)
	if err != nil {
		h.tb.Fatalf("failed to query %s.%s: %v", table, column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			h.tb.Fatalf("failed to scan %s.%s: %v", table, column, err)
		}
		switch typed := v.(type) {
		case nil:
			values = append(values, "<nil>")
		case []byte:
			values = append(values, string(typed))
		default:
			values = append(values, fmt.Sprint(typed))
		}
	}
	if err := rows.Err(); err != nil {
		h.tb.Fatalf("failed to iterate %s.%s: %v", table, column, err)
	}
	return values
}

// SchemaObjects returns the names of sqlite_master entries of the given type
// whose name starts with prefix.
func (h *SQLiteHarness) SchemaObjects(kind, prefix string) []string {
	h.tb.Helper()
	rows, err := h.DB.Query(context.Background(),
		"SELECT name FROM sqlite_master WHERE type = ? ORDER BY name", kind)
	if err != nil {
		h.tb.Fatalf("failed to query sqlite_master: %v", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			h.tb.Fatalf("failed to scan sqlite_master: %v", err)
		}
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	if err := rows.Err(); err != nil {
		h.tb.Fatalf("failed to iterate sqlite_master: %v", err)
	}
	return names
}
