package migration_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/tablekeeper/internal/persistence/sqlite/migration"
	"github.com/example/tablekeeper/internal/persistence/sqlite/schema"
	"github.com/example/tablekeeper/internal/testfixtures"
)

func TestRegistry_EnsureMetaIsIdempotent(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := h.Registry.EnsureMeta(ctx); err != nil {
			t.Fatalf("EnsureMeta call %d failed: %v", i+1, err)
		}
	}

	if tables := h.SchemaObjects("table", migration.RegistryTable); len(tables) != 1 {
		t.Errorf("Expected exactly one registry table, got %v", tables)
	}
	if indexes := h.SchemaObjects("index", "idx_"+migration.RegistryTable); len(indexes) != 1 {
		t.Errorf("Expected exactly one registry index, got %v", indexes)
	}
}

func TestRegistry_VersionOnFreshStore(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)

	if version := h.Version("notes"); version != 0 {
		t.Errorf("Expected version 0 on a fresh store, got %d", version)
	}
	if tables := h.SchemaObjects("table", migration.RegistryTable); len(tables) != 0 {
		t.Errorf("Expected Version not to create the registry table, got %v", tables)
	}

	entries, err := h.Registry.Entries(context.Background())
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no entries, got %v", entries)
	}
}

func TestRegistry_SetVersionUpserts(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()

	if err := h.Registry.EnsureMeta(ctx); err != nil {
		t.Fatalf("EnsureMeta failed: %v", err)
	}
	if err := h.Registry.SetVersion(ctx, "notes", 2); err != nil {
		t.Fatalf("SetVersion failed: %v", err)
	}

	later := h.Clock.Advance(time.Hour)
	if err := h.Registry.SetVersion(ctx, "notes", 4); err != nil {
		t.Fatalf("SetVersion failed: %v", err)
	}
	if err := h.Registry.SetVersion(ctx, "archive", 1); err != nil {
		t.Fatalf("SetVersion failed: %v", err)
	}

	if version := h.Version("notes"); version != 4 {
		t.Errorf("Expected version 4, got %d", version)
	}

	entries, err := h.Registry.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Table != "archive" || entries[1].Table != "notes" {
		t.Errorf("Expected entries ordered by table name, got %v", entries)
	}
	if !entries[1].UpdatedAt.Equal(later) {
		t.Errorf("Expected updated_at %v, got %v", later, entries[1].UpdatedAt)
	}
	if stamps := h.Clock.Stamps(); stamps != 3 {
		t.Errorf("Expected one timestamp per write, got %d", stamps)
	}
}

func TestRegistry_SetVersionRejectsNegative(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()

	if err := h.Registry.EnsureMeta(ctx); err != nil {
		t.Fatalf("EnsureMeta failed: %v", err)
	}

	err := h.Registry.SetVersion(ctx, "notes", -1)
	var cfgErr *schema.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigurationError, got %v", err)
	}
	if !errors.Is(err, migration.ErrInvalidTarget) {
		t.Errorf("Expected ErrInvalidTarget, got %v", err)
	}
}

func TestRegistry_ExistingColumns(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()

	columns, err := h.Registry.ExistingColumns(ctx, "notes")
	if err != nil {
		t.Fatalf("ExistingColumns failed: %v", err)
	}
	if len(columns) != 0 {
		t.Errorf("Expected no columns for a missing table, got %v", columns)
	}

	h.Exec(`CREATE TABLE notes (id INTEGER PRIMARY KEY, title TEXT, body TEXT)`)

	columns, err = h.Registry.ExistingColumns(ctx, "notes")
	if err != nil {
		t.Fatalf("ExistingColumns failed: %v", err)
	}
	want := []string{"id", "title", "body"}
	if len(columns) != len(want) {
		t.Fatalf("Expected %v, got %v", want, columns)
	}
	for i := range want {
		if columns[i] != want[i] {
			t.Errorf("Column %d: expected %s, got %s", i, want[i], columns[i])
		}
	}
}
