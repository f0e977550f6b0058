package migration_test

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/example/tablekeeper/internal/persistence/sqlite"
	"github.com/example/tablekeeper/internal/persistence/sqlite/migration"
	"github.com/example/tablekeeper/internal/persistence/sqlite/schema"
	"github.com/example/tablekeeper/internal/testfixtures"
)

func TestRebuilder_PreservesIntersectingColumns(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()

	h.Exec(
		`CREATE TABLE notes (id INTEGER PRIMARY KEY AUTOINCREMENT, a TEXT, b TEXT)`,
		`INSERT INTO notes (a, b) VALUES ('a1', 'b1'), ('a2', 'b2')`,
	)

	result, err := h.Rebuilder.Rebuild(ctx, "notes", testfixtures.ColumnsSchema("a", "c"))
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if result.Shadow != "notes__shadow_1" {
		t.Errorf("Expected shadow notes__shadow_1, got %s", result.Shadow)
	}
	if !reflect.DeepEqual(result.Kept, []string{"a"}) {
		t.Errorf("Expected kept [a], got %v", result.Kept)
	}
	if !reflect.DeepEqual(result.Dropped, []string{"b"}) {
		t.Errorf("Expected dropped [b], got %v", result.Dropped)
	}
	if !reflect.DeepEqual(result.Added, []string{"c"}) {
		t.Errorf("Expected added [c], got %v", result.Added)
	}

	if got := h.Columns("notes"); !reflect.DeepEqual(got, []string{"id", "a", "c"}) {
		t.Errorf("Expected columns [id a c], got %v", got)
	}
	if got := h.Strings("notes", "a"); !reflect.DeepEqual(got, []string{"a1", "a2"}) {
		t.Errorf("Expected a values to survive, got %v", got)
	}
	if got := h.Strings("notes", "c"); !reflect.DeepEqual(got, []string{"<nil>", "<nil>"}) {
		t.Errorf("Expected new column to be NULL, got %v", got)
	}
	if got := h.Strings("notes", "id"); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Errorf("Expected identity values to survive, got %v", got)
	}
	if leftovers := h.SchemaObjects("table", "notes__"); len(leftovers) != 0 {
		t.Errorf("Expected no shadow table to remain, got %v", leftovers)
	}
}

func TestRebuilder_AddsIdentityToTableWithout(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)

	h.Exec(
		`CREATE TABLE notes (a TEXT, b TEXT)`,
		`INSERT INTO notes (a, b) VALUES ('a1', 'b1'), ('a2', 'b2')`,
	)

	if _, err := h.Rebuilder.Rebuild(context.Background(), "notes", testfixtures.ColumnsSchema("b", "a")); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if got := h.Columns("notes"); !reflect.DeepEqual(got, []string{"id", "b", "a"}) {
		t.Errorf("Expected columns [id b a], got %v", got)
	}
	if got := h.Strings("notes", "b"); !reflect.DeepEqual(got, []string{"b1", "b2"}) {
		t.Errorf("Expected b values to survive, got %v", got)
	}
}

func TestRebuilder_DisjointColumnsDropRows(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)

	h.Exec(
		`CREATE TABLE notes (id INTEGER PRIMARY KEY AUTOINCREMENT, x TEXT)`,
		`INSERT INTO notes (x) VALUES ('x1')`,
	)

	result, err := h.Rebuilder.Rebuild(context.Background(), "notes", testfixtures.ColumnsSchema("y"))
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if len(result.Kept) != 0 {
		t.Errorf("Expected nothing kept, got %v", result.Kept)
	}
	if n := h.Count("notes"); n != 0 {
		t.Errorf("Expected rows to be dropped when no declared column survives, got %d", n)
	}
}

func TestRebuilder_CreatesMissingTable(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)

	if _, err := h.Rebuilder.Rebuild(context.Background(), "notes", testfixtures.NotesSchema()); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if got := h.Columns("notes"); !reflect.DeepEqual(got, []string{"id", "title", "body", "pinned"}) {
		t.Errorf("Unexpected columns %v", got)
	}
}

func TestRebuilder_ForeignKeysRestored(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()

	h.Exec(
		`CREATE TABLE notes (id INTEGER PRIMARY KEY AUTOINCREMENT, a TEXT)`,
		`CREATE TABLE comments (id INTEGER PRIMARY KEY, note_id INTEGER REFERENCES notes (id))`,
		`INSERT INTO notes (a) VALUES ('a1')`,
		`INSERT INTO comments (note_id) VALUES (1)`,
	)

	if _, err := h.Rebuilder.Rebuild(ctx, "notes", testfixtures.ColumnsSchema("a", "b")); err != nil {
		t.Fatalf("Rebuild with a referencing table failed: %v", err)
	}

	enabled, err := sqlite.ForeignKeysEnabled(ctx, h.DB.SQL())
	if err != nil {
		t.Fatalf("ForeignKeysEnabled failed: %v", err)
	}
	if !enabled {
		t.Error("Expected foreign key enforcement to be restored after rebuild")
	}
	if n := h.Count("comments"); n != 1 {
		t.Errorf("Expected referencing rows to remain, got %d", n)
	}
	if got := h.Strings("notes", "id"); !reflect.DeepEqual(got, []string{"1"}) {
		t.Errorf("Expected referenced identity to survive, got %v", got)
	}
}

func TestRebuilder_FailureLeavesTableIntact(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)

	h.Exec(
		`CREATE TABLE notes (id INTEGER PRIMARY KEY AUTOINCREMENT, a TEXT)`,
		`INSERT INTO notes (a) VALUES (NULL)`,
	)

	// NOT NULL without a default, so copying the NULL row fails inside the transaction
	notNull := schema.MustNew(schema.Column{Name: "a", Type: schema.Text})

	_, err := h.Rebuilder.Rebuild(context.Background(), "notes", notNull)
	if err == nil {
		t.Fatal("Expected rebuild to fail on NOT NULL violation")
	}
	if migration.ErrorKind(err) != "statement/constraint" {
		t.Errorf("Expected statement/constraint kind, got %s (%v)", migration.ErrorKind(err), err)
	}
	if !strings.Contains(err.Error(), "rebuild") {
		t.Errorf("Expected error to name the rebuild phase, got %v", err)
	}

	if got := h.Columns("notes"); !reflect.DeepEqual(got, []string{"id", "a"}) {
		t.Errorf("Expected original layout after failed rebuild, got %v", got)
	}
	if leftovers := h.SchemaObjects("table", "notes__"); len(leftovers) != 0 {
		t.Errorf("Expected shadow table to be rolled back, got %v", leftovers)
	}
}
