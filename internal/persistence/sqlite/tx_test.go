package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

func openMemory(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), InMemoryTestConfig())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func countRows(t *testing.T, db *DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return n
}

func TestExecBatchTx_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	if _, err := db.Exec(ctx, "CREATE TABLE items (name TEXT)"); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	err := db.ExecBatchTx(ctx, []string{
		"INSERT INTO items (name) VALUES ('a')",
		"INSERT INTO missing_table (name) VALUES ('b')",
	})
	if err == nil {
		t.Fatal("Expected batch to fail")
	}

	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("Expected *BatchError, got %T", err)
	}
	if batchErr.Index != 1 {
		t.Errorf("Expected failing index 1, got %d", batchErr.Index)
	}

	if n := countRows(t, db, "items"); n != 0 {
		t.Errorf("Expected rollback to leave 0 rows, got %d", n)
	}
}

func TestExecBatch_KeepsEarlierStatements(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	err := db.ExecBatch(ctx, []string{
		"CREATE TABLE items (name TEXT)",
		"INSERT INTO items (name) VALUES ('a')",
		"   ",
		"INSERT INTO nowhere VALUES (1)",
	})
	if err == nil {
		t.Fatal("Expected batch to fail")
	}

	if n := countRows(t, db, "items"); n != 1 {
		t.Errorf("Expected non-transactional statements to persist, got %d rows", n)
	}
}

func TestExecBatchTx_EmptyBatch(t *testing.T) {
	db := openMemory(t)

	if err := db.ExecBatchTx(context.Background(), []string{"", "  "}); err != nil {
		t.Errorf("Expected empty batch to succeed, got %v", err)
	}
}

func TestWithTransaction_Commit(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	err := db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "CREATE TABLE items (name TEXT)"); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "INSERT INTO items (name) VALUES ('a')")
		return err
	})
	if err != nil {
		t.Fatalf("Expected transaction to commit, got %v", err)
	}

	if n := countRows(t, db, "items"); n != 1 {
		t.Errorf("Expected 1 row, got %d", n)
	}
}

func TestColumns(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	columns, err := db.Columns(ctx, "absent")
	if err != nil {
		t.Fatalf("Failed to list columns: %v", err)
	}
	if len(columns) != 0 {
		t.Errorf("Expected no columns for missing table, got %v", columns)
	}

	if _, err := db.Exec(ctx, `CREATE TABLE "odd name" (z TEXT, a INTEGER, m REAL)`); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	columns, err = db.Columns(ctx, "odd name")
	if err != nil {
		t.Fatalf("Failed to list columns: %v", err)
	}
	want := []string{"z", "a", "m"}
	if len(columns) != len(want) {
		t.Fatalf("Expected %v, got %v", want, columns)
	}
	for i := range want {
		if columns[i] != want[i] {
			t.Errorf("Column %d: expected %s, got %s", i, want[i], columns[i])
		}
	}
}

func TestErrorKind(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	if _, err := db.Exec(ctx, "CREATE TABLE items (name TEXT UNIQUE)"); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	if _, err := db.Exec(ctx, "INSERT INTO items (name) VALUES ('a')"); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	_, err := db.Exec(ctx, "INSERT INTO items (name) VALUES ('a')")
	if kind := ErrorKind(err); kind != "constraint" {
		t.Errorf("Expected constraint kind, got %q (%v)", kind, err)
	}

	if kind := ErrorKind(sql.ErrNoRows); kind != "not_found" {
		t.Errorf("Expected not_found kind, got %q", kind)
	}

	if kind := ErrorKind(nil); kind != "" {
		t.Errorf("Expected empty kind for nil, got %q", kind)
	}
}
