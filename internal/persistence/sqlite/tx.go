package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Execer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// TransactionFunc represents a function that executes within a transaction
type TransactionFunc func(tx *sql.Tx) error

// WithTransaction executes a function within a database transaction
// If the function returns an error, the transaction is rolled back
// Otherwise, the transaction is committed
func (d *DB) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	return withTx(ctx, d.db, fn)
}

// WithConnTransaction is WithTransaction on a pinned connection.
func WithConnTransaction(ctx context.Context, conn *sql.Conn, fn TransactionFunc) error {
	return withTx(ctx, conn, fn)
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

func withTx(ctx context.Context, b txBeginner, fn TransactionFunc) (err error) {
	tx, err := b.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ExecBatch runs stmts in order outside a transaction. Statements that ran
// before a failure stay applied.
func (d *DB) ExecBatch(ctx context.Context, stmts []string) error {
	return ExecStatements(ctx, d.db, stmts)
}

// ExecBatchTx runs stmts in order as one atomic unit. An empty batch does
// not open a transaction.
func (d *DB) ExecBatchTx(ctx context.Context, stmts []string) error {
	if countStatements(stmts) == 0 {
		return nil
	}
	return d.WithTransaction(ctx, func(tx *sql.Tx) error {
		return ExecStatements(ctx, tx, stmts)
	})
}

// ExecStatements runs stmts in order on ex, skipping blank entries. The first
// failure is returned as a *BatchError.
func ExecStatements(ctx context.Context, ex Execer, stmts []string) error {
	for i, stmt := range stmts {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := ex.ExecContext(ctx, stmt); err != nil {
			return &BatchError{Index: i, Statement: stmt, Err: err}
		}
	}
	return nil
}

func countStatements(stmts []string) int {
	n := 0
	for _, stmt := range stmts {
		if strings.TrimSpace(stmt) != "" {
			n++
		}
	}
	return n
}
