package sqlite

import (
	"context"
	"fmt"
)

const columnsQuery = `SELECT name FROM pragma_table_info(?) ORDER BY cid`

// Columns lists the physical columns of table in declaration order. A table
// that does not exist yields an empty slice.
func (d *DB) Columns(ctx context.Context, table string) ([]string, error) {
	return ListColumns(ctx, d.db, table)
}

// ListColumns is Columns on any querier, including an open transaction.
func ListColumns(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, columnsQuery, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}
	defer rows.Close()

	columns := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate columns of %s: %w", table, err)
	}

	return columns, nil
}

// ForeignKeysEnabled reports the connection's foreign_keys PRAGMA.
func ForeignKeysEnabled(ctx context.Context, q Querier) (bool, error) {
	rows, err := q.QueryContext(ctx, "PRAGMA foreign_keys")
	if err != nil {
		return false, fmt.Errorf("failed to read foreign_keys: %w", err)
	}
	defer rows.Close()

	var enabled int
	if rows.Next() {
		if err := rows.Scan(&enabled); err != nil {
			return false, fmt.Errorf("failed to scan foreign_keys: %w", err)
		}
	}
	return enabled == 1, rows.Err()
}

// SetForeignKeys switches foreign key enforcement for the connection behind
// ex. SQLite ignores the change while a transaction is open.
func SetForeignKeys(ctx context.Context, ex Execer, enabled bool) error {
	value := "OFF"
	if enabled {
		value = "ON"
	}
	if _, err := ex.ExecContext(ctx, "PRAGMA foreign_keys = "+value); err != nil {
		return fmt.Errorf("failed to set foreign_keys %s: %w", value, err)
	}
	return nil
}
