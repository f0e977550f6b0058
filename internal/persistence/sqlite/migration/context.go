package migration

import (
	"context"

	"github.com/example/tablekeeper/internal/persistence/sqlite"
	"github.com/example/tablekeeper/internal/persistence/sqlite/schema"
)

// tableContext implements MigrationContext for one step of one table.
type tableContext struct {
	table     string
	version   int
	declared  schema.Schema
	db        *sqlite.DB
	rebuilder *Rebuilder
}

func newTableContext(db *sqlite.DB, rebuilder *Rebuilder, table string, version int, declared schema.Schema) *tableContext {
	return &tableContext{
		table:     table,
		version:   version,
		declared:  declared,
		db:        db,
		rebuilder: rebuilder,
	}
}

func (c *tableContext) Table() string {
	return c.table
}

func (c *tableContext) Version() int {
	return c.version
}

func (c *tableContext) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := c.db.Exec(ctx, query, args...); err != nil {
		return NewStatementError(c.table, c.version, PhaseProcedure, &sqlite.BatchError{Statement: query, Err: err})
	}
	return nil
}

func (c *tableContext) ApplyBatch(ctx context.Context, batch Batch) error {
	return wrapPhase(c.table, c.version, PhaseProcedure, c.db.ExecBatch(ctx, batch))
}

func (c *tableContext) ApplyBatchTx(ctx context.Context, batch Batch) error {
	return wrapPhase(c.table, c.version, PhaseProcedure, c.db.ExecBatchTx(ctx, batch))
}

func (c *tableContext) RebuildPreserve(ctx context.Context) (RebuildResult, error) {
	result, err := c.rebuilder.Rebuild(ctx, c.table, c.declared)
	return result, wrapPhase(c.table, c.version, PhaseProcedure, err)
}

func (c *tableContext) Columns(ctx context.Context) ([]string, error) {
	columns, err := c.db.Columns(ctx, c.table)
	return columns, wrapPhase(c.table, c.version, PhaseIntrospect, err)
}
