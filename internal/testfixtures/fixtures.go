package testfixtures

import (
	"time"

	"github.com/example/tablekeeper/internal/persistence/sqlite/migration"
	"github.com/example/tablekeeper/internal/persistence/sqlite/schema"
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// NotesTable is the table name used by most fixtures.
const NotesTable = "notes"

// NotesSchema returns a small declared schema with one column of each common
// type. Extra columns are appended after the defaults.
func NotesSchema(extra ...schema.Column) schema.Schema {
	columns := []schema.Column{
		{Name: "title", Type: schema.Text, Nullable: true},
		{Name: "body", Type: schema.Text, Nullable: true},
		{Name: "pinned", Type: schema.Boolean, Default: false},
	}
	return schema.MustNew(append(columns, extra...)...)
}

// ColumnsSchema returns a declared schema of nullable TEXT columns.
func ColumnsSchema(names ...string) schema.Schema {
	columns := make([]schema.Column, len(names))
	for i, name := range names {
		columns[i] = schema.Column{Name: name, Type: schema.Text, Nullable: true}
	}
	return schema.MustNew(columns...)
}

// PlanOption configures a generated plan.
type PlanOption func(*migration.Plan)

// NewPlan returns a plan targeting version target with optional overrides.
// The after-create batch holds a no-op statement so legacy adoption records
// its version unless a test overrides it.
func NewPlan(target int, opts ...PlanOption) *migration.Plan {
	plan := &migration.Plan{
		Target:      target,
		AfterCreate: migration.Batch{"SELECT 1"},
	}
	for _, opt := range opts {
		opt(plan)
	}
	return plan
}

// WithBeforeCreate sets the before-create batch.
func WithBeforeCreate(stmts ...string) PlanOption {
	return func(p *migration.Plan) {
		p.BeforeCreate = stmts
	}
}

// WithAfterCreateTx sets the transactional after-create batch.
func WithAfterCreateTx(stmts ...string) PlanOption {
	return func(p *migration.Plan) {
		p.AfterCreateTx = stmts
	}
}

// WithAfterCreate sets the non-transactional after-create batch. Passing no
// statements leaves it empty.
func WithAfterCreate(stmts ...string) PlanOption {
	return func(p *migration.Plan) {
		p.AfterCreate = stmts
	}
}

// WithEveryOpen sets the every-open batch.
func WithEveryOpen(stmts ...string) PlanOption {
	return func(p *migration.Plan) {
		p.EveryOpen = stmts
	}
}

// WithSteps appends migration steps.
func WithSteps(steps ...migration.Step) PlanOption {
	return func(p *migration.Plan) {
		p.Steps = append(p.Steps, steps...)
	}
}
