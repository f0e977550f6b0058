package migration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/tablekeeper/internal/persistence/sqlite/schema"
)

// Batch is an ordered list of SQL statements.
type Batch []string

// Empty reports whether the batch has no non-blank statement.
func (b Batch) Empty() bool {
	for _, stmt := range b {
		if strings.TrimSpace(stmt) != "" {
			return false
		}
	}
	return true
}

// Strategy selects how a step changes the table structure.
type Strategy string

const (
	// StrategyAlter leaves structural changes to the step's own statements
	StrategyAlter Strategy = "alter"

	// StrategyRebuild rebuilds the table before the step's transactional batch
	StrategyRebuild Strategy = "rebuild"
)

// Procedure is custom step logic. It only reaches the store through mc.
type Procedure func(ctx context.Context, mc MigrationContext) error

// Step is one versioned unit of schema change.
type Step struct {
	To       int      // Version reached when the step succeeds
	Pre      Batch    // Runs outside a transaction, never rolled back
	Tx       Batch    // Runs as one atomic unit
	Post     Batch    // Runs outside a transaction after Tx and Proc
	Strategy Strategy // Empty means StrategyAlter
	Proc     Procedure

	Description string // Human-readable description for logs
	Checksum    string // Checksum of the step's source files, if loaded from disk
}

// Plan is the versioned DDL plan a managed table is reconciled against.
type Plan struct {
	Target        int   // Version the table must end at
	BeforeCreate  Batch // Before table creation, no transaction
	AfterCreateTx Batch // Inside the creation transaction
	AfterCreate   Batch // After creation, no transaction
	EveryOpen     Batch // On every open, no transaction
	Steps         []Step
}

// Validate checks the plan for declarations that can never be applied.
func (p *Plan) Validate() error {
	if p.Target <= 0 {
		return schema.NewConfigurationError("target",
			fmt.Errorf("%w: target version must be positive, got %d", ErrInvalidTarget, p.Target))
	}

	seen := make(map[int]bool, len(p.Steps))
	for i, step := range p.Steps {
		field := fmt.Sprintf("steps[%d]", i)
		if step.To < 1 || step.To > p.Target {
			return schema.NewConfigurationError(field,
				fmt.Errorf("%w: step targets version %d outside 1..%d", ErrInvalidStep, step.To, p.Target))
		}
		if seen[step.To] {
			return schema.NewConfigurationError(field,
				fmt.Errorf("%w: version %d", ErrDuplicateStep, step.To))
		}
		switch step.Strategy {
		case "", StrategyAlter, StrategyRebuild:
		default:
			return schema.NewConfigurationError(field,
				fmt.Errorf("%w: unknown strategy %q", ErrInvalidStep, step.Strategy))
		}
		seen[step.To] = true
	}

	return nil
}

// Warnings lists plan properties that are valid but probably unintended.
func (p *Plan) Warnings() []string {
	var warnings []string
	if p.AfterCreate.Empty() {
		warnings = append(warnings,
			"after_create batch is empty: an adopted legacy table will not have its version recorded and is re-adopted on every open")
	}
	return warnings
}

// Step returns the step declared for version v.
func (p *Plan) Step(v int) (Step, bool) {
	for _, step := range p.Steps {
		if step.To == v {
			return step, true
		}
	}
	return Step{}, false
}

// Entry is one row of the registry.
type Entry struct {
	Table     string
	Version   int
	UpdatedAt time.Time
}

// RebuildResult describes what a rebuild did to the column layout.
type RebuildResult struct {
	Shadow  string   // Name the new layout was built under
	Kept    []string // Declared columns whose values were copied
	Dropped []string // Old columns removed with their data
	Added   []string // Declared columns that start out at their default
}

// MigrationContext is the capability set a custom step procedure gets. Every
// operation is scoped to the table being migrated.
type MigrationContext interface {
	// Table returns the name of the table being migrated
	Table() string

	// Version returns the version the running step migrates to
	Version() int

	// Exec runs one statement outside a transaction
	Exec(ctx context.Context, query string, args ...any) error

	// ApplyBatch runs statements in order outside a transaction
	ApplyBatch(ctx context.Context, batch Batch) error

	// ApplyBatchTx runs statements as one atomic unit
	ApplyBatchTx(ctx context.Context, batch Batch) error

	// RebuildPreserve rebuilds the table to the declared schema keeping
	// values of intersecting columns
	RebuildPreserve(ctx context.Context) (RebuildResult, error)

	// Columns lists the table's physical columns
	Columns(ctx context.Context) ([]string, error)
}
