package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/tablekeeper/internal/logging"
	"github.com/example/tablekeeper/internal/persistence/sqlite"
	"github.com/example/tablekeeper/internal/persistence/sqlite/schema"
)

// Runner advances a table one declared step at a time, persisting the
// version after each step so an interrupted sequence resumes from the last
// committed version.
type Runner struct {
	db        *sqlite.DB
	registry  *Registry
	rebuilder *Rebuilder
	logger    *slog.Logger
}

// NewRunner creates a Runner
func NewRunner(db *sqlite.DB, registry *Registry, rebuilder *Rebuilder, logger *slog.Logger) *Runner {
	return &Runner{
		db:        db,
		registry:  registry,
		rebuilder: rebuilder,
		logger:    logger,
	}
}

// Run executes versions from+1 through plan.Target in order. Versions
// without a declared step fall back to a rebuild. The first failure aborts
// the sequence and leaves the failing step's version unrecorded.
func (r *Runner) Run(ctx context.Context, table string, declared schema.Schema, from int, plan *Plan) error {
	logger := logging.Component(ctx, r.logger, "migration_runner", "table", table)
	startTime := time.Now()

	logger.Info("starting migration sequence", "from", from, "target", plan.Target)

	for v := from + 1; v <= plan.Target; v++ {
		stepStart := time.Now()
		stepLogger := logger.With("version", v)

		step, ok := plan.Step(v)
		if !ok {
			stepLogger.Warn("no step declared, falling back to rebuild; indexes and triggers are not recreated")
			if _, err := r.rebuilder.Rebuild(ctx, table, declared); err != nil {
				return r.fail(stepLogger, wrapPhase(table, v, PhaseRebuild, err))
			}
		} else {
			stepLogger.Info("executing step",
				"description", step.Description,
				"strategy", string(step.Strategy),
				"checksum", step.Checksum,
			)
			if err := r.runStep(ctx, table, declared, step); err != nil {
				return r.fail(stepLogger, err)
			}
		}

		if err := r.registry.SetVersion(ctx, table, v); err != nil {
			return r.fail(stepLogger, err)
		}

		stepLogger.Info("step completed", "duration", time.Since(stepStart))
	}

	logger.Info("migration sequence completed",
		"steps", plan.Target-from,
		"duration", time.Since(startTime),
	)
	return nil
}

func (r *Runner) runStep(ctx context.Context, table string, declared schema.Schema, step Step) error {
	v := step.To

	if err := r.db.ExecBatch(ctx, step.Pre); err != nil {
		return wrapPhase(table, v, PhasePre, err)
	}

	if step.Strategy == StrategyRebuild {
		if _, err := r.rebuilder.Rebuild(ctx, table, declared); err != nil {
			return wrapPhase(table, v, PhaseRebuild, err)
		}
	}

	if err := r.db.ExecBatchTx(ctx, step.Tx); err != nil {
		return wrapPhase(table, v, PhaseTx, err)
	}

	if step.Proc != nil {
		mc := newTableContext(r.db, r.rebuilder, table, v, declared)
		if err := step.Proc(ctx, mc); err != nil {
			return wrapPhase(table, v, PhaseProcedure, fmt.Errorf("procedure failed: %w", err))
		}
	}

	if err := r.db.ExecBatch(ctx, step.Post); err != nil {
		return wrapPhase(table, v, PhasePost, err)
	}

	return nil
}

func (r *Runner) fail(logger *slog.Logger, err error) error {
	attrs := []any{"error", err, "error_kind", ErrorKind(err)}
	var stmtErr *StatementError
	if errors.As(err, &stmtErr) {
		attrs = append(attrs, "phase", string(stmtErr.Phase))
		if stmtErr.Statement != "" {
			attrs = append(attrs, "statement", stmtErr.Statement)
		}
	}
	logger.Error("migration step failed; version not recorded", attrs...)
	return err
}
