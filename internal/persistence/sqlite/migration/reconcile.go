package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/tablekeeper/internal/logging"
	"github.com/example/tablekeeper/internal/persistence/sqlite"
	"github.com/example/tablekeeper/internal/persistence/sqlite/schema"
)

// Path names the branch a reconciliation took.
type Path string

const (
	PathUnmanaged Path = "unmanaged"
	PathBootstrap Path = "bootstrap"
	PathLegacy    Path = "legacy"
	PathMigrate   Path = "migrate"
	PathRebuild   Path = "rebuild"
	PathCurrent   Path = "current"
)

// Outcome summarizes one reconciliation.
type Outcome struct {
	Table string
	Path  Path
	From  int // Registry version before reconciling
	To    int // Registry version after reconciling
}

// Reconciler decides, once per open, how a table gets from its recorded
// version and physical layout to the declared plan.
type Reconciler struct {
	db        *sqlite.DB
	registry  *Registry
	rebuilder *Rebuilder
	runner    *Runner
	logger    *slog.Logger
}

// NewReconciler creates a Reconciler with a default registry and rebuilder
func NewReconciler(db *sqlite.DB, logger *slog.Logger) *Reconciler {
	return NewReconcilerWith(db, NewRegistry(db, nil), NewRebuilder(db, nil, logger), logger)
}

// NewReconcilerWith creates a Reconciler over the given collaborators
func NewReconcilerWith(db *sqlite.DB, registry *Registry, rebuilder *Rebuilder, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		db:        db,
		registry:  registry,
		rebuilder: rebuilder,
		runner:    NewRunner(db, registry, rebuilder, logger),
		logger:    logger,
	}
}

// Registry returns the registry the reconciler records versions in
func (r *Reconciler) Registry() *Registry {
	return r.registry
}

// Reconcile brings table in line with the declared schema and plan. A nil
// plan leaves the table unmanaged: it is created when missing and otherwise
// left exactly as found.
func (r *Reconciler) Reconcile(ctx context.Context, table string, declared schema.Schema, plan *Plan) (Outcome, error) {
	logger := logging.Component(ctx, r.logger, "reconcile", "table", table)
	startTime := time.Now()
	outcome := Outcome{Table: table}

	if strings.TrimSpace(table) == "" {
		return outcome, schema.NewConfigurationError("table", fmt.Errorf("table name cannot be empty"))
	}
	if declared.Len() == 0 {
		return outcome, schema.NewConfigurationError("columns", schema.ErrEmptySchema)
	}

	if plan == nil {
		outcome.Path = PathUnmanaged
		err := r.unmanaged(ctx, table, declared)
		return outcome, r.finish(logger, outcome, startTime, err)
	}

	if err := plan.Validate(); err != nil {
		return outcome, r.finish(logger, outcome, startTime, err)
	}
	if err := r.registry.EnsureMeta(ctx); err != nil {
		return outcome, r.finish(logger, outcome, startTime, err)
	}

	version, err := r.registry.Version(ctx, table)
	if err != nil {
		return outcome, r.finish(logger, outcome, startTime, err)
	}
	columns, err := r.registry.ExistingColumns(ctx, table)
	if err != nil {
		return outcome, r.finish(logger, outcome, startTime, err)
	}
	outcome.From = version
	outcome.To = version

	logger.Debug("inspected table", "version", version, "target", plan.Target, "columns", columns)

	switch {
	case version > 0 && len(columns) == 0:
		err = NewInconsistentStateError(table,
			fmt.Sprintf("registry records version %d but the table has no columns", version))

	case version == 0 && len(columns) == 0:
		outcome.Path = PathBootstrap
		err = r.bootstrap(ctx, logger, table, declared, plan)
		if err == nil {
			outcome.To = plan.Target
		}

	case version == 0:
		outcome.Path = PathLegacy
		var recorded bool
		recorded, err = r.adopt(ctx, logger, table, declared, columns, plan)
		if err == nil && recorded {
			outcome.To = plan.Target
		}

	case version < plan.Target && len(plan.Steps) > 0:
		outcome.Path = PathMigrate
		err = r.runner.Run(ctx, table, declared, version, plan)
		if err == nil {
			outcome.To = plan.Target
		}

	case version < plan.Target:
		outcome.Path = PathRebuild
		err = r.rebuildToTarget(ctx, logger, table, declared, plan)
		if err == nil {
			outcome.To = plan.Target
		}

	default:
		outcome.Path = PathCurrent
		if version > plan.Target {
			logger.Warn("recorded version is ahead of the plan target; leaving table untouched",
				"version", version, "target", plan.Target)
		}
	}

	if err == nil {
		err = wrapPhase(table, 0, PhaseEveryOpen, r.db.ExecBatch(ctx, plan.EveryOpen))
	}

	return outcome, r.finish(logger, outcome, startTime, err)
}

func (r *Reconciler) unmanaged(ctx context.Context, table string, declared schema.Schema) error {
	columns, err := r.registry.ExistingColumns(ctx, table)
	if err != nil {
		return err
	}
	if len(columns) > 0 {
		return nil
	}
	if _, err := r.db.Exec(ctx, declared.CreateTableSQL(table)); err != nil {
		return NewStatementError(table, 0, PhaseCreate, err)
	}
	return nil
}

func (r *Reconciler) bootstrap(ctx context.Context, logger *slog.Logger, table string, declared schema.Schema, plan *Plan) error {
	if err := r.db.ExecBatch(ctx, plan.BeforeCreate); err != nil {
		return NewStatementError(table, 0, PhaseBeforeCreate, err)
	}

	err := r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, declared.CreateTableSQL(table)); err != nil {
			return NewStatementError(table, 0, PhaseCreate, err)
		}
		if err := sqlite.ExecStatements(ctx, tx, plan.AfterCreateTx); err != nil {
			return NewStatementError(table, 0, PhaseAfterCreateTx, err)
		}
		return nil
	})
	if err != nil {
		return wrapPhase(table, 0, PhaseCreate, err)
	}

	if err := r.db.ExecBatch(ctx, plan.AfterCreate); err != nil {
		return NewStatementError(table, 0, PhaseAfterCreate, err)
	}

	r.checkLayout(ctx, logger, table, declared)
	return r.registry.SetVersion(ctx, table, plan.Target)
}

// adopt takes over a table that exists without a registry entry. The version
// is recorded only when the plan's after-create batch is non-empty; the
// reported bool says whether it was.
func (r *Reconciler) adopt(ctx context.Context, logger *slog.Logger, table string, declared schema.Schema, columns []string, plan *Plan) (bool, error) {
	if declared.SameColumns(columns) {
		logger.Info("adopting legacy table with matching columns")
	} else {
		logger.Info("adopting legacy table with diverging columns", "existing", columns, "declared", declared.Names())
		if _, err := r.rebuilder.Rebuild(ctx, table, declared); err != nil {
			return false, err
		}
	}

	if err := r.db.ExecBatchTx(ctx, plan.AfterCreateTx); err != nil {
		return false, NewStatementError(table, 0, PhaseAfterCreateTx, err)
	}

	if plan.AfterCreate.Empty() {
		logger.Warn("after_create batch is empty; legacy table version not recorded and will be re-adopted on next open",
			"target", plan.Target)
		return false, nil
	}

	if err := r.db.ExecBatch(ctx, plan.AfterCreate); err != nil {
		return false, NewStatementError(table, 0, PhaseAfterCreate, err)
	}
	if err := r.registry.SetVersion(ctx, table, plan.Target); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Reconciler) rebuildToTarget(ctx context.Context, logger *slog.Logger, table string, declared schema.Schema, plan *Plan) error {
	if _, err := r.rebuilder.Rebuild(ctx, table, declared); err != nil {
		return err
	}
	if err := r.db.ExecBatchTx(ctx, plan.AfterCreateTx); err != nil {
		return NewStatementError(table, 0, PhaseAfterCreateTx, err)
	}
	if err := r.db.ExecBatch(ctx, plan.AfterCreate); err != nil {
		return NewStatementError(table, 0, PhaseAfterCreate, err)
	}
	r.checkLayout(ctx, logger, table, declared)
	return r.registry.SetVersion(ctx, table, plan.Target)
}

// checkLayout warns when after-create statements left the physical columns
// different from the declared set. The layout is still recorded as target.
func (r *Reconciler) checkLayout(ctx context.Context, logger *slog.Logger, table string, declared schema.Schema) {
	columns, err := r.registry.ExistingColumns(ctx, table)
	if err != nil {
		logger.Warn("could not inspect columns after create", "error", err)
		return
	}
	if !declared.SameColumns(columns) {
		logger.Warn("physical columns differ from declared columns after create",
			"existing", columns, "declared", declared.Names())
	}
}

func (r *Reconciler) finish(logger *slog.Logger, outcome Outcome, startTime time.Time, err error) error {
	if err != nil {
		logger.Error("reconcile failed",
			"path", string(outcome.Path),
			"error", err,
			"error_kind", ErrorKind(err),
			"duration", time.Since(startTime),
		)
		return err
	}
	logger.Info("reconcile completed",
		"path", string(outcome.Path),
		"from", outcome.From,
		"to", outcome.To,
		"duration", time.Since(startTime),
	)
	return nil
}
