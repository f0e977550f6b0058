package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/tablekeeper/internal/logging"
	"github.com/example/tablekeeper/internal/persistence/sqlite"
	"github.com/example/tablekeeper/internal/persistence/sqlite/schema"
)

// ShadowNamer returns the name a rebuild builds the new layout under. Names
// must be unique per invocation so retried attempts never collide.
type ShadowNamer func(table string) string

// DefaultShadowName derives a shadow name from the table, the current time
// and a random suffix.
func DefaultShadowName(table string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s__rebuild_%d_%s", table, time.Now().UnixNano(), suffix)
}

// Rebuilder replaces a table's physical layout with a declared schema while
// keeping the values of columns present in both.
type Rebuilder struct {
	db     *sqlite.DB
	namer  ShadowNamer
	logger *slog.Logger
}

// NewRebuilder creates a Rebuilder. A nil namer uses DefaultShadowName.
func NewRebuilder(db *sqlite.DB, namer ShadowNamer, logger *slog.Logger) *Rebuilder {
	if namer == nil {
		namer = DefaultShadowName
	}
	return &Rebuilder{db: db, namer: namer, logger: logger}
}

type columnCopy struct {
	from string
	to   string
}

// Rebuild converges table onto s in a single transaction: the new layout is
// created under a shadow name, intersecting columns are copied, the old table
// is dropped and the shadow renamed. Foreign key enforcement is off for the
// duration. Indexes and triggers on the old table are not recreated.
func (r *Rebuilder) Rebuild(ctx context.Context, table string, s schema.Schema) (result RebuildResult, err error) {
	logger := logging.Component(ctx, r.logger, "rebuild", "table", table)
	shadow := r.namer(table)
	result.Shadow = shadow

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return result, NewStatementError(table, 0, PhaseRebuild, fmt.Errorf("failed to pin connection: %w", err))
	}
	defer conn.Close()

	fkEnabled, err := sqlite.ForeignKeysEnabled(ctx, conn)
	if err != nil {
		return result, NewStatementError(table, 0, PhaseRebuild, err)
	}
	if fkEnabled {
		if err := sqlite.SetForeignKeys(ctx, conn, false); err != nil {
			return result, NewStatementError(table, 0, PhaseRebuild, err)
		}
		defer func() {
			if restoreErr := sqlite.SetForeignKeys(context.WithoutCancel(ctx), conn, true); restoreErr != nil && err == nil {
				err = NewStatementError(table, 0, PhaseRebuild, restoreErr)
			}
		}()
	}

	err = sqlite.WithConnTransaction(ctx, conn, func(tx *sql.Tx) error {
		old, err := sqlite.ListColumns(ctx, tx, table)
		if err != nil {
			return err
		}

		copies, dropped, added := planCopy(old, s)
		result.Dropped = dropped
		result.Added = added
		for _, c := range copies {
			if !strings.EqualFold(c.to, schema.ReservedColumn) {
				result.Kept = append(result.Kept, c.to)
			}
		}

		stmts := []string{s.CreateTableSQL(shadow)}
		if len(copies) > 0 {
			stmts = append(stmts, copySQL(shadow, table, copies))
		}
		if len(old) > 0 {
			stmts = append(stmts, "DROP TABLE "+schema.QuoteIdent(table))
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", schema.QuoteIdent(shadow), schema.QuoteIdent(table)))

		return sqlite.ExecStatements(ctx, tx, stmts)
	})
	if err != nil {
		logger.Error("rebuild failed", "shadow", shadow, "error", err, "error_kind", sqlite.ErrorKind(err))
		return result, NewStatementError(table, 0, PhaseRebuild, err)
	}

	logger.Info("rebuild completed",
		"shadow", shadow,
		"kept", result.Kept,
		"dropped", result.Dropped,
		"added", result.Added,
	)
	return result, nil
}

// planCopy matches old physical columns against the declared schema
// case-insensitively. The reserved identity column is carried over whenever
// the old layout has it.
func planCopy(old []string, s schema.Schema) (copies []columnCopy, dropped, added []string) {
	matched := make(map[string]bool, len(old))
	for _, name := range old {
		if strings.EqualFold(name, schema.ReservedColumn) {
			copies = append(copies, columnCopy{from: name, to: schema.ReservedColumn})
			continue
		}
		col, ok := s.Lookup(name)
		if !ok {
			dropped = append(dropped, name)
			continue
		}
		matched[strings.ToLower(col.Name)] = true
		copies = append(copies, columnCopy{from: name, to: col.Name})
	}

	for _, name := range s.Names() {
		if !matched[strings.ToLower(name)] {
			added = append(added, name)
		}
	}

	// Rows are only carried over when at least one declared column survives.
	if len(copies) == 1 && copies[0].to == schema.ReservedColumn {
		copies = nil
	}
	return copies, dropped, added
}

func copySQL(shadow, table string, copies []columnCopy) string {
	to := make([]string, len(copies))
	from := make([]string, len(copies))
	for i, c := range copies {
		to[i] = schema.QuoteIdent(c.to)
		from[i] = schema.QuoteIdent(c.from)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		schema.QuoteIdent(shadow), strings.Join(to, ", "), strings.Join(from, ", "), schema.QuoteIdent(table))
}
