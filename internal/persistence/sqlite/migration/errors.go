package migration

import (
	"errors"
	"fmt"

	"github.com/example/tablekeeper/internal/persistence/sqlite"
	"github.com/example/tablekeeper/internal/persistence/sqlite/schema"
)

// Migration-specific error types for different failure scenarios
var (
	// ErrStatementFailed indicates that a statement of some phase failed
	ErrStatementFailed = errors.New("statement execution failed")

	// ErrInconsistentState indicates that introspection contradicts the recorded state
	ErrInconsistentState = errors.New("inconsistent schema state")

	// ErrInvalidTarget indicates a plan whose target version is not positive
	ErrInvalidTarget = errors.New("invalid target version")

	// ErrDuplicateStep indicates that two steps target the same version
	ErrDuplicateStep = errors.New("duplicate migration step")

	// ErrInvalidStep indicates a step that targets an unreachable version or names an unknown strategy
	ErrInvalidStep = errors.New("invalid migration step")
)

// Phase names the part of a reconciliation a statement belonged to.
type Phase string

const (
	PhaseEnsureMeta    Phase = "ensure-meta"
	PhaseBeforeCreate  Phase = "before-create"
	PhaseCreate        Phase = "create"
	PhaseAfterCreateTx Phase = "after-create-tx"
	PhaseAfterCreate   Phase = "after-create"
	PhaseEveryOpen     Phase = "every-open"
	PhasePre           Phase = "pre"
	PhaseTx            Phase = "tx"
	PhaseProcedure     Phase = "procedure"
	PhasePost          Phase = "post"
	PhaseRebuild       Phase = "rebuild"
	PhaseRegistry      Phase = "registry"
	PhaseIntrospect    Phase = "introspect"
)

// StatementError wraps a failed statement with the reconciliation context it
// ran in. Non-transactional phases that ran before it are not undone.
type StatementError struct {
	Table     string // Table being reconciled
	Version   int    // Step version, 0 outside the migration runner
	Phase     Phase  // Phase that failed
	Statement string // Failing statement, if known
	Err       error  // Underlying error
}

// Error implements the error interface
func (e *StatementError) Error() string {
	if e.Version != 0 {
		return fmt.Sprintf("table %s step %d during %s: %v", e.Table, e.Version, e.Phase, e.Err)
	}
	return fmt.Sprintf("table %s during %s: %v", e.Table, e.Phase, e.Err)
}

// Unwrap returns the underlying error for error unwrapping
func (e *StatementError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches a target error
func (e *StatementError) Is(target error) bool {
	return target == ErrStatementFailed || errors.Is(e.Err, target)
}

// NewStatementError creates a new StatementError. The failing statement is
// taken from a *sqlite.BatchError in the chain when present.
func NewStatementError(table string, version int, phase Phase, err error) *StatementError {
	stmtErr := &StatementError{
		Table:   table,
		Version: version,
		Phase:   phase,
		Err:     err,
	}
	var batchErr *sqlite.BatchError
	if errors.As(err, &batchErr) {
		stmtErr.Statement = batchErr.Statement
	}
	return stmtErr
}

// InconsistentStateError reports introspection results that contradict the
// registry or the expected layout. It is surfaced, never auto-recovered.
type InconsistentStateError struct {
	Table  string // Table being reconciled
	Detail string // What contradicted what
}

// Error implements the error interface
func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("table %s: %v: %s", e.Table, ErrInconsistentState, e.Detail)
}

// Is checks if the error matches a target error
func (e *InconsistentStateError) Is(target error) bool {
	return target == ErrInconsistentState
}

// NewInconsistentStateError creates a new InconsistentStateError
func NewInconsistentStateError(table, detail string) *InconsistentStateError {
	return &InconsistentStateError{Table: table, Detail: detail}
}

// wrapPhase attributes err to a phase unless it already carries a
// classification of its own.
func wrapPhase(table string, version int, phase Phase, err error) error {
	if err == nil {
		return nil
	}

	var stmtErr *StatementError
	if errors.As(err, &stmtErr) {
		if stmtErr.Version == 0 {
			stmtErr.Version = version
		}
		return err
	}

	var cfgErr *schema.ConfigurationError
	var stateErr *InconsistentStateError
	if errors.As(err, &cfgErr) || errors.As(err, &stateErr) {
		return err
	}

	return NewStatementError(table, version, phase, err)
}

// ErrorKind maps reconciliation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var cfgErr *schema.ConfigurationError
	if errors.As(err, &cfgErr) {
		return "configuration"
	}
	if errors.Is(err, ErrInconsistentState) {
		return "inconsistent_state"
	}
	var stmtErr *StatementError
	if errors.As(err, &stmtErr) {
		return "statement/" + sqlite.ErrorKind(stmtErr.Err)
	}

	return "unexpected"
}
