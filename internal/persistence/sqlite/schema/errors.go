package schema

import (
	"errors"
	"fmt"
)

// Configuration error sentinels. They are always delivered wrapped in a
// *ConfigurationError so callers can match either the kind or the sentinel.
var (
	// ErrEmptySchema indicates a declaration without any columns
	ErrEmptySchema = errors.New("declared schema has no columns")

	// ErrReservedColumn indicates a declaration that includes the reserved identity column
	ErrReservedColumn = errors.New("reserved identity column cannot be declared")

	// ErrDuplicateColumn indicates two columns whose names collide case-insensitively
	ErrDuplicateColumn = errors.New("duplicate column name")

	// ErrInvalidColumn indicates a column with an empty name or unknown type
	ErrInvalidColumn = errors.New("invalid column declaration")

	// ErrInvalidDefault indicates a default value that cannot be rendered for the column type
	ErrInvalidDefault = errors.New("invalid default value")
)

// ConfigurationError reports a declaration that can never be reconciled.
// It is raised at construction time and is never worth retrying.
type ConfigurationError struct {
	Field string // Offending column, plan field or step
	Err   error  // Underlying sentinel, possibly wrapped with detail
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error in %s: %v", e.Field, e.Err)
}

// Unwrap returns the underlying error for error unwrapping
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches a target error
func (e *ConfigurationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewConfigurationError creates a new ConfigurationError
func NewConfigurationError(field string, err error) *ConfigurationError {
	return &ConfigurationError{
		Field: field,
		Err:   err,
	}
}
