package planfile

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStepFile indicates a step file whose name or content cannot be used
	ErrInvalidStepFile = errors.New("invalid step file")

	// ErrNoPlan indicates step files supplied for a definition without a ddl section
	ErrNoPlan = errors.New("definition has no ddl plan")
)

// FileSystemError wraps file system related errors while loading plans
type FileSystemError struct {
	Path      string // File or directory path
	Operation string // File operation (read, scan, etc.)
	Err       error  // Underlying error
}

// Error implements the error interface
func (e *FileSystemError) Error() string {
	return fmt.Sprintf("filesystem error during %s of %s: %v", e.Operation, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *FileSystemError) Unwrap() error {
	return e.Err
}

// NewFileSystemError creates a new FileSystemError
func NewFileSystemError(path, operation string, err error) *FileSystemError {
	return &FileSystemError{
		Path:      path,
		Operation: operation,
		Err:       err,
	}
}
