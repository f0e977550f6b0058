package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	driver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// BatchError reports the statement of a batch that failed.
type BatchError struct {
	Index     int    // Position of the statement within the batch
	Statement string // Statement text as executed
	Err       error  // Driver error
}

// Error implements the error interface
func (e *BatchError) Error() string {
	return fmt.Sprintf("statement %d failed: %v", e.Index+1, e.Err)
}

// Unwrap returns the underlying error
func (e *BatchError) Unwrap() error {
	return e.Err
}

// ErrorKind maps a driver error onto a stable label for logs.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, sql.ErrNoRows) {
		return "not_found"
	}

	var sqliteErr *driver.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT:
			return "constraint"
		case sqlite3.SQLITE_BUSY:
			return "busy"
		case sqlite3.SQLITE_LOCKED:
			return "locked"
		case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
			return "corrupt"
		case sqlite3.SQLITE_ERROR:
			return "sql"
		}
		return "driver"
	}

	// Errors that lost their driver type on the way up still carry the
	// engine's message text.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "constraint failed"):
		return "constraint"
	case strings.Contains(msg, "database is locked"):
		return "locked"
	}

	return "unexpected"
}
