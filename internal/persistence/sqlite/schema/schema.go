// Package schema models the column layout a managed table is declared with and
// renders it as SQLite DDL.
//
// Every managed table carries one implicit identity column, ReservedColumn,
// which is always the first physical column and can never be declared.
package schema

import (
	"fmt"
	"strings"
)

// ColumnType is the storage type of a declared column.
type ColumnType string

const (
	Text    ColumnType = "TEXT"
	Integer ColumnType = "INTEGER"
	Real    ColumnType = "REAL"
	Boolean ColumnType = "BOOLEAN"
	Blob    ColumnType = "BLOB"
)

// ReservedColumn is the auto-incrementing identity column present on every
// managed table.
const ReservedColumn = "id"

// ParseColumnType maps a case-insensitive type name onto a ColumnType.
func ParseColumnType(name string) (ColumnType, error) {
	switch ColumnType(strings.ToUpper(strings.TrimSpace(name))) {
	case Text:
		return Text, nil
	case Integer:
		return Integer, nil
	case Real:
		return Real, nil
	case Boolean:
		return Boolean, nil
	case Blob:
		return Blob, nil
	}
	return "", fmt.Errorf("%w: unknown column type %q", ErrInvalidColumn, name)
}

// Valid reports whether t is one of the supported column types.
func (t ColumnType) Valid() bool {
	_, err := ParseColumnType(string(t))
	return err == nil
}

// Column is a single declared column.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
	// Default is rendered as a DEFAULT clause when non-nil. Its Go type must
	// fit Type: integers for INTEGER, numbers for REAL, bool (or 0/1) for
	// BOOLEAN, string for TEXT and any JSON-serializable value for BLOB.
	Default any
	Unique  bool
	Check   string
}

// Schema is a validated, immutable Declared Schema.
type Schema struct {
	columns     []Column
	definitions []string
	index       map[string]int
}

// New validates the given columns and returns a Schema preserving their order.
func New(columns ...Column) (Schema, error) {
	if len(columns) == 0 {
		return Schema{}, NewConfigurationError("columns", ErrEmptySchema)
	}

	s := Schema{
		columns:     make([]Column, 0, len(columns)),
		definitions: make([]string, 0, len(columns)),
		index:       make(map[string]int, len(columns)),
	}

	for i, col := range columns {
		name := strings.TrimSpace(col.Name)
		if name == "" {
			return Schema{}, NewConfigurationError(fmt.Sprintf("columns[%d]", i),
				fmt.Errorf("%w: empty column name", ErrInvalidColumn))
		}
		if strings.EqualFold(name, ReservedColumn) {
			return Schema{}, NewConfigurationError(name, ErrReservedColumn)
		}
		key := strings.ToLower(name)
		if _, exists := s.index[key]; exists {
			return Schema{}, NewConfigurationError(name, ErrDuplicateColumn)
		}
		if !col.Type.Valid() {
			return Schema{}, NewConfigurationError(name,
				fmt.Errorf("%w: unknown column type %q", ErrInvalidColumn, col.Type))
		}
		col.Name = name
		col.Type, _ = ParseColumnType(string(col.Type))

		def, err := renderColumn(col)
		if err != nil {
			return Schema{}, NewConfigurationError(name, err)
		}

		s.index[key] = len(s.columns)
		s.columns = append(s.columns, col)
		s.definitions = append(s.definitions, def)
	}

	return s, nil
}

// MustNew is like New but panics on an invalid declaration.
func MustNew(columns ...Column) Schema {
	s, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return s
}

// Columns returns a copy of the declared columns in declaration order.
func (s Schema) Columns() []Column {
	out := make([]Column, len(s.columns))
	copy(out, s.columns)
	return out
}

// Names returns the declared column names in declaration order.
func (s Schema) Names() []string {
	names := make([]string, len(s.columns))
	for i, col := range s.columns {
		names[i] = col.Name
	}
	return names
}

// Len returns the number of declared columns.
func (s Schema) Len() int {
	return len(s.columns)
}

// Lookup finds a declared column by case-insensitive name.
func (s Schema) Lookup(name string) (Column, bool) {
	i, ok := s.index[strings.ToLower(name)]
	if !ok {
		return Column{}, false
	}
	return s.columns[i], true
}

// SameColumns reports whether names (ignoring the reserved column) equals the
// declared column set, compared case-insensitively and regardless of order.
func (s Schema) SameColumns(names []string) bool {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if strings.EqualFold(name, ReservedColumn) {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := s.index[key]; !ok {
			return false
		}
		seen[key] = struct{}{}
	}
	return len(seen) == len(s.columns)
}
