package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var reservedDefinition = QuoteIdent(ReservedColumn) + " INTEGER PRIMARY KEY AUTOINCREMENT"

// QuoteIdent quotes an identifier for use in SQLite statements.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteString renders s as a single-quoted SQL string literal.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ReservedDefinition returns the column definition of the identity column.
func ReservedDefinition() string {
	return reservedDefinition
}

// Definitions returns the physical column definitions of the table, the
// reserved identity column first.
func (s Schema) Definitions() []string {
	defs := make([]string, 0, len(s.definitions)+1)
	defs = append(defs, reservedDefinition)
	return append(defs, s.definitions...)
}

// CreateTableSQL renders the CREATE TABLE statement for table.
func (s Schema) CreateTableSQL(table string) string {
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", QuoteIdent(table), strings.Join(s.Definitions(), ",\n\t"))
}

// Definition renders the column as it appears inside CREATE TABLE.
func (c Column) Definition() (string, error) {
	return renderColumn(c)
}

func renderColumn(c Column) (string, error) {
	var b strings.Builder
	b.WriteString(QuoteIdent(c.Name))
	b.WriteByte(' ')
	b.WriteString(string(c.Type))
	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if c.Unique {
		b.WriteString(" UNIQUE")
	}
	if check := strings.TrimSpace(c.Check); check != "" {
		b.WriteString(" CHECK (")
		b.WriteString(check)
		b.WriteByte(')')
	}
	if c.Default != nil {
		lit, err := DefaultLiteral(c.Type, c.Default)
		if err != nil {
			return "", err
		}
		b.WriteString(" DEFAULT ")
		b.WriteString(lit)
	}
	return b.String(), nil
}

// DefaultLiteral renders v as a DEFAULT literal for a column of type t.
func DefaultLiteral(t ColumnType, v any) (string, error) {
	switch t {
	case Integer:
		n, ok := asInt(v)
		if !ok {
			return "", fmt.Errorf("%w: %T is not an integer", ErrInvalidDefault, v)
		}
		return strconv.FormatInt(n, 10), nil
	case Real:
		f, ok := asFloat(v)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("%w: %v is not a finite number", ErrInvalidDefault, v)
		}
		lit := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(lit, ".eE") {
			lit += ".0"
		}
		return lit, nil
	case Boolean:
		switch b := v.(type) {
		case bool:
			if b {
				return "1", nil
			}
			return "0", nil
		}
		if n, ok := asInt(v); ok && (n == 0 || n == 1) {
			return strconv.FormatInt(n, 10), nil
		}
		return "", fmt.Errorf("%w: %v is not a boolean", ErrInvalidDefault, v)
	case Text:
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("%w: %T is not a string", ErrInvalidDefault, v)
		}
		return QuoteString(s), nil
	case Blob:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidDefault, err)
		}
		return QuoteString(string(data)), nil
	}
	return "", fmt.Errorf("%w: unknown column type %q", ErrInvalidColumn, t)
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch f := v.(type) {
	case float32:
		return float64(f), true
	case float64:
		return f, true
	}
	if n, ok := asInt(v); ok {
		return float64(n), true
	}
	return 0, false
}
