package analytics

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TablePlaceholder is replaced with the configured table name before rendering.
const TablePlaceholder = "{{table}}"

// Statement is a query template with positional `?` placeholders.
type Statement struct {
	SQL  string
	Args []any
}

// NewStatement builds a Statement.
func NewStatement(sql string, args ...any) Statement {
	return Statement{SQL: sql, Args: args}
}

// Dialect renders literal values for one analytics engine.
type Dialect interface {
	QuoteString(s string) string
	TimeLiteral(t time.Time) string
}

// LocalDialect renders literals for the embedded SQLite engine. Timestamps
// are compared as text in the format the driver stores them.
type LocalDialect struct{}

func (LocalDialect) QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (LocalDialect) TimeLiteral(t time.Time) string {
	return "'" + t.UTC().Format("2006-01-02 15:04:05") + "+00:00'"
}

// EngineDialect renders literals for the hosted analytics engine, which also
// treats backslash as an escape character inside string literals.
type EngineDialect struct{}

func (EngineDialect) QuoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (EngineDialect) TimeLiteral(t time.Time) string {
	return "toDateTime('" + t.UTC().Format("2006-01-02 15:04:05") + "')"
}

// Render substitutes every placeholder outside quoted literals with its
// argument rendered for the dialect.
func (s Statement) Render(d Dialect) (string, error) {
	var b strings.Builder
	b.Grow(len(s.SQL) + 16*len(s.Args))

	next := 0
	inQuote := false
	for i := 0; i < len(s.SQL); i++ {
		c := s.SQL[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			if next >= len(s.Args) {
				return "", fmt.Errorf("statement has more placeholders than arguments (%d)", len(s.Args))
			}
			lit, err := renderLiteral(d, s.Args[next])
			if err != nil {
				return "", fmt.Errorf("argument %d: %w", next, err)
			}
			b.WriteString(lit)
			next++
		default:
			b.WriteByte(c)
		}
	}

	if next != len(s.Args) {
		return "", fmt.Errorf("statement has %d placeholders but %d arguments", next, len(s.Args))
	}
	return b.String(), nil
}

func renderLiteral(d Dialect, arg any) (string, error) {
	switch v := arg.(type) {
	case nil:
		return "NULL", nil
	case string:
		return d.QuoteString(v), nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return renderFloat(float64(v))
	case float64:
		return renderFloat(v)
	case time.Time:
		return d.TimeLiteral(v), nil
	default:
		return "", fmt.Errorf("unsupported argument type %T", arg)
	}
}

func renderFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("non-finite number %v", f)
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}
