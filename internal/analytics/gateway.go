package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// RemoteQueryError is returned when the analytics engine rejects a query or
// answers with a non-success envelope.
type RemoteQueryError struct {
	Status  int
	Message string
}

func (e *RemoteQueryError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("analytics query failed (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("analytics query failed: %s", e.Message)
}

// View is one recorded page view.
type View struct {
	Site    string
	Path    string
	Visitor string
	Weight  float64
	At      time.Time
}

// Transport executes rendered SQL and stores views for one engine.
type Transport interface {
	Dialect() Dialect
	Query(ctx context.Context, sql string) ([]byte, error)
	Write(ctx context.Context, view View) error
}

// Gateway renders statements against a fixed table and unwraps the engine's
// response into rows.
type Gateway struct {
	transport Transport
	table     string
	logger    *slog.Logger
}

// NewGateway validates the table name once; it is never taken from requests.
func NewGateway(transport Transport, table string, logger *slog.Logger) (*Gateway, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid analytics table name %q", table)
	}
	return &Gateway{transport: transport, table: table, logger: logger}, nil
}

func (g *Gateway) Table() string {
	return g.table
}

// Render produces the SQL text that would be sent for stmt.
func (g *Gateway) Render(stmt Statement) (string, error) {
	stmt.SQL = strings.ReplaceAll(stmt.SQL, TablePlaceholder, g.table)
	return stmt.Render(g.transport.Dialect())
}

// Query runs stmt and returns the rows of the response envelope.
func (g *Gateway) Query(ctx context.Context, stmt Statement) ([]gjson.Result, error) {
	sql, err := g.Render(stmt)
	if err != nil {
		return nil, fmt.Errorf("render analytics query: %w", err)
	}
	g.logger.Debug("Running analytics query", slog.String("table", g.table), slog.String("sql", sql))

	body, err := g.transport.Query(ctx, sql)
	if err != nil {
		return nil, err
	}

	if msg, failed := envelopeFailure(body); failed {
		return nil, &RemoteQueryError{Message: msg}
	}

	return Rows(body), nil
}

// Record stores one view with a normalized path.
func (g *Gateway) Record(ctx context.Context, view View) error {
	view.Path = NormalizePath(view.Path)
	if view.Weight == 0 {
		view.Weight = 1
	}
	if view.At.IsZero() {
		view.At = time.Now()
	}
	view.At = view.At.UTC().Truncate(time.Second)

	if err := g.transport.Write(ctx, view); err != nil {
		return fmt.Errorf("record page view: %w", err)
	}
	return nil
}
