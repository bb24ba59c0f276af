// Package executor runs generated SQL against the placement database, one
// fresh connection per statement, and normalizes the result for display.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Policy decides which statements may reach the database.
type Policy string

const (
	// Permissive runs every statement verbatim.
	Permissive Policy = "permissive"
	// Restrictive refuses INSERT, UPDATE and DELETE and reports empty
	// results as a notice.
	Restrictive Policy = "restrictive"
)

// ParsePolicy accepts "permissive" or "restrictive" in any case.
func ParsePolicy(raw string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(raw))); p {
	case Permissive, Restrictive:
		return p, nil
	default:
		return "", fmt.Errorf("unknown execution policy: %q (supported: permissive, restrictive)", raw)
	}
}

// Kind tells rows, errors and notices apart.
type Kind string

const (
	KindRows   Kind = "rows"
	KindError  Kind = "error"
	KindNotice Kind = "notice"
)

// Result is the outcome of one execution.
type Result struct {
	Kind    Kind     `json:"kind"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Message string   `json:"message,omitempty"`
}

// IsError reports whether the result is an error banner.
func (r Result) IsError() bool { return r.Kind == KindError }

// NoRowsNotice is shown for empty results under the restrictive policy.
const NoRowsNotice = "Query executed successfully but returned no rows."

func errorResult(msg string) Result  { return Result{Kind: KindError, Message: msg} }
func noticeResult(msg string) Result { return Result{Kind: KindNotice, Message: msg} }

// Opener opens a new connection. The executor closes it before returning.
type Opener func(ctx context.Context) (*sql.DB, error)

// Executor runs statements under a policy.
type Executor struct {
	Policy Policy
	Open   Opener
	Logger *slog.Logger
}

// refusals maps leading keywords to the restrictive policy's error text.
var refusals = []struct {
	keyword string
	message string
}{
	{"INSERT", "Can't insert into the database."},
	{"UPDATE", "Can't update the database."},
	{"DELETE", "Can't delete from the database."},
}

// Refusal returns the restrictive-policy error for a mutating statement, or
// "" when the statement may run.
func Refusal(query string) string {
	upper := strings.ToUpper(strings.TrimSpace(query))
	for _, r := range refusals {
		if strings.HasPrefix(upper, r.keyword) {
			return r.message
		}
	}
	return ""
}

// Execute runs query and never returns a Go error: failures come back as a
// Result of KindError carrying the driver's message.
func (e *Executor) Execute(ctx context.Context, query string) Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return errorResult("query is required")
	}
	if e.Policy == Restrictive {
		if msg := Refusal(query); msg != "" {
			e.logger().InfoContext(ctx, "statement refused", slog.String("policy", string(e.Policy)))
			return errorResult(msg)
		}
	}
	if e.Open == nil {
		return errorResult("database is not configured")
	}

	start := time.Now()
	columns, rows, err := e.run(ctx, query)
	if err != nil {
		e.logger().WarnContext(ctx, "statement failed",
			slog.String("sqlstate", SQLState(err)),
			slog.Any("error", err),
		)
		return errorResult(err.Error())
	}
	e.logger().DebugContext(ctx, "statement executed",
		slog.Int("rows", len(rows)),
		slog.String("duration", time.Since(start).String()),
	)

	if len(rows) == 0 && e.Policy == Restrictive {
		return noticeResult(NoRowsNotice)
	}
	return Result{Kind: KindRows, Columns: columns, Rows: rows}
}

// run opens a connection, executes query in a transaction, fetches every row,
// closes the cursor, commits and closes the connection.
func (e *Executor) run(ctx context.Context, query string) (columns []string, rows [][]any, err error) {
	db, err := e.Open(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close connection: %w", cerr)
		}
	}()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}

	columns, rows, err = fetchAll(ctx, tx, query)
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return columns, rows, nil
}

func fetchAll(ctx context.Context, tx *sql.Tx, query string) ([]string, [][]any, error) {
	cursor, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer cursor.Close()

	columns, err := cursor.Columns()
	if err != nil {
		return nil, nil, err
	}
	if columns == nil {
		columns = []string{}
	}

	rows := make([][]any, 0)
	for cursor.Next() {
		values, err := scanRow(cursor, len(columns))
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, normalizeRow(values))
	}
	if err := cursor.Err(); err != nil {
		return nil, nil, err
	}
	if err := cursor.Close(); err != nil {
		return nil, nil, err
	}
	return columns, rows, nil
}

func scanRow(rows *sql.Rows, numCols int) ([]any, error) {
	values := make([]any, numCols)
	ptrs := make([]any, numCols)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return values, nil
}

func normalizeRow(values []any) []any {
	row := make([]any, len(values))
	for i, v := range values {
		switch val := v.(type) {
		case nil:
			row[i] = nil
		case []byte:
			row[i] = string(val)
		case time.Time:
			row[i] = val.Format(time.RFC3339Nano)
		default:
			row[i] = val
		}
	}
	return row
}

// SQLState extracts the PostgreSQL error code from a lib/pq or pgx error.
func SQLState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}
