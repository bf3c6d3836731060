// Package sqldb executes generated statements over a database/sql handle.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sqlchat/sqlchat/internal/query"
)

type Classifier func(error) query.ErrorKind

type Options struct {
	// Classify maps driver errors to query error kinds. Defaults to
	// query.ClassifyMessage.
	Classify Classifier
	// ProbeSQL must return now, database name, version and encoding in that order.
	ProbeSQL string
	// Timeout bounds each statement. Zero disables it.
	Timeout time.Duration
}

type Engine struct {
	db       *sql.DB
	classify Classifier
	probeSQL string
	timeout  time.Duration
}

func New(db *sql.DB, opts Options) *Engine {
	classify := opts.Classify
	if classify == nil {
		classify = query.ClassifyMessage
	}
	probeSQL := opts.ProbeSQL
	if strings.TrimSpace(probeSQL) == "" {
		probeSQL = `SELECT now(), current_database(), version(), 'UTF8'`
	}
	return &Engine{db: db, classify: classify, probeSQL: probeSQL, timeout: opts.Timeout}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := strings.TrimSpace(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	if !returnsRows(sqlText) {
		res, err := e.db.ExecContext(ctx, sqlText)
		if err != nil {
			return query.Result{}, e.wrap(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			affected = 0
		}
		return query.Result{Columns: []string{}, Rows: [][]any{}, RowsAffected: affected, Duration: time.Since(start)}, nil
	}

	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, e.wrap(err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, e.wrap(err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, e.wrap(err)
	}

	return query.Result{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

func (e *Engine) Probe(ctx context.Context) (query.DatabaseInfo, error) {
	var info query.DatabaseInfo
	var encoding sql.NullString
	if err := e.db.QueryRowContext(ctx, e.probeSQL).Scan(&info.Now, &info.Database, &info.Version, &encoding); err != nil {
		return query.DatabaseInfo{}, fmt.Errorf("probe database: %w", err)
	}
	info.Encoding = encoding.String
	return info, nil
}

// Ping is a readiness check.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

func (e *Engine) wrap(err error) error {
	return &query.Error{Kind: e.classify(err), Err: err}
}

// returnsRows treats INSERT, UPDATE and DELETE without RETURNING as
// exec statements and everything else as a query.
func returnsRows(sqlText string) bool {
	lowered := strings.ToLower(sqlText)
	for _, verb := range []string{"insert", "update", "delete"} {
		if strings.HasPrefix(lowered, verb) {
			return strings.Contains(lowered, "returning")
		}
	}
	return true
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
