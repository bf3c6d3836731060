package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Request struct {
	SQL string
}

type Result struct {
	Columns []string
	Rows    [][]any
	// RowsAffected is set for statements that do not return a row set.
	RowsAffected int64
	Duration     time.Duration
}

// Records returns the rows keyed by column name.
func (r Result) Records() []map[string]any {
	records := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		record := make(map[string]any, len(r.Columns))
		for i, column := range r.Columns {
			if i < len(row) {
				record[column] = row[i]
			}
		}
		records = append(records, record)
	}
	return records
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

type DatabaseInfo struct {
	Now      time.Time `json:"now"`
	Database string    `json:"db"`
	Version  string    `json:"version"`
	Encoding string    `json:"encoding,omitempty"`
}

// Prober reports basic facts about the connected database.
type Prober interface {
	Probe(ctx context.Context) (DatabaseInfo, error)
}

type ErrorKind int

const (
	KindGeneric ErrorKind = iota
	KindSchemaMissing
	KindSyntax
)

func (k ErrorKind) String() string {
	switch k {
	case KindSchemaMissing:
		return "schema_missing"
	case KindSyntax:
		return "syntax_error"
	default:
		return "generic"
	}
}

// Error is returned by engines for failed statements.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("execute query (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a query error, or KindGeneric for any other error.
func KindOf(err error) ErrorKind {
	var queryErr *Error
	if errors.As(err, &queryErr) {
		return queryErr.Kind
	}
	return KindGeneric
}

// ClassifyMessage is the fallback for drivers that expose no structured error
// codes.
func ClassifyMessage(err error) ErrorKind {
	if err == nil {
		return KindGeneric
	}
	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "relation") && strings.Contains(message, "does not exist"):
		return KindSchemaMissing
	case strings.Contains(message, "syntax error"):
		return KindSyntax
	default:
		return KindGeneric
	}
}
