// Package duckdb runs generated statements against an embedded DuckDB database.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb/v2"

	"github.com/sqlchat/sqlchat/internal/query"
	"github.com/sqlchat/sqlchat/internal/query/sqldb"
)

const probeSQL = `SELECT now(), current_database(), version(), 'UTF8'`

// Open opens the database file at path. An empty path or ":memory:" opens an
// in-memory database shared by every connection of the returned handle.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == ":memory:" {
		path = ""
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return db, nil
}

func NewEngine(db *sql.DB, queryTimeout time.Duration) *sqldb.Engine {
	return sqldb.New(db, sqldb.Options{
		Classify: Classify,
		ProbeSQL: probeSQL,
		Timeout:  queryTimeout,
	})
}

// Classify maps DuckDB error types to query error kinds. Catalog errors cover
// missing tables and missing columns alike.
func Classify(err error) query.ErrorKind {
	var duckErr *duckdb.Error
	if !errors.As(err, &duckErr) {
		return query.ClassifyMessage(err)
	}
	switch duckErr.Type {
	case duckdb.ErrorTypeCatalog:
		return query.KindSchemaMissing
	case duckdb.ErrorTypeParser:
		return query.KindSyntax
	default:
		return query.KindGeneric
	}
}
