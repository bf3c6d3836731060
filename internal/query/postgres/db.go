// Package postgres runs generated statements against PostgreSQL through the
// pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sqlchat/sqlchat/internal/query"
	"github.com/sqlchat/sqlchat/internal/query/sqldb"
)

const (
	codeUndefinedTable = "42P01"
	codeSyntaxError    = "42601"
)

const probeSQL = `SELECT now(), current_database(), version(), current_setting('client_encoding')`

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
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

// Classify maps PostgreSQL SQLSTATE codes to query error kinds. Errors that do
// not carry a SQLSTATE fall back to message matching.
func Classify(err error) query.ErrorKind {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return query.ClassifyMessage(err)
	}
	switch pgErr.Code {
	case codeUndefinedTable:
		return query.KindSchemaMissing
	case codeSyntaxError:
		return query.KindSyntax
	default:
		return query.KindGeneric
	}
}
