// Package db owns the SQL connection and the posts schema for the sqlite and
// postgres backends.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

var ErrNotInitialized = errors.New("database not initialized")

type DB interface {
	InitDb(ctx context.Context) error

	Get() *sql.DB
	Close() error

	Dialect() Dialect
	// Builder returns a squirrel builder using the dialect's placeholders.
	Builder() sq.StatementBuilderType

	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var dbLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	dbLogger = l
}

// conn carries the parts shared by every dialect.
type conn struct {
	db      *sql.DB
	dialect Dialect
}

func (c *conn) open(ctx context.Context, dsn, schema string) error {
	db, err := sql.Open(string(c.dialect), dsn)
	if err != nil {
		return fmt.Errorf("error opening %s database: %w", c.dialect, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("error connecting to %s database: %w", c.dialect, err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return fmt.Errorf("error creating schema: %w", err)
	}

	c.db = db
	dbLogger.Info().Str("dialect", string(c.dialect)).Msg("Database initialized")
	return nil
}

func (c *conn) Get() *sql.DB {
	return c.db
}

func (c *conn) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *conn) Dialect() Dialect {
	return c.dialect
}

func (c *conn) Builder() sq.StatementBuilderType {
	if c.dialect == DialectPostgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

func (c *conn) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if c.db == nil {
		return nil, ErrNotInitialized
	}
	dbLogger.Debug().Str("query", query).Msg("Query")
	return c.db.QueryContext(ctx, query, args...)
}

func (c *conn) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	dbLogger.Debug().Str("query", query).Msg("QueryRow")
	return c.db.QueryRowContext(ctx, query, args...)
}

func (c *conn) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if c.db == nil {
		return nil, ErrNotInitialized
	}
	dbLogger.Debug().Str("query", query).Msg("Exec")
	return c.db.ExecContext(ctx, query, args...)
}
