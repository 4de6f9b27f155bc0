package db

import (
	"context"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS posts (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    content BLOB,
    tags TEXT NOT NULL DEFAULT '[]',
    status TEXT NOT NULL DEFAULT 'draft',
    content_hash TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    modified_at DATETIME,
    published_at DATETIME
);

CREATE INDEX IF NOT EXISTS posts_modified_at ON posts (modified_at);`

type SQLite struct {
	conn
	path string
}

// NewSQLite returns an uninitialized sqlite database at path. ":memory:" is
// accepted for tests.
func NewSQLite(path string) *SQLite {
	return &SQLite{
		conn: conn{dialect: DialectSQLite},
		path: path,
	}
}

func (s *SQLite) InitDb(ctx context.Context) error {
	dsn := s.path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on"
	}

	if err := s.open(ctx, dsn, sqliteSchema); err != nil {
		return err
	}

	// Every connection to :memory: is a separate database.
	if s.path == ":memory:" {
		s.db.SetMaxOpenConns(1)
	}
	return nil
}
