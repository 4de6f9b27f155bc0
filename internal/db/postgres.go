package db

import (
	"context"

	_ "github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS posts (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    content BYTEA,
    tags TEXT NOT NULL DEFAULT '[]',
    status TEXT NOT NULL DEFAULT 'draft',
    content_hash TEXT,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    modified_at TIMESTAMPTZ,
    published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS posts_modified_at ON posts (modified_at);`

type Postgres struct {
	conn
	dsn string
}

func NewPostgres(dsn string) *Postgres {
	return &Postgres{
		conn: conn{dialect: DialectPostgres},
		dsn:  dsn,
	}
}

func (p *Postgres) InitDb(ctx context.Context) error {
	return p.open(ctx, p.dsn, postgresSchema)
}
