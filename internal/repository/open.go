package repository

import (
	"context"
	"fmt"

	"github.com/debemdeboas/drafthouse/internal/config"
	"github.com/debemdeboas/drafthouse/internal/db"
	"github.com/debemdeboas/drafthouse/internal/util/compression"
)

// Open builds the repository selected by cfg.Driver. The returned close
// function releases the database connection, if any.
func Open(ctx context.Context, cfg config.StorageConfig) (PostRepository, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Driver {
	case "memory":
		return NewMemoryPostRepository(), noop, nil

	case "sqlite", "postgres":
		compressor, err := compression.New(cfg.Compression)
		if err != nil {
			return nil, nil, err
		}

		var database db.DB
		if cfg.Driver == "sqlite" {
			database = db.NewSQLite(cfg.SQLite.Path)
		} else {
			database = db.NewPostgres(cfg.Postgres.DSN)
		}
		if err := database.InitDb(ctx); err != nil {
			return nil, nil, err
		}
		return NewDBPostRepository(database, compressor), database.Close, nil

	case "s3":
		client, err := NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, nil, err
		}
		return NewS3PostRepository(client, cfg.S3.Bucket, cfg.S3.Prefix), noop, nil

	case "dynamodb":
		client, err := NewDynamoDBClient(ctx, cfg.DynamoDB)
		if err != nil {
			return nil, nil, err
		}
		repo := NewDynamoDBPostRepository(client, cfg.DynamoDB.Table)
		if cfg.DynamoDB.CreateTable {
			if err := repo.EnsureTable(ctx); err != nil {
				return nil, nil, err
			}
		}
		return repo, noop, nil
	}

	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
