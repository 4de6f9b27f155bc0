package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/debemdeboas/drafthouse/internal/db"
	"github.com/debemdeboas/drafthouse/internal/model"
	"github.com/debemdeboas/drafthouse/internal/util"
	"github.com/debemdeboas/drafthouse/internal/util/compression"
)

var postColumns = []string{
	"id", "title", "content", "tags", "status", "content_hash", "created_at", "modified_at", "published_at",
}

// DBPostRepository stores posts in the posts table of a sqlite or postgres
// database. Bodies are compressed at rest.
type DBPostRepository struct {
	db         db.DB
	compressor compression.Compressor
}

var _ PostRepository = (*DBPostRepository)(nil)

func NewDBPostRepository(db db.DB, compressor compression.Compressor) *DBPostRepository {
	if compressor == nil {
		compressor = compression.ZstdCompressor{}
	}

	return &DBPostRepository{
		db:         db,
		compressor: compressor,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *DBPostRepository) scanPost(row rowScanner) (*model.Post, error) {
	var (
		id, status, tags string
		compressed       []byte
		hash             sql.NullString
		createdAt        sql.NullTime
		modifiedAt       sql.NullTime
		publishedAt      sql.NullTime
		post             model.Post
	)

	err := row.Scan(&id, &post.Title, &compressed, &tags, &status, &hash, &createdAt, &modifiedAt, &publishedAt)
	if err != nil {
		return nil, err
	}

	content, err := r.compressor.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("error decompressing content of %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(tags), &post.Tags); err != nil {
		return nil, fmt.Errorf("error decoding tags of %s: %w", id, err)
	}

	post.ID = model.PostID(id)
	post.Body = string(content)
	post.Status = model.Status(status)
	post.ContentHash = hash.String
	post.CreatedAt = createdAt.Time
	post.UpdatedAt = modifiedAt.Time
	if publishedAt.Valid {
		t := publishedAt.Time
		post.PublishedAt = &t
	}

	return &post, nil
}

func (r *DBPostRepository) Get(ctx context.Context, id model.PostID) (*model.Post, error) {
	query, args, err := r.db.Builder().
		Select(postColumns...).
		From("posts").
		Where(sq.Eq{"id": string(id)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error building query: %w", err)
	}

	post, err := r.scanPost(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading post %s: %w", id, err)
	}
	return post, nil
}

func (r *DBPostRepository) List(ctx context.Context) ([]*model.Post, error) {
	query, args, err := r.db.Builder().
		Select(postColumns...).
		From("posts").
		OrderBy("modified_at DESC", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error building query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying posts: %w", err)
	}
	defer rows.Close()

	posts := make([]*model.Post, 0)
	for rows.Next() {
		post, err := r.scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating posts: %w", err)
	}

	// Timestamps come back with driver-specific precision; sort in Go so every
	// backend orders ties the same way.
	SortPosts(posts)
	return posts, nil
}

func (r *DBPostRepository) Put(ctx context.Context, post *model.Post) error {
	compressed, err := r.compressor.Compress([]byte(post.Body))
	if err != nil {
		return fmt.Errorf("error compressing content: %w", err)
	}

	tags := post.Tags
	if tags == nil {
		tags = []string{}
	}
	encodedTags, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("error encoding tags: %w", err)
	}

	hash := post.ContentHash
	if hash == "" {
		hash = util.ContentHashString(post.Body)
	}

	query, args, err := r.db.Builder().
		Insert("posts").
		Columns(postColumns...).
		Values(
			string(post.ID), post.Title, compressed, string(encodedTags), string(post.Status), hash,
			post.CreatedAt.UTC(), post.UpdatedAt.UTC(), utcOrNil(post.PublishedAt),
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			tags = excluded.tags,
			status = excluded.status,
			content_hash = excluded.content_hash,
			modified_at = excluded.modified_at,
			published_at = excluded.published_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("error building query: %w", err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("error saving post %s: %w", post.ID, err)
	}

	repoLogger.Debug().Str("post_id", string(post.ID)).Int("compressed_size", len(compressed)).Msg("Post saved")
	return nil
}

func utcOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// sqlite hands MAX() back as text in one of these layouts.
var timeFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	time.RFC3339Nano,
	time.RFC3339,
}

func (r *DBPostRepository) LatestModified(ctx context.Context) (time.Time, error) {
	var latest sql.NullString
	if err := r.db.QueryRow(ctx, `SELECT MAX(modified_at) FROM posts`).Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("error scanning latest modified time: %w", err)
	}

	if !latest.Valid {
		return time.Time{}, nil
	}

	var parseErr error
	for _, format := range timeFormats {
		t, err := time.Parse(format, latest.String)
		if err == nil {
			return t, nil
		}
		parseErr = err
	}

	return time.Time{}, fmt.Errorf("error parsing latest modified time '%s' with any known format: %w", latest.String, parseErr)
}
