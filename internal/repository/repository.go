// Package repository persists posts. Every backend implements PostRepository;
// CachedPostRepository layers a read cache and a change watcher on top.
package repository

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/drafthouse/internal/model"
)

var ErrNotFound = errors.New("post not found")

var repoLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	repoLogger = l
}

type PostRepository interface {
	// Get returns ErrNotFound when no post has the given id.
	Get(ctx context.Context, id model.PostID) (*model.Post, error)
	// Put creates or replaces the post with post.ID.
	Put(ctx context.Context, post *model.Post) error
	// List returns every post, most recently updated first.
	List(ctx context.Context) ([]*model.Post, error)
	// LatestModified returns the newest modification time across all posts,
	// or the zero time when there are none.
	LatestModified(ctx context.Context) (time.Time, error)
}

// SortPosts orders posts by UpdatedAt, newest first.
func SortPosts(posts []*model.Post) {
	slices.SortStableFunc(posts, func(a, b *model.Post) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})
}
