package repository

import (
	"context"
	"sync"
	"time"

	"github.com/debemdeboas/drafthouse/internal/model"
)

// MemoryPostRepository keeps posts in process memory. Stored posts are
// copied on the way in and out.
type MemoryPostRepository struct {
	posts sync.Map // model.PostID -> *model.Post
}

var _ PostRepository = (*MemoryPostRepository)(nil)

func NewMemoryPostRepository() *MemoryPostRepository {
	return &MemoryPostRepository{}
}

func (r *MemoryPostRepository) Get(ctx context.Context, id model.PostID) (*model.Post, error) {
	if post, ok := r.posts.Load(id); ok {
		return post.(*model.Post).Clone(), nil
	}
	return nil, ErrNotFound
}

func (r *MemoryPostRepository) Put(ctx context.Context, post *model.Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.posts.Store(post.ID, post.Clone())
	return nil
}

func (r *MemoryPostRepository) List(ctx context.Context) ([]*model.Post, error) {
	posts := make([]*model.Post, 0)
	r.posts.Range(func(_, v any) bool {
		posts = append(posts, v.(*model.Post).Clone())
		return true
	})

	SortPosts(posts)
	return posts, nil
}

func (r *MemoryPostRepository) LatestModified(ctx context.Context) (time.Time, error) {
	var latest time.Time
	r.posts.Range(func(_, v any) bool {
		if t := v.(*model.Post).UpdatedAt; t.After(latest) {
			latest = t
		}
		return true
	})
	return latest, nil
}
