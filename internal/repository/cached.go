package repository

import (
	"context"
	"sync"
	"time"

	"github.com/debemdeboas/drafthouse/internal/cache"
	"github.com/debemdeboas/drafthouse/internal/model"
)

// CachedPostRepository serves reads from memory and polls the underlying
// repository for changes made by other writers (another server, the
// importer).
type CachedPostRepository struct {
	inner PostRepository
	posts *cache.Cache[model.PostID, *model.Post]

	// fill is held from a backend read or write until the cache reflects it,
	// so a slow List cannot overwrite a newer Put.
	fill sync.Mutex

	mu             sync.Mutex
	lastModified   time.Time
	reloadNotifier func(model.PostID)
}

var _ PostRepository = (*CachedPostRepository)(nil)

func NewCachedPostRepository(inner PostRepository) *CachedPostRepository {
	return &CachedPostRepository{
		inner: inner,
		posts: cache.NewCache[model.PostID, *model.Post](),
	}
}

// SetReloadNotifier registers fn to be called with the id of every post the
// watcher finds changed or added.
func (r *CachedPostRepository) SetReloadNotifier(fn func(model.PostID)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reloadNotifier = fn
}

func (r *CachedPostRepository) notifyPostReload(id model.PostID) {
	r.mu.Lock()
	fn := r.reloadNotifier
	r.mu.Unlock()

	if fn != nil {
		fn(id)
	}
}

func (r *CachedPostRepository) Get(ctx context.Context, id model.PostID) (*model.Post, error) {
	if post, ok := r.posts.Get(id); ok {
		return post.Clone(), nil
	}

	r.fill.Lock()
	defer r.fill.Unlock()

	post, err := r.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r.posts.Set(id, post.Clone())
	return post, nil
}

func (r *CachedPostRepository) Put(ctx context.Context, post *model.Post) error {
	r.fill.Lock()
	defer r.fill.Unlock()

	if err := r.inner.Put(ctx, post); err != nil {
		// The stored state is unknown now.
		r.posts.Delete(post.ID)
		return err
	}
	r.posts.Set(post.ID, post.Clone())
	return nil
}

func (r *CachedPostRepository) List(ctx context.Context) ([]*model.Post, error) {
	r.fill.Lock()
	defer r.fill.Unlock()

	posts, err := r.inner.List(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[model.PostID]*model.Post, len(posts))
	for _, post := range posts {
		byID[post.ID] = post.Clone()
	}
	r.posts.SetTo(byID)
	return posts, nil
}

func (r *CachedPostRepository) LatestModified(ctx context.Context) (time.Time, error) {
	return r.inner.LatestModified(ctx)
}

// Reload refreshes the cache when the underlying repository has been
// modified since the previous reload and reports whether it did.
func (r *CachedPostRepository) Reload(ctx context.Context) (bool, error) {
	latest, err := r.inner.LatestModified(ctx)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	seen := r.lastModified
	r.mu.Unlock()
	if !latest.After(seen) {
		return false, nil
	}

	changed, err := r.refresh(ctx)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	r.lastModified = latest
	r.mu.Unlock()

	for _, id := range changed {
		repoLogger.Info().Str("post_id", string(id)).Msg("Reloading post")
		r.notifyPostReload(id)
	}
	return true, nil
}

// refresh replaces the cache with the backend's posts and returns the ids
// that are new or differ from the cached copy.
func (r *CachedPostRepository) refresh(ctx context.Context) ([]model.PostID, error) {
	r.fill.Lock()
	defer r.fill.Unlock()

	posts, err := r.inner.List(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[model.PostID]*model.Post, len(posts))
	var changed []model.PostID
	for _, post := range posts {
		old, ok := r.posts.Get(post.ID)
		if !ok || old.ContentHash != post.ContentHash || old.Title != post.Title || old.Status != post.Status {
			changed = append(changed, post.ID)
		}
		byID[post.ID] = post
	}
	r.posts.SetTo(byID)
	return changed, nil
}

// Watch calls Reload every interval until ctx is done.
func (r *CachedPostRepository) Watch(ctx context.Context, interval time.Duration) {
	if _, err := r.Reload(ctx); err != nil {
		repoLogger.Error().Err(err).Msg("Error loading posts")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Reload(ctx); err != nil {
				repoLogger.Error().Err(err).Msg("Error reloading posts")
			}
		}
	}
}
