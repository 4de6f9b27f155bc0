// Package blog implements save, publish, and lookup of posts on top of a
// PostRepository. Service satisfies autosave.Persister, so an editing session
// can run in the same process as the store.
package blog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/drafthouse/internal/model"
	"github.com/debemdeboas/drafthouse/internal/repository"
	"github.com/debemdeboas/drafthouse/internal/util"
)

// Events passed to the notify hook.
const (
	EventSaved     = "saved"
	EventPublished = "published"
)

var blogLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	blogLogger = l
}

// NotifyFunc is called after every successful save or publish.
type NotifyFunc func(id model.PostID, event string)

type Service struct {
	repo   repository.PostRepository
	clock  clockwork.Clock
	notify NotifyFunc
}

type Option func(*Service)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

func WithNotify(fn NotifyFunc) Option {
	return func(s *Service) { s.notify = fn }
}

func NewService(repo repository.PostRepository, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save stores d as a draft. A post that was published stays published.
func (s *Service) Save(ctx context.Context, d model.Draft) (*model.Post, error) {
	post, _, err := s.Upsert(ctx, d, false)
	return post, err
}

// Publish validates d and stores it as published. A *model.ValidationError is
// returned, and nothing is stored, when validation fails.
func (s *Service) Publish(ctx context.Context, d model.Draft) (*model.Post, error) {
	post, _, err := s.Upsert(ctx, d, true)
	return post, err
}

// Upsert creates or updates the post for d and reports whether it was
// created. A draft without an ID gets a new one; an ID that is not stored yet
// is created under that ID.
func (s *Service) Upsert(ctx context.Context, d model.Draft, publish bool) (*model.Post, bool, error) {
	d.Title = strings.TrimSpace(d.Title)
	d.Tags = model.CleanTags(d.Tags)

	if publish {
		if err := model.ValidateForPublish(d); err != nil {
			return nil, false, err
		}
	}

	var existing *model.Post
	if d.ID == "" {
		d.ID = model.NewPostID()
	} else {
		var err error
		existing, err = s.repo.Get(ctx, d.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, false, fmt.Errorf("error loading post %s: %w", d.ID, err)
		}
	}

	now := s.clock.Now().UTC()
	post := &model.Post{
		ID:          d.ID,
		Title:       d.Title,
		Body:        d.Body,
		Tags:        d.Tags,
		Status:      model.StatusDraft,
		ContentHash: util.ContentHashString(d.Body),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing != nil {
		post.CreatedAt = existing.CreatedAt
		post.PublishedAt = existing.PublishedAt
		if existing.IsPublished() {
			post.Status = model.StatusPublished
		}
	}
	if publish || d.IsPublished() {
		post.Status = model.StatusPublished
	}
	if post.IsPublished() && post.PublishedAt == nil {
		post.PublishedAt = &now
	}

	if err := s.repo.Put(ctx, post); err != nil {
		return nil, false, fmt.Errorf("error storing post %s: %w", post.ID, err)
	}

	event := EventSaved
	if publish {
		event = EventPublished
	}
	blogLogger.Info().
		Str("post_id", string(post.ID)).
		Str("event", event).
		Bool("created", existing == nil).
		Msg("Post stored")

	if s.notify != nil {
		s.notify(post.ID, event)
	}
	return post, existing == nil, nil
}

// Get returns repository.ErrNotFound when id is unknown.
func (s *Service) Get(ctx context.Context, id model.PostID) (*model.Post, error) {
	return s.repo.Get(ctx, id)
}

// List returns posts newest first. An empty status returns every post.
func (s *Service) List(ctx context.Context, status model.Status) ([]*model.Post, error) {
	posts, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing posts: %w", err)
	}

	if status != "" {
		filtered := posts[:0]
		for _, post := range posts {
			if post.Status == status {
				filtered = append(filtered, post)
			}
		}
		posts = filtered
	}

	repository.SortPosts(posts)
	return posts, nil
}
