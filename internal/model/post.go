// Package model defines core data structures and types for the blog application.
package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type PostID string

func NewPostID() PostID {
	return PostID(uuid.New().String())
}

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Post is the persisted form of a blog post.
type Post struct {
	ID PostID `json:"id" dynamodbav:"id"`

	Title string   `json:"title" dynamodbav:"title"`
	Body  string   `json:"content" dynamodbav:"content"`
	Tags  []string `json:"tags" dynamodbav:"tags"`

	Status Status `json:"status" dynamodbav:"status"`

	// Hash of Body, used for change detection and render cache keys.
	ContentHash string `json:"contentHash,omitempty" dynamodbav:"content_hash"`

	CreatedAt   time.Time  `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" dynamodbav:"modified_at"`
	PublishedAt *time.Time `json:"publishedAt,omitempty" dynamodbav:"published_at,omitempty"`
}

func (p *Post) IsPublished() bool {
	return p.Status == StatusPublished
}

// Draft returns the editable view of the post.
func (p *Post) Draft() Draft {
	return Draft{
		ID:     p.ID,
		Title:  p.Title,
		Body:   p.Body,
		Tags:   slices.Clone(p.Tags),
		Status: p.Status,
	}
}

// Clone returns a deep copy of the post.
func (p *Post) Clone() *Post {
	c := *p
	c.Tags = slices.Clone(p.Tags)
	if p.PublishedAt != nil {
		t := *p.PublishedAt
		c.PublishedAt = &t
	}
	return &c
}
