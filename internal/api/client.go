package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/debemdeboas/drafthouse/internal/config"
	"github.com/debemdeboas/drafthouse/internal/model"
	"github.com/debemdeboas/drafthouse/internal/repository"
	"github.com/debemdeboas/drafthouse/internal/routes"
)

// ErrNetwork is wrapped by every transport failure and unexpected response
// status returned by Client.
var ErrNetwork = errors.New("network error")

// Client talks to the blog API. It implements autosave.Persister.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Save(ctx context.Context, d model.Draft) (*model.Post, error) {
	return c.upsert(ctx, routes.BlogSaveDraft, d)
}

func (c *Client) Publish(ctx context.Context, d model.Draft) (*model.Post, error) {
	return c.upsert(ctx, routes.BlogPublish, d)
}

// Get returns repository.ErrNotFound when the server has no post with id.
func (c *Client) Get(ctx context.Context, id model.PostID) (*model.Post, error) {
	var post model.Post
	if err := c.do(ctx, http.MethodGet, "/api/blogs/"+url.PathEscape(string(id)), nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// List returns posts newest first, optionally filtered by status.
func (c *Client) List(ctx context.Context, status model.Status) ([]*model.Post, error) {
	path := routes.Blogs
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}

	var posts []*model.Post
	if err := c.do(ctx, http.MethodGet, path, nil, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (c *Client) upsert(ctx context.Context, path string, d model.Draft) (*model.Post, error) {
	var post model.Post
	if err := c.do(ctx, http.MethodPost, path, newDraftRequest(d), &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	if body != nil {
		req.Header.Set(config.HCType, config.CTypeJSON)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: error decoding response: %v", ErrNetwork, err)
		}
		return nil
	}

	var apiErr errorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&apiErr)

	switch {
	case resp.StatusCode == http.StatusBadRequest && len(apiErr.Fields) > 0:
		return &model.ValidationError{Fields: apiErr.Fields}
	case resp.StatusCode == http.StatusNotFound && method == http.MethodGet:
		return repository.ErrNotFound
	}

	msg := apiErr.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("%w: %s %s: %d %s", ErrNetwork, method, path, resp.StatusCode, msg)
}
