package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/drafthouse/internal/config"
	"github.com/debemdeboas/drafthouse/internal/model"
	"github.com/debemdeboas/drafthouse/internal/repository"
)

func newTestServer(t *testing.T) (*httptest.Server, *repository.MemoryPostRepository) {
	t.Helper()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	store := repository.NewMemoryPostRepository()
	handler, _ := newApp(store, cfg.Render.SyntaxStyle)
	srv := httptest.NewServer(newRouter(cfg, handler, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv, store
}

func TestSaveDraftThroughRouter(t *testing.T) {
	srv, store := newTestServer(t)

	res, err := http.Post(srv.URL+"/api/blogs/save-draft", "application/json", strings.NewReader(`{"title":"Post1","content":"<p>Content</p>","tags":"a, b"}`))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201 Created, got %d", res.StatusCode)
	}
	if res.Header.Get("X-Frame-Options") != "deny" {
		t.Errorf("Expected secure headers, got %v", res.Header)
	}
	if res.Header.Get("Cache-Control") != "no-cache" {
		t.Errorf("Expected no-cache, got %q", res.Header.Get("Cache-Control"))
	}

	var post model.Post
	if err := json.NewDecoder(res.Body).Decode(&post); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	stored, err := store.Get(context.Background(), post.ID)
	if err != nil {
		t.Fatalf("Expected post to be stored: %v", err)
	}
	if stored.Title != "Post1" {
		t.Errorf("Expected stored title Post1, got %q", stored.Title)
	}
}

func TestGetPostNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	res, err := http.Get(srv.URL + "/api/blogs/nonexistent")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 Not Found, got %d", res.StatusCode)
	}
	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), "Not found") {
		t.Errorf("Expected body to contain error, got %s", body)
	}
}

func TestPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/blogs/publish", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204 No Content, got %d", res.StatusCode)
	}
	if res.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Expected wildcard origin, got %q", res.Header.Get("Access-Control-Allow-Origin"))
	}
}

func TestExternalWriteIsBroadcast(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	store := repository.NewMemoryPostRepository()
	handler, cached := newApp(store, cfg.Render.SyntaxStyle)
	srv := httptest.NewServer(newRouter(cfg, handler, zerolog.Nop()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/blogs/ext/events", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer res.Body.Close()

	// The connected event is written after the subscription is registered.
	buf := make([]byte, 512)
	if _, err := res.Body.Read(buf); err != nil {
		t.Fatalf("Failed to read connected event: %v", err)
	}

	// Written behind the server's back, as another process would.
	post := &model.Post{ID: "ext", Title: "External", Status: model.StatusDraft, UpdatedAt: time.Now()}
	if err := store.Put(ctx, post); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := cached.Reload(ctx); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	var got strings.Builder
	for !strings.Contains(got.String(), "event: "+eventReload) {
		n, err := res.Body.Read(buf)
		if err != nil {
			t.Fatalf("Stream ended before reload event: %v (got %q)", err, got.String())
		}
		got.Write(buf[:n])
	}
}
