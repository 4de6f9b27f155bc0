package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debemdeboas/drafthouse/internal/model"
	"github.com/debemdeboas/drafthouse/internal/repository"
)

const withFrontMatter = `%%%
title = "Hello, World"
date = 2024-05-01T10:00:00Z
tags = ["go", " web dev "]
%%%

# Hello

Body text.
`

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.md"), 0o755))
	return dir
}

func TestImportDir(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"hello.md":   withFrontMatter,
		"plain.md":   "Just a body",
		"notes.txt":  "ignored",
		"invalid.md": "%%%\ntitle = \n%%%\nbody",
	})

	repo := repository.NewMemoryPostRepository()
	ctx := context.Background()

	var failed []string
	n, err := importDir(ctx, repo, dir, false, func(name string, err error) {
		failed = append(failed, name)
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, failed)

	hello, err := repo.Get(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello, World", hello.Title)
	assert.Equal(t, []string{"go", "web dev"}, hello.Tags)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), hello.CreatedAt)
	assert.Equal(t, "# Hello\n\nBody text.\n", hello.Body)
	assert.Equal(t, model.StatusDraft, hello.Status)
	assert.NotEmpty(t, hello.ContentHash)

	plain, err := repo.Get(ctx, "plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", plain.Title)
	assert.Equal(t, "Just a body", plain.Body)

	// Broken front matter is kept as part of the body.
	invalid, err := repo.Get(ctx, "invalid")
	require.NoError(t, err)
	assert.Equal(t, "invalid", invalid.Title)
}

func TestImportPublish(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"hello.md": withFrontMatter,
		"empty.md": "",
	})

	repo := repository.NewMemoryPostRepository()
	ctx := context.Background()

	var failed []string
	n, err := importDir(ctx, repo, dir, true, func(name string, err error) {
		var verr *model.ValidationError
		assert.ErrorAs(t, err, &verr)
		failed = append(failed, name)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"empty.md"}, failed)

	hello, err := repo.Get(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublished, hello.Status)
	require.NotNil(t, hello.PublishedAt)

	t.Run("Reimport keeps publish date", func(t *testing.T) {
		publishedAt := *hello.PublishedAt

		_, err := importDir(ctx, repo, dir, false, func(string, error) {})
		require.NoError(t, err)

		again, err := repo.Get(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, model.StatusPublished, again.Status)
		assert.Equal(t, publishedAt, *again.PublishedAt)
	})
}

func TestImportMissingDir(t *testing.T) {
	_, err := importDir(context.Background(), repository.NewMemoryPostRepository(), filepath.Join(t.TempDir(), "nope"), false, nil)
	assert.Error(t, err)
}
