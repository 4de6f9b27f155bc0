// Command import loads a directory of markdown files into the configured
// storage. Each file becomes one post whose id is the file name, so running
// the import again updates the same posts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/debemdeboas/drafthouse/internal/config"
	"github.com/debemdeboas/drafthouse/internal/logger"
	"github.com/debemdeboas/drafthouse/internal/model"
	"github.com/debemdeboas/drafthouse/internal/repository"
	"github.com/debemdeboas/drafthouse/internal/util"
)

func main() {
	path := flag.String("path", "", "Path to the directory containing .md files")
	configPath := flag.String("config", "", "path to the config file")
	publish := flag.Bool("publish", false, "Publish every imported post instead of saving drafts")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(config.Path(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	repository.SetLogger(log)

	if *path == "" {
		log.Fatal().Msg("The -path flag is required")
	}

	ctx := context.Background()
	repo, closeRepo, err := repository.Open(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("Error opening storage")
	}
	defer closeRepo()

	imported, err := importDir(ctx, repo, *path, *publish, func(name string, err error) {
		log.Error().Err(err).Str("file", name).Msg("Error importing file")
	})
	if err != nil {
		log.Fatal().Err(err).Str("path", *path).Msg("Error reading directory")
	}
	log.Info().Int("posts", imported).Msg("Import finished")
}

// importDir imports every .md file in dir and returns how many were stored.
// Per-file failures are passed to onError and do not stop the import.
func importDir(ctx context.Context, repo repository.PostRepository, dir string, publish bool, onError func(string, error)) (int, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	imported := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".md") {
			continue
		}
		if err := importFile(ctx, repo, dir, file, publish); err != nil {
			onError(file.Name(), err)
			continue
		}
		imported++
	}
	return imported, nil
}

func importFile(ctx context.Context, repo repository.PostRepository, dir string, file os.DirEntry, publish bool) error {
	content, err := os.ReadFile(filepath.Join(dir, file.Name()))
	if err != nil {
		return err
	}

	fileInfo, err := file.Info()
	if err != nil {
		return err
	}
	modTime := fileInfo.ModTime().UTC()

	name := strings.TrimSuffix(file.Name(), ".md")
	post := &model.Post{
		ID:        model.PostID(name),
		Title:     name,
		Status:    model.StatusDraft,
		CreatedAt: modTime,
		UpdatedAt: modTime,
	}

	frontMatter, body := util.SplitFrontMatter(content)
	if frontMatter != nil {
		if frontMatter.Title != "" {
			post.Title = frontMatter.Title
		}
		if !frontMatter.Date.IsZero() {
			post.CreatedAt = frontMatter.Date.UTC()
		}
		post.Tags = model.CleanTags(frontMatter.Tags)
		publish = publish || frontMatter.Publish
	}
	post.Body = string(body)
	post.ContentHash = util.ContentHash(body)

	existing, err := repo.Get(ctx, post.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return err
	default:
		post.PublishedAt = existing.PublishedAt
		if existing.IsPublished() {
			post.Status = model.StatusPublished
		}
	}

	if publish {
		if err := model.ValidateForPublish(post.Draft()); err != nil {
			return err
		}
		post.Status = model.StatusPublished
	}
	if post.IsPublished() && post.PublishedAt == nil {
		publishedAt := time.Now().UTC()
		post.PublishedAt = &publishedAt
	}

	return repo.Put(ctx, post)
}
