// Command draftctl is a terminal editor for blog posts. Edits are saved
// automatically through the blog API while you type.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/debemdeboas/drafthouse/internal/api"
	"github.com/debemdeboas/drafthouse/internal/autosave"
	"github.com/debemdeboas/drafthouse/internal/config"
	"github.com/debemdeboas/drafthouse/internal/logger"
	"github.com/debemdeboas/drafthouse/internal/model"
	"github.com/debemdeboas/drafthouse/internal/repository"
)

func main() {
	id := flag.String("id", "", "id of an existing post to edit")
	configPath := flag.String("config", "", "path to the config file")
	server := flag.String("server", "", "blog API base URL (overrides client.server_url)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(config.Path(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *server != "" {
		cfg.Client.ServerURL = *server
	}

	// Logs go to stderr so they don't interleave with the editor prompt.
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := api.NewClient(cfg.Client.ServerURL, cfg.Client.Timeout)

	var draft model.Draft
	if *id != "" {
		post, err := client.Get(ctx, model.PostID(*id))
		if errors.Is(err, repository.ErrNotFound) {
			log.Fatal().Str("post_id", *id).Msg("Post not found")
		}
		if err != nil {
			log.Fatal().Err(err).Str("server", cfg.Client.ServerURL).Msg("Error loading post")
		}
		draft = post.Draft()
	}

	sess := newSession(client, draft, os.Stdout,
		autosave.WithDebounce(cfg.Autosave.Debounce),
		autosave.WithBackstop(cfg.Autosave.Backstop),
		autosave.WithLogger(log.With().Str("component", "autosave").Logger()),
		autosave.WithContext(ctx),
	)
	if err := sess.run(ctx, os.Stdin); err != nil {
		log.Fatal().Err(err).Msg("Editor failed")
	}
}
