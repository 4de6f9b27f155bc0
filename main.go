package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/drafthouse/internal/api"
	"github.com/debemdeboas/drafthouse/internal/blog"
	"github.com/debemdeboas/drafthouse/internal/config"
	"github.com/debemdeboas/drafthouse/internal/db"
	"github.com/debemdeboas/drafthouse/internal/logger"
	"github.com/debemdeboas/drafthouse/internal/model"
	"github.com/debemdeboas/drafthouse/internal/render"
	"github.com/debemdeboas/drafthouse/internal/repository"
	"github.com/debemdeboas/drafthouse/internal/sse"
)

const eventReload = "reload"

func main() {
	configPath := flag.String("config", "", "path to the config file (default $"+config.PathEnv+" or "+config.DefaultPath+")")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file loaded")
	}

	cfg, err := config.Load(config.Path(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	setLoggers(log)
	render.SetEngine(cfg.Render.Engine)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Server stopped")
}

func setLoggers(l zerolog.Logger) {
	config.SetLogger(l.With().Str("component", "config").Logger())
	db.SetLogger(l.With().Str("component", "db").Logger())
	repository.SetLogger(l.With().Str("component", "repository").Logger())
	render.SetLogger(l.With().Str("component", "render").Logger())
	blog.SetLogger(l.With().Str("component", "blog").Logger())
	api.SetLogger(l.With().Str("component", "api").Logger())
}

// newApp wires storage, the blog service, and the HTTP handler. The returned
// repository is the cached one; callers may start its watcher.
func newApp(store repository.PostRepository, syntaxStyle string) (*api.Handler, *repository.CachedPostRepository) {
	cached := repository.NewCachedPostRepository(store)

	var handler *api.Handler
	svc := blog.NewService(cached, blog.WithNotify(func(id model.PostID, event string) {
		handler.Notify(id, event)
	}))
	handler = api.NewHandler(svc, sse.NewSSEClients(), syntaxStyle)

	cached.SetReloadNotifier(func(id model.PostID) {
		handler.Notify(id, eventReload)
	})
	return handler, cached
}

func newRouter(cfg *config.Config, handler *api.Handler, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	handler.Register(mux)

	return api.Chain(mux,
		api.RequestLogger(log),
		api.CORS(cfg.Server.AllowedOrigins),
		api.SecureHeaders,
		api.NoCache,
	)
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	store, closeStore, err := repository.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("error opening %s storage: %w", cfg.Storage.Driver, err)
	}
	defer closeStore()

	handler, cached := newApp(store, cfg.Render.SyntaxStyle)
	if cfg.Storage.WatchInterval > 0 {
		go cached.Watch(ctx, cfg.Storage.WatchInterval)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           newRouter(cfg, handler, log),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		// Cancels open event streams on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("storage", cfg.Storage.Driver).
			Msg("Server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
