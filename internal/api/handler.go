// Package api serves the blog HTTP API and provides a client for it.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/drafthouse/internal/config"
	"github.com/debemdeboas/drafthouse/internal/model"
	"github.com/debemdeboas/drafthouse/internal/render"
	"github.com/debemdeboas/drafthouse/internal/repository"
	"github.com/debemdeboas/drafthouse/internal/routes"
	"github.com/debemdeboas/drafthouse/internal/sse"
)

const previewPlaceholder = "Start typing in the editor to see a preview here."

var apiLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	apiLogger = l
}

// Blogs is the store behind the API. *blog.Service implements it.
type Blogs interface {
	Upsert(ctx context.Context, d model.Draft, publish bool) (*model.Post, bool, error)
	Get(ctx context.Context, id model.PostID) (*model.Post, error)
	List(ctx context.Context, status model.Status) ([]*model.Post, error)
}

type Handler struct {
	blogs       Blogs
	clients     *sse.SSEClients
	syntaxStyle string
}

func NewHandler(blogs Blogs, clients *sse.SSEClients, syntaxStyle string) *Handler {
	return &Handler{
		blogs:       blogs,
		clients:     clients,
		syntaxStyle: syntaxStyle,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST "+routes.BlogSaveDraft, h.upsert(false, "Failed to save draft."))
	mux.HandleFunc("POST "+routes.BlogPublish, h.upsert(true, "Failed to publish blog."))
	mux.HandleFunc("GET "+routes.Blogs, h.list)
	mux.HandleFunc("GET "+routes.Blog, h.get)
	mux.HandleFunc("GET "+routes.BlogHTML, h.html)
	mux.HandleFunc("GET "+routes.BlogEvents, h.events)
	mux.HandleFunc("POST "+routes.Preview, h.preview)
	mux.HandleFunc("GET "+routes.SyntaxTheme, h.syntax)
	mux.HandleFunc("GET "+routes.Health, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

// Notify broadcasts a post event to its SSE subscribers. It matches
// blog.NotifyFunc.
func (h *Handler) Notify(id model.PostID, event string) {
	data, err := json.Marshal(map[string]string{"id": string(id), "event": event})
	if err != nil {
		return
	}
	h.clients.Broadcast(id, sse.Event{Name: event, Data: string(data)})
}

func (h *Handler) upsert(publish bool, failMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req draftRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body.")
			return
		}

		post, created, err := h.blogs.Upsert(r.Context(), req.draft(), publish)

		var verr *model.ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Validation failed.", Fields: verr.Fields})
			return
		case err != nil:
			apiLogger.Error().Err(err).Str("post_id", string(req.ID)).Bool("publish", publish).Msg("Error storing post")
			writeError(w, http.StatusInternalServerError, failMsg)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
			w.Header().Set(config.HLocation, "/api/blogs/"+string(post.ID))
		}
		writeJSON(w, status, post)
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	status := model.Status(r.URL.Query().Get("status"))
	if status != "" && status != model.StatusDraft && status != model.StatusPublished {
		writeError(w, http.StatusBadRequest, "Unknown status.")
		return
	}

	posts, err := h.blogs.List(r.Context(), status)
	if err != nil {
		apiLogger.Error().Err(err).Msg("Error listing posts")
		writeError(w, http.StatusInternalServerError, "Failed to fetch blogs.")
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*model.Post, bool) {
	post, err := h.blogs.Get(r.Context(), model.PostID(r.PathValue("id")))
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not found")
		return nil, false
	}
	if err != nil {
		apiLogger.Error().Err(err).Str("post_id", r.PathValue("id")).Msg("Error reading post")
		writeError(w, http.StatusInternalServerError, "Failed to fetch blog.")
		return nil, false
	}
	return post, true
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	if post, ok := h.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, post)
	}
}

func (h *Handler) styleFromRequest(r *http.Request) string {
	if style := r.URL.Query().Get("style"); style != "" && render.HasSyntaxStyle(style) {
		return style
	}
	return h.syntaxStyle
}

func (h *Handler) html(w http.ResponseWriter, r *http.Request) {
	post, ok := h.lookup(w, r)
	if !ok {
		return
	}

	htmlContent, _ := render.RenderMarkdownCached([]byte(post.Body), post.ContentHash, h.styleFromRequest(r))

	w.Header().Set(config.HCType, config.CTypeHTML)
	w.WriteHeader(http.StatusOK)
	w.Write(htmlContent)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	content := r.FormValue("content")
	if content == "" {
		content = previewPlaceholder
	}

	htmlContent, _ := render.RenderMarkdown([]byte(content), h.styleFromRequest(r))

	w.Header().Set(config.HCType, config.CTypeHTML)
	w.WriteHeader(http.StatusOK)
	w.Write(htmlContent)
}

func (h *Handler) syntax(w http.ResponseWriter, r *http.Request) {
	style := r.PathValue("theme")
	if !render.HasSyntaxStyle(style) {
		http.NotFound(w, r)
		return
	}

	w.Header().Set(config.HCType, config.CTypeCSS)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(render.SyntaxCSS(style)))
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set(config.HCType, config.CTypeEventStream)
	w.Header().Set(config.HCacheControl, "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Del("X-Content-Type-Options")
	w.WriteHeader(http.StatusOK)

	client := sse.NewClient(model.PostID(r.PathValue("id")))
	h.clients.Add(client)
	defer h.clients.Delete(client)

	sse.Event{Name: "connected", Data: "SSE connection established"}.WriteTo(w)
	flusher.Flush()

	apiLogger.Debug().Str("post_id", string(client.PostID)).Msg("SSE client connected")
	defer apiLogger.Debug().Str("post_id", string(client.PostID)).Msg("SSE client disconnected")

	for {
		select {
		case e, ok := <-client.Events:
			if !ok {
				return
			}
			if _, err := e.WriteTo(w); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
