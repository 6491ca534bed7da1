// Package api exposes the stories HTTP endpoints.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"stories-api/pkg/storage"
)

// TitleResolver derives the title stored with a new story.
type TitleResolver interface {
	Resolve(ctx context.Context, url string) string
}

// Handler serves the stories endpoints.
type Handler struct {
	store    storage.Store
	resolver TitleResolver
	logger   *slog.Logger
}

// New creates a Handler over the given gateway and title resolver.
func New(store storage.Store, resolver TitleResolver, logger *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		resolver: resolver,
		logger:   logger,
	}
}

// Routes returns the router with middleware applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /stories", h.withMiddleware(h.listStories))
	mux.HandleFunc("POST /stories", h.withMiddleware(h.createStory))
	mux.HandleFunc("POST /stories/{id}/votes", h.withMiddleware(h.upVote))
	mux.HandleFunc("GET /health", h.health)

	return mux
}

func (h *Handler) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return h.recovery(h.logRequest(next))
}

// listStories returns the ranked stories.
//
// API: GET /stories
func (h *Handler) listStories(w http.ResponseWriter, r *http.Request) {
	stories, err := h.store.FetchAll(r.Context())
	if err != nil {
		h.internalError(w, "fetch stories failed", err)
		return
	}
	h.writeJSON(w, stories, http.StatusOK)
}

// createStory resolves the title of the submitted url, then stores the story.
//
// API: POST /stories
// Body: {"url": "https://..."}
func (h *Handler) createStory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorJSON(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// a client hanging up does not abort the fetch or the insert
	ctx := context.WithoutCancel(r.Context())
	title := h.resolver.Resolve(ctx, req.URL)

	story, err := h.store.Insert(ctx, req.URL, title)
	if err != nil {
		h.internalError(w, "insert story failed", err, "url", req.URL)
		return
	}
	h.writeJSON(w, story, http.StatusOK)
}

// upVote adds one vote to a story.
//
// API: POST /stories/{id}/votes
func (h *Handler) upVote(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.errorJSON(w, "invalid story id", http.StatusBadRequest)
		return
	}

	story, ok, err := h.store.UpVote(context.WithoutCancel(r.Context()), id)
	if err != nil {
		h.internalError(w, "up vote failed", err, "id", id)
		return
	}
	if !ok {
		h.errorJSON(w, "story not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, story, http.StatusOK)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (h *Handler) writeJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("encode json failed", "error", err)
	}
}

func (h *Handler) errorJSON(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, map[string]string{"error": message}, status)
}

// internalError logs err with the given attributes and writes a generic 500.
func (h *Handler) internalError(w http.ResponseWriter, msg string, err error, attrs ...any) {
	h.logger.Error(msg, append(attrs, "error", err)...)
	h.errorJSON(w, "internal server error", http.StatusInternalServerError)
}

func (h *Handler) logRequest(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next(wrapped, r)

		h.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"ip", r.RemoteAddr,
		)
	}
}

func (h *Handler) recovery(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				h.errorJSON(w, "internal server error", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter captures the status code for the request log.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (w *responseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
