// Package api serves the HTTP and MCP surfaces of the document service.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"

	"github.com/kalambet/howdo/internal/auth"
	"github.com/kalambet/howdo/internal/document"
	"github.com/kalambet/howdo/internal/metrics"
	"github.com/kalambet/howdo/internal/prerender"
	"github.com/kalambet/howdo/internal/render"
	"github.com/kalambet/howdo/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Store is the persistence the handlers need. Both storage backends
// satisfy it.
type Store interface {
	CreateUser(u storage.User) error
	GetUser(id string) (storage.User, error)
	GetUserByEmail(email string) (storage.User, error)
	CreateDocument(d storage.Document) error
	GetDocument(id string) (storage.Document, error)
	ListDocumentsForUser(userID string) ([]storage.Document, error)
	DeleteDocument(id string) error
}

// RenditionStore reads cached renditions written by the prerender worker.
type RenditionStore interface {
	GetRendition(documentID, format string) (storage.Rendition, error)
}

// DocumentRenderer renders a normalized record.
type DocumentRenderer interface {
	Render(ctx context.Context, rec document.Record, f render.Format) (render.Output, error)
}

type AppDeps struct {
	Store      Store
	Renderer   DocumentRenderer
	Jobs       prerender.Enqueuer // optional; nil disables prerendering
	Renditions RenditionStore     // optional; nil disables the rendition cache

	Issuer       *auth.Issuer // optional; nil disables session tokens
	RequireToken bool

	CORSOrigins []string
	AccessLog   io.Writer // optional combined-format access log
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

func (d AppDeps) documents() documents {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return documents{
		store:      d.Store,
		renderer:   d.Renderer,
		jobs:       d.Jobs,
		renditions: d.Renditions,
		metrics:    d.Metrics,
		logger:     logger,
	}
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	docs := deps.documents()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(deps.Logger))
	r.Use(sessionAuth(deps.Issuer))

	r.Get("/health", handleHealth)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", handleRegister(deps))
		r.Post("/login", handleLogin(deps))
		r.Get("/document-types", handleDocumentTypes)

		r.Group(func(r chi.Router) {
			if deps.RequireToken {
				r.Use(requireSession)
			}
			r.Post("/wizard", handleWizard(docs))
			r.Get("/documents", handleListDocuments(docs))
			r.Get("/documents/{id}", handleGetDocument(docs))
			r.Delete("/documents/{id}", handleDeleteDocument(docs))
			r.Get("/export/{id}", handleExport(docs))
			r.Get("/export/{id}/preview", handlePreview(docs))
		})
	})

	var h http.Handler = r
	if len(deps.CORSOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(deps.CORSOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
			handlers.ExposedHeaders([]string{"Content-Disposition", "X-Render-Fallback"}),
		)(h)
	}
	if deps.AccessLog != nil {
		h = handlers.CombinedLoggingHandler(deps.AccessLog, h)
	}
	return h
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
