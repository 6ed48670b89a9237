package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/howdo/internal/answers"
	"github.com/kalambet/howdo/internal/document"
	"github.com/kalambet/howdo/internal/metrics"
	"github.com/kalambet/howdo/internal/prerender"
	"github.com/kalambet/howdo/internal/render"
	"github.com/kalambet/howdo/internal/storage"
)

var errEmptyAnswers = errors.New("answers are required")

// documents is the document workflow shared by the HTTP handlers and the
// MCP tools.
type documents struct {
	store      Store
	renderer   DocumentRenderer
	jobs       prerender.Enqueuer
	renditions RenditionStore
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// create validates and stores a new document owned by userID.
func (d documents) create(userID string, raw map[string]any, docType string) (storage.Document, error) {
	kind, err := document.ParseKind(docType)
	if err != nil {
		return storage.Document{}, err
	}
	a := answers.Parse(raw)
	if a.Empty() {
		return storage.Document{}, errEmptyAnswers
	}
	if _, err := d.store.GetUser(userID); err != nil {
		return storage.Document{}, fmt.Errorf("user %s: %w", userID, err)
	}

	doc := storage.Document{
		ID:        newID(),
		UserID:    userID,
		Title:     document.Title(a, kind),
		Type:      kind,
		Answers:   a,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.store.CreateDocument(doc); err != nil {
		return storage.Document{}, fmt.Errorf("saving document: %w", err)
	}
	d.metrics.DocumentCreated(string(kind))

	if d.jobs != nil {
		if err := prerender.Enqueue(d.jobs, doc.ID); err != nil {
			d.logger.Warn("failed to enqueue prerender", "document_id", doc.ID, "error", err)
		}
	}
	return doc, nil
}

// export renders doc in format f. A cached PDF rendition is used when one
// exists.
func (d documents) export(ctx context.Context, doc storage.Document, f render.Format) (render.Output, error) {
	if f == render.FormatPDF && d.renditions != nil {
		r, err := d.renditions.GetRendition(doc.ID, string(render.FormatPDF))
		switch {
		case err == nil:
			return render.Output{Data: r.Data, Format: render.FormatPDF, Requested: f}, nil
		case !errors.Is(err, storage.ErrNotFound):
			d.logger.Warn("rendition lookup failed", "document_id", doc.ID, "error", err)
		}
	}
	rec := document.Normalize(doc.Answers, doc.Type, doc.CreatedAt)
	return d.renderer.Render(ctx, rec, f)
}

type documentSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
}

type documentDetail struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Title     string          `json:"title"`
	Type      string          `json:"type"`
	Answers   answers.Answers `json:"answers"`
	CreatedAt string          `json:"created_at"`
}

type documentType struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	MaxSteps int    `json:"max_steps"`
}

func summarize(docs []storage.Document) []documentSummary {
	out := make([]documentSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentSummary{
			ID:        d.ID,
			Title:     d.Title,
			Type:      string(d.Type),
			CreatedAt: d.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}

func detail(d storage.Document) documentDetail {
	return documentDetail{
		ID:        d.ID,
		UserID:    d.UserID,
		Title:     d.Title,
		Type:      string(d.Type),
		Answers:   d.Answers,
		CreatedAt: d.CreatedAt.Format(time.RFC3339),
	}
}

func documentTypes() []documentType {
	out := make([]documentType, len(document.Kinds))
	for i, k := range document.Kinds {
		out[i] = documentType{Type: string(k), Name: k.DisplayName(), MaxSteps: k.MaxSteps()}
	}
	return out
}

func newID() string {
	return uuid.New().String()
}

func validID(id string) bool {
	return strings.TrimSpace(id) != ""
}
