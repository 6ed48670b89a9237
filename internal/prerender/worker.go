// Package prerender renders PDFs of new documents in the background so that
// exports can be served from the rendition cache.
package prerender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/howdo/internal/document"
	"github.com/kalambet/howdo/internal/metrics"
	"github.com/kalambet/howdo/internal/render"
	"github.com/kalambet/howdo/internal/storage"
)

// JobType is the queue type of prerender jobs.
const JobType = "render_pdf"

// JobStore abstracts the job queue and the records a job touches.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetDocument(id string) (storage.Document, error)
	SaveRendition(r storage.Rendition) error
}

// Enqueuer accepts new jobs.
type Enqueuer interface {
	EnqueueJob(job storage.Job) error
}

// Renderer produces a file for a record.
type Renderer interface {
	Render(ctx context.Context, rec document.Record, f render.Format) (render.Output, error)
}

type payload struct {
	DocumentID string `json:"document_id"`
}

// Enqueue schedules a PDF prerender of documentID.
func Enqueue(q Enqueuer, documentID string) error {
	data, err := json.Marshal(payload{DocumentID: documentID})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	return q.EnqueueJob(storage.Job{
		ID:          uuid.New().String(),
		Type:        JobType,
		PayloadJSON: string(data),
	})
}

// Worker processes render_pdf jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	renderer Renderer
	metrics  *metrics.Metrics
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
// m may be nil.
func NewWorker(store JobStore, renderer Renderer, m *metrics.Metrics, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		renderer: renderer,
		metrics:  m,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("prerender iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single render_pdf job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("prerender job failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
		w.metrics.PrerenderObserved(metrics.OutcomeError)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	w.metrics.PrerenderObserved(metrics.OutcomeOK)
	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var p payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	doc, err := w.store.GetDocument(p.DocumentID)
	if errors.Is(err, storage.ErrNotFound) {
		w.logger.Info("document deleted before prerender", "document_id", p.DocumentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading document %s: %w", p.DocumentID, err)
	}

	rec := document.Normalize(doc.Answers, doc.Type, doc.CreatedAt)
	out, err := w.renderer.Render(ctx, rec, render.FormatPDF)
	if err != nil {
		return err
	}
	// HTML fallbacks are never cached as PDF.
	if out.Fallback {
		return fmt.Errorf("pdf unavailable: %s", out.FallbackReason)
	}

	err = w.store.SaveRendition(storage.Rendition{
		DocumentID:  doc.ID,
		Format:      string(out.Format),
		ContentType: out.ContentType(),
		Data:        out.Data,
		CreatedAt:   time.Now().UTC(),
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("saving rendition: %w", err)
	}
	w.logger.Debug("pdf prerendered", "document_id", doc.ID, "bytes", len(out.Data))
	return nil
}
