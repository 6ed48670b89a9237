// Package render produces DOCX, HTML and PDF files from a normalized
// document record.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/kalambet/howdo/internal/document"
	"github.com/kalambet/howdo/internal/layout"
	"github.com/kalambet/howdo/internal/metrics"
)

// DefaultPDFTimeout bounds a single HTML to PDF conversion.
const DefaultPDFTimeout = 30 * time.Second

var errPDFDisabled = errors.New("pdf conversion is disabled")

// PDFConverter turns a self-contained HTML page into PDF bytes.
type PDFConverter interface {
	Convert(ctx context.Context, html []byte) ([]byte, error)
}

// Options configures a Renderer. The zero value renders DOCX and HTML and
// falls back to HTML for every PDF request.
type Options struct {
	PDF        PDFConverter
	Fallback   FallbackPolicy
	PDFTimeout time.Duration
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Renderer turns records into files using one layout per document kind.
type Renderer struct {
	layouts  *layout.Set
	pdf      PDFConverter
	fallback FallbackPolicy
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger

	// validatePDF is swapped out in tests.
	validatePDF func([]byte) error
}

func New(layouts *layout.Set, opts Options) *Renderer {
	r := &Renderer{
		layouts:     layouts,
		pdf:         opts.PDF,
		fallback:    opts.Fallback,
		timeout:     opts.PDFTimeout,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		validatePDF: validatePDF,
	}
	if r.fallback == "" {
		r.fallback = FallbackHTML
	}
	if r.timeout <= 0 {
		r.timeout = DefaultPDFTimeout
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Render produces rec in format f. A failed PDF conversion yields the HTML
// rendition with Fallback set, unless the policy is FallbackNone, in which
// case a *RenderError is returned.
func (r *Renderer) Render(ctx context.Context, rec document.Record, f Format) (Output, error) {
	start := time.Now()
	out, err := r.render(ctx, rec, f)

	outcome := metrics.OutcomeOK
	switch {
	case err != nil:
		outcome = metrics.OutcomeError
	case out.Fallback:
		outcome = metrics.OutcomeFallback
	}
	r.metrics.RenderObserved(string(f), outcome, time.Since(start))
	return out, err
}

func (r *Renderer) render(ctx context.Context, rec document.Record, f Format) (Output, error) {
	page, err := r.layouts.Resolve(rec)
	if err != nil {
		return Output{}, &RenderError{Format: f, Err: err}
	}

	switch f {
	case FormatDOCX:
		data, err := writeDOCX(page, rec.CreatedAt)
		if err != nil {
			return Output{}, &RenderError{Format: f, Err: err}
		}
		return Output{Data: data, Format: f, Requested: f}, nil

	case FormatHTML:
		data, err := writeHTML(page)
		if err != nil {
			return Output{}, &RenderError{Format: f, Err: err}
		}
		return Output{Data: data, Format: f, Requested: f}, nil

	case FormatPDF:
		html, err := writeHTML(page)
		if err != nil {
			return Output{}, &RenderError{Format: f, Err: err}
		}
		data, err := r.convert(ctx, html)
		if err != nil {
			return r.fallbackOutput(html, err)
		}
		return Output{Data: data, Format: f, Requested: f}, nil

	default:
		return Output{}, &RenderError{Format: f, Err: fmt.Errorf("%w: %q", ErrUnknownFormat, f)}
	}
}

func (r *Renderer) convert(ctx context.Context, html []byte) ([]byte, error) {
	if r.pdf == nil {
		return nil, errPDFDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := r.pdf.Convert(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("converting html to pdf: %w", err)
	}
	if err := r.validatePDF(data); err != nil {
		return nil, fmt.Errorf("validating pdf: %w", err)
	}
	return data, nil
}

func (r *Renderer) fallbackOutput(html []byte, cause error) (Output, error) {
	if r.fallback == FallbackNone {
		return Output{}, &RenderError{Format: FormatPDF, Err: cause}
	}
	if !errors.Is(cause, errPDFDisabled) {
		r.logger.Warn("pdf conversion failed, serving html", "error", cause)
	}
	return Output{
		Data:           html,
		Format:         FormatHTML,
		Requested:      FormatPDF,
		Fallback:       true,
		FallbackReason: cause.Error(),
	}, nil
}

// validatePDF checks that data parses as PDF and has at least one page.
func validatePDF(data []byte) (err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("parsing pdf: %v", p)
		}
	}()

	rd, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("parsing pdf: %w", err)
	}
	if rd.NumPage() == 0 {
		return errors.New("pdf has no pages")
	}
	return nil
}
