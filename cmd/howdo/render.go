package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/howdo/internal/answers"
	"github.com/kalambet/howdo/internal/document"
	"github.com/kalambet/howdo/internal/layout"
	"github.com/kalambet/howdo/internal/render"
)

var renderCmd = &cobra.Command{
	Use:   "render <answers.json>",
	Short: "Render a document from an answers file without a server",
	Long: `Render a document from an answers file without a server.

The answers file is a JSON object with keys q1..q8 or their named
equivalents (company, businessArea, processName, audience, goal, steps,
resources, results).

Examples:
  howdo render answers.json
  howdo render answers.json --type instruction --format docx,html
  howdo render answers.json --format pdf --chrome /usr/bin/chromium --out ./out`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		docType, _ := cmd.Flags().GetString("type")
		formats, _ := cmd.Flags().GetString("format")
		outDir, _ := cmd.Flags().GetString("out")
		chromeBin, _ := cmd.Flags().GetString("chrome")
		fallback, _ := cmd.Flags().GetString("fallback")

		paths, err := renderFile(cmd.Context(), renderOptions{
			answersPath: args[0],
			docType:     docType,
			formats:     formats,
			outDir:      outDir,
			chromeBin:   chromeBin,
			fallback:    fallback,
		})
		for _, p := range paths {
			printSuccess("Wrote %s", p)
		}
		return err
	},
}

func init() {
	renderCmd.Flags().String("type", "sok", "document type: sok, instruction or procedure")
	renderCmd.Flags().String("format", "docx", "comma-separated output formats: docx, html, pdf")
	renderCmd.Flags().String("out", ".", "output directory")
	renderCmd.Flags().String("chrome", "", "Chromium binary for PDF output (default: located by rod)")
	renderCmd.Flags().String("fallback", "html", "PDF fallback policy: html or none")
}

type renderOptions struct {
	answersPath string
	docType     string
	formats     string
	outDir      string
	chromeBin   string
	fallback    string

	pdf render.PDFConverter // overrides the Chromium converter when set
}

// renderFile renders the answers file in every requested format
// concurrently and returns the paths written.
func renderFile(ctx context.Context, opts renderOptions) ([]string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	data, err := os.ReadFile(opts.answersPath)
	if err != nil {
		return nil, fmt.Errorf("reading answers: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing answers: %w", err)
	}
	kind, err := document.ParseKind(opts.docType)
	if err != nil {
		return nil, err
	}
	a := answers.Parse(raw)
	if a.Empty() {
		return nil, fmt.Errorf("answers file %s has no answers", opts.answersPath)
	}

	var formats []render.Format
	seen := make(map[render.Format]bool)
	needPDF := false
	for _, s := range strings.Split(opts.formats, ",") {
		f, err := render.ParseFormat(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		formats = append(formats, f)
		needPDF = needPDF || f == render.FormatPDF
	}

	policy, err := render.ParseFallbackPolicy(opts.fallback)
	if err != nil {
		return nil, err
	}
	layouts, err := layout.Default()
	if err != nil {
		return nil, err
	}
	ropts := render.Options{Fallback: policy}
	switch {
	case opts.pdf != nil:
		ropts.PDF = opts.pdf
	case needPDF:
		chrome := render.NewChromeConverter(opts.chromeBin, nil)
		defer chrome.Close()
		ropts.PDF = chrome
	}
	renderer := render.New(layouts, ropts)

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	rec := document.Normalize(a, kind, time.Now())
	title := document.Title(a, kind)

	paths := make([]string, len(formats))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range formats {
		g.Go(func() error {
			out, err := renderer.Render(gctx, rec, f)
			if err != nil {
				return err
			}
			if out.Fallback {
				printWarning("%s fell back to %s: %s", f, out.Format, out.FallbackReason)
				// The requested rendition of that format writes the same file.
				if seen[out.Format] {
					return nil
				}
			}
			p := filepath.Join(opts.outDir, render.Filename(title, out.Format))
			if err := os.WriteFile(p, out.Data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", p, err)
			}
			paths[i] = p
			return nil
		})
	}
	err = g.Wait()

	written := paths[:0]
	for _, p := range paths {
		if p != "" {
			written = append(written, p)
		}
	}
	return written, err
}
