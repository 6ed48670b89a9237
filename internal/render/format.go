package render

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrUnknownFormat is returned by ParseFormat for an unsupported format tag.
var ErrUnknownFormat = errors.New("unknown export format")

// Format is an output file format.
type Format string

const (
	FormatDOCX Format = "docx"
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// ParseFormat accepts docx, html or pdf. An empty tag means docx.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatDOCX, nil
	case FormatDOCX, FormatHTML, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ContentType returns the MIME type of files in this format.
func (f Format) ContentType() string {
	switch f {
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/html; charset=utf-8"
	}
}

// Ext returns the file extension without the dot.
func (f Format) Ext() string { return string(f) }

// FallbackPolicy decides what happens when PDF conversion fails.
type FallbackPolicy string

const (
	// FallbackHTML serves the HTML rendition instead of failing.
	FallbackHTML FallbackPolicy = "html"
	// FallbackNone surfaces the conversion error.
	FallbackNone FallbackPolicy = "none"
)

// ParseFallbackPolicy accepts html or none. An empty value means html.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch p := FallbackPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return FallbackHTML, nil
	case FallbackHTML, FallbackNone:
		return p, nil
	default:
		return "", fmt.Errorf("unknown fallback policy %q (want html or none)", s)
	}
}

// Output is a rendered file.
type Output struct {
	Data []byte
	// Format is the format actually produced. It differs from Requested
	// only when Fallback is set.
	Format         Format
	Requested      Format
	Fallback       bool
	FallbackReason string
}

func (o Output) ContentType() string { return o.Format.ContentType() }
func (o Output) Ext() string         { return o.Format.Ext() }

// RenderError reports a failure to produce a file in the requested format.
type RenderError struct {
	Format Format
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("rendering %s: %v", e.Format, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

const maxFilenameRunes = 100

// Filename turns a document title into a safe download file name.
func Filename(title string, f Format) string {
	var sb strings.Builder
	n := 0
	lastUnderscore := false
	for _, r := range strings.TrimSpace(title) {
		if n == maxFilenameRunes {
			break
		}
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-') {
			r = '_'
		}
		if r == '_' {
			if lastUnderscore {
				continue
			}
			lastUnderscore = true
		} else {
			lastUnderscore = false
		}
		sb.WriteRune(r)
		n++
	}
	name := strings.Trim(sb.String(), "_")
	if name == "" {
		name = "document"
	}
	return name + "." + f.Ext()
}
