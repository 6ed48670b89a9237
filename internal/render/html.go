package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/kalambet/howdo/internal/layout"
)

//go:embed templates/page.html
var templatesFS embed.FS

type htmlTable struct {
	Class        string
	Rows         [][]string
	BoldFirstRow bool
}

var pageTemplate = template.Must(template.New("page.html").Funcs(template.FuncMap{
	"tableOf": func(class string, t *layout.Table) htmlTable {
		if t == nil {
			return htmlTable{Class: class}
		}
		return htmlTable{Class: class, Rows: t.Rows, BoldFirstRow: t.BoldFirstRow}
	},
}).ParseFS(templatesFS, "templates/page.html"))

func writeHTML(page layout.Page) ([]byte, error) {
	var buf bytes.Buffer
	if err := pageTemplate.ExecuteTemplate(&buf, "page.html", page); err != nil {
		return nil, fmt.Errorf("executing page template: %w", err)
	}
	return buf.Bytes(), nil
}
