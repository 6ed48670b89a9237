// Package layout holds the fixed report layouts and resolves them against a
// normalized record into a format-independent Page.
package layout

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/howdo/internal/document"
)

//go:embed layouts.yaml
var defaultLayouts []byte

// BlockType names a layout building block.
type BlockType string

const (
	BlockSpacer     BlockType = "spacer"
	BlockHeading    BlockType = "heading"
	BlockParagraph  BlockType = "paragraph"
	BlockInfoTable  BlockType = "info_table"
	BlockStepTable  BlockType = "step_table"
	BlockStepList   BlockType = "step_list"
	BlockSignatures BlockType = "signatures"
)

type fileSpec struct {
	Footer  string                `yaml:"footer"`
	Layouts map[string]layoutSpec `yaml:"layouts"`
}

type layoutSpec struct {
	Title    string      `yaml:"title"`
	Subtitle string      `yaml:"subtitle"`
	Blocks   []blockSpec `yaml:"blocks"`
}

type blockSpec struct {
	Type    BlockType    `yaml:"type"`
	Level   int          `yaml:"level"`
	Label   string       `yaml:"label"`
	Text    string       `yaml:"text"`
	Heading string       `yaml:"heading"`
	Rows    []rowSpec    `yaml:"rows"`
	Columns []columnSpec `yaml:"columns"`
	Signers []string     `yaml:"signers"`
	Line    string       `yaml:"line"`
}

type rowSpec struct {
	Label string `yaml:"label"`
	Value string `yaml:"value"`
}

type columnSpec struct {
	Header string `yaml:"header"`
	Cell   string `yaml:"cell"`
}

// Fields is the template data for every text in a layout.
type Fields struct {
	Kind         string
	Company      string
	BusinessArea string
	ProcessName  string
	Audience     string
	Goal         string
	Resources    string
	Results      string
	Date         string
}

// StepFields is the template data for per-step cells.
type StepFields struct {
	Fields
	N    int
	Step string
}

// Page is a layout resolved against one record.
type Page struct {
	Kind     document.Kind
	Title    string
	Subtitle string
	Blocks   []Block
	Footer   string
}

// Block is a resolved building block. Only the fields relevant to Type are set.
type Block struct {
	Type  BlockType
	Level int
	Label string
	Text  string
	Table *Table
	Items []Item
}

// Table is a grid of plain-text cells. Cells may contain newlines.
type Table struct {
	Rows         [][]string
	BoldFirstRow bool
}

// Item is one entry of a step list.
type Item struct {
	Heading string
	Text    string
}

// Set is a compiled collection of layouts keyed by document kind.
type Set struct {
	footer  string
	layouts map[document.Kind]*compiledLayout
}

type compiledLayout struct {
	title    string
	subtitle *template.Template
	blocks   []compiledBlock
}

type compiledBlock struct {
	spec    blockSpec
	label   *template.Template
	text    *template.Template
	heading *template.Template
	cells   []*template.Template
}

var loadDefault = sync.OnceValues(func() (*Set, error) {
	return Load(defaultLayouts)
})

// Default returns the embedded layouts.
func Default() (*Set, error) {
	return loadDefault()
}

// Load parses and compiles a YAML layout file. Every document kind must have
// a layout and every template must execute against a sample record.
func Load(data []byte) (*Set, error) {
	var spec fileSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing layouts: %w", err)
	}

	set := &Set{footer: spec.Footer, layouts: make(map[document.Kind]*compiledLayout)}
	for name, ls := range spec.Layouts {
		kind, err := document.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("layout %q: %w", name, err)
		}
		cl, err := compileLayout(name, ls)
		if err != nil {
			return nil, err
		}
		set.layouts[kind] = cl
	}

	sample := document.Record{
		Company:   "sample",
		Steps:     []string{"sample"},
		CreatedAt: time.Now(),
	}
	for _, k := range document.Kinds {
		if _, ok := set.layouts[k]; !ok {
			return nil, fmt.Errorf("no layout for document type %q", k)
		}
		sample.Kind = k
		if _, err := set.Resolve(sample); err != nil {
			return nil, fmt.Errorf("validating layout %q: %w", k, err)
		}
	}
	return set, nil
}

func compileLayout(name string, ls layoutSpec) (*compiledLayout, error) {
	cl := &compiledLayout{title: ls.Title}
	var err error
	if ls.Subtitle != "" {
		if cl.subtitle, err = compile(name+".subtitle", ls.Subtitle); err != nil {
			return nil, err
		}
	}

	for i, bs := range ls.Blocks {
		prefix := fmt.Sprintf("%s.blocks[%d]", name, i)
		cb := compiledBlock{spec: bs}
		switch bs.Type {
		case BlockSpacer:
		case BlockHeading:
			if bs.Level < 1 || bs.Level > 3 {
				return nil, fmt.Errorf("%s: heading level %d out of range 1..3", prefix, bs.Level)
			}
			cb.text, err = compile(prefix, bs.Text)
		case BlockParagraph:
			if cb.label, err = compile(prefix+".label", bs.Label); err == nil {
				cb.text, err = compile(prefix+".text", bs.Text)
			}
		case BlockInfoTable:
			for j, row := range bs.Rows {
				var t *template.Template
				if t, err = compile(fmt.Sprintf("%s.rows[%d]", prefix, j), row.Value); err != nil {
					break
				}
				cb.cells = append(cb.cells, t)
			}
		case BlockStepTable:
			for j, col := range bs.Columns {
				var t *template.Template
				if t, err = compile(fmt.Sprintf("%s.columns[%d]", prefix, j), col.Cell); err != nil {
					break
				}
				cb.cells = append(cb.cells, t)
			}
		case BlockStepList:
			if cb.heading, err = compile(prefix+".heading", bs.Heading); err == nil {
				cb.text, err = compile(prefix+".text", bs.Text)
			}
		case BlockSignatures:
			if len(bs.Signers) == 0 {
				return nil, fmt.Errorf("%s: signatures block has no signers", prefix)
			}
		default:
			return nil, fmt.Errorf("%s: unknown block type %q", prefix, bs.Type)
		}
		if err != nil {
			return nil, err
		}
		cl.blocks = append(cl.blocks, cb)
	}
	return cl, nil
}

// funcs are available to every layout template. answered yields def for a
// field the user left empty.
var funcs = template.FuncMap{
	"answered": func(v, def string) string {
		if v == "" || v == document.Placeholder {
			return def
		}
		return v
	},
}

func compile(name, text string) (*template.Template, error) {
	t, err := template.New(name).Option("missingkey=error").Funcs(funcs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("compiling template %s: %w", name, err)
	}
	return t, nil
}

// Resolve substitutes the record into the layout for rec.Kind. Step blocks
// are omitted when the record has no steps.
func (s *Set) Resolve(rec document.Record) (Page, error) {
	cl, ok := s.layouts[rec.Kind]
	if !ok {
		return Page{}, fmt.Errorf("%w: %q", document.ErrUnknownKind, rec.Kind)
	}

	fields := Fields{
		Kind:         rec.Kind.DisplayName(),
		Company:      rec.Company,
		BusinessArea: rec.BusinessArea,
		ProcessName:  rec.ProcessName,
		Audience:     rec.Audience,
		Goal:         rec.Goal,
		Resources:    rec.Resources,
		Results:      rec.Results,
		Date:         rec.Date(),
	}

	page := Page{Kind: rec.Kind, Title: cl.title, Footer: s.footer}
	var err error
	if cl.subtitle != nil {
		if page.Subtitle, err = execute(cl.subtitle, fields); err != nil {
			return Page{}, err
		}
	}

	for _, cb := range cl.blocks {
		b := Block{Type: cb.spec.Type, Level: cb.spec.Level}
		switch cb.spec.Type {
		case BlockHeading:
			b.Text, err = execute(cb.text, fields)
		case BlockParagraph:
			if b.Label, err = execute(cb.label, fields); err == nil {
				b.Text, err = execute(cb.text, fields)
			}
		case BlockInfoTable:
			b.Table = &Table{}
			for i, row := range cb.spec.Rows {
				var v string
				if v, err = execute(cb.cells[i], fields); err != nil {
					break
				}
				b.Table.Rows = append(b.Table.Rows, []string{row.Label, v})
			}
		case BlockStepTable:
			if len(rec.Steps) == 0 {
				continue
			}
			b.Table, err = stepTable(cb, fields, rec.Steps)
		case BlockStepList:
			if len(rec.Steps) == 0 {
				continue
			}
			b.Items, err = stepItems(cb, fields, rec.Steps)
		case BlockSignatures:
			lines := make([]string, len(cb.spec.Signers))
			for i := range lines {
				lines[i] = cb.spec.Line
			}
			b.Table = &Table{Rows: [][]string{append([]string(nil), cb.spec.Signers...), lines}}
		}
		if err != nil {
			return Page{}, err
		}
		page.Blocks = append(page.Blocks, b)
	}
	return page, nil
}

func stepTable(cb compiledBlock, fields Fields, steps []string) (*Table, error) {
	header := make([]string, len(cb.spec.Columns))
	for i, col := range cb.spec.Columns {
		header[i] = col.Header
	}
	t := &Table{Rows: [][]string{header}, BoldFirstRow: true}
	for n, step := range steps {
		data := StepFields{Fields: fields, N: n + 1, Step: step}
		row := make([]string, len(cb.cells))
		for i, cell := range cb.cells {
			v, err := execute(cell, data)
			if err != nil {
				return nil, err
			}
			row[i] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func stepItems(cb compiledBlock, fields Fields, steps []string) ([]Item, error) {
	items := make([]Item, 0, len(steps))
	for n, step := range steps {
		data := StepFields{Fields: fields, N: n + 1, Step: step}
		heading, err := execute(cb.heading, data)
		if err != nil {
			return nil, err
		}
		text, err := execute(cb.text, data)
		if err != nil {
			return nil, err
		}
		items = append(items, Item{Heading: heading, Text: text})
	}
	return items, nil
}

func execute(t *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("executing template %s: %w", t.Name(), err)
	}
	return sb.String(), nil
}
