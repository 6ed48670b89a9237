package render

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kalambet/howdo/internal/layout"
)

// A4 with 3cm left and 1.5cm right margins, in twentieths of a point.
const (
	pageWidthTwips  = 11906
	pageHeightTwips = 16838
	textWidthTwips  = 9355
)

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>` +
	`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>` +
	`</Types>`

const packageRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
	`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>` +
	`</Relationships>`

const documentRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>` +
	`</Relationships>`

const stylesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
	`<w:docDefaults><w:rPrDefault><w:rPr>` +
	`<w:rFonts w:ascii="Times New Roman" w:hAnsi="Times New Roman" w:eastAsia="Times New Roman" w:cs="Times New Roman"/>` +
	`<w:sz w:val="24"/><w:szCs w:val="24"/><w:lang w:val="ru-RU"/>` +
	`</w:rPr></w:rPrDefault><w:pPrDefault><w:pPr><w:spacing w:after="120" w:line="240" w:lineRule="auto"/></w:pPr></w:pPrDefault></w:docDefaults>` +
	`<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/><w:qFormat/></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Title"><w:name w:val="Title"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/><w:qFormat/>` +
	`<w:pPr><w:jc w:val="center"/><w:spacing w:after="240"/></w:pPr><w:rPr><w:b/><w:sz w:val="36"/><w:szCs w:val="36"/></w:rPr></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="heading 1"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/><w:qFormat/>` +
	`<w:pPr><w:keepNext/><w:spacing w:before="240" w:after="120"/><w:outlineLvl w:val="0"/></w:pPr><w:rPr><w:b/><w:sz w:val="32"/><w:szCs w:val="32"/></w:rPr></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Heading2"><w:name w:val="heading 2"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/><w:qFormat/>` +
	`<w:pPr><w:keepNext/><w:spacing w:before="240" w:after="120"/><w:outlineLvl w:val="1"/></w:pPr><w:rPr><w:b/><w:sz w:val="28"/><w:szCs w:val="28"/></w:rPr></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Heading3"><w:name w:val="heading 3"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/><w:qFormat/>` +
	`<w:pPr><w:keepNext/><w:spacing w:before="120" w:after="60"/><w:outlineLvl w:val="2"/></w:pPr><w:rPr><w:b/><w:sz w:val="24"/><w:szCs w:val="24"/></w:rPr></w:style>` +
	`<w:style w:type="table" w:default="1" w:styleId="TableNormal"><w:name w:val="Normal Table"/>` +
	`<w:tblPr><w:tblInd w:w="0" w:type="dxa"/><w:tblCellMar><w:top w:w="0" w:type="dxa"/><w:left w:w="108" w:type="dxa"/><w:bottom w:w="0" w:type="dxa"/><w:right w:w="108" w:type="dxa"/></w:tblCellMar></w:tblPr></w:style>` +
	`<w:style w:type="table" w:styleId="TableGrid"><w:name w:val="Table Grid"/><w:basedOn w:val="TableNormal"/>` +
	`<w:pPr><w:spacing w:after="0"/></w:pPr><w:tblPr><w:tblBorders>` +
	`<w:top w:val="single" w:sz="4" w:space="0" w:color="000000"/>` +
	`<w:left w:val="single" w:sz="4" w:space="0" w:color="000000"/>` +
	`<w:bottom w:val="single" w:sz="4" w:space="0" w:color="000000"/>` +
	`<w:right w:val="single" w:sz="4" w:space="0" w:color="000000"/>` +
	`<w:insideH w:val="single" w:sz="4" w:space="0" w:color="000000"/>` +
	`<w:insideV w:val="single" w:sz="4" w:space="0" w:color="000000"/>` +
	`</w:tblBorders></w:tblPr></w:style>` +
	`</w:styles>`

// writeDOCX packs a resolved page into a WordprocessingML package.
// createdAt stamps both the zip entries and the core properties so the same
// page always yields the same bytes.
func writeDOCX(page layout.Page, createdAt time.Time) ([]byte, error) {
	var body bytes.Buffer
	writeBody(&body, page)

	parts := []struct {
		name string
		data string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", packageRelsXML},
		{"word/document.xml", body.String()},
		{"word/_rels/document.xml.rels", documentRelsXML},
		{"word/styles.xml", stylesXML},
		{"docProps/core.xml", coreXML(page, createdAt)},
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, p := range parts {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     p.name,
			Method:   zip.Deflate,
			Modified: createdAt.UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", p.name, err)
		}
		if _, err := io.WriteString(w, p.data); err != nil {
			return nil, fmt.Errorf("writing %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing docx archive: %w", err)
	}
	return buf.Bytes(), nil
}

func coreXML(page layout.Page, createdAt time.Time) string {
	title := page.Title
	if page.Subtitle != "" {
		title += ". " + page.Subtitle
	}
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	sb.WriteString(`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties"` +
		` xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/"` +
		` xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">`)
	sb.WriteString("<dc:title>")
	escape(&sb, title)
	sb.WriteString("</dc:title><dc:creator>HowDo</dc:creator>")
	stamp := createdAt.UTC().Format(time.RFC3339)
	sb.WriteString(`<dcterms:created xsi:type="dcterms:W3CDTF">` + stamp + `</dcterms:created>`)
	sb.WriteString(`<dcterms:modified xsi:type="dcterms:W3CDTF">` + stamp + `</dcterms:modified>`)
	sb.WriteString("</cp:coreProperties>")
	return sb.String()
}

type paraStyle struct {
	style   string
	align   string
	bold    bool
	italic  bool
	size    int // half-points, 0 keeps the style size
	noSpace bool
}

func writeBody(w *bytes.Buffer, page layout.Page) {
	w.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	w.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)

	paragraph(w, paraStyle{style: "Title", align: "center"}, "", page.Title)
	if page.Subtitle != "" {
		paragraph(w, paraStyle{style: "Heading2", align: "center"}, "", page.Subtitle)
	}

	for _, b := range page.Blocks {
		switch b.Type {
		case layout.BlockSpacer:
			paragraph(w, paraStyle{}, "", "")
		case layout.BlockHeading:
			paragraph(w, paraStyle{style: fmt.Sprintf("Heading%d", b.Level)}, "", b.Text)
		case layout.BlockParagraph:
			paragraph(w, paraStyle{}, b.Label, b.Text)
		case layout.BlockInfoTable:
			table(w, b.Table, []int{3400, textWidthTwips - 3400})
		case layout.BlockStepTable:
			table(w, b.Table, nil)
		case layout.BlockStepList:
			for _, it := range b.Items {
				paragraph(w, paraStyle{style: "Heading3"}, "", it.Heading)
				paragraph(w, paraStyle{}, "", it.Text)
			}
		case layout.BlockSignatures:
			table(w, b.Table, nil)
		}
	}

	paragraph(w, paraStyle{align: "right", italic: true, size: 20}, "", page.Footer)

	fmt.Fprintf(w, `<w:sectPr><w:pgSz w:w="%d" w:h="%d"/>`, pageWidthTwips, pageHeightTwips)
	w.WriteString(`<w:pgMar w:top="1134" w:right="850" w:bottom="1134" w:left="1701" w:header="708" w:footer="708" w:gutter="0"/></w:sectPr>`)
	w.WriteString(`</w:body></w:document>`)
}

// paragraph writes one w:p. A non-empty label is emitted as a bold run before
// the text.
func paragraph(w *bytes.Buffer, ps paraStyle, label, text string) {
	w.WriteString("<w:p>")
	if ps.style != "" || ps.align != "" || ps.noSpace {
		w.WriteString("<w:pPr>")
		if ps.style != "" {
			fmt.Fprintf(w, `<w:pStyle w:val="%s"/>`, ps.style)
		}
		if ps.noSpace {
			w.WriteString(`<w:spacing w:after="0"/>`)
		}
		if ps.align != "" {
			fmt.Fprintf(w, `<w:jc w:val="%s"/>`, ps.align)
		}
		w.WriteString("</w:pPr>")
	}
	if label != "" {
		run(w, paraStyle{bold: true, size: ps.size}, label)
	}
	if text != "" {
		run(w, ps, text)
	}
	w.WriteString("</w:p>")
}

// run writes a w:r, turning newlines into line breaks.
func run(w *bytes.Buffer, ps paraStyle, text string) {
	w.WriteString("<w:r>")
	if ps.bold || ps.italic || ps.size > 0 {
		w.WriteString("<w:rPr>")
		if ps.bold {
			w.WriteString("<w:b/>")
		}
		if ps.italic {
			w.WriteString("<w:i/>")
		}
		if ps.size > 0 {
			fmt.Fprintf(w, `<w:sz w:val="%d"/><w:szCs w:val="%d"/>`, ps.size, ps.size)
		}
		w.WriteString("</w:rPr>")
	}
	for i, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if i > 0 {
			w.WriteString("<w:br/>")
		}
		w.WriteString(`<w:t xml:space="preserve">`)
		escape(w, line)
		w.WriteString("</w:t>")
	}
	w.WriteString("</w:r>")
}

// table writes a bordered grid. widths may be nil for equal columns.
func table(w *bytes.Buffer, t *layout.Table, widths []int) {
	if t == nil || len(t.Rows) == 0 {
		return
	}
	cols := 0
	for _, row := range t.Rows {
		cols = max(cols, len(row))
	}
	if len(widths) != cols {
		widths = make([]int, cols)
		for i := range widths {
			widths[i] = textWidthTwips / cols
		}
	}

	w.WriteString(`<w:tbl><w:tblPr><w:tblStyle w:val="TableGrid"/>`)
	fmt.Fprintf(w, `<w:tblW w:w="%d" w:type="dxa"/><w:tblLook w:val="04A0"/></w:tblPr><w:tblGrid>`, textWidthTwips)
	for _, cw := range widths {
		fmt.Fprintf(w, `<w:gridCol w:w="%d"/>`, cw)
	}
	w.WriteString("</w:tblGrid>")

	for i, row := range t.Rows {
		bold := t.BoldFirstRow && i == 0
		w.WriteString("<w:tr>")
		if bold {
			w.WriteString("<w:trPr><w:tblHeader/></w:trPr>")
		}
		for c := 0; c < cols; c++ {
			var cell string
			if c < len(row) {
				cell = row[c]
			}
			fmt.Fprintf(w, `<w:tc><w:tcPr><w:tcW w:w="%d" w:type="dxa"/></w:tcPr>`, widths[c])
			paragraph(w, paraStyle{bold: bold, noSpace: true}, "", cell)
			w.WriteString("</w:tc>")
		}
		w.WriteString("</w:tr>")
	}
	w.WriteString("</w:tbl>")
}

type stringWriter interface {
	io.Writer
	WriteString(string) (int, error)
}

func escape(w stringWriter, s string) {
	// EscapeText only fails when the writer does.
	_ = xml.EscapeText(w, []byte(s))
}
