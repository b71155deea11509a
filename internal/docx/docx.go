// Package docx converts Markdown documents into Word (.docx) files.
//
// Markdown is parsed with goldmark; the resulting AST is written as
// WordprocessingML into a minimal OPC package.
package docx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ContentType is the MIME type of the generated files.
const ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// ErrEmpty is returned for blank input.
var ErrEmpty = errors.New("no markdown content provided")

// Convert renders markdown as a .docx document.
func Convert(markdown string) ([]byte, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, ErrEmpty
	}

	src := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	c := &converter{src: src}
	c.block(doc, "")

	var buf bytes.Buffer
	if err := writePackage(&buf, c.body.String()); err != nil {
		return nil, fmt.Errorf("failed to write docx: %w", err)
	}
	return buf.Bytes(), nil
}

type run struct {
	text   string
	bold   bool
	italic bool
	code   bool
	br     bool
}

type converter struct {
	src  []byte
	body strings.Builder
}

// headingStyle maps # to the Title style and ## to #### onto Heading1-3.
// Deeper levels share Heading4.
func headingStyle(level int) string {
	switch level {
	case 1:
		return "Title"
	case 2, 3, 4:
		return fmt.Sprintf("Heading%d", level-1)
	default:
		return "Heading4"
	}
}

func (c *converter) block(n ast.Node, style string) {
	switch n := n.(type) {
	case *ast.Heading:
		c.paragraph(headingStyle(n.Level), c.inlines(n, run{}))
	case *ast.Paragraph, *ast.TextBlock:
		c.paragraph(style, c.inlines(n, run{}))
	case *ast.List:
		c.list(n)
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			line := strings.TrimRight(string(seg.Value(c.src)), "\r\n")
			c.paragraph("Code", []run{{text: line, code: true}})
		}
	case *ast.HTMLBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			c.paragraph(style, []run{{text: strings.TrimRight(string(seg.Value(c.src)), "\r\n")}})
		}
	case *ast.Blockquote:
		for child := n.FirstChild(); child != nil; child = child.NextSibling() {
			c.block(child, "Quote")
		}
	case *ast.ThematicBreak:
		c.paragraph("", nil)
	default:
		for child := n.FirstChild(); child != nil; child = child.NextSibling() {
			c.block(child, style)
		}
	}
}

// list writes each item as a ListParagraph prefixed with a bullet or its
// number, so no numbering definitions are needed.
func (c *converter) list(l *ast.List) {
	num := l.Start
	if num == 0 {
		num = 1
	}
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "• "
		if l.IsOrdered() {
			marker = fmt.Sprintf("%d. ", num)
			num++
		}
		first := true
		for child := item.FirstChild(); child != nil; child = child.NextSibling() {
			switch child.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				runs := c.inlines(child, run{})
				if first {
					runs = append([]run{{text: marker}}, runs...)
					first = false
				}
				c.paragraph("ListParagraph", runs)
			default:
				c.block(child, "ListParagraph")
			}
		}
		if first {
			c.paragraph("ListParagraph", []run{{text: marker}})
		}
	}
}

// inlines flattens n's inline children into runs carrying the enclosing
// formatting.
func (c *converter) inlines(n ast.Node, fmtRun run) []run {
	var out []run
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch child := child.(type) {
		case *ast.Text:
			r := fmtRun
			r.text = string(child.Segment.Value(c.src))
			out = append(out, r)
			if child.HardLineBreak() {
				out = append(out, run{br: true})
			} else if child.SoftLineBreak() {
				r := fmtRun
				r.text = " "
				out = append(out, r)
			}
		case *ast.String:
			r := fmtRun
			r.text = string(child.Value)
			out = append(out, r)
		case *ast.Emphasis:
			r := fmtRun
			if child.Level >= 2 {
				r.bold = true
			} else {
				r.italic = true
			}
			out = append(out, c.inlines(child, r)...)
		case *ast.CodeSpan:
			r := fmtRun
			r.code = true
			out = append(out, c.inlines(child, r)...)
		case *ast.AutoLink:
			r := fmtRun
			r.text = string(child.URL(c.src))
			out = append(out, r)
		case *ast.RawHTML:
			for i := 0; i < child.Segments.Len(); i++ {
				seg := child.Segments.At(i)
				r := fmtRun
				r.text = string(seg.Value(c.src))
				out = append(out, r)
			}
		default:
			out = append(out, c.inlines(child, fmtRun)...)
		}
	}
	return out
}

func (c *converter) paragraph(style string, runs []run) {
	b := &c.body
	b.WriteString("<w:p>")
	if style != "" {
		fmt.Fprintf(b, `<w:pPr><w:pStyle w:val="%s"/></w:pPr>`, style)
	}
	for _, r := range runs {
		writeRun(b, r)
	}
	b.WriteString("</w:p>")
}

func writeRun(b *strings.Builder, r run) {
	if r.br {
		b.WriteString("<w:r><w:br/></w:r>")
		return
	}
	if r.text == "" {
		return
	}
	b.WriteString("<w:r>")
	if r.bold || r.italic || r.code {
		b.WriteString("<w:rPr>")
		if r.code {
			b.WriteString(`<w:rFonts w:ascii="Consolas" w:hAnsi="Consolas" w:cs="Consolas"/>`)
		}
		if r.bold {
			b.WriteString("<w:b/>")
		}
		if r.italic {
			b.WriteString("<w:i/>")
		}
		b.WriteString("</w:rPr>")
	}
	b.WriteString(`<w:t xml:space="preserve">`)
	escapeText(b, r.text)
	b.WriteString("</w:t></w:r>")
}

func escapeText(w io.Writer, s string) {
	// xml.EscapeText also escapes newlines, which Word would show literally.
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	_, _ = io.WriteString(w, r.Replace(s))
}
