package source

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownSource handles Markdown files using goldmark. Heading markup is
// stripped so "## CAPITOLUL I" reaches the parser as "CAPITOLUL I"; soft line
// breaks inside a paragraph are kept as separate lines.
type MarkdownSource struct{}

func (s *MarkdownSource) Read(r io.Reader, filename string) (*Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}

	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	out := &Document{Title: baseTitle(filename), Encoding: "utf-8"}
	collectMarkdown(doc, src, &out.Lines)
	return out, nil
}

func collectMarkdown(n ast.Node, src []byte, lines *[]string) {
	switch n.Kind() {
	case ast.KindHeading, ast.KindParagraph, ast.KindTextBlock:
		for _, l := range splitLines(inlineText(n, src)) {
			*lines = append(*lines, strings.TrimSpace(l))
		}
		return
	case ast.KindFencedCodeBlock, ast.KindCodeBlock:
		segs := n.Lines()
		for i := 0; i < segs.Len(); i++ {
			seg := segs.At(i)
			*lines = append(*lines, strings.TrimRight(string(seg.Value(src)), "\r\n"))
		}
		return
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		collectMarkdown(c, src, lines)
	}
}

// inlineText flattens the inline children of a block, turning line breaks
// into newlines.
func inlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(t.Value)
		default:
			buf.WriteString(inlineText(c, src))
		}
	}
	return buf.String()
}
