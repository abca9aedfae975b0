package source

import (
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// HTMLSource handles HTML files. Every block element and <br> ends a line.
type HTMLSource struct{}

func (s *HTMLSource) Read(r io.Reader, filename string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	doc := &Document{Title: baseTitle(filename), Encoding: "utf-8"}
	if title := findTitle(root); title != "" {
		doc.Title = title
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			writeCollapsed(&buf, n.Data)
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "nav", "footer", "header", "head":
				return
			case "br":
				buf.WriteByte('\n')
				return
			}
		}
		block := n.Type == html.ElementNode && isBlock(n.Data)
		if block {
			buf.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			buf.WriteByte('\n')
		}
	}

	if body := findBody(root); body != nil {
		walk(body)
	} else {
		walk(root)
	}

	for _, l := range splitLines(buf.String()) {
		if l = strings.TrimSpace(l); l != "" {
			doc.Lines = append(doc.Lines, l)
		}
	}
	return doc, nil
}

// writeCollapsed writes s with runs of whitespace folded to one space.
func writeCollapsed(buf *strings.Builder, s string) {
	if s == "" {
		return
	}
	words := strings.Fields(s)
	if len(words) == 0 {
		buf.WriteByte(' ')
		return
	}
	if unicode.IsSpace(rune(s[0])) {
		buf.WriteByte(' ')
	}
	buf.WriteString(strings.Join(words, " "))
	if unicode.IsSpace(rune(s[len(s)-1])) {
		buf.WriteByte(' ')
	}
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "li", "td", "th", "tr", "blockquote", "pre", "section", "article",
		"h1", "h2", "h3", "h4", "h5", "h6", "dt", "dd", "table", "ul", "ol":
		return true
	}
	return false
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return textContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
