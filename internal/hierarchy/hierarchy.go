// Package hierarchy assembles classified lines into a document tree.
//
// A parse keeps a stack of open nodes, one per rank seen on the current path.
// A marker of rank R closes every open node of rank >= R and opens a new child
// of whatever remains on top; content goes to the deepest open node.
package hierarchy

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/legalparse/internal/classify"
	"github.com/dgallion1/legalparse/internal/doctree"
	"github.com/dgallion1/legalparse/internal/grammar"
)

// ErrInputTooLarge is returned before parsing when the input exceeds the
// configured line limit.
var ErrInputTooLarge = errors.New("input too large")

// Severity grades a diagnostic.
type Severity string

const SeverityWarning Severity = "warning"

// Diagnostic reports a line that looked like a marker but was kept as content.
type Diagnostic struct {
	Line     int          `json:"line"`
	Text     string       `json:"text"`
	Kind     grammar.Kind `json:"kind"`
	Reason   string       `json:"reason"`
	Severity Severity     `json:"severity"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d: %s: %s", d.Line, d.Kind, d.Reason)
}

// Result is the outcome of one parse.
type Result struct {
	Tree        *doctree.Tree `json:"tree"`
	Diagnostics []Diagnostic  `json:"diagnostics"`
	Lines       int           `json:"lines"`
}

type options struct {
	logger            *slog.Logger
	maxLines          int
	dropBlankPreamble bool
}

// Option configures a Parser.
type Option func(*options)

// WithLogger sets the logger diagnostics are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxLines rejects inputs longer than n lines. Zero means no limit.
func WithMaxLines(n int) Option {
	return func(o *options) { o.maxLines = n }
}

// WithDropBlankPreamble controls whether whitespace-only lines before the
// first marker are discarded. It defaults to true.
func WithDropBlankPreamble(drop bool) Option {
	return func(o *options) { o.dropBlankPreamble = drop }
}

// Parser turns line sequences into trees. It holds no per-document state, so a
// single Parser may serve concurrent calls.
type Parser struct {
	grammar *grammar.Grammar
	chain   *classify.Chain
	opts    options
}

// New builds a parser for g. An unusable grammar fails here, never during a parse.
func New(g *grammar.Grammar, opts ...Option) (*Parser, error) {
	chain, err := classify.NewChain(g)
	if err != nil {
		return nil, fmt.Errorf("building parser chain: %w", err)
	}
	o := options{
		logger:            slog.New(slog.DiscardHandler),
		dropBlankPreamble: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Parser{grammar: g, chain: chain, opts: o}, nil
}

// Parse is a convenience for New(g, opts...) followed by Parser.Parse.
func Parse(g *grammar.Grammar, lines []string, opts ...Option) (*Result, error) {
	p, err := New(g, opts...)
	if err != nil {
		return nil, err
	}
	return p.Parse(lines)
}

// Grammar returns the parser's grammar.
func (p *Parser) Grammar() *grammar.Grammar { return p.grammar }

// Classify exposes the parser's line classifier.
func (p *Parser) Classify(line string) classify.Line { return p.chain.Classify(line) }

// Parse builds the tree for lines. Malformed markers never fail the parse;
// they are kept as content and reported in Result.Diagnostics.
func (p *Parser) Parse(lines []string) (*Result, error) {
	if p.opts.maxLines > 0 && len(lines) > p.opts.maxLines {
		return nil, fmt.Errorf("%w: %d lines, limit %d", ErrInputTooLarge, len(lines), p.opts.maxLines)
	}

	b := newBuilder(p.grammar)
	res := &Result{Lines: len(lines)}

	for i, text := range lines {
		lineNo := i + 1
		cl := p.chain.Classify(text)

		if cl.Token != nil {
			if err := b.open(*cl.Token, lineNo); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			continue
		}

		if cl.Anomaly != nil {
			d := Diagnostic{
				Line:     lineNo,
				Text:     text,
				Kind:     cl.Anomaly.Kind,
				Reason:   cl.Anomaly.Reason,
				Severity: SeverityWarning,
			}
			res.Diagnostics = append(res.Diagnostics, d)
			p.opts.logger.Warn("malformed marker kept as content",
				"line", d.Line, "kind", d.Kind, "reason", d.Reason, "text", d.Text)
		}

		if p.opts.dropBlankPreamble && !b.started && strings.TrimSpace(text) == "" {
			continue
		}
		if err := b.content(text); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}

	res.Tree = b.finish()
	return res, nil
}

type stackEntry struct {
	id   doctree.NodeID
	rank int
}

// builder owns the open-node stack of a single parse.
type builder struct {
	asm     *doctree.Assembler
	stack   []stackEntry
	started bool
}

func newBuilder(g *grammar.Grammar) *builder {
	return &builder{
		asm:   doctree.NewAssembler(g),
		stack: []stackEntry{{id: doctree.RootID, rank: grammar.RootRank}},
	}
}

func (b *builder) open(tok classify.Token, line int) error {
	b.started = true
	for len(b.stack) > 1 && b.stack[len(b.stack)-1].rank >= tok.Rank {
		b.stack = b.stack[:len(b.stack)-1]
	}
	parent := b.stack[len(b.stack)-1].id
	id, err := b.asm.Add(parent, tok.Kind, tok.Identifier, tok.Title, line)
	if err != nil {
		return err
	}
	b.stack = append(b.stack, stackEntry{id: id, rank: tok.Rank})
	if tok.TrailingText != "" {
		return b.asm.AppendContent(id, tok.TrailingText)
	}
	return nil
}

func (b *builder) content(text string) error {
	return b.asm.AppendContent(b.stack[len(b.stack)-1].id, text)
}

func (b *builder) finish() *doctree.Tree {
	b.stack = nil
	return b.asm.Finish()
}
