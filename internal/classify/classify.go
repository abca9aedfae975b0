// Package classify decides, line by line, whether text opens a new structural
// node of a legal act and splits marker lines into identifier, title and
// trailing text.
package classify

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/dgallion1/legalparse/internal/grammar"
	"golang.org/x/text/unicode/norm"
)

// Token is a recognized structural marker. Title and TrailingText are empty
// when the line carries none.
type Token struct {
	Kind         grammar.Kind `json:"kind"`
	Rank         int          `json:"rank"`
	Identifier   string       `json:"identifier"`
	Title        string       `json:"title,omitempty"`
	TrailingText string       `json:"trailing_text,omitempty"`
}

// Anomaly describes a line that looked like a marker but could not be parsed.
type Anomaly struct {
	Kind   grammar.Kind `json:"kind"`
	Reason string       `json:"reason"`
}

// Line is a classified input line. Exactly one of Token or plain content
// applies: a nil Token means the line is content.
type Line struct {
	Text    string
	Token   *Token
	Anomaly *Anomaly
}

// IsContent reports whether the line is plain content.
func (l Line) IsContent() bool { return l.Token == nil }

// NodeParser recognizes the marker of a single kind.
type NodeParser interface {
	Kind() grammar.Kind
	Rank() int
	// TryParse returns the token for line, or false if line is not this marker.
	TryParse(line string) (Token, bool)
	// Malformed reports why line looks like this marker yet cannot be parsed.
	Malformed(line string) (string, bool)
}

// RuleParser is the NodeParser backed by a grammar rule. It tries the titled
// form, then the trailing-text form, then the bare form.
type RuleParser struct {
	rule *grammar.Rule
}

// NewRuleParser wraps a compiled grammar rule.
func NewRuleParser(rule *grammar.Rule) *RuleParser {
	return &RuleParser{rule: rule}
}

func (p *RuleParser) Kind() grammar.Kind { return p.rule.Kind }

func (p *RuleParser) Rank() int { return p.rule.Rank }

func (p *RuleParser) TryParse(line string) (Token, bool) {
	tok, reason := p.parse(line)
	return tok, reason == "" && tok.Kind != ""
}

func (p *RuleParser) Malformed(line string) (string, bool) {
	tok, reason := p.parse(line)
	if reason != "" {
		return reason, true
	}
	if tok.Kind != "" {
		return "", false
	}
	if p.rule.Prefix != nil && p.rule.Prefix.MatchString(line) {
		return fmt.Sprintf("%s marker without a valid identifier", strings.ToLower(p.rule.Name)), true
	}
	return "", false
}

// parse returns a zero token when no form matches, and a non-empty reason when
// a form matched but a required capture came back empty.
func (p *RuleParser) parse(line string) (Token, string) {
	forms := []struct {
		re    *regexp.Regexp
		group string
	}{
		{p.rule.WithTitle, grammar.GroupTitle},
		{p.rule.WithTrailing, grammar.GroupText},
		{p.rule.WithoutTitle, ""},
	}
	for _, f := range forms {
		if f.re == nil {
			continue
		}
		m := f.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		tok := Token{
			Kind:       p.rule.Kind,
			Rank:       p.rule.Rank,
			Identifier: strings.TrimSpace(m[f.re.SubexpIndex(grammar.GroupID)]),
		}
		if tok.Identifier == "" {
			return Token{}, "missing identifier"
		}
		switch f.group {
		case grammar.GroupTitle:
			tok.Title = strings.TrimSpace(m[f.re.SubexpIndex(grammar.GroupTitle)])
			if tok.Title == "" {
				return Token{}, "empty title after separator"
			}
		case grammar.GroupText:
			tok.TrailingText = strings.TrimSpace(m[f.re.SubexpIndex(grammar.GroupText)])
		}
		return tok, ""
	}
	return Token{}, ""
}

// Chain runs node parsers in rank order and stops at the first match.
// A Chain holds no per-document state and is safe for concurrent use.
type Chain struct {
	parsers []NodeParser
}

// ErrInvalidChain is returned when parsers cannot form a well-defined chain.
var ErrInvalidChain = errors.New("invalid parser chain")

// NewChain builds the chain for every rule of g, outermost rank first.
func NewChain(g *grammar.Grammar) (*Chain, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil grammar", ErrInvalidChain)
	}
	rules := g.Rules()
	parsers := make([]NodeParser, 0, len(rules))
	for _, r := range rules {
		parsers = append(parsers, NewRuleParser(r))
	}
	return NewChainFrom(parsers...)
}

// NewChainFrom builds a chain from explicit parsers, tried in the given order.
func NewChainFrom(parsers ...NodeParser) (*Chain, error) {
	if len(parsers) == 0 {
		return nil, fmt.Errorf("%w: no parsers", ErrInvalidChain)
	}
	kinds := make(map[grammar.Kind]bool, len(parsers))
	ranks := make(map[int]grammar.Kind, len(parsers))
	for i, p := range parsers {
		if p == nil {
			return nil, fmt.Errorf("%w: parser %d is nil", ErrInvalidChain, i)
		}
		if kinds[p.Kind()] {
			return nil, fmt.Errorf("%w: kind %q registered twice", ErrInvalidChain, p.Kind())
		}
		if other, dup := ranks[p.Rank()]; dup {
			return nil, fmt.Errorf("%w: kinds %q and %q share rank %d", ErrInvalidChain, other, p.Kind(), p.Rank())
		}
		if p.Rank() <= grammar.RootRank {
			return nil, fmt.Errorf("%w: kind %q has non-positive rank", ErrInvalidChain, p.Kind())
		}
		kinds[p.Kind()] = true
		ranks[p.Rank()] = p.Kind()
	}
	return &Chain{parsers: parsers}, nil
}

// Parsers returns the chain's parsers in trial order.
func (c *Chain) Parsers() []NodeParser {
	out := make([]NodeParser, len(c.parsers))
	copy(out, c.parsers)
	return out
}

// Classify returns the classification of one line. A line no parser accepts is
// content; if some parser found it malformed the Anomaly is set as well.
func (c *Chain) Classify(text string) Line {
	line := Line{Text: text}
	key := Normalize(text)
	if key == "" {
		return line
	}

	var anomaly *Anomaly
	for _, p := range c.parsers {
		if tok, ok := p.TryParse(key); ok {
			line.Token = &tok
			return line
		}
		if anomaly == nil {
			if reason, bad := p.Malformed(key); bad {
				anomaly = &Anomaly{Kind: p.Kind(), Reason: reason}
			}
		}
	}
	line.Anomaly = anomaly
	return line
}

// Normalize prepares a line for matching: NFC composition so decomposed
// diacritics compare equal, Unicode spaces folded to ASCII, edges trimmed.
func Normalize(text string) string {
	s := norm.NFC.String(text)
	s = strings.Map(func(r rune) rune {
		if r != ' ' && unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
