// Package grammar defines the fixed vocabulary of structural markers found in
// legal acts: which kinds exist, how they nest, and how each one is recognized
// at the start of a line.
package grammar

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Kind identifies a structural unit of a legal act.
type Kind string

const (
	KindRoot       Kind = "root"
	KindBook       Kind = "book"
	KindTitle      Kind = "title"
	KindChapter    Kind = "chapter"
	KindSection    Kind = "section"
	KindSubsection Kind = "subsection"
	KindArticle    Kind = "article"
	KindParagraph  Kind = "paragraph"
	KindPoint      Kind = "point"
)

// RootRank is the rank of the synthetic root. Every rule ranks strictly above it.
const RootRank = 0

// knownKinds is the closed set of kinds a grammar file may declare.
var knownKinds = map[Kind]bool{
	KindBook:       true,
	KindTitle:      true,
	KindChapter:    true,
	KindSection:    true,
	KindSubsection: true,
	KindArticle:    true,
	KindParagraph:  true,
	KindPoint:      true,
}

// ErrInvalidGrammar is returned when a grammar definition is ambiguous or malformed.
var ErrInvalidGrammar = errors.New("invalid grammar")

// Named capture groups recognized in rule patterns.
const (
	GroupID    = "id"
	GroupTitle = "title"
	GroupText  = "text"
)

// File is the YAML layout of a grammar definition.
type File struct {
	Name  string     `yaml:"name" json:"name"`
	Rules []RuleSpec `yaml:"rules" json:"rules"`
}

// RuleSpec is the uncompiled definition of one token kind.
type RuleSpec struct {
	Kind         Kind     `yaml:"kind" json:"kind"`
	Name         string   `yaml:"name" json:"name"`
	Rank         int      `yaml:"rank" json:"rank"`
	Aliases      []string `yaml:"aliases" json:"aliases,omitempty"`
	Prefix       string   `yaml:"prefix" json:"prefix,omitempty"`
	WithTitle    string   `yaml:"with_title" json:"with_title,omitempty"`
	WithTrailing string   `yaml:"with_trailing" json:"with_trailing,omitempty"`
	WithoutTitle string   `yaml:"without_title" json:"without_title,omitempty"`
	Render       string   `yaml:"render" json:"render"`
	RenderTitle  string   `yaml:"render_title" json:"render_title,omitempty"`
	Examples     []string `yaml:"examples" json:"examples,omitempty"`
}

// Rule is a compiled, validated token kind.
type Rule struct {
	Kind    Kind
	Name    string
	Rank    int
	Aliases []string

	// Prefix matches lines that attempt this marker, well-formed or not.
	Prefix *regexp.Regexp
	// WithTitle captures id and title.
	WithTitle *regexp.Regexp
	// WithTrailing captures id and trailing body text.
	WithTrailing *regexp.Regexp
	// WithoutTitle captures id only.
	WithoutTitle *regexp.Regexp

	Examples []string

	render      string
	renderTitle string
}

// Matches reports whether any of the rule's forms recognizes line.
func (r *Rule) Matches(line string) bool {
	for _, re := range []*regexp.Regexp{r.WithTitle, r.WithTrailing, r.WithoutTitle} {
		if re != nil && re.MatchString(line) {
			return true
		}
	}
	return false
}

// Render writes the marker line for identifier id, with title if it is non-empty
// and the rule has a titled form.
func (r *Rule) Render(id, title string) string {
	tmpl := r.render
	if title != "" && r.renderTitle != "" {
		tmpl = r.renderTitle
	}
	return strings.NewReplacer("{id}", id, "{title}", title).Replace(tmpl)
}

// Grammar is an ordered, validated set of rules. It is immutable and safe for
// concurrent use.
type Grammar struct {
	name   string
	rules  []*Rule
	byKind map[Kind]*Rule
	byName map[string]Kind
}

// New compiles and validates rule specs. Any ambiguity or malformed pattern
// yields an error wrapping ErrInvalidGrammar.
func New(name string, specs []RuleSpec) (*Grammar, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no rules", ErrInvalidGrammar)
	}

	g := &Grammar{
		name:   name,
		byKind: make(map[Kind]*Rule, len(specs)),
		byName: make(map[string]Kind),
	}
	ranks := make(map[int]Kind, len(specs))

	for i, spec := range specs {
		if !knownKinds[spec.Kind] {
			return nil, fmt.Errorf("%w: rule %d: unknown kind %q", ErrInvalidGrammar, i, spec.Kind)
		}
		if _, dup := g.byKind[spec.Kind]; dup {
			return nil, fmt.Errorf("%w: kind %q declared twice", ErrInvalidGrammar, spec.Kind)
		}
		if spec.Rank <= RootRank {
			return nil, fmt.Errorf("%w: kind %q: rank must be greater than %d", ErrInvalidGrammar, spec.Kind, RootRank)
		}
		if other, dup := ranks[spec.Rank]; dup {
			return nil, fmt.Errorf("%w: kinds %q and %q share rank %d", ErrInvalidGrammar, other, spec.Kind, spec.Rank)
		}
		ranks[spec.Rank] = spec.Kind

		rule, err := compileRule(spec)
		if err != nil {
			return nil, fmt.Errorf("%w: kind %q: %v", ErrInvalidGrammar, spec.Kind, err)
		}
		g.rules = append(g.rules, rule)
		g.byKind[rule.Kind] = rule
	}

	sort.Slice(g.rules, func(i, j int) bool { return g.rules[i].Rank < g.rules[j].Rank })

	for _, rule := range g.rules {
		names := append([]string{string(rule.Kind), rule.Name}, rule.Aliases...)
		for _, n := range names {
			key := strings.ToLower(n)
			if key == "" {
				continue
			}
			if other, dup := g.byName[key]; dup && other != rule.Kind {
				return nil, fmt.Errorf("%w: name %q used by %q and %q", ErrInvalidGrammar, n, other, rule.Kind)
			}
			g.byName[key] = rule.Kind
		}
	}

	if err := g.checkExamples(); err != nil {
		return nil, err
	}
	return g, nil
}

// checkExamples requires every example to be recognized by its own rule and by
// no other one.
func (g *Grammar) checkExamples() error {
	for _, rule := range g.rules {
		if len(rule.Examples) == 0 {
			return fmt.Errorf("%w: kind %q has no examples", ErrInvalidGrammar, rule.Kind)
		}
		for _, ex := range rule.Examples {
			if !rule.Matches(ex) {
				return fmt.Errorf("%w: kind %q does not recognize its example %q", ErrInvalidGrammar, rule.Kind, ex)
			}
			for _, other := range g.rules {
				if other != rule && other.Matches(ex) {
					return fmt.Errorf("%w: example %q of %q is also recognized by %q", ErrInvalidGrammar, ex, rule.Kind, other.Kind)
				}
			}
		}
	}
	return nil
}

func compileRule(spec RuleSpec) (*Rule, error) {
	rule := &Rule{
		Kind:        spec.Kind,
		Name:        spec.Name,
		Rank:        spec.Rank,
		Aliases:     spec.Aliases,
		Examples:    spec.Examples,
		render:      spec.Render,
		renderTitle: spec.RenderTitle,
	}
	if rule.Name == "" {
		rule.Name = string(spec.Kind)
	}
	if spec.Render == "" || !strings.Contains(spec.Render, "{id}") {
		return nil, fmt.Errorf("render template must contain {id}")
	}
	if spec.WithTitle != "" && !strings.Contains(spec.RenderTitle, "{title}") {
		return nil, fmt.Errorf("render_title must contain {title} when with_title is set")
	}

	var err error
	if rule.Prefix, err = compileAnchored("prefix", spec.Prefix, false); err != nil {
		return nil, err
	}
	if rule.WithTitle, err = compileAnchored("with_title", spec.WithTitle, true, GroupID, GroupTitle); err != nil {
		return nil, err
	}
	if rule.WithTrailing, err = compileAnchored("with_trailing", spec.WithTrailing, true, GroupID, GroupText); err != nil {
		return nil, err
	}
	if rule.WithoutTitle, err = compileAnchored("without_title", spec.WithoutTitle, true, GroupID); err != nil {
		return nil, err
	}
	if rule.WithTitle == nil && rule.WithTrailing == nil && rule.WithoutTitle == nil {
		return nil, fmt.Errorf("no recognition pattern")
	}
	return rule, nil
}

// compileAnchored compiles an optional pattern, requiring ^ and (when full is
// set) $ anchors plus the named groups.
func compileAnchored(field, expr string, full bool, groups ...string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	if !strings.HasPrefix(expr, "^") {
		return nil, fmt.Errorf("%s pattern %q must be anchored with ^", field, expr)
	}
	if full && !strings.HasSuffix(expr, "$") {
		return nil, fmt.Errorf("%s pattern %q must be anchored with $", field, expr)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compiling %s pattern: %w", field, err)
	}
	for _, name := range groups {
		if re.SubexpIndex(name) < 0 {
			return nil, fmt.Errorf("%s pattern %q lacks named group %q", field, expr, name)
		}
	}
	return re, nil
}

// Load reads a YAML grammar definition.
func Load(r io.Reader) (*Grammar, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading grammar: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parsing yaml: %v", ErrInvalidGrammar, err)
	}
	return New(f.Name, f.Rules)
}

// LoadFile reads a YAML grammar definition from path.
func LoadFile(path string) (*Grammar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening grammar: %w", err)
	}
	defer f.Close()
	return Load(f)
}

//go:embed romanian.yaml
var romanianYAML []byte

var loadDefault = sync.OnceValue(func() *Grammar {
	g, err := Load(bytes.NewReader(romanianYAML))
	if err != nil {
		panic(fmt.Sprintf("grammar: embedded default: %v", err))
	}
	return g
})

// Default returns the built-in grammar for Romanian legal acts.
func Default() *Grammar {
	return loadDefault()
}

// Name returns the grammar's name.
func (g *Grammar) Name() string { return g.name }

// Rules returns the rules ordered from outermost to innermost rank.
func (g *Grammar) Rules() []*Rule {
	out := make([]*Rule, len(g.rules))
	copy(out, g.rules)
	return out
}

// Rule returns the rule for kind.
func (g *Grammar) Rule(kind Kind) (*Rule, bool) {
	r, ok := g.byKind[kind]
	return r, ok
}

// Rank returns the nesting rank of kind. The root and unknown kinds rank RootRank.
func (g *Grammar) Rank(kind Kind) int {
	if r, ok := g.byKind[kind]; ok {
		return r.Rank
	}
	return RootRank
}

// KindByName resolves a kind from its identifier, display name or alias,
// ignoring case.
func (g *Grammar) KindByName(name string) (Kind, bool) {
	k, ok := g.byName[strings.ToLower(strings.TrimSpace(name))]
	return k, ok
}

// Render writes the canonical marker line for a node of kind.
func (g *Grammar) Render(kind Kind, id, title string) (string, error) {
	r, ok := g.byKind[kind]
	if !ok {
		return "", fmt.Errorf("render: unknown kind %q", kind)
	}
	return r.Render(id, title), nil
}

// DisplayName returns the English label of a kind, e.g. "Chapter".
func (k Kind) DisplayName() string {
	switch k {
	case KindRoot:
		return "Root"
	case KindBook:
		return "Book"
	case KindTitle:
		return "Title"
	case KindChapter:
		return "Chapter"
	case KindSection:
		return "Section"
	case KindSubsection:
		return "Subsection"
	case KindArticle:
		return "Article"
	case KindParagraph:
		return "Paragraph"
	case KindPoint:
		return "Point"
	}
	return string(k)
}
