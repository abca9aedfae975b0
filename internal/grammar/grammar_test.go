package grammar

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_RankTable(t *testing.T) {
	g := Default()

	want := []Kind{KindBook, KindTitle, KindChapter, KindSection, KindSubsection, KindArticle, KindParagraph, KindPoint}
	rules := g.Rules()
	require.Len(t, rules, len(want))
	for i, k := range want {
		assert.Equal(t, k, rules[i].Kind, "rule %d", i)
		if i > 0 {
			assert.Greater(t, rules[i].Rank, rules[i-1].Rank, "ranks must increase outer to inner")
		}
	}
	assert.Equal(t, RootRank, g.Rank(KindRoot))
	assert.Equal(t, 4, g.Rank(KindSection))
}

func TestDefault_KindByName(t *testing.T) {
	g := Default()
	tests := []struct {
		name string
		want Kind
	}{
		{"Chapter", KindChapter},
		{"capitolul", KindChapter},
		{"SECŢIUNEA", KindSection},
		{"art", KindArticle},
		{" Title ", KindTitle},
		{"alin", KindParagraph},
	}
	for _, tt := range tests {
		got, ok := g.KindByName(tt.name)
		assert.True(t, ok, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
	_, ok := g.KindByName("anexa")
	assert.False(t, ok)
}

func TestRule_Render(t *testing.T) {
	g := Default()
	tests := []struct {
		kind  Kind
		id    string
		title string
		want  string
	}{
		{KindChapter, "I", "General Provisions", "CAPITOLUL I - General Provisions"},
		{KindSection, "2", "Remedies", "SECŢIUNEA 2: Remedies"},
		{KindSection, "1", "", "SECŢIUNEA 1"},
		{KindParagraph, "3", "ignored", "(3)"},
		{KindPoint, "b", "", "b)"},
	}
	for _, tt := range tests {
		got, err := g.Render(tt.kind, tt.id, tt.title)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)

		rule, _ := g.Rule(tt.kind)
		assert.True(t, rule.Matches(got), "rendered %q must be recognized", got)
	}

	_, err := g.Render(KindRoot, "x", "")
	assert.Error(t, err)
}

func validSpec(kind Kind, rank int, marker string) RuleSpec {
	return RuleSpec{
		Kind:         kind,
		Rank:         rank,
		Prefix:       `^` + marker + `(?:\s|$)`,
		WithoutTitle: `^` + marker + `\s+(?P<id>\d+)$`,
		Render:       marker + " {id}",
		Examples:     []string{marker + " 1"},
	}
}

func TestNew_Valid(t *testing.T) {
	g, err := New("test", []RuleSpec{
		validSpec(KindArticle, 2, "ART"),
		validSpec(KindChapter, 1, "CAP"),
	})
	require.NoError(t, err)
	rules := g.Rules()
	assert.Equal(t, KindChapter, rules[0].Kind, "rules are sorted by rank")
	assert.Equal(t, "test", g.Name())
}

func TestNew_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		specs  []RuleSpec
		reason string
	}{
		{"empty", nil, "no rules"},
		{"shared rank", []RuleSpec{validSpec(KindChapter, 1, "CAP"), validSpec(KindArticle, 1, "ART")}, "share rank"},
		{"root rank", []RuleSpec{validSpec(KindChapter, 0, "CAP")}, "rank must be greater"},
		{"duplicate kind", []RuleSpec{validSpec(KindChapter, 1, "CAP"), validSpec(KindChapter, 2, "CAPX")}, "declared twice"},
		{"unknown kind", []RuleSpec{validSpec(Kind("annex"), 1, "ANEXA")}, "unknown kind"},
		{"ambiguous", []RuleSpec{
			validSpec(KindChapter, 1, "CAP"),
			func() RuleSpec {
				s := validSpec(KindArticle, 2, "ART")
				s.WithoutTitle = `^(?:ART|CAP)\s+(?P<id>\d+)$`
				return s
			}(),
		}, "also recognized"},
		{"unanchored", []RuleSpec{func() RuleSpec {
			s := validSpec(KindChapter, 1, "CAP")
			s.WithoutTitle = `CAP\s+(?P<id>\d+)$`
			return s
		}()}, "anchored with ^"},
		{"missing group", []RuleSpec{func() RuleSpec {
			s := validSpec(KindChapter, 1, "CAP")
			s.WithoutTitle = `^CAP\s+(\d+)$`
			return s
		}()}, "lacks named group"},
		{"bad regexp", []RuleSpec{func() RuleSpec {
			s := validSpec(KindChapter, 1, "CAP")
			s.WithoutTitle = `^CAP\s+(?P<id>\d+$`
			return s
		}()}, "compiling"},
		{"example not recognized", []RuleSpec{func() RuleSpec {
			s := validSpec(KindChapter, 1, "CAP")
			s.Examples = []string{"CAP X"}
			return s
		}()}, "does not recognize"},
		{"no pattern", []RuleSpec{{Kind: KindChapter, Rank: 1, Render: "{id}", Examples: []string{"x"}}}, "no recognition pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("bad", tt.specs)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidGrammar), "error %v should wrap ErrInvalidGrammar", err)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestLoad_YAML(t *testing.T) {
	src := `
name: mini
rules:
  - kind: chapter
    rank: 1
    without_title: '^CHAPTER\s+(?P<id>\d+)$'
    render: 'CHAPTER {id}'
    examples: ['CHAPTER 1']
`
	g, err := Load(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "mini", g.Name())
	rule, ok := g.Rule(KindChapter)
	require.True(t, ok)
	assert.Equal(t, "chapter", rule.Name, "name defaults to kind")

	_, err = Load(strings.NewReader("rules: [: bad"))
	assert.ErrorIs(t, err, ErrInvalidGrammar)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile("does-not-exist.yaml")
	assert.Error(t, err)
}
