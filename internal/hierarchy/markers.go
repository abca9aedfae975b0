package hierarchy

import (
	"fmt"

	"github.com/dgallion1/legalparse/internal/doctree"
)

// Markers renders the structural markers of tree back to lines, in document
// order, using the canonical form of each grammar rule. Content is omitted.
// Parsing the result yields a tree of the same shape.
func Markers(tree *doctree.Tree) ([]string, error) {
	g := tree.Grammar()
	out := make([]string, 0, tree.Len())
	for _, n := range tree.Nodes() {
		line, err := g.Render(n.Kind(), n.Identifier(), n.Title())
		if err != nil {
			return nil, fmt.Errorf("node at line %d: %w", n.Line(), err)
		}
		out = append(out, line)
	}
	return out, nil
}
