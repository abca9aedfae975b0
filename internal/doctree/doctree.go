// Package doctree holds the parsed structure of a legal act: a tree of books,
// titles, chapters, sections, articles and the content lines attached to them.
package doctree

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgallion1/legalparse/internal/grammar"
)

// NodeID indexes a node inside its tree.
type NodeID int

// RootID is the synthetic root of every tree.
const RootID NodeID = 0

var (
	ErrNotFound   = errors.New("node not found")
	ErrBadPath    = errors.New("malformed path")
	ErrRankOrder  = errors.New("child rank must exceed parent rank")
	ErrFinished   = errors.New("tree already finished")
	ErrUnknownRef = errors.New("unknown node")
)

type node struct {
	kind       grammar.Kind
	rank       int
	identifier string
	title      string
	content    []string
	line       int // 1-based source line of the marker, 0 for the root
	parent     NodeID
	children   []NodeID
}

// Tree is an immutable parsed document. Nodes live in an arena and refer to
// their parent by index; ownership runs strictly from the root down.
type Tree struct {
	grammar *grammar.Grammar
	nodes   []node
}

// Grammar returns the grammar the tree was built with.
func (t *Tree) Grammar() *grammar.Grammar { return t.grammar }

// Root returns the synthetic root.
func (t *Tree) Root() Node { return Node{t: t, id: RootID} }

// Len returns the number of structural nodes, excluding the root.
func (t *Tree) Len() int { return len(t.nodes) - 1 }

// Node returns the node with id.
func (t *Tree) Node(id NodeID) (Node, bool) {
	if id < 0 || int(id) >= len(t.nodes) {
		return Node{}, false
	}
	return Node{t: t, id: id}, true
}

// Walk visits the root and every node depth-first in source order. Returning
// false from fn skips the node's children.
func (t *Tree) Walk(fn func(Node) bool) {
	var visit func(id NodeID)
	visit = func(id NodeID) {
		if !fn(Node{t: t, id: id}) {
			return
		}
		for _, c := range t.nodes[id].children {
			visit(c)
		}
	}
	visit(RootID)
}

// Nodes returns every structural node in source order.
func (t *Tree) Nodes() []Node {
	out := make([]Node, 0, t.Len())
	t.Walk(func(n Node) bool {
		if !n.IsRoot() {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Stats counts nodes per kind.
func (t *Tree) Stats() map[grammar.Kind]int {
	stats := make(map[grammar.Kind]int)
	for _, n := range t.nodes[1:] {
		stats[n.kind]++
	}
	return stats
}

// Outline renders the structural nodes as an indented list, one per line.
func (t *Tree) Outline() string {
	var sb strings.Builder
	t.Walk(func(n Node) bool {
		if n.IsRoot() {
			return true
		}
		sb.WriteString(strings.Repeat("  ", n.Depth()-1))
		sb.WriteString(n.Label())
		if title := n.Title(); title != "" {
			sb.WriteString(" - ")
			sb.WriteString(title)
		}
		sb.WriteString("\n")
		return true
	})
	return sb.String()
}

// PathSegment addresses one level of a lookup path, e.g. {chapter, "III"}.
type PathSegment struct {
	Kind       grammar.Kind
	Identifier string
}

func (s PathSegment) String() string {
	return s.Kind.DisplayName() + " " + s.Identifier
}

// ParsePath splits "Title II / Chapter 3 / Article 15" into segments. Kind
// names are resolved through the tree's grammar, so aliases such as
// "Capitolul" or "art" are accepted.
func (t *Tree) ParsePath(path string) ([]PathSegment, error) {
	var segs []PathSegment
	for _, raw := range strings.Split(path, "/") {
		part := strings.TrimSpace(raw)
		name, id, ok := strings.Cut(part, " ")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: segment %q needs a kind and an identifier", ErrBadPath, part)
		}
		kind, ok := t.grammar.KindByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown kind %q", ErrBadPath, name)
		}
		segs = append(segs, PathSegment{Kind: kind, Identifier: id})
	}
	return segs, nil
}

// Lookup resolves a path. Each segment matches the first descendant, in source
// order, of the previous match, so intermediate levels may be omitted.
func (t *Tree) Lookup(path string) (Node, error) {
	segs, err := t.ParsePath(path)
	if err != nil {
		return Node{}, err
	}
	return t.LookupSegments(segs)
}

// LookupSegments resolves already parsed segments.
func (t *Tree) LookupSegments(segs []PathSegment) (Node, error) {
	cur := t.Root()
	for i, seg := range segs {
		next, ok := cur.find(seg)
		if !ok {
			return Node{}, fmt.Errorf("%w: %s", ErrNotFound, joinSegments(segs[:i+1]))
		}
		cur = next
	}
	return cur, nil
}

func joinSegments(segs []PathSegment) string {
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = s.String()
	}
	return strings.Join(parts, " / ")
}

// Node is a read-only handle to a tree node. The zero Node is invalid.
type Node struct {
	t  *Tree
	id NodeID
}

func (n Node) data() *node { return &n.t.nodes[n.id] }

// Valid reports whether the handle refers to a node.
func (n Node) Valid() bool { return n.t != nil }

func (n Node) ID() NodeID { return n.id }

func (n Node) IsRoot() bool { return n.id == RootID }

func (n Node) Kind() grammar.Kind { return n.data().kind }

func (n Node) Rank() int { return n.data().rank }

func (n Node) Identifier() string { return n.data().identifier }

// Title returns the inline title, or "" when the marker had none.
func (n Node) Title() string { return n.data().title }

// Line returns the 1-based source line of the node's marker.
func (n Node) Line() int { return n.data().line }

// Content returns a copy of the node's content lines.
func (n Node) Content() []string {
	src := n.data().content
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// Parent returns the parent node; the root has none.
func (n Node) Parent() (Node, bool) {
	if n.IsRoot() {
		return Node{}, false
	}
	return Node{t: n.t, id: n.data().parent}, true
}

// Children returns the direct children in source order.
func (n Node) Children() []Node {
	ids := n.data().children
	out := make([]Node, len(ids))
	for i, id := range ids {
		out[i] = Node{t: n.t, id: id}
	}
	return out
}

// Depth is 0 for the root, 1 for top-level nodes, and so on.
func (n Node) Depth() int {
	d := 0
	for cur := n; !cur.IsRoot(); cur, _ = cur.Parent() {
		d++
	}
	return d
}

// Label returns e.g. "Chapter III".
func (n Node) Label() string {
	if n.IsRoot() {
		return grammar.KindRoot.DisplayName()
	}
	return PathSegment{Kind: n.Kind(), Identifier: n.Identifier()}.String()
}

// Segments returns the lookup path from the root to n.
func (n Node) Segments() []PathSegment {
	var segs []PathSegment
	for cur := n; !cur.IsRoot(); cur, _ = cur.Parent() {
		segs = append(segs, PathSegment{Kind: cur.Kind(), Identifier: cur.Identifier()})
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return segs
}

// Path returns the lookup path of n, e.g. "Title II / Chapter 3 / Article 15".
func (n Node) Path() string { return joinSegments(n.Segments()) }

func (n Node) find(seg PathSegment) (Node, bool) {
	for _, c := range n.data().children {
		child := Node{t: n.t, id: c}
		if child.Kind() == seg.Kind && strings.EqualFold(child.Identifier(), seg.Identifier) {
			return child, true
		}
		if found, ok := child.find(seg); ok {
			return found, true
		}
	}
	return Node{}, false
}

// Assembler builds a Tree. It is used by the hierarchy builder and is not safe
// for concurrent use.
type Assembler struct {
	tree *Tree
	done bool
}

// NewAssembler starts a tree holding only the synthetic root.
func NewAssembler(g *grammar.Grammar) *Assembler {
	return &Assembler{
		tree: &Tree{
			grammar: g,
			nodes:   []node{{kind: grammar.KindRoot, rank: grammar.RootRank, parent: RootID}},
		},
	}
}

// Add appends a child of kind under parent and returns its id.
func (a *Assembler) Add(parent NodeID, kind grammar.Kind, identifier, title string, line int) (NodeID, error) {
	if a.done {
		return 0, ErrFinished
	}
	if parent < 0 || int(parent) >= len(a.tree.nodes) {
		return 0, fmt.Errorf("%w: %d", ErrUnknownRef, parent)
	}
	rank := a.tree.grammar.Rank(kind)
	if p := a.tree.nodes[parent]; rank <= p.rank {
		return 0, fmt.Errorf("%w: %s (rank %d) under %s (rank %d)", ErrRankOrder, kind, rank, p.kind, p.rank)
	}
	id := NodeID(len(a.tree.nodes))
	a.tree.nodes = append(a.tree.nodes, node{
		kind:       kind,
		rank:       rank,
		identifier: identifier,
		title:      title,
		line:       line,
		parent:     parent,
	})
	a.tree.nodes[parent].children = append(a.tree.nodes[parent].children, id)
	return id, nil
}

// AppendContent attaches a content line to node id.
func (a *Assembler) AppendContent(id NodeID, text string) error {
	if a.done {
		return ErrFinished
	}
	if id < 0 || int(id) >= len(a.tree.nodes) {
		return fmt.Errorf("%w: %d", ErrUnknownRef, id)
	}
	a.tree.nodes[id].content = append(a.tree.nodes[id].content, text)
	return nil
}

// Rank returns the rank of node id.
func (a *Assembler) Rank(id NodeID) int { return a.tree.nodes[id].rank }

// Finish freezes the tree. Further calls to Add or AppendContent fail.
func (a *Assembler) Finish() *Tree {
	a.done = true
	return a.tree
}

// jsonNode is the wire form of a node and its subtree.
type jsonNode struct {
	Type       grammar.Kind `json:"type"`
	Identifier string       `json:"identifier,omitempty"`
	Title      string       `json:"title,omitempty"`
	Content    []string     `json:"content"`
	Line       int          `json:"line,omitempty"`
	Children   []jsonNode   `json:"children"`
}

func (n Node) toJSON() jsonNode {
	d := n.data()
	out := jsonNode{
		Type:       d.kind,
		Identifier: d.identifier,
		Title:      d.title,
		Content:    n.Content(),
		Line:       d.line,
		Children:   make([]jsonNode, 0, len(d.children)),
	}
	for _, c := range n.Children() {
		out.Children = append(out.Children, c.toJSON())
	}
	return out
}

// MarshalJSON encodes the node and its subtree.
func (n Node) MarshalJSON() ([]byte, error) {
	if !n.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(n.toJSON())
}

// MarshalJSON encodes the whole tree starting at the root.
func (t *Tree) MarshalJSON() ([]byte, error) {
	return t.Root().MarshalJSON()
}
