package pathstore

import (
	"context"
	"fmt"

	"github.com/dgallion1/legalparse/internal/doctree"
	"github.com/google/uuid"
)

// MaterializeOptions tunes Materialize. The zero value writes one record at a
// time without retries.
type MaterializeOptions struct {
	// Concurrency bounds the writes in flight within one depth level.
	Concurrency int
	// Retry wraps each write; nil calls fn once.
	Retry func(ctx context.Context, fn func() error) error
	// NewID issues record IDs; nil uses random UUIDs.
	NewID func() string
}

// Materialized summarizes a Materialize run.
type Materialized struct {
	RootID  string
	Stored  int
	Skipped int
	Errors  []error
}

// Materialize walks tree once and writes one Record per node, root included.
// Levels are written in depth order so a parent record always exists before
// its children; writes within a level run concurrently. Descendants of a node
// whose write failed are skipped. The returned error is non-nil only when the
// context ends.
func Materialize(ctx context.Context, s Store, docID string, tree *doctree.Tree, opts MaterializeOptions) (*Materialized, error) {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Retry == nil {
		opts.Retry = func(_ context.Context, fn func() error) error { return fn() }
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}

	ids := make(map[doctree.NodeID]string, tree.Len()+1)
	positions := make(map[doctree.NodeID]int, tree.Len()+1)
	failed := make(map[doctree.NodeID]bool)
	out := &Materialized{}

	level := []doctree.Node{tree.Root()}
	for len(level) > 0 {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		type result struct {
			node doctree.Node
			err  error
		}
		results := make(chan result, len(level))
		sem := make(chan struct{}, opts.Concurrency)
		pending := 0

		for _, n := range level {
			parent, hasParent := n.Parent()
			if hasParent && failed[parent.ID()] {
				failed[n.ID()] = true
				out.Skipped++
				continue
			}
			ids[n.ID()] = opts.NewID()
			rec := newRecord(docID, n, ids, positions[n.ID()])

			pending++
			sem <- struct{}{}
			go func(n doctree.Node, rec Record) {
				defer func() { <-sem }()
				err := opts.Retry(ctx, func() error { return s.PutRecord(ctx, rec) })
				results <- result{node: n, err: err}
			}(n, rec)
		}

		for range pending {
			r := <-results
			if r.err != nil {
				failed[r.node.ID()] = true
				out.Errors = append(out.Errors, fmt.Errorf("%s: %w", r.node.Label(), r.err))
				continue
			}
			out.Stored++
		}

		var next []doctree.Node
		for _, n := range level {
			for i, c := range n.Children() {
				positions[c.ID()] = i
				next = append(next, c)
			}
		}
		level = next
	}

	if !failed[doctree.RootID] {
		out.RootID = ids[doctree.RootID]
	}
	return out, ctx.Err()
}

// newRecord builds the record of n; position is its index among its siblings.
func newRecord(docID string, n doctree.Node, ids map[doctree.NodeID]string, position int) Record {
	rec := Record{
		ID:         ids[n.ID()],
		DocumentID: docID,
		Type:       string(n.Kind()),
		Rank:       n.Rank(),
		Identifier: n.Identifier(),
		Title:      n.Title(),
		Content:    n.Content(),
		Position:   position,
		Path:       n.Path(),
		Line:       n.Line(),
	}
	if parent, ok := n.Parent(); ok {
		rec.ParentID = ids[parent.ID()]
	}
	return rec
}
