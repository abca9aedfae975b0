package pathstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dgallion1/legalparse/internal/doctree"
	"github.com/dgallion1/legalparse/internal/grammar"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// act builds: root(preamble) -> Chapter I -> {Article 1, Article 2 -> Paragraph 1}
func act(t *testing.T) *doctree.Tree {
	t.Helper()
	a := doctree.NewAssembler(grammar.Default())
	require.NoError(t, a.AppendContent(doctree.RootID, "LEGE"))
	ch, err := a.Add(doctree.RootID, grammar.KindChapter, "I", "General", 2)
	require.NoError(t, err)
	a1, err := a.Add(ch, grammar.KindArticle, "1", "", 3)
	require.NoError(t, err)
	require.NoError(t, a.AppendContent(a1, "Body one."))
	a2, err := a.Add(ch, grammar.KindArticle, "2", "", 5)
	require.NoError(t, err)
	_, err = a.Add(a2, grammar.KindParagraph, "1", "", 6)
	require.NoError(t, err)
	return a.Finish()
}

func TestMaterialize_Records(t *testing.T) {
	store := NewMemoryStore()
	res, err := Materialize(context.Background(), store, "doc", act(t), MaterializeOptions{Concurrency: 4})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Stored)
	assert.Empty(t, res.Errors)
	_, err = uuid.Parse(res.RootID)
	assert.NoError(t, err, "record ids are uuids")

	recs := store.Records("doc")
	require.Len(t, recs, 5)
	byID := make(map[string]Record)
	for _, r := range recs {
		byID[r.ID] = r
		assert.Equal(t, "doc", r.DocumentID)
	}

	root := recs[0]
	assert.Equal(t, res.RootID, root.ID)
	assert.Equal(t, "root", root.Type)
	assert.Empty(t, root.ParentID)
	assert.Equal(t, []string{"LEGE"}, root.Content)

	for _, r := range recs[1:] {
		parent, ok := byID[r.ParentID]
		require.True(t, ok, "parent of %s stored", r.Path)
		assert.Less(t, parent.Rank, r.Rank)
	}

	var a2 Record
	for _, r := range recs {
		if r.Path == "Chapter I / Article 2" {
			a2 = r
		}
	}
	require.NotEmpty(t, a2.ID)
	assert.Equal(t, 1, a2.Position)
	assert.Equal(t, 5, a2.Line)
	assert.Equal(t, "article", a2.Type)
}

func TestMaterialize_SiblingPositions(t *testing.T) {
	const articles = 2000
	a := doctree.NewAssembler(grammar.Default())
	title, err := a.Add(doctree.RootID, grammar.KindTitle, "I", "", 1)
	require.NoError(t, err)
	for i := range articles {
		_, err := a.Add(title, grammar.KindArticle, fmt.Sprint(i+1), "", i+2)
		require.NoError(t, err)
	}

	store := NewMemoryStore()
	res, err := Materialize(context.Background(), store, "wide", a.Finish(), MaterializeOptions{Concurrency: 8})
	require.NoError(t, err)
	require.Equal(t, articles+2, res.Stored)

	seen := make(map[int]bool, articles)
	for _, r := range store.Records("wide") {
		if r.Type != "article" {
			assert.Zero(t, r.Position, r.Path)
			continue
		}
		assert.Equal(t, r.Line-2, r.Position, r.Path)
		seen[r.Position] = true
	}
	assert.Len(t, seen, articles)
}

// orderingStore records the order writes arrive in and can fail chosen paths.
type orderingStore struct {
	*MemoryStore
	mu    sync.Mutex
	seen  map[string]bool
	order []string
	fail  map[string]bool
	bad   atomic.Int32
}

func (s *orderingStore) PutRecord(ctx context.Context, r Record) error {
	s.mu.Lock()
	if r.ParentID != "" && !s.seen[r.ParentID] {
		s.bad.Add(1)
	}
	s.seen[r.ID] = true
	s.order = append(s.order, r.Path)
	s.mu.Unlock()
	if s.fail[r.Path] {
		return errors.New("boom")
	}
	return s.MemoryStore.PutRecord(ctx, r)
}

func TestMaterialize_ParentsFirst(t *testing.T) {
	s := &orderingStore{MemoryStore: NewMemoryStore(), seen: map[string]bool{}}
	_, err := Materialize(context.Background(), s, "doc", act(t), MaterializeOptions{Concurrency: 8})
	require.NoError(t, err)
	assert.Zero(t, s.bad.Load(), "every child written after its parent")
	assert.Len(t, s.order, 5)
}

func TestMaterialize_SkipsDescendantsOfFailed(t *testing.T) {
	s := &orderingStore{
		MemoryStore: NewMemoryStore(),
		seen:        map[string]bool{},
		fail:        map[string]bool{"Chapter I / Article 2": true},
	}
	res, err := Materialize(context.Background(), s, "doc", act(t), MaterializeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stored)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error(), "Article 2")
	assert.NotContains(t, s.order, "Chapter I / Article 2 / Paragraph 1")
}

func TestMaterialize_RetryAndIDs(t *testing.T) {
	var calls atomic.Int32
	retry := func(ctx context.Context, fn func() error) error {
		calls.Add(1)
		return fn()
	}
	var n atomic.Int32
	newID := func() string { return fmt.Sprintf("id-%d", n.Add(1)) }

	store := NewMemoryStore()
	res, err := Materialize(context.Background(), store, "doc", act(t), MaterializeOptions{Retry: retry, NewID: newID})
	require.NoError(t, err)
	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, "id-1", res.RootID)
}

func TestMaterialize_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Materialize(ctx, NewMemoryStore(), "doc", act(t), MaterializeOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_Hashes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.PutHash(ctx, "h", "d1"))
	require.NoError(t, s.PutHash(ctx, "h", "d1"))
	require.NoError(t, s.PutMeta(ctx, DocumentMeta{DocumentID: "d1", Title: "Lege"}))

	doc, ok, err := s.FindByHash(ctx, "h")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "d1", doc)

	require.NoError(t, s.DeleteDocument(ctx, "d1"))
	_, ok, _ = s.FindByHash(ctx, "h")
	assert.False(t, ok)
	_, ok = s.Meta("d1")
	assert.False(t, ok)
}
