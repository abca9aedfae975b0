package pathstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Record is the persisted form of one tree node. ParentID is empty for the
// record of the synthetic root.
type Record struct {
	ID         string   `json:"id"`
	DocumentID string   `json:"document_id"`
	ParentID   string   `json:"parent_id,omitempty"`
	Type       string   `json:"type"`
	Rank       int      `json:"rank"`
	Identifier string   `json:"identifier,omitempty"`
	Title      string   `json:"title,omitempty"`
	Content    []string `json:"content"`
	Position   int      `json:"position"`
	Path       string   `json:"path,omitempty"`
	Line       int      `json:"line,omitempty"`
}

// DocumentMeta describes a stored act.
type DocumentMeta struct {
	DocumentID  string         `json:"document_id"`
	Filename    string         `json:"filename,omitempty"`
	Title       string         `json:"title"`
	ContentHash string         `json:"content_hash,omitempty"`
	Grammar     string         `json:"grammar"`
	Lines       int            `json:"lines"`
	Nodes       int            `json:"nodes"`
	Diagnostics int            `json:"diagnostics"`
	Kinds       map[string]int `json:"kinds,omitempty"`
	RootID      string         `json:"root_id"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Store is what the ingest pipeline needs from persistence.
type Store interface {
	PutRecord(ctx context.Context, r Record) error
	PutMeta(ctx context.Context, m DocumentMeta) error
	PutHash(ctx context.Context, hash, docID string) error
	// FindByHash returns the document already stored for hash, if any.
	FindByHash(ctx context.Context, hash string) (string, bool, error)
	DeleteDocument(ctx context.Context, docID string) error
}

func RecordKey(docID, recordID string) string { return "acts/" + docID + "/nodes/" + recordID }

func MetaKey(docID string) string { return "acts/" + docID + "/meta" }

func HashKey(hash, docID string) string { return "acts/by_hash/" + hash + "/" + docID }

// MemoryStore is an in-process Store, used when no pathstore URL is configured
// and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]Record // doc -> record id -> record
	meta    map[string]DocumentMeta
	hashes  map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]map[string]Record),
		meta:    make(map[string]DocumentMeta),
		hashes:  make(map[string][]string),
	}
}

func (m *MemoryStore) PutRecord(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.records[r.DocumentID]
	if !ok {
		doc = make(map[string]Record)
		m.records[r.DocumentID] = doc
	}
	r.Content = append([]string(nil), r.Content...)
	doc[r.ID] = r
	return nil
}

func (m *MemoryStore) PutMeta(ctx context.Context, meta DocumentMeta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[meta.DocumentID] = meta
	return nil
}

func (m *MemoryStore) PutHash(ctx context.Context, hash, docID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.hashes[hash] {
		if d == docID {
			return nil
		}
	}
	m.hashes[hash] = append(m.hashes[hash], docID)
	return nil
}

func (m *MemoryStore) FindByHash(ctx context.Context, hash string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := m.hashes[hash]
	if len(docs) == 0 {
		return "", false, nil
	}
	return docs[0], true, nil
}

func (m *MemoryStore) DeleteDocument(ctx context.Context, docID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, docID)
	delete(m.meta, docID)
	for h, docs := range m.hashes {
		kept := docs[:0]
		for _, d := range docs {
			if d != docID {
				kept = append(kept, d)
			}
		}
		if len(kept) == 0 {
			delete(m.hashes, h)
		} else {
			m.hashes[h] = kept
		}
	}
	return nil
}

// Records returns the records of docID, root first, then by depth and source
// line.
func (m *MemoryStore) Records(docID string) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records[docID]))
	for _, r := range m.records[docID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := strings.Count(out[i].Path, " / "), strings.Count(out[j].Path, " / ")
		if (out[i].Path == "") != (out[j].Path == "") {
			return out[i].Path == ""
		}
		if di != dj {
			return di < dj
		}
		return out[i].Line < out[j].Line
	})
	return out
}

// Meta returns the stored metadata of docID.
func (m *MemoryStore) Meta(docID string) (DocumentMeta, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.meta[docID]
	return meta, ok
}
