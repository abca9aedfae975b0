package pathstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKV struct {
	mu   sync.Mutex
	data map[string]json.RawMessage
	auth []string
}

func newFakeKV(t *testing.T) (*fakeKV, *httptest.Server) {
	t.Helper()
	kv := &fakeKV{data: make(map[string]json.RawMessage)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kv.mu.Lock()
		defer kv.mu.Unlock()
		kv.auth = append(kv.auth, r.Header.Get("Authorization"))
		key := strings.TrimPrefix(r.URL.Path, "/kv/")

		switch {
		case r.Method == http.MethodPut:
			var req struct {
				Value json.RawMessage `json:"value"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			kv.data[key] = req.Value
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodGet && strings.HasSuffix(key, "/*"):
			prefix := strings.TrimSuffix(key, "*")
			var nodes []ListChildrenResponse
			for k, v := range kv.data {
				if strings.HasPrefix(k, prefix) {
					nodes = append(nodes, ListChildrenResponse{Key: k, Value: v})
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"nodes": nodes})
		case r.Method == http.MethodGet:
			v, ok := kv.data[key]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_ = json.NewEncoder(w).Encode(NodeResponse{Key: key, Value: v})
		case r.Method == http.MethodDelete:
			for k := range kv.data {
				if k == key || (r.URL.Query().Get("children") == "true" && strings.HasPrefix(k, key+"/")) {
					delete(kv.data, k)
				}
			}
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	t.Cleanup(srv.Close)
	return kv, srv
}

func TestClient_RecordRoundTrip(t *testing.T) {
	kv, srv := newFakeKV(t)
	c := NewClient(srv.URL+"/", "secret")
	defer c.Close()
	ctx := context.Background()

	rec := Record{ID: "r1", DocumentID: "d1", Type: "article", Rank: 6, Identifier: "5", Content: []string{"Body."}}
	require.NoError(t, c.PutRecord(ctx, rec))

	got, err := c.GetNode(ctx, RecordKey("d1", "r1"))
	require.NoError(t, err)
	require.NotNil(t, got)
	var back Record
	require.NoError(t, json.Unmarshal(got.Value, &back))
	assert.Equal(t, rec, back)

	missing, err := c.GetNode(ctx, RecordKey("d1", "nope"))
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Equal(t, "Bearer secret", kv.auth[0])
}

func TestClient_HashIndex(t *testing.T) {
	_, srv := newFakeKV(t)
	c := NewClient(srv.URL, "k")
	ctx := context.Background()

	_, found, err := c.FindByHash(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.PutHash(ctx, "abc", "doc-7"))
	doc, found, err := c.FindByHash(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "doc-7", doc)
}

func TestClient_DeleteDocument(t *testing.T) {
	kv, srv := newFakeKV(t)
	c := NewClient(srv.URL, "k")
	ctx := context.Background()

	require.NoError(t, c.PutRecord(ctx, Record{ID: "a", DocumentID: "d"}))
	require.NoError(t, c.PutMeta(ctx, DocumentMeta{DocumentID: "d"}))
	require.NoError(t, c.PutRecord(ctx, Record{ID: "b", DocumentID: "other"}))
	require.NoError(t, c.DeleteDocument(ctx, "d"))

	kv.mu.Lock()
	defer kv.mu.Unlock()
	assert.Len(t, kv.data, 1)
	assert.Contains(t, kv.data, RecordKey("other", "b"))
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
		{http.StatusForbidden, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			err := NewClient(srv.URL, "k").PutRecord(context.Background(), Record{ID: "x", DocumentID: "d"})
			require.Error(t, err)
			var re *RetryableError
			assert.Equal(t, tt.retryable, errors.As(err, &re))
			if tt.retryable {
				assert.Equal(t, tt.status, re.StatusCode)
			}
		})
	}
}

func TestRetryableError_Truncates(t *testing.T) {
	err := &RetryableError{StatusCode: 503, Message: strings.Repeat("x", 500)}
	assert.Less(t, len(err.Error()), 260)
}
