package vectorsearch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/relay/pkg/tools"
)

func newEmbeddingServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path = %s, want /v1/embeddings", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("Authorization = %q", got)
		}
		var req embeddingRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "embed-small" {
			t.Errorf("model = %q", req.Model)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":"down"}`))
			return
		}
		// Return out of order to check reordering by index.
		w.Write([]byte(`{"data":[{"index":1,"embedding":[0.3,0.4]},{"index":0,"embedding":[0.1,0.2]}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := newEmbeddingServer(t, http.StatusOK)

	for _, base := range []string{srv.URL, srv.URL + "/v1", srv.URL + "/v1/embeddings"} {
		e := NewOpenAIEmbedder(base, "embed-small", "k")
		vecs, err := e.Embed(context.Background(), []string{"a", "b"})
		if err != nil {
			t.Fatalf("Embed(%s): %v", base, err)
		}
		if len(vecs) != 2 || vecs[0][0] != 0.1 || vecs[1][0] != 0.3 {
			t.Errorf("Embed(%s) = %v", base, vecs)
		}
	}
}

func TestOpenAIEmbedderError(t *testing.T) {
	srv := newEmbeddingServer(t, http.StatusBadGateway)
	_, err := NewOpenAIEmbedder(srv.URL, "embed-small", "k").Embed(context.Background(), []string{"a"})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("error = %v, want status 502", err)
	}
}

func TestQdrantSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/docs/points/search" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		var req qdrantSearchRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.WithPayload || req.Limit != 2 || len(req.Vector) != 2 {
			t.Errorf("search request = %+v", req)
		}
		json.NewEncoder(w).Encode(qdrantSearchResponse{Result: []qdrantSearchResult{
			{ID: "d1", Score: 0.9, Payload: map[string]any{"content": "Line 3 torque setting is 40 Nm.", "source": "sop-3.md"}},
			{ID: 7, Score: 0.7, Payload: map[string]any{"text": "Inspections run hourly.", "page": 2}},
		}})
	}))
	defer srv.Close()

	matches, err := NewQdrant(srv.URL+"/").Search(context.Background(), "docs", []float32{0.1, 0.2}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	if matches[0].Content != "Line 3 torque setting is 40 Nm." || matches[0].Metadata["source"] != "sop-3.md" {
		t.Errorf("match[0] = %+v", matches[0])
	}
	if matches[1].ID != "7" || matches[1].Content != "Inspections run hourly." {
		t.Errorf("match[1] = %+v", matches[1])
	}
}

func TestQdrantSearchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status":{"error":"Collection docs not found"}}`))
	}))
	defer srv.Close()

	if _, err := NewQdrant(srv.URL).Search(context.Background(), "docs", []float32{1}, 1); err == nil {
		t.Error("expected error for missing collection")
	}
}

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return [][]float32{{1, 0}}, nil
}

type fakeIndex struct {
	limit   int
	matches []Match
}

func (f *fakeIndex) Search(_ context.Context, _ string, _ []float32, limit int) ([]Match, error) {
	f.limit = limit
	return f.matches, nil
}

func TestBackendSearch(t *testing.T) {
	idx := &fakeIndex{matches: []Match{
		{Content: "first", Metadata: map[string]string{"source": "a.md"}},
		{Content: "second", Metadata: map[string]string{}},
	}}
	b := New(fakeEmbedder{}, idx, "docs", 4)

	out, err := b.Search(context.Background(), "torque", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if idx.limit != 4 {
		t.Errorf("limit = %d, want default 4", idx.limit)
	}
	want := "[1] first (source: a.md)\n\n[2] second"
	if out != want {
		t.Errorf("Search() = %q, want %q", out, want)
	}

	out, _ = b.Search(context.Background(), "torque", 1)
	if out != "[1] first (source: a.md)" {
		t.Errorf("Search(k=1) = %q", out)
	}
}

func TestBackendSearchEmptyAndErrors(t *testing.T) {
	out, err := New(fakeEmbedder{}, &fakeIndex{}, "docs", 0).Search(context.Background(), "q", 0)
	if err != nil || out != "No relevant documents found." {
		t.Errorf("empty Search() = %q, %v", out, err)
	}

	_, err = New(fakeEmbedder{err: errors.New("rate limited")}, &fakeIndex{}, "docs", 0).Search(context.Background(), "q", 0)
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error = %v", err)
	}
}

func TestCapabilityThroughRegistry(t *testing.T) {
	r := tools.NewRegistry()
	idx := &fakeIndex{matches: []Match{{Content: "passage", Metadata: map[string]string{}}}}
	if err := r.Register(Capability(New(fakeEmbedder{}, idx, "docs", 5))); err != nil {
		t.Fatalf("Register: %v", err)
	}

	res := r.Invoke(context.Background(), tools.Call{ID: "c1", Name: Name, Arguments: `{"query":"torque","k":2}`})
	if res.IsError || res.Output != "[1] passage" || idx.limit != 2 {
		t.Errorf("result = %+v, limit = %d", res, idx.limit)
	}
}
