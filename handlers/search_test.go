package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/serisow/ingestor/services/rag_service"
)

type fakeQueryEmbedder struct {
	gotQuery string
	err      error
}

func (f *fakeQueryEmbedder) EmbedQuery(ctx context.Context, query string) (pgvector.Vector, error) {
	f.gotQuery = query
	if f.err != nil {
		return pgvector.Vector{}, f.err
	}
	return pgvector.NewVector([]float32{0.1, 0.2}), nil
}

type fakeChunkSearcher struct {
	gotLimit int
	results  []rag_service.SearchResult
	err      error
}

func (f *fakeChunkSearcher) Search(ctx context.Context, embedding pgvector.Vector, limit int) ([]rag_service.SearchResult, error) {
	f.gotLimit = limit
	return f.results, f.err
}

func TestDocumentSearchHandler(t *testing.T) {
	embedder := &fakeQueryEmbedder{}
	searcher := &fakeChunkSearcher{results: []rag_service.SearchResult{
		{DocID: "doc-1", ChunkIndex: 0, Content: "matched text", Distance: 0.12},
	}}
	handler := NewDocumentSearchHandler(embedder, searcher, testLogger())

	req := httptest.NewRequest("POST", "/documents/search",
		strings.NewReader(`{"query": "hybrid retrieval", "limit": 5}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if embedder.gotQuery != "hybrid retrieval" {
		t.Errorf("Expected the query to be embedded, got %q", embedder.gotQuery)
	}
	if searcher.gotLimit != 5 {
		t.Errorf("Expected limit 5, got %d", searcher.gotLimit)
	}

	var resp struct {
		Results []rag_service.SearchResult `json:"results"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Could not decode response: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].DocID != "doc-1" {
		t.Errorf("Unexpected results: %+v", resp.Results)
	}
}

func TestDocumentSearchHandlerErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		embedder *fakeQueryEmbedder
		searcher *fakeChunkSearcher
		wantCode int
	}{
		{
			name:     "invalid body",
			body:     "{not json",
			embedder: &fakeQueryEmbedder{},
			searcher: &fakeChunkSearcher{},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "empty query",
			body:     `{"query": ""}`,
			embedder: &fakeQueryEmbedder{},
			searcher: &fakeChunkSearcher{},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "embedding failure",
			body:     `{"query": "q"}`,
			embedder: &fakeQueryEmbedder{err: errors.New("service down")},
			searcher: &fakeChunkSearcher{},
			wantCode: http.StatusInternalServerError,
		},
		{
			name:     "search failure",
			body:     `{"query": "q"}`,
			embedder: &fakeQueryEmbedder{},
			searcher: &fakeChunkSearcher{err: errors.New("scan failed")},
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewDocumentSearchHandler(tt.embedder, tt.searcher, testLogger())

			req := httptest.NewRequest("POST", "/documents/search", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, rr.Code)
			}
		})
	}
}
