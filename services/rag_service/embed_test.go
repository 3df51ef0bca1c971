package rag_service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/pgvector/pgvector-go"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPEmbedderEmbedBatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected bearer auth header, got %q", r.Header.Get("Authorization"))
		}

		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Could not decode request body: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("Expected model test-model, got %q", req.Model)
		}

		// Return vectors out of order to verify index-based placement.
		resp := map[string]interface{}{
			"object": "list",
			"data": []map[string]interface{}{
				{"index": 1, "embedding": []float32{0.3, 0.4}},
				{"index": 0, "embedding": []float32{0.1, 0.2}},
			},
			"usage": map[string]int{"total_tokens": 7},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	embedder := NewHTTPEmbedder(ts.URL, "test-key", "test-model", testLogger())

	vectors, err := embedder.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Did not expect an error but got: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("Expected 2 vectors, got %d", len(vectors))
	}
	if !reflect.DeepEqual(vectors[0].Slice(), []float32{0.1, 0.2}) {
		t.Errorf("Vector 0 not placed by index: %v", vectors[0].Slice())
	}
	if !reflect.DeepEqual(vectors[1].Slice(), []float32{0.3, 0.4}) {
		t.Errorf("Vector 1 not placed by index: %v", vectors[1].Slice())
	}
}

func TestHTTPEmbedderErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		apiKey  string
		wantErr string
	}{
		{
			name:    "missing api key",
			apiKey:  "",
			wantErr: "API key",
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    `{"error": "boom"}`,
			apiKey:  "key",
			wantErr: "status 500",
		},
		{
			name:    "count mismatch",
			status:  http.StatusOK,
			body:    `{"data": [], "usage": {"total_tokens": 0}}`,
			apiKey:  "key",
			wantErr: "0 vectors for 1 inputs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer ts.Close()

			embedder := NewHTTPEmbedder(ts.URL, tt.apiKey, "test-model", testLogger())
			_, err := embedder.EmbedBatch(context.Background(), []string{"text"})
			if err == nil {
				t.Fatal("Expected an error but got none")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestHTTPEmbedderEmptyInput(t *testing.T) {
	embedder := NewHTTPEmbedder("http://unused", "key", "test-model", testLogger())
	vectors, err := embedder.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Did not expect an error but got: %v", err)
	}
	if vectors != nil {
		t.Errorf("Expected nil result for empty input, got %v", vectors)
	}
}

func TestSparseEncoderEncode(t *testing.T) {
	encoder := NewSparseEncoder(1000)

	first := encoder.Encode("hybrid retrieval needs lexical signals")
	second := encoder.Encode("hybrid retrieval needs lexical signals")
	if first.String() != second.String() {
		t.Error("Encoding the same text twice should be deterministic")
	}

	var norm float64
	for _, v := range first.Values() {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("Expected an L2-normalized vector, got squared norm %f", norm)
	}
}

func TestSparseEncoderSkipsStopWords(t *testing.T) {
	encoder := NewSparseEncoder(1000)

	onlyStopWords := encoder.Encode("the a an is are to of and in")
	if len(onlyStopWords.Values()) != 0 {
		t.Errorf("Expected no elements for stop-word-only text, got %d", len(onlyStopWords.Values()))
	}

	empty := encoder.Encode("")
	if len(empty.Values()) != 0 {
		t.Errorf("Expected no elements for empty text, got %d", len(empty.Values()))
	}
}

type fakeDenseEmbedder struct {
	calls [][]string
	err   error
}

func (f *fakeDenseEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([]pgvector.Vector, len(texts))
	for i := range texts {
		vectors[i] = pgvector.NewVector([]float32{float32(i), 1})
	}
	return vectors, nil
}

func TestChunkEmbedderEmbedChunks(t *testing.T) {
	dense := &fakeDenseEmbedder{}
	embedder := NewChunkEmbedder(dense, NewSparseEncoder(1000))

	chunks := []Chunk{
		{Text: "first chunk about retrieval"},
		{Text: "second chunk about indexing"},
	}

	denseVecs, sparseVecs, err := embedder.EmbedChunks(context.Background(), chunks)
	if err != nil {
		t.Fatalf("Did not expect an error but got: %v", err)
	}
	if len(denseVecs) != 2 || len(sparseVecs) != 2 {
		t.Fatalf("Expected 2 dense and 2 sparse vectors, got %d and %d", len(denseVecs), len(sparseVecs))
	}
	if len(dense.calls) != 1 {
		t.Errorf("Expected one dense batch call, got %d", len(dense.calls))
	}

	denseVecs, sparseVecs, err = embedder.EmbedChunks(context.Background(), nil)
	if err != nil || denseVecs != nil || sparseVecs != nil {
		t.Error("Expected a no-op for zero chunks")
	}
}
