package rag_service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
)

// DenseEmbedder turns a batch of texts into dense vectors. The model behind
// it is a remote capability; only the wire call lives here.
type DenseEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error)
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Object string `json:"object"`
}

// HTTPEmbedder calls an OpenAI-compatible embeddings endpoint.
type HTTPEmbedder struct {
	apiURL     string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPEmbedder(apiURL, apiKey, model string, logger *slog.Logger) *HTTPEmbedder {
	return &HTTPEmbedder{
		apiURL:     apiURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger,
	}
}

func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if e.apiKey == "" {
		return nil, fmt.Errorf("embedding API key not set")
	}

	requestBody := embeddingRequest{
		Input: texts,
		Model: e.model,
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(body))
	}

	var embeddingResp embeddingResponse
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(&embeddingResp); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %v", err)
	}

	if len(embeddingResp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d inputs",
			len(embeddingResp.Data), len(texts))
	}

	e.logger.Debug("Embedded batch",
		slog.Int("texts", len(texts)),
		slog.Int("total_tokens", embeddingResp.Usage.TotalTokens))

	vectors := make([]pgvector.Vector, len(texts))
	for _, item := range embeddingResp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding service returned out-of-range index %d", item.Index)
		}
		vectors[item.Index] = pgvector.NewVector(item.Embedding)
	}
	return vectors, nil
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true,
}

// SparseEncoder produces the lexical counterpart of a dense embedding: a
// hashed, log-scaled, L2-normalized term-frequency vector.
type SparseEncoder struct {
	Dimensions int
}

func NewSparseEncoder(dimensions int) *SparseEncoder {
	return &SparseEncoder{Dimensions: dimensions}
}

func (e *SparseEncoder) Encode(text string) pgvector.SparseVector {
	dims := e.Dimensions
	if dims <= 0 {
		dims = 30522
	}

	counts := make(map[int32]float32)
	for _, word := range strings.Fields(text) {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))
		if cleaned == "" || stopWords[cleaned] {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(cleaned))
		counts[int32(h.Sum32()%uint32(dims))]++
	}

	var norm float64
	elements := make(map[int32]float32, len(counts))
	for idx, tf := range counts {
		w := 1 + float32(math.Log(float64(tf)))
		elements[idx] = w
		norm += float64(w) * float64(w)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for idx := range elements {
			elements[idx] *= scale
		}
	}

	return pgvector.NewSparseVectorFromMap(elements, int32(dims))
}

// ChunkEmbedder pairs the dense and sparse representations required for
// retrieval. It is one of the process-wide shared resources.
type ChunkEmbedder struct {
	dense  DenseEmbedder
	sparse *SparseEncoder
}

func NewChunkEmbedder(dense DenseEmbedder, sparse *SparseEncoder) *ChunkEmbedder {
	return &ChunkEmbedder{
		dense:  dense,
		sparse: sparse,
	}
}

// EmbedChunks computes both representations for every chunk.
func (e *ChunkEmbedder) EmbedChunks(ctx context.Context, chunks []Chunk) ([]pgvector.Vector, []pgvector.SparseVector, error) {
	if len(chunks) == 0 {
		return nil, nil, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	dense, err := e.dense.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate dense embeddings: %w", err)
	}

	sparse := make([]pgvector.SparseVector, len(chunks))
	for i, text := range texts {
		sparse[i] = e.sparse.Encode(text)
	}

	return dense, sparse, nil
}

// EmbedQuery embeds a single search query densely.
func (e *ChunkEmbedder) EmbedQuery(ctx context.Context, query string) (pgvector.Vector, error) {
	vectors, err := e.dense.EmbedBatch(ctx, []string{query})
	if err != nil {
		return pgvector.Vector{}, err
	}
	if len(vectors) == 0 {
		return pgvector.Vector{}, fmt.Errorf("no embedding returned for query")
	}
	return vectors[0], nil
}
