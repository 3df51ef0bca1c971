package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pgvector/pgvector-go"
	"github.com/serisow/ingestor/services/rag_service"
)

type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) (pgvector.Vector, error)
}

type ChunkSearcher interface {
	Search(ctx context.Context, embedding pgvector.Vector, limit int) ([]rag_service.SearchResult, error)
}

// DocumentSearchHandler embeds a query and runs a cosine scan over the
// indexed chunks.
type DocumentSearchHandler struct {
	embedder QueryEmbedder
	chunks   ChunkSearcher
	logger   *slog.Logger
}

func NewDocumentSearchHandler(embedder QueryEmbedder, chunks ChunkSearcher, logger *slog.Logger) *DocumentSearchHandler {
	return &DocumentSearchHandler{
		embedder: embedder,
		chunks:   chunks,
		logger:   logger,
	}
}

func (h *DocumentSearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var requestBody struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if requestBody.Query == "" {
		writeJSONError(w, "Query is required", http.StatusBadRequest)
		return
	}

	embedding, err := h.embedder.EmbedQuery(r.Context(), requestBody.Query)
	if err != nil {
		h.logger.Error("Failed to embed search query",
			slog.String("error", err.Error()))
		writeJSONError(w, "Failed to embed query", http.StatusInternalServerError)
		return
	}

	results, err := h.chunks.Search(r.Context(), embedding, requestBody.Limit)
	if err != nil {
		h.logger.Error("Chunk search failed",
			slog.String("error", err.Error()))
		writeJSONError(w, "Search failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}
