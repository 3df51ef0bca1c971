package rag_service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// VectorStore persists chunk vectors in the document_chunks table.
type VectorStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewVectorStore(db *pgxpool.Pool, logger *slog.Logger) *VectorStore {
	return &VectorStore{
		db:     db,
		logger: logger,
	}
}

// AddChunks writes chunks and their vector representations in batches and
// returns the number of chunks indexed. Re-runs for the same document
// overwrite by (doc_id, chunk_index).
func (s *VectorStore) AddChunks(ctx context.Context, docID string, chunks []Chunk, dense []pgvector.Vector, sparse []pgvector.SparseVector, batchSize int) (int, error) {
	if len(chunks) != len(dense) || len(chunks) != len(sparse) {
		return 0, fmt.Errorf("chunk/embedding count mismatch: %d chunks, %d dense, %d sparse",
			len(chunks), len(dense), len(sparse))
	}
	if len(chunks) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 50
	}

	query := `INSERT INTO document_chunks (doc_id, chunk_index, content, metadata, embedding, sparse_embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (doc_id, chunk_index) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			sparse_embedding = EXCLUDED.sparse_embedding`

	added := 0
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		batch := &pgx.Batch{}
		for i := start; i < end; i++ {
			metadataJSON, err := json.Marshal(chunks[i].Metadata)
			if err != nil {
				return added, fmt.Errorf("failed to marshal chunk %d metadata: %w", i, err)
			}
			batch.Queue(query, docID, i, chunks[i].Text, metadataJSON, dense[i], sparse[i])
		}

		results := s.db.SendBatch(ctx, batch)
		var batchErr error
		for i := start; i < end; i++ {
			if _, err := results.Exec(); err != nil && batchErr == nil {
				batchErr = fmt.Errorf("failed to insert chunk %d for document %s: %w", i, docID, err)
			}
		}
		if err := results.Close(); err != nil && batchErr == nil {
			batchErr = fmt.Errorf("failed to close chunk batch for document %s: %w", docID, err)
		}
		if batchErr != nil {
			return added, batchErr
		}

		added += end - start
		s.logger.Debug("Inserted chunk batch",
			slog.String("doc_id", docID),
			slog.Int("batch_start", start),
			slog.Int("batch_end", end))
	}

	return added, nil
}

// DeleteDocument removes every chunk indexed for the document.
func (s *VectorStore) DeleteDocument(ctx context.Context, docID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM document_chunks WHERE doc_id = $1`, docID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks for document %s: %w", docID, err)
	}
	return nil
}

type SearchResult struct {
	DocID      string                 `json:"doc_id"`
	ChunkIndex int                    `json:"chunk_index"`
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata"`
	Distance   float64                `json:"distance"`
}

// Search runs a cosine-distance scan over the chunk embeddings.
func (s *VectorStore) Search(ctx context.Context, embedding pgvector.Vector, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(ctx, `
		SELECT doc_id, chunk_index, content, metadata, embedding <=> $1 AS distance
		FROM document_chunks
		ORDER BY embedding <=> $1
		LIMIT $2`, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var metadataJSON []byte
		if err := rows.Scan(&r.DocID, &r.ChunkIndex, &r.Content, &metadataJSON, &r.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &r.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal chunk metadata: %w", err)
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
