package rag_service

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/jackc/pgx/v5/pgxpool"
)

// IndexManager handles vector index operations on the chunk table.
type IndexManager struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewIndexManager(db *pgxpool.Pool, logger *slog.Logger) *IndexManager {
	return &IndexManager{
		db:     db,
		logger: logger,
	}
}

// CreateOrUpdateIndex rebuilds the ivfflat index sized to the chunk count.
func (im *IndexManager) CreateOrUpdateIndex(ctx context.Context) error {
	// Optimal list count for ivfflat is roughly sqrt(row count)
	var count int
	err := im.db.QueryRow(ctx, "SELECT COUNT(*) FROM document_chunks").Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count chunks: %w", err)
	}

	lists := int(math.Sqrt(float64(count)))
	if lists < 100 {
		lists = 100
	}

	_, err = im.db.Exec(ctx, "DROP INDEX IF EXISTS idx_document_chunks_embedding")
	if err != nil {
		return fmt.Errorf("failed to drop existing index: %w", err)
	}

	createIndexSQL := fmt.Sprintf(`
        CREATE INDEX idx_document_chunks_embedding
        ON document_chunks
        USING ivfflat (embedding vector_cosine_ops)
        WITH (lists = %d)
    `, lists)

	_, err = im.db.Exec(ctx, createIndexSQL)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	im.logger.Info("Vector index created/updated successfully",
		slog.Int("chunk_count", count),
		slog.Int("list_count", lists))

	return nil
}

// ReindexIfNeeded rebuilds the index when its list count has drifted far
// from the optimum for the current chunk count.
func (im *IndexManager) ReindexIfNeeded(ctx context.Context) error {
	var currentLists int
	err := im.db.QueryRow(ctx, `
        SELECT reloptions[1]::text::int
        FROM pg_class c
        LEFT JOIN pg_index i ON c.oid = i.indexrelid
        WHERE c.relname = 'idx_document_chunks_embedding'
        AND reloptions IS NOT NULL
    `).Scan(&currentLists)

	if err != nil {
		// Index doesn't exist or other error
		return im.CreateOrUpdateIndex(ctx)
	}

	var count int
	err = im.db.QueryRow(ctx, "SELECT COUNT(*) FROM document_chunks").Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count chunks: %w", err)
	}

	optimalLists := int(math.Sqrt(float64(count)))
	if optimalLists < 100 {
		optimalLists = 100
	}

	if math.Abs(float64(currentLists-optimalLists)) > float64(optimalLists)*0.5 {
		im.logger.Info("Rebuilding vector index due to significant size change",
			slog.Int("current_lists", currentLists),
			slog.Int("optimal_lists", optimalLists))
		return im.CreateOrUpdateIndex(ctx)
	}

	return nil
}
