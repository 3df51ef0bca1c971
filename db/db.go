package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

func Connect() (*pgxpool.Pool, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	var pool *pgxpool.Pool
	var err error
	maxRetries := 10
	retryDelay := time.Second * 10

	for i := 0; i < maxRetries; i++ {
		var config *pgxpool.Config
		config, err = pgxpool.ParseConfig(dbURL)
		if err != nil {
			return nil, fmt.Errorf("unable to parse DATABASE_URL: %v", err)
		}

		// Register vector/sparsevec codecs on every pooled connection
		config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvector.RegisterTypes(ctx, conn)
		}

		pool, err = pgxpool.NewWithConfig(context.Background(), config)
		if err == nil {
			err = pool.Ping(context.Background())
			if err == nil {
				log.Println("Successfully connected to the database")
				break
			}
		}

		log.Printf("Failed to connect to the database (attempt %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Printf("Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to the database after %d attempts: %v", maxRetries, err)
	}

	// Enable pgvector extension
	_, err = pool.Exec(context.Background(), "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return nil, fmt.Errorf("unable to create vector extension: %v", err)
	}

	return pool, nil
}

// EnsureSchema creates the tables the ingestion worker reads and writes.
// The documents table is shared with the wider system; the notification
// trigger that wakes the worker lives in the storage layer, not here.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, denseDim, sparseDim int) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			file_path TEXT NOT NULL,
			filename TEXT NOT NULL,
			processing_status TEXT NOT NULL DEFAULT 'pending',
			upload_progress INTEGER NOT NULL DEFAULT 0,
			processing_error TEXT,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			chunk_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS processing_jobs (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			user_id INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			progress INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
			id BIGSERIAL PRIMARY KEY,
			doc_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding vector(%d),
			sparse_embedding sparsevec(%d),
			UNIQUE (doc_id, chunk_index)
		)`, denseDim, sparseDim),
		`CREATE TABLE IF NOT EXISTS user_settings (
			user_id INTEGER PRIMARY KEY,
			settings JSONB NOT NULL DEFAULT '{}'::jsonb
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_status_created
			ON documents (processing_status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_doc_id
			ON document_chunks (doc_id)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
