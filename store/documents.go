package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DocumentStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewDocumentStore(db *pgxpool.Pool, logger *slog.Logger) *DocumentStore {
	return &DocumentStore{
		db:     db,
		logger: logger,
	}
}

const documentColumns = `id, user_id, file_path, filename, processing_status,
	upload_progress, processing_error, metadata, chunk_count, created_at`

// ClaimNextQueued atomically selects the oldest eligible document and
// transitions it to processing in a single statement, so the claim is
// committed before any heavy work begins. A crash after the claim leaves the
// row observably stuck in processing; re-queueing it is an external action.
func (s *DocumentStore) ClaimNextQueued(ctx context.Context) (*Document, error) {
	query := fmt.Sprintf(`
		UPDATE documents SET processing_status = $1
		WHERE id = (
			SELECT id FROM documents
			WHERE processing_status IN ($2, $3)
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s`, documentColumns)

	row := s.db.QueryRow(ctx, query, StatusProcessing, StatusPending, StatusQueued)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoEligibleDocument
		}
		return nil, fmt.Errorf("failed to claim next document: %w", err)
	}
	return doc, nil
}

func (s *DocumentStore) Get(ctx context.Context, docID string, userID int) (*Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE id = $1 AND user_id = $2`, documentColumns)
	row := s.db.QueryRow(ctx, query, docID, userID)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", docID, err)
	}
	return doc, nil
}

// Insert creates a new document row. The storage layer's trigger emits the
// queue notification once the row is visible; this store never notifies.
func (s *DocumentStore) Insert(ctx context.Context, doc *Document) error {
	metadata := doc.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal document metadata: %w", err)
	}

	query := `INSERT INTO documents
		(id, user_id, file_path, filename, processing_status, upload_progress, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = s.db.Exec(ctx, query, doc.ID, doc.UserID, doc.FilePath, doc.Filename,
		doc.ProcessingStatus, doc.UploadProgress, metadataJSON)
	if err != nil {
		return fmt.Errorf("failed to insert document %s: %w", doc.ID, err)
	}
	return nil
}

// UpdateStatus writes the document's current-state progress view. An empty
// errMsg clears nothing; the error column is only set when errMsg is
// non-empty so transient progress writes do not erase a recorded failure.
func (s *DocumentStore) UpdateStatus(ctx context.Context, docID string, userID int, status string, progress int, errMsg string) error {
	var err error
	if errMsg != "" {
		query := `UPDATE documents
			SET processing_status = $1, upload_progress = $2, processing_error = $3
			WHERE id = $4 AND user_id = $5`
		_, err = s.db.Exec(ctx, query, status, progress, errMsg, docID, userID)
	} else {
		query := `UPDATE documents
			SET processing_status = $1, upload_progress = $2
			WHERE id = $3 AND user_id = $4`
		_, err = s.db.Exec(ctx, query, status, progress, docID, userID)
	}
	if err != nil {
		return fmt.Errorf("failed to update document %s status: %w", docID, err)
	}
	return nil
}

// SetChunkCount records how many chunks were actually indexed for the
// document in this run.
func (s *DocumentStore) SetChunkCount(ctx context.Context, docID string, count int) error {
	_, err := s.db.Exec(ctx, `UPDATE documents SET chunk_count = $1 WHERE id = $2`, count, docID)
	if err != nil {
		return fmt.Errorf("failed to set chunk count for document %s: %w", docID, err)
	}
	return nil
}

// MergeMetadata merges the patch into the document's metadata map
// non-destructively: keys absent from the patch keep their stored values
// (e.g. a content hash written at upload time survives reprocessing).
func (s *DocumentStore) MergeMetadata(ctx context.Context, docID string, patch map[string]interface{}) error {
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata patch: %w", err)
	}

	query := `UPDATE documents
		SET metadata = COALESCE(metadata, '{}'::jsonb) || $1::jsonb
		WHERE id = $2`
	_, err = s.db.Exec(ctx, query, patchJSON, docID)
	if err != nil {
		return fmt.Errorf("failed to merge metadata for document %s: %w", docID, err)
	}
	return nil
}

func scanDocument(row pgx.Row) (*Document, error) {
	var doc Document
	var metadataJSON []byte
	err := row.Scan(&doc.ID, &doc.UserID, &doc.FilePath, &doc.Filename,
		&doc.ProcessingStatus, &doc.UploadProgress, &doc.ProcessingError,
		&metadataJSON, &doc.ChunkCount, &doc.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document metadata: %w", err)
		}
	}
	return &doc, nil
}
