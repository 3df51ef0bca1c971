package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewJobStore(db *pgxpool.Pool, logger *slog.Logger) *JobStore {
	return &JobStore{
		db:     db,
		logger: logger,
	}
}

// Create inserts the durable record mirroring an ephemeral ProcessingJob.
func (s *JobStore) Create(ctx context.Context, job *ProcessingJob) error {
	query := `INSERT INTO processing_jobs (id, document_id, user_id, status, progress, created_at)
		VALUES ($1, $2, $3, $4, 0, $5)`
	_, err := s.db.Exec(ctx, query, job.ID, job.DocID, job.UserID, JobStatusPending, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job record %s: %w", job.ID, err)
	}
	return nil
}

// UpdateProgress writes the job-scoped audit view of a checkpoint.
// started_at is stamped on the first transition to running, completed_at on
// either terminal status.
func (s *JobStore) UpdateProgress(ctx context.Context, jobID string, userID int, progress int, status string, errMsg string) error {
	query := `UPDATE processing_jobs SET
			progress = $1,
			status = $2,
			error_message = NULLIF($3, ''),
			started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN now() ELSE started_at END,
			completed_at = CASE WHEN $2 IN ('completed', 'failed') THEN now() ELSE completed_at END
		WHERE id = $4 AND user_id = $5`
	_, err := s.db.Exec(ctx, query, progress, status, errMsg, jobID, userID)
	if err != nil {
		return fmt.Errorf("failed to update job %s progress: %w", jobID, err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, jobID string) (*JobRecord, error) {
	query := `SELECT id, document_id, user_id, status, progress, error_message,
			created_at, started_at, completed_at
		FROM processing_jobs WHERE id = $1`

	var rec JobRecord
	err := s.db.QueryRow(ctx, query, jobID).Scan(&rec.ID, &rec.DocumentID, &rec.UserID,
		&rec.Status, &rec.Progress, &rec.ErrorMessage,
		&rec.CreatedAt, &rec.StartedAt, &rec.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	return &rec, nil
}
