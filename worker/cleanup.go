package worker

import (
	"context"
	"log/slog"
)

// FailureCleaner removes what a failed run left behind.
type FailureCleaner interface {
	CleanupFailed(ctx context.Context, docID string)
}

type artifactRemover interface {
	RemoveArtifacts(docID string) error
}

type chunkDeleter interface {
	DeleteDocument(ctx context.Context, docID string) error
}

// Cleaner removes the side artifacts (normalized text, metadata file, staged
// upload copy) and any partial index writes for a failed document. Cleanup
// failures are logged and never change the job's Failed outcome.
type Cleaner struct {
	artifacts artifactRemover
	chunks    chunkDeleter
	logger    *slog.Logger
}

func NewCleaner(artifacts artifactRemover, chunks chunkDeleter, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		artifacts: artifacts,
		chunks:    chunks,
		logger:    logger,
	}
}

func (c *Cleaner) CleanupFailed(ctx context.Context, docID string) {
	c.logger.Info("Cleaning up failed processing artifacts",
		slog.String("doc_id", docID))

	if err := c.artifacts.RemoveArtifacts(docID); err != nil {
		c.logger.Warn("Cleanup of artifacts encountered issues",
			slog.String("doc_id", docID),
			slog.String("error", err.Error()))
	}

	if err := c.chunks.DeleteDocument(ctx, docID); err != nil {
		c.logger.Warn("Cleanup of indexed chunks encountered issues",
			slog.String("doc_id", docID),
			slog.String("error", err.Error()))
	}
}
