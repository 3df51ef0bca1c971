package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/serisow/ingestor/services/rag_service"
	"github.com/serisow/ingestor/store"
)

// ProcessorFactory builds the per-job processor from the owning user's
// settings, reusing the process-wide shared resources.
type ProcessorFactory interface {
	ProcessorForUser(settings map[string]interface{}) rag_service.PipelineProcessor
}

// SettingsSource resolves a user's configuration. Implementations degrade to
// an empty map rather than failing.
type SettingsSource interface {
	UserSettings(ctx context.Context, userID int) (map[string]interface{}, error)
}

// DocumentFinalizer persists a successful run's results on the document row.
type DocumentFinalizer interface {
	MergeMetadata(ctx context.Context, docID string, patch map[string]interface{}) error
	SetChunkCount(ctx context.Context, docID string, count int) error
}

// Runner executes the ordered processing stages for one job. Stages run
// strictly in sequence with no branching back and no per-stage retry: the
// job as a whole succeeds or fails. Progress checkpoints follow
// 0, 10, 30, 50, 70, 90, 100 on the success path.
type Runner struct {
	processors ProcessorFactory
	settings   SettingsSource
	documents  DocumentFinalizer
	progress   ProgressSink
	logger     *slog.Logger
}

func NewRunner(processors ProcessorFactory, settings SettingsSource, documents DocumentFinalizer,
	progress ProgressSink, logger *slog.Logger) *Runner {
	return &Runner{
		processors: processors,
		settings:   settings,
		documents:  documents,
		progress:   progress,
		logger:     logger,
	}
}

// Run drives a single job to Completed or returns the error that failed it.
// The caller records the failure and triggers cleanup.
func (r *Runner) Run(ctx context.Context, job *store.ProcessingJob) error {
	r.progress.Job(ctx, job.ID, job.DocID, job.UserID, 0, store.JobStatusRunning, "")
	r.progress.Document(ctx, job.DocID, job.UserID, 0, store.StatusProcessing, "")

	// Stage 1: resolve the owning user's configuration.
	settings, err := r.settings.UserSettings(ctx, job.UserID)
	if err != nil {
		// Unreadable settings degrade to an empty configuration.
		r.logger.Warn("Could not retrieve user settings",
			slog.String("doc_id", job.DocID),
			slog.String("error", err.Error()))
		settings = map[string]interface{}{}
	}
	proc := r.processors.ProcessorForUser(settings)
	r.checkpoint(ctx, job, 10)

	// Stage 2: materialize the upload into its category directory. An
	// unsupported extension fails here, before any conversion or embedding.
	stagedPath, kind, err := proc.Materialize(job.DocID, job.OriginalFilename, job.FilePath)
	if err != nil {
		return err
	}
	r.logger.Info("Starting document processing",
		slog.String("doc_id", job.DocID),
		slog.String("kind", kind.String()))
	r.checkpoint(ctx, job, 30)

	// Stage 3: extract metadata from the lead text, then convert the full
	// document to normalized text and persist both artifacts.
	leadText, err := proc.LeadText(kind, stagedPath)
	if err != nil {
		return fmt.Errorf("failed to extract lead text: %w", err)
	}
	extracted := proc.ExtractMetadata(ctx, leadText)

	finalMetadata := map[string]interface{}{
		"doc_id":            job.DocID,
		"original_filename": job.OriginalFilename,
	}
	for key, value := range extracted {
		finalMetadata[key] = value
	}

	markdown, err := proc.Convert(kind, stagedPath)
	if err != nil {
		return fmt.Errorf("failed to convert document: %w", err)
	}
	if strings.TrimSpace(markdown) == "" {
		return fmt.Errorf("%w: %s", rag_service.ErrEmptyContent, job.OriginalFilename)
	}

	if err := proc.WriteArtifacts(job.DocID, markdown, finalMetadata); err != nil {
		return err
	}
	r.checkpoint(ctx, job, 50)

	// Stage 4: chunk the normalized text.
	chunks := proc.Chunk(markdown, finalMetadata)
	r.logger.Info("Chunked document",
		slog.String("doc_id", job.DocID),
		slog.Int("chunks", len(chunks)))
	r.checkpoint(ctx, job, 70)

	// Stage 5: embed and index. Zero chunks is a no-op.
	added, err := proc.EmbedAndIndex(ctx, job.DocID, chunks)
	if err != nil {
		return err
	}
	r.checkpoint(ctx, job, 90)

	// Stage 6: finalize. Fields not produced by this run keep their stored
	// values in the merge.
	patch := finalizedMetadata(job, extracted, len(chunks), added)
	if err := r.documents.MergeMetadata(ctx, job.DocID, patch); err != nil {
		return err
	}
	if err := r.documents.SetChunkCount(ctx, job.DocID, added); err != nil {
		return err
	}

	r.progress.Job(ctx, job.ID, job.DocID, job.UserID, 100, store.JobStatusCompleted, "")
	r.progress.Document(ctx, job.DocID, job.UserID, 100, store.StatusCompleted, "")

	r.logger.Info("Document processing completed",
		slog.String("doc_id", job.DocID),
		slog.Int("chunks_generated", len(chunks)),
		slog.Int("chunks_indexed", added))
	return nil
}

func (r *Runner) checkpoint(ctx context.Context, job *store.ProcessingJob, progress int) {
	r.progress.Job(ctx, job.ID, job.DocID, job.UserID, progress, store.JobStatusRunning, "")
	r.progress.Document(ctx, job.DocID, job.UserID, progress, store.StatusProcessing, "")
}

// finalizedMetadata shapes the extracted fields for the document's metadata
// map. Extraction aliases ("year", "journal") map onto the canonical keys.
func finalizedMetadata(job *store.ProcessingJob, extracted map[string]interface{}, generated, added int) map[string]interface{} {
	patch := map[string]interface{}{
		"processed_at":                 time.Now().UTC().Format(time.RFC3339),
		"processing_job_id":            job.ID,
		"status":                       store.StatusCompleted,
		"chunks_generated":             generated,
		"chunks_added_to_vector_store": added,
	}

	copyKey := func(target string, sources ...string) {
		for _, source := range sources {
			if value, ok := extracted[source]; ok && value != nil {
				patch[target] = value
				return
			}
		}
	}

	copyKey("title", "title")
	copyKey("authors", "authors")
	copyKey("publication_year", "publication_year", "year")
	copyKey("journal_or_source", "journal_or_source", "journal")
	copyKey("abstract", "abstract")
	copyKey("doi", "doi")
	copyKey("keywords", "keywords")

	return patch
}
