package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/serisow/ingestor/store"
)

const (
	defaultWaitTimeout = 60 * time.Second
	defaultBackoff     = 30 * time.Second
)

// JobSource dequeues work. ClaimNextQueued must atomically mark the
// returned document as processing.
type JobSource interface {
	ClaimNextQueued(ctx context.Context) (*store.Document, error)
}

// JobRecorder persists the durable record mirroring a run.
type JobRecorder interface {
	Create(ctx context.Context, job *store.ProcessingJob) error
}

// JobRunner drives one job to completion or failure.
type JobRunner interface {
	Run(ctx context.Context, job *store.ProcessingJob) error
}

// Worker is the single dedicated processing loop: subscribe, drain the queue
// to empty, wait for a wake, repeat. Exactly one document is processed at a
// time; conversion and embedding share one scarce accelerator, so
// serialization is the point, not a limitation to engineer around.
type Worker struct {
	documents   JobSource
	jobs        JobRecorder
	runner      JobRunner
	progress    ProgressSink
	cleaner     FailureCleaner
	wake        WakeSource
	waitTimeout time.Duration
	backoff     time.Duration
	logger      *slog.Logger

	shutdown   chan struct{}
	once       sync.Once
	waitCtx    context.Context
	cancelWait context.CancelFunc
}

type Options struct {
	// WaitTimeout bounds each wait on the wake source. Default 60s.
	WaitTimeout time.Duration
	// Backoff is the fixed sleep before re-subscribing after a wake-source
	// failure. Default 30s.
	Backoff time.Duration
}

func New(documents JobSource, jobs JobRecorder, runner JobRunner, progress ProgressSink,
	cleaner FailureCleaner, wake WakeSource, logger *slog.Logger, opts *Options) *Worker {
	waitTimeout := defaultWaitTimeout
	backoff := defaultBackoff
	if opts != nil {
		if opts.WaitTimeout > 0 {
			waitTimeout = opts.WaitTimeout
		}
		if opts.Backoff > 0 {
			backoff = opts.Backoff
		}
	}

	waitCtx, cancelWait := context.WithCancel(context.Background())
	return &Worker{
		documents:   documents,
		jobs:        jobs,
		runner:      runner,
		progress:    progress,
		cleaner:     cleaner,
		wake:        wake,
		waitTimeout: waitTimeout,
		backoff:     backoff,
		logger:      logger,
		shutdown:    make(chan struct{}),
		waitCtx:     waitCtx,
		cancelWait:  cancelWait,
	}
}

// Start runs the worker loop until Shutdown. It blocks; run it in its own
// goroutine.
func (w *Worker) Start() {
	w.logger.Info("Document processing worker started")

	for !w.isShutdown() {
		// Drain everything currently eligible before waiting again, so
		// notifications arriving mid-drain coalesce instead of being lost.
		for !w.isShutdown() && w.processNext() {
		}
		if w.isShutdown() {
			break
		}

		if err := w.wake.Wait(w.waitCtx, w.waitTimeout); err != nil {
			if w.isShutdown() {
				break
			}
			w.logger.Error("Error in worker listener loop",
				slog.String("error", err.Error()))
			w.logger.Info("Falling back to backoff before re-subscribing",
				slog.Duration("backoff", w.backoff))
			w.sleep(w.backoff)
		}
	}

	if err := w.wake.Close(context.Background()); err != nil {
		w.logger.Warn("Error closing wake source",
			slog.String("error", err.Error()))
	}
	w.logger.Info("Document processing worker stopped")
}

// Shutdown requests the loop to exit. The flag is observed between jobs and
// wait windows; a job in progress always runs to completion first.
func (w *Worker) Shutdown() {
	w.once.Do(func() {
		w.logger.Info("Shutdown requested for document worker")
		close(w.shutdown)
		w.cancelWait()
	})
}

// processNext claims and processes one eligible document. It returns false
// when the queue is empty, ending the current drain cycle.
func (w *Worker) processNext() bool {
	ctx := context.Background()

	doc, err := w.documents.ClaimNextQueued(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNoEligibleDocument) {
			w.logger.Error("Error claiming next document",
				slog.String("error", err.Error()))
		}
		return false
	}

	job := &store.ProcessingJob{
		ID:               uuid.NewString(),
		DocID:            doc.ID,
		UserID:           doc.UserID,
		FilePath:         doc.FilePath,
		OriginalFilename: doc.Filename,
		CreatedAt:        time.Now().UTC(),
	}

	if err := w.jobs.Create(ctx, job); err != nil {
		w.logger.Error("Error creating job record",
			slog.String("doc_id", doc.ID),
			slog.String("error", err.Error()))
	}

	w.logger.Info("Found queued document, starting processing",
		slog.String("doc_id", doc.ID),
		slog.String("job_id", job.ID))

	if err := w.runner.Run(ctx, job); err != nil {
		errMsg := fmt.Sprintf("Processing failed: %v", err)
		w.logger.Error("Document processing error",
			slog.String("doc_id", doc.ID),
			slog.String("error", err.Error()))

		w.progress.Job(ctx, job.ID, job.DocID, job.UserID, 0, store.JobStatusFailed, errMsg)
		w.progress.Document(ctx, job.DocID, job.UserID, 0, store.StatusFailed, errMsg)
		w.cleaner.CleanupFailed(ctx, job.DocID)
	}

	return true
}

func (w *Worker) isShutdown() bool {
	select {
	case <-w.shutdown:
		return true
	default:
		return false
	}
}

func (w *Worker) sleep(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-w.shutdown:
	}
}
