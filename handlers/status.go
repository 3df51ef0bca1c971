package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/serisow/ingestor/store"
)

type JobGetter interface {
	Get(ctx context.Context, jobID string) (*store.JobRecord, error)
}

// JobStatusHandler serves the durable job history record for one run.
type JobStatusHandler struct {
	jobs   JobGetter
	logger *slog.Logger
}

func NewJobStatusHandler(jobs JobGetter, logger *slog.Logger) *JobStatusHandler {
	return &JobStatusHandler{
		jobs:   jobs,
		logger: logger,
	}
}

type jobStatusResponse struct {
	JobID        string     `json:"job_id"`
	DocumentID   string     `json:"document_id"`
	UserID       int        `json:"user_id"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	ErrorMessage *string    `json:"error_message"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

func (h *JobStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	rec, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			writeJSONError(w, "Job not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to fetch job status",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
		writeJSONError(w, "Failed to fetch job status", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, jobStatusResponse{
		JobID:        rec.ID,
		DocumentID:   rec.DocumentID,
		UserID:       rec.UserID,
		Status:       rec.Status,
		Progress:     rec.Progress,
		ErrorMessage: rec.ErrorMessage,
		CreatedAt:    rec.CreatedAt,
		StartedAt:    rec.StartedAt,
		CompletedAt:  rec.CompletedAt,
	})
}
