package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

const progressPushTimeout = 5 * time.Second

// ProgressSink receives every checkpoint of a pipeline run. Failures inside
// a sink must never abort the pipeline.
type ProgressSink interface {
	Document(ctx context.Context, docID string, userID int, progress int, status string, errMsg string)
	Job(ctx context.Context, jobID, docID string, userID int, progress int, status string, errMsg string)
}

type documentProgressWriter interface {
	UpdateStatus(ctx context.Context, docID string, userID int, status string, progress int, errMsg string) error
}

type jobProgressWriter interface {
	UpdateProgress(ctx context.Context, jobID string, userID int, progress int, status string, errMsg string) error
}

// Reporter writes two independent progress views at every checkpoint, the
// job-scoped audit record and the document's current state, then best-effort
// pushes an event to the live-update endpoint.
type Reporter struct {
	documents  documentProgressWriter
	jobs       jobProgressWriter
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewReporter(documents documentProgressWriter, jobs jobProgressWriter, endpoint string, logger *slog.Logger) *Reporter {
	return &Reporter{
		documents:  documents,
		jobs:       jobs,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: progressPushTimeout},
		logger:     logger,
	}
}

func (r *Reporter) Document(ctx context.Context, docID string, userID int, progress int, status string, errMsg string) {
	if err := r.documents.UpdateStatus(ctx, docID, userID, status, progress, errMsg); err != nil {
		r.logger.Error("Error updating document progress",
			slog.String("doc_id", docID),
			slog.String("error", err.Error()))
	}

	r.push(map[string]interface{}{
		"type":      "document_progress",
		"doc_id":    docID,
		"progress":  progress,
		"status":    status,
		"error":     nullable(errMsg),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"user_id":   userID,
	})
}

func (r *Reporter) Job(ctx context.Context, jobID, docID string, userID int, progress int, status string, errMsg string) {
	if err := r.jobs.UpdateProgress(ctx, jobID, userID, progress, status, errMsg); err != nil {
		r.logger.Error("Error updating job progress",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
	}

	r.push(map[string]interface{}{
		"type":        "job_progress",
		"job_id":      jobID,
		"document_id": docID,
		"progress":    progress,
		"status":      status,
		"error":       nullable(errMsg),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"user_id":     userID,
	})
}

// push delivers the update to the internal endpoint. Delivery is best
// effort: any failure is logged and otherwise ignored.
func (r *Reporter) push(payload map[string]interface{}) {
	if r.endpoint == "" {
		return
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("Error marshaling progress update",
			slog.String("error", err.Error()))
		return
	}

	req, err := http.NewRequest("POST", r.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		r.logger.Error("Error creating progress request",
			slog.String("error", err.Error()))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Warn("Error sending progress update to backend",
			slog.String("error", err.Error()))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.logger.Warn("Progress endpoint returned non-success status",
			slog.Int("status_code", resp.StatusCode))
	}
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
