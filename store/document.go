package store

import (
	"time"
)

// Document processing statuses. A document is eligible for dequeue only
// while pending or queued.
const (
	StatusPending    = "pending"
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusExternal   = "external"
)

// Document mirrors a row of the documents table. The ingestion worker
// mutates it in place through the pipeline but never deletes it.
type Document struct {
	ID               string
	UserID           int
	FilePath         string
	Filename         string
	ProcessingStatus string
	UploadProgress   int
	ProcessingError  *string
	Metadata         map[string]interface{}
	ChunkCount       int
	CreatedAt        time.Time
}

// ProcessingJob is the ephemeral unit of work for one pipeline run. It is
// created when a document is claimed and discarded when the run ends; only
// its mirrored JobRecord survives.
type ProcessingJob struct {
	ID               string
	DocID            string
	UserID           int
	FilePath         string
	OriginalFilename string
	CreatedAt        time.Time
}

// Job record statuses.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// JobRecord is the durable, queryable history of a pipeline run,
// independent of the document's current (overwritable) status.
type JobRecord struct {
	ID           string
	DocumentID   string
	UserID       int
	Status       string
	Progress     int
	ErrorMessage *string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}
