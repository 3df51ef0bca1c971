package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeDocumentWriter struct {
	calls int
	err   error

	gotStatus   string
	gotProgress int
	gotErrMsg   string
}

func (f *fakeDocumentWriter) UpdateStatus(ctx context.Context, docID string, userID int, status string, progress int, errMsg string) error {
	f.calls++
	f.gotStatus = status
	f.gotProgress = progress
	f.gotErrMsg = errMsg
	return f.err
}

type fakeJobWriter struct {
	calls int
	err   error
}

func (f *fakeJobWriter) UpdateProgress(ctx context.Context, jobID string, userID int, progress int, status string, errMsg string) error {
	f.calls++
	return f.err
}

func TestReporterPushesDocumentProgress(t *testing.T) {
	var payload map[string]interface{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON content type, got %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("Could not decode pushed payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	docs := &fakeDocumentWriter{}
	reporter := NewReporter(docs, &fakeJobWriter{}, ts.URL, testLogger())

	reporter.Document(context.Background(), "doc-1", 7, 50, "processing", "")

	if docs.calls != 1 {
		t.Fatalf("Expected one document status write, got %d", docs.calls)
	}
	if docs.gotProgress != 50 || docs.gotStatus != "processing" {
		t.Errorf("Unexpected status write: %s at %d", docs.gotStatus, docs.gotProgress)
	}

	if payload["type"] != "document_progress" {
		t.Errorf("Expected type document_progress, got %v", payload["type"])
	}
	if payload["doc_id"] != "doc-1" {
		t.Errorf("Expected doc_id doc-1, got %v", payload["doc_id"])
	}
	if payload["progress"] != float64(50) {
		t.Errorf("Expected progress 50, got %v", payload["progress"])
	}
	if payload["error"] != nil {
		t.Errorf("Empty error must serialize as null, got %v", payload["error"])
	}
	if payload["user_id"] != float64(7) {
		t.Errorf("Expected user_id 7, got %v", payload["user_id"])
	}
	if _, ok := payload["timestamp"].(string); !ok {
		t.Errorf("Expected a timestamp string, got %v", payload["timestamp"])
	}
}

func TestReporterPushesJobProgress(t *testing.T) {
	var payload map[string]interface{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	jobs := &fakeJobWriter{}
	reporter := NewReporter(&fakeDocumentWriter{}, jobs, ts.URL, testLogger())

	reporter.Job(context.Background(), "job-1", "doc-1", 7, 0, "failed", "Processing failed: boom")

	if jobs.calls != 1 {
		t.Fatalf("Expected one job progress write, got %d", jobs.calls)
	}
	if payload["type"] != "job_progress" {
		t.Errorf("Expected type job_progress, got %v", payload["type"])
	}
	if payload["job_id"] != "job-1" || payload["document_id"] != "doc-1" {
		t.Errorf("Unexpected identifiers in payload: %v", payload)
	}
	if payload["error"] != "Processing failed: boom" {
		t.Errorf("Expected the error message in the payload, got %v", payload["error"])
	}
}

func TestReporterWithoutEndpointSkipsPush(t *testing.T) {
	docs := &fakeDocumentWriter{}
	reporter := NewReporter(docs, &fakeJobWriter{}, "", testLogger())

	// Must not panic or attempt any network call.
	reporter.Document(context.Background(), "doc-1", 7, 10, "processing", "")

	if docs.calls != 1 {
		t.Errorf("The database write must still happen, got %d calls", docs.calls)
	}
}

func TestReporterSwallowsFailures(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	docs := &fakeDocumentWriter{err: errors.New("row not found")}
	jobs := &fakeJobWriter{err: errors.New("row not found")}
	reporter := NewReporter(docs, jobs, ts.URL, testLogger())

	// Neither the database errors nor the non-2xx push may escape.
	reporter.Document(context.Background(), "doc-1", 7, 10, "processing", "")
	reporter.Job(context.Background(), "job-1", "doc-1", 7, 10, "running", "")

	if docs.calls != 1 || jobs.calls != 1 {
		t.Errorf("Both writes should have been attempted, got %d and %d", docs.calls, jobs.calls)
	}
}
