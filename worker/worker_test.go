package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/serisow/ingestor/store"
)

type fakeJobSource struct {
	mu   sync.Mutex
	docs []*store.Document
	err  error
}

func (f *fakeJobSource) ClaimNextQueued(ctx context.Context) (*store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.docs) == 0 {
		return nil, store.ErrNoEligibleDocument
	}
	doc := f.docs[0]
	f.docs = f.docs[1:]
	return doc, nil
}

type fakeJobRecorder struct {
	mu      sync.Mutex
	created []*store.ProcessingJob
	err     error
}

func (f *fakeJobRecorder) Create(ctx context.Context, job *store.ProcessingJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, job)
	return f.err
}

type fakeRunner struct {
	mu      sync.Mutex
	ran     []string
	active  int
	overlap bool
	errFor  map[string]error
}

func (f *fakeRunner) Run(ctx context.Context, job *store.ProcessingJob) error {
	f.mu.Lock()
	f.active++
	if f.active > 1 {
		f.overlap = true
	}
	f.ran = append(f.ran, job.DocID)
	f.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.active--
	err := f.errFor[job.DocID]
	f.mu.Unlock()
	return err
}

type fakeCleaner struct {
	mu      sync.Mutex
	cleaned []string
}

func (f *fakeCleaner) CleanupFailed(ctx context.Context, docID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, docID)
}

type fakeWakeSource struct {
	mu     sync.Mutex
	waits  int
	closed bool
	err    error
}

func (f *fakeWakeSource) Wait(ctx context.Context, timeout time.Duration) error {
	f.mu.Lock()
	f.waits++
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Millisecond):
		return nil
	}
}

func (f *fakeWakeSource) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type threadSafeSink struct {
	mu    sync.Mutex
	calls []progressCall
}

func (r *threadSafeSink) Document(ctx context.Context, docID string, userID int, progress int, status string, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, progressCall{scope: "document", progress: progress, status: status, errMsg: errMsg})
}

func (r *threadSafeSink) Job(ctx context.Context, jobID, docID string, userID int, progress int, status string, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, progressCall{scope: "job", progress: progress, status: status, errMsg: errMsg})
}

func startTestWorker(t *testing.T, source *fakeJobSource, runner *fakeRunner, cleaner *fakeCleaner,
	sink *threadSafeSink) (*Worker, *fakeWakeSource, func()) {
	t.Helper()
	wake := &fakeWakeSource{}
	w := New(source, &fakeJobRecorder{}, runner, sink, cleaner, wake, testLogger(), &Options{
		WaitTimeout: 10 * time.Millisecond,
		Backoff:     time.Millisecond,
	})

	done := make(chan struct{})
	go func() {
		w.Start()
		close(done)
	}()

	stop := func() {
		w.Shutdown()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Worker did not stop after shutdown")
		}
	}
	return w, wake, stop
}

func TestWorkerProcessesQueueSequentially(t *testing.T) {
	source := &fakeJobSource{docs: []*store.Document{
		{ID: "doc-1", UserID: 1, Filename: "a.md", FilePath: "/u/a.md"},
		{ID: "doc-2", UserID: 1, Filename: "b.md", FilePath: "/u/b.md"},
		{ID: "doc-3", UserID: 2, Filename: "c.pdf", FilePath: "/u/c.pdf"},
	}}
	runner := &fakeRunner{}
	cleaner := &fakeCleaner{}

	_, _, stop := startTestWorker(t, source, runner, cleaner, &threadSafeSink{})

	deadline := time.After(2 * time.Second)
	for {
		runner.mu.Lock()
		n := len(runner.ran)
		runner.mu.Unlock()
		if n == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("Expected 3 documents processed, got %d", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
	stop()

	if runner.overlap {
		t.Error("Documents must be processed one at a time")
	}
	if strings.Join(runner.ran, ",") != "doc-1,doc-2,doc-3" {
		t.Errorf("Expected queue order preserved, got %v", runner.ran)
	}
	if len(cleaner.cleaned) != 0 {
		t.Errorf("No cleanup expected on success, got %v", cleaner.cleaned)
	}
}

func TestWorkerFailureTriggersCleanup(t *testing.T) {
	source := &fakeJobSource{docs: []*store.Document{
		{ID: "doc-bad", UserID: 1, Filename: "bad.md", FilePath: "/u/bad.md"},
	}}
	runner := &fakeRunner{errFor: map[string]error{"doc-bad": errors.New("conversion exploded")}}
	cleaner := &fakeCleaner{}
	sink := &threadSafeSink{}

	_, _, stop := startTestWorker(t, source, runner, cleaner, sink)

	deadline := time.After(2 * time.Second)
	for {
		cleaner.mu.Lock()
		n := len(cleaner.cleaned)
		cleaner.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Expected cleanup after a failed run")
		case <-time.After(5 * time.Millisecond):
		}
	}
	stop()

	if cleaner.cleaned[0] != "doc-bad" {
		t.Errorf("Cleanup targeted the wrong document: %v", cleaner.cleaned)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	var foundFailed bool
	for _, call := range sink.calls {
		if call.status == store.StatusFailed || call.status == store.JobStatusFailed {
			foundFailed = true
			if call.progress != 0 {
				t.Errorf("Failure should reset progress to 0, got %d", call.progress)
			}
			if !strings.HasPrefix(call.errMsg, "Processing failed: ") {
				t.Errorf("Unexpected failure message: %q", call.errMsg)
			}
		}
	}
	if !foundFailed {
		t.Error("Expected a failed progress update")
	}
}

func TestWorkerJobRecordFailureDoesNotBlockProcessing(t *testing.T) {
	source := &fakeJobSource{docs: []*store.Document{
		{ID: "doc-1", UserID: 1, Filename: "a.md", FilePath: "/u/a.md"},
	}}
	runner := &fakeRunner{}
	wake := &fakeWakeSource{}
	recorder := &fakeJobRecorder{err: errors.New("insert failed")}

	w := New(source, recorder, runner, &threadSafeSink{}, &fakeCleaner{}, wake, testLogger(), &Options{
		WaitTimeout: 10 * time.Millisecond,
		Backoff:     time.Millisecond,
	})

	if !w.processNext() {
		t.Fatal("Expected the document to be claimed")
	}
	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.ran) != 1 {
		t.Error("The run should proceed even when the job record insert fails")
	}
}

func TestWorkerShutdownStopsLoop(t *testing.T) {
	source := &fakeJobSource{}
	_, wake, stop := startTestWorker(t, source, &fakeRunner{}, &fakeCleaner{}, &threadSafeSink{})

	stop()

	wake.mu.Lock()
	defer wake.mu.Unlock()
	if !wake.closed {
		t.Error("Shutdown should close the wake source")
	}
}

func TestWorkerBacksOffOnWakeErrors(t *testing.T) {
	source := &fakeJobSource{}
	runner := &fakeRunner{}
	wake := &fakeWakeSource{err: errors.New("connection lost")}
	w := New(source, &fakeJobRecorder{}, runner, &threadSafeSink{}, &fakeCleaner{}, wake, testLogger(), &Options{
		WaitTimeout: 10 * time.Millisecond,
		Backoff:     time.Millisecond,
	})

	done := make(chan struct{})
	go func() {
		w.Start()
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		wake.mu.Lock()
		n := wake.waits
		wake.mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Expected the loop to keep waiting after wake errors")
		case <-time.After(5 * time.Millisecond):
		}
	}

	w.Shutdown()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Worker did not stop after shutdown")
	}
}
