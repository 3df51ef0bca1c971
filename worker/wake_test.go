package worker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPollWakeSourceTimeoutIsNormalWake(t *testing.T) {
	wake := NewPollWakeSource()

	start := time.Now()
	err := wake.Wait(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("A timeout is a normal wake, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("Wait returned before the timeout: %v", elapsed)
	}
}

func TestPollWakeSourceCancellation(t *testing.T) {
	wake := NewPollWakeSource()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err := wake.Wait(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	if err := wake.Close(context.Background()); err != nil {
		t.Errorf("Close should be a no-op, got: %v", err)
	}
}
