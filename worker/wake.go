package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// NotificationChannel is the channel the storage layer's trigger notifies
// when a document row becomes eligible. The payload is the document id, but
// it is only a hint: the queue itself is the documents table.
const NotificationChannel = "document_queue"

// WakeSource tells the worker there may be new work. Wait blocks until a
// wake-up or until timeout elapses; a timeout is a normal wake, not an
// error. Errors mean the source itself failed and the caller should back
// off and call Wait again (which re-establishes the subscription).
type WakeSource interface {
	Wait(ctx context.Context, timeout time.Duration) error
	Close(ctx context.Context) error
}

// ListenWakeSource waits on a Postgres LISTEN subscription over a dedicated
// connection, separate from the pool used for work.
type ListenWakeSource struct {
	databaseURL string
	channel     string
	logger      *slog.Logger
	conn        *pgx.Conn
}

func NewListenWakeSource(databaseURL string, logger *slog.Logger) *ListenWakeSource {
	return &ListenWakeSource{
		databaseURL: databaseURL,
		channel:     NotificationChannel,
		logger:      logger,
	}
}

func (w *ListenWakeSource) Wait(ctx context.Context, timeout time.Duration) error {
	if w.conn == nil || w.conn.IsClosed() {
		conn, err := pgx.Connect(ctx, w.databaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect for LISTEN: %w", err)
		}
		if _, err := conn.Exec(ctx, "LISTEN "+w.channel); err != nil {
			conn.Close(ctx)
			return fmt.Errorf("failed to LISTEN on %s: %w", w.channel, err)
		}
		w.conn = conn
		w.logger.Info("Listening for document notifications",
			slog.String("channel", w.channel))
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	notification, err := w.conn.WaitForNotification(waitCtx)
	if err != nil {
		if pgconn.Timeout(err) && ctx.Err() == nil {
			// Bounded wait elapsed; wake anyway so the queue gets drained.
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.conn.Close(ctx)
		w.conn = nil
		return fmt.Errorf("notification wait failed: %w", err)
	}

	w.logger.Info("Received notification",
		slog.String("channel", notification.Channel),
		slog.String("payload", notification.Payload))
	return nil
}

func (w *ListenWakeSource) Close(ctx context.Context) error {
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close(ctx)
	w.conn = nil
	return err
}

// PollWakeSource wakes on a timer only. It is the fallback composition when
// no notification channel is available, and keeps the worker loop testable
// without a database.
type PollWakeSource struct{}

func NewPollWakeSource() *PollWakeSource {
	return &PollWakeSource{}
}

func (w *PollWakeSource) Wait(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *PollWakeSource) Close(ctx context.Context) error {
	return nil
}
