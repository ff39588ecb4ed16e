// Package outbox drains queued remote writes back into the attempt store.
package outbox

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/aimd54/datestreak/internal/cache"
	prommetrics "github.com/aimd54/datestreak/internal/metrics"
	"github.com/aimd54/datestreak/pkg/logger"
)

// Queue interface for the retry queue.
type Queue interface {
	Enqueue(ctx context.Context, entry cache.OutboxEntry) error
	Due(ctx context.Context, limit int) ([]cache.OutboxEntry, error)
	Ack(ctx context.Context, entry cache.OutboxEntry) error
	Retry(ctx context.Context, entry cache.OutboxEntry) (time.Duration, error)
	Len(ctx context.Context) (int64, error)
}

// Flusher replays one queued write. Pending reports whether the local copy
// still waits for a remote write.
type Flusher interface {
	Flush(ctx context.Context, entry cache.OutboxEntry) error
	Pending(ctx context.Context, entry cache.OutboxEntry) (bool, error)
}

// Summary reports one drain run.
type Summary struct {
	Flushed int
	Retried int
}

// Worker drains the outbox at a bounded rate so a recovering store is not
// flooded with the whole backlog at once.
type Worker struct {
	queue   Queue
	flusher Flusher
	limiter *rate.Limiter
	batch   int
	log     *logger.Logger
}

// NewWorker creates an outbox worker. ratePerSecond <= 0 disables throttling.
func NewWorker(queue Queue, flusher Flusher, batch int, ratePerSecond float64, log *logger.Logger) *Worker {
	if batch < 1 {
		batch = 100
	}
	limit := rate.Inf
	burst := batch
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
		burst = max(1, int(ratePerSecond))
	}
	return &Worker{
		queue:   queue,
		flusher: flusher,
		limiter: rate.NewLimiter(limit, burst),
		batch:   batch,
		log:     log.Component("outbox"),
	}
}

// Drain replays every due entry once. Entries that fail again are pushed
// back with a longer delay; the run itself only fails when the queue
// cannot be read or the context ends.
func (w *Worker) Drain(ctx context.Context) (*Summary, error) {
	due, err := w.queue.Due(ctx, w.batch)
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}

	summary := &Summary{}
	for _, entry := range due {
		if err := w.limiter.Wait(ctx); err != nil {
			return summary, err
		}

		if err := w.flusher.Flush(ctx, entry); err != nil {
			delay, rerr := w.queue.Retry(ctx, entry)
			if rerr != nil {
				w.log.Error().Err(rerr).Str("entry", entry.Key()).Msg("Failed to reschedule outbox entry")
			}
			w.log.Warn().
				Err(err).
				Str("user_id", entry.UserID).
				Str("mode", string(entry.Mode)).
				Uint("puzzle_id", entry.PuzzleID).
				Dur("retry_in", delay).
				Msg("Outbox flush failed")
			prommetrics.RecordOutboxFlush("retry")
			summary.Retried++
			continue
		}

		if err := w.queue.Ack(ctx, entry); err != nil {
			w.log.Error().Err(err).Str("entry", entry.Key()).Msg("Failed to ack outbox entry")
		}
		// A guess submitted during the flush may have queued itself before
		// the ack removed it.
		if pending, err := w.flusher.Pending(ctx, entry); err == nil && pending {
			if err := w.queue.Enqueue(ctx, entry); err != nil {
				w.log.Error().Err(err).Str("entry", entry.Key()).Msg("Failed to requeue outbox entry")
			}
		}
		prommetrics.RecordOutboxFlush("success")
		summary.Flushed++
	}

	if depth, err := w.queue.Len(ctx); err == nil {
		prommetrics.SetOutboxDepth(depth)
	}

	if len(due) > 0 {
		w.log.Info().
			Int("due", len(due)).
			Int("flushed", summary.Flushed).
			Int("retried", summary.Retried).
			Msg("Outbox drained")
	}
	return summary, nil
}
