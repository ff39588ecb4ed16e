package scheduler

import (
	"context"
	"time"

	prommetrics "github.com/aimd54/datestreak/internal/metrics"
	"github.com/aimd54/datestreak/internal/models"
)

// runOutboxDrain replays queued remote writes.
func (s *Service) runOutboxDrain(ctx context.Context) {
	summary, err := s.drainer.Drain(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Outbox drain job failed")
		prommetrics.RecordSchedulerJobRun(JobOutboxDrain, "error")
		return
	}

	prommetrics.RecordSchedulerJobRun(JobOutboxDrain, "success")
	if summary.Retried > 0 {
		s.log.Warn().
			Int("flushed", summary.Flushed).
			Int("retried", summary.Retried).
			Msg("Outbox drain left entries for retry")
	}
}

// runSnapshotRefresh recomputes every snapshot for the current game day.
func (s *Service) runSnapshotRefresh(ctx context.Context) {
	start := time.Now()
	today := s.gameDay()

	s.log.Info().Time("date", today).Msg("Running snapshot refresh job")

	summary, err := s.aggregator.AggregateDaily(ctx, today)
	if err != nil {
		s.log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Snapshot refresh job failed")
		prommetrics.RecordSchedulerJobRun(JobSnapshotRefresh, "error")
		return
	}

	status := "success"
	if summary.Failed > 0 {
		status = "partial"
	}
	prommetrics.RecordSchedulerJobRun(JobSnapshotRefresh, status)

	s.log.Info().
		Str("run_id", summary.RunID).
		Int("users", summary.Users).
		Int("failed", summary.Failed).
		Dur("duration", time.Since(start)).
		Msg("Snapshot refresh job completed")
}

// gameDay returns today's date in the game timezone, which decides which
// puzzle is current and may differ from the scheduler's timezone.
func (s *Service) gameDay() time.Time {
	loc, err := s.config.Game.Location()
	if err != nil {
		loc = time.UTC
	}
	return models.Day(s.now().In(loc))
}
