// Package aggregator provides the nightly batch refresh of streak snapshots.
package aggregator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	prommetrics "github.com/aimd54/datestreak/internal/metrics"
	"github.com/aimd54/datestreak/internal/models"
	"github.com/aimd54/datestreak/internal/repository"
	"github.com/aimd54/datestreak/internal/service/streak"
	"github.com/aimd54/datestreak/pkg/logger"
)

// UserLister interface for the players of a mode.
type UserLister interface {
	DistinctUsers(ctx context.Context, mode models.Mode) ([]string, error)
}

// SnapshotReader interface for the stored snapshots.
type SnapshotReader interface {
	Get(ctx context.Context, userID string, mode models.Mode) (*models.StreakSnapshot, error)
}

// Refresher interface for recomputing one snapshot.
type Refresher interface {
	Refresh(ctx context.Context, sess models.Session, mode models.Mode) (*models.StreakSnapshot, error)
}

// RunSummary describes one aggregation run.
type RunSummary struct {
	RunID    string
	Date     time.Time
	Users    int
	Failed   int
	Duration time.Duration
}

// Service recomputes every snapshot so streaks that lapsed overnight are
// shown as broken without waiting for the user to come back.
type Service struct {
	users     UserLister
	snapshots SnapshotReader
	streaks   Refresher
	workers   int
	log       *logger.Logger
}

// NewService creates a new aggregator service.
func NewService(attempts *repository.AttemptRepository, snapshots *repository.SnapshotRepository, streaks *streak.Service, workers int, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(attempts, snapshots, streaks, workers, log)
}

// NewServiceWithInterfaces creates a new aggregator service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(users UserLister, snapshots SnapshotReader, streaks Refresher, workers int, log *logger.Logger) *Service {
	if workers < 1 {
		workers = 4
	}
	return &Service{
		users:     users,
		snapshots: snapshots,
		streaks:   streaks,
		workers:   workers,
		log:       log.Component("aggregator"),
	}
}

// AggregateDaily refreshes the snapshot of every player of every mode as
// seen on date. A failing user is logged and skipped.
func (s *Service) AggregateDaily(ctx context.Context, date time.Time) (*RunSummary, error) {
	start := time.Now()
	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to create run id: %w", err)
	}

	summary := &RunSummary{RunID: runID.String(), Date: models.Day(date)}
	log := s.log.With().Str("run_id", summary.RunID).Logger()

	log.Info().
		Time("date", summary.Date).
		Msg("Starting daily snapshot aggregation")

	defer func() {
		summary.Duration = time.Since(start)
		prommetrics.ObserveSnapshotRefreshDuration(summary.Duration.Seconds())
	}()

	var failed atomic.Int64
	for _, mode := range models.Modes {
		users, err := s.users.DistinctUsers(ctx, mode)
		if err != nil {
			return summary, fmt.Errorf("failed to list %s players: %w", mode, err)
		}
		summary.Users += len(users)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.workers)
		for _, userID := range users {
			userID := userID
			g.Go(func() error {
				if err := s.refreshUser(gctx, mode, userID, summary.Date); err != nil {
					failed.Add(1)
					log.Error().
						Err(err).
						Str("user_id", userID).
						Str("mode", string(mode)).
						Msg("Failed to refresh snapshot")
				}
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return summary, err
		}
	}

	summary.Failed = int(failed.Load())
	log.Info().
		Int("users", summary.Users).
		Int("failed", summary.Failed).
		Dur("duration", time.Since(start)).
		Msg("Daily snapshot aggregation completed")

	return summary, nil
}

// refreshUser keeps the region recorded on the previous snapshot, since the
// batch has no request session to take it from.
func (s *Service) refreshUser(ctx context.Context, mode models.Mode, userID string, date time.Time) error {
	sess := models.Session{UserID: userID, Today: date}
	prev, err := s.snapshots.Get(ctx, userID, mode)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if prev != nil {
		sess.Region = prev.Region
	}

	if _, err := s.streaks.Refresh(ctx, sess, mode); err != nil {
		return err
	}
	return nil
}
