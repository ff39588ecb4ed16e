package streak

import (
	"context"
	"fmt"
	"time"

	"github.com/aimd54/datestreak/internal/models"
	"github.com/aimd54/datestreak/internal/repository"
	"github.com/aimd54/datestreak/pkg/logger"
)

// AttemptRepository interface for history reads.
type AttemptRepository interface {
	History(ctx context.Context, mode models.Mode, userID string) ([]models.Attempt, error)
}

// SnapshotRepository interface for the snapshot cache.
type SnapshotRepository interface {
	CreateOrUpdate(ctx context.Context, snapshot *models.StreakSnapshot) error
	Get(ctx context.Context, userID string, mode models.Mode) (*models.StreakSnapshot, error)
}

// ProtectionRepository interface for reading the streak reset point.
type ProtectionRepository interface {
	GetOrCreate(ctx context.Context, userID string, mode models.Mode) (*models.ProtectionState, error)
}

// Service recomputes and caches streak snapshots.
type Service struct {
	attempts   AttemptRepository
	snapshots  SnapshotRepository
	protection ProtectionRepository
	log        *logger.Logger
	now        func() time.Time
}

// NewService creates a new streak service.
func NewService(
	attempts *repository.AttemptRepository,
	snapshots *repository.SnapshotRepository,
	protection *repository.ProtectionRepository,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(attempts, snapshots, protection, log)
}

// NewServiceWithInterfaces creates a new streak service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	attempts AttemptRepository,
	snapshots SnapshotRepository,
	protection ProtectionRepository,
	log *logger.Logger,
) *Service {
	return &Service{
		attempts:   attempts,
		snapshots:  snapshots,
		protection: protection,
		log:        log,
		now:        time.Now,
	}
}

// Recompute rebuilds the snapshot for (user, mode) from the full history,
// anchored at anchorDate, and stores it.
func (s *Service) Recompute(ctx context.Context, sess models.Session, mode models.Mode, anchorDate time.Time) (*models.StreakSnapshot, error) {
	history, err := s.attempts.History(ctx, mode, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return s.store(ctx, sess, mode, history, anchorDate)
}

// Refresh recomputes the snapshot as it should be displayed on sess.Today.
func (s *Service) Refresh(ctx context.Context, sess models.Session, mode models.Mode) (*models.StreakSnapshot, error) {
	history, err := s.attempts.History(ctx, mode, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return s.store(ctx, sess, mode, history, DisplayAnchor(history, sess.Today))
}

func (s *Service) store(ctx context.Context, sess models.Session, mode models.Mode, history []models.Attempt, anchorDate time.Time) (*models.StreakSnapshot, error) {
	state, err := s.protection.GetOrCreate(ctx, sess.UserID, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to load protection state: %w", err)
	}

	stats := Compute(history, anchorDate, state.StreakResetThrough)
	snapshot := &models.StreakSnapshot{
		UserID:            sess.UserID,
		Mode:              mode,
		Region:            sess.Region,
		CurrentStreak:     stats.CurrentStreak,
		MaxStreak:         stats.MaxStreak,
		GamesPlayed:       stats.GamesPlayed,
		GamesWon:          stats.GamesWon,
		GuessDistribution: stats.GuessDistribution,
		AnchorDate:        stats.Anchor,
		ComputedAt:        s.now(),
	}

	if err := s.snapshots.CreateOrUpdate(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to store snapshot: %w", err)
	}

	s.log.Debug().
		Str("user_id", sess.UserID).
		Str("mode", string(mode)).
		Int("current_streak", snapshot.CurrentStreak).
		Int("max_streak", snapshot.MaxStreak).
		Msg("Streak snapshot recomputed")

	return snapshot, nil
}

// StreakAt returns the current streak without storing anything. The anchor
// is the later of anchorDate and the latest history row.
func (s *Service) StreakAt(ctx context.Context, userID string, mode models.Mode, anchorDate time.Time) (int, error) {
	history, err := s.attempts.History(ctx, mode, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load history: %w", err)
	}
	state, err := s.protection.GetOrCreate(ctx, userID, mode)
	if err != nil {
		return 0, fmt.Errorf("failed to load protection state: %w", err)
	}
	return Compute(history, anchorDate, state.StreakResetThrough).CurrentStreak, nil
}

// Get returns the cached snapshot, or nil if none has been computed yet.
func (s *Service) Get(ctx context.Context, userID string, mode models.Mode) (*models.StreakSnapshot, error) {
	return s.snapshots.Get(ctx, userID, mode)
}
