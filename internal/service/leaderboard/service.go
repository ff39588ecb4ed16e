// Package leaderboard provides streak leaderboards and player statistics.
package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/aimd54/datestreak/internal/models"
	"github.com/aimd54/datestreak/internal/repository"
	"github.com/aimd54/datestreak/pkg/logger"
)

// ErrNotRanked is returned when the user has no snapshot in the mode.
var ErrNotRanked = errors.New("user not found in leaderboard")

// SnapshotRepository interface for snapshot reads.
type SnapshotRepository interface {
	Top(ctx context.Context, mode models.Mode, region, orderBy string, limit int) ([]models.StreakSnapshot, error)
	Get(ctx context.Context, userID string, mode models.Mode) (*models.StreakSnapshot, error)
	GetModeStats(ctx context.Context, mode models.Mode) (*repository.ModeStats, error)
}

// BadgeRepository interface for badge reads.
type BadgeRepository interface {
	GetUserBadges(ctx context.Context, userID string) ([]models.UserBadge, error)
}

// Entry represents a single entry in a leaderboard.
type Entry struct {
	UserID        string  `json:"user_id"`
	Region        string  `json:"region,omitempty"`
	CurrentStreak int     `json:"current_streak"`
	MaxStreak     int     `json:"max_streak"`
	GamesWon      int     `json:"games_won"`
	WinRate       float64 `json:"win_rate"`
	Rank          int     `json:"rank"`
}

// Service handles leaderboard generation and user statistics.
type Service struct {
	snapshotRepo SnapshotRepository
	badgeRepo    BadgeRepository
	log          *logger.Logger
}

// NewService creates a new leaderboard service with concrete repository types.
func NewService(snapshotRepo *repository.SnapshotRepository, badgeRepo *repository.BadgeRepository, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(snapshotRepo, badgeRepo, log)
}

// NewServiceWithInterfaces creates a new leaderboard service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(snapshotRepo SnapshotRepository, badgeRepo BadgeRepository, log *logger.Logger) *Service {
	return &Service{
		snapshotRepo: snapshotRepo,
		badgeRepo:    badgeRepo,
		log:          log,
	}
}

// GetLeaderboard returns the best players of a mode ordered by metric,
// optionally limited to one region. Unknown metrics fall back to the
// current streak.
func (s *Service) GetLeaderboard(ctx context.Context, mode models.Mode, region, metric string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}

	snapshots, err := s.snapshotRepo.Top(ctx, mode, region, normalizeMetric(metric), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshots: %w", err)
	}

	entries := make([]Entry, 0, len(snapshots))
	for i := range snapshots {
		snap := &snapshots[i]
		entries = append(entries, Entry{
			UserID:        snap.UserID,
			Region:        snap.Region,
			CurrentStreak: snap.CurrentStreak,
			MaxStreak:     snap.MaxStreak,
			GamesWon:      snap.GamesWon,
			WinRate:       snap.WinRate(),
			Rank:          i + 1,
		})
	}

	return entries, nil
}

// GetUserRank returns the rank of a user for a metric in a mode.
func (s *Service) GetUserRank(ctx context.Context, mode models.Mode, userID, region, metric string) (int, error) {
	leaderboard, err := s.GetLeaderboard(ctx, mode, region, metric, 0)
	if err != nil {
		return 0, err
	}

	for _, entry := range leaderboard {
		if entry.UserID == userID {
			return entry.Rank, nil
		}
	}

	return 0, ErrNotRanked
}

// GetModeStats returns aggregate numbers for a mode.
func (s *Service) GetModeStats(ctx context.Context, mode models.Mode) (*repository.ModeStats, error) {
	stats, err := s.snapshotRepo.GetModeStats(ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to get mode stats: %w", err)
	}
	return stats, nil
}

func normalizeMetric(metric string) string {
	switch metric {
	case repository.OrderByMaxStreak, repository.OrderByGamesWon:
		return metric
	default:
		return repository.OrderByCurrentStreak
	}
}
