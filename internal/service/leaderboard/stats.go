package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/aimd54/datestreak/internal/models"
	"github.com/aimd54/datestreak/internal/repository"
)

// UserStats represents the statistics page of a user in one mode.
type UserStats struct {
	UserID            string             `json:"user_id"`
	Mode              models.Mode        `json:"mode"`
	Region            string             `json:"region,omitempty"`
	CurrentStreak     int                `json:"current_streak"`
	MaxStreak         int                `json:"max_streak"`
	GamesPlayed       int                `json:"games_played"`
	GamesWon          int                `json:"games_won"`
	WinRate           float64            `json:"win_rate"`
	GuessDistribution map[int]int        `json:"guess_distribution"`
	AnchorDate        *time.Time         `json:"anchor_date,omitempty"`
	Badges            []models.UserBadge `json:"badges"`
	GlobalRank        int                `json:"global_rank"`
	RegionRank        int                `json:"region_rank,omitempty"`
}

// GetUserStats returns the statistics of a user. A user without a snapshot
// gets zeroed statistics.
func (s *Service) GetUserStats(ctx context.Context, mode models.Mode, userID string) (*UserStats, error) {
	snap, err := s.snapshotRepo.Get(ctx, userID, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	stats := &UserStats{
		UserID:            userID,
		Mode:              mode,
		GuessDistribution: map[int]int{},
		Badges:            []models.UserBadge{},
	}
	if snap == nil {
		return stats, nil
	}

	stats.Region = snap.Region
	stats.CurrentStreak = snap.CurrentStreak
	stats.MaxStreak = snap.MaxStreak
	stats.GamesPlayed = snap.GamesPlayed
	stats.GamesWon = snap.GamesWon
	stats.WinRate = snap.WinRate()
	if snap.GuessDistribution != nil {
		stats.GuessDistribution = snap.GuessDistribution
	}
	if !snap.AnchorDate.IsZero() {
		anchor := snap.AnchorDate
		stats.AnchorDate = &anchor
	}

	userBadges, err := s.badgeRepo.GetUserBadges(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to get user badges")
	} else {
		for _, ub := range userBadges {
			if ub.Mode == mode {
				stats.Badges = append(stats.Badges, ub)
			}
		}
	}

	globalRank, err := s.GetUserRank(ctx, mode, userID, "", repository.OrderByCurrentStreak)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to get global rank")
	} else {
		stats.GlobalRank = globalRank
	}

	if mode == models.ModeRegional && snap.Region != "" {
		regionRank, err := s.GetUserRank(ctx, mode, userID, snap.Region, repository.OrderByCurrentStreak)
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Str("region", snap.Region).Msg("Failed to get region rank")
		} else {
			stats.RegionRank = regionRank
		}
	}

	return stats, nil
}
