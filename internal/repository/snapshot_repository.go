package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/aimd54/datestreak/internal/models"
)

// SnapshotRepository handles the cached streak snapshots.
type SnapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// CreateOrUpdate stores the snapshot for (user, mode), replacing any previous
// one. Recomputing the same history twice yields the same row.
func (r *SnapshotRepository) CreateOrUpdate(ctx context.Context, snapshot *models.StreakSnapshot) error {
	var existing models.StreakSnapshot
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND mode = ?", snapshot.UserID, snapshot.Mode).
		First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = r.db.WithContext(ctx).Create(snapshot).Error
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		// Lost the insert race, overwrite the winner.
		err = r.db.WithContext(ctx).
			Where("user_id = ? AND mode = ?", snapshot.UserID, snapshot.Mode).
			First(&existing).Error
	}

	if err != nil {
		return err
	}

	snapshot.ID = existing.ID
	return r.db.WithContext(ctx).Save(snapshot).Error
}

// Get returns the cached snapshot for (user, mode), or nil.
func (r *SnapshotRepository) Get(ctx context.Context, userID string, mode models.Mode) (*models.StreakSnapshot, error) {
	var snapshot models.StreakSnapshot
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND mode = ?", userID, mode).
		First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Leaderboard orderings.
const (
	OrderByCurrentStreak = "current_streak"
	OrderByMaxStreak     = "max_streak"
	OrderByGamesWon      = "games_won"
)

// Top returns the best snapshots of a mode, optionally limited to a region.
func (r *SnapshotRepository) Top(ctx context.Context, mode models.Mode, region, orderBy string, limit int) ([]models.StreakSnapshot, error) {
	switch orderBy {
	case OrderByCurrentStreak, OrderByMaxStreak, OrderByGamesWon:
	default:
		orderBy = OrderByCurrentStreak
	}

	query := r.db.WithContext(ctx).Where("mode = ?", mode)
	if region != "" {
		query = query.Where("region = ?", region)
	}

	var snapshots []models.StreakSnapshot
	err := query.
		Order(orderBy + " DESC").
		Order("user_id ASC").
		Limit(limit).
		Find(&snapshots).Error
	return snapshots, err
}

// ModeStats holds aggregate numbers over all snapshots of a mode.
type ModeStats struct {
	Players          int64   `json:"players"`
	ActiveStreaks    int64   `json:"active_streaks"`
	AvgCurrentStreak float64 `json:"avg_current_streak"`
	TotalGamesPlayed int64   `json:"total_games_played"`
}

// GetModeStats aggregates the snapshots of a mode.
func (r *SnapshotRepository) GetModeStats(ctx context.Context, mode models.Mode) (*ModeStats, error) {
	stats := &ModeStats{}
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.StreakSnapshot{}).Where("mode = ?", mode)
	}

	if err := base().Count(&stats.Players).Error; err != nil {
		return nil, err
	}
	if err := base().Where("current_streak > 0").Count(&stats.ActiveStreaks).Error; err != nil {
		return nil, err
	}
	if err := base().Select("COALESCE(AVG(current_streak), 0)").Scan(&stats.AvgCurrentStreak).Error; err != nil {
		return nil, err
	}
	if err := base().Select("COALESCE(SUM(games_played), 0)").Scan(&stats.TotalGamesPlayed).Error; err != nil {
		return nil, err
	}
	return stats, nil
}
