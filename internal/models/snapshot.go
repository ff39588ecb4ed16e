package models

import "time"

// StreakSnapshot is the derived aggregate for one user and mode. It is always
// produced by a full recomputation over the attempt history.
type StreakSnapshot struct {
	ID                uint        `gorm:"primaryKey" json:"-"`
	UserID            string      `gorm:"size:64;not null;uniqueIndex:ux_snapshot_user_mode,priority:1" json:"user_id"`
	Mode              Mode        `gorm:"size:16;not null;uniqueIndex:ux_snapshot_user_mode,priority:2" json:"mode"`
	Region            string      `gorm:"size:16;index" json:"region"`
	CurrentStreak     int         `gorm:"not null;default:0" json:"current_streak"`
	MaxStreak         int         `gorm:"not null;default:0" json:"max_streak"`
	GamesPlayed       int         `gorm:"not null;default:0" json:"games_played"`
	GamesWon          int         `gorm:"not null;default:0" json:"games_won"`
	GuessDistribution map[int]int `gorm:"type:text;serializer:json" json:"guess_distribution"`
	AnchorDate        time.Time   `gorm:"type:date" json:"anchor_date"`
	ComputedAt        time.Time   `json:"computed_at"`
}

// TableName specifies the table name for StreakSnapshot model.
func (StreakSnapshot) TableName() string {
	return "streak_snapshots"
}

// WinRate returns the share of played games that were won, in percent.
func (s *StreakSnapshot) WinRate() float64 {
	if s.GamesPlayed == 0 {
		return 0
	}
	return float64(s.GamesWon) * 100 / float64(s.GamesPlayed)
}
