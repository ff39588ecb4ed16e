package models

import (
	"time"
)

// Badge categories.
const (
	BadgeCategoryStreak     = "streak"
	BadgeCategoryGuessCount = "guess_count"
)

// Badge represents a badge definition that can be earned by users.
type Badge struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null;size:100" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Icon        string    `gorm:"size:50" json:"icon"`
	Category    string    `gorm:"size:32;not null;uniqueIndex:ux_badge_category_threshold,priority:1" json:"category"`
	Threshold   int       `gorm:"not null;uniqueIndex:ux_badge_category_threshold,priority:2" json:"threshold"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for Badge model.
func (Badge) TableName() string {
	return "badges"
}

// UserBadge is a badge earned by a user in one region and mode.
// Re-earning the badge bumps AwardCount and clears IsSeen.
type UserBadge struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        string    `gorm:"size:64;not null;uniqueIndex:ux_user_badge_scope,priority:1" json:"user_id"`
	BadgeID       uint      `gorm:"not null;uniqueIndex:ux_user_badge_scope,priority:2" json:"badge_id"`
	Badge         Badge     `gorm:"foreignKey:BadgeID" json:"badge,omitempty"`
	Region        string    `gorm:"size:16;not null;uniqueIndex:ux_user_badge_scope,priority:3" json:"region"`
	Mode          Mode      `gorm:"size:16;not null;uniqueIndex:ux_user_badge_scope,priority:4" json:"mode"`
	IsSeen        bool      `gorm:"not null;default:false" json:"is_seen"`
	AwardCount    int       `gorm:"not null;default:1" json:"award_count"`
	FirstEarnedAt time.Time `gorm:"not null" json:"first_earned_at"`
	LastEarnedAt  time.Time `gorm:"not null" json:"last_earned_at"`
}

// TableName specifies the table name for UserBadge model.
func (UserBadge) TableName() string {
	return "user_badges"
}

// BadgeAward records the win behind one award of a user badge. The unique
// (user_badge_id, award_key) pair stops a replayed win from counting twice.
type BadgeAward struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserBadgeID uint      `gorm:"not null;uniqueIndex:ux_badge_award_key,priority:1" json:"user_badge_id"`
	AwardKey    string    `gorm:"size:128;not null;uniqueIndex:ux_badge_award_key,priority:2" json:"award_key"`
	AwardedAt   time.Time `gorm:"not null" json:"awarded_at"`
}

// TableName specifies the table name for BadgeAward model.
func (BadgeAward) TableName() string {
	return "badge_awards"
}
