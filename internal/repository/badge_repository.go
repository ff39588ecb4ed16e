package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/aimd54/datestreak/internal/models"
)

// AwardOutcome tells what an award call did.
type AwardOutcome int

// Award outcomes.
const (
	// AwardFirst means the user earned the badge for the first time in the scope.
	AwardFirst AwardOutcome = iota
	// AwardRepeat means an existing award was re-earned.
	AwardRepeat
	// AwardUnchanged means the award key was already applied.
	AwardUnchanged
)

// BadgeRepository handles badge-related database operations.
type BadgeRepository struct {
	db *DB
}

// NewBadgeRepository creates a new badge repository.
func NewBadgeRepository(db *DB) *BadgeRepository {
	return &BadgeRepository{db: db}
}

// Create creates a new badge in the database.
func (r *BadgeRepository) Create(badge *models.Badge) error {
	return r.db.Create(badge).Error
}

// GetByName retrieves a badge by its name.
func (r *BadgeRepository) GetByName(name string) (*models.Badge, error) {
	var badge models.Badge
	err := r.db.Where("name = ?", name).First(&badge).Error
	if err != nil {
		return nil, err
	}
	return &badge, nil
}

// GetAll retrieves all badges from the database.
func (r *BadgeRepository) GetAll() ([]models.Badge, error) {
	var badges []models.Badge
	err := r.db.Order("category ASC, threshold ASC").Find(&badges).Error
	return badges, err
}

// FindByCriterion returns the badge defined for (category, threshold), or nil.
func (r *BadgeRepository) FindByCriterion(ctx context.Context, category string, threshold int) (*models.Badge, error) {
	var badge models.Badge
	err := r.db.WithContext(ctx).
		Where("category = ? AND threshold = ?", category, threshold).
		First(&badge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &badge, nil
}

// Upsert creates a badge definition or updates the one with the same name.
func (r *BadgeRepository) Upsert(badge *models.Badge) error {
	existing, err := r.GetByName(badge.Name)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.Create(badge)
	}
	if err != nil {
		return err
	}

	badge.ID = existing.ID
	badge.CreatedAt = existing.CreatedAt
	return r.db.Save(badge).Error
}

// Award records that the user earned a badge in (region, mode). The first
// award inserts a row; later ones bump award_count and clear is_seen. A
// duplicate insert from a concurrent caller falls back to the update path.
// awardKey identifies the win that triggered the award. Each (row, awardKey)
// pair is stored once, so replaying any earlier win changes nothing.
func (r *BadgeRepository) Award(ctx context.Context, userID string, badgeID uint, region string, mode models.Mode, awardKey string, at time.Time) (*models.UserBadge, AwardOutcome, error) {
	existing, err := r.findAward(ctx, userID, badgeID, region, mode)
	if err != nil {
		return nil, AwardUnchanged, err
	}

	if existing == nil {
		award := &models.UserBadge{
			UserID:        userID,
			BadgeID:       badgeID,
			Region:        region,
			Mode:          mode,
			AwardCount:    1,
			FirstEarnedAt: at,
			LastEarnedAt:  at,
		}
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(award).Error; err != nil {
				return err
			}
			return tx.Create(&models.BadgeAward{UserBadgeID: award.ID, AwardKey: awardKey, AwardedAt: at}).Error
		})
		if err == nil {
			return r.reload(ctx, award.ID, AwardFirst)
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, AwardUnchanged, err
		}

		existing, err = r.findAward(ctx, userID, badgeID, region, mode)
		if err != nil {
			return nil, AwardUnchanged, err
		}
		if existing == nil {
			return nil, AwardUnchanged, errors.New("user badge vanished after duplicate insert")
		}
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.BadgeAward{UserBadgeID: existing.ID, AwardKey: awardKey, AwardedAt: at}).Error; err != nil {
			return err
		}
		return tx.Model(&models.UserBadge{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"award_count":    gorm.Expr("award_count + 1"),
				"is_seen":        false,
				"last_earned_at": at,
			}).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return r.reload(ctx, existing.ID, AwardUnchanged)
	}
	if err != nil {
		return nil, AwardUnchanged, err
	}
	return r.reload(ctx, existing.ID, AwardRepeat)
}

func (r *BadgeRepository) findAward(ctx context.Context, userID string, badgeID uint, region string, mode models.Mode) (*models.UserBadge, error) {
	var award models.UserBadge
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND badge_id = ? AND region = ? AND mode = ?", userID, badgeID, region, mode).
		First(&award).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &award, nil
}

func (r *BadgeRepository) reload(ctx context.Context, id uint, outcome AwardOutcome) (*models.UserBadge, AwardOutcome, error) {
	var award models.UserBadge
	err := r.db.WithContext(ctx).Preload("Badge").First(&award, id).Error
	if err != nil {
		return nil, outcome, err
	}
	return &award, outcome, nil
}

// GetUserBadges retrieves all badges earned by a user with badge details preloaded.
func (r *BadgeRepository) GetUserBadges(ctx context.Context, userID string) ([]models.UserBadge, error) {
	var userBadges []models.UserBadge
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Preload("Badge").
		Order("last_earned_at DESC").
		Find(&userBadges).Error
	return userBadges, err
}

// MarkSeen flags a user badge row as seen. Marking it again is a no-op.
// It reports whether the row exists for the user.
func (r *BadgeRepository) MarkSeen(ctx context.Context, userBadgeID uint, userID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.UserBadge{}).
		Where("id = ? AND user_id = ?", userBadgeID, userID).
		Update("is_seen", true)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	// Some drivers report zero affected rows when nothing changed.
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserBadge{}).
		Where("id = ? AND user_id = ?", userBadgeID, userID).
		Count(&count).Error
	return count > 0, err
}

// GetBadgeHoldersCount returns the number of users who have earned a specific badge.
func (r *BadgeRepository) GetBadgeHoldersCount(badgeID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.UserBadge{}).
		Where("badge_id = ?", badgeID).
		Distinct("user_id").
		Count(&count).Error
	return count, err
}
