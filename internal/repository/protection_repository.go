package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/aimd54/datestreak/internal/models"
)

// ProtectionRepository handles streak-saver and holiday bookkeeping.
type ProtectionRepository struct {
	db *DB
}

// NewProtectionRepository creates a new protection repository.
func NewProtectionRepository(db *DB) *ProtectionRepository {
	return &ProtectionRepository{db: db}
}

// GetOrCreate returns the state row for (user, mode), creating an empty one
// on first use.
func (r *ProtectionRepository) GetOrCreate(ctx context.Context, userID string, mode models.Mode) (*models.ProtectionState, error) {
	state, err := r.get(ctx, userID, mode)
	if err != nil || state != nil {
		return state, err
	}

	state = &models.ProtectionState{UserID: userID, Mode: mode}
	err = r.db.WithContext(ctx).Create(state).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return r.get(ctx, userID, mode)
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (r *ProtectionRepository) get(ctx context.Context, userID string, mode models.Mode) (*models.ProtectionState, error) {
	var state models.ProtectionState
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND mode = ?", userID, mode).
		First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Save writes the whole state row.
func (r *ProtectionRepository) Save(ctx context.Context, state *models.ProtectionState) error {
	return r.db.WithContext(ctx).Save(state).Error
}

// ArmRescue records the date the user chose to rescue with a streak saver.
// The allowance is only charged when the rescue game is won.
func (r *ProtectionRepository) ArmRescue(ctx context.Context, stateID uint, date time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ProtectionState{}).
		Where("id = ?", stateID).
		Updates(map[string]interface{}{
			"pending_rescue_date": models.Day(date),
			"missed_day_flag":     false,
		}).Error
}

// ConsumeRescue charges one streak saver for a won rescue of date and clears
// the pending rescue. Only the first call for a date matches, so retries do
// not charge twice.
func (r *ProtectionRepository) ConsumeRescue(ctx context.Context, userID string, mode models.Mode, date time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.ProtectionState{}).
		Where("user_id = ? AND mode = ? AND pending_rescue_date = ?", userID, mode, models.Day(date)).
		Updates(map[string]interface{}{
			"streak_savers_used_this_period": gorm.Expr("streak_savers_used_this_period + 1"),
			"pending_rescue_date":            nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ClearRescue drops a pending rescue without charging the allowance.
func (r *ProtectionRepository) ClearRescue(ctx context.Context, userID string, mode models.Mode, date time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ProtectionState{}).
		Where("user_id = ? AND mode = ? AND pending_rescue_date = ?", userID, mode, models.Day(date)).
		Update("pending_rescue_date", nil).Error
}

// StartHoliday activates holiday mode and charges one holiday, unless a
// holiday is already active. It reports whether the allowance was charged.
func (r *ProtectionRepository) StartHoliday(ctx context.Context, stateID uint, start, end time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.ProtectionState{}).
		Where("id = ? AND holiday_active = ?", stateID, false).
		Updates(map[string]interface{}{
			"holiday_active":          true,
			"holiday_start":           models.Day(start),
			"holiday_end":             models.Day(end),
			"holidays_used_this_year": gorm.Expr("holidays_used_this_year + 1"),
			"missed_day_flag":         false,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// EndHoliday deactivates holiday mode.
func (r *ProtectionRepository) EndHoliday(ctx context.Context, stateID uint) error {
	return r.db.WithContext(ctx).Model(&models.ProtectionState{}).
		Where("id = ?", stateID).
		Update("holiday_active", false).Error
}

// ResetStreak makes every day up to and including through stop counting
// towards the current streak. The reset point never moves backwards.
func (r *ProtectionRepository) ResetStreak(ctx context.Context, stateID uint, through time.Time) error {
	through = models.Day(through)
	err := r.db.WithContext(ctx).Model(&models.ProtectionState{}).
		Where("id = ? AND (streak_reset_through IS NULL OR streak_reset_through < ?)", stateID, through).
		Update("streak_reset_through", through).Error
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Model(&models.ProtectionState{}).
		Where("id = ?", stateID).
		Updates(map[string]interface{}{
			"missed_day_flag":     false,
			"pending_rescue_date": nil,
		}).Error
}

// SetMissedDay sets or clears the missed-day flag.
func (r *ProtectionRepository) SetMissedDay(ctx context.Context, stateID uint, missed bool) error {
	return r.db.WithContext(ctx).Model(&models.ProtectionState{}).
		Where("id = ?", stateID).
		Update("missed_day_flag", missed).Error
}
