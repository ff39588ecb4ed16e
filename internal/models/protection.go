package models

import "time"

// ProtectionState holds streak-saver and holiday bookkeeping per user and mode.
type ProtectionState struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID string `gorm:"size:64;not null;uniqueIndex:ux_protection_user_mode,priority:1" json:"user_id"`
	Mode   Mode   `gorm:"size:16;not null;uniqueIndex:ux_protection_user_mode,priority:2" json:"mode"`

	SaverPeriod                string     `gorm:"size:7" json:"saver_period"` // YYYY-MM
	StreakSaversUsedThisPeriod int        `gorm:"not null;default:0" json:"streak_savers_used_this_period"`
	PendingRescueDate          *time.Time `gorm:"type:date" json:"pending_rescue_date"`

	HolidayActive        bool       `gorm:"not null;default:false" json:"holiday_active"`
	HolidayStart         *time.Time `gorm:"type:date" json:"holiday_start"`
	HolidayEnd           *time.Time `gorm:"type:date" json:"holiday_end"`
	HolidayYear          int        `gorm:"not null;default:0" json:"holiday_year"`
	HolidaysUsedThisYear int        `gorm:"not null;default:0" json:"holidays_used_this_year"`

	MissedDayFlag      bool       `gorm:"not null;default:false" json:"missed_day_flag"`
	StreakResetThrough *time.Time `gorm:"type:date" json:"streak_reset_through"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for ProtectionState model.
func (ProtectionState) TableName() string {
	return "protection_states"
}

// SaverPeriodKey returns the allowance period a date falls in.
func SaverPeriodKey(t time.Time) string {
	return Day(t).Format("2006-01")
}

// RollPeriods resets counters whose period ended before today.
// It reports whether anything changed.
func (p *ProtectionState) RollPeriods(today time.Time) bool {
	changed := false
	if period := SaverPeriodKey(today); p.SaverPeriod != period {
		p.SaverPeriod = period
		p.StreakSaversUsedThisPeriod = 0
		changed = true
	}
	if year := Day(today).Year(); p.HolidayYear != year {
		p.HolidayYear = year
		p.HolidaysUsedThisYear = 0
		changed = true
	}
	return changed
}

// HolidayCovers reports whether an active holiday covers the date.
func (p *ProtectionState) HolidayCovers(date time.Time) bool {
	if !p.HolidayActive || p.HolidayStart == nil || p.HolidayEnd == nil {
		return false
	}
	d := Day(date)
	return !d.Before(Day(*p.HolidayStart)) && !d.After(Day(*p.HolidayEnd))
}

// Entitlements describes a user's protection allowances.
type Entitlements struct {
	IsPro                bool `json:"is_pro"`
	StreakSaverAllowance int  `json:"streak_saver_allowance"`
	HolidayAllowance     int  `json:"holiday_allowance"`
	HolidayDurationDays  int  `json:"holiday_duration_days"`
}
