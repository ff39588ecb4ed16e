package protection

import (
	"context"
	"fmt"
	"sort"
	"time"

	prommetrics "github.com/aimd54/datestreak/internal/metrics"
	"github.com/aimd54/datestreak/internal/models"
)

// ActivateHoliday starts holiday mode and backfills protected days from
// today backwards. startDate, when set, is the first day to protect; it must
// fall inside the lookback window. With no streak to protect only today is
// covered. The returned dates are sorted and include days that were already
// protected.
//
// A failed row write stops the walk. Days written before the failure stay
// protected and are returned along with an ErrPartialProtection error.
func (s *Service) ActivateHoliday(ctx context.Context, sess models.Session, mode models.Mode, startDate *time.Time) ([]time.Time, error) {
	today := models.Day(sess.Today)
	start := today
	if startDate != nil {
		start = models.Day(*startDate)
		if start.After(today) || models.DaysBetween(today, start) >= s.lookback {
			return nil, ErrInvalidStartDate
		}
	}

	state, err := s.state(ctx, sess, mode)
	if err != nil {
		return nil, err
	}
	ent, err := s.entitlements.For(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entitlements: %w", err)
	}
	if !state.HolidayActive && remaining(ent.HolidayAllowance, state.HolidaysUsedThisYear) == 0 {
		return nil, ErrAllowanceExhausted
	}

	days, err := s.walkLength(ctx, sess, mode)
	if err != nil {
		return nil, err
	}
	if startDate != nil {
		if n := models.DaysBetween(today, start) + 1; n < days {
			days = n
		}
	}

	duration := ent.HolidayDurationDays
	if duration < 1 {
		duration = 1
	}
	charged, err := s.states.StartHoliday(ctx, state.ID, start, models.AddDays(today, duration-1))
	if err != nil {
		return nil, fmt.Errorf("failed to start holiday: %w", err)
	}
	if charged {
		prommetrics.RecordHolidayActivation(string(mode), "charged")
	} else {
		prommetrics.RecordHolidayActivation(string(mode), "already_active")
	}

	dates, walkErr := s.backfill(ctx, sess, mode, days)

	s.log.Info().
		Str("user_id", sess.UserID).
		Str("mode", string(mode)).
		Bool("charged", charged).
		Int("protected_days", len(dates)).
		Msg("Holiday activated")

	if _, err := s.streaks.Refresh(ctx, sess, mode); err != nil {
		s.log.Warn().Err(err).Str("user_id", sess.UserID).Msg("Failed to refresh snapshot after holiday")
	}
	return dates, walkErr
}

// walkLength returns how many days back from today the backfill may go.
// Without a live streak there is nothing to bridge and only today counts.
func (s *Service) walkLength(ctx context.Context, sess models.Session, mode models.Mode) (int, error) {
	last, err := s.attempts.LastValidDate(ctx, mode, sess.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to load last valid date: %w", err)
	}
	if last == nil || models.DaysBetween(sess.Today, *last) > s.lookback {
		return 1, nil
	}
	current, err := s.streaks.StreakAt(ctx, sess.UserID, mode, *last)
	if err != nil {
		return 0, fmt.Errorf("failed to compute streak: %w", err)
	}
	if current == 0 {
		return 1, nil
	}
	return s.lookback, nil
}

// backfill walks from today back over at most days days and marks each
// missing or unfinished day as protected. It stops at the first finished or
// counted day.
func (s *Service) backfill(ctx context.Context, sess models.Session, mode models.Mode, days int) ([]time.Time, error) {
	var dates []time.Time
	today := models.Day(sess.Today)

	for i := 0; i < days; i++ {
		date := models.AddDays(today, -i)

		stop, err := s.protectDay(ctx, sess, mode, date)
		if err != nil {
			sortDates(dates)
			prommetrics.RecordProtectedDays(string(mode), len(dates))
			s.log.Error().
				Err(err).
				Str("user_id", sess.UserID).
				Str("mode", string(mode)).
				Str("date", models.DateKey(date)).
				Int("protected_days", len(dates)).
				Msg("Backfill stopped on failed write")
			return dates, fmt.Errorf("%w: %s: %w", ErrPartialProtection, models.DateKey(date), err)
		}
		if stop {
			break
		}
		dates = append(dates, date)
	}

	sortDates(dates)
	prommetrics.RecordProtectedDays(string(mode), len(dates))
	return dates, nil
}

// protectDay makes date protected. stop is true when the day already has a
// finished game or counts towards the streak, which ends the walk.
func (s *Service) protectDay(ctx context.Context, sess models.Session, mode models.Mode, date time.Time) (stop bool, err error) {
	puzzle, err := s.allocator.Resolve(ctx, mode, sess.Owner(mode), date)
	if err != nil {
		return false, err
	}

	row, err := s.attempts.FindByPuzzle(ctx, mode, sess.UserID, puzzle.ID)
	if err != nil {
		return false, err
	}
	if row == nil {
		row, _, err = s.attempts.Ensure(ctx, mode, &models.Attempt{
			UserID:      sess.UserID,
			PuzzleID:    puzzle.ID,
			PuzzleDate:  date,
			Result:      models.ResultPending,
			DayStatus:   models.DayStatusPtr(models.DayProtected),
			DigitFormat: puzzle.DigitFormat,
		})
		if err != nil {
			return false, err
		}
	}

	switch {
	case row.IsFinal():
		return true, nil
	case row.DayStatus == nil:
		return false, s.attempts.SetDayStatus(ctx, mode, row.ID, models.DayProtected)
	case *row.DayStatus == models.DayCounted:
		return true, nil
	default:
		return false, nil
	}
}

func sortDates(dates []time.Time) {
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
}
