package protection

import (
	"context"
	"fmt"
	"time"

	prommetrics "github.com/aimd54/datestreak/internal/metrics"
	"github.com/aimd54/datestreak/internal/models"
)

// OfferKind is the protection a user is offered after missing days.
type OfferKind string

// Offer kinds.
const (
	// OfferNone: nothing to protect, either no history or no streak.
	OfferNone        OfferKind = "none"
	OfferSafe        OfferKind = "safe"
	OfferStreakSaver OfferKind = "streak_saver"
	OfferHoliday     OfferKind = "holiday"
	OfferBroken      OfferKind = "broken"
)

// Offer is the protection status of one user and mode on a given day.
type Offer struct {
	Kind              OfferKind   `json:"kind"`
	Gap               int         `json:"gap"`
	LastValidDate     *time.Time  `json:"last_valid_date,omitempty"`
	StreakAtRisk      int         `json:"streak_at_risk"`
	SaversRemaining   int         `json:"savers_remaining"`
	HolidaysRemaining int         `json:"holidays_remaining"`
	HolidayActive     bool        `json:"holiday_active"`
	HolidayEnd        *time.Time  `json:"holiday_end,omitempty"`
	ProtectedDates    []time.Time `json:"protected_dates,omitempty"`
	IsPro             bool        `json:"is_pro"`
}

// Evaluate classifies the gap since the last day with a day status and
// returns the offer to show. An active holiday is extended up to today
// first, an expired one is ended.
func (s *Service) Evaluate(ctx context.Context, sess models.Session, mode models.Mode) (*Offer, error) {
	state, err := s.state(ctx, sess, mode)
	if err != nil {
		return nil, err
	}
	ent, err := s.entitlements.For(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entitlements: %w", err)
	}

	offer := &Offer{
		SaversRemaining:   remaining(ent.StreakSaverAllowance, state.StreakSaversUsedThisPeriod),
		HolidaysRemaining: remaining(ent.HolidayAllowance, state.HolidaysUsedThisYear),
		IsPro:             ent.IsPro,
	}

	if state.HolidayActive {
		if err := s.continueHoliday(ctx, sess, mode, state, offer); err != nil {
			return nil, err
		}
	}

	last, err := s.attempts.LastValidDate(ctx, mode, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load last valid date: %w", err)
	}
	if last == nil {
		offer.Kind = OfferNone
		return offer, nil
	}

	offer.LastValidDate = last
	offer.Gap = models.DaysBetween(sess.Today, *last)

	if offer.Gap <= 1 {
		offer.Kind = OfferSafe
		if state.MissedDayFlag {
			if err := s.states.SetMissedDay(ctx, state.ID, false); err != nil {
				return nil, fmt.Errorf("failed to clear missed day: %w", err)
			}
		}
		return offer, nil
	}

	if offer.Gap <= s.lookback {
		offer.StreakAtRisk, err = s.streaks.StreakAt(ctx, sess.UserID, mode, *last)
		if err != nil {
			return nil, fmt.Errorf("failed to compute streak at risk: %w", err)
		}
	}

	offer.Kind = s.classify(offer)
	if offer.Kind == OfferStreakSaver && !s.rescuable(ctx, sess, mode) {
		offer.Kind = OfferBroken
	}

	missed := offer.Kind == OfferStreakSaver || offer.Kind == OfferHoliday
	if missed != state.MissedDayFlag {
		if err := s.states.SetMissedDay(ctx, state.ID, missed); err != nil {
			return nil, fmt.Errorf("failed to set missed day: %w", err)
		}
	}

	prommetrics.RecordProtectionOffer(string(mode), string(offer.Kind))
	return offer, nil
}

func (s *Service) classify(offer *Offer) OfferKind {
	switch {
	case offer.Gap > s.lookback:
		return OfferBroken
	case offer.StreakAtRisk == 0:
		return OfferNone
	case offer.Gap == 2 && offer.SaversRemaining > 0:
		return OfferStreakSaver
	case offer.HolidaysRemaining > 0:
		return OfferHoliday
	default:
		return OfferBroken
	}
}

// rescuable reports whether yesterday can still be played: no row yet or an
// unfinished one.
func (s *Service) rescuable(ctx context.Context, sess models.Session, mode models.Mode) bool {
	yesterday := models.AddDays(sess.Today, -1)
	puzzle, err := s.allocator.Resolve(ctx, mode, sess.Owner(mode), yesterday)
	if err != nil || !puzzle.Playable() {
		return false
	}
	row, err := s.attempts.FindByPuzzle(ctx, mode, sess.UserID, puzzle.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", sess.UserID).Msg("Failed to inspect rescue day")
		return false
	}
	return row == nil || !row.IsFinal()
}

// continueHoliday protects the days of a running holiday up to today and
// ends it once past its last day.
func (s *Service) continueHoliday(ctx context.Context, sess models.Session, mode models.Mode, state *models.ProtectionState, offer *Offer) error {
	today := models.Day(sess.Today)
	if state.HolidayEnd == nil || today.After(models.Day(*state.HolidayEnd)) {
		if err := s.states.EndHoliday(ctx, state.ID); err != nil {
			return fmt.Errorf("failed to end holiday: %w", err)
		}
		state.HolidayActive = false
		s.log.Info().Str("user_id", sess.UserID).Str("mode", string(mode)).Msg("Holiday ended")
		return nil
	}

	offer.HolidayActive = true
	offer.HolidayEnd = state.HolidayEnd

	days := s.lookback
	if state.HolidayStart != nil {
		if n := models.DaysBetween(today, *state.HolidayStart) + 1; n < days {
			days = n
		}
	}
	dates, err := s.backfill(ctx, sess, mode, days)
	offer.ProtectedDates = dates
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", sess.UserID).Str("mode", string(mode)).Msg("Holiday extension incomplete")
	}
	return nil
}

func remaining(allowance, used int) int {
	if left := allowance - used; left > 0 {
		return left
	}
	return 0
}
