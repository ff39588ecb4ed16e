// Package protection classifies missed days and applies streak savers,
// holidays and declines.
package protection

import (
	"context"
	"errors"
	"fmt"
	"time"

	prommetrics "github.com/aimd54/datestreak/internal/metrics"
	"github.com/aimd54/datestreak/internal/models"
	"github.com/aimd54/datestreak/internal/repository"
	"github.com/aimd54/datestreak/internal/service/allocation"
	"github.com/aimd54/datestreak/internal/service/entitlements"
	"github.com/aimd54/datestreak/internal/service/streak"
	"github.com/aimd54/datestreak/pkg/logger"
)

// Errors returned to callers.
var (
	ErrNotOffered         = errors.New("protection is not offered right now")
	ErrAllowanceExhausted = errors.New("protection allowance exhausted")
	ErrPartialProtection  = errors.New("protection could not be fully applied")
	ErrInvalidStartDate   = errors.New("holiday start date outside the lookback window")
)

// AttemptRepository interface for the attempt rows touched by protection.
type AttemptRepository interface {
	FindByPuzzle(ctx context.Context, mode models.Mode, userID string, puzzleID uint) (*models.Attempt, error)
	Ensure(ctx context.Context, mode models.Mode, attempt *models.Attempt) (*models.Attempt, repository.EnsureResult, error)
	SetDayStatus(ctx context.Context, mode models.Mode, attemptID uint, status int) error
	LastValidDate(ctx context.Context, mode models.Mode, userID string) (*time.Time, error)
}

// StateRepository interface for protection bookkeeping.
type StateRepository interface {
	GetOrCreate(ctx context.Context, userID string, mode models.Mode) (*models.ProtectionState, error)
	Save(ctx context.Context, state *models.ProtectionState) error
	ArmRescue(ctx context.Context, stateID uint, date time.Time) error
	ConsumeRescue(ctx context.Context, userID string, mode models.Mode, date time.Time) (bool, error)
	ClearRescue(ctx context.Context, userID string, mode models.Mode, date time.Time) error
	StartHoliday(ctx context.Context, stateID uint, start, end time.Time) (bool, error)
	EndHoliday(ctx context.Context, stateID uint) error
	ResetStreak(ctx context.Context, stateID uint, through time.Time) error
	SetMissedDay(ctx context.Context, stateID uint, missed bool) error
}

// Allocator interface for resolving the puzzle of a past day.
type Allocator interface {
	Resolve(ctx context.Context, mode models.Mode, owner string, date time.Time) (*models.Puzzle, error)
}

// EntitlementProvider interface for allowance lookups.
type EntitlementProvider interface {
	For(ctx context.Context, userID string) (models.Entitlements, error)
}

// StreakService interface for streak reads and snapshot refreshes.
type StreakService interface {
	StreakAt(ctx context.Context, userID string, mode models.Mode, anchorDate time.Time) (int, error)
	Refresh(ctx context.Context, sess models.Session, mode models.Mode) (*models.StreakSnapshot, error)
}

// Service is the protection manager for both modes.
type Service struct {
	attempts     AttemptRepository
	states       StateRepository
	allocator    Allocator
	entitlements EntitlementProvider
	streaks      StreakService
	lookback     int
	log          *logger.Logger
}

// NewService creates a new protection service.
func NewService(
	attempts *repository.AttemptRepository,
	states *repository.ProtectionRepository,
	allocator *allocation.Service,
	provider *entitlements.Provider,
	streaks *streak.Service,
	lookbackLimit int,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(attempts, states, allocator, provider, streaks, lookbackLimit, log)
}

// NewServiceWithInterfaces creates a new protection service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	attempts AttemptRepository,
	states StateRepository,
	allocator Allocator,
	provider EntitlementProvider,
	streaks StreakService,
	lookbackLimit int,
	log *logger.Logger,
) *Service {
	return &Service{
		attempts:     attempts,
		states:       states,
		allocator:    allocator,
		entitlements: provider,
		streaks:      streaks,
		lookback:     lookbackLimit,
		log:          log.Component("protection"),
	}
}

// state loads the bookkeeping row and rolls allowance periods forward.
func (s *Service) state(ctx context.Context, sess models.Session, mode models.Mode) (*models.ProtectionState, error) {
	state, err := s.states.GetOrCreate(ctx, sess.UserID, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to load protection state: %w", err)
	}
	if state.RollPeriods(sess.Today) {
		if err := s.states.Save(ctx, state); err != nil {
			return nil, fmt.Errorf("failed to roll allowance periods: %w", err)
		}
	}
	return state, nil
}

// DayStatusFor decides the day status written when a game on puzzleDate
// ends with result. Only a win on today's puzzle or on the armed rescue day
// counts; a game lost while a holiday covers the day stays protected. Any
// other game, archive replays included, gets no status.
func (s *Service) DayStatusFor(ctx context.Context, sess models.Session, mode models.Mode, puzzleDate time.Time, result models.Result) (*int, error) {
	date := models.Day(puzzleDate)
	today := models.Day(sess.Today)

	if result == models.ResultWon && date.Equal(today) {
		return models.DayStatusPtr(models.DayCounted), nil
	}

	state, err := s.states.GetOrCreate(ctx, sess.UserID, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to load protection state: %w", err)
	}

	if result == models.ResultWon && state.PendingRescueDate != nil && models.Day(*state.PendingRescueDate).Equal(date) {
		return models.DayStatusPtr(models.DayCounted), nil
	}
	if !date.After(today) && state.HolidayCovers(date) {
		return models.DayStatusPtr(models.DayProtected), nil
	}
	return nil, nil
}

// SettleRescue charges the streak saver once a rescue game on puzzleDate is
// won, or drops the armed rescue if it was lost. Games on other days are
// ignored.
func (s *Service) SettleRescue(ctx context.Context, sess models.Session, mode models.Mode, puzzleDate time.Time, result models.Result) error {
	switch result {
	case models.ResultWon:
		consumed, err := s.states.ConsumeRescue(ctx, sess.UserID, mode, puzzleDate)
		if err != nil {
			return fmt.Errorf("failed to consume streak saver: %w", err)
		}
		if consumed {
			prommetrics.RecordStreakSaverUsed(string(mode))
			s.log.Info().
				Str("user_id", sess.UserID).
				Str("mode", string(mode)).
				Str("date", models.DateKey(puzzleDate)).
				Msg("Streak saver used")
		}
	case models.ResultLost:
		if err := s.states.ClearRescue(ctx, sess.UserID, mode, puzzleDate); err != nil {
			return fmt.Errorf("failed to clear rescue: %w", err)
		}
	}
	return nil
}

// UseStreakSaver arms a rescue of yesterday's puzzle and returns it. The
// allowance is charged when the rescue game is won.
func (s *Service) UseStreakSaver(ctx context.Context, sess models.Session, mode models.Mode) (*models.Puzzle, error) {
	offer, err := s.Evaluate(ctx, sess, mode)
	if err != nil {
		return nil, err
	}
	switch {
	case offer.Kind == OfferStreakSaver:
	case offer.Gap == 2 && offer.StreakAtRisk > 0 && offer.SaversRemaining <= 0:
		return nil, ErrAllowanceExhausted
	default:
		return nil, ErrNotOffered
	}

	yesterday := models.AddDays(sess.Today, -1)
	puzzle, err := s.allocator.Resolve(ctx, mode, sess.Owner(mode), yesterday)
	if err != nil {
		return nil, err
	}
	if !puzzle.Playable() {
		return nil, fmt.Errorf("%w: rescue puzzle for %s has no content", allocation.ErrNoAllocation, models.DateKey(yesterday))
	}

	state, err := s.state(ctx, sess, mode)
	if err != nil {
		return nil, err
	}
	if err := s.states.ArmRescue(ctx, state.ID, yesterday); err != nil {
		return nil, fmt.Errorf("failed to arm rescue: %w", err)
	}

	s.log.Info().
		Str("user_id", sess.UserID).
		Str("mode", string(mode)).
		Uint("puzzle_id", puzzle.ID).
		Msg("Streak saver rescue armed")

	return puzzle, nil
}

// Decline gives up on a missed day: the current streak drops to zero and the
// missed-day flag is cleared. It cannot be undone.
func (s *Service) Decline(ctx context.Context, sess models.Session, mode models.Mode) error {
	last, err := s.attempts.LastValidDate(ctx, mode, sess.UserID)
	if err != nil {
		return fmt.Errorf("failed to load last valid date: %w", err)
	}
	if last == nil || models.DaysBetween(sess.Today, *last) <= 1 {
		return ErrNotOffered
	}

	state, err := s.state(ctx, sess, mode)
	if err != nil {
		return err
	}
	if err := s.states.ResetStreak(ctx, state.ID, *last); err != nil {
		return fmt.Errorf("failed to reset streak: %w", err)
	}

	prommetrics.RecordProtectionOffer(string(mode), "declined")
	s.log.Info().
		Str("user_id", sess.UserID).
		Str("mode", string(mode)).
		Str("reset_through", models.DateKey(*last)).
		Msg("Protection declined, streak reset")

	if _, err := s.streaks.Refresh(ctx, sess, mode); err != nil {
		s.log.Warn().Err(err).Str("user_id", sess.UserID).Msg("Failed to refresh snapshot after decline")
	}
	return nil
}
