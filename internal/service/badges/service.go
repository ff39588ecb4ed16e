// Package badges provides badge awarding and management services.
package badges

import (
	"context"
	"errors"
	"fmt"
	"time"

	prommetrics "github.com/aimd54/datestreak/internal/metrics"
	"github.com/aimd54/datestreak/internal/models"
	"github.com/aimd54/datestreak/internal/repository"
	"github.com/aimd54/datestreak/pkg/logger"
)

// ErrUserBadgeNotFound is returned by MarkSeen for an unknown row.
var ErrUserBadgeNotFound = errors.New("user badge not found")

// BadgeRepository interface for badge operations.
type BadgeRepository interface {
	GetAll() ([]models.Badge, error)
	Upsert(badge *models.Badge) error
	FindByCriterion(ctx context.Context, category string, threshold int) (*models.Badge, error)
	Award(ctx context.Context, userID string, badgeID uint, region string, mode models.Mode, awardKey string, at time.Time) (*models.UserBadge, repository.AwardOutcome, error)
	GetUserBadges(ctx context.Context, userID string) ([]models.UserBadge, error)
	MarkSeen(ctx context.Context, userBadgeID uint, userID string) (bool, error)
	GetBadgeHoldersCount(badgeID uint) (int64, error)
}

// Result is a badge earned by one win, first time or again.
type Result struct {
	UserBadgeID uint         `json:"user_badge_id"`
	Badge       models.Badge `json:"badge"`
	AwardCount  int          `json:"award_count"`
	Repeat      bool         `json:"repeat"`
}

// Service handles badge awarding.
type Service struct {
	badgeRepo BadgeRepository
	log       *logger.Logger
	now       func() time.Time
}

// NewService creates a new badge service.
func NewService(badgeRepo *repository.BadgeRepository, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(badgeRepo, log)
}

// NewServiceWithInterfaces creates a new badge service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(badgeRepo BadgeRepository, log *logger.Logger) *Service {
	return &Service{
		badgeRepo: badgeRepo,
		log:       log,
		now:       time.Now,
	}
}

// CheckAndAward awards the badge defined for the criterion, if any. Badge
// problems must never block a game from completing, so failures are logged
// and reported as no award.
func (s *Service) CheckAndAward(ctx context.Context, sess models.Session, mode models.Mode, c Criterion) *Result {
	badge, err := s.badgeRepo.FindByCriterion(ctx, c.Category, c.Value)
	if err != nil {
		s.fail(err, sess, mode, c, "Failed to look up badge")
		return nil
	}
	if badge == nil {
		return nil
	}

	award, outcome, err := s.badgeRepo.Award(ctx, sess.UserID, badge.ID, sess.Region, mode, c.AwardKey, s.now())
	if err != nil {
		s.fail(err, sess, mode, c, "Failed to award badge")
		return nil
	}
	if outcome == repository.AwardUnchanged {
		return nil
	}

	kind := "first"
	if outcome == repository.AwardRepeat {
		kind = "repeat"
	}
	prommetrics.RecordBadgeAwarded(badge.Name, string(mode), kind)

	s.log.Info().
		Str("user_id", sess.UserID).
		Str("region", sess.Region).
		Str("mode", string(mode)).
		Str("badge", badge.Name).
		Int("award_count", award.AwardCount).
		Msg("Badge awarded")

	return &Result{
		UserBadgeID: award.ID,
		Badge:       *badge,
		AwardCount:  award.AwardCount,
		Repeat:      outcome == repository.AwardRepeat,
	}
}

func (s *Service) fail(err error, sess models.Session, mode models.Mode, c Criterion, msg string) {
	prommetrics.RecordBadgeFailure()
	s.log.Error().
		Err(err).
		Str("user_id", sess.UserID).
		Str("mode", string(mode)).
		Str("category", c.Category).
		Int("value", c.Value).
		Msg(msg)
}

// AwardForWin runs every badge check a won game qualifies for.
func (s *Service) AwardForWin(ctx context.Context, sess models.Session, mode models.Mode, win Win) []Result {
	var results []Result
	for _, c := range CriteriaForWin(win) {
		if r := s.CheckAndAward(ctx, sess, mode, c); r != nil {
			results = append(results, *r)
		}
	}
	return results
}

// MarkSeen flags a user badge as seen. Repeated calls succeed.
func (s *Service) MarkSeen(ctx context.Context, userID string, userBadgeID uint) error {
	found, err := s.badgeRepo.MarkSeen(ctx, userBadgeID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark badge seen: %w", err)
	}
	if !found {
		return ErrUserBadgeNotFound
	}
	return nil
}

// GetUserBadges retrieves all badges earned by a user.
func (s *Service) GetUserBadges(ctx context.Context, userID string) ([]models.UserBadge, error) {
	return s.badgeRepo.GetUserBadges(ctx, userID)
}

// GetBadgeCatalog retrieves all available badges.
//
//nolint:revive // ctx reserved for future context-aware operations (tracing, cancellation)
func (s *Service) GetBadgeCatalog(ctx context.Context) ([]models.Badge, error) {
	return s.badgeRepo.GetAll()
}

// GetBadgeHoldersCount retrieves the count of users who have earned a badge.
//
//nolint:revive // ctx reserved for future context-aware operations (tracing, cancellation)
func (s *Service) GetBadgeHoldersCount(ctx context.Context, badgeID uint) (int64, error) {
	return s.badgeRepo.GetBadgeHoldersCount(badgeID)
}
