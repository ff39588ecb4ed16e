// Package allocation resolves which puzzle an owner plays on a given date.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aimd54/datestreak/internal/models"
	"github.com/aimd54/datestreak/internal/repository"
	"github.com/aimd54/datestreak/pkg/logger"
)

// ErrNoAllocation is returned when no puzzle is allocated and the mode may
// not synthesize one.
var ErrNoAllocation = errors.New("no puzzle allocated")

// PuzzleRepository interface for allocation storage.
type PuzzleRepository interface {
	Lookup(ctx context.Context, mode models.Mode, owner string, date time.Time) (*models.Puzzle, error)
	GetByID(ctx context.Context, mode models.Mode, id uint) (*models.Puzzle, error)
	Upsert(ctx context.Context, mode models.Mode, puzzle *models.Puzzle) error
	EnsurePlaceholder(ctx context.Context, mode models.Mode, owner string, date time.Time) (*models.Puzzle, error)
}

// Service answers allocation queries for both modes.
type Service struct {
	puzzles PuzzleRepository
	log     *logger.Logger
}

// NewService creates a new allocation service.
func NewService(puzzles *repository.PuzzleRepository, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(puzzles, log)
}

// NewServiceWithInterfaces creates a new allocation service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(puzzles PuzzleRepository, log *logger.Logger) *Service {
	return &Service{
		puzzles: puzzles,
		log:     log,
	}
}

// Lookup returns the stored allocation for (owner, date) or ErrNoAllocation.
func (s *Service) Lookup(ctx context.Context, mode models.Mode, owner string, date time.Time) (*models.Puzzle, error) {
	puzzle, err := s.puzzles.Lookup(ctx, mode, owner, date)
	if err != nil {
		return nil, fmt.Errorf("failed to look up allocation: %w", err)
	}
	if puzzle == nil {
		return nil, ErrNoAllocation
	}
	return puzzle, nil
}

// ByID returns an allocation by id or ErrNoAllocation.
func (s *Service) ByID(ctx context.Context, mode models.Mode, id uint) (*models.Puzzle, error) {
	puzzle, err := s.puzzles.GetByID(ctx, mode, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoAllocation
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get allocation: %w", err)
	}
	return puzzle, nil
}

// Resolve returns the allocation for (owner, date). Modes that allow it get a
// synthesized placeholder when none exists; placeholders never carry a
// solution.
func (s *Service) Resolve(ctx context.Context, mode models.Mode, owner string, date time.Time) (*models.Puzzle, error) {
	puzzle, err := s.Lookup(ctx, mode, owner, date)
	if err == nil || !errors.Is(err, ErrNoAllocation) {
		return puzzle, err
	}
	if !mode.Binding().SynthesizeFallback {
		return nil, ErrNoAllocation
	}

	puzzle, err = s.puzzles.EnsurePlaceholder(ctx, mode, owner, date)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize allocation: %w", err)
	}

	s.log.Info().
		Str("mode", string(mode)).
		Str("owner", owner).
		Str("date", models.DateKey(date)).
		Uint("puzzle_id", puzzle.ID).
		Msg("Synthesized placeholder allocation")

	return puzzle, nil
}

// Import stores every feed entry, replacing existing answers. It returns the
// number of allocations written before the first failure.
func (s *Service) Import(ctx context.Context, feed *Feed) (int, error) {
	written := 0
	for i := range feed.Entries {
		entry := &feed.Entries[i]
		mode, puzzle, err := entry.Puzzle()
		if err != nil {
			return written, fmt.Errorf("entries[%d]: %w", i, err)
		}
		if err := s.puzzles.Upsert(ctx, mode, puzzle); err != nil {
			return written, fmt.Errorf("entries[%d]: failed to store allocation: %w", i, err)
		}
		written++
	}

	s.log.Info().Int("count", written).Msg("Imported puzzle allocations")
	return written, nil
}
