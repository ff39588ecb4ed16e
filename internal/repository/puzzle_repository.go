package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/datestreak/internal/models"
)

// PuzzleRepository stores puzzle allocations per mode.
type PuzzleRepository struct {
	db *DB
}

// NewPuzzleRepository creates a new puzzle repository.
func NewPuzzleRepository(db *DB) *PuzzleRepository {
	return &PuzzleRepository{db: db}
}

func (r *PuzzleRepository) table(ctx context.Context, mode models.Mode) *gorm.DB {
	return r.db.WithContext(ctx).Table(mode.Binding().PuzzleTable)
}

// Lookup returns the allocation of an owner for a date, or nil if none exists.
func (r *PuzzleRepository) Lookup(ctx context.Context, mode models.Mode, owner string, date time.Time) (*models.Puzzle, error) {
	var puzzle models.Puzzle
	err := r.table(ctx, mode).
		Where("owner = ? AND date = ?", owner, models.Day(date)).
		First(&puzzle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &puzzle, nil
}

// GetByID retrieves an allocation by its ID.
func (r *PuzzleRepository) GetByID(ctx context.Context, mode models.Mode, id uint) (*models.Puzzle, error) {
	var puzzle models.Puzzle
	err := r.table(ctx, mode).Where("id = ?", id).First(&puzzle).Error
	if err != nil {
		return nil, err
	}
	return &puzzle, nil
}

// Upsert stores an allocation, replacing the answer of an existing one for
// the same owner and date. A synthesized placeholder becomes a real puzzle.
func (r *PuzzleRepository) Upsert(ctx context.Context, mode models.Mode, puzzle *models.Puzzle) error {
	puzzle.Date = models.Day(puzzle.Date)
	err := r.table(ctx, mode).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"solution", "digit_format", "synthesized"}),
		}).
		Create(puzzle).Error
	if err != nil {
		return err
	}
	if puzzle.ID == 0 {
		stored, err := r.Lookup(ctx, mode, puzzle.Owner, puzzle.Date)
		if err != nil {
			return err
		}
		if stored != nil {
			puzzle.ID = stored.ID
		}
	}
	return nil
}

// EnsurePlaceholder returns the allocation for (owner, date), creating a
// synthesized one without answer content if none exists. Concurrent creation
// falls back to the stored row.
func (r *PuzzleRepository) EnsurePlaceholder(ctx context.Context, mode models.Mode, owner string, date time.Time) (*models.Puzzle, error) {
	existing, err := r.Lookup(ctx, mode, owner, date)
	if err != nil || existing != nil {
		return existing, err
	}

	puzzle := &models.Puzzle{
		Owner:       owner,
		Date:        models.Day(date),
		Synthesized: true,
	}
	err = r.table(ctx, mode).Create(puzzle).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return r.Lookup(ctx, mode, owner, date)
	}
	if err != nil {
		return nil, err
	}
	return puzzle, nil
}

