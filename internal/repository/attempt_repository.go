package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/datestreak/internal/models"
)

// EnsureResult tells how Ensure obtained the attempt row.
type EnsureResult int

// Ensure outcomes.
const (
	EnsureFound EnsureResult = iota
	EnsureCreated
	// EnsureAdopted means the insert lost a race and the concurrent row was used.
	EnsureAdopted
)

// AttemptRepository is the remote attempt store. Every call is scoped to a
// mode and goes to that mode's attempt and guess tables.
type AttemptRepository struct {
	db *DB
}

// NewAttemptRepository creates a new attempt repository.
func NewAttemptRepository(db *DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

func (r *AttemptRepository) attempts(ctx context.Context, mode models.Mode) *gorm.DB {
	return r.db.WithContext(ctx).Table(mode.Binding().AttemptTable)
}

func (r *AttemptRepository) guesses(ctx context.Context, mode models.Mode) *gorm.DB {
	return r.db.WithContext(ctx).Table(mode.Binding().GuessTable)
}

// FindByPuzzle returns the user's attempt at a puzzle with its guesses,
// or nil if the user has no row for it.
func (r *AttemptRepository) FindByPuzzle(ctx context.Context, mode models.Mode, userID string, puzzleID uint) (*models.Attempt, error) {
	var attempt models.Attempt
	err := r.attempts(ctx, mode).
		Where("user_id = ? AND puzzle_id = ?", userID, puzzleID).
		First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadGuesses(ctx, mode, &attempt); err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *AttemptRepository) loadGuesses(ctx context.Context, mode models.Mode, attempt *models.Attempt) error {
	var rows []models.Guess
	err := r.guesses(ctx, mode).
		Where("attempt_id = ?", attempt.ID).
		Order("ordinal ASC").
		Find(&rows).Error
	if err != nil {
		return err
	}

	attempt.Guesses = make([]string, 0, len(rows))
	for _, g := range rows {
		attempt.Guesses = append(attempt.Guesses, g.Value)
	}
	return nil
}

// Ensure returns the row for (user, puzzle), creating it from attempt when
// absent. A uniqueness violation on insert means another device created the
// row first; the existing row is re-queried and returned instead.
func (r *AttemptRepository) Ensure(ctx context.Context, mode models.Mode, attempt *models.Attempt) (*models.Attempt, EnsureResult, error) {
	existing, err := r.FindByPuzzle(ctx, mode, attempt.UserID, attempt.PuzzleID)
	if err != nil {
		return nil, EnsureFound, err
	}
	if existing != nil {
		return existing, EnsureFound, nil
	}

	row := *attempt
	row.ID = 0
	row.PuzzleDate = models.Day(row.PuzzleDate)
	if row.Result == "" {
		row.Result = models.ResultPending
	}
	row.Guesses = nil

	err = r.attempts(ctx, mode).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		existing, err = r.FindByPuzzle(ctx, mode, attempt.UserID, attempt.PuzzleID)
		if err != nil {
			return nil, EnsureAdopted, err
		}
		if existing == nil {
			return nil, EnsureAdopted, errors.New("attempt vanished after duplicate insert")
		}
		return existing, EnsureAdopted, nil
	}
	if err != nil {
		return nil, EnsureCreated, err
	}

	row.Guesses = []string{}
	return &row, EnsureCreated, nil
}

// AppendGuesses stores guesses by ordinal. Ordinals already stored are kept,
// so replaying the same list is a no-op. num_guesses only moves forward.
func (r *AttemptRepository) AppendGuesses(ctx context.Context, mode models.Mode, attemptID uint, guesses []string) error {
	if len(guesses) == 0 {
		return nil
	}

	now := time.Now()
	rows := make([]models.Guess, 0, len(guesses))
	for i, g := range guesses {
		rows = append(rows, models.Guess{AttemptID: attemptID, Ordinal: i + 1, Value: g, CreatedAt: now})
	}

	err := r.guesses(ctx, mode).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return err
	}

	return r.attempts(ctx, mode).
		Where("id = ? AND num_guesses < ?", attemptID, len(guesses)).
		Updates(map[string]interface{}{
			"num_guesses": len(guesses),
			"updated_at":  now,
		}).Error
}

// Finalize writes the terminal state in one update. It only applies to a
// pending row; false means the row was already final and was left as is.
// A nil dayStatus keeps whatever status the row has, so a protected day
// stays protected when it is played afterwards.
func (r *AttemptRepository) Finalize(ctx context.Context, mode models.Mode, attemptID uint, result models.Result, numGuesses int, dayStatus *int, completedAt time.Time) (bool, error) {
	updates := map[string]interface{}{
		"result":       result,
		"num_guesses":  numGuesses,
		"completed_at": completedAt,
		"updated_at":   time.Now(),
	}
	if dayStatus != nil {
		updates["day_status"] = *dayStatus
	}

	res := r.attempts(ctx, mode).
		Where("id = ? AND result = ?", attemptID, models.ResultPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetDayStatus changes only the day status of a row.
func (r *AttemptRepository) SetDayStatus(ctx context.Context, mode models.Mode, attemptID uint, status int) error {
	return r.attempts(ctx, mode).
		Where("id = ?", attemptID).
		Updates(map[string]interface{}{
			"day_status": status,
			"updated_at": time.Now(),
		}).Error
}

// History returns every row that can influence stats: a day status is set
// or the game is over. Rows are ordered by puzzle date.
func (r *AttemptRepository) History(ctx context.Context, mode models.Mode, userID string) ([]models.Attempt, error) {
	var attempts []models.Attempt
	err := r.attempts(ctx, mode).
		Where("user_id = ? AND (day_status IS NOT NULL OR result <> ?)", userID, models.ResultPending).
		Order("puzzle_date ASC").
		Find(&attempts).Error
	return attempts, err
}

// LastValidDate returns the latest puzzle date with a non-null day status.
func (r *AttemptRepository) LastValidDate(ctx context.Context, mode models.Mode, userID string) (*time.Time, error) {
	var attempt models.Attempt
	err := r.attempts(ctx, mode).
		Where("user_id = ? AND day_status IS NOT NULL", userID).
		Order("puzzle_date DESC").
		First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	date := models.Day(attempt.PuzzleDate)
	return &date, nil
}

// DistinctUsers returns every user with at least one attempt in the mode.
func (r *AttemptRepository) DistinctUsers(ctx context.Context, mode models.Mode) ([]string, error) {
	var users []string
	err := r.attempts(ctx, mode).
		Distinct("user_id").
		Order("user_id ASC").
		Pluck("user_id", &users).Error
	return users, err
}
