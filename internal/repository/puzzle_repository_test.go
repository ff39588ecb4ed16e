package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/datestreak/internal/models"
)

func TestPuzzleRepository_UpsertAndLookup(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPuzzleRepository(db)
	ctx := context.Background()

	p := &models.Puzzle{Owner: "FR", Date: day(2025, 1, 10), Solution: "1969-07-20", DigitFormat: "DDMMYY"}
	require.NoError(t, repo.Upsert(ctx, models.ModeRegional, p))
	require.NotZero(t, p.ID)

	got, err := repo.Lookup(ctx, models.ModeRegional, "FR", day(2025, 1, 10))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "1969-07-20", got.Solution)
	assert.True(t, got.Playable())

	// Re-importing the same day replaces the answer and keeps the id.
	replacement := &models.Puzzle{Owner: "FR", Date: day(2025, 1, 10), Solution: "1989-11-09", DigitFormat: "DDMMYY"}
	require.NoError(t, repo.Upsert(ctx, models.ModeRegional, replacement))

	got, err = repo.GetByID(ctx, models.ModeRegional, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "1989-11-09", got.Solution)

	other, err := repo.Lookup(ctx, models.ModeRegional, "DE", day(2025, 1, 10))
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestPuzzleRepository_EnsurePlaceholder(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPuzzleRepository(db)
	ctx := context.Background()

	first, err := repo.EnsurePlaceholder(ctx, models.ModeRegional, "FR", day(2025, 1, 9))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.True(t, first.Synthesized)
	assert.False(t, first.Playable(), "placeholders never carry an answer")

	second, err := repo.EnsurePlaceholder(ctx, models.ModeRegional, "FR", day(2025, 1, 9))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// A real puzzle is never replaced by a placeholder.
	stored := &models.Puzzle{Owner: "FR", Date: day(2025, 1, 8), Solution: "2000-01-01"}
	require.NoError(t, repo.Upsert(ctx, models.ModeRegional, stored))
	kept, err := repo.EnsurePlaceholder(ctx, models.ModeRegional, "FR", day(2025, 1, 8))
	require.NoError(t, err)
	assert.Equal(t, stored.ID, kept.ID)
	assert.True(t, kept.Playable())
}
