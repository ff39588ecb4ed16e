package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/datestreak/internal/models"
)

func TestProtectionRepository_GetOrCreate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProtectionRepository(db)
	ctx := context.Background()

	first, err := repo.GetOrCreate(ctx, "alice", models.ModeRegional)
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	again, err := repo.GetOrCreate(ctx, "alice", models.ModeRegional)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	personal, err := repo.GetOrCreate(ctx, "alice", models.ModePersonal)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, personal.ID)
}

func TestProtectionRepository_ConsumeRescueOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProtectionRepository(db)
	ctx := context.Background()

	state, err := repo.GetOrCreate(ctx, "alice", models.ModeRegional)
	require.NoError(t, err)
	require.NoError(t, repo.ArmRescue(ctx, state.ID, day(2025, 1, 9)))

	ok, err := repo.ConsumeRescue(ctx, "alice", models.ModeRegional, day(2025, 1, 9))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ConsumeRescue(ctx, "alice", models.ModeRegional, day(2025, 1, 9))
	require.NoError(t, err)
	assert.False(t, ok, "a retried rescue must not charge twice")

	state, err = repo.GetOrCreate(ctx, "alice", models.ModeRegional)
	require.NoError(t, err)
	assert.Equal(t, 1, state.StreakSaversUsedThisPeriod)
	assert.Nil(t, state.PendingRescueDate)
}

func TestProtectionRepository_ClearRescue(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProtectionRepository(db)
	ctx := context.Background()

	state, err := repo.GetOrCreate(ctx, "alice", models.ModeRegional)
	require.NoError(t, err)
	require.NoError(t, repo.ArmRescue(ctx, state.ID, day(2025, 1, 9)))
	require.NoError(t, repo.ClearRescue(ctx, "alice", models.ModeRegional, day(2025, 1, 9)))

	state, err = repo.GetOrCreate(ctx, "alice", models.ModeRegional)
	require.NoError(t, err)
	assert.Nil(t, state.PendingRescueDate)
	assert.Equal(t, 0, state.StreakSaversUsedThisPeriod)
}

func TestProtectionRepository_StartHolidayChargesOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProtectionRepository(db)
	ctx := context.Background()

	state, err := repo.GetOrCreate(ctx, "alice", models.ModePersonal)
	require.NoError(t, err)

	charged, err := repo.StartHoliday(ctx, state.ID, day(2025, 1, 5), day(2025, 1, 11))
	require.NoError(t, err)
	assert.True(t, charged)

	charged, err = repo.StartHoliday(ctx, state.ID, day(2025, 1, 5), day(2025, 1, 11))
	require.NoError(t, err)
	assert.False(t, charged)

	state, err = repo.GetOrCreate(ctx, "alice", models.ModePersonal)
	require.NoError(t, err)
	assert.True(t, state.HolidayActive)
	assert.Equal(t, 1, state.HolidaysUsedThisYear)
	assert.True(t, state.HolidayCovers(day(2025, 1, 8)))
	assert.False(t, state.HolidayCovers(day(2025, 1, 12)))

	require.NoError(t, repo.EndHoliday(ctx, state.ID))
	state, err = repo.GetOrCreate(ctx, "alice", models.ModePersonal)
	require.NoError(t, err)
	assert.False(t, state.HolidayActive)
}

func TestProtectionRepository_ResetStreakIsMonotonic(t *testing.T) {
	db := setupTestDB(t)
	repo := NewProtectionRepository(db)
	ctx := context.Background()

	state, err := repo.GetOrCreate(ctx, "alice", models.ModeRegional)
	require.NoError(t, err)
	require.NoError(t, repo.SetMissedDay(ctx, state.ID, true))

	require.NoError(t, repo.ResetStreak(ctx, state.ID, day(2025, 1, 10)))
	require.NoError(t, repo.ResetStreak(ctx, state.ID, day(2025, 1, 5)))

	state, err = repo.GetOrCreate(ctx, "alice", models.ModeRegional)
	require.NoError(t, err)
	require.NotNil(t, state.StreakResetThrough)
	assert.Equal(t, day(2025, 1, 10), models.Day(*state.StreakResetThrough))
	assert.False(t, state.MissedDayFlag)
}
