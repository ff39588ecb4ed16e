package protection

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/datestreak/internal/models"
	"github.com/aimd54/datestreak/internal/repository"
	"github.com/aimd54/datestreak/internal/service/allocation"
	"github.com/aimd54/datestreak/internal/service/streak"
	"github.com/aimd54/datestreak/pkg/logger"
)

func jan(d int) time.Time {
	return time.Date(2025, time.January, d, 0, 0, 0, 0, time.UTC)
}

// fakeAttempts keeps rows in memory. Puzzle ids equal the day of month.
type fakeAttempts struct {
	rows   []*models.Attempt
	failOn map[time.Time]bool
}

func (f *fakeAttempts) add(date time.Time, result models.Result, status *int, guesses int) *models.Attempt {
	a := &models.Attempt{
		ID:         uint(len(f.rows) + 1),
		UserID:     "alice",
		PuzzleID:   uint(date.Day()),
		PuzzleDate: date,
		Result:     result,
		DayStatus:  status,
		NumGuesses: guesses,
	}
	f.rows = append(f.rows, a)
	return a
}

func (f *fakeAttempts) byDate(date time.Time) *models.Attempt {
	for _, a := range f.rows {
		if a.PuzzleDate.Equal(date) {
			return a
		}
	}
	return nil
}

func (f *fakeAttempts) FindByPuzzle(_ context.Context, _ models.Mode, userID string, puzzleID uint) (*models.Attempt, error) {
	for _, a := range f.rows {
		if a.UserID == userID && a.PuzzleID == puzzleID {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeAttempts) Ensure(ctx context.Context, mode models.Mode, attempt *models.Attempt) (*models.Attempt, repository.EnsureResult, error) {
	if existing, _ := f.FindByPuzzle(ctx, mode, attempt.UserID, attempt.PuzzleID); existing != nil {
		return existing, repository.EnsureFound, nil
	}
	if f.failOn[models.Day(attempt.PuzzleDate)] {
		return nil, repository.EnsureCreated, errors.New("connection reset")
	}
	row := *attempt
	row.ID = uint(len(f.rows) + 1)
	f.rows = append(f.rows, &row)
	c := row
	return &c, repository.EnsureCreated, nil
}

func (f *fakeAttempts) SetDayStatus(_ context.Context, _ models.Mode, attemptID uint, status int) error {
	for _, a := range f.rows {
		if a.ID == attemptID {
			if f.failOn[a.PuzzleDate] {
				return errors.New("connection reset")
			}
			a.DayStatus = models.DayStatusPtr(status)
			return nil
		}
	}
	return errors.New("not found")
}

func (f *fakeAttempts) LastValidDate(_ context.Context, _ models.Mode, _ string) (*time.Time, error) {
	var last *time.Time
	for _, a := range f.rows {
		if a.DayStatus != nil && (last == nil || a.PuzzleDate.After(*last)) {
			d := a.PuzzleDate
			last = &d
		}
	}
	return last, nil
}

func (f *fakeAttempts) history() []models.Attempt {
	var out []models.Attempt
	for _, a := range f.rows {
		if a.DayStatus != nil || a.IsFinal() {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PuzzleDate.Before(out[j].PuzzleDate) })
	return out
}

type fakeStates struct {
	state models.ProtectionState
}

func (f *fakeStates) GetOrCreate(_ context.Context, userID string, mode models.Mode) (*models.ProtectionState, error) {
	if f.state.ID == 0 {
		f.state.ID = 1
		f.state.UserID = userID
		f.state.Mode = mode
	}
	s := f.state
	return &s, nil
}

func (f *fakeStates) Save(_ context.Context, state *models.ProtectionState) error {
	f.state = *state
	return nil
}

func (f *fakeStates) ArmRescue(_ context.Context, _ uint, date time.Time) error {
	d := models.Day(date)
	f.state.PendingRescueDate = &d
	f.state.MissedDayFlag = false
	return nil
}

func (f *fakeStates) ConsumeRescue(_ context.Context, _ string, _ models.Mode, date time.Time) (bool, error) {
	if f.state.PendingRescueDate == nil || !f.state.PendingRescueDate.Equal(models.Day(date)) {
		return false, nil
	}
	f.state.StreakSaversUsedThisPeriod++
	f.state.PendingRescueDate = nil
	return true, nil
}

func (f *fakeStates) ClearRescue(_ context.Context, _ string, _ models.Mode, date time.Time) error {
	if f.state.PendingRescueDate != nil && f.state.PendingRescueDate.Equal(models.Day(date)) {
		f.state.PendingRescueDate = nil
	}
	return nil
}

func (f *fakeStates) StartHoliday(_ context.Context, _ uint, start, end time.Time) (bool, error) {
	if f.state.HolidayActive {
		return false, nil
	}
	f.state.HolidayActive = true
	f.state.HolidayStart = &start
	f.state.HolidayEnd = &end
	f.state.HolidaysUsedThisYear++
	f.state.MissedDayFlag = false
	return true, nil
}

func (f *fakeStates) EndHoliday(_ context.Context, _ uint) error {
	f.state.HolidayActive = false
	return nil
}

func (f *fakeStates) ResetStreak(_ context.Context, _ uint, through time.Time) error {
	d := models.Day(through)
	f.state.StreakResetThrough = &d
	f.state.MissedDayFlag = false
	f.state.PendingRescueDate = nil
	return nil
}

func (f *fakeStates) SetMissedDay(_ context.Context, _ uint, missed bool) error {
	f.state.MissedDayFlag = missed
	return nil
}

type fakeAllocator struct {
	missing map[time.Time]bool
}

func (f *fakeAllocator) Resolve(_ context.Context, _ models.Mode, owner string, date time.Time) (*models.Puzzle, error) {
	if f.missing[models.Day(date)] {
		return nil, allocation.ErrNoAllocation
	}
	return &models.Puzzle{ID: uint(date.Day()), Owner: owner, Date: date, Solution: "1999-12-31"}, nil
}

type fakeEntitlements struct {
	ent models.Entitlements
}

func (f *fakeEntitlements) For(_ context.Context, _ string) (models.Entitlements, error) {
	return f.ent, nil
}

// fakeStreaks computes streaks from the fake rows with the real calculator.
type fakeStreaks struct {
	attempts  *fakeAttempts
	states    *fakeStates
	refreshes int
}

func (f *fakeStreaks) StreakAt(_ context.Context, _ string, _ models.Mode, anchor time.Time) (int, error) {
	return streak.Compute(f.attempts.history(), anchor, f.states.state.StreakResetThrough).CurrentStreak, nil
}

func (f *fakeStreaks) Refresh(_ context.Context, _ models.Session, _ models.Mode) (*models.StreakSnapshot, error) {
	f.refreshes++
	return &models.StreakSnapshot{}, nil
}

type fixture struct {
	attempts  *fakeAttempts
	states    *fakeStates
	allocator *fakeAllocator
	ent       *fakeEntitlements
	streaks   *fakeStreaks
	svc       *Service
}

func newFixture() *fixture {
	f := &fixture{
		attempts:  &fakeAttempts{failOn: map[time.Time]bool{}},
		states:    &fakeStates{},
		allocator: &fakeAllocator{missing: map[time.Time]bool{}},
		ent: &fakeEntitlements{ent: models.Entitlements{
			StreakSaverAllowance: 1,
			HolidayAllowance:     1,
			HolidayDurationDays:  7,
		}},
	}
	f.streaks = &fakeStreaks{attempts: f.attempts, states: f.states}
	f.svc = NewServiceWithInterfaces(f.attempts, f.states, f.allocator, f.ent, f.streaks, 7, logger.Nop())
	return f
}

func (f *fixture) won(d int) *models.Attempt {
	return f.attempts.add(jan(d), models.ResultWon, models.DayStatusPtr(models.DayCounted), 3)
}

func session(today time.Time) models.Session {
	return models.Session{UserID: "alice", Region: "FR", Today: today}
}

func TestActivateHoliday_StopsAtFinishedGame(t *testing.T) {
	f := newFixture()
	f.won(5)
	f.won(6)
	completed := f.won(7)

	dates, err := f.svc.ActivateHoliday(context.Background(), session(jan(10)), models.ModeRegional, nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{jan(8), jan(9), jan(10)}, dates)

	assert.Equal(t, models.ResultWon, completed.Result)
	assert.Equal(t, models.DayCounted, *completed.DayStatus)
	for _, d := range []int{8, 9, 10} {
		row := f.attempts.byDate(jan(d))
		require.NotNil(t, row, "day %d", d)
		assert.Equal(t, models.DayProtected, *row.DayStatus)
		assert.Equal(t, models.ResultPending, row.Result)
		assert.Zero(t, row.NumGuesses)
	}

	assert.True(t, f.states.state.HolidayActive)
	assert.Equal(t, 1, f.states.state.HolidaysUsedThisYear)
	assert.Equal(t, 1, f.streaks.refreshes)

	current, err := f.streaks.StreakAt(context.Background(), "alice", models.ModeRegional, jan(10))
	require.NoError(t, err)
	assert.Equal(t, 3, current, "protected days bridge the gap without adding to it")
}

func TestActivateHoliday_PartiallyPlayedKeepsGuesses(t *testing.T) {
	f := newFixture()
	f.won(7)
	partial := f.attempts.add(jan(9), models.ResultPending, nil, 2)

	dates, err := f.svc.ActivateHoliday(context.Background(), session(jan(10)), models.ModeRegional, nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{jan(8), jan(9), jan(10)}, dates)

	require.NotNil(t, partial.DayStatus)
	assert.Equal(t, models.DayProtected, *partial.DayStatus)
	assert.Equal(t, 2, partial.NumGuesses)
	assert.Equal(t, models.ResultPending, partial.Result)
}

func TestActivateHoliday_AlreadyProtectedIsIdempotent(t *testing.T) {
	f := newFixture()
	f.won(7)

	first, err := f.svc.ActivateHoliday(context.Background(), session(jan(10)), models.ModeRegional, nil)
	require.NoError(t, err)
	rows := len(f.attempts.rows)

	second, err := f.svc.ActivateHoliday(context.Background(), session(jan(10)), models.ModeRegional, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, f.attempts.rows, rows)
	assert.Equal(t, 1, f.states.state.HolidaysUsedThisYear, "a running holiday is not charged twice")
}

func TestActivateHoliday_NoStreakOnlyToday(t *testing.T) {
	f := newFixture()

	dates, err := f.svc.ActivateHoliday(context.Background(), session(jan(10)), models.ModeRegional, nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{jan(10)}, dates)
}

func TestActivateHoliday_StartDateLimitsWalk(t *testing.T) {
	f := newFixture()
	f.won(3)
	start := jan(8)

	dates, err := f.svc.ActivateHoliday(context.Background(), session(jan(10)), models.ModeRegional, &start)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{jan(8), jan(9), jan(10)}, dates)
	assert.Nil(t, f.attempts.byDate(jan(7)))

	tooEarly := jan(1)
	_, err = f.svc.ActivateHoliday(context.Background(), session(jan(10)), models.ModeRegional, &tooEarly)
	assert.ErrorIs(t, err, ErrInvalidStartDate)
}

func TestActivateHoliday_PartialFailureStopsWalk(t *testing.T) {
	f := newFixture()
	f.won(5)
	f.attempts.failOn[jan(8)] = true

	dates, err := f.svc.ActivateHoliday(context.Background(), session(jan(10)), models.ModeRegional, nil)
	assert.ErrorIs(t, err, ErrPartialProtection)
	assert.Equal(t, []time.Time{jan(9), jan(10)}, dates)

	assert.Nil(t, f.attempts.byDate(jan(7)), "the walk must not skip past a failed day")
	assert.Nil(t, f.attempts.byDate(jan(6)))
}

func TestActivateHoliday_MissingPersonalAllocation(t *testing.T) {
	f := newFixture()
	f.won(6)
	f.allocator.missing[jan(8)] = true

	dates, err := f.svc.ActivateHoliday(context.Background(), session(jan(10)), models.ModePersonal, nil)
	assert.ErrorIs(t, err, ErrPartialProtection)
	assert.ErrorIs(t, err, allocation.ErrNoAllocation)
	assert.Equal(t, []time.Time{jan(9), jan(10)}, dates)
}

func TestActivateHoliday_AllowanceExhausted(t *testing.T) {
	f := newFixture()
	f.won(6)
	f.states.state = models.ProtectionState{ID: 1, HolidayYear: 2025, HolidaysUsedThisYear: 1, SaverPeriod: "2025-01"}

	_, err := f.svc.ActivateHoliday(context.Background(), session(jan(10)), models.ModeRegional, nil)
	assert.ErrorIs(t, err, ErrAllowanceExhausted)
	assert.Nil(t, f.attempts.byDate(jan(10)))
}

func TestEvaluate_GapClassification(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *fixture)
		today    time.Time
		expected OfferKind
	}{
		{
			name:     "no history",
			setup:    func(f *fixture) {},
			today:    jan(10),
			expected: OfferNone,
		},
		{
			name:     "played yesterday",
			setup:    func(f *fixture) { f.won(8); f.won(9) },
			today:    jan(10),
			expected: OfferSafe,
		},
		{
			name:     "gap 2 with streak",
			setup:    func(f *fixture) { f.won(7); f.won(8) },
			today:    jan(10),
			expected: OfferStreakSaver,
		},
		{
			name: "gap 2 without streak",
			setup: func(f *fixture) {
				f.attempts.add(jan(8), models.ResultPending, models.DayStatusPtr(models.DayProtected), 0)
			},
			today:    jan(10),
			expected: OfferNone,
		},
		{
			name: "gap 2 with savers used falls back to holiday",
			setup: func(f *fixture) {
				f.won(8)
				f.states.state = models.ProtectionState{ID: 1, SaverPeriod: "2025-01", StreakSaversUsedThisPeriod: 1, HolidayYear: 2025}
			},
			today:    jan(10),
			expected: OfferHoliday,
		},
		{
			name: "gap 2 with yesterday already lost",
			setup: func(f *fixture) {
				f.won(8)
				f.attempts.add(jan(9), models.ResultLost, nil, 5)
			},
			today:    jan(10),
			expected: OfferNone,
		},
		{
			name:     "gap 5",
			setup:    func(f *fixture) { f.won(5) },
			today:    jan(10),
			expected: OfferHoliday,
		},
		{
			name:     "gap equal to lookback",
			setup:    func(f *fixture) { f.won(3) },
			today:    jan(10),
			expected: OfferHoliday,
		},
		{
			name:     "gap beyond lookback",
			setup:    func(f *fixture) { f.won(2) },
			today:    jan(10),
			expected: OfferBroken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)

			offer, err := f.svc.Evaluate(context.Background(), session(tt.today), models.ModeRegional)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, offer.Kind)

			wantFlag := tt.expected == OfferStreakSaver || tt.expected == OfferHoliday
			assert.Equal(t, wantFlag, f.states.state.MissedDayFlag)
		})
	}
}

func TestEvaluate_RollsAllowancePeriod(t *testing.T) {
	f := newFixture()
	f.won(30)
	f.states.state = models.ProtectionState{ID: 1, SaverPeriod: "2024-12", StreakSaversUsedThisPeriod: 1, HolidayYear: 2024, HolidaysUsedThisYear: 1}

	offer, err := f.svc.Evaluate(context.Background(), session(time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)), models.ModeRegional)
	require.NoError(t, err)
	assert.Equal(t, OfferStreakSaver, offer.Kind)
	assert.Equal(t, 1, offer.SaversRemaining)
	assert.Equal(t, 1, offer.HolidaysRemaining)
	assert.Equal(t, "2025-02", f.states.state.SaverPeriod)
}

func TestEvaluate_ContinuesActiveHoliday(t *testing.T) {
	f := newFixture()
	f.won(7)
	_, err := f.svc.ActivateHoliday(context.Background(), session(jan(8)), models.ModeRegional, nil)
	require.NoError(t, err)

	offer, err := f.svc.Evaluate(context.Background(), session(jan(11)), models.ModeRegional)
	require.NoError(t, err)
	assert.True(t, offer.HolidayActive)
	assert.Equal(t, OfferSafe, offer.Kind)
	assert.Equal(t, []time.Time{jan(8), jan(9), jan(10), jan(11)}, offer.ProtectedDates)
	assert.Equal(t, 1, f.states.state.HolidaysUsedThisYear)

	// Past the holiday end the holiday is switched off.
	offer, err = f.svc.Evaluate(context.Background(), session(jan(16)), models.ModeRegional)
	require.NoError(t, err)
	assert.False(t, offer.HolidayActive)
	assert.False(t, f.states.state.HolidayActive)
}

func TestStreakSaver_ChargedOnceOnWin(t *testing.T) {
	f := newFixture()
	f.won(7)
	f.won(8)
	ctx := context.Background()
	sess := session(jan(10))

	puzzle, err := f.svc.UseStreakSaver(ctx, sess, models.ModeRegional)
	require.NoError(t, err)
	assert.Equal(t, uint(9), puzzle.ID)
	require.NotNil(t, f.states.state.PendingRescueDate)
	assert.Equal(t, 0, f.states.state.StreakSaversUsedThisPeriod, "nothing is charged before the rescue is won")

	status, err := f.svc.DayStatusFor(ctx, sess, models.ModeRegional, jan(9), models.ResultWon)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, models.DayCounted, *status)

	require.NoError(t, f.svc.SettleRescue(ctx, sess, models.ModeRegional, jan(9), models.ResultWon))
	require.NoError(t, f.svc.SettleRescue(ctx, sess, models.ModeRegional, jan(9), models.ResultWon))
	assert.Equal(t, 1, f.states.state.StreakSaversUsedThisPeriod)
	assert.Nil(t, f.states.state.PendingRescueDate)
}

func TestStreakSaver_LostRescueIsFree(t *testing.T) {
	f := newFixture()
	f.won(8)
	ctx := context.Background()
	sess := session(jan(10))

	_, err := f.svc.UseStreakSaver(ctx, sess, models.ModeRegional)
	require.NoError(t, err)

	status, err := f.svc.DayStatusFor(ctx, sess, models.ModeRegional, jan(9), models.ResultLost)
	require.NoError(t, err)
	assert.Nil(t, status)

	require.NoError(t, f.svc.SettleRescue(ctx, sess, models.ModeRegional, jan(9), models.ResultLost))
	assert.Equal(t, 0, f.states.state.StreakSaversUsedThisPeriod)
	assert.Nil(t, f.states.state.PendingRescueDate)
}

func TestStreakSaver_Errors(t *testing.T) {
	f := newFixture()
	f.won(9)
	_, err := f.svc.UseStreakSaver(context.Background(), session(jan(10)), models.ModeRegional)
	assert.ErrorIs(t, err, ErrNotOffered)

	f = newFixture()
	f.won(8)
	f.states.state = models.ProtectionState{ID: 1, SaverPeriod: "2025-01", StreakSaversUsedThisPeriod: 1, HolidayYear: 2025}
	_, err = f.svc.UseStreakSaver(context.Background(), session(jan(10)), models.ModeRegional)
	assert.ErrorIs(t, err, ErrAllowanceExhausted)
}

func TestDayStatusFor(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sess := session(jan(10))

	today, err := f.svc.DayStatusFor(ctx, sess, models.ModeRegional, jan(10), models.ResultWon)
	require.NoError(t, err)
	require.NotNil(t, today)
	assert.Equal(t, models.DayCounted, *today)

	archive, err := f.svc.DayStatusFor(ctx, sess, models.ModeRegional, jan(4), models.ResultWon)
	require.NoError(t, err)
	assert.Nil(t, archive, "archive replays earn no streak credit")

	missed, err := f.svc.DayStatusFor(ctx, sess, models.ModeRegional, jan(9), models.ResultWon)
	require.NoError(t, err)
	assert.Nil(t, missed, "yesterday counts only through an armed rescue")

	lost, err := f.svc.DayStatusFor(ctx, sess, models.ModeRegional, jan(10), models.ResultLost)
	require.NoError(t, err)
	assert.Nil(t, lost)

	start, end := jan(8), jan(14)
	f.states.state = models.ProtectionState{ID: 1, HolidayActive: true, HolidayStart: &start, HolidayEnd: &end}
	covered, err := f.svc.DayStatusFor(ctx, sess, models.ModeRegional, jan(10), models.ResultLost)
	require.NoError(t, err)
	require.NotNil(t, covered)
	assert.Equal(t, models.DayProtected, *covered)
}

func TestDecline(t *testing.T) {
	f := newFixture()
	f.won(5)
	f.won(6)
	ctx := context.Background()

	require.NoError(t, f.svc.Decline(ctx, session(jan(10)), models.ModeRegional))
	require.NotNil(t, f.states.state.StreakResetThrough)
	assert.Equal(t, jan(6), *f.states.state.StreakResetThrough)
	assert.False(t, f.states.state.MissedDayFlag)
	assert.Equal(t, 1, f.streaks.refreshes)

	current, err := f.streaks.StreakAt(ctx, "alice", models.ModeRegional, jan(6))
	require.NoError(t, err)
	assert.Equal(t, 0, current)

	// A new win after the decline starts from one.
	f.won(10)
	current, err = f.streaks.StreakAt(ctx, "alice", models.ModeRegional, jan(10))
	require.NoError(t, err)
	assert.Equal(t, 1, current)

	err = f.svc.Decline(ctx, session(jan(11)), models.ModeRegional)
	assert.ErrorIs(t, err, ErrNotOffered)
}
