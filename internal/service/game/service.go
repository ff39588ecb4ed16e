// Package game runs a guess from submission to storage: scoring, local
// caching, remote sync with outbox fallback and the post-game hooks.
package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aimd54/datestreak/internal/cache"
	scoring "github.com/aimd54/datestreak/internal/game"
	prommetrics "github.com/aimd54/datestreak/internal/metrics"
	"github.com/aimd54/datestreak/internal/models"
	"github.com/aimd54/datestreak/internal/service/allocation"
	"github.com/aimd54/datestreak/internal/service/badges"
	"github.com/aimd54/datestreak/internal/service/reconciler"
	"github.com/aimd54/datestreak/pkg/logger"
)

// Errors returned to callers.
var (
	ErrGameOver    = errors.New("game already finished")
	ErrNotPlayable = errors.New("puzzle is not playable")
	// ErrLocalCopyChanged means a newer guess reached the local cache while
	// an older copy was being written to the store.
	ErrLocalCopyChanged = errors.New("local copy changed during sync")
)

// Allocator interface for puzzle lookups.
type Allocator interface {
	ByID(ctx context.Context, mode models.Mode, id uint) (*models.Puzzle, error)
}

// Reconciler interface for loading and syncing attempts.
type Reconciler interface {
	Load(ctx context.Context, sess models.Session, mode models.Mode, puzzleID uint, puzzle *models.Puzzle) (*reconciler.Merged, error)
	Sync(ctx context.Context, entry *cache.CachedAttempt) (*reconciler.SyncResult, error)
}

// LocalCache interface for the device-local attempt cache.
type LocalCache interface {
	Get(ctx context.Context, userID string, mode models.Mode, puzzleID uint) (*cache.CachedAttempt, error)
	Put(ctx context.Context, entry *cache.CachedAttempt) error
}

// Outbox interface for queueing failed remote writes.
type Outbox interface {
	Enqueue(ctx context.Context, entry cache.OutboxEntry) error
}

// Protection interface for day status decisions and rescue settlement.
type Protection interface {
	DayStatusFor(ctx context.Context, sess models.Session, mode models.Mode, puzzleDate time.Time, result models.Result) (*int, error)
	SettleRescue(ctx context.Context, sess models.Session, mode models.Mode, puzzleDate time.Time, result models.Result) error
}

// Streaks interface for snapshot refreshes.
type Streaks interface {
	Refresh(ctx context.Context, sess models.Session, mode models.Mode) (*models.StreakSnapshot, error)
}

// Badges interface for win badges.
type Badges interface {
	AwardForWin(ctx context.Context, sess models.Session, mode models.Mode, win badges.Win) []badges.Result
}

// Options holds the game rules.
type Options struct {
	MaxGuesses    int
	DefaultFormat scoring.Format
	Location      *time.Location
}

// Outcome is the result of a submitted guess.
type Outcome struct {
	Attempt  *reconciler.AttemptView `json:"attempt"`
	Snapshot *models.StreakSnapshot  `json:"streak,omitempty"`
	Badges   []badges.Result         `json:"badges,omitempty"`
	// Pending is set while the store has not accepted the latest state.
	Pending bool `json:"pending_sync"`
}

// Service plays guesses for both modes.
type Service struct {
	allocator  Allocator
	reconciler Reconciler
	cache      LocalCache
	outbox     Outbox
	protection Protection
	streaks    Streaks
	badges     Badges
	opts       Options
	log        *logger.Logger
	now        func() time.Time
}

// NewService creates a new game service.
func NewService(
	allocator Allocator,
	rec Reconciler,
	local LocalCache,
	outbox Outbox,
	protection Protection,
	streaks Streaks,
	awarder Badges,
	opts Options,
	log *logger.Logger,
) *Service {
	if opts.MaxGuesses < 1 {
		opts.MaxGuesses = 5
	}
	if opts.DefaultFormat == "" {
		opts.DefaultFormat = scoring.DefaultFormat
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{
		allocator:  allocator,
		reconciler: rec,
		cache:      local,
		outbox:     outbox,
		protection: protection,
		streaks:    streaks,
		badges:     awarder,
		opts:       opts,
		log:        log.Component("game"),
		now:        time.Now,
	}
}

// Today returns the current calendar date in the game timezone.
func (s *Service) Today() time.Time {
	return models.Day(s.now().In(s.opts.Location))
}

// Load returns the merged attempt for a puzzle, queueing a sync when the
// local copy is ahead of the store.
func (s *Service) Load(ctx context.Context, sess models.Session, mode models.Mode, puzzleID uint) (*reconciler.AttemptView, error) {
	merged, err := s.load(ctx, sess, mode, puzzleID)
	if err != nil {
		return nil, err
	}
	view, err := s.view(merged.Entry)
	if err != nil {
		return nil, err
	}
	view.Source = merged.Source
	return view, nil
}

func (s *Service) load(ctx context.Context, sess models.Session, mode models.Mode, puzzleID uint) (*reconciler.Merged, error) {
	puzzle, err := s.allocator.ByID(ctx, mode, puzzleID)
	switch {
	case errors.Is(err, allocation.ErrNoAllocation):
		return nil, err
	case err != nil:
		s.log.Warn().Err(err).Uint("puzzle_id", puzzleID).Msg("Allocation lookup failed, trying local copy")
		puzzle = nil
	case puzzle.Owner != sess.Owner(mode):
		return nil, allocation.ErrNoAllocation
	case !puzzle.Playable() || models.Day(puzzle.Date).After(models.Day(sess.Today)):
		return nil, ErrNotPlayable
	}

	merged, err := s.reconciler.Load(ctx, sess, mode, puzzleID, puzzle)
	if err != nil {
		return nil, err
	}
	if merged.NeedsSync {
		s.enqueue(ctx, merged.Entry)
	}
	return merged, nil
}

func (s *Service) view(entry *cache.CachedAttempt) (*reconciler.AttemptView, error) {
	return reconciler.BuildView(entry, reconciler.Format(entry, s.opts.DefaultFormat), s.opts.MaxGuesses)
}

// SubmitGuess scores a guess, stores it locally and then remotely. When the
// store cannot be written the guess stays in the local cache and is queued
// for the outbox worker; the caller still gets the scored board.
func (s *Service) SubmitGuess(ctx context.Context, sess models.Session, mode models.Mode, puzzleID uint, guess string) (*Outcome, error) {
	merged, err := s.load(ctx, sess, mode, puzzleID)
	if err != nil {
		return nil, err
	}
	entry := merged.Entry
	if entry.IsFinal() || entry.NumGuesses() >= s.opts.MaxGuesses {
		return nil, ErrGameOver
	}

	format := reconciler.Format(entry, s.opts.DefaultFormat)
	entry.DigitFormat = string(format)
	cells, err := scoring.Score(guess, entry.Solution, format)
	if err != nil {
		return nil, err
	}

	entry.Guesses = append(entry.Guesses, guess)
	prommetrics.RecordGuessSubmitted(string(mode))

	won := scoring.IsWin(cells)
	if won || entry.NumGuesses() >= s.opts.MaxGuesses {
		s.finish(ctx, sess, entry, won)
	}

	entry.Synced = false
	if err := s.cache.Put(ctx, entry); err != nil {
		s.log.Error().Err(err).Str("user_id", sess.UserID).Uint("puzzle_id", puzzleID).Msg("Failed to write local cache")
	}

	writeCtx := ctx
	if entry.IsFinal() {
		// A terminal write is not abandoned when the caller goes away.
		writeCtx = context.WithoutCancel(ctx)
	}

	outcome := &Outcome{}
	snapshot, awarded, err := s.persist(writeCtx, sess, entry)
	if err != nil {
		prommetrics.RecordRemoteWriteFailure(string(mode), "sync")
		s.log.Warn().Err(err).Str("user_id", sess.UserID).Uint("puzzle_id", puzzleID).Msg("Remote write failed, queued for retry")
		s.enqueue(ctx, entry)
		outcome.Pending = true
	}
	outcome.Snapshot = snapshot
	outcome.Badges = awarded

	outcome.Attempt, err = s.view(entry)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// finish sets the terminal fields of an entry.
func (s *Service) finish(ctx context.Context, sess models.Session, entry *cache.CachedAttempt, won bool) {
	result := models.ResultLost
	if won {
		result = models.ResultWon
	}
	now := s.now()
	entry.Result = result
	entry.CompletedAt = &now

	status, err := s.protection.DayStatusFor(ctx, sess, entry.Mode, entry.PuzzleDate, result)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", sess.UserID).Msg("Could not resolve day status, leaving it unset")
	}
	if status != nil {
		entry.DayStatus = status
	}

	prommetrics.RecordAttemptFinalized(string(entry.Mode), string(result), entry.NumGuesses())
}

// persist syncs an entry and runs the post-game hooks once the store holds
// a terminal row.
func (s *Service) persist(ctx context.Context, sess models.Session, entry *cache.CachedAttempt) (*models.StreakSnapshot, []badges.Result, error) {
	sentGuesses, sentResult := entry.NumGuesses(), entry.Result

	res, err := s.reconciler.Sync(ctx, entry)
	if err != nil {
		return nil, nil, err
	}

	current, err := s.cache.Get(ctx, entry.UserID, entry.Mode, entry.PuzzleID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", entry.UserID).Uint("puzzle_id", entry.PuzzleID).Msg("Failed to re-read local copy")
	}
	if current != nil && !current.Synced && (current.NumGuesses() != sentGuesses || current.Result != sentResult) {
		return nil, nil, ErrLocalCopyChanged
	}

	entry.AttemptID = res.AttemptID
	if res.Adopted != nil {
		reconciler.Adopt(entry, res.Adopted)
	}
	entry.Synced = true
	if err := s.cache.Put(ctx, entry); err != nil {
		s.log.Warn().Err(err).Str("user_id", entry.UserID).Uint("puzzle_id", entry.PuzzleID).Msg("Failed to mark local copy synced")
	}

	if !res.Final {
		return nil, nil, nil
	}
	snapshot, awarded := s.afterFinalize(ctx, sess, entry)
	return snapshot, awarded, nil
}

// afterFinalize settles a streak-saver rescue, refreshes the snapshot and
// awards badges for a win. Every step is safe to repeat.
func (s *Service) afterFinalize(ctx context.Context, sess models.Session, entry *cache.CachedAttempt) (*models.StreakSnapshot, []badges.Result) {
	mode := entry.Mode

	if err := s.protection.SettleRescue(ctx, sess, mode, entry.PuzzleDate, entry.Result); err != nil {
		s.log.Error().Err(err).Str("user_id", sess.UserID).Msg("Failed to settle streak saver")
	}

	snapshot, err := s.streaks.Refresh(ctx, sess, mode)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", sess.UserID).Msg("Failed to refresh streak snapshot")
	}

	if entry.Result != models.ResultWon {
		return snapshot, nil
	}

	win := badges.Win{PuzzleID: entry.PuzzleID, Guesses: entry.NumGuesses()}
	if snapshot != nil && entry.DayStatus != nil && *entry.DayStatus == models.DayCounted {
		win.StreakDays = snapshot.CurrentStreak
	}
	return snapshot, s.badges.AwardForWin(ctx, sess, mode, win)
}

// Flush retries the remote write of one outbox entry from the local cache.
// A missing or already synced cache entry leaves nothing to do.
func (s *Service) Flush(ctx context.Context, e cache.OutboxEntry) error {
	entry, err := s.cache.Get(ctx, e.UserID, e.Mode, e.PuzzleID)
	if err != nil {
		return fmt.Errorf("failed to read local copy: %w", err)
	}
	if entry == nil || entry.Synced {
		return nil
	}

	sess := models.Session{UserID: entry.UserID, Region: entry.Region, Today: s.Today()}
	_, _, err = s.persist(ctx, sess, entry)
	return err
}

// Pending reports whether the local copy of an outbox entry still waits for
// a remote write.
func (s *Service) Pending(ctx context.Context, e cache.OutboxEntry) (bool, error) {
	entry, err := s.cache.Get(ctx, e.UserID, e.Mode, e.PuzzleID)
	if err != nil {
		return false, fmt.Errorf("failed to read local copy: %w", err)
	}
	return entry != nil && !entry.Synced, nil
}

func (s *Service) enqueue(ctx context.Context, entry *cache.CachedAttempt) {
	err := s.outbox.Enqueue(ctx, cache.OutboxEntry{UserID: entry.UserID, Mode: entry.Mode, PuzzleID: entry.PuzzleID})
	if err != nil {
		s.log.Error().Err(err).Str("user_id", entry.UserID).Uint("puzzle_id", entry.PuzzleID).Msg("Failed to queue remote write")
	}
}
