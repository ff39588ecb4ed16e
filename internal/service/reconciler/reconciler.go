// Package reconciler merges the device-local and remote copies of an attempt
// and pushes local progress to the remote store.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aimd54/datestreak/internal/cache"
	prommetrics "github.com/aimd54/datestreak/internal/metrics"
	"github.com/aimd54/datestreak/internal/models"
	"github.com/aimd54/datestreak/internal/repository"
	"github.com/aimd54/datestreak/pkg/logger"
)

// ErrOfflineNoCache is returned when the store is unreachable and the device
// holds nothing to play.
var ErrOfflineNoCache = errors.New("offline, no cached puzzle available")

// Source tells which copy a merged attempt came from.
type Source string

// Sources.
const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
	SourceFresh  Source = "fresh"
)

// RemoteStore interface for the attempt store.
type RemoteStore interface {
	FindByPuzzle(ctx context.Context, mode models.Mode, userID string, puzzleID uint) (*models.Attempt, error)
	Ensure(ctx context.Context, mode models.Mode, attempt *models.Attempt) (*models.Attempt, repository.EnsureResult, error)
	AppendGuesses(ctx context.Context, mode models.Mode, attemptID uint, guesses []string) error
	Finalize(ctx context.Context, mode models.Mode, attemptID uint, result models.Result, numGuesses int, dayStatus *int, completedAt time.Time) (bool, error)
}

// LocalCache interface for the device-local attempt cache.
type LocalCache interface {
	Get(ctx context.Context, userID string, mode models.Mode, puzzleID uint) (*cache.CachedAttempt, error)
	Put(ctx context.Context, entry *cache.CachedAttempt) error
}

// Merged is the outcome of a load.
type Merged struct {
	Entry  *cache.CachedAttempt
	Source Source
	// NeedsSync is set when the local copy is ahead of the store.
	NeedsSync bool
}

// Reconciler decides between local and remote attempt copies.
type Reconciler struct {
	remote            RemoteStore
	local             LocalCache
	allowOfflineFresh bool
	log               *logger.Logger
}

// New creates a reconciler.
func New(remote *repository.AttemptRepository, local *cache.AttemptCache, allowOfflineFresh bool, log *logger.Logger) *Reconciler {
	return NewWithInterfaces(remote, local, allowOfflineFresh, log)
}

// NewWithInterfaces creates a reconciler with interface dependencies (useful for testing).
func NewWithInterfaces(remote RemoteStore, local LocalCache, allowOfflineFresh bool, log *logger.Logger) *Reconciler {
	return &Reconciler{
		remote:            remote,
		local:             local,
		allowOfflineFresh: allowOfflineFresh,
		log:               log.Component("reconciler"),
	}
}

// Load reads both copies of (user, mode, puzzleID) in parallel and returns
// the authoritative one. puzzle may be nil when the store could not be
// reached for the allocation; the cached copy then supplies the answer.
//
// Remote wins when it is final or has at least as many guesses as local.
// Local wins only when strictly ahead.
func (r *Reconciler) Load(ctx context.Context, sess models.Session, mode models.Mode, puzzleID uint, puzzle *models.Puzzle) (*Merged, error) {
	var (
		local     *cache.CachedAttempt
		remote    *models.Attempt
		localErr  error
		remoteErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		local, localErr = r.local.Get(ctx, sess.UserID, mode, puzzleID)
		return nil
	})
	g.Go(func() error {
		remote, remoteErr = r.remote.FindByPuzzle(ctx, mode, sess.UserID, puzzleID)
		return nil
	})
	_ = g.Wait()

	if localErr != nil {
		r.log.Warn().Err(localErr).Str("user_id", sess.UserID).Uint("puzzle_id", puzzleID).Msg("Local cache read failed")
		local = nil
	}

	if remoteErr != nil {
		r.log.Warn().Err(remoteErr).Str("user_id", sess.UserID).Uint("puzzle_id", puzzleID).Msg("Attempt store unreachable")
		prommetrics.RecordRemoteWriteFailure(string(mode), "load")
		if local != nil {
			return r.merged(mode, local, SourceLocal, !local.Synced), nil
		}
		if puzzle == nil || !r.allowOfflineFresh {
			return nil, ErrOfflineNoCache
		}
		return r.merged(mode, fresh(sess, mode, puzzle), SourceFresh, false), nil
	}

	switch {
	case remote == nil && local == nil:
		if puzzle == nil {
			return nil, ErrOfflineNoCache
		}
		return r.merged(mode, fresh(sess, mode, puzzle), SourceFresh, false), nil

	case remote == nil:
		return r.merged(mode, local, SourceLocal, local.NumGuesses() > 0), nil

	case local != nil && !remote.IsFinal() && local.NumGuesses() > remote.NumGuesses:
		local.AttemptID = remote.ID
		return r.merged(mode, local, SourceLocal, true), nil
	}

	entry, err := fromRemote(sess, mode, remote, puzzle, local)
	if err != nil {
		return nil, err
	}
	if err := r.local.Put(ctx, entry); err != nil {
		r.log.Warn().Err(err).Str("user_id", sess.UserID).Uint("puzzle_id", puzzleID).Msg("Failed to refresh local cache")
	}
	return r.merged(mode, entry, SourceRemote, false), nil
}

func (r *Reconciler) merged(mode models.Mode, entry *cache.CachedAttempt, source Source, needsSync bool) *Merged {
	prommetrics.RecordReconcileSource(string(mode), string(source))
	return &Merged{Entry: entry, Source: source, NeedsSync: needsSync}
}

func fresh(sess models.Session, mode models.Mode, puzzle *models.Puzzle) *cache.CachedAttempt {
	return &cache.CachedAttempt{
		UserID:      sess.UserID,
		Mode:        mode,
		Region:      sess.Region,
		PuzzleID:    puzzle.ID,
		PuzzleDate:  models.Day(puzzle.Date),
		Solution:    puzzle.Solution,
		DigitFormat: puzzle.DigitFormat,
		Guesses:     []string{},
		Result:      models.ResultPending,
	}
}

// fromRemote converts a stored row into a cache entry. The answer comes from
// the allocation or, failing that, the previous cache entry.
func fromRemote(sess models.Session, mode models.Mode, remote *models.Attempt, puzzle *models.Puzzle, local *cache.CachedAttempt) (*cache.CachedAttempt, error) {
	entry := &cache.CachedAttempt{
		AttemptID:   remote.ID,
		UserID:      sess.UserID,
		Mode:        mode,
		Region:      sess.Region,
		PuzzleID:    remote.PuzzleID,
		PuzzleDate:  models.Day(remote.PuzzleDate),
		DigitFormat: remote.DigitFormat,
		Guesses:     append([]string{}, remote.Guesses...),
		Result:      remote.Result,
		DayStatus:   remote.DayStatus,
		CompletedAt: remote.CompletedAt,
		Synced:      true,
	}

	switch {
	case puzzle != nil:
		entry.Solution = puzzle.Solution
		if entry.DigitFormat == "" {
			entry.DigitFormat = puzzle.DigitFormat
		}
	case local != nil:
		entry.Solution = local.Solution
		if entry.DigitFormat == "" {
			entry.DigitFormat = local.DigitFormat
		}
	}
	if entry.Solution == "" {
		return nil, fmt.Errorf("no answer available for puzzle %d", remote.PuzzleID)
	}
	return entry, nil
}
