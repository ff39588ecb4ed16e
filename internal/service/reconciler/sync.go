package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/aimd54/datestreak/internal/cache"
	prommetrics "github.com/aimd54/datestreak/internal/metrics"
	"github.com/aimd54/datestreak/internal/models"
	"github.com/aimd54/datestreak/internal/repository"
)

// SyncResult reports what a sync left in the store.
type SyncResult struct {
	AttemptID uint
	// Final is set when the stored row is terminal after the sync.
	Final bool
	// Adopted holds the stored row when it was already final with a
	// different outcome. The caller must replace its copy with it.
	Adopted *models.Attempt
}

// Sync writes a cache entry to the remote store. Every step is idempotent,
// so a sync can be retried any number of times: the row is created once,
// guesses are keyed by ordinal and only a pending row can be finalized.
func (r *Reconciler) Sync(ctx context.Context, entry *cache.CachedAttempt) (*SyncResult, error) {
	mode := entry.Mode

	row, how, err := r.remote.Ensure(ctx, mode, &models.Attempt{
		UserID:      entry.UserID,
		PuzzleID:    entry.PuzzleID,
		PuzzleDate:  entry.PuzzleDate,
		Result:      models.ResultPending,
		DigitFormat: entry.DigitFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure attempt row: %w", err)
	}
	if how == repository.EnsureAdopted {
		prommetrics.RecordCreationConflict(string(mode))
		r.log.Debug().Str("user_id", entry.UserID).Uint("puzzle_id", entry.PuzzleID).Msg("Adopted concurrently created attempt")
	}

	if row.IsFinal() {
		return r.settled(entry, row), nil
	}

	if err := r.remote.AppendGuesses(ctx, mode, row.ID, entry.Guesses); err != nil {
		return nil, fmt.Errorf("failed to append guesses: %w", err)
	}
	if !entry.IsFinal() {
		return &SyncResult{AttemptID: row.ID}, nil
	}

	completedAt := time.Now()
	if entry.CompletedAt != nil {
		completedAt = *entry.CompletedAt
	}
	applied, err := r.remote.Finalize(ctx, mode, row.ID, entry.Result, entry.NumGuesses(), entry.DayStatus, completedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize attempt: %w", err)
	}
	if applied {
		return &SyncResult{AttemptID: row.ID, Final: true}, nil
	}

	// Another device finalized between our read and write.
	stored, err := r.remote.FindByPuzzle(ctx, mode, entry.UserID, entry.PuzzleID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read finalized attempt: %w", err)
	}
	if stored == nil {
		return nil, fmt.Errorf("attempt %d vanished after finalize", row.ID)
	}
	return r.settled(entry, stored), nil
}

// settled handles a row that is already terminal. A row matching the entry
// is a replay of our own write; anything else wins over the entry.
func (r *Reconciler) settled(entry *cache.CachedAttempt, row *models.Attempt) *SyncResult {
	if entry.IsFinal() && row.Result == entry.Result && row.NumGuesses == entry.NumGuesses() {
		return &SyncResult{AttemptID: row.ID, Final: true}
	}

	prommetrics.RecordFinalizeRejected(string(entry.Mode))
	r.log.Info().
		Str("user_id", entry.UserID).
		Str("mode", string(entry.Mode)).
		Uint("puzzle_id", entry.PuzzleID).
		Str("local_result", string(entry.Result)).
		Str("stored_result", string(row.Result)).
		Msg("Stored result already final, adopting it")

	return &SyncResult{AttemptID: row.ID, Final: true, Adopted: row}
}

// Adopt overwrites an entry with a stored terminal row.
func Adopt(entry *cache.CachedAttempt, row *models.Attempt) {
	entry.AttemptID = row.ID
	entry.Guesses = append([]string{}, row.Guesses...)
	entry.Result = row.Result
	entry.DayStatus = row.DayStatus
	entry.CompletedAt = row.CompletedAt
	if row.DigitFormat != "" {
		entry.DigitFormat = row.DigitFormat
	}
}
