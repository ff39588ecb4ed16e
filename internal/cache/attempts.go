package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aimd54/datestreak/internal/models"
)

// CachedAttempt is the device-local copy of an attempt. It carries the
// answer so a game can be replayed and finished without the remote store.
type CachedAttempt struct {
	AttemptID   uint          `json:"attempt_id,omitempty"`
	UserID      string        `json:"user_id"`
	Mode        models.Mode   `json:"mode"`
	Region      string        `json:"region"`
	PuzzleID    uint          `json:"puzzle_id"`
	PuzzleDate  time.Time     `json:"puzzle_date"`
	Solution    string        `json:"solution"`
	DigitFormat string        `json:"digit_format"`
	Guesses     []string      `json:"guesses"`
	Result      models.Result `json:"result"`
	DayStatus   *int          `json:"day_status,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	// Synced is false while the remote store lags behind this entry.
	Synced    bool      `json:"synced"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NumGuesses returns the number of guesses made.
func (a *CachedAttempt) NumGuesses() int {
	return len(a.Guesses)
}

// IsFinal reports whether the cached game is over.
func (a *CachedAttempt) IsFinal() bool {
	return a.Result.IsFinal()
}

// AttemptKey is the cache key of one (user, mode, puzzle).
func AttemptKey(userID string, mode models.Mode, puzzleID uint) string {
	return fmt.Sprintf("dg:attempt:%s:%s:%d", userID, mode, puzzleID)
}

// AttemptCache stores CachedAttempt entries as JSON.
type AttemptCache struct {
	store Store
	ttl   time.Duration
}

// NewAttemptCache creates an attempt cache. A zero ttl keeps entries forever.
func NewAttemptCache(store Store, ttl time.Duration) *AttemptCache {
	return &AttemptCache{store: store, ttl: ttl}
}

// Get returns the cached attempt, or nil when there is none.
func (c *AttemptCache) Get(ctx context.Context, userID string, mode models.Mode, puzzleID uint) (*CachedAttempt, error) {
	raw, err := c.store.Get(ctx, AttemptKey(userID, mode, puzzleID))
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entry CachedAttempt
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("decode cached attempt: %w", err)
	}
	return &entry, nil
}

// Put writes the entry unconditionally.
func (c *AttemptCache) Put(ctx context.Context, entry *CachedAttempt) error {
	entry.UpdatedAt = time.Now()
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cached attempt: %w", err)
	}
	return c.store.Set(ctx, AttemptKey(entry.UserID, entry.Mode, entry.PuzzleID), raw, c.ttl)
}
