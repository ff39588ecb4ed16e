package reconciler

import (
	"fmt"
	"time"

	"github.com/aimd54/datestreak/internal/cache"
	"github.com/aimd54/datestreak/internal/game"
	"github.com/aimd54/datestreak/internal/models"
)

// AttemptView is an attempt with its board rebuilt from the guesses.
// Feedback is derived on every build and never stored.
type AttemptView struct {
	AttemptID   uint                      `json:"attempt_id,omitempty"`
	Mode        models.Mode               `json:"mode"`
	PuzzleID    uint                      `json:"puzzle_id"`
	PuzzleDate  time.Time                 `json:"puzzle_date"`
	DigitFormat game.Format               `json:"digit_format"`
	Guesses     []string                  `json:"guesses"`
	Rows        [][]game.Cell             `json:"rows"`
	Keys        map[string]game.CellState `json:"keys"`
	Result      models.Result             `json:"result"`
	DayStatus   *int                      `json:"day_status"`
	MaxGuesses  int                       `json:"max_guesses"`
	Remaining   int                       `json:"remaining"`
	CompletedAt *time.Time                `json:"completed_at,omitempty"`
	Synced      bool                      `json:"synced"`
	Source      Source                    `json:"source,omitempty"`
}

// Format returns the entry's digit format, falling back to fallback.
func Format(entry *cache.CachedAttempt, fallback game.Format) game.Format {
	if f, err := game.ParseFormat(entry.DigitFormat); err == nil {
		return f
	}
	return fallback
}

// BuildView replays the entry through the scoring rules.
func BuildView(entry *cache.CachedAttempt, format game.Format, maxGuesses int) (*AttemptView, error) {
	rows, err := game.Replay(entry.Guesses, entry.Solution, format)
	if err != nil {
		return nil, fmt.Errorf("failed to replay attempt: %w", err)
	}

	remaining := maxGuesses - entry.NumGuesses()
	if remaining < 0 || entry.IsFinal() {
		remaining = 0
	}

	return &AttemptView{
		AttemptID:   entry.AttemptID,
		Mode:        entry.Mode,
		PuzzleID:    entry.PuzzleID,
		PuzzleDate:  entry.PuzzleDate,
		DigitFormat: format,
		Guesses:     entry.Guesses,
		Rows:        rows,
		Keys:        game.KeyStates(rows),
		Result:      entry.Result,
		DayStatus:   entry.DayStatus,
		MaxGuesses:  maxGuesses,
		Remaining:   remaining,
		CompletedAt: entry.CompletedAt,
		Synced:      entry.Synced,
	}, nil
}
