package models

import (
	"time"
)

// Result is the outcome of an attempt.
type Result string

// Result constants.
const (
	ResultPending Result = "pending"
	ResultWon     Result = "won"
	ResultLost    Result = "lost"
)

// IsFinal reports whether the result can no longer change.
func (r Result) IsFinal() bool {
	return r == ResultWon || r == ResultLost
}

// Day status values. A nil day status has no streak effect.
const (
	DayProtected = 0
	DayCounted   = 1
)

// Attempt is one user's play record for one puzzle in one mode.
// The same shape is stored in a table per mode, see ModeBinding.
type Attempt struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      string     `gorm:"size:64;not null" json:"user_id"`
	PuzzleID    uint       `gorm:"not null" json:"puzzle_id"`
	PuzzleDate  time.Time  `gorm:"type:date;not null" json:"puzzle_date"`
	NumGuesses  int        `gorm:"not null;default:0" json:"num_guesses"`
	Result      Result     `gorm:"size:16;not null" json:"result"`
	DayStatus   *int       `json:"day_status"`
	DigitFormat string     `gorm:"size:16" json:"digit_format"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Guesses is loaded from the mode's guess table.
	Guesses []string `gorm:"-" json:"guesses"`
}

// IsFinal reports whether the attempt has a terminal result.
func (a *Attempt) IsFinal() bool {
	return a.Result.IsFinal()
}

// HasDayStatus reports whether the attempt affects the streak at all.
func (a *Attempt) HasDayStatus() bool {
	return a.DayStatus != nil
}

// Guess is one ordered guess of an attempt.
type Guess struct {
	AttemptID uint      `gorm:"primaryKey;autoIncrement:false" json:"attempt_id"`
	Ordinal   int       `gorm:"primaryKey;autoIncrement:false" json:"ordinal"`
	Value     string    `gorm:"size:16;not null" json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// PuzzleRef identifies an allocated puzzle.
type PuzzleRef struct {
	ID   uint      `json:"puzzle_id"`
	Date time.Time `json:"date"`
}

// DayStatusPtr returns a pointer to v.
func DayStatusPtr(v int) *int {
	return &v
}
