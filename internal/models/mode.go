// Package models defines domain models for the date puzzle progress engine.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects which puzzle track an attempt belongs to.
type Mode string

// Mode constants.
const (
	ModeRegional Mode = "regional"
	ModePersonal Mode = "personal"
)

// Modes lists every supported mode.
var Modes = []Mode{ModeRegional, ModePersonal}

// ModeBinding holds the storage bindings of one mode. Both modes share the
// same row shapes and differ only in table names.
type ModeBinding struct {
	Mode         Mode
	AttemptTable string
	GuessTable   string
	PuzzleTable  string
	// SynthesizeFallback allows backfill to create placeholder allocations.
	SynthesizeFallback bool
}

var bindings = map[Mode]ModeBinding{
	ModeRegional: {
		Mode:               ModeRegional,
		AttemptTable:       "regional_attempts",
		GuessTable:         "regional_guesses",
		PuzzleTable:        "regional_puzzles",
		SynthesizeFallback: true,
	},
	ModePersonal: {
		Mode:         ModePersonal,
		AttemptTable: "personal_attempts",
		GuessTable:   "personal_guesses",
		PuzzleTable:  "personal_puzzles",
	},
}

// Binding returns the storage binding for the mode.
func (m Mode) Binding() ModeBinding {
	return bindings[m]
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	_, ok := bindings[m]
	return ok
}

// ParseMode converts a string into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("invalid mode: %s (valid: regional, personal)", s)
	}
	return m, nil
}

// Session carries the caller identity and calendar context for one request.
type Session struct {
	UserID   string
	Region   string
	DeviceID string
	Today    time.Time
}

// Owner returns the allocation owner for the mode: the region for regional
// puzzles and the user for personal ones.
func (s Session) Owner(m Mode) string {
	if m == ModeRegional {
		return s.Region
	}
	return s.UserID
}

// Day truncates t to its calendar date, expressed as midnight UTC.
func Day(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from earlier to later.
func DaysBetween(later, earlier time.Time) int {
	return int(Day(later).Sub(Day(earlier)).Hours() / 24)
}

// AddDays shifts a calendar date by n days.
func AddDays(t time.Time, n int) time.Time {
	return Day(t).AddDate(0, 0, n)
}

// DateKey formats a calendar date as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return Day(t).Format("2006-01-02")
}
