// Package streak derives streak statistics from attempt history.
package streak

import (
	"sort"
	"time"

	"github.com/aimd54/datestreak/internal/models"
)

// Stats is the result of one full pass over a history.
type Stats struct {
	CurrentStreak     int
	MaxStreak         int
	GamesPlayed       int
	GamesWon          int
	GuessDistribution map[int]int
	Anchor            time.Time
}

// DayStatuses folds a history into date -> day status. A date whose rows
// all have a null status maps to nil. When several rows share a date the
// strongest status wins.
func DayStatuses(history []models.Attempt) map[time.Time]*int {
	days := make(map[time.Time]*int, len(history))
	for i := range history {
		date := models.Day(history[i].PuzzleDate)
		status := history[i].DayStatus
		current, seen := days[date]
		switch {
		case !seen:
			days[date] = status
		case status != nil && (current == nil || *status > *current):
			days[date] = status
		}
	}
	return days
}

// Compute derives every streak figure from the history. anchorDate is the
// day the backward walk starts at, moved forward to the latest history date
// if that is later. Days on or before resetThrough never count towards the
// current streak.
func Compute(history []models.Attempt, anchorDate time.Time, resetThrough *time.Time) Stats {
	stats := Stats{GuessDistribution: make(map[int]int)}

	for i := range history {
		a := &history[i]
		if !a.IsFinal() {
			continue
		}
		stats.GamesPlayed++
		if a.Result == models.ResultWon {
			stats.GamesWon++
			stats.GuessDistribution[a.NumGuesses]++
		}
	}

	days := DayStatuses(history)
	dates := sortedDates(days)

	anchor := models.Day(anchorDate)
	if n := len(dates); n > 0 && dates[n-1].After(anchor) {
		anchor = dates[n-1]
	}
	stats.Anchor = anchor
	stats.CurrentStreak = currentStreak(days, anchor, resetThrough)
	stats.MaxStreak = maxStreak(days, dates)

	return stats
}

func currentStreak(days map[time.Time]*int, anchor time.Time, resetThrough *time.Time) int {
	total := 0
	for d := anchor; ; d = models.AddDays(d, -1) {
		if resetThrough != nil && !d.After(models.Day(*resetThrough)) {
			return total
		}
		status, ok := days[d]
		if !ok || status == nil {
			return total
		}
		total += *status
	}
}

func maxStreak(days map[time.Time]*int, dates []time.Time) int {
	best, running := 0, 0
	var prev time.Time
	for i, d := range dates {
		status := days[d]
		if i > 0 && models.DaysBetween(d, prev) > 1 {
			running = 0
		}
		prev = d
		if status == nil {
			running = 0
			continue
		}
		running += *status
		if running > best {
			best = running
		}
	}
	return best
}

func sortedDates(days map[time.Time]*int) []time.Time {
	dates := make([]time.Time, 0, len(days))
	for d := range days {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// DisplayAnchor picks the anchor for showing a streak on a given day. Until
// today's game has a row the streak is shown as of yesterday, so an unplayed
// today does not read as a broken streak.
func DisplayAnchor(history []models.Attempt, today time.Time) time.Time {
	today = models.Day(today)
	for i := range history {
		if models.Day(history[i].PuzzleDate).Equal(today) {
			return today
		}
	}
	return models.AddDays(today, -1)
}
