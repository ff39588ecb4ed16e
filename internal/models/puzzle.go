package models

import "time"

// Puzzle is an allocation of a puzzle to a date. Regional puzzles are owned
// by a region code, personal puzzles by a user id.
type Puzzle struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Owner       string    `gorm:"size:64;not null" json:"owner"`
	Date        time.Time `gorm:"type:date;not null" json:"date"`
	Solution    string    `gorm:"size:10" json:"-"` // canonical solution date, YYYY-MM-DD
	DigitFormat string    `gorm:"size:16" json:"digit_format"`
	Synthesized bool      `gorm:"not null;default:false" json:"synthesized"`
	CreatedAt   time.Time `json:"created_at"`
}

// Ref returns the puzzle reference.
func (p *Puzzle) Ref() PuzzleRef {
	return PuzzleRef{ID: p.ID, Date: p.Date}
}

// Playable reports whether the allocation carries answer content.
func (p *Puzzle) Playable() bool {
	return p.Solution != ""
}
