// Package game implements the pure guess scoring rules of the date puzzle.
// Nothing in this package performs I/O.
package game

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInvalidGuess is returned for guesses that are not a date in the attempt's format.
var ErrInvalidGuess = errors.New("invalid guess")

// Format is the digit layout used to enter and score a date.
type Format string

// Supported formats.
const (
	FormatDDMMYY   Format = "DDMMYY"
	FormatMMDDYY   Format = "MMDDYY"
	FormatDDMMYYYY Format = "DDMMYYYY"
	FormatMMDDYYYY Format = "MMDDYYYY"
)

// DefaultFormat is used when neither the player nor the allocation picks one.
const DefaultFormat = FormatDDMMYY

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatDDMMYY, FormatMMDDYY, FormatDDMMYYYY, FormatMMDDYYYY:
		return f, nil
	default:
		return "", fmt.Errorf("unknown digit format %q", s)
	}
}

// Len returns the number of digits in the format.
func (f Format) Len() int {
	return len(f)
}

func (f Format) monthFirst() bool {
	return f == FormatMMDDYY || f == FormatMMDDYYYY
}

func (f Format) longYear() bool {
	return f == FormatDDMMYYYY || f == FormatMMDDYYYY
}

// Render writes a date in the format's digit layout.
func (f Format) Render(t time.Time) string {
	dd := fmt.Sprintf("%02d", t.Day())
	mm := fmt.Sprintf("%02d", int(t.Month()))
	yy := fmt.Sprintf("%04d", t.Year())
	if !f.longYear() {
		yy = yy[2:]
	}
	if f.monthFirst() {
		return mm + dd + yy
	}
	return dd + mm + yy
}

// Parse reads a digit string as a calendar date. Two-digit years are read
// in the 2000s, which only matters for the leap day check.
func (f Format) Parse(digits string) (time.Time, error) {
	if len(digits) != f.Len() {
		return time.Time{}, fmt.Errorf("%w: expected %d digits, got %d", ErrInvalidGuess, f.Len(), len(digits))
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return time.Time{}, fmt.Errorf("%w: %q contains non-digits", ErrInvalidGuess, digits)
		}
	}

	first, _ := strconv.Atoi(digits[0:2])
	second, _ := strconv.Atoi(digits[2:4])
	year, _ := strconv.Atoi(digits[4:])
	if !f.longYear() {
		year += 2000
	}

	day, month := first, second
	if f.monthFirst() {
		day, month = second, first
	}
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, fmt.Errorf("%w: %q is not a date", ErrInvalidGuess, digits)
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, fmt.Errorf("%w: %q is not a date", ErrInvalidGuess, digits)
	}
	return t, nil
}

// CellState is the feedback for one digit of a guess.
type CellState string

// Cell states, ordered from weakest to strongest.
const (
	CellAbsent  CellState = "absent"
	CellPresent CellState = "present"
	CellCorrect CellState = "correct"
)

func (s CellState) rank() int {
	switch s {
	case CellCorrect:
		return 3
	case CellPresent:
		return 2
	case CellAbsent:
		return 1
	default:
		return 0
	}
}

// Cell is one scored digit.
type Cell struct {
	Digit string    `json:"digit"`
	State CellState `json:"state"`
}

// Score compares a guess with the canonical solution (YYYY-MM-DD) in the
// given format. Duplicate digits are credited at most as often as they
// occur in the answer, with exact matches taking precedence.
func Score(guess, solution string, format Format) ([]Cell, error) {
	if _, err := format.Parse(guess); err != nil {
		return nil, err
	}
	answerDate, err := time.Parse("2006-01-02", solution)
	if err != nil {
		return nil, fmt.Errorf("invalid solution %q: %w", solution, err)
	}
	answer := format.Render(answerDate)

	cells := make([]Cell, len(guess))
	remaining := make(map[byte]int)
	for i := 0; i < len(guess); i++ {
		cells[i].Digit = string(guess[i])
		if guess[i] == answer[i] {
			cells[i].State = CellCorrect
			continue
		}
		remaining[answer[i]]++
	}

	for i := 0; i < len(guess); i++ {
		if cells[i].State == CellCorrect {
			continue
		}
		if remaining[guess[i]] > 0 {
			remaining[guess[i]]--
			cells[i].State = CellPresent
		} else {
			cells[i].State = CellAbsent
		}
	}
	return cells, nil
}

// IsWin reports whether every cell is correct.
func IsWin(cells []Cell) bool {
	if len(cells) == 0 {
		return false
	}
	for _, c := range cells {
		if c.State != CellCorrect {
			return false
		}
	}
	return true
}

// KeyStates folds scored rows into the best state seen per digit key.
func KeyStates(rows [][]Cell) map[string]CellState {
	keys := make(map[string]CellState)
	for _, row := range rows {
		for _, c := range row {
			if c.State.rank() > keys[c.Digit].rank() {
				keys[c.Digit] = c.State
			}
		}
	}
	return keys
}

// Replay scores a whole guess sequence. It is used both during live play and
// to rebuild the board from stored guesses.
func Replay(guesses []string, solution string, format Format) ([][]Cell, error) {
	rows := make([][]Cell, 0, len(guesses))
	for i, g := range guesses {
		cells, err := Score(g, solution, format)
		if err != nil {
			return nil, fmt.Errorf("guess %d: %w", i+1, err)
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
