package allocation

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aimd54/datestreak/internal/game"
	"github.com/aimd54/datestreak/internal/models"
)

// Feed is a batch of allocations loaded from YAML.
type Feed struct {
	Entries []FeedEntry `yaml:"entries"`
}

// FeedEntry is one allocation in a feed.
type FeedEntry struct {
	Mode        string `yaml:"mode"`
	Owner       string `yaml:"owner"`
	Date        string `yaml:"date"`
	Solution    string `yaml:"solution"`
	DigitFormat string `yaml:"digit_format"`

	mode models.Mode
}

// LoadFeed reads and validates a feed file.
func LoadFeed(path string) (*Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed file: %w", err)
	}
	return ParseFeed(data)
}

// ParseFeed decodes and validates feed YAML. Unknown fields are rejected.
func ParseFeed(data []byte) (*Feed, error) {
	var feed Feed
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if len(feed.Entries) == 0 {
		return nil, fmt.Errorf("invalid feed: entries list is required and must be non-empty")
	}
	for i := range feed.Entries {
		if err := feed.Entries[i].validate(); err != nil {
			return nil, fmt.Errorf("invalid feed: entries[%d]: %w", i, err)
		}
	}
	return &feed, nil
}

func (e *FeedEntry) validate() error {
	mode, err := models.ParseMode(e.Mode)
	if err != nil {
		return err
	}
	e.mode = mode

	if e.Owner == "" {
		return fmt.Errorf("owner is required")
	}
	if _, err := time.Parse("2006-01-02", e.Date); err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	if _, err := time.Parse("2006-01-02", e.Solution); err != nil {
		return fmt.Errorf("solution must be YYYY-MM-DD: %w", err)
	}
	if e.DigitFormat != "" {
		if _, err := game.ParseFormat(e.DigitFormat); err != nil {
			return err
		}
	}
	return nil
}

// Puzzle validates the entry and converts it into an allocation row.
func (e *FeedEntry) Puzzle() (models.Mode, *models.Puzzle, error) {
	if err := e.validate(); err != nil {
		return "", nil, err
	}
	date, _ := time.Parse("2006-01-02", e.Date)
	return e.mode, &models.Puzzle{
		Owner:       e.Owner,
		Date:        models.Day(date),
		Solution:    e.Solution,
		DigitFormat: e.DigitFormat,
	}, nil
}
