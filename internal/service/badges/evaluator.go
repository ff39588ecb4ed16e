package badges

import (
	"fmt"

	"github.com/aimd54/datestreak/internal/config"
	"github.com/aimd54/datestreak/internal/models"
)

// Criterion selects a badge by category and threshold. AwardKey identifies
// the win so replaying it does not count twice.
type Criterion struct {
	Category string
	Value    int
	AwardKey string
}

// Win describes a won game for badge checks.
type Win struct {
	PuzzleID   uint
	Guesses    int
	StreakDays int
}

// CriteriaForWin lists the criteria a win is checked against: one-guess and
// two-guess solves, and the streak value reached.
func CriteriaForWin(w Win) []Criterion {
	key := fmt.Sprintf("puzzle:%d", w.PuzzleID)

	var criteria []Criterion
	if w.Guesses == 1 || w.Guesses == 2 {
		criteria = append(criteria, Criterion{Category: models.BadgeCategoryGuessCount, Value: w.Guesses, AwardKey: key})
	}
	if w.StreakDays > 0 {
		criteria = append(criteria, Criterion{Category: models.BadgeCategoryStreak, Value: w.StreakDays, AwardKey: key})
	}
	return criteria
}

// SeedCatalog stores the configured badge definitions. Each entry needs
// criteria with a category and an integer threshold.
func (s *Service) SeedCatalog(defs []config.BadgeConfig) (int, error) {
	seeded := 0
	for _, def := range defs {
		badge, err := badgeFromConfig(def)
		if err != nil {
			return seeded, err
		}
		if err := s.badgeRepo.Upsert(badge); err != nil {
			return seeded, fmt.Errorf("failed to store badge %s: %w", def.Name, err)
		}
		seeded++
	}

	s.log.Info().Int("count", seeded).Msg("Badge catalog seeded")
	return seeded, nil
}

func badgeFromConfig(def config.BadgeConfig) (*models.Badge, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("badge name is required")
	}

	category, ok := def.Criteria["category"].(string)
	if !ok {
		return nil, fmt.Errorf("badge %s: criteria.category must be a string", def.Name)
	}
	if category != models.BadgeCategoryStreak && category != models.BadgeCategoryGuessCount {
		return nil, fmt.Errorf("badge %s: unsupported category: %s", def.Name, category)
	}

	threshold, err := toInt(def.Criteria["threshold"])
	if err != nil {
		return nil, fmt.Errorf("badge %s: criteria.threshold: %w", def.Name, err)
	}
	if threshold < 1 {
		return nil, fmt.Errorf("badge %s: criteria.threshold must be positive", def.Name)
	}

	return &models.Badge{
		Name:        def.Name,
		Description: def.Description,
		Icon:        def.Icon,
		Category:    category,
		Threshold:   threshold,
	}, nil
}

// toInt accepts the number types YAML and env decoding produce.
func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("expected an integer, got %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("invalid value type: expected integer, got %T", v)
	}
}
