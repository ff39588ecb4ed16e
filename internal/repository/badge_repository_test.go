package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aimd54/datestreak/internal/models"
)

// createTestBadge creates a test badge in the database.
func createTestBadge(t *testing.T, repo *BadgeRepository, name, category string, threshold int) *models.Badge {
	t.Helper()

	badge := &models.Badge{
		Name:        name,
		Description: "test badge " + name,
		Icon:        "🎯",
		Category:    category,
		Threshold:   threshold,
	}

	if err := repo.Create(badge); err != nil {
		t.Fatalf("Failed to create test badge: %v", err)
	}

	return badge
}

func TestBadgeRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBadgeRepository(db)

	badge := createTestBadge(t, repo, "hole_in_one", models.BadgeCategoryGuessCount, 1)

	if badge.ID == 0 {
		t.Error("Expected badge ID to be set after creation")
	}

	if badge.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}

	// Same criterion under another name violates the definition index.
	dup := &models.Badge{Name: "other", Category: models.BadgeCategoryGuessCount, Threshold: 1}
	if err := repo.Create(dup); err == nil {
		t.Error("Expected error for duplicate (category, threshold)")
	}
}

func TestBadgeRepository_FindByCriterion(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBadgeRepository(db)
	ctx := context.Background()

	createTestBadge(t, repo, "week_streak", models.BadgeCategoryStreak, 7)

	badge, err := repo.FindByCriterion(ctx, models.BadgeCategoryStreak, 7)
	if err != nil {
		t.Fatalf("FindByCriterion() failed: %v", err)
	}
	if badge == nil || badge.Name != "week_streak" {
		t.Fatalf("Expected week_streak, got %+v", badge)
	}

	missing, err := repo.FindByCriterion(ctx, models.BadgeCategoryStreak, 8)
	if err != nil {
		t.Fatalf("FindByCriterion() failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected no badge for threshold 8, got %+v", missing)
	}
}

func TestBadgeRepository_Upsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBadgeRepository(db)

	original := createTestBadge(t, repo, "week_streak", models.BadgeCategoryStreak, 7)

	updated := &models.Badge{Name: "week_streak", Description: "Seven in a row", Category: models.BadgeCategoryStreak, Threshold: 7}
	if err := repo.Upsert(updated); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	if updated.ID != original.ID {
		t.Errorf("Expected Upsert to keep ID %d, got %d", original.ID, updated.ID)
	}

	all, err := repo.GetAll()
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(all) != 1 || all[0].Description != "Seven in a row" {
		t.Errorf("Expected one updated badge, got %+v", all)
	}
}

func TestBadgeRepository_AwardReearn(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBadgeRepository(db)
	ctx := context.Background()

	badge := createTestBadge(t, repo, "hole_in_one", models.BadgeCategoryGuessCount, 1)
	now := time.Now()

	first, outcome, err := repo.Award(ctx, "alice", badge.ID, "FR", models.ModeRegional, "win-1", now)
	if err != nil {
		t.Fatalf("Award() failed: %v", err)
	}
	if outcome != AwardFirst || first.AwardCount != 1 {
		t.Fatalf("Expected first award with count 1, got outcome %v count %d", outcome, first.AwardCount)
	}

	if _, err := repo.MarkSeen(ctx, first.ID, "alice"); err != nil {
		t.Fatalf("MarkSeen() failed: %v", err)
	}

	second, outcome, err := repo.Award(ctx, "alice", badge.ID, "FR", models.ModeRegional, "win-2", now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Award() failed: %v", err)
	}
	if outcome != AwardRepeat {
		t.Errorf("Expected repeat outcome, got %v", outcome)
	}
	if second.ID != first.ID {
		t.Errorf("Expected the same row, got %d and %d", first.ID, second.ID)
	}
	if second.AwardCount != 2 {
		t.Errorf("Expected award count 2, got %d", second.AwardCount)
	}
	if second.IsSeen {
		t.Error("Expected re-earning to reset the seen flag")
	}
	if second.Badge.Name != "hole_in_one" {
		t.Errorf("Expected badge to be preloaded, got %q", second.Badge.Name)
	}

	var rows int64
	db.Model(&models.UserBadge{}).Where("user_id = ?", "alice").Count(&rows)
	if rows != 1 {
		t.Errorf("Expected exactly one user badge row, got %d", rows)
	}
}

func TestBadgeRepository_AwardSameKeyIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBadgeRepository(db)
	ctx := context.Background()

	badge := createTestBadge(t, repo, "hole_in_one", models.BadgeCategoryGuessCount, 1)

	for i := 0; i < 3; i++ {
		if _, _, err := repo.Award(ctx, "alice", badge.ID, "FR", models.ModeRegional, "win-1", time.Now()); err != nil {
			t.Fatalf("Award() failed: %v", err)
		}
	}

	awards, err := repo.GetUserBadges(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserBadges() failed: %v", err)
	}
	if len(awards) != 1 || awards[0].AwardCount != 1 {
		t.Errorf("Expected one award with count 1, got %+v", awards)
	}
}

func TestBadgeRepository_AwardReplayOfOlderWin(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBadgeRepository(db)
	ctx := context.Background()

	badge := createTestBadge(t, repo, "hole_in_one", models.BadgeCategoryGuessCount, 1)

	for _, key := range []string{"win-a", "win-b", "win-a"} {
		if _, _, err := repo.Award(ctx, "alice", badge.ID, "FR", models.ModeRegional, key, time.Now()); err != nil {
			t.Fatalf("Award(%s) failed: %v", key, err)
		}
	}

	awards, err := repo.GetUserBadges(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserBadges() failed: %v", err)
	}
	if len(awards) != 1 || awards[0].AwardCount != 2 {
		t.Errorf("Expected one award with count 2, got %+v", awards)
	}

	var events int64
	db.Model(&models.BadgeAward{}).Where("user_badge_id = ?", awards[0].ID).Count(&events)
	if events != 2 {
		t.Errorf("Expected 2 award events, got %d", events)
	}
}

func TestBadgeRepository_AwardScopes(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBadgeRepository(db)
	ctx := context.Background()

	badge := createTestBadge(t, repo, "hole_in_one", models.BadgeCategoryGuessCount, 1)

	if _, _, err := repo.Award(ctx, "alice", badge.ID, "FR", models.ModeRegional, "a", time.Now()); err != nil {
		t.Fatalf("Award() failed: %v", err)
	}
	if _, _, err := repo.Award(ctx, "alice", badge.ID, "FR", models.ModePersonal, "b", time.Now()); err != nil {
		t.Fatalf("Award() failed: %v", err)
	}

	awards, err := repo.GetUserBadges(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserBadges() failed: %v", err)
	}
	if len(awards) != 2 {
		t.Errorf("Expected one award per mode, got %d", len(awards))
	}

	holders, err := repo.GetBadgeHoldersCount(badge.ID)
	if err != nil {
		t.Fatalf("GetBadgeHoldersCount() failed: %v", err)
	}
	if holders != 1 {
		t.Errorf("Expected 1 holder, got %d", holders)
	}
}

func TestBadgeRepository_AwardConcurrent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBadgeRepository(db)
	ctx := context.Background()

	badge := createTestBadge(t, repo, "week_streak", models.BadgeCategoryStreak, 7)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, key := range []string{"foreground", "background"} {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			_, _, errs[i] = repo.Award(ctx, "alice", badge.ID, "FR", models.ModeRegional, key, time.Now())
		}(i, key)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatalf("Award() failed: %v", err)
		}
	}

	awards, err := repo.GetUserBadges(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserBadges() failed: %v", err)
	}
	if len(awards) != 1 {
		t.Fatalf("Expected one row after concurrent awards, got %d", len(awards))
	}
	if awards[0].AwardCount != 2 {
		t.Errorf("Expected both awards counted, got %d", awards[0].AwardCount)
	}
}

func TestBadgeRepository_MarkSeen(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBadgeRepository(db)
	ctx := context.Background()

	badge := createTestBadge(t, repo, "hole_in_one", models.BadgeCategoryGuessCount, 1)
	award, _, err := repo.Award(ctx, "alice", badge.ID, "FR", models.ModeRegional, "k", time.Now())
	if err != nil {
		t.Fatalf("Award() failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		found, err := repo.MarkSeen(ctx, award.ID, "alice")
		if err != nil {
			t.Fatalf("MarkSeen() failed: %v", err)
		}
		if !found {
			t.Error("Expected MarkSeen to find the row")
		}
	}

	found, err := repo.MarkSeen(ctx, award.ID, "mallory")
	if err != nil {
		t.Fatalf("MarkSeen() failed: %v", err)
	}
	if found {
		t.Error("Expected MarkSeen to ignore rows of other users")
	}
}
