// Package dashboard provides REST API handlers for the progress dashboard.
// It exposes endpoints for streak leaderboards, user statistics and badges.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/datestreak/internal/api/middleware"
	"github.com/aimd54/datestreak/internal/models"
	"github.com/aimd54/datestreak/internal/repository"
	"github.com/aimd54/datestreak/internal/service/badges"
	"github.com/aimd54/datestreak/internal/service/leaderboard"
	"github.com/aimd54/datestreak/pkg/logger"
)

// BadgeService interface for badge operations.
type BadgeService interface {
	GetUserBadges(ctx context.Context, userID string) ([]models.UserBadge, error)
	GetBadgeCatalog(ctx context.Context) ([]models.Badge, error)
	GetBadgeHoldersCount(ctx context.Context, badgeID uint) (int64, error)
	MarkSeen(ctx context.Context, userID string, userBadgeID uint) error
}

// LeaderboardService interface for leaderboard operations.
type LeaderboardService interface {
	GetLeaderboard(ctx context.Context, mode models.Mode, region, metric string, limit int) ([]leaderboard.Entry, error)
	GetUserStats(ctx context.Context, mode models.Mode, userID string) (*leaderboard.UserStats, error)
	GetModeStats(ctx context.Context, mode models.Mode) (*repository.ModeStats, error)
}

// CatalogEntry is a badge with the number of users holding it.
type CatalogEntry struct {
	models.Badge
	Holders int64 `json:"holders"`
}

// Handler handles dashboard API requests.
type Handler struct {
	badgeService       BadgeService
	leaderboardService LeaderboardService
	log                *logger.Logger
}

// NewHandler creates a new dashboard handler.
func NewHandler(badgeService *badges.Service, leaderboardService *leaderboard.Service, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(badgeService, leaderboardService, log)
}

// NewHandlerWithInterfaces creates a new dashboard handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(badgeService BadgeService, leaderboardService LeaderboardService, log *logger.Logger) *Handler {
	return &Handler{
		badgeService:       badgeService,
		leaderboardService: leaderboardService,
		log:                log.Component("api.dashboard"),
	}
}

// RegisterRoutes mounts the dashboard routes. The group must run the
// Session middleware.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/:mode/leaderboard", h.GetLeaderboard)
	r.GET("/:mode/stats", h.GetUserStats)
	r.GET("/:mode/summary", h.GetModeStats)
	r.GET("/badges", h.GetBadgeCatalog)
	r.GET("/me/badges", h.GetUserBadges)
	r.POST("/badges/:id/seen", h.MarkBadgeSeen)
}

// GetLeaderboard returns the streak leaderboard of a mode.
// GET /api/v1/:mode/leaderboard?metric=current_streak&region=FR&limit=10.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	mode, err := h.parseMode(c)
	if err != nil {
		h.errorResponse(c, http.StatusNotFound, err.Error())
		return
	}

	metric := c.DefaultQuery("metric", repository.OrderByCurrentStreak)
	if err := h.validateMetric(metric); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := h.parseLimit(c, 10)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	region := c.Query("region")

	entries, err := h.leaderboardService.GetLeaderboard(c.Request.Context(), mode, region, metric, limit)
	if err != nil {
		h.log.Error().Err(err).Str("mode", string(mode)).Msg("Failed to get leaderboard")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve leaderboard")
		return
	}

	h.log.Info().
		Str("mode", string(mode)).
		Str("region", region).
		Str("metric", metric).
		Int("limit", limit).
		Int("entries", len(entries)).
		Msg("Retrieved leaderboard")

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":   entries,
		"mode":          mode,
		"region":        region,
		"metric":        metric,
		"total_entries": len(entries),
		"generated_at":  time.Now().UTC(),
	})
}

// GetUserStats returns the caller's statistics in a mode.
// GET /api/v1/:mode/stats.
func (h *Handler) GetUserStats(c *gin.Context) {
	mode, err := h.parseMode(c)
	if err != nil {
		h.errorResponse(c, http.StatusNotFound, err.Error())
		return
	}
	sess := middleware.GetSession(c)

	stats, err := h.leaderboardService.GetUserStats(c.Request.Context(), mode, sess.UserID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", sess.UserID).Msg("Failed to get user stats")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve user statistics")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":        stats,
		"generated_at": time.Now().UTC(),
	})
}

// GetModeStats returns aggregate numbers for a mode.
// GET /api/v1/:mode/summary.
func (h *Handler) GetModeStats(c *gin.Context) {
	mode, err := h.parseMode(c)
	if err != nil {
		h.errorResponse(c, http.StatusNotFound, err.Error())
		return
	}

	stats, err := h.leaderboardService.GetModeStats(c.Request.Context(), mode)
	if err != nil {
		h.log.Error().Err(err).Str("mode", string(mode)).Msg("Failed to get mode stats")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve mode statistics")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"mode":         mode,
		"summary":      stats,
		"generated_at": time.Now().UTC(),
	})
}

// GetUserBadges returns badges earned by the caller.
// GET /api/v1/me/badges.
func (h *Handler) GetUserBadges(c *gin.Context) {
	sess := middleware.GetSession(c)

	userBadges, err := h.badgeService.GetUserBadges(c.Request.Context(), sess.UserID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", sess.UserID).Msg("Failed to get user badges")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve user badges")
		return
	}

	unseen := 0
	for _, ub := range userBadges {
		if !ub.IsSeen {
			unseen++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      sess.UserID,
		"badges":       userBadges,
		"total_badges": len(userBadges),
		"unseen":       unseen,
		"generated_at": time.Now().UTC(),
	})
}

// GetBadgeCatalog returns all available badges with holder counts.
// GET /api/v1/badges.
func (h *Handler) GetBadgeCatalog(c *gin.Context) {
	ctx := c.Request.Context()
	catalogBadges, err := h.badgeService.GetBadgeCatalog(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get badge catalog")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve badge catalog")
		return
	}

	catalog := make([]CatalogEntry, 0, len(catalogBadges))
	for _, b := range catalogBadges {
		holders, err := h.badgeService.GetBadgeHoldersCount(ctx, b.ID)
		if err != nil {
			h.log.Warn().Err(err).Uint("badge_id", b.ID).Msg("Failed to count badge holders")
		}
		catalog = append(catalog, CatalogEntry{Badge: b, Holders: holders})
	}

	c.JSON(http.StatusOK, gin.H{
		"badges":       catalog,
		"total_badges": len(catalog),
		"generated_at": time.Now().UTC(),
	})
}

// MarkBadgeSeen clears the "new" flag of one of the caller's badges.
// POST /api/v1/badges/:id/seen.
func (h *Handler) MarkBadgeSeen(c *gin.Context) {
	userBadgeID, err := h.parseBadgeID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	sess := middleware.GetSession(c)

	err = h.badgeService.MarkSeen(c.Request.Context(), sess.UserID, userBadgeID)
	if errors.Is(err, badges.ErrUserBadgeNotFound) {
		h.errorResponse(c, http.StatusNotFound, "Badge not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Uint("user_badge_id", userBadgeID).Msg("Failed to mark badge seen")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to mark badge seen")
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": userBadgeID, "is_seen": true})
}

// Helper functions

func (h *Handler) parseMode(c *gin.Context) (models.Mode, error) {
	return models.ParseMode(c.Param("mode"))
}

// parseBadgeID extracts and validates the badge ID from the URL parameter.
func (h *Handler) parseBadgeID(c *gin.Context) (uint, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid badge ID: %s", idStr)
	}
	return uint(id), nil
}

// parseLimit extracts and validates the limit query parameter.
func (h *Handler) parseLimit(c *gin.Context, defaultLimit int) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %s", limitStr)
	}

	if limit < 1 {
		return 0, fmt.Errorf("limit must be greater than 0")
	}

	if limit > 1000 {
		return 0, fmt.Errorf("limit cannot exceed 1000")
	}

	return limit, nil
}

// validateMetric validates the metric parameter.
func (h *Handler) validateMetric(metric string) error {
	validMetrics := map[string]bool{
		repository.OrderByCurrentStreak: true,
		repository.OrderByMaxStreak:     true,
		repository.OrderByGamesWon:      true,
	}

	if !validMetrics[metric] {
		return fmt.Errorf("invalid metric: %s (valid: current_streak, max_streak, games_won)", metric)
	}
	return nil
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":      message,
		"request_id": middleware.GetRequestID(c),
		"timestamp":  time.Now().UTC(),
	})
}
