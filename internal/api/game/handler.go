// Package game provides the REST API handlers for playing puzzles and
// managing streak protection.
package game

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/datestreak/internal/api/middleware"
	scoring "github.com/aimd54/datestreak/internal/game"
	"github.com/aimd54/datestreak/internal/models"
	"github.com/aimd54/datestreak/internal/service/allocation"
	gamesvc "github.com/aimd54/datestreak/internal/service/game"
	"github.com/aimd54/datestreak/internal/service/protection"
	"github.com/aimd54/datestreak/internal/service/reconciler"
	"github.com/aimd54/datestreak/pkg/logger"
)

// GameService interface for playing puzzles.
type GameService interface {
	Load(ctx context.Context, sess models.Session, mode models.Mode, puzzleID uint) (*reconciler.AttemptView, error)
	SubmitGuess(ctx context.Context, sess models.Session, mode models.Mode, puzzleID uint, guess string) (*gamesvc.Outcome, error)
}

// ProtectionService interface for streak protection.
type ProtectionService interface {
	Evaluate(ctx context.Context, sess models.Session, mode models.Mode) (*protection.Offer, error)
	UseStreakSaver(ctx context.Context, sess models.Session, mode models.Mode) (*models.Puzzle, error)
	ActivateHoliday(ctx context.Context, sess models.Session, mode models.Mode, startDate *time.Time) ([]time.Time, error)
	Decline(ctx context.Context, sess models.Session, mode models.Mode) error
}

// Handler handles game API requests.
type Handler struct {
	gameService       GameService
	protectionService ProtectionService
	log               *logger.Logger
}

// NewHandler creates a new game handler.
func NewHandler(gameService *gamesvc.Service, protectionService *protection.Service, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(gameService, protectionService, log)
}

// NewHandlerWithInterfaces creates a new game handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(gameService GameService, protectionService ProtectionService, log *logger.Logger) *Handler {
	return &Handler{
		gameService:       gameService,
		protectionService: protectionService,
		log:               log.Component("api.game"),
	}
}

// RegisterRoutes mounts the game routes. The group must run the Session
// middleware.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/:mode/puzzles/:puzzle_id/attempt", h.GetAttempt)
	r.POST("/:mode/puzzles/:puzzle_id/guesses", h.SubmitGuess)
	r.GET("/:mode/protection", h.GetProtection)
	r.POST("/:mode/protection/streak-saver", h.UseStreakSaver)
	r.POST("/:mode/protection/holiday", h.StartHoliday)
	r.POST("/:mode/protection/decline", h.DeclineProtection)
}

type guessRequest struct {
	Guess string `json:"guess" binding:"required"`
}

type holidayRequest struct {
	StartDate string `json:"start_date"`
}

// GetAttempt returns the merged attempt for a puzzle.
// GET /api/v1/:mode/puzzles/:puzzle_id/attempt.
func (h *Handler) GetAttempt(c *gin.Context) {
	sess, mode, ok := h.scope(c)
	if !ok {
		return
	}
	puzzleID, err := parsePuzzleID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.gameService.Load(c.Request.Context(), sess, mode, puzzleID)
	if err != nil {
		h.handleError(c, err, "Failed to load attempt")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"attempt":      view,
		"generated_at": time.Now().UTC(),
	})
}

// SubmitGuess plays one guess.
// POST /api/v1/:mode/puzzles/:puzzle_id/guesses.
func (h *Handler) SubmitGuess(c *gin.Context) {
	sess, mode, ok := h.scope(c)
	if !ok {
		return
	}
	puzzleID, err := parsePuzzleID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var req guessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "guess is required")
		return
	}

	outcome, err := h.gameService.SubmitGuess(c.Request.Context(), sess, mode, puzzleID, req.Guess)
	if err != nil {
		h.handleError(c, err, "Failed to submit guess")
		return
	}

	h.log.Info().
		Str("user_id", sess.UserID).
		Str("mode", string(mode)).
		Uint("puzzle_id", puzzleID).
		Str("result", string(outcome.Attempt.Result)).
		Bool("pending_sync", outcome.Pending).
		Msg("Guess submitted")

	c.JSON(http.StatusOK, outcome)
}

// GetProtection returns the current protection offer.
// GET /api/v1/:mode/protection.
func (h *Handler) GetProtection(c *gin.Context) {
	sess, mode, ok := h.scope(c)
	if !ok {
		return
	}

	offer, err := h.protectionService.Evaluate(c.Request.Context(), sess, mode)
	if err != nil {
		h.handleError(c, err, "Failed to evaluate protection")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"protection":   offer,
		"generated_at": time.Now().UTC(),
	})
}

// UseStreakSaver arms a streak saver and returns yesterday's puzzle.
// POST /api/v1/:mode/protection/streak-saver.
func (h *Handler) UseStreakSaver(c *gin.Context) {
	sess, mode, ok := h.scope(c)
	if !ok {
		return
	}

	puzzle, err := h.protectionService.UseStreakSaver(c.Request.Context(), sess, mode)
	if err != nil {
		h.handleError(c, err, "Failed to use streak saver")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"puzzle": puzzle.Ref(),
	})
}

// StartHoliday activates holiday protection.
// POST /api/v1/:mode/protection/holiday.
func (h *Handler) StartHoliday(c *gin.Context) {
	sess, mode, ok := h.scope(c)
	if !ok {
		return
	}

	var req holidayRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.errorResponse(c, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	var startDate *time.Time
	if req.StartDate != "" {
		d, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			h.errorResponse(c, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
			return
		}
		startDate = &d
	}

	dates, err := h.protectionService.ActivateHoliday(c.Request.Context(), sess, mode, startDate)
	if errors.Is(err, protection.ErrPartialProtection) {
		// The committed days stay protected; the client is told the rest failed.
		h.log.Warn().Err(err).Str("user_id", sess.UserID).Str("mode", string(mode)).Msg("Holiday partially applied")
		c.JSON(http.StatusOK, gin.H{
			"protected_dates": dateKeys(dates),
			"partial":         true,
			"warning":         protection.ErrPartialProtection.Error(),
		})
		return
	}
	if err != nil {
		h.handleError(c, err, "Failed to activate holiday")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"protected_dates": dateKeys(dates),
		"partial":         false,
	})
}

// DeclineProtection accepts the loss of the current streak.
// POST /api/v1/:mode/protection/decline.
func (h *Handler) DeclineProtection(c *gin.Context) {
	sess, mode, ok := h.scope(c)
	if !ok {
		return
	}

	if err := h.protectionService.Decline(c.Request.Context(), sess, mode); err != nil {
		h.handleError(c, err, "Failed to decline protection")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "declined"})
}

// Helper functions

// scope reads the session and the mode path parameter. Regional play
// needs a region.
func (h *Handler) scope(c *gin.Context) (models.Session, models.Mode, bool) {
	sess := middleware.GetSession(c)
	mode, err := models.ParseMode(c.Param("mode"))
	if err != nil {
		h.errorResponse(c, http.StatusNotFound, err.Error())
		return sess, "", false
	}
	if mode == models.ModeRegional && sess.Region == "" {
		h.errorResponse(c, http.StatusBadRequest, "regional mode requires the "+middleware.HeaderRegion+" header")
		return sess, "", false
	}
	return sess, mode, true
}

// parsePuzzleID extracts and validates the puzzle ID from the URL parameter.
func parsePuzzleID(c *gin.Context) (uint, error) {
	idStr := c.Param("puzzle_id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid puzzle ID: %s", idStr)
	}
	return uint(id), nil
}

func dateKeys(dates []time.Time) []string {
	keys := make([]string, 0, len(dates))
	for _, d := range dates {
		keys = append(keys, models.DateKey(d))
	}
	return keys
}

// handleError maps service errors to status codes.
func (h *Handler) handleError(c *gin.Context, err error, msg string) {
	var status int
	switch {
	case errors.Is(err, scoring.ErrInvalidGuess),
		errors.Is(err, protection.ErrInvalidStartDate):
		status = http.StatusBadRequest
	case errors.Is(err, allocation.ErrNoAllocation):
		status = http.StatusNotFound
	case errors.Is(err, gamesvc.ErrGameOver),
		errors.Is(err, gamesvc.ErrNotPlayable),
		errors.Is(err, protection.ErrNotOffered),
		errors.Is(err, protection.ErrAllowanceExhausted):
		status = http.StatusConflict
	case errors.Is(err, reconciler.ErrOfflineNoCache):
		status = http.StatusServiceUnavailable
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
		h.errorResponse(c, http.StatusInternalServerError, msg)
		return
	}
	h.errorResponse(c, status, err.Error())
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":      message,
		"request_id": middleware.GetRequestID(c),
		"timestamp":  time.Now().UTC(),
	})
}
