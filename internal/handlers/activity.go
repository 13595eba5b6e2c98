package handlers

import (
	"time"

	"github.com/crewtrack/backend/internal/apperr"
	"github.com/crewtrack/backend/internal/database"
	"github.com/crewtrack/backend/internal/middleware"
	"github.com/crewtrack/backend/internal/models"
	"github.com/crewtrack/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// endSignalGrace is how far back EndSession looks for a just-closed session
// when no active one exists. The game server retries end signals; a retry
// arriving after the stale cleanup (or a duplicate delivery) should succeed
// idempotently instead of 404ing.
const endSignalGrace = 2 * time.Minute

type ActivityHandler struct {
	aggregator *services.Aggregator
	evaluator  *services.QuotaEvaluator
}

func NewActivityHandler(aggregator *services.Aggregator, evaluator *services.QuotaEvaluator) *ActivityHandler {
	return &ActivityHandler{aggregator: aggregator, evaluator: evaluator}
}

// getSignalWorkspace returns the workspace resolved by the API key middleware
func getSignalWorkspace(c *fiber.Ctx) *models.Workspace {
	workspace, ok := c.Locals("workspace").(*models.Workspace)
	if !ok {
		return nil
	}
	return workspace
}

// loadWorkspace fetches the workspace for routes behind member auth, where
// only the id is in context.
func loadWorkspace(c *fiber.Ctx) (*models.Workspace, error) {
	workspaceID := middleware.GetWorkspaceID(c)
	var workspace models.Workspace
	if err := database.DB.First(&workspace, workspaceID).Error; err != nil {
		return nil, apperr.NotFound("workspace not found")
	}
	return &workspace, nil
}

type startSessionRequest struct {
	UserID  int64  `json:"user_id"`
	PlaceID *int64 `json:"place_id"`
}

// StartSession opens an activity session for a user. At most one active
// session per (user, workspace); a second start while one is open is a
// conflict, not a restart.
func (h *ActivityHandler) StartSession(c *fiber.Ctx) error {
	workspace := getSignalWorkspace(c)
	if workspace == nil {
		return apperr.Auth("workspace not resolved")
	}

	var req startSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.UserID == 0 {
		return apperr.Validation("user_id is required")
	}

	var existing models.ActivitySession
	err := database.DB.Where("workspace_id = ? AND user_id = ? AND active = ? AND archived = ?",
		workspace.ID, req.UserID, true, false).First(&existing).Error
	if err == nil {
		return apperr.Conflict("user already has an active session")
	}
	if err != gorm.ErrRecordNotFound {
		return apperr.Internal("check active session", err)
	}

	session := models.ActivitySession{
		WorkspaceID: workspace.ID,
		UserID:      req.UserID,
		PlaceID:     req.PlaceID,
		StartTime:   time.Now().UTC(),
		Active:      true,
	}
	if err := database.DB.Create(&session).Error; err != nil {
		return apperr.Internal("create session", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    session,
	})
}

type endSessionRequest struct {
	UserID          int64 `json:"user_id"`
	IdleTimeMinutes int64 `json:"idle_time_minutes"`
	MessageCount    int64 `json:"message_count"`
}

// EndSession closes the user's active session, recording idle time and
// message count. When no active session exists, a session closed within the
// grace window is returned as-is so retried signals stay idempotent.
func (h *ActivityHandler) EndSession(c *fiber.Ctx) error {
	workspace := getSignalWorkspace(c)
	if workspace == nil {
		return apperr.Auth("workspace not resolved")
	}

	var req endSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.UserID == 0 {
		return apperr.Validation("user_id is required")
	}
	if req.IdleTimeMinutes < 0 || req.MessageCount < 0 {
		return apperr.Validation("idle_time_minutes and message_count must be non-negative")
	}

	var session models.ActivitySession
	err := database.DB.Where("workspace_id = ? AND user_id = ? AND active = ? AND archived = ?",
		workspace.ID, req.UserID, true, false).First(&session).Error
	if err == gorm.ErrRecordNotFound {
		// Duplicate or late end signal
		graceCutoff := time.Now().UTC().Add(-endSignalGrace)
		recentErr := database.DB.Where(
			"workspace_id = ? AND user_id = ? AND active = ? AND archived = ? AND end_time >= ?",
			workspace.ID, req.UserID, false, false, graceCutoff).
			Order("end_time DESC").First(&session).Error
		if recentErr != nil {
			return apperr.NotFound("no active session for user")
		}
		return c.JSON(fiber.Map{
			"success": true,
			"data":    session,
		})
	}
	if err != nil {
		return apperr.Internal("load active session", err)
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"active":            false,
		"end_time":          now,
		"idle_time_minutes": req.IdleTimeMinutes,
		"message_count":     req.MessageCount,
	}
	if err := database.DB.Model(&session).Updates(updates).Error; err != nil {
		return apperr.Internal("close session", err)
	}

	h.aggregator.InvalidateWorkspace(c.Context(), workspace.ID)

	return c.JSON(fiber.Map{
		"success": true,
		"data":    session,
	})
}

// GetMyActivity returns the caller's current-period effective minutes and
// quota progress
func (h *ActivityHandler) GetMyActivity(c *fiber.Ctx) error {
	workspace, err := loadWorkspace(c)
	if err != nil {
		return err
	}
	userID := middleware.GetCurrentUserID(c)

	totals, err := h.aggregator.EffectiveMinutes(c.Context(), workspace)
	if err != nil {
		return err
	}

	progress, err := h.evaluator.Progress(workspace, userID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"minutes":        totals[userID],
			"quota_progress": progress,
		},
	})
}

// GetMemberActivity returns another member's effective minutes (admin only,
// enforced by route middleware)
func (h *ActivityHandler) GetMemberActivity(c *fiber.Ctx) error {
	workspace, err := loadWorkspace(c)
	if err != nil {
		return err
	}

	userID, err := c.ParamsInt("userId")
	if err != nil {
		return apperr.Validation("invalid user id")
	}

	totals, err := h.aggregator.EffectiveMinutes(c.Context(), workspace)
	if err != nil {
		return err
	}

	progress, err := h.evaluator.Progress(workspace, int64(userID))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"user_id":        int64(userID),
			"minutes":        totals[int64(userID)],
			"quota_progress": progress,
		},
	})
}

type createAdjustmentRequest struct {
	UserID  int64  `json:"user_id"`
	Minutes int64  `json:"minutes"`
	Reason  string `json:"reason"`
}

// CreateAdjustment inserts a signed manual minute correction (admin only).
// The ledger is insert-only; corrections of corrections are new rows.
func (h *ActivityHandler) CreateAdjustment(c *fiber.Ctx) error {
	workspace, err := loadWorkspace(c)
	if err != nil {
		return err
	}
	actor := middleware.GetCurrentMember(c)

	var req createAdjustmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.UserID == 0 {
		return apperr.Validation("user_id is required")
	}
	if req.Minutes == 0 {
		return apperr.Validation("minutes must be nonzero")
	}
	if req.Reason == "" {
		return apperr.Validation("reason is required")
	}

	var target models.Member
	if err := database.DB.Where("workspace_id = ? AND user_id = ?", workspace.ID, req.UserID).
		First(&target).Error; err != nil {
		return apperr.NotFound("member not found in workspace")
	}

	adjustment := models.ActivityAdjustment{
		WorkspaceID: workspace.ID,
		UserID:      req.UserID,
		Minutes:     req.Minutes,
		Reason:      req.Reason,
		CreatedBy:   actor.UserID,
	}
	if err := database.DB.Create(&adjustment).Error; err != nil {
		return apperr.Internal("create adjustment", err)
	}

	h.aggregator.InvalidateWorkspace(c.Context(), workspace.ID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    adjustment,
	})
}

// ListAdjustments returns the current period's adjustments for a user
func (h *ActivityHandler) ListAdjustments(c *fiber.Ctx) error {
	workspaceID := middleware.GetWorkspaceID(c)

	userID, err := c.ParamsInt("userId")
	if err != nil {
		return apperr.Validation("invalid user id")
	}

	var adjustments []models.ActivityAdjustment
	if err := database.DB.Where("workspace_id = ? AND user_id = ? AND archived = ?",
		workspaceID, int64(userID), false).
		Order("created_at DESC").Find(&adjustments).Error; err != nil {
		return apperr.Internal("load adjustments", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    adjustments,
	})
}
