package handlers

import (
	"github.com/crewtrack/backend/internal/apperr"
	"github.com/crewtrack/backend/internal/database"
	"github.com/crewtrack/backend/internal/middleware"
	"github.com/crewtrack/backend/internal/models"
	"github.com/gofiber/fiber/v2"
)

type HistoryHandler struct{}

func NewHistoryHandler() *HistoryHandler {
	return &HistoryHandler{}
}

// GetMyHistory returns the caller's archived period snapshots, newest first
func (h *HistoryHandler) GetMyHistory(c *fiber.Ctx) error {
	workspaceID := middleware.GetWorkspaceID(c)
	userID := middleware.GetCurrentUserID(c)

	var rows []models.ActivityHistory
	if err := database.DB.Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		Order("period_end DESC").Limit(52).Find(&rows).Error; err != nil {
		return apperr.Internal("load history", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    rows,
	})
}

// GetMemberHistory returns another member's snapshots (admin only, enforced
// by route middleware)
func (h *HistoryHandler) GetMemberHistory(c *fiber.Ctx) error {
	workspaceID := middleware.GetWorkspaceID(c)

	userID, err := c.ParamsInt("userId")
	if err != nil {
		return apperr.Validation("invalid user id")
	}

	var rows []models.ActivityHistory
	if err := database.DB.Where("workspace_id = ? AND user_id = ?", workspaceID, int64(userID)).
		Order("period_end DESC").Limit(52).Find(&rows).Error; err != nil {
		return apperr.Internal("load history", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    rows,
	})
}

// ListResets returns the workspace's period boundaries, newest first
func (h *HistoryHandler) ListResets(c *fiber.Ctx) error {
	workspaceID := middleware.GetWorkspaceID(c)

	var resets []models.ActivityReset
	if err := database.DB.Where("workspace_id = ?", workspaceID).
		Order("reset_at DESC").Limit(52).Find(&resets).Error; err != nil {
		return apperr.Internal("load resets", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    resets,
	})
}
