package handlers

import (
	"github.com/crewtrack/backend/internal/apperr"
	"github.com/crewtrack/backend/internal/middleware"
	"github.com/crewtrack/backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type QuotaHandler struct {
	evaluator *services.QuotaEvaluator
}

func NewQuotaHandler(evaluator *services.QuotaEvaluator) *QuotaHandler {
	return &QuotaHandler{evaluator: evaluator}
}

// GetMyQuotas returns the caller's assigned quotas with current progress
func (h *QuotaHandler) GetMyQuotas(c *fiber.Ctx) error {
	workspace, err := loadWorkspace(c)
	if err != nil {
		return err
	}
	userID := middleware.GetCurrentUserID(c)

	progress, err := h.evaluator.Progress(workspace, userID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    progress,
	})
}

type completeQuotaRequest struct {
	Notes string `json:"notes"`
}

// Complete marks the caller's own user_complete quota as done
func (h *QuotaHandler) Complete(c *fiber.Ctx) error {
	workspace, err := loadWorkspace(c)
	if err != nil {
		return err
	}
	actor := middleware.GetCurrentMember(c)

	quotaID, err := c.ParamsInt("quotaId")
	if err != nil {
		return apperr.Validation("invalid quota id")
	}

	var req completeQuotaRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return apperr.Validation("invalid request body")
	}

	if err := h.evaluator.Complete(workspace, uint(quotaID), actor, req.Notes); err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Quota marked complete",
	})
}

type signoffQuotaRequest struct {
	UserID int64  `json:"user_id"`
	Notes  string `json:"notes"`
}

// Signoff marks a manager_signoff quota complete for another member
func (h *QuotaHandler) Signoff(c *fiber.Ctx) error {
	workspace, err := loadWorkspace(c)
	if err != nil {
		return err
	}
	signer := middleware.GetCurrentMember(c)

	quotaID, err := c.ParamsInt("quotaId")
	if err != nil {
		return apperr.Validation("invalid quota id")
	}

	var req signoffQuotaRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.UserID == 0 {
		return apperr.Validation("user_id is required")
	}

	if err := h.evaluator.Signoff(workspace, uint(quotaID), req.UserID, signer, req.Notes); err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Quota signed off",
	})
}

type uncompleteQuotaRequest struct {
	UserID int64 `json:"user_id"`
}

// Uncomplete reverts a completion. Target defaults to the caller.
func (h *QuotaHandler) Uncomplete(c *fiber.Ctx) error {
	workspace, err := loadWorkspace(c)
	if err != nil {
		return err
	}
	actor := middleware.GetCurrentMember(c)

	quotaID, err := c.ParamsInt("quotaId")
	if err != nil {
		return apperr.Validation("invalid quota id")
	}

	var req uncompleteQuotaRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return apperr.Validation("invalid request body")
	}
	targetUserID := req.UserID
	if targetUserID == 0 {
		targetUserID = actor.UserID
	}

	if err := h.evaluator.Uncomplete(workspace, uint(quotaID), targetUserID, actor); err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Quota completion reverted",
	})
}
