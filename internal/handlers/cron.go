package handlers

import (
	"crypto/subtle"
	"log"

	"github.com/crewtrack/backend/internal/apperr"
	"github.com/crewtrack/backend/internal/config"
	"github.com/crewtrack/backend/internal/database"
	"github.com/crewtrack/backend/internal/middleware"
	"github.com/crewtrack/backend/internal/models"
	"github.com/crewtrack/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type CronHandler struct {
	cfg         *config.Config
	coordinator *services.ResetCoordinator
}

func NewCronHandler(cfg *config.Config, coordinator *services.ResetCoordinator) *CronHandler {
	return &CronHandler{cfg: cfg, coordinator: coordinator}
}

// Trigger runs one reset tick over the current batch. Called by an external
// scheduler; authenticated with X-Cron-Secret. Always returns 200 with the
// per-workspace result array when authorized - individual failures are data,
// not an HTTP error.
func (h *CronHandler) Trigger(c *fiber.Ctx) error {
	secret := c.Get("X-Cron-Secret")
	if secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.cfg.CronSecret)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid cron secret",
		})
	}

	runID := uuid.New().String()
	log.Printf("Cron: activity tick %s starting", runID)

	results := h.coordinator.RunTick(c.Context())

	executed := 0
	for _, result := range results {
		if result.Success && !result.Skipped {
			executed++
		}
	}
	log.Printf("Cron: activity tick %s done, %d workspaces, %d resets", runID, len(results), executed)

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"run_id":  runID,
			"results": results,
		},
	})
}

// ManualReset archives the current period immediately, bypassing the
// schedule. Admin only; the reset row records who triggered it so the
// frequency gate for automatic resets is unaffected.
func (h *CronHandler) ManualReset(c *fiber.Ctx) error {
	workspaceID := middleware.GetWorkspaceID(c)
	actor := middleware.GetCurrentMember(c)

	var workspace models.Workspace
	if err := database.DB.First(&workspace, workspaceID).Error; err != nil {
		return apperr.NotFound("workspace not found")
	}

	if err := h.coordinator.ExecuteReset(c.Context(), &workspace, &actor.UserID); err != nil {
		return apperr.Internal("execute reset", err)
	}

	entry := models.AuditLog{
		WorkspaceID: workspace.ID,
		UserID:      actor.UserID,
		Username:    actor.Username,
		Action:      models.AuditActionActivityReset,
		EntityType:  "workspace",
		EntityID:    workspace.ID,
		Description: "manual activity reset",
	}
	if err := database.DB.Create(&entry).Error; err != nil {
		log.Printf("Cron: audit write failed for manual reset of workspace %d: %v", workspace.ID, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Activity reset completed",
	})
}
