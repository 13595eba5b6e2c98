package handlers

import (
	"log"
	"time"

	"github.com/crewtrack/backend/internal/apperr"
	"github.com/crewtrack/backend/internal/database"
	"github.com/crewtrack/backend/internal/middleware"
	"github.com/crewtrack/backend/internal/models"
	"github.com/crewtrack/backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type ScheduleHandler struct {
	notifier *services.Notifier
}

func NewScheduleHandler(notifier *services.Notifier) *ScheduleHandler {
	return &ScheduleHandler{notifier: notifier}
}

// ListSessions returns the current period's scheduled sessions
func (h *ScheduleHandler) ListSessions(c *fiber.Ctx) error {
	workspaceID := middleware.GetWorkspaceID(c)

	var sessions []models.ScheduledSession
	if err := database.DB.Where("workspace_id = ? AND archived = ?", workspaceID, false).
		Order("starts_at ASC").Find(&sessions).Error; err != nil {
		return apperr.Internal("load scheduled sessions", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    sessions,
	})
}

type createSessionRequest struct {
	Name     string    `json:"name"`
	StartsAt time.Time `json:"starts_at"`
}

// CreateSession adds a scheduled session (admin only, enforced by route
// middleware)
func (h *ScheduleHandler) CreateSession(c *fiber.Ctx) error {
	workspaceID := middleware.GetWorkspaceID(c)

	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.Name == "" {
		return apperr.Validation("name is required")
	}
	if req.StartsAt.IsZero() {
		return apperr.Validation("starts_at is required")
	}

	session := models.ScheduledSession{
		WorkspaceID: workspaceID,
		Name:        req.Name,
		StartsAt:    req.StartsAt.UTC(),
	}
	if err := database.DB.Create(&session).Error; err != nil {
		return apperr.Internal("create scheduled session", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    session,
	})
}

// Claim takes hosting of an unclaimed session. The conditional update makes
// concurrent claims race safely: exactly one caller flips host_user_id.
func (h *ScheduleHandler) Claim(c *fiber.Ctx) error {
	workspace, err := loadWorkspace(c)
	if err != nil {
		return err
	}
	actor := middleware.GetCurrentMember(c)

	sessionID, err := c.ParamsInt("sessionId")
	if err != nil {
		return apperr.Validation("invalid session id")
	}

	var session models.ScheduledSession
	if err := database.DB.Where("workspace_id = ? AND archived = ?", workspace.ID, false).
		First(&session, sessionID).Error; err != nil {
		return apperr.NotFound("scheduled session not found")
	}
	if session.HostUserID != nil {
		return apperr.Conflict("session already claimed")
	}

	now := time.Now().UTC()
	result := database.DB.Model(&models.ScheduledSession{}).
		Where("id = ? AND host_user_id IS NULL", session.ID).
		Updates(map[string]interface{}{
			"host_user_id": actor.UserID,
			"claimed_at":   now,
		})
	if result.Error != nil {
		return apperr.Internal("claim session", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.Conflict("session already claimed")
	}

	entry := models.AuditLog{
		WorkspaceID: workspace.ID,
		UserID:      actor.UserID,
		Username:    actor.Username,
		Action:      models.AuditActionSessionClaim,
		EntityType:  "scheduled_session",
		EntityID:    session.ID,
		Description: session.Name,
	}
	if err := database.DB.Create(&entry).Error; err != nil {
		log.Printf("Schedule: audit write failed for claim of session %d: %v", session.ID, err)
	}

	h.notifier.Dispatch(workspace, services.EventSessionClaimed, map[string]interface{}{
		"session_id":   session.ID,
		"session_name": session.Name,
		"host_user_id": actor.UserID,
	})

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Session claimed",
	})
}

// End closes a claimed session; only then does it count toward the host's
// sessions_hosted.
func (h *ScheduleHandler) End(c *fiber.Ctx) error {
	workspaceID := middleware.GetWorkspaceID(c)
	actor := middleware.GetCurrentMember(c)

	sessionID, err := c.ParamsInt("sessionId")
	if err != nil {
		return apperr.Validation("invalid session id")
	}

	var session models.ScheduledSession
	if err := database.DB.Where("workspace_id = ? AND archived = ?", workspaceID, false).
		First(&session, sessionID).Error; err != nil {
		return apperr.NotFound("scheduled session not found")
	}
	if session.HostUserID == nil {
		return apperr.Validation("session has not been claimed")
	}

	isAdmin := actor.Role != nil && actor.Role.IsAdmin
	if *session.HostUserID != actor.UserID && !isAdmin {
		return apperr.Permission("only the host may end this session")
	}
	if session.EndedAt != nil {
		return apperr.Conflict("session already ended")
	}

	now := time.Now().UTC()
	if err := database.DB.Model(&session).Update("ended_at", now).Error; err != nil {
		return apperr.Internal("end session", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Session ended",
	})
}

type logAttendanceRequest struct {
	UserIDs []int64 `json:"user_ids"`
}

// LogAttendance records attendees of an ended session. Duplicate entries
// hit the (session, user) unique index and are skipped.
func (h *ScheduleHandler) LogAttendance(c *fiber.Ctx) error {
	workspaceID := middleware.GetWorkspaceID(c)
	actor := middleware.GetCurrentMember(c)

	sessionID, err := c.ParamsInt("sessionId")
	if err != nil {
		return apperr.Validation("invalid session id")
	}

	var req logAttendanceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if len(req.UserIDs) == 0 {
		return apperr.Validation("user_ids is required")
	}

	var session models.ScheduledSession
	if err := database.DB.Where("workspace_id = ? AND archived = ?", workspaceID, false).
		First(&session, sessionID).Error; err != nil {
		return apperr.NotFound("scheduled session not found")
	}

	isAdmin := actor.Role != nil && actor.Role.IsAdmin
	if session.HostUserID == nil || (*session.HostUserID != actor.UserID && !isAdmin) {
		return apperr.Permission("only the host may log attendance")
	}

	logged := 0
	for _, userID := range req.UserIDs {
		var existing int64
		if err := database.DB.Model(&models.SessionParticipant{}).
			Where("scheduled_session_id = ? AND user_id = ?", session.ID, userID).
			Count(&existing).Error; err != nil {
			log.Printf("Schedule: attendance lookup failed for session %d user %d: %v", session.ID, userID, err)
			continue
		}
		if existing > 0 {
			continue
		}

		participant := models.SessionParticipant{
			ScheduledSessionID: session.ID,
			WorkspaceID:        workspaceID,
			UserID:             userID,
		}
		if err := database.DB.Create(&participant).Error; err != nil {
			log.Printf("Schedule: attendance insert failed for session %d user %d: %v", session.ID, userID, err)
			continue
		}
		logged++
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"logged": logged,
		},
	})
}
