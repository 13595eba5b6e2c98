package handlers

import (
	"time"

	"github.com/crewtrack/backend/internal/apperr"
	"github.com/crewtrack/backend/internal/database"
	"github.com/crewtrack/backend/internal/middleware"
	"github.com/crewtrack/backend/internal/models"
	"github.com/gofiber/fiber/v2"
)

type WallHandler struct{}

func NewWallHandler() *WallHandler {
	return &WallHandler{}
}

// ListPosts returns the current period's wall posts, newest first
func (h *WallHandler) ListPosts(c *fiber.Ctx) error {
	workspaceID := middleware.GetWorkspaceID(c)

	var posts []models.WallPost
	if err := database.DB.Where("workspace_id = ? AND archived = ?", workspaceID, false).
		Order("created_at DESC").Limit(100).Find(&posts).Error; err != nil {
		return apperr.Internal("load wall posts", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    posts,
	})
}

type createPostRequest struct {
	Body string `json:"body"`
}

// CreatePost adds a wall post for the caller; per-member counts feed the
// period snapshot.
func (h *WallHandler) CreatePost(c *fiber.Ctx) error {
	workspaceID := middleware.GetWorkspaceID(c)
	userID := middleware.GetCurrentUserID(c)

	var req createPostRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.Body == "" {
		return apperr.Validation("body is required")
	}
	if len(req.Body) > 2000 {
		return apperr.Validation("body exceeds 2000 characters")
	}

	post := models.WallPost{
		WorkspaceID: workspaceID,
		UserID:      userID,
		Body:        req.Body,
	}
	if err := database.DB.Create(&post).Error; err != nil {
		return apperr.Internal("create wall post", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    post,
	})
}

type logVisitRequest struct {
	UserID     int64      `json:"user_id"`
	AllianceID uint       `json:"alliance_id"`
	VisitedAt  *time.Time `json:"visited_at"`
}

// LogVisit records an alliance visit (admin only, enforced by route
// middleware). Feeds the alliance_visits quota type.
func (h *WallHandler) LogVisit(c *fiber.Ctx) error {
	workspaceID := middleware.GetWorkspaceID(c)

	var req logVisitRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.UserID == 0 {
		return apperr.Validation("user_id is required")
	}

	visitedAt := time.Now().UTC()
	if req.VisitedAt != nil {
		visitedAt = req.VisitedAt.UTC()
	}

	visit := models.AllianceVisit{
		WorkspaceID: workspaceID,
		UserID:      req.UserID,
		AllianceID:  req.AllianceID,
		VisitedAt:   visitedAt,
	}
	if err := database.DB.Create(&visit).Error; err != nil {
		return apperr.Internal("log alliance visit", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    visit,
	})
}

// ListVisits returns a member's current-period alliance visits
func (h *WallHandler) ListVisits(c *fiber.Ctx) error {
	workspaceID := middleware.GetWorkspaceID(c)

	userID, err := c.ParamsInt("userId")
	if err != nil {
		return apperr.Validation("invalid user id")
	}

	var visits []models.AllianceVisit
	if err := database.DB.Where("workspace_id = ? AND user_id = ? AND archived = ?",
		workspaceID, int64(userID), false).
		Order("visited_at DESC").Find(&visits).Error; err != nil {
		return apperr.Internal("load alliance visits", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    visits,
	})
}
