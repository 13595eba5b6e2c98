package middleware

import (
	"strconv"
	"strings"

	"github.com/crewtrack/backend/internal/config"
	"github.com/crewtrack/backend/internal/database"
	"github.com/crewtrack/backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// JWTClaims represents the claims the web frontend puts in its tokens.
// This API never issues tokens; it only validates them.
type JWTClaims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// AuthRequired validates the bearer token and loads the caller's membership
// in the workspace named by the :workspaceId route param.
func AuthRequired(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Missing authorization header",
			})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Invalid authorization header format",
			})
		}

		token, err := jwt.ParseWithClaims(parts[1], &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
			return []byte(cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Invalid or expired token",
			})
		}

		claims, ok := token.Claims.(*JWTClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Invalid token claims",
			})
		}

		workspaceID, err := strconv.ParseUint(c.Params("workspaceId"), 10, 32)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Invalid workspace id",
			})
		}

		var member models.Member
		if err := database.DB.Preload("Role").
			Where("workspace_id = ? AND user_id = ? AND is_active = ?", workspaceID, claims.UserID, true).
			First(&member).Error; err != nil {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"message": "Not a member of this workspace",
			})
		}

		c.Locals("member", &member)
		c.Locals("userID", claims.UserID)
		c.Locals("username", claims.Username)
		c.Locals("workspaceID", uint(workspaceID))

		return c.Next()
	}
}

// AdminOnly restricts a route to members whose role is flagged admin
func AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		member := GetCurrentMember(c)
		if member == nil || member.Role == nil || !member.Role.IsAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"message": "Admin access required",
			})
		}
		return c.Next()
	}
}

// WorkspaceKeyRequired authenticates the session signal source with the
// workspace's API key (X-API-Key, compared against the stored bcrypt hash).
func WorkspaceKeyRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		workspaceID, err := strconv.ParseUint(c.Params("workspaceId"), 10, 32)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Invalid workspace id",
			})
		}

		key := c.Get("X-API-Key")
		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Missing API key",
			})
		}

		var workspace models.Workspace
		if err := database.DB.First(&workspace, workspaceID).Error; err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": "Workspace not found",
			})
		}

		if !workspace.IsActive || workspace.APIKey == "" ||
			bcrypt.CompareHashAndPassword([]byte(workspace.APIKey), []byte(key)) != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Invalid API key",
			})
		}

		c.Locals("workspace", &workspace)
		c.Locals("workspaceID", uint(workspaceID))

		return c.Next()
	}
}

// GetCurrentMember returns the authenticated member from context
func GetCurrentMember(c *fiber.Ctx) *models.Member {
	member, ok := c.Locals("member").(*models.Member)
	if !ok {
		return nil
	}
	return member
}

// GetCurrentUserID returns the authenticated user id from context
func GetCurrentUserID(c *fiber.Ctx) int64 {
	userID, ok := c.Locals("userID").(int64)
	if !ok {
		return 0
	}
	return userID
}

// GetWorkspaceID returns the workspace id resolved by auth middleware
func GetWorkspaceID(c *fiber.Ctx) uint {
	workspaceID, ok := c.Locals("workspaceID").(uint)
	if !ok {
		return 0
	}
	return workspaceID
}
