package middleware

import (
	"log"
	"regexp"
	"strings"

	"github.com/crewtrack/backend/internal/database"
	"github.com/crewtrack/backend/internal/models"
	"github.com/gofiber/fiber/v2"
)

// AuditLogger records mutating API actions. The insert is best effort; a
// failure is logged and never affects the response.
func AuditLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		method := c.Method()
		if method == "GET" || method == "HEAD" || method == "OPTIONS" {
			return c.Next()
		}

		path := c.Path()
		if strings.HasPrefix(path, "/health") || strings.Contains(path, "/cron/") {
			return c.Next()
		}

		member := GetCurrentMember(c)
		ip := c.IP()
		userAgent := c.Get("User-Agent")

		err := c.Next()

		statusCode := c.Response().StatusCode()
		if statusCode >= 200 && statusCode < 400 && member != nil {
			logAuditEntry(member, method, path, ip, userAgent)
		}

		return err
	}
}

var pathIDRegex = regexp.MustCompile(`/(\d+)(?:/|$)`)

func logAuditEntry(member *models.Member, method, path, ip, userAgent string) {
	var action models.AuditAction
	switch method {
	case "POST":
		action = models.AuditActionCreate
	case "PUT", "PATCH":
		action = models.AuditActionUpdate
	case "DELETE":
		action = models.AuditActionDelete
	default:
		return
	}

	entityType := entityTypeFromPath(path)
	if entityType == "" {
		return
	}

	entry := models.AuditLog{
		WorkspaceID: member.WorkspaceID,
		UserID:      member.UserID,
		Username:    member.Username,
		Action:      action,
		EntityType:  entityType,
		Description: string(action) + " " + entityType,
		IPAddress:   ip,
		UserAgent:   userAgent,
	}
	if err := database.DB.Create(&entry).Error; err != nil {
		log.Printf("Audit: failed to record %s %s: %v", method, path, err)
	}
}

func entityTypeFromPath(path string) string {
	switch {
	case strings.Contains(path, "/adjustments"):
		return "adjustment"
	case strings.Contains(path, "/quotas"):
		return "quota"
	case strings.Contains(path, "/sessions"):
		return "session"
	case strings.Contains(path, "/wall"):
		return "wall_post"
	case strings.Contains(path, "/alliance-visits"):
		return "alliance_visit"
	case strings.Contains(path, "/reset"):
		return "reset"
	case strings.Contains(path, "/activity"):
		return "activity"
	}
	return ""
}
