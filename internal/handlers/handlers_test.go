package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crewtrack/backend/internal/database"
	"github.com/crewtrack/backend/internal/middleware"
	"github.com/crewtrack/backend/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.AutoMigrate(db))

	previous := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = previous
		sqlDB.Close()
	})

	return db
}

func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler,
	})
}

func createSignalWorkspace(t *testing.T, db *gorm.DB, apiKey string) *models.Workspace {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.MinCost)
	require.NoError(t, err)

	workspace := &models.Workspace{
		Name:                "Test Group",
		GroupID:             1000,
		APIKey:              string(hash),
		IsActive:            true,
		IdleTrackingEnabled: true,
		BatchID:             1,
	}
	require.NoError(t, db.Create(workspace).Error)
	return workspace
}

func jsonRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

// registerSignalRoutes mounts the session signal routes the way main does
func registerSignalRoutes(app *fiber.App, handler *ActivityHandler) {
	signals := app.Group("/api/workspaces/:workspaceId/activity", middleware.WorkspaceKeyRequired())
	signals.Post("/start", handler.StartSession)
	signals.Post("/end", handler.EndSession)
}
