package services

import (
	"testing"
	"time"

	"github.com/crewtrack/backend/internal/database"
	"github.com/crewtrack/backend/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB swaps the global handle for an in-memory database. Tests in
// this package run sequentially against it.
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

func createTestWorkspace(t *testing.T, db *gorm.DB, idleTracking bool) *models.Workspace {
	t.Helper()
	workspace := &models.Workspace{
		Name:                "Test Group",
		GroupID:             1000,
		IsActive:            true,
		IdleTrackingEnabled: idleTracking,
		BatchID:             1,
	}
	require.NoError(t, db.Create(workspace).Error)
	return workspace
}

func createTestMember(t *testing.T, db *gorm.DB, workspaceID uint, userID int64, username string, role *models.Role) *models.Member {
	t.Helper()
	member := &models.Member{
		WorkspaceID: workspaceID,
		UserID:      userID,
		Username:    username,
		IsActive:    true,
	}
	if role != nil {
		member.RoleID = &role.ID
		member.Role = role
	}
	require.NoError(t, db.Create(member).Error)
	return member
}

func createTestRole(t *testing.T, db *gorm.DB, workspaceID uint, name string, isAdmin, canSignoff bool) *models.Role {
	t.Helper()
	role := &models.Role{
		WorkspaceID: workspaceID,
		Name:        name,
		IsAdmin:     isAdmin,
		CanSignoff:  canSignoff,
	}
	require.NoError(t, db.Create(role).Error)
	return role
}

func createClosedSession(t *testing.T, db *gorm.DB, workspaceID uint, userID int64, start time.Time, minutes, idleMinutes int64) *models.ActivitySession {
	t.Helper()
	end := start.Add(time.Duration(minutes) * time.Minute)
	session := &models.ActivitySession{
		WorkspaceID:     workspaceID,
		UserID:          userID,
		StartTime:       start,
		EndTime:         &end,
		Active:          false,
		IdleTimeMinutes: idleMinutes,
	}
	require.NoError(t, db.Create(session).Error)
	return session
}
