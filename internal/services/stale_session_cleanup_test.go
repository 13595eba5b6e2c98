package services

import (
	"testing"
	"time"

	"github.com/crewtrack/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaleSessionCleanup(t *testing.T) {
	db := setupTestDB(t)
	workspace := createTestWorkspace(t, db, true)

	now := time.Now().UTC()

	stale := &models.ActivitySession{
		WorkspaceID: workspace.ID, UserID: 1,
		StartTime: now.Add(-5 * time.Hour), Active: true,
	}
	fresh := &models.ActivitySession{
		WorkspaceID: workspace.ID, UserID: 2,
		StartTime: now.Add(-30 * time.Minute), Active: true,
	}
	require.NoError(t, db.Create(stale).Error)
	require.NoError(t, db.Create(fresh).Error)

	service := NewStaleSessionCleanupService(180)
	service.cleanup()

	var closed models.ActivitySession
	require.NoError(t, db.First(&closed, stale.ID).Error)
	assert.False(t, closed.Active)
	require.NotNil(t, closed.EndTime)

	var open models.ActivitySession
	require.NoError(t, db.First(&open, fresh.ID).Error)
	assert.True(t, open.Active)
	assert.Nil(t, open.EndTime)
}

func TestNewStaleSessionCleanupDefaultsThreshold(t *testing.T) {
	service := NewStaleSessionCleanupService(0)
	assert.Equal(t, 180*time.Minute, service.staleThreshold)
}
