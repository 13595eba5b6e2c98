package services

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/crewtrack/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closedSession(userID int64, minutes, idle int64, archived bool) models.ActivitySession {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Duration(minutes) * time.Minute)
	return models.ActivitySession{
		UserID:          userID,
		StartTime:       start,
		EndTime:         &end,
		IdleTimeMinutes: idle,
		Archived:        archived,
	}
}

func TestSumEffectiveMinutes(t *testing.T) {
	sessions := []models.ActivitySession{
		closedSession(1, 60, 10, false),
		closedSession(1, 30, 0, false),
		closedSession(2, 45, 5, false),
		closedSession(2, 100, 0, true), // archived, ignored
		{UserID: 3, StartTime: time.Now().UTC()}, // still open, ignored
	}
	adjustments := []models.ActivityAdjustment{
		{UserID: 1, Minutes: 15},
		{UserID: 2, Minutes: -20},
		{UserID: 4, Minutes: 30},
		{UserID: 1, Minutes: 99, Archived: true}, // archived, ignored
	}

	totals := SumEffectiveMinutes(sessions, adjustments, true)

	assert.Equal(t, int64(50+30+15), totals[1])
	assert.Equal(t, int64(40-20), totals[2])
	assert.Equal(t, int64(30), totals[4])
	_, ok := totals[3]
	assert.False(t, ok, "open session should contribute nothing")
}

func TestSumEffectiveMinutesIdleDisabled(t *testing.T) {
	sessions := []models.ActivitySession{closedSession(1, 60, 45, false)}

	totals := SumEffectiveMinutes(sessions, nil, false)

	assert.Equal(t, int64(60), totals[1])
}

func TestSumEffectiveMinutesNoClamping(t *testing.T) {
	// Idle exceeding the duration yields a negative contribution; the sum
	// is not clamped at zero.
	sessions := []models.ActivitySession{
		closedSession(1, 30, 50, false),
	}
	adjustments := []models.ActivityAdjustment{
		{UserID: 1, Minutes: 5},
	}

	totals := SumEffectiveMinutes(sessions, adjustments, true)

	assert.Equal(t, int64(-15), totals[1])
}

func TestSumEffectiveMinutesRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for trial := 0; trial < 50; trial++ {
		var sessions []models.ActivitySession
		var want int64
		for i := 0; i < 20; i++ {
			minutes := rng.Int63n(300)
			idle := rng.Int63n(400) // may exceed the duration
			sessions = append(sessions, closedSession(1, minutes, idle, false))
			want += minutes - idle
		}

		totals := SumEffectiveMinutes(sessions, nil, true)
		assert.Equal(t, want, totals[1], "trial %d", trial)
	}
}

func TestCurrentPeriodStart(t *testing.T) {
	db := setupTestDB(t)
	workspace := createTestWorkspace(t, db, true)

	fallback := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, fallback, CurrentPeriodStart(db, workspace.ID, fallback))

	older := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&models.ActivityReset{WorkspaceID: workspace.ID, ResetAt: older}).Error)
	require.NoError(t, db.Create(&models.ActivityReset{WorkspaceID: workspace.ID, ResetAt: newer}).Error)

	got := CurrentPeriodStart(db, workspace.ID, fallback)
	assert.True(t, got.Equal(newer), "expected latest reset, got %v", got)
}

func TestCollectWindowStats(t *testing.T) {
	db := setupTestDB(t)
	workspace := createTestWorkspace(t, db, true)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)

	session := createClosedSession(t, db, workspace.ID, 1, start.Add(time.Hour), 60, 10)
	require.NoError(t, db.Model(session).Update("message_count", 25).Error)

	require.NoError(t, db.Create(&models.ActivityAdjustment{
		WorkspaceID: workspace.ID, UserID: 1, Minutes: -5, Reason: "afk", CreatedBy: 9,
		CreatedAt: start.Add(2 * time.Hour),
	}).Error)

	hostID := int64(1)
	endedAt := start.Add(3 * time.Hour)
	scheduled := &models.ScheduledSession{
		WorkspaceID: workspace.ID, Name: "Training", StartsAt: start.Add(2 * time.Hour),
		HostUserID: &hostID, EndedAt: &endedAt,
	}
	require.NoError(t, db.Create(scheduled).Error)
	require.NoError(t, db.Create(&models.SessionParticipant{
		ScheduledSessionID: scheduled.ID, WorkspaceID: workspace.ID, UserID: 2,
		CreatedAt: start.Add(3 * time.Hour),
	}).Error)

	require.NoError(t, db.Create(&models.WallPost{
		WorkspaceID: workspace.ID, UserID: 2, Body: "hello", CreatedAt: start.Add(time.Hour),
	}).Error)

	stats, err := CollectWindowStats(db, workspace, start, end)
	require.NoError(t, err)

	require.NotNil(t, stats[1])
	assert.Equal(t, int64(50-5), stats[1].Minutes)
	assert.Equal(t, int64(25), stats[1].Messages)
	assert.Equal(t, int64(10), stats[1].IdleTime)
	assert.Equal(t, int64(1), stats[1].SessionsHosted)

	require.NotNil(t, stats[2])
	assert.Equal(t, int64(1), stats[2].SessionsAttended)
	assert.Equal(t, int64(1), stats[2].WallPosts)
}

func TestAggregatorEffectiveMinutesWithoutCache(t *testing.T) {
	db := setupTestDB(t)
	workspace := createTestWorkspace(t, db, true)

	start := time.Now().UTC().Add(-2 * time.Hour)
	createClosedSession(t, db, workspace.ID, 7, start, 90, 15)

	aggregator := NewAggregator(nil)
	totals, err := aggregator.EffectiveMinutes(context.Background(), workspace)
	require.NoError(t, err)

	assert.Equal(t, int64(75), totals[7])
}
