package services

import (
	"context"
	"testing"
	"time"

	"github.com/crewtrack/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateResetDue(t *testing.T) {
	// Monday 2026-03-02, 10:00 UTC
	monday := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	scheduled := func(weekday int, frequency models.ResetFrequency) *models.Workspace {
		return &models.Workspace{
			ResetEnabled:   true,
			ResetWeekday:   weekday,
			ResetFrequency: frequency,
		}
	}
	daysAgo := func(days int) *time.Time {
		at := monday.AddDate(0, 0, -days)
		return &at
	}

	tests := []struct {
		name           string
		workspace      *models.Workspace
		lastAutoReset  *time.Time
		autoResetToday bool
		wantExecute    bool
		wantReason     string
	}{
		{
			name:        "disabled schedule",
			workspace:   &models.Workspace{ResetEnabled: false, ResetWeekday: 1},
			wantReason:  SkipNoSchedule,
		},
		{
			name:       "wrong weekday",
			workspace:  scheduled(3, models.ResetFrequencyWeekly),
			wantReason: SkipNotDueToday,
		},
		{
			name:           "already reset today",
			workspace:      scheduled(1, models.ResetFrequencyWeekly),
			lastAutoReset:  daysAgo(0),
			autoResetToday: true,
			wantReason:     SkipAlreadyResetToday,
		},
		{
			name:          "weekly gate not met",
			workspace:     scheduled(1, models.ResetFrequencyWeekly),
			lastAutoReset: daysAgo(5),
			wantReason:    SkipFrequencyGate,
		},
		{
			name:          "weekly gate met",
			workspace:     scheduled(1, models.ResetFrequencyWeekly),
			lastAutoReset: daysAgo(7),
			wantExecute:   true,
		},
		{
			name:          "biweekly gate not met",
			workspace:     scheduled(1, models.ResetFrequencyBiweekly),
			lastAutoReset: daysAgo(7),
			wantReason:    SkipFrequencyGate,
		},
		{
			name:          "monthly gate met",
			workspace:     scheduled(1, models.ResetFrequencyMonthly),
			lastAutoReset: daysAgo(28),
			wantExecute:   true,
		},
		{
			name:        "never reset before",
			workspace:   scheduled(1, models.ResetFrequencyMonthly),
			wantExecute: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := EvaluateResetDue(tt.workspace, tt.lastAutoReset, tt.autoResetToday, monday)
			assert.Equal(t, tt.wantExecute, decision.Execute)
			if !tt.wantExecute {
				assert.Equal(t, tt.wantReason, decision.Reason)
			}
		})
	}
}

func newTestCoordinator(at time.Time) *ResetCoordinator {
	coordinator := NewResetCoordinator(NewQuotaEvaluator(NewNotifier()), NewAggregator(nil), NewNotifier(), false)
	coordinator.now = func() time.Time { return at }
	return coordinator
}

func TestExecuteResetArchivesClosedPeriod(t *testing.T) {
	db := setupTestDB(t)
	workspace := createTestWorkspace(t, db, true)
	createTestMember(t, db, workspace.ID, 1, "alice", nil)
	createTestMember(t, db, workspace.ID, 2, "bob", nil)

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	periodStart := now.AddDate(0, 0, -7)

	closed := createClosedSession(t, db, workspace.ID, 1, periodStart.Add(time.Hour), 60, 10)
	open := &models.ActivitySession{
		WorkspaceID: workspace.ID, UserID: 2,
		StartTime: now.Add(-20 * time.Minute), Active: true,
	}
	require.NoError(t, db.Create(open).Error)
	require.NoError(t, db.Create(&models.ActivityAdjustment{
		WorkspaceID: workspace.ID, UserID: 1, Minutes: 30, Reason: "event cover",
		CreatedBy: 9, CreatedAt: periodStart.Add(2 * time.Hour),
	}).Error)

	coordinator := newTestCoordinator(now)
	require.NoError(t, coordinator.ExecuteReset(context.Background(), workspace, nil))

	// History snapshot written for the member with activity
	var history []models.ActivityHistory
	require.NoError(t, db.Where("workspace_id = ?", workspace.ID).Find(&history).Error)
	require.Len(t, history, 1)
	assert.Equal(t, int64(1), history[0].UserID)
	assert.Equal(t, int64(50+30), history[0].Minutes)
	assert.Equal(t, int64(10), history[0].IdleTime)

	// Boundary row is automatic
	var reset models.ActivityReset
	require.NoError(t, db.Where("workspace_id = ?", workspace.ID).First(&reset).Error)
	assert.Nil(t, reset.ResetByID)
	assert.True(t, reset.ResetAt.Equal(now))

	// Closed session archived with its window; open session untouched
	var archivedSession models.ActivitySession
	require.NoError(t, db.First(&archivedSession, closed.ID).Error)
	assert.True(t, archivedSession.Archived)
	require.NotNil(t, archivedSession.ArchiveWindowEnd)
	assert.True(t, archivedSession.ArchiveWindowEnd.Equal(now))

	var openSession models.ActivitySession
	require.NoError(t, db.First(&openSession, open.ID).Error)
	assert.False(t, openSession.Archived)
	assert.True(t, openSession.Active)

	// Fresh period aggregates to zero
	aggregator := NewAggregator(nil)
	totals, err := aggregator.EffectiveMinutes(context.Background(), workspace)
	require.NoError(t, err)
	assert.Equal(t, int64(0), totals[1])
}

func TestProcessWorkspaceSameDayIdempotence(t *testing.T) {
	db := setupTestDB(t)

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) // Monday
	workspace := createTestWorkspace(t, db, true)
	require.NoError(t, db.Model(workspace).Updates(map[string]interface{}{
		"reset_enabled":   true,
		"reset_weekday":   int(now.Weekday()),
		"reset_frequency": models.ResetFrequencyWeekly,
	}).Error)
	require.NoError(t, db.First(workspace, workspace.ID).Error)
	createTestMember(t, db, workspace.ID, 1, "alice", nil)
	createClosedSession(t, db, workspace.ID, 1, now.Add(-time.Hour), 30, 0)

	coordinator := newTestCoordinator(now)

	first := coordinator.processWorkspace(context.Background(), workspace)
	assert.True(t, first.Success)
	assert.False(t, first.Skipped)

	second := coordinator.processWorkspace(context.Background(), workspace)
	assert.True(t, second.Success)
	assert.True(t, second.Skipped)
	assert.Equal(t, SkipAlreadyResetToday, second.Reason)

	var count int64
	require.NoError(t, db.Model(&models.ActivityReset{}).
		Where("workspace_id = ? AND reset_by_id IS NULL", workspace.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestManualResetDoesNotBlockAutomatic(t *testing.T) {
	db := setupTestDB(t)

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	workspace := createTestWorkspace(t, db, true)
	require.NoError(t, db.Model(workspace).Updates(map[string]interface{}{
		"reset_enabled":   true,
		"reset_weekday":   int(now.Weekday()),
		"reset_frequency": models.ResetFrequencyWeekly,
	}).Error)
	require.NoError(t, db.First(workspace, workspace.ID).Error)
	createTestMember(t, db, workspace.ID, 1, "alice", nil)

	// A manual reset earlier today must not trip the already-reset-today
	// check: only automatic resets count there.
	actorID := int64(99)
	require.NoError(t, db.Create(&models.ActivityReset{
		WorkspaceID: workspace.ID,
		ResetAt:     now.Add(-2 * time.Hour),
		ResetByID:   &actorID,
	}).Error)

	coordinator := newTestCoordinator(now)
	result := coordinator.processWorkspace(context.Background(), workspace)
	assert.True(t, result.Success)
	assert.False(t, result.Skipped)
}

func TestRunTickFiltersByBatch(t *testing.T) {
	db := setupTestDB(t)

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) // even hour, first half: batch 1
	inBatch := createTestWorkspace(t, db, true)
	outOfBatch := createTestWorkspace(t, db, true)
	require.NoError(t, db.Model(outOfBatch).Update("batch_id", 3).Error)

	coordinator := newTestCoordinator(now)
	results := coordinator.RunTick(context.Background())

	require.Len(t, results, 1)
	assert.Equal(t, inBatch.ID, results[0].WorkspaceID)
	assert.True(t, results[0].Skipped)
	assert.Equal(t, SkipNoSchedule, results[0].Reason)
}
