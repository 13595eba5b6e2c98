package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/crewtrack/backend/internal/database"
	"github.com/crewtrack/backend/internal/models"
	"gorm.io/gorm"
)

// SumEffectiveMinutes folds session and adjustment ledgers into per-user
// effective minutes. Only closed, non-archived sessions count; idle time is
// subtracted when the workspace tracks it, with no clamping at zero (a
// session with idle >= duration contributes a non-positive amount as-is).
func SumEffectiveMinutes(sessions []models.ActivitySession, adjustments []models.ActivityAdjustment, idleEnabled bool) map[int64]int64 {
	totals := make(map[int64]int64)

	for _, session := range sessions {
		if session.EndTime == nil || session.Archived {
			continue
		}
		minutes := session.DurationMinutes()
		if idleEnabled {
			minutes -= session.IdleTimeMinutes
		}
		totals[session.UserID] += minutes
	}

	for _, adjustment := range adjustments {
		if adjustment.Archived {
			continue
		}
		totals[adjustment.UserID] += adjustment.Minutes
	}

	return totals
}

// CurrentPeriodStart resolves the period boundary: the most recent
// ActivityReset by reset_at, or fallback (workspace creation) when the
// workspace has never reset. The boundary is always read from the database,
// never from the cache.
func CurrentPeriodStart(db *gorm.DB, workspaceID uint, fallback time.Time) time.Time {
	var reset models.ActivityReset
	err := db.Where("workspace_id = ?", workspaceID).
		Order("reset_at DESC").
		First(&reset).Error
	if err != nil {
		return fallback
	}
	return reset.ResetAt
}

// MemberWindowStats is the per-member activity rollup for one window,
// matching the columns of an ActivityHistory row.
type MemberWindowStats struct {
	Minutes          int64
	Messages         int64
	SessionsHosted   int64
	SessionsAttended int64
	IdleTime         int64
	WallPosts        int64
}

// HasActivity reports whether any counter is nonzero
func (s *MemberWindowStats) HasActivity() bool {
	return s.Minutes != 0 || s.Messages != 0 || s.SessionsHosted != 0 ||
		s.SessionsAttended != 0 || s.IdleTime != 0 || s.WallPosts != 0
}

// CollectWindowStats loads the non-archived ledgers for [start, end] and
// rolls them up per member. It runs against the caller's db handle so the
// reset coordinator can use it inside a transaction.
func CollectWindowStats(db *gorm.DB, workspace *models.Workspace, start, end time.Time) (map[int64]*MemberWindowStats, error) {
	stats := make(map[int64]*MemberWindowStats)
	get := func(userID int64) *MemberWindowStats {
		if s, ok := stats[userID]; ok {
			return s
		}
		s := &MemberWindowStats{}
		stats[userID] = s
		return s
	}

	var sessions []models.ActivitySession
	if err := db.Where("workspace_id = ? AND archived = ? AND end_time IS NOT NULL AND start_time >= ? AND start_time <= ?",
		workspace.ID, false, start, end).Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	for _, session := range sessions {
		s := get(session.UserID)
		minutes := session.DurationMinutes()
		if workspace.IdleTrackingEnabled {
			minutes -= session.IdleTimeMinutes
		}
		s.Minutes += minutes
		s.Messages += session.MessageCount
		s.IdleTime += session.IdleTimeMinutes
	}

	var adjustments []models.ActivityAdjustment
	if err := db.Where("workspace_id = ? AND archived = ? AND created_at >= ? AND created_at <= ?",
		workspace.ID, false, start, end).Find(&adjustments).Error; err != nil {
		return nil, fmt.Errorf("load adjustments: %w", err)
	}
	for _, adjustment := range adjustments {
		get(adjustment.UserID).Minutes += adjustment.Minutes
	}

	var hosted []models.ScheduledSession
	if err := db.Where("workspace_id = ? AND archived = ? AND host_user_id IS NOT NULL AND ended_at IS NOT NULL AND starts_at >= ? AND starts_at <= ?",
		workspace.ID, false, start, end).Find(&hosted).Error; err != nil {
		return nil, fmt.Errorf("load hosted sessions: %w", err)
	}
	for _, session := range hosted {
		get(*session.HostUserID).SessionsHosted++
	}

	var participants []models.SessionParticipant
	if err := db.Where("workspace_id = ? AND archived = ? AND created_at >= ? AND created_at <= ?",
		workspace.ID, false, start, end).Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	for _, participant := range participants {
		get(participant.UserID).SessionsAttended++
	}

	var wallCounts []struct {
		UserID int64
		Total  int64
	}
	if err := db.Model(&models.WallPost{}).
		Select("user_id, COUNT(*) as total").
		Where("workspace_id = ? AND archived = ? AND created_at >= ? AND created_at <= ?",
			workspace.ID, false, start, end).
		Group("user_id").
		Scan(&wallCounts).Error; err != nil {
		return nil, fmt.Errorf("load wall posts: %w", err)
	}
	for _, row := range wallCounts {
		get(row.UserID).WallPosts = row.Total
	}

	return stats, nil
}

// CountAllianceVisits counts a member's non-archived alliance visits since
// the window start
func CountAllianceVisits(db *gorm.DB, workspaceID uint, userID int64, since time.Time) (int64, error) {
	var count int64
	err := db.Model(&models.AllianceVisit{}).
		Where("workspace_id = ? AND user_id = ? AND archived = ? AND visited_at >= ?",
			workspaceID, userID, false, since).
		Count(&count).Error
	return count, err
}

// Aggregator computes current-period effective minutes, fronted by a
// stale-while-revalidate cache to absorb read bursts. The cache is never
// consulted for reset decisions.
type Aggregator struct {
	cache *database.ActivityCache
}

func NewAggregator(cache *database.ActivityCache) *Aggregator {
	return &Aggregator{cache: cache}
}

// EffectiveMinutes returns the per-user effective minute totals for the
// current period of a workspace.
func (a *Aggregator) EffectiveMinutes(ctx context.Context, workspace *models.Workspace) (map[int64]int64, error) {
	cacheKey := fmt.Sprintf("%s%d", database.CacheKeyAggregate, workspace.ID)

	var cached map[int64]int64
	hit, stale := a.cache.Get(ctx, cacheKey, &cached)
	if hit && !stale {
		return cached, nil
	}
	if hit && stale {
		// Serve the stale copy, refresh out of band
		go func() {
			if _, err := a.refresh(context.Background(), workspace, cacheKey); err != nil {
				log.Printf("Aggregator: background refresh failed for workspace %d: %v", workspace.ID, err)
			}
		}()
		return cached, nil
	}

	return a.refresh(ctx, workspace, cacheKey)
}

func (a *Aggregator) refresh(ctx context.Context, workspace *models.Workspace, cacheKey string) (map[int64]int64, error) {
	totals, err := a.computeCurrentPeriod(workspace)
	if err != nil {
		return nil, err
	}
	if err := a.cache.Set(ctx, cacheKey, totals); err != nil {
		log.Printf("Aggregator: cache write failed for workspace %d: %v", workspace.ID, err)
	}
	return totals, nil
}

func (a *Aggregator) computeCurrentPeriod(workspace *models.Workspace) (map[int64]int64, error) {
	periodStart := CurrentPeriodStart(database.DB, workspace.ID, workspace.CreatedAt)

	var sessions []models.ActivitySession
	if err := database.DB.Where("workspace_id = ? AND archived = ? AND end_time IS NOT NULL AND start_time >= ?",
		workspace.ID, false, periodStart).Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	var adjustments []models.ActivityAdjustment
	if err := database.DB.Where("workspace_id = ? AND archived = ? AND created_at >= ?",
		workspace.ID, false, periodStart).Find(&adjustments).Error; err != nil {
		return nil, fmt.Errorf("load adjustments: %w", err)
	}

	return SumEffectiveMinutes(sessions, adjustments, workspace.IdleTrackingEnabled), nil
}

// InvalidateWorkspace drops cached aggregates after a reset shifts the
// period boundary
func (a *Aggregator) InvalidateWorkspace(ctx context.Context, workspaceID uint) {
	a.cache.Invalidate(ctx,
		fmt.Sprintf("%s%d", database.CacheKeyAggregate, workspaceID),
		fmt.Sprintf("%s%d", database.CacheKeyLeaderboard, workspaceID),
	)
}
