package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/crewtrack/backend/internal/database"
	"github.com/crewtrack/backend/internal/models"
	"gorm.io/gorm"
)

// Skip reasons reported per workspace on a tick
const (
	SkipNoSchedule        = "no schedule configured"
	SkipNotDueToday       = "not due today"
	SkipAlreadyResetToday = "already reset today"
	SkipFrequencyGate     = "frequency gate not met"
)

// WorkspaceResetResult is one entry of the per-workspace result array a
// cron tick returns
type WorkspaceResetResult struct {
	WorkspaceID uint   `json:"workspace_id"`
	Success     bool   `json:"success"`
	Skipped     bool   `json:"skipped,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ResetDecision is the outcome of the per-workspace due check
type ResetDecision struct {
	Execute bool
	Reason  string
}

// EvaluateResetDue is the pure due check for one workspace on one tick: no
// schedule, wrong weekday, already reset today, or frequency gate each skip;
// otherwise execute. Absence of any prior automatic reset always passes the
// frequency gate.
func EvaluateResetDue(workspace *models.Workspace, lastAutoReset *time.Time, autoResetToday bool, now time.Time) ResetDecision {
	if !workspace.ResetEnabled {
		return ResetDecision{Reason: SkipNoSchedule}
	}
	if int(now.UTC().Weekday()) != workspace.ResetWeekday {
		return ResetDecision{Reason: SkipNotDueToday}
	}
	if autoResetToday {
		return ResetDecision{Reason: SkipAlreadyResetToday}
	}
	if lastAutoReset != nil {
		daysSince := int(now.UTC().Sub(lastAutoReset.UTC()).Hours() / 24)
		if daysSince < workspace.ResetFrequency.DaysBetweenResets() {
			return ResetDecision{Reason: SkipFrequencyGate}
		}
	}
	return ResetDecision{Execute: true}
}

// ResetCoordinator runs the periodic archival job. Each external cron tick
// processes the workspaces of the current batch, sequentially or
// concurrently by configuration; per-workspace failures are collected and
// never abort siblings.
type ResetCoordinator struct {
	evaluator  *QuotaEvaluator
	aggregator *Aggregator
	notifier   *Notifier
	concurrent bool
	now        func() time.Time
}

func NewResetCoordinator(evaluator *QuotaEvaluator, aggregator *Aggregator, notifier *Notifier, concurrent bool) *ResetCoordinator {
	return &ResetCoordinator{
		evaluator:  evaluator,
		aggregator: aggregator,
		notifier:   notifier,
		concurrent: concurrent,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RunTick evaluates every active workspace in the current batch
func (c *ResetCoordinator) RunTick(ctx context.Context) []WorkspaceResetResult {
	batch := CurrentBatch(c.now())

	var workspaces []models.Workspace
	if err := database.DB.Where("is_active = ? AND batch_id = ?", true, batch).Find(&workspaces).Error; err != nil {
		log.Printf("ResetCoordinator: failed to list workspaces for batch %d: %v", batch, err)
		return nil
	}

	log.Printf("ResetCoordinator: tick for batch %d, %d workspaces", batch, len(workspaces))

	results := make([]WorkspaceResetResult, len(workspaces))
	if c.concurrent {
		var wg sync.WaitGroup
		for i := range workspaces {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = c.processWorkspace(ctx, &workspaces[i])
			}(i)
		}
		wg.Wait()
	} else {
		for i := range workspaces {
			results[i] = c.processWorkspace(ctx, &workspaces[i])
		}
	}
	return results
}

// processWorkspace runs the due check and, when due, the archival
// transaction. Panics and errors stay contained to this workspace.
func (c *ResetCoordinator) processWorkspace(ctx context.Context, workspace *models.Workspace) (result WorkspaceResetResult) {
	result.WorkspaceID = workspace.ID

	defer func() {
		if r := recover(); r != nil {
			log.Printf("ResetCoordinator: panic in workspace %d: %v", workspace.ID, r)
			result.Success = false
			result.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	now := c.now()

	var lastAutoReset *time.Time
	var lastAuto models.ActivityReset
	err := database.DB.Where("workspace_id = ? AND reset_by_id IS NULL", workspace.ID).
		Order("reset_at DESC").First(&lastAuto).Error
	if err == nil {
		lastAutoReset = &lastAuto.ResetAt
	} else if err != gorm.ErrRecordNotFound {
		result.Error = fmt.Sprintf("load last reset: %v", err)
		return result
	}

	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	autoResetToday := lastAutoReset != nil && !lastAutoReset.Before(startOfToday)

	decision := EvaluateResetDue(workspace, lastAutoReset, autoResetToday, now)
	if !decision.Execute {
		result.Success = true
		result.Skipped = true
		result.Reason = decision.Reason
		return result
	}

	if err := c.ExecuteReset(ctx, workspace, nil); err != nil {
		log.Printf("ResetCoordinator: reset failed for workspace %d: %v", workspace.ID, err)
		result.Error = err.Error()
		return result
	}

	result.Success = true
	return result
}

// ExecuteReset snapshots the current period to history, inserts the reset
// boundary row and archives the source rows — one transaction per
// workspace, history written before archive flags so aggregation can never
// observe a half-archived period as still current. resetBy nil means
// automatic.
func (c *ResetCoordinator) ExecuteReset(ctx context.Context, workspace *models.Workspace, resetBy *int64) error {
	now := c.now()

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		periodStart := c.resolvePeriodStart(tx, workspace.ID, now)
		periodEnd := now

		stats, err := CollectWindowStats(tx, workspace, periodStart, periodEnd)
		if err != nil {
			return fmt.Errorf("collect stats: %w", err)
		}

		var members []models.Member
		if err := tx.Where("workspace_id = ? AND is_active = ?", workspace.ID, true).Find(&members).Error; err != nil {
			return fmt.Errorf("load members: %w", err)
		}

		for _, member := range members {
			memberStats := stats[member.UserID]
			if memberStats == nil {
				memberStats = &MemberWindowStats{}
			}

			progress, err := c.evaluator.ProgressSnapshot(tx, workspace, member.UserID, memberStats, periodStart)
			if err != nil {
				return fmt.Errorf("quota snapshot for user %d: %w", member.UserID, err)
			}

			// Only members with activity or at least one assigned quota
			// get a history row.
			if !memberStats.HasActivity() && len(progress) == 0 {
				continue
			}

			progressJSON, err := json.Marshal(progress)
			if err != nil {
				return fmt.Errorf("encode quota progress for user %d: %w", member.UserID, err)
			}

			history := models.ActivityHistory{
				WorkspaceID:      workspace.ID,
				UserID:           member.UserID,
				PeriodStart:      periodStart,
				PeriodEnd:        periodEnd,
				Minutes:          memberStats.Minutes,
				Messages:         memberStats.Messages,
				SessionsHosted:   memberStats.SessionsHosted,
				SessionsAttended: memberStats.SessionsAttended,
				IdleTime:         memberStats.IdleTime,
				WallPosts:        memberStats.WallPosts,
				QuotaProgress:    string(progressJSON),
			}
			if err := tx.Create(&history).Error; err != nil {
				return fmt.Errorf("write history for user %d: %w", member.UserID, err)
			}
		}

		reset := models.ActivityReset{
			WorkspaceID:         workspace.ID,
			ResetAt:             now,
			PreviousPeriodStart: periodStart,
			PreviousPeriodEnd:   periodEnd,
			ResetByID:           resetBy,
		}
		if err := tx.Create(&reset).Error; err != nil {
			return fmt.Errorf("write reset row: %w", err)
		}

		if err := c.archiveSources(tx, workspace.ID, periodStart, periodEnd); err != nil {
			return fmt.Errorf("archive sources: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	c.aggregator.InvalidateWorkspace(ctx, workspace.ID)
	c.notifier.Dispatch(workspace, EventResetPerformed, map[string]interface{}{
		"reset_at":  now,
		"automatic": resetBy == nil,
	})

	return nil
}

// resolvePeriodStart is the earliest non-archived ledger timestamp, or now
// when both ledgers are empty. Always read from the database, never the
// cache.
func (c *ResetCoordinator) resolvePeriodStart(tx *gorm.DB, workspaceID uint, now time.Time) time.Time {
	periodStart := now

	var firstSession models.ActivitySession
	if err := tx.Where("workspace_id = ? AND archived = ?", workspaceID, false).
		Order("start_time ASC").First(&firstSession).Error; err == nil {
		if firstSession.StartTime.Before(periodStart) {
			periodStart = firstSession.StartTime
		}
	}

	var firstAdjustment models.ActivityAdjustment
	if err := tx.Where("workspace_id = ? AND archived = ?", workspaceID, false).
		Order("created_at ASC").First(&firstAdjustment).Error; err == nil {
		if firstAdjustment.CreatedAt.Before(periodStart) {
			periodStart = firstAdjustment.CreatedAt
		}
	}

	return periodStart
}

// archiveSources soft-deletes the period's source rows. Sessions still open
// stay live so the one-active-session invariant and the pending end signal
// survive the reset; they roll into the next period when closed.
func (c *ResetCoordinator) archiveSources(tx *gorm.DB, workspaceID uint, periodStart, periodEnd time.Time) error {
	sessionUpdates := map[string]interface{}{
		"archived":             true,
		"archive_window_start": periodStart,
		"archive_window_end":   periodEnd,
	}
	if err := tx.Model(&models.ActivitySession{}).
		Where("workspace_id = ? AND archived = ? AND active = ?", workspaceID, false, false).
		Updates(sessionUpdates).Error; err != nil {
		return fmt.Errorf("sessions: %w", err)
	}

	archived := map[string]interface{}{"archived": true}

	if err := tx.Model(&models.ActivityAdjustment{}).
		Where("workspace_id = ? AND archived = ?", workspaceID, false).
		Updates(archived).Error; err != nil {
		return fmt.Errorf("adjustments: %w", err)
	}

	if err := tx.Model(&models.SessionParticipant{}).
		Where("workspace_id = ? AND archived = ?", workspaceID, false).
		Updates(archived).Error; err != nil {
		return fmt.Errorf("participants: %w", err)
	}

	if err := tx.Model(&models.ScheduledSession{}).
		Where("workspace_id = ? AND archived = ? AND starts_at <= ?", workspaceID, false, periodEnd).
		Updates(archived).Error; err != nil {
		return fmt.Errorf("scheduled sessions: %w", err)
	}

	if err := tx.Model(&models.UserQuotaCompletion{}).
		Where("workspace_id = ? AND archived = ?", workspaceID, false).
		Updates(archived).Error; err != nil {
		return fmt.Errorf("quota completions: %w", err)
	}

	if err := tx.Model(&models.WallPost{}).
		Where("workspace_id = ? AND archived = ?", workspaceID, false).
		Updates(archived).Error; err != nil {
		return fmt.Errorf("wall posts: %w", err)
	}

	if err := tx.Model(&models.AllianceVisit{}).
		Where("workspace_id = ? AND archived = ?", workspaceID, false).
		Updates(archived).Error; err != nil {
		return fmt.Errorf("alliance visits: %w", err)
	}

	return nil
}
