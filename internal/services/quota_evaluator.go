package services

import (
	"fmt"
	"log"
	"time"

	"github.com/crewtrack/backend/internal/apperr"
	"github.com/crewtrack/backend/internal/database"
	"github.com/crewtrack/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MetricProgress is progress against a ledger-derived target. Percent is
// clamped to [0,100] for display; Met comes from the unclamped ratio.
type MetricProgress struct {
	Target  int64   `json:"target"`
	Current int64   `json:"current"`
	Percent float64 `json:"percent"`
	Met     bool    `json:"met"`
}

// CustomProgress mirrors the completion row of a custom quota
type CustomProgress struct {
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
	CompletedBy *int64     `json:"completed_by"`
	Notes       string     `json:"notes,omitempty"`
}

// QuotaProgress is the tagged union over quota kind: exactly one of Metric
// or Custom is set, resolved once at evaluation.
type QuotaProgress struct {
	QuotaID uint             `json:"quota_id"`
	Name    string           `json:"name"`
	Type    models.QuotaType `json:"type"`
	Metric  *MetricProgress  `json:"metric,omitempty"`
	Custom  *CustomProgress  `json:"custom,omitempty"`
}

// QuotaEvaluator resolves quota assignments, computes progress and owns the
// custom-quota completion workflow.
type QuotaEvaluator struct {
	notifier *Notifier
}

func NewQuotaEvaluator(notifier *Notifier) *QuotaEvaluator {
	return &QuotaEvaluator{notifier: notifier}
}

// QuotasForUser returns the deduplicated union of quotas reachable through
// the member's role link or any of their department links.
func (e *QuotaEvaluator) QuotasForUser(db *gorm.DB, workspaceID uint, userID int64) ([]models.Quota, error) {
	var member models.Member
	if err := db.Where("workspace_id = ? AND user_id = ?", workspaceID, userID).First(&member).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("member not found in workspace")
		}
		return nil, apperr.Internal("load member", err)
	}

	quotaIDs := make(map[uint]struct{})

	if member.RoleID != nil {
		var roleLinks []models.QuotaRole
		if err := db.Where("role_id = ?", *member.RoleID).Find(&roleLinks).Error; err != nil {
			return nil, apperr.Internal("load role quota links", err)
		}
		for _, link := range roleLinks {
			quotaIDs[link.QuotaID] = struct{}{}
		}
	}

	var departmentLinks []models.DepartmentMember
	if err := db.Where("member_id = ?", member.ID).Find(&departmentLinks).Error; err != nil {
		return nil, apperr.Internal("load department memberships", err)
	}
	if len(departmentLinks) > 0 {
		departmentIDs := make([]uint, 0, len(departmentLinks))
		for _, link := range departmentLinks {
			departmentIDs = append(departmentIDs, link.DepartmentID)
		}
		var quotaLinks []models.QuotaDepartment
		if err := db.Where("department_id IN ?", departmentIDs).Find(&quotaLinks).Error; err != nil {
			return nil, apperr.Internal("load department quota links", err)
		}
		for _, link := range quotaLinks {
			quotaIDs[link.QuotaID] = struct{}{}
		}
	}

	if len(quotaIDs) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(quotaIDs))
	for id := range quotaIDs {
		ids = append(ids, id)
	}

	var quotas []models.Quota
	if err := db.Where("workspace_id = ? AND id IN ?", workspaceID, ids).
		Order("id ASC").Find(&quotas).Error; err != nil {
		return nil, apperr.Internal("load quotas", err)
	}
	return quotas, nil
}

// MetricCurrent pulls the current value for a metric quota out of the
// window stats. sessions_logged is hosted + attended.
func MetricCurrent(quota models.Quota, stats *MemberWindowStats, allianceVisits int64) int64 {
	if stats == nil {
		stats = &MemberWindowStats{}
	}
	switch quota.Type {
	case models.QuotaTypeMinutes:
		return stats.Minutes
	case models.QuotaTypeSessionsHosted:
		return stats.SessionsHosted
	case models.QuotaTypeSessionsAttended:
		return stats.SessionsAttended
	case models.QuotaTypeSessionsLogged:
		return stats.SessionsHosted + stats.SessionsAttended
	case models.QuotaTypeAllianceVisits:
		return allianceVisits
	}
	return 0
}

// EvaluateMetric computes display percent (clamped) and completion (from
// the unclamped ratio).
func EvaluateMetric(target, current int64) *MetricProgress {
	progress := &MetricProgress{Target: target, Current: current}
	if target <= 0 {
		progress.Percent = 100
		progress.Met = true
		return progress
	}

	ratio := float64(current) / float64(target) * 100
	progress.Met = ratio >= 100

	switch {
	case ratio < 0:
		progress.Percent = 0
	case ratio > 100:
		progress.Percent = 100
	default:
		progress.Percent = ratio
	}
	return progress
}

// ProgressSnapshot evaluates every quota assigned to the user over the
// window starting at periodStart. stats may be nil for a member with no
// ledger rows. Runs against the caller's db handle so the reset coordinator
// can snapshot inside its transaction.
func (e *QuotaEvaluator) ProgressSnapshot(db *gorm.DB, workspace *models.Workspace, userID int64, stats *MemberWindowStats, periodStart time.Time) ([]QuotaProgress, error) {
	quotas, err := e.QuotasForUser(db, workspace.ID, userID)
	if err != nil {
		return nil, err
	}
	if len(quotas) == 0 {
		return nil, nil
	}

	var allianceVisits int64
	for _, quota := range quotas {
		if quota.Type == models.QuotaTypeAllianceVisits {
			allianceVisits, err = CountAllianceVisits(db, workspace.ID, userID, periodStart)
			if err != nil {
				return nil, apperr.Internal("count alliance visits", err)
			}
			break
		}
	}

	progress := make([]QuotaProgress, 0, len(quotas))
	for _, quota := range quotas {
		entry := QuotaProgress{QuotaID: quota.ID, Name: quota.Name, Type: quota.Type}

		if quota.Type.IsMetric() {
			entry.Metric = EvaluateMetric(quota.Value, MetricCurrent(quota, stats, allianceVisits))
		} else {
			var completion models.UserQuotaCompletion
			err := db.Where("quota_id = ? AND workspace_id = ? AND user_id = ? AND archived = ?",
				quota.ID, workspace.ID, userID, false).First(&completion).Error
			if err != nil && err != gorm.ErrRecordNotFound {
				return nil, apperr.Internal("load quota completion", err)
			}
			entry.Custom = &CustomProgress{
				Completed:   completion.Completed,
				CompletedAt: completion.CompletedAt,
				CompletedBy: completion.CompletedBy,
				Notes:       completion.Notes,
			}
		}
		progress = append(progress, entry)
	}
	return progress, nil
}

// Progress evaluates the current period for one member
func (e *QuotaEvaluator) Progress(workspace *models.Workspace, userID int64) ([]QuotaProgress, error) {
	periodStart := CurrentPeriodStart(database.DB, workspace.ID, workspace.CreatedAt)
	allStats, err := CollectWindowStats(database.DB, workspace, periodStart, time.Now().UTC())
	if err != nil {
		return nil, apperr.Internal("collect window stats", err)
	}
	return e.ProgressSnapshot(database.DB, workspace, userID, allStats[userID], periodStart)
}

// loadCustomQuota fetches a quota and verifies it is custom and belongs to
// the workspace. Cross-workspace lookups surface as NotFound.
func (e *QuotaEvaluator) loadCustomQuota(workspaceID, quotaID uint) (*models.Quota, error) {
	var quota models.Quota
	if err := database.DB.First(&quota, quotaID).Error; err != nil {
		return nil, apperr.NotFound("quota not found")
	}
	if quota.WorkspaceID != workspaceID {
		return nil, apperr.NotFound("quota not found")
	}
	if quota.Type != models.QuotaTypeCustom || quota.CompletionType == nil {
		return nil, apperr.Validation("quota is not a custom quota")
	}
	return &quota, nil
}

// assignedTo verifies the quota reaches the user through a role or
// department link
func (e *QuotaEvaluator) assignedTo(workspaceID uint, userID int64, quotaID uint) (bool, error) {
	quotas, err := e.QuotasForUser(database.DB, workspaceID, userID)
	if err != nil {
		if appErr, ok := apperr.As(err); ok && appErr.Kind == apperr.KindNotFound {
			return false, nil
		}
		return false, err
	}
	for _, quota := range quotas {
		if quota.ID == quotaID {
			return true, nil
		}
	}
	return false, nil
}

// upsertCompletion writes the completion row idempotently on the
// (quota, workspace, user) unique key. Retried requests update completed_at
// but never create a second row.
func (e *QuotaEvaluator) upsertCompletion(row *models.UserQuotaCompletion) error {
	return database.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "quota_id"}, {Name: "workspace_id"}, {Name: "user_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"completed", "completed_at", "completed_by", "notes", "archived", "updated_at",
		}),
	}).Create(row).Error
}

// audit records the workflow action; failure is logged, never propagated
func (e *QuotaEvaluator) audit(workspaceID uint, actor *models.Member, action models.AuditAction, quota *models.Quota, targetUserID int64) {
	entry := models.AuditLog{
		WorkspaceID: workspaceID,
		UserID:      actor.UserID,
		Username:    actor.Username,
		Action:      action,
		EntityType:  "quota",
		EntityID:    quota.ID,
		Description: fmt.Sprintf("%s %q for user %d", action, quota.Name, targetUserID),
	}
	if err := database.DB.Create(&entry).Error; err != nil {
		log.Printf("QuotaEvaluator: audit write failed for quota %d: %v", quota.ID, err)
	}
}

// Complete marks the actor's own user_complete quota as done
func (e *QuotaEvaluator) Complete(workspace *models.Workspace, quotaID uint, actor *models.Member, notes string) error {
	quota, err := e.loadCustomQuota(workspace.ID, quotaID)
	if err != nil {
		return err
	}
	if *quota.CompletionType != models.CompletionTypeUserComplete {
		return apperr.Permission("quota requires manager signoff")
	}

	assigned, err := e.assignedTo(workspace.ID, actor.UserID, quotaID)
	if err != nil {
		return err
	}
	if !assigned {
		return apperr.Validation("quota is not assigned to you")
	}

	now := time.Now().UTC()
	row := &models.UserQuotaCompletion{
		QuotaID:     quotaID,
		WorkspaceID: workspace.ID,
		UserID:      actor.UserID,
		Completed:   true,
		CompletedAt: &now,
		CompletedBy: &actor.UserID,
		Notes:       notes,
	}
	if err := e.upsertCompletion(row); err != nil {
		return apperr.Internal("save quota completion", err)
	}

	e.audit(workspace.ID, actor, models.AuditActionQuotaComplete, quota, actor.UserID)
	e.notifier.Dispatch(workspace, EventQuotaCompleted, map[string]interface{}{
		"quota_id":   quota.ID,
		"quota_name": quota.Name,
		"user_id":    actor.UserID,
	})
	return nil
}

// Signoff marks a manager_signoff quota complete for targetUserID. The
// signer's role must carry the signoff permission.
func (e *QuotaEvaluator) Signoff(workspace *models.Workspace, quotaID uint, targetUserID int64, signer *models.Member, notes string) error {
	if signer.Role == nil || (!signer.Role.CanSignoff && !signer.Role.IsAdmin) {
		return apperr.Permission("you do not have signoff permission")
	}

	quota, err := e.loadCustomQuota(workspace.ID, quotaID)
	if err != nil {
		return err
	}
	if *quota.CompletionType != models.CompletionTypeManagerSignoff {
		return apperr.Validation("quota does not use manager signoff")
	}

	assigned, err := e.assignedTo(workspace.ID, targetUserID, quotaID)
	if err != nil {
		return err
	}
	if !assigned {
		return apperr.Validation("quota is not assigned to that user")
	}

	now := time.Now().UTC()
	row := &models.UserQuotaCompletion{
		QuotaID:     quotaID,
		WorkspaceID: workspace.ID,
		UserID:      targetUserID,
		Completed:   true,
		CompletedAt: &now,
		CompletedBy: &signer.UserID,
		Notes:       notes,
	}
	if err := e.upsertCompletion(row); err != nil {
		return apperr.Internal("save quota signoff", err)
	}

	e.audit(workspace.ID, signer, models.AuditActionQuotaSignoff, quota, targetUserID)
	e.notifier.Dispatch(workspace, EventQuotaCompleted, map[string]interface{}{
		"quota_id":     quota.ID,
		"quota_name":   quota.Name,
		"user_id":      targetUserID,
		"signed_by":    signer.UserID,
	})
	return nil
}

// Uncomplete reverts a completion. Admins always may; a member may revert
// their own user_complete quota; manager_signoff quotas need the signoff
// permission. The row is cleared, not deleted.
func (e *QuotaEvaluator) Uncomplete(workspace *models.Workspace, quotaID uint, targetUserID int64, actor *models.Member) error {
	quota, err := e.loadCustomQuota(workspace.ID, quotaID)
	if err != nil {
		return err
	}

	isAdmin := actor.Role != nil && actor.Role.IsAdmin
	canSignoff := actor.Role != nil && actor.Role.CanSignoff

	if !isAdmin {
		switch *quota.CompletionType {
		case models.CompletionTypeUserComplete:
			if actor.UserID != targetUserID {
				return apperr.Permission("only the assignee may revert this quota")
			}
		case models.CompletionTypeManagerSignoff:
			if !canSignoff {
				return apperr.Permission("you do not have signoff permission")
			}
		}
	}

	var completion models.UserQuotaCompletion
	if err := database.DB.Where("quota_id = ? AND workspace_id = ? AND user_id = ? AND archived = ?",
		quotaID, workspace.ID, targetUserID, false).First(&completion).Error; err != nil {
		return apperr.NotFound("no completion recorded for that user")
	}

	updates := map[string]interface{}{
		"completed":    false,
		"completed_at": nil,
		"completed_by": nil,
		"notes":        "",
	}
	if err := database.DB.Model(&completion).Updates(updates).Error; err != nil {
		return apperr.Internal("revert quota completion", err)
	}

	e.audit(workspace.ID, actor, models.AuditActionQuotaUncomplete, quota, targetUserID)
	return nil
}
