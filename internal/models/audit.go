package models

import (
	"time"
)

// AuditAction represents the type of audit action
type AuditAction string

const (
	AuditActionCreate         AuditAction = "create"
	AuditActionUpdate         AuditAction = "update"
	AuditActionDelete         AuditAction = "delete"
	AuditActionQuotaComplete  AuditAction = "quota_complete"
	AuditActionQuotaSignoff   AuditAction = "quota_signoff"
	AuditActionQuotaUncomplete AuditAction = "quota_uncomplete"
	AuditActionActivityReset  AuditAction = "activity_reset"
	AuditActionSessionClaim   AuditAction = "session_claim"
)

// AuditLog records who did what. Writes are best effort: a failed audit
// insert is logged and never rolls back the change it describes.
type AuditLog struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	WorkspaceID uint        `gorm:"index" json:"workspace_id"`
	UserID      int64       `gorm:"index" json:"user_id"`
	Username    string      `gorm:"size:100" json:"username"`
	Action      AuditAction `gorm:"size:50;not null;index" json:"action"`
	EntityType  string      `gorm:"size:50;index" json:"entity_type"`
	EntityID    uint        `gorm:"index" json:"entity_id"`
	Description string      `gorm:"size:500" json:"description"`
	IPAddress   string      `gorm:"size:50" json:"ip_address"`
	UserAgent   string      `gorm:"size:255" json:"user_agent"`
	CreatedAt   time.Time   `gorm:"index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
