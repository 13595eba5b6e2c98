package models

import (
	"time"
)

// QuotaType identifies the metric a quota measures
type QuotaType string

const (
	QuotaTypeMinutes          QuotaType = "mins"
	QuotaTypeSessionsHosted   QuotaType = "sessions_hosted"
	QuotaTypeSessionsAttended QuotaType = "sessions_attended"
	QuotaTypeSessionsLogged   QuotaType = "sessions_logged" // hosted + attended
	QuotaTypeAllianceVisits   QuotaType = "alliance_visits"
	QuotaTypeCustom           QuotaType = "custom"
)

// IsMetric reports whether progress is computed from ledgers rather than
// asserted manually.
func (t QuotaType) IsMetric() bool {
	return t != QuotaTypeCustom
}

// QuotaCompletionType controls who may complete a custom quota
type QuotaCompletionType string

const (
	CompletionTypeUserComplete   QuotaCompletionType = "user_complete"
	CompletionTypeManagerSignoff QuotaCompletionType = "manager_signoff"
)

// Quota is an activity requirement. It reaches users indirectly through
// role links and department links; a user's quota set is the deduplicated
// union over both.
type Quota struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	WorkspaceID uint      `gorm:"not null;index" json:"workspace_id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Type        QuotaType `gorm:"size:30;not null" json:"type"`
	Value       int64     `gorm:"default:0" json:"value"` // target for metric quotas

	// Only set for custom quotas
	CompletionType *QuotaCompletionType `gorm:"size:30" json:"completion_type"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QuotaRole links a quota to every member holding the role
type QuotaRole struct {
	ID      uint `gorm:"primaryKey" json:"id"`
	QuotaID uint `gorm:"not null;uniqueIndex:idx_quota_role" json:"quota_id"`
	RoleID  uint `gorm:"not null;uniqueIndex:idx_quota_role" json:"role_id"`
}

// QuotaDepartment links a quota to every member of the department
type QuotaDepartment struct {
	ID           uint `gorm:"primaryKey" json:"id"`
	QuotaID      uint `gorm:"not null;uniqueIndex:idx_quota_department" json:"quota_id"`
	DepartmentID uint `gorm:"not null;uniqueIndex:idx_quota_department" json:"department_id"`
}

// UserQuotaCompletion tracks custom quota state for one user. One row per
// (quota, user, workspace), upserted; uncomplete clears the fields instead
// of deleting the row.
type UserQuotaCompletion struct {
	ID          uint  `gorm:"primaryKey" json:"id"`
	QuotaID     uint  `gorm:"not null;uniqueIndex:idx_completion_quota_user" json:"quota_id"`
	WorkspaceID uint  `gorm:"not null;uniqueIndex:idx_completion_quota_user" json:"workspace_id"`
	UserID      int64 `gorm:"not null;uniqueIndex:idx_completion_quota_user" json:"user_id"`

	Completed   bool       `gorm:"default:false" json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
	CompletedBy *int64     `json:"completed_by"`
	Notes       string     `gorm:"size:500" json:"notes"`
	Archived    bool       `gorm:"default:false;index" json:"archived"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Quota) TableName() string               { return "quotas" }
func (QuotaRole) TableName() string           { return "quota_roles" }
func (QuotaDepartment) TableName() string     { return "quota_departments" }
func (UserQuotaCompletion) TableName() string { return "user_quota_completions" }
