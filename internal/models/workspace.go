package models

import (
	"time"

	"gorm.io/gorm"
)

// ResetFrequency controls how often the automatic activity reset fires
type ResetFrequency string

const (
	ResetFrequencyWeekly   ResetFrequency = "weekly"
	ResetFrequencyBiweekly ResetFrequency = "biweekly"
	ResetFrequencyMonthly  ResetFrequency = "monthly"
)

// DaysBetweenResets returns the minimum gap in days before the next
// automatic reset may fire. Unknown values fall back to weekly.
func (f ResetFrequency) DaysBetweenResets() int {
	switch f {
	case ResetFrequencyBiweekly:
		return 14
	case ResetFrequencyMonthly:
		return 28
	default:
		return 7
	}
}

// Workspace represents a managed group being tracked
type Workspace struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"size:255;not null" json:"name"`
	GroupID   int64  `gorm:"index" json:"group_id"` // external directory group id
	APIKey    string `gorm:"size:255" json:"-"`     // bcrypt hash of the signal-source key
	IsActive  bool   `gorm:"default:true" json:"is_active"`

	// Activity tracking features
	IdleTrackingEnabled bool `gorm:"default:true" json:"idle_tracking_enabled"`

	// Automatic reset schedule
	ResetEnabled   bool           `gorm:"default:false" json:"reset_enabled"`
	ResetWeekday   int            `gorm:"default:0" json:"reset_weekday"` // 0=Sunday .. 6=Saturday
	ResetFrequency ResetFrequency `gorm:"size:20;default:weekly" json:"reset_frequency"`

	// Batch id for staggered cron execution, assigned randomly at creation
	BatchID int `gorm:"default:1;index" json:"batch_id"`

	// Fire-and-forget event webhook (empty = disabled)
	WebhookURL string `gorm:"size:500" json:"webhook_url"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Role represents a staff role inside a workspace. Rank mirrors the numeric
// rank of the matching directory role and is refreshed from the directory.
type Role struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	WorkspaceID uint   `gorm:"not null;index" json:"workspace_id"`
	Name        string `gorm:"size:100;not null" json:"name"`
	DirectoryID int64  `gorm:"index" json:"directory_id"` // external role id
	Rank        int    `gorm:"default:0" json:"rank"`
	IsAdmin     bool   `gorm:"default:false" json:"is_admin"`
	CanSignoff  bool   `gorm:"default:false" json:"can_signoff"` // may sign off manager_signoff quotas

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Department groups members across roles (e.g. "Events Team")
type Department struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	WorkspaceID uint   `gorm:"not null;index" json:"workspace_id"`
	Name        string `gorm:"size:100;not null" json:"name"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member represents a tracked user inside a workspace
type Member struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	WorkspaceID uint   `gorm:"not null;uniqueIndex:idx_member_workspace_user" json:"workspace_id"`
	UserID      int64  `gorm:"not null;uniqueIndex:idx_member_workspace_user" json:"user_id"` // external user id
	Username    string `gorm:"size:100;index" json:"username"`
	RoleID      *uint  `gorm:"index" json:"role_id"`
	Role        *Role  `gorm:"foreignKey:RoleID" json:"role,omitempty"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DepartmentMember links a member to a department (many-to-many)
type DepartmentMember struct {
	ID           uint `gorm:"primaryKey" json:"id"`
	DepartmentID uint `gorm:"not null;uniqueIndex:idx_department_member" json:"department_id"`
	MemberID     uint `gorm:"not null;uniqueIndex:idx_department_member" json:"member_id"`

	CreatedAt time.Time `json:"created_at"`
}

// WallPost is a message on the workspace wall; per-member counts feed the
// period history snapshot.
type WallPost struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	WorkspaceID uint   `gorm:"not null;index" json:"workspace_id"`
	UserID      int64  `gorm:"not null;index" json:"user_id"`
	Body        string `gorm:"type:text;not null" json:"body"`
	Archived    bool   `gorm:"default:false;index" json:"archived"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// AllianceVisit logs a member visiting an allied group; feeds the
// alliance_visits quota type.
type AllianceVisit struct {
	ID          uint  `gorm:"primaryKey" json:"id"`
	WorkspaceID uint  `gorm:"not null;index" json:"workspace_id"`
	UserID      int64 `gorm:"not null;index" json:"user_id"`
	AllianceID  uint  `json:"alliance_id"`
	Archived    bool  `gorm:"default:false;index" json:"archived"`

	VisitedAt time.Time `gorm:"index" json:"visited_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (Workspace) TableName() string        { return "workspaces" }
func (Role) TableName() string             { return "roles" }
func (Department) TableName() string       { return "departments" }
func (Member) TableName() string           { return "members" }
func (DepartmentMember) TableName() string { return "department_members" }
func (WallPost) TableName() string         { return "wall_posts" }
func (AllianceVisit) TableName() string    { return "alliance_visits" }
