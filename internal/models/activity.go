package models

import (
	"time"
)

// ActivitySession records one tracked in-game session. At most one active
// session may exist per (user, workspace); rows are immutable once archived.
type ActivitySession struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	WorkspaceID uint       `gorm:"not null;index:idx_session_workspace_user" json:"workspace_id"`
	UserID      int64      `gorm:"not null;index:idx_session_workspace_user" json:"user_id"`
	PlaceID     *int64     `json:"place_id"`
	StartTime   time.Time  `gorm:"not null;index" json:"start_time"`
	EndTime     *time.Time `gorm:"index" json:"end_time"`
	Active      bool       `gorm:"default:true;index" json:"active"`

	IdleTimeMinutes int64 `gorm:"default:0" json:"idle_time_minutes"`
	MessageCount    int64 `gorm:"default:0" json:"message_count"`

	// Archival (soft delete at period reset, rows retained for audit)
	Archived           bool       `gorm:"default:false;index" json:"archived"`
	ArchiveWindowStart *time.Time `json:"archive_window_start"`
	ArchiveWindowEnd   *time.Time `json:"archive_window_end"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DurationMinutes returns the closed session length in whole minutes.
// Open sessions report zero.
func (s *ActivitySession) DurationMinutes() int64 {
	if s.EndTime == nil {
		return 0
	}
	return int64(s.EndTime.Sub(s.StartTime).Minutes())
}

// ActivityAdjustment is a manual signed minute correction. Insert-only;
// rows are archived at reset, never mutated.
type ActivityAdjustment struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	WorkspaceID uint   `gorm:"not null;index" json:"workspace_id"`
	UserID      int64  `gorm:"not null;index" json:"user_id"`
	Minutes     int64  `gorm:"not null" json:"minutes"` // signed
	Reason      string `gorm:"size:500" json:"reason"`
	CreatedBy   int64  `json:"created_by"`
	Archived    bool   `gorm:"default:false;index" json:"archived"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// ActivityReset marks a period boundary. The most recent row by ResetAt
// defines the current period start; rows are insert-only. ResetByID null
// means the reset was automatic.
type ActivityReset struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	WorkspaceID uint      `gorm:"not null;index" json:"workspace_id"`
	ResetAt     time.Time `gorm:"not null;index" json:"reset_at"`

	PreviousPeriodStart time.Time `json:"previous_period_start"`
	PreviousPeriodEnd   time.Time `json:"previous_period_end"`
	ResetByID           *int64    `json:"reset_by_id"` // nil = automatic

	CreatedAt time.Time `json:"created_at"`
}

// ActivityHistory is the write-once per-member snapshot persisted when a
// period resets. Owned by the workspace and never mutated afterwards.
type ActivityHistory struct {
	ID          uint  `gorm:"primaryKey" json:"id"`
	WorkspaceID uint  `gorm:"not null;index:idx_history_workspace_user" json:"workspace_id"`
	UserID      int64 `gorm:"not null;index:idx_history_workspace_user" json:"user_id"`

	PeriodStart time.Time `gorm:"not null" json:"period_start"`
	PeriodEnd   time.Time `gorm:"not null;index" json:"period_end"`

	Minutes          int64 `gorm:"default:0" json:"minutes"`
	Messages         int64 `gorm:"default:0" json:"messages"`
	SessionsHosted   int64 `gorm:"default:0" json:"sessions_hosted"`
	SessionsAttended int64 `gorm:"default:0" json:"sessions_attended"`
	IdleTime         int64 `gorm:"default:0" json:"idle_time"`
	WallPosts        int64 `gorm:"default:0" json:"wall_posts"`

	// Per-quota progress at reset time, serialized []QuotaProgress
	QuotaProgress string `gorm:"type:text" json:"quota_progress"`

	Exported  bool      `gorm:"default:false;index" json:"exported"` // offsite export done
	CreatedAt time.Time `json:"created_at"`
}

// ScheduledSession is a session generated from the workspace schedule.
// A member claims hosting; attendance is logged via SessionParticipant.
type ScheduledSession struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	WorkspaceID uint       `gorm:"not null;index" json:"workspace_id"`
	Name        string     `gorm:"size:255" json:"name"`
	StartsAt    time.Time  `gorm:"not null;index" json:"starts_at"`
	HostUserID  *int64     `gorm:"index" json:"host_user_id"` // nil until claimed
	ClaimedAt   *time.Time `json:"claimed_at"`
	EndedAt     *time.Time `json:"ended_at"`
	Archived    bool       `gorm:"default:false;index" json:"archived"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionParticipant records attendance of one member at a scheduled session
type SessionParticipant struct {
	ID                 uint  `gorm:"primaryKey" json:"id"`
	ScheduledSessionID uint  `gorm:"not null;uniqueIndex:idx_participant_session_user" json:"scheduled_session_id"`
	WorkspaceID        uint  `gorm:"not null;index" json:"workspace_id"`
	UserID             int64 `gorm:"not null;uniqueIndex:idx_participant_session_user" json:"user_id"`
	Archived           bool  `gorm:"default:false;index" json:"archived"`

	CreatedAt time.Time `json:"created_at"`
}

func (ActivitySession) TableName() string    { return "activity_sessions" }
func (ActivityAdjustment) TableName() string { return "activity_adjustments" }
func (ActivityReset) TableName() string      { return "activity_resets" }
func (ActivityHistory) TableName() string    { return "activity_history" }
func (ScheduledSession) TableName() string   { return "scheduled_sessions" }
func (SessionParticipant) TableName() string { return "session_participants" }
