package models

import (
	"log"

	"gorm.io/gorm"
)

// AutoMigrate creates or updates all tables
func AutoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	if err := db.AutoMigrate(
		&Workspace{},
		&Role{},
		&Department{},
		&Member{},
		&DepartmentMember{},
		&ActivitySession{},
		&ActivityAdjustment{},
		&ActivityReset{},
		&ActivityHistory{},
		&ScheduledSession{},
		&SessionParticipant{},
		&WallPost{},
		&AllianceVisit{},
		&Quota{},
		&QuotaRole{},
		&QuotaDepartment{},
		&UserQuotaCompletion{},
		&AuditLog{},
	); err != nil {
		return err
	}

	log.Println("Database migrations completed successfully")
	return nil
}
