package model

import (
	"time"
)

// ActivityType represents the type of user activity
type ActivityType string

const (
	ActivityTypeLogin           ActivityType = "login"
	ActivityTypeLogout          ActivityType = "logout"
	ActivityTypeProfileView     ActivityType = "profile_view"
	ActivityTypeProfileUpdate   ActivityType = "profile_update"
	ActivityTypeJobView         ActivityType = "job_view"
	ActivityTypeEventView       ActivityType = "event_view"
	ActivityTypeCredentialCheck ActivityType = "credential_verify"
	ActivityTypeSearch          ActivityType = "search"
)

// UserActivity tracks user activities for analytics
type UserActivity struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	UserID       uint         `gorm:"not null;index:idx_user_activity" json:"user_id"`
	ActivityType ActivityType `gorm:"type:varchar(50);not null;index:idx_activity_type" json:"activity_type"`
	ResourceType string       `gorm:"type:varchar(50)" json:"resource_type"` // e.g., "profile", "job", "event"
	ResourceID   uint         `json:"resource_id"`
	IPAddress    string       `gorm:"type:varchar(45)" json:"ip_address"`
	UserAgent    string       `gorm:"type:text" json:"user_agent"`
	CreatedAt    time.Time    `gorm:"index:idx_created_at" json:"created_at"`

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for UserActivity
func (UserActivity) TableName() string {
	return "user_activities"
}
