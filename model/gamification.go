package model

import (
	"time"
)

// PointAction identifies what earned a user points
type PointAction string

const (
	PointActionConnectionAccepted PointAction = "connection_accepted"
	PointActionJobApplication     PointAction = "job_application"
	PointActionEventRegistration  PointAction = "event_registration"
	PointActionCredentialIssued   PointAction = "credential_issued"
	PointActionFeedbackSubmitted  PointAction = "feedback_submitted"
	PointActionMessageSent        PointAction = "message_sent"
	PointActionProfileCompleted   PointAction = "profile_completed"
)

// PointTransaction is an append-only ledger entry. A user's score is the sum
// of their transactions.
type PointTransaction struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	UserID        uint        `gorm:"not null;index" json:"user_id"`
	UniversityID  *uint       `gorm:"index" json:"university_id,omitempty"`
	Action        PointAction `gorm:"type:varchar(40);not null;index" json:"action"`
	Points        int         `gorm:"not null" json:"points"`
	ReferenceType string      `gorm:"type:varchar(40)" json:"reference_type,omitempty"`
	ReferenceID   uint        `json:"reference_id,omitempty"`
	CreatedAt     time.Time   `gorm:"index" json:"created_at"`

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// Achievement is a badge unlocked once a user's points reach Threshold
type Achievement struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Code        string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	Name        string    `gorm:"type:varchar(100);not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Icon        string    `gorm:"type:varchar(50)" json:"icon,omitempty"`
	Threshold   int       `gorm:"not null" json:"threshold"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UserAchievement records when a user unlocked an achievement
type UserAchievement struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;uniqueIndex:idx_user_achievement" json:"user_id"`
	AchievementID uint      `gorm:"not null;uniqueIndex:idx_user_achievement" json:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at"`

	// Relationships
	User        User        `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Achievement Achievement `gorm:"foreignKey:AchievementID;constraint:OnDelete:CASCADE" json:"achievement"`
}
