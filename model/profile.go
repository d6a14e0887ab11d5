package model

import (
	"time"

	"gorm.io/datatypes"
)

// Profile visibility levels
const (
	VisibilityPublic      = "public"
	VisibilityConnections = "connections"
	VisibilityPrivate     = "private"
)

// Profile is the alumni-facing view of a user, one per user
type Profile struct {
	ID             uint                        `gorm:"primaryKey" json:"id"`
	UserID         uint                        `gorm:"uniqueIndex;not null" json:"user_id"`
	UniversityID   uint                        `gorm:"index;not null" json:"university_id"`
	Headline       string                      `gorm:"type:varchar(255)" json:"headline"`
	Bio            string                      `gorm:"type:text" json:"bio"`
	GraduationYear int                         `gorm:"index" json:"graduation_year"`
	Degree         string                      `gorm:"type:varchar(100)" json:"degree"`
	Major          string                      `gorm:"type:varchar(150);index" json:"major"`
	Company        string                      `gorm:"type:varchar(150)" json:"company"`
	JobTitle       string                      `gorm:"type:varchar(150)" json:"job_title"`
	Location       string                      `gorm:"type:varchar(255)" json:"location"`
	Skills         datatypes.JSONSlice[string] `json:"skills"`
	SocialLinks    datatypes.JSON              `gorm:"type:jsonb" json:"social_links,omitempty"`
	AvatarURL      string                      `gorm:"type:varchar(512)" json:"avatar_url"`
	Visibility     string                      `gorm:"type:varchar(20);default:'public'" json:"visibility"`
	IsMentor       bool                        `gorm:"default:false" json:"is_mentor"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`

	// Relationships
	User       User       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	University University `gorm:"foreignKey:UniversityID;constraint:OnDelete:CASCADE" json:"university,omitempty"`
}
