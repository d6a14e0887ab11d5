package model

import (
	"time"

	"gorm.io/gorm"
)

// CurriculumFeedback is an alumnus' retrospective rating of a course
type CurriculumFeedback struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	UniversityID    uint           `gorm:"index;not null" json:"university_id"`
	UserID          uint           `gorm:"index;not null" json:"user_id"`
	CourseName      string         `gorm:"type:varchar(255);not null;index" json:"course_name"`
	GraduationYear  int            `json:"graduation_year,omitempty"`
	Rating          int            `gorm:"not null" json:"rating"`
	RelevanceRating int            `json:"relevance_rating,omitempty"`
	Comments        string         `gorm:"type:text" json:"comments"`
	Suggestions     string         `gorm:"type:text" json:"suggestions"`
	IsAnonymous     bool           `gorm:"default:false" json:"is_anonymous"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	University University `gorm:"foreignKey:UniversityID;constraint:OnDelete:CASCADE" json:"-"`
	User       *User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

// TableName specifies the table name for CurriculumFeedback
func (CurriculumFeedback) TableName() string {
	return "curriculum_feedback"
}
