package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Scholarship states
const (
	ScholarshipStatusOpen   = "open"
	ScholarshipStatusClosed = "closed"
)

// Scholarship application states
const (
	ScholarshipApplicationSubmitted   = "submitted"
	ScholarshipApplicationUnderReview = "under_review"
	ScholarshipApplicationAwarded     = "awarded"
	ScholarshipApplicationRejected    = "rejected"
	ScholarshipApplicationWithdrawn   = "withdrawn"
)

// Scholarship is funding offered by a university or its alumni
type Scholarship struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	UniversityID     uint           `gorm:"index;not null" json:"university_id"`
	CreatedBy        uint           `gorm:"index;not null" json:"created_by"`
	Title            string         `gorm:"type:varchar(255);not null" json:"title"`
	Description      string         `gorm:"type:text" json:"description"`
	Amount           float64        `gorm:"not null" json:"amount"`
	Currency         string         `gorm:"type:varchar(3);default:'USD'" json:"currency"`
	Eligibility      datatypes.JSON `gorm:"type:jsonb" json:"eligibility,omitempty"`
	Deadline         *time.Time     `json:"deadline,omitempty"`
	Status           string         `gorm:"type:varchar(20);default:'open';index" json:"status"`
	ApplicationCount int            `gorm:"default:0" json:"application_count"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	University University `gorm:"foreignKey:UniversityID;constraint:OnDelete:CASCADE" json:"university,omitempty"`
	Creator    User       `gorm:"foreignKey:CreatedBy;constraint:OnDelete:CASCADE" json:"creator,omitempty"`
}

// AcceptsApplications reports whether the scholarship is open and before its deadline
func (s *Scholarship) AcceptsApplications(now time.Time) bool {
	if s.Status != ScholarshipStatusOpen {
		return false
	}
	return s.Deadline == nil || now.Before(*s.Deadline)
}

// ScholarshipApplication is one user's application to a scholarship
type ScholarshipApplication struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ScholarshipID uint      `gorm:"not null;uniqueIndex:idx_scholarship_applicant" json:"scholarship_id"`
	ApplicantID   uint      `gorm:"not null;uniqueIndex:idx_scholarship_applicant;index" json:"applicant_id"`
	Essay         string    `gorm:"type:text" json:"essay"`
	DocumentURL   string    `gorm:"type:varchar(512)" json:"document_url,omitempty"`
	Status        string    `gorm:"type:varchar(20);default:'submitted';index" json:"status"`
	ReviewerNotes string    `gorm:"type:text" json:"reviewer_notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Relationships
	Scholarship Scholarship `gorm:"foreignKey:ScholarshipID;constraint:OnDelete:CASCADE" json:"scholarship,omitempty"`
	Applicant   User        `gorm:"foreignKey:ApplicantID;constraint:OnDelete:CASCADE" json:"applicant,omitempty"`
}
