package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JobType values accepted for postings
const (
	JobTypeFullTime   = "full_time"
	JobTypePartTime   = "part_time"
	JobTypeInternship = "internship"
	JobTypeContract   = "contract"
	JobTypeRemote     = "remote"
)

// Job posting states
const (
	JobStatusOpen   = "open"
	JobStatusClosed = "closed"
	JobStatusDraft  = "draft"
)

// JobPosting is an opportunity shared within a university's network
type JobPosting struct {
	ID               uint                        `gorm:"primaryKey" json:"id"`
	UniversityID     uint                        `gorm:"index;not null" json:"university_id"`
	PostedBy         uint                        `gorm:"index;not null" json:"posted_by"`
	Title            string                      `gorm:"type:varchar(255);not null" json:"title"`
	Company          string                      `gorm:"type:varchar(150);not null;index" json:"company"`
	Location         string                      `gorm:"type:varchar(255)" json:"location"`
	Type             string                      `gorm:"type:varchar(20);not null;index" json:"type"`
	Description      string                      `gorm:"type:text" json:"description"`
	Requirements     datatypes.JSONSlice[string] `json:"requirements"`
	Tags             datatypes.JSONSlice[string] `json:"tags"`
	SalaryMin        int                         `json:"salary_min,omitempty"`
	SalaryMax        int                         `json:"salary_max,omitempty"`
	ApplyURL         string                      `gorm:"type:varchar(512)" json:"apply_url,omitempty"`
	Status           string                      `gorm:"type:varchar(20);default:'open';index" json:"status"`
	Deadline         *time.Time                  `json:"deadline,omitempty"`
	ApplicationCount int                         `gorm:"default:0" json:"application_count"`
	CreatedAt        time.Time                   `json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`
	DeletedAt        gorm.DeletedAt              `gorm:"index" json:"-"`

	// Relationships
	University University `gorm:"foreignKey:UniversityID;constraint:OnDelete:CASCADE" json:"university,omitempty"`
	Poster     User       `gorm:"foreignKey:PostedBy;constraint:OnDelete:CASCADE" json:"poster,omitempty"`
}

// AcceptsApplications reports whether the posting is open and before its deadline
func (j *JobPosting) AcceptsApplications(now time.Time) bool {
	if j.Status != JobStatusOpen {
		return false
	}
	return j.Deadline == nil || now.Before(*j.Deadline)
}

// Job application states
const (
	ApplicationStatusSubmitted   = "submitted"
	ApplicationStatusReviewing   = "reviewing"
	ApplicationStatusShortlisted = "shortlisted"
	ApplicationStatusRejected    = "rejected"
	ApplicationStatusHired       = "hired"
	ApplicationStatusWithdrawn   = "withdrawn"
)

// JobApplication is one user's application to a posting
type JobApplication struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	JobID       uint      `gorm:"not null;uniqueIndex:idx_job_applicant" json:"job_id"`
	ApplicantID uint      `gorm:"not null;uniqueIndex:idx_job_applicant;index" json:"applicant_id"`
	CoverLetter string    `gorm:"type:text" json:"cover_letter"`
	ResumeURL   string    `gorm:"type:varchar(512)" json:"resume_url"`
	Status      string    `gorm:"type:varchar(20);default:'submitted';index" json:"status"`
	Notes       string    `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relationships
	Job       JobPosting `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE" json:"job,omitempty"`
	Applicant User       `gorm:"foreignKey:ApplicantID;constraint:OnDelete:CASCADE" json:"applicant,omitempty"`
}
