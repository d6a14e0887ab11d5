package model

import (
	"time"

	"gorm.io/gorm"
)

// Newsletter states
const (
	NewsletterStatusDraft     = "draft"
	NewsletterStatusScheduled = "scheduled"
	NewsletterStatusSending   = "sending"
	NewsletterStatusSent      = "sent"
)

// Newsletter is an HTML digest sent to a university's subscribers
type Newsletter struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UniversityID   uint           `gorm:"index;not null" json:"university_id"`
	AuthorID       uint           `gorm:"index;not null" json:"author_id"`
	Title          string         `gorm:"type:varchar(255);not null" json:"title"`
	Subject        string         `gorm:"type:varchar(255);not null" json:"subject"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	PlainText      string         `gorm:"type:text" json:"plain_text,omitempty"`
	Status         string         `gorm:"type:varchar(20);default:'draft';index" json:"status"`
	Generated      bool           `gorm:"default:false" json:"generated"`
	ScheduledAt    *time.Time     `gorm:"index" json:"scheduled_at,omitempty"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	RecipientCount int            `gorm:"default:0" json:"recipient_count"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	University University `gorm:"foreignKey:UniversityID;constraint:OnDelete:CASCADE" json:"-"`
	Author     User       `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"author,omitempty"`
}

// NewsletterSubscription is an email address opted in to a university's newsletter
type NewsletterSubscription struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	UniversityID     uint       `gorm:"not null;uniqueIndex:idx_subscription_email" json:"university_id"`
	Email            string     `gorm:"type:varchar(255);not null;uniqueIndex:idx_subscription_email" json:"email"`
	UserID           *uint      `gorm:"index" json:"user_id,omitempty"`
	UnsubscribeToken string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	Active           bool       `gorm:"default:true;index" json:"active"`
	UnsubscribedAt   *time.Time `json:"unsubscribed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	// Relationships
	University University `gorm:"foreignKey:UniversityID;constraint:OnDelete:CASCADE" json:"-"`
}
