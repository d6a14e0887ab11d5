package model

import (
	"time"

	"gorm.io/gorm"
)

// Event types
const (
	EventTypeReunion    = "reunion"
	EventTypeWebinar    = "webinar"
	EventTypeNetworking = "networking"
	EventTypeWorkshop   = "workshop"
	EventTypeCareerFair = "career_fair"
	EventTypeOther      = "other"
)

// Event states
const (
	EventStatusScheduled = "scheduled"
	EventStatusCancelled = "cancelled"
	EventStatusCompleted = "completed"
)

// Registration states
const (
	RegistrationStatusRegistered = "registered"
	RegistrationStatusCancelled  = "cancelled"
	RegistrationStatusAttended   = "attended"
)

// Event is a gathering organised for a university's network.
// Capacity 0 means unlimited.
type Event struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	UniversityID   uint           `gorm:"index;not null" json:"university_id"`
	OrganizerID    uint           `gorm:"index;not null" json:"organizer_id"`
	Title          string         `gorm:"type:varchar(255);not null" json:"title"`
	Description    string         `gorm:"type:text" json:"description"`
	Type           string         `gorm:"type:varchar(20);not null;index" json:"type"`
	Location       string         `gorm:"type:varchar(255)" json:"location"`
	IsVirtual      bool           `gorm:"default:false" json:"is_virtual"`
	MeetingURL     string         `gorm:"type:varchar(512)" json:"meeting_url,omitempty"`
	StartsAt       time.Time      `gorm:"not null;index" json:"starts_at"`
	EndsAt         time.Time      `gorm:"not null" json:"ends_at"`
	Capacity       int            `gorm:"default:0" json:"capacity"`
	AttendeeCount  int            `gorm:"default:0" json:"attendee_count"`
	Status         string         `gorm:"type:varchar(20);default:'scheduled';index" json:"status"`
	ReminderSentAt *time.Time     `json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	University University `gorm:"foreignKey:UniversityID;constraint:OnDelete:CASCADE" json:"university,omitempty"`
	Organizer  User       `gorm:"foreignKey:OrganizerID;constraint:OnDelete:CASCADE" json:"organizer,omitempty"`
}

// EventRegistration records a user's seat at an event
type EventRegistration struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventID   uint      `gorm:"not null;uniqueIndex:idx_event_user" json:"event_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_event_user;index" json:"user_id"`
	Status    string    `gorm:"type:varchar(20);default:'registered'" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Event Event `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE" json:"event,omitempty"`
	User  User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}
