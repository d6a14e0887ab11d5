package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// University is the tenant every alumni record belongs to
type University struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"not null;uniqueIndex" json:"name"`
	Code      string         `gorm:"uniqueIndex;not null" json:"code"` // e.g., "MIT", "IITB"
	Domain    string         `gorm:"type:varchar(255)" json:"domain"`  // email domain used for alumni verification
	Location  string         `gorm:"type:varchar(255)" json:"location"`
	Website   string         `gorm:"type:varchar(255)" json:"website"`
	LogoURL   string         `gorm:"type:varchar(512)" json:"logo_url"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	Settings  datatypes.JSON `gorm:"type:jsonb" json:"settings,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Profiles []Profile `gorm:"foreignKey:UniversityID;constraint:OnDelete:CASCADE" json:"-"`
}
