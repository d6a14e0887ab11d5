package model

import (
	"time"

	"gorm.io/gorm"
)

// Roles a user can hold. A university_admin manages the tenant referenced by
// UniversityID; an admin manages the whole platform.
const (
	RoleStudent         = "student"
	RoleAlumni          = "alumni"
	RoleFaculty         = "faculty"
	RoleUniversityAdmin = "university_admin"
	RoleAdmin           = "admin"
)

// ValidRoles lists every role accepted by registration and admin updates
var ValidRoles = []string{RoleStudent, RoleAlumni, RoleFaculty, RoleUniversityAdmin, RoleAdmin}

// User represents a registered user in the system
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"` // Never expose password in JSON
	Name         string         `gorm:"not null" json:"name"`
	Role         string         `gorm:"type:varchar(20);default:'student'" json:"role"`
	UniversityID *uint          `gorm:"index" json:"university_id,omitempty"`
	IsActive     bool           `gorm:"default:true" json:"is_active"`
	LastLoginAt  *time.Time     `json:"last_login_at,omitempty"`
	TokenVersion int            `gorm:"default:0" json:"-"` // Increment to invalidate all user tokens

	// Relationships
	University     *University         `gorm:"foreignKey:UniversityID;constraint:OnDelete:SET NULL" json:"university,omitempty"`
	AdminAuditLog  []AdminAuditLog     `gorm:"foreignKey:AdminID;constraint:OnDelete:CASCADE" json:"-"`
	TokenBlacklist []JWTTokenBlacklist `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// IsAdmin reports whether the user is a platform administrator
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// ManagesUniversity reports whether the user may administer the given tenant
func (u *User) ManagesUniversity(universityID uint) bool {
	if u.IsAdmin() {
		return true
	}
	return u.Role == RoleUniversityAdmin && u.UniversityID != nil && *u.UniversityID == universityID
}

// IsValidRole checks a role string against ValidRoles
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}
