package mirror

import (
	"encoding/json"
	"time"

	"github.com/NagallaThanvi/unilink/model"
)

// UniversityDoc is the mirrored form of a university
type UniversityDoc struct {
	ID        uint                   `bson:"_id" json:"id"`
	Name      string                 `bson:"name" json:"name"`
	Code      string                 `bson:"code" json:"code"`
	Domain    string                 `bson:"domain" json:"domain"`
	Location  string                 `bson:"location" json:"location"`
	Website   string                 `bson:"website" json:"website"`
	LogoURL   string                 `bson:"logo_url" json:"logo_url"`
	IsActive  bool                   `bson:"is_active" json:"is_active"`
	Settings  map[string]interface{} `bson:"settings,omitempty" json:"settings,omitempty"`
	CreatedAt time.Time              `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time              `bson:"updated_at" json:"updated_at"`
	SyncedAt  time.Time              `bson:"synced_at" json:"synced_at"`
}

func BuildUniversityDoc(u model.University, now time.Time) UniversityDoc {
	var settings map[string]interface{}
	if len(u.Settings) > 0 {
		_ = json.Unmarshal(u.Settings, &settings)
	}
	return UniversityDoc{
		ID: u.ID, Name: u.Name, Code: u.Code, Domain: u.Domain, Location: u.Location,
		Website: u.Website, LogoURL: u.LogoURL, IsActive: u.IsActive, Settings: settings,
		CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt, SyncedAt: now,
	}
}

// ConnectionDoc is the mirrored form of a connection with both party names
type ConnectionDoc struct {
	ID            uint       `bson:"_id" json:"id"`
	RequesterID   uint       `bson:"requester_id" json:"requester_id"`
	RequesterName string     `bson:"requester_name" json:"requester_name"`
	RecipientID   uint       `bson:"recipient_id" json:"recipient_id"`
	RecipientName string     `bson:"recipient_name" json:"recipient_name"`
	Status        string     `bson:"status" json:"status"`
	Message       string     `bson:"message,omitempty" json:"message,omitempty"`
	RespondedAt   *time.Time `bson:"responded_at,omitempty" json:"responded_at,omitempty"`
	CreatedAt     time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at" json:"updated_at"`
	SyncedAt      time.Time  `bson:"synced_at" json:"synced_at"`
}

// BuildConnectionDoc expects Requester and Recipient to be preloaded
func BuildConnectionDoc(c model.Connection, now time.Time) ConnectionDoc {
	return ConnectionDoc{
		ID: c.ID, RequesterID: c.RequesterID, RequesterName: c.Requester.Name,
		RecipientID: c.RecipientID, RecipientName: c.Recipient.Name,
		Status: string(c.Status), Message: c.Message, RespondedAt: c.RespondedAt,
		CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt, SyncedAt: now,
	}
}

// AdminUserDoc is the back-office view of a user account
type AdminUserDoc struct {
	ID           uint       `bson:"_id" json:"id"`
	Email        string     `bson:"email" json:"email"`
	Name         string     `bson:"name" json:"name"`
	Role         string     `bson:"role" json:"role"`
	UniversityID *uint      `bson:"university_id,omitempty" json:"university_id,omitempty"`
	IsActive     bool       `bson:"is_active" json:"is_active"`
	LastLoginAt  *time.Time `bson:"last_login_at,omitempty" json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at" json:"updated_at"`
	SyncedAt     time.Time  `bson:"synced_at" json:"synced_at"`
}

func BuildAdminUserDoc(u model.User, now time.Time) AdminUserDoc {
	return AdminUserDoc{
		ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role, UniversityID: u.UniversityID,
		IsActive: u.IsActive, LastLoginAt: u.LastLoginAt,
		CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt, SyncedAt: now,
	}
}
