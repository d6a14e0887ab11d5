package model

import (
	"time"

	"gorm.io/datatypes"
)

// AdminAuditLog is an append-only trail of mutations made through the admin API
type AdminAuditLog struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	AdminID     uint           `gorm:"not null;index" json:"admin_id"`
	Action      string         `gorm:"type:varchar(100);not null;index" json:"action"` // e.g., "user_delete", "settings_update"
	Resource    string         `gorm:"type:varchar(100);index" json:"resource"`        // e.g., "users", "settings"
	ResourceID  uint           `json:"resource_id"`
	OldValue    datatypes.JSON `gorm:"type:jsonb" json:"old_value,omitempty"`
	NewValue    datatypes.JSON `gorm:"type:jsonb" json:"new_value,omitempty"`
	StatusCode  int            `json:"status_code"`
	RequestID   string         `gorm:"type:varchar(64)" json:"request_id,omitempty"`
	IPAddress   string         `gorm:"type:varchar(45)" json:"ip_address"`
	UserAgent   string         `gorm:"type:text" json:"user_agent"`
	Description string         `gorm:"type:text" json:"description"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`

	// Relationships
	Admin User `gorm:"foreignKey:AdminID;constraint:OnDelete:CASCADE" json:"admin,omitempty"`
}

// TableName specifies the table name for AdminAuditLog
func (AdminAuditLog) TableName() string {
	return "admin_audit_logs"
}
