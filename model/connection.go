package model

import (
	"time"
)

// ConnectionStatus is the lifecycle state of a connection request
type ConnectionStatus string

const (
	ConnectionStatusPending  ConnectionStatus = "pending"
	ConnectionStatusAccepted ConnectionStatus = "accepted"
	ConnectionStatusRejected ConnectionStatus = "rejected"
)

// Connection is a directed request between two users. Only one connection may
// exist for an unordered pair of users.
type Connection struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	RequesterID uint             `gorm:"not null;index;uniqueIndex:idx_connection_pair" json:"requester_id"`
	RecipientID uint             `gorm:"not null;index;uniqueIndex:idx_connection_pair" json:"recipient_id"`
	Status      ConnectionStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Message     string           `gorm:"type:text" json:"message,omitempty"`
	RespondedAt *time.Time       `json:"responded_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`

	// Relationships
	Requester User `gorm:"foreignKey:RequesterID;constraint:OnDelete:CASCADE" json:"requester,omitempty"`
	Recipient User `gorm:"foreignKey:RecipientID;constraint:OnDelete:CASCADE" json:"recipient,omitempty"`
}

// Involves reports whether the user is either side of the connection
func (c *Connection) Involves(userID uint) bool {
	return c.RequesterID == userID || c.RecipientID == userID
}

// OtherParty returns the user on the other side of the connection
func (c *Connection) OtherParty(userID uint) uint {
	if c.RequesterID == userID {
		return c.RecipientID
	}
	return c.RequesterID
}
