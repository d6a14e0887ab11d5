package model

import (
	"time"

	"gorm.io/gorm"
)

// Conversation groups messages between two or more participants
type Conversation struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Title         string         `gorm:"type:varchar(255)" json:"title,omitempty"`
	IsGroup       bool           `gorm:"default:false" json:"is_group"`
	CreatedBy     uint           `gorm:"index" json:"created_by"`
	LastMessageAt *time.Time     `gorm:"index" json:"last_message_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"participants,omitempty"`
	Messages     []Message                 `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
}

// ConversationParticipant links a user to a conversation
type ConversationParticipant struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	ConversationID uint       `gorm:"not null;uniqueIndex:idx_conversation_user" json:"conversation_id"`
	UserID         uint       `gorm:"not null;uniqueIndex:idx_conversation_user;index" json:"user_id"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`

	// Relationships
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

// Message is a single chat message
type Message struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ConversationID uint           `gorm:"not null;index" json:"conversation_id"`
	SenderID       uint           `gorm:"not null;index" json:"sender_id"`
	Body           string         `gorm:"type:text;not null" json:"body"`
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Sender User `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE" json:"sender,omitempty"`
}
