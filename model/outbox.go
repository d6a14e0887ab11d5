package model

import (
	"time"

	"gorm.io/datatypes"
)

// Outbox operations
const (
	OutboxOpUpsert = "UPSERT"
	OutboxOpDelete = "DELETE"
)

// Entity types projected to the document mirror and search index
const (
	OutboxEntityUniversity = "university"
	OutboxEntityConnection = "connection"
	OutboxEntityUser       = "user"
	OutboxEntityProfile    = "profile"
	OutboxEntityJob        = "job"
)

// OutboxEvent is a change record written in the same transaction as the
// change itself. The sync worker drains unprocessed rows in id order.
type OutboxEvent struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	EntityType  string         `gorm:"type:varchar(40);not null;index" json:"entity_type"`
	EntityID    uint           `gorm:"not null" json:"entity_id"`
	Op          string         `gorm:"type:varchar(20);not null" json:"op"`
	Payload     datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`
	Processed   bool           `gorm:"default:false;index" json:"processed"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// TableName specifies the table name for OutboxEvent
func (OutboxEvent) TableName() string {
	return "outbox_events"
}

// OutboxDeadLetter holds an outbox event that failed to project
type OutboxDeadLetter struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	OutboxID   uint           `gorm:"index" json:"outbox_id"`
	EntityType string         `gorm:"type:varchar(40);not null" json:"entity_type"`
	EntityID   uint           `json:"entity_id"`
	Op         string         `gorm:"type:varchar(20);not null" json:"op"`
	Payload    datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`
	ErrorMsg   string         `gorm:"type:text" json:"error_msg"`
	Attempts   int            `gorm:"default:0" json:"attempts"`
	Resolved   bool           `gorm:"default:false;index" json:"resolved"`
	RetriedAt  *time.Time     `json:"retried_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// TableName specifies the table name for OutboxDeadLetter
func (OutboxDeadLetter) TableName() string {
	return "outbox_dead_letters"
}
