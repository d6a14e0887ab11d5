package model

import (
	"time"
)

// Cron run states
const (
	CronStatusStarted   = "started"
	CronStatusCompleted = "completed"
	CronStatusFailed    = "failed"
)

// CronJobLog records one execution of a background job
type CronJobLog struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	JobName        string     `gorm:"type:varchar(100);not null;index" json:"job_name"`
	Status         string     `gorm:"type:varchar(20);not null" json:"status"`
	StartedAt      time.Time  `gorm:"not null;index" json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	Duration       int        `json:"duration_ms"`
	ItemsProcessed int        `gorm:"default:0" json:"items_processed"`
	Message        string     `gorm:"type:text" json:"message"`
	ErrorMsg       string     `gorm:"type:text" json:"error_msg"`
	CreatedAt      time.Time  `json:"created_at"`
}

// TableName specifies the table name for CronJobLog
func (CronJobLog) TableName() string {
	return "cron_job_logs"
}
