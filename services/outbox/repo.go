package outbox

import (
	"context"
	"log"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/utils/metrics"
	"gorm.io/gorm"
)

// FetchBatch claims up to limit unprocessed events in id order and marks
// them processed. On Postgres, FOR UPDATE SKIP LOCKED lets several workers
// drain the table without claiming the same rows.
func FetchBatch(ctx context.Context, db *gorm.DB, limit int) ([]model.OutboxEvent, error) {
	var events []model.OutboxEvent

	if db.Dialector.Name() == "postgres" {
		err := db.WithContext(ctx).Raw(`
			WITH cte AS (
			  SELECT * FROM outbox_events
			  WHERE processed = false
			  ORDER BY id ASC
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED
			)
			UPDATE outbox_events SET processed = true, processed_at = NOW()
			FROM cte
			WHERE outbox_events.id = cte.id
			RETURNING cte.*`, limit).Scan(&events).Error
		return events, err
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("processed = ?", false).Order("id ASC").Limit(limit).Find(&events).Error; err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		ids := make([]uint, len(events))
		for i, e := range events {
			ids[i] = e.ID
		}
		return tx.Model(&model.OutboxEvent{}).Where("id IN ?", ids).
			Updates(map[string]interface{}{"processed": true, "processed_at": time.Now()}).Error
	})
	return events, err
}

// PutDeadLetter stores a failed event for the retry job
func PutDeadLetter(db *gorm.DB, e model.OutboxEvent, msg string) {
	metrics.DeadLetters.Inc()
	dl := model.OutboxDeadLetter{
		OutboxID:   e.ID,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Op:         e.Op,
		Payload:    e.Payload,
		ErrorMsg:   msg,
	}
	if err := db.Create(&dl).Error; err != nil {
		log.Printf("[SYNC] Failed to insert dead letter for outbox_id=%d: %v", e.ID, err)
		return
	}
	log.Printf("[SYNC] Dead letter created for outbox_id=%d entity=%s/%d", e.ID, e.EntityType, e.EntityID)
}
