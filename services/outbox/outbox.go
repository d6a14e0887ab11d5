// Package outbox records relational changes and projects them into the
// document mirror and the search index.
package outbox

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/NagallaThanvi/unilink/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Add inserts one event. Call it with the transaction that made the change.
func Add(tx *gorm.DB, entityType string, entityID uint, op string, payload interface{}) error {
	event := model.OutboxEvent{
		EntityType: entityType,
		EntityID:   entityID,
		Op:         op,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal outbox payload: %w", err)
		}
		event.Payload = datatypes.JSON(data)
	}

	if err := tx.Create(&event).Error; err != nil {
		log.Printf("[SYNC] Failed to create outbox event %s/%d: %v", entityType, entityID, err)
		return err
	}
	return nil
}

// AddBatch inserts one event per id, used for cascades and resyncs
func AddBatch(tx *gorm.DB, entityType string, op string, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	events := make([]model.OutboxEvent, 0, len(ids))
	for _, id := range ids {
		events = append(events, model.OutboxEvent{EntityType: entityType, EntityID: id, Op: op})
	}
	if err := tx.CreateInBatches(&events, 500).Error; err != nil {
		log.Printf("[SYNC] Failed to insert batch outbox for %s: %v", entityType, err)
		return err
	}
	log.Printf("[SYNC] %d outbox events created for %s", len(ids), entityType)
	return nil
}

// resyncSources lists every projected entity and the table holding it
var resyncSources = []struct {
	entity string
	model  interface{}
}{
	{model.OutboxEntityUniversity, &model.University{}},
	{model.OutboxEntityConnection, &model.Connection{}},
	{model.OutboxEntityUser, &model.User{}},
	{model.OutboxEntityProfile, &model.Profile{}},
	{model.OutboxEntityJob, &model.JobPosting{}},
}

// EnqueueAll writes an UPSERT event for every projected row so the worker
// rebuilds the mirror and index from the relational store.
func EnqueueAll(db *gorm.DB) (int, error) {
	total := 0
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, src := range resyncSources {
			var ids []uint
			if err := tx.Model(src.model).Order("id ASC").Pluck("id", &ids).Error; err != nil {
				return fmt.Errorf("list %s ids: %w", src.entity, err)
			}
			if err := AddBatch(tx, src.entity, model.OutboxOpUpsert, ids); err != nil {
				return err
			}
			total += len(ids)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
