package outbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services/mirror"
	"github.com/NagallaThanvi/unilink/services/search"
	"github.com/NagallaThanvi/unilink/utils/metrics"
	"gorm.io/gorm"
)

const (
	DefaultBatchSize = 200
	// DefaultMaxAttempts bounds dead letter retries unless the
	// sync.max_dead_letter_attempts setting overrides it
	DefaultMaxAttempts = 5
	MaxAttemptsSetting = "sync.max_dead_letter_attempts"
)

// ErrDeadLetterNotFound is returned when retrying an unknown or resolved dead letter
var ErrDeadLetterNotFound = errors.New("dead letter not found")

// Worker drains the outbox into the mirror and the search index. Either
// target may be nil, in which case its projections are skipped.
type Worker struct {
	db        *gorm.DB
	mirror    mirror.Store
	search    search.Engine
	batchSize int
	now       func() time.Time
}

func NewWorker(db *gorm.DB, store mirror.Store, engine search.Engine) *Worker {
	return &Worker{db: db, mirror: store, search: engine, batchSize: DefaultBatchSize, now: time.Now}
}

// Enabled reports whether any projection target is configured
func (w *Worker) Enabled() bool {
	return w.mirror != nil || w.search != nil
}

// ProcessOnce claims one batch and projects it. Failed events are moved to
// the dead letter table; the returned count is the number claimed.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	events, err := FetchBatch(ctx, w.db, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch outbox batch: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	batch, err := w.newBatch()
	if err != nil {
		return 0, err
	}

	for _, e := range events {
		e := e
		onFailure := func(err error) {
			metrics.OutboxFailed.WithLabelValues(e.EntityType).Inc()
			PutDeadLetter(w.db, e, err.Error())
		}
		if err := w.applyEvent(ctx, batch, e, onFailure); err != nil {
			onFailure(err)
			continue
		}
		metrics.OutboxProcessed.WithLabelValues(e.EntityType).Inc()
	}

	if batch != nil {
		stats, err := batch.Close(ctx)
		if err != nil {
			return len(events), fmt.Errorf("flush search batch: %w", err)
		}
		log.Printf("[SYNC] bulk indexed=%d deleted=%d failed=%d", stats.Indexed, stats.Deleted, stats.Failed)
	}
	return len(events), nil
}

// RetryDeadLetters reapplies unresolved dead letters below the attempt limit
// and returns how many were resolved.
func (w *Worker) RetryDeadLetters(ctx context.Context, limit int) (int, error) {
	maxAttempts := w.maxAttempts(ctx)

	var letters []model.OutboxDeadLetter
	if err := w.db.WithContext(ctx).
		Where("resolved = ? AND attempts < ?", false, maxAttempts).
		Order("id ASC").Limit(limit).Find(&letters).Error; err != nil {
		return 0, fmt.Errorf("fetch dead letters: %w", err)
	}
	return w.retry(ctx, letters)
}

// RetryDeadLetter reapplies one dead letter regardless of its attempt count
func (w *Worker) RetryDeadLetter(ctx context.Context, id uint) (*model.OutboxDeadLetter, error) {
	var dl model.OutboxDeadLetter
	if err := w.db.WithContext(ctx).Where("id = ? AND resolved = ?", id, false).First(&dl).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeadLetterNotFound
		}
		return nil, err
	}
	if _, err := w.retry(ctx, []model.OutboxDeadLetter{dl}); err != nil {
		return nil, err
	}
	if err := w.db.WithContext(ctx).First(&dl, id).Error; err != nil {
		return nil, err
	}
	return &dl, nil
}

func (w *Worker) retry(ctx context.Context, letters []model.OutboxDeadLetter) (int, error) {
	if len(letters) == 0 {
		return 0, nil
	}

	batch, err := w.newBatch()
	if err != nil {
		return 0, err
	}

	var mu sync.Mutex
	failures := make(map[uint]error)
	for _, d := range letters {
		d := d
		log.Printf("[SYNC] Retrying dead letter id=%d entity=%s/%d op=%s", d.ID, d.EntityType, d.EntityID, d.Op)
		onFailure := func(err error) {
			mu.Lock()
			failures[d.ID] = err
			mu.Unlock()
		}
		e := model.OutboxEvent{ID: d.OutboxID, EntityType: d.EntityType, EntityID: d.EntityID, Op: d.Op, Payload: d.Payload}
		if err := w.applyEvent(ctx, batch, e, onFailure); err != nil {
			onFailure(err)
		}
	}
	if batch != nil {
		if _, err := batch.Close(ctx); err != nil {
			return 0, fmt.Errorf("flush search batch: %w", err)
		}
	}

	resolved := 0
	now := w.now()
	for _, d := range letters {
		updates := map[string]interface{}{"retried_at": now, "attempts": d.Attempts + 1}
		if err, failed := failures[d.ID]; failed {
			updates["error_msg"] = err.Error()
		} else {
			updates["resolved"] = true
			resolved++
			metrics.OutboxProcessed.WithLabelValues(d.EntityType).Inc()
			log.Printf("[SYNC] Dead letter id=%d resolved", d.ID)
		}
		if err := w.db.WithContext(ctx).Model(&model.OutboxDeadLetter{}).Where("id = ?", d.ID).Updates(updates).Error; err != nil {
			return resolved, fmt.Errorf("update dead letter %d: %w", d.ID, err)
		}
	}
	return resolved, nil
}

func (w *Worker) maxAttempts(ctx context.Context) int {
	var setting model.AppSetting
	if err := w.db.WithContext(ctx).Where("key = ?", MaxAttemptsSetting).First(&setting).Error; err != nil {
		return DefaultMaxAttempts
	}
	if n := setting.IntValue(DefaultMaxAttempts); n > 0 {
		return n
	}
	return DefaultMaxAttempts
}

func (w *Worker) newBatch() (search.Batch, error) {
	if w.search == nil {
		return nil, nil
	}
	batch, err := w.search.NewBatch()
	if err != nil {
		return nil, fmt.Errorf("create search batch: %w", err)
	}
	return batch, nil
}

// applyEvent projects one event. Synchronous failures are returned; search
// failures reported after the batch flush go to onFailure. An UPSERT for a
// row that no longer exists removes the projection.
func (w *Worker) applyEvent(ctx context.Context, batch search.Batch, e model.OutboxEvent, onFailure func(error)) error {
	now := w.now()
	del := e.Op == model.OutboxOpDelete

	switch e.EntityType {
	case model.OutboxEntityUniversity:
		if w.mirror == nil {
			return nil
		}
		var u model.University
		found, err := w.load(ctx, del, &u, e.EntityID)
		if err != nil {
			return err
		}
		if !found {
			return w.mirror.Delete(ctx, mirror.CollUniversities, e.EntityID)
		}
		return w.mirror.Upsert(ctx, mirror.CollUniversities, u.ID, mirror.BuildUniversityDoc(u, now))

	case model.OutboxEntityConnection:
		if w.mirror == nil {
			return nil
		}
		var c model.Connection
		found, err := w.load(ctx, del, &c, e.EntityID, "Requester", "Recipient")
		if err != nil {
			return err
		}
		if !found {
			return w.mirror.Delete(ctx, mirror.CollConnections, e.EntityID)
		}
		return w.mirror.Upsert(ctx, mirror.CollConnections, c.ID, mirror.BuildConnectionDoc(c, now))

	case model.OutboxEntityUser:
		var u model.User
		found, err := w.load(ctx, del, &u, e.EntityID)
		if err != nil {
			return err
		}
		if w.mirror != nil {
			if !found {
				if err := w.mirror.Delete(ctx, mirror.CollAdminUsers, e.EntityID); err != nil {
					return err
				}
			} else if err := w.mirror.Upsert(ctx, mirror.CollAdminUsers, u.ID, mirror.BuildAdminUserDoc(u, now)); err != nil {
				return err
			}
		}
		// the profile document carries the user's name
		if batch != nil && found {
			var p model.Profile
			err := w.db.WithContext(ctx).Preload("User").Where("user_id = ?", u.ID).First(&p).Error
			if err == nil {
				return w.indexProfile(ctx, batch, p, onFailure)
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}
		return nil

	case model.OutboxEntityProfile:
		if batch == nil {
			return nil
		}
		var p model.Profile
		found, err := w.load(ctx, del, &p, e.EntityID, "User")
		if err != nil {
			return err
		}
		if !found {
			return batch.Delete(ctx, search.IdxProfiles, docID(e.EntityID), onFailure)
		}
		return w.indexProfile(ctx, batch, p, onFailure)

	case model.OutboxEntityJob:
		if batch == nil {
			return nil
		}
		var j model.JobPosting
		found, err := w.load(ctx, del, &j, e.EntityID)
		if err != nil {
			return err
		}
		if !found {
			return batch.Delete(ctx, search.IdxJobs, docID(e.EntityID), onFailure)
		}
		doc, err := search.BuildJobDoc(j)
		if err != nil {
			return err
		}
		return batch.Index(ctx, search.IdxJobs, docID(j.ID), doc, onFailure)
	}
	return fmt.Errorf("unknown entity_type=%s", e.EntityType)
}

// indexProfile indexes public profiles and removes the others from search
func (w *Worker) indexProfile(ctx context.Context, batch search.Batch, p model.Profile, onFailure func(error)) error {
	if p.Visibility != model.VisibilityPublic {
		return batch.Delete(ctx, search.IdxProfiles, docID(p.ID), onFailure)
	}
	doc, err := search.BuildProfileDoc(p)
	if err != nil {
		return err
	}
	return batch.Index(ctx, search.IdxProfiles, docID(p.ID), doc, onFailure)
}

// load fetches the row unless the event is a delete. found is false when the
// row is gone.
func (w *Worker) load(ctx context.Context, del bool, dest interface{}, id uint, preload ...string) (bool, error) {
	if del {
		return false, nil
	}
	q := w.db.WithContext(ctx)
	for _, p := range preload {
		q = q.Preload(p)
	}
	err := q.First(dest, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func docID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
