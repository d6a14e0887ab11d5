package admin

import (
	"errors"
	"log"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services/outbox"
	"github.com/NagallaThanvi/unilink/utils/query"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/gofiber/fiber/v2"
)

var deadLetterSortable = query.Sortable{
	"created_at": "created_at",
	"attempts":   "attempts",
	"retried_at": "retried_at",
}

// ListDeadLetters handles GET /api/admin/dead-letters. Unresolved letters are
// listed unless resolved=true is given.
func (h *AdminHandler) ListDeadLetters(c *fiber.Ctx) error {
	params, err := query.ParseList(c, deadLetterSortable, "created_at")
	if err != nil {
		return query.Reject(c, err)
	}
	resolved, err := query.Bool(c, "resolved")
	if err != nil {
		return query.Reject(c, err)
	}
	entityType, err := query.OneOf(c, "entity_type",
		model.OutboxEntityUniversity, model.OutboxEntityConnection, model.OutboxEntityUser,
		model.OutboxEntityProfile, model.OutboxEntityJob)
	if err != nil {
		return query.Reject(c, err)
	}

	db := h.db.WithContext(c.UserContext()).Model(&model.OutboxDeadLetter{})
	if resolved != nil {
		db = db.Where("resolved = ?", *resolved)
	} else {
		db = db.Where("resolved = ?", false)
	}
	if entityType != "" {
		db = db.Where("entity_type = ?", entityType)
	}
	db = query.Search(db, params.Search, "error_msg")

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count dead letters")
	}

	var letters []model.OutboxDeadLetter
	if err := params.Page(db, deadLetterSortable).Find(&letters).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch dead letters")
	}

	return response.Paginated(c, letters, response.CalculatePagination(params.Offset, params.Limit, total))
}

// RetryDeadLetter handles POST /api/admin/dead-letters/:id/retry. The retry
// runs regardless of how many attempts the letter already has.
func (h *AdminHandler) RetryDeadLetter(c *fiber.Ctx) error {
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}
	if h.sync == nil || !h.sync.Enabled() {
		return response.ServiceUnavailable(c, "Mirror and search sync are not configured")
	}

	letter, err := h.sync.RetryDeadLetter(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, outbox.ErrDeadLetterNotFound) {
			return response.NotFound(c, "Dead letter not found")
		}
		log.Printf("[ADMIN] retry dead letter %d: %v", id, err)
		return response.InternalServerError(c, "Failed to retry dead letter")
	}

	if !letter.Resolved {
		return response.Error(c, fiber.StatusBadGateway, "Retry failed: "+letter.ErrorMsg, "RETRY_FAILED")
	}
	return response.SuccessWithMessage(c, "Dead letter resolved", letter)
}

// RetryAllDeadLetters handles POST /api/admin/dead-letters/retry
func (h *AdminHandler) RetryAllDeadLetters(c *fiber.Ctx) error {
	if h.sync == nil || !h.sync.Enabled() {
		return response.ServiceUnavailable(c, "Mirror and search sync are not configured")
	}

	resolved, err := h.sync.RetryDeadLetters(c.UserContext(), outbox.DefaultBatchSize)
	if err != nil {
		log.Printf("[ADMIN] retry dead letters: %v", err)
		return response.InternalServerError(c, "Failed to retry dead letters")
	}
	return response.Success(c, fiber.Map{"resolved": resolved})
}

// ResyncMirror handles POST /api/admin/mirror/resync. Every projected row is
// queued again and the sync worker rebuilds the mirror and search index.
func (h *AdminHandler) ResyncMirror(c *fiber.Ctx) error {
	if h.sync == nil || !h.sync.Enabled() {
		return response.ServiceUnavailable(c, "Mirror and search sync are not configured")
	}

	queued, err := outbox.EnqueueAll(h.db.WithContext(c.UserContext()))
	if err != nil {
		log.Printf("[ADMIN] resync: %v", err)
		return response.InternalServerError(c, "Failed to queue resync")
	}

	log.Printf("[ADMIN] resync queued %d outbox events", queued)
	return response.Accepted(c, "Resync queued", fiber.Map{"queued": queued})
}
