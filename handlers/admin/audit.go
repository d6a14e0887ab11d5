package admin

import (
	"errors"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/utils/query"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var auditSortable = query.Sortable{"created_at": "created_at"}

// ListAuditLogs handles GET /api/admin/audit-logs
func (h *AdminHandler) ListAuditLogs(c *fiber.Ctx) error {
	params, err := query.ParseList(c, auditSortable, "created_at")
	if err != nil {
		return query.Reject(c, err)
	}
	if params.ID != nil {
		return h.respondWithAuditLog(c, *params.ID)
	}

	adminID, err := query.Uint(c, "admin_id")
	if err != nil {
		return query.Reject(c, err)
	}
	resourceID, err := query.Uint(c, "resource_id")
	if err != nil {
		return query.Reject(c, err)
	}
	from, err := query.Time(c, "from")
	if err != nil {
		return query.Reject(c, err)
	}
	to, err := query.Time(c, "to")
	if err != nil {
		return query.Reject(c, err)
	}

	db := h.db.WithContext(c.UserContext()).Model(&model.AdminAuditLog{})
	if action := c.Query("action"); action != "" {
		db = db.Where("action = ?", action)
	}
	if resource := c.Query("resource"); resource != "" {
		db = db.Where("resource = ?", resource)
	}
	if adminID != nil {
		db = db.Where("admin_id = ?", *adminID)
	}
	if resourceID != nil {
		db = db.Where("resource_id = ?", *resourceID)
	}
	if from != nil {
		db = db.Where("created_at >= ?", *from)
	}
	if to != nil {
		db = db.Where("created_at <= ?", *to)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count audit logs")
	}

	var logs []model.AdminAuditLog
	if err := params.Page(db, auditSortable).Preload("Admin").Find(&logs).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch audit logs")
	}

	return response.Paginated(c, logs, response.CalculatePagination(params.Offset, params.Limit, total))
}

// GetAuditLog handles GET /api/admin/audit-logs/:id
func (h *AdminHandler) GetAuditLog(c *fiber.Ctx) error {
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}
	return h.respondWithAuditLog(c, id)
}

func (h *AdminHandler) respondWithAuditLog(c *fiber.Ctx, id uint) error {
	var entry model.AdminAuditLog
	if err := h.db.WithContext(c.UserContext()).Preload("Admin").First(&entry, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Audit log not found")
		}
		return response.InternalServerError(c, "Failed to fetch audit log")
	}
	return response.Success(c, entry)
}
