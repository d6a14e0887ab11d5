package admin

import (
	"errors"
	"log"
	"strings"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/query"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var settingSortable = query.Sortable{
	"key":        "key",
	"category":   "category",
	"updated_at": "updated_at",
}

// CreateSettingRequest represents the request body for a new setting
type CreateSettingRequest struct {
	Key         string `json:"key" validate:"required,max=100"`
	Value       string `json:"value"`
	Type        string `json:"type" validate:"omitempty,oneof=string int bool json"`
	Description string `json:"description"`
	Category    string `json:"category" validate:"max=50"`
	IsPublic    bool   `json:"is_public"`
}

// UpdateSettingRequest represents a partial setting update
type UpdateSettingRequest struct {
	Value       *string `json:"value"`
	Type        *string `json:"type" validate:"omitempty,oneof=string int bool json"`
	Description *string `json:"description"`
	Category    *string `json:"category" validate:"omitempty,max=50"`
	IsPublic    *bool   `json:"is_public"`
}

// ListSettings handles GET /api/admin/settings
func (h *AdminHandler) ListSettings(c *fiber.Ctx) error {
	params, err := query.ParseList(c, settingSortable, "key")
	if err != nil {
		return query.Reject(c, err)
	}
	if c.Query("sortBy") == "" {
		params.SortOrder = "asc"
	}

	db := h.db.WithContext(c.UserContext()).Model(&model.AppSetting{})
	if category := c.Query("category"); category != "" {
		db = db.Where("category = ?", category)
	}
	db = query.Search(db, params.Search, "key", "description")

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count settings")
	}

	var settings []model.AppSetting
	if err := params.Page(db, settingSortable).Find(&settings).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch settings")
	}

	return response.Paginated(c, settings, response.CalculatePagination(params.Offset, params.Limit, total))
}

// GetSetting handles GET /api/admin/settings/:key
func (h *AdminHandler) GetSetting(c *fiber.Ctx) error {
	setting, ok, err := h.loadSetting(c)
	if !ok {
		return err
	}
	return response.Success(c, setting)
}

// CreateSetting handles POST /api/admin/settings
func (h *AdminHandler) CreateSetting(c *fiber.Ctx) error {
	var req CreateSettingRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Key = strings.TrimSpace(req.Key)
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	setting := model.AppSetting{
		Key:         req.Key,
		Value:       req.Value,
		Type:        req.Type,
		Description: req.Description,
		Category:    req.Category,
		IsPublic:    req.IsPublic,
	}
	if setting.Type == "" {
		setting.Type = model.SettingTypeString
	}
	if !setting.ValueMatchesType() {
		return response.Error(c, fiber.StatusBadRequest, "Value does not match type "+setting.Type, "INVALID_SETTING_VALUE")
	}
	if adminID, ok := middleware.GetUserID(c); ok {
		setting.UpdatedBy = &adminID
	}

	if err := h.db.WithContext(c.UserContext()).Create(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return response.ConflictWithCode(c, "SETTING_EXISTS", "A setting with this key already exists")
		}
		log.Printf("[ADMIN] create setting %s: %v", req.Key, err)
		return response.InternalServerError(c, "Failed to create setting")
	}
	return response.Created(c, setting)
}

// UpdateSetting handles PUT /api/admin/settings/:key
func (h *AdminHandler) UpdateSetting(c *fiber.Ctx) error {
	setting, ok, err := h.loadSetting(c)
	if !ok {
		return err
	}

	var req UpdateSettingRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	if req.Value != nil {
		setting.Value = *req.Value
	}
	if req.Type != nil {
		setting.Type = *req.Type
	}
	if req.Description != nil {
		setting.Description = *req.Description
	}
	if req.Category != nil {
		setting.Category = *req.Category
	}
	if req.IsPublic != nil {
		setting.IsPublic = *req.IsPublic
	}
	if !setting.ValueMatchesType() {
		return response.Error(c, fiber.StatusBadRequest, "Value does not match type "+setting.Type, "INVALID_SETTING_VALUE")
	}
	if adminID, ok := middleware.GetUserID(c); ok {
		setting.UpdatedBy = &adminID
	}

	if err := h.db.WithContext(c.UserContext()).Save(setting).Error; err != nil {
		log.Printf("[ADMIN] update setting %s: %v", setting.Key, err)
		return response.InternalServerError(c, "Failed to update setting")
	}
	return response.SuccessWithMessage(c, "Setting updated successfully", setting)
}

// DeleteSetting handles DELETE /api/admin/settings/:key
func (h *AdminHandler) DeleteSetting(c *fiber.Ctx) error {
	setting, ok, err := h.loadSetting(c)
	if !ok {
		return err
	}

	// Hard delete so the key can be recreated
	if err := h.db.WithContext(c.UserContext()).Unscoped().Delete(setting).Error; err != nil {
		return response.InternalServerError(c, "Failed to delete setting")
	}
	return response.SuccessWithMessage(c, "Setting deleted successfully", setting)
}

func (h *AdminHandler) loadSetting(c *fiber.Ctx) (*model.AppSetting, bool, error) {
	var setting model.AppSetting
	if err := h.db.WithContext(c.UserContext()).Where("key = ?", c.Params("key")).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, response.NotFound(c, "Setting not found")
		}
		return nil, false, response.InternalServerError(c, "Failed to fetch setting")
	}
	return &setting, true, nil
}
