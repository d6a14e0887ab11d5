package university

import (
	"encoding/json"
	"errors"
	"log"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services/outbox"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/query"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/NagallaThanvi/unilink/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UniversityHandler handles university-related requests
type UniversityHandler struct {
	db        *gorm.DB
	validator *validation.Validator
}

// NewUniversityHandler creates a new university handler
func NewUniversityHandler(db *gorm.DB) *UniversityHandler {
	return &UniversityHandler{
		db:        db,
		validator: validation.NewValidator(),
	}
}

var sortable = query.Sortable{
	"name":       "name",
	"code":       "code",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

// CreateUniversityRequest represents the request body for creating a university
type CreateUniversityRequest struct {
	Name     string                 `json:"name" validate:"required,min=3,max=255"`
	Code     string                 `json:"code" validate:"required,university_code"`
	Domain   string                 `json:"domain" validate:"omitempty,fqdn,max=255"`
	Location string                 `json:"location" validate:"omitempty,max=255"`
	Website  string                 `json:"website" validate:"omitempty,url,max=255"`
	LogoURL  string                 `json:"logo_url" validate:"omitempty,url,max=512"`
	Settings map[string]interface{} `json:"settings"`
}

// UpdateUniversityRequest represents the request body for updating a university.
// Settings keys are merged into the stored blob; a null value removes the key.
type UpdateUniversityRequest struct {
	Name     *string                `json:"name" validate:"omitempty,min=3,max=255"`
	Code     *string                `json:"code" validate:"omitempty,university_code"`
	Domain   *string                `json:"domain" validate:"omitempty,fqdn,max=255"`
	Location *string                `json:"location" validate:"omitempty,max=255"`
	Website  *string                `json:"website" validate:"omitempty,url,max=255"`
	LogoURL  *string                `json:"logo_url" validate:"omitempty,url,max=512"`
	IsActive *bool                  `json:"is_active"`
	Settings map[string]interface{} `json:"settings"`
}

// ListUniversities handles GET /api/universities
func (h *UniversityHandler) ListUniversities(c *fiber.Ctx) error {
	params, err := query.ParseList(c, sortable, "created_at")
	if err != nil {
		return query.Reject(c, err)
	}

	if params.ID != nil {
		return h.respondWith(c, *params.ID)
	}

	isActive, err := query.Bool(c, "is_active")
	if err != nil {
		return query.Reject(c, err)
	}

	db := h.db.WithContext(c.UserContext()).Model(&model.University{})
	db = query.Search(db, params.Search, "name", "code", "location")
	if isActive != nil {
		db = db.Where("is_active = ?", *isActive)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count universities")
	}

	var universities []model.University
	if err := params.Page(db, sortable).Find(&universities).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch universities")
	}

	return response.Paginated(c, universities, response.CalculatePagination(params.Offset, params.Limit, total))
}

// GetUniversity handles GET /api/universities/:id
func (h *UniversityHandler) GetUniversity(c *fiber.Ctx) error {
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}
	return h.respondWith(c, id)
}

func (h *UniversityHandler) respondWith(c *fiber.Ctx, id uint) error {
	var university model.University
	if err := h.db.WithContext(c.UserContext()).First(&university, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "University not found")
		}
		return response.InternalServerError(c, "Failed to fetch university")
	}
	return response.Success(c, university)
}

// CreateUniversity handles POST /api/universities
func (h *UniversityHandler) CreateUniversity(c *fiber.Ctx) error {
	// Authorization: Admin only
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !user.IsAdmin() {
		return response.Forbidden(c, "Only administrators can create universities")
	}

	var req CreateUniversityRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	// Sanitize inputs
	req.Name = validation.SanitizeString(req.Name)
	req.Code = validation.SanitizeString(req.Code)
	req.Domain = validation.SanitizeString(req.Domain)
	req.Location = validation.SanitizeString(req.Location)

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	university := model.University{
		Name:     req.Name,
		Code:     req.Code,
		Domain:   req.Domain,
		Location: req.Location,
		Website:  req.Website,
		LogoURL:  req.LogoURL,
		IsActive: true,
	}
	if req.Settings != nil {
		raw, err := json.Marshal(req.Settings)
		if err != nil {
			return response.BadRequest(c, "Invalid settings")
		}
		university.Settings = datatypes.JSON(raw)
	}

	if taken, err := h.codeTaken(c, req.Code, 0); err != nil {
		return response.InternalServerError(c, "Failed to check university code")
	} else if taken {
		return response.ConflictWithCode(c, "UNIVERSITY_CODE_EXISTS", "University with this code already exists")
	}

	err := h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&university).Error; err != nil {
			return err
		}
		return outbox.Add(tx, model.OutboxEntityUniversity, university.ID, model.OutboxOpUpsert, nil)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return response.ConflictWithCode(c, "UNIVERSITY_CODE_EXISTS", "University with this name or code already exists")
		}
		log.Printf("[UNIVERSITY] create %s: %v", req.Code, err)
		return response.InternalServerError(c, "Failed to create university")
	}

	return response.Created(c, university)
}

// UpdateUniversity handles PUT /api/universities/:id
func (h *UniversityHandler) UpdateUniversity(c *fiber.Ctx) error {
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}

	// Authorization: Admin or this university's admin
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !user.ManagesUniversity(id) {
		return response.Forbidden(c, "You do not manage this university")
	}

	var req UpdateUniversityRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	for _, s := range []*string{req.Name, req.Code, req.Domain, req.Location} {
		if s != nil {
			*s = validation.SanitizeString(*s)
		}
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	var university model.University
	if err := h.db.WithContext(c.UserContext()).First(&university, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "University not found")
		}
		return response.InternalServerError(c, "Failed to fetch university")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Code != nil && *req.Code != university.Code {
		if taken, err := h.codeTaken(c, *req.Code, id); err != nil {
			return response.InternalServerError(c, "Failed to check university code")
		} else if taken {
			return response.ConflictWithCode(c, "UNIVERSITY_CODE_EXISTS", "University with this code already exists")
		}
		updates["code"] = *req.Code
	}
	if req.Domain != nil {
		updates["domain"] = *req.Domain
	}
	if req.Location != nil {
		updates["location"] = *req.Location
	}
	if req.Website != nil {
		updates["website"] = *req.Website
	}
	if req.LogoURL != nil {
		updates["logo_url"] = *req.LogoURL
	}
	if req.IsActive != nil {
		// deactivating a tenant is a platform decision
		if !user.IsAdmin() {
			return response.Forbidden(c, "Only administrators can change university status")
		}
		updates["is_active"] = *req.IsActive
	}
	if req.Settings != nil {
		merged, err := MergeSettings(university.Settings, req.Settings)
		if err != nil {
			return response.BadRequest(c, "Stored settings are not a JSON object")
		}
		updates["settings"] = merged
	}

	if len(updates) == 0 {
		return response.Success(c, university)
	}

	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&university).Updates(updates).Error; err != nil {
			return err
		}
		return outbox.Add(tx, model.OutboxEntityUniversity, university.ID, model.OutboxOpUpsert, nil)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return response.ConflictWithCode(c, "UNIVERSITY_CODE_EXISTS", "University with this name or code already exists")
		}
		log.Printf("[UNIVERSITY] update %d: %v", id, err)
		return response.InternalServerError(c, "Failed to update university")
	}

	if err := h.db.WithContext(c.UserContext()).First(&university, id).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch university")
	}
	return response.Success(c, university)
}

// DeleteUniversity handles DELETE /api/universities/:id
func (h *UniversityHandler) DeleteUniversity(c *fiber.Ctx) error {
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}

	// Authorization: Admin only
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	if !user.IsAdmin() {
		return response.Forbidden(c, "Only administrators can delete universities")
	}

	var university model.University
	if err := h.db.WithContext(c.UserContext()).First(&university, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "University not found")
		}
		return response.InternalServerError(c, "Failed to fetch university")
	}

	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&university).Error; err != nil {
			return err
		}
		return outbox.Add(tx, model.OutboxEntityUniversity, university.ID, model.OutboxOpDelete, nil)
	})
	if err != nil {
		log.Printf("[UNIVERSITY] delete %d: %v", id, err)
		return response.InternalServerError(c, "Failed to delete university")
	}

	return response.SuccessWithMessage(c, "University deleted successfully", university)
}

func (h *UniversityHandler) codeTaken(c *fiber.Ctx, code string, exceptID uint) (bool, error) {
	var count int64
	err := h.db.WithContext(c.UserContext()).Model(&model.University{}).
		Where("LOWER(code) = LOWER(?) AND id <> ?", code, exceptID).
		Count(&count).Error
	return count > 0, err
}

// MergeSettings applies patch onto the stored settings object. Keys with a
// null value are removed.
func MergeSettings(stored datatypes.JSON, patch map[string]interface{}) (datatypes.JSON, error) {
	current := map[string]interface{}{}
	if len(stored) > 0 && string(stored) != "null" {
		if err := json.Unmarshal(stored, &current); err != nil {
			return nil, err
		}
	}
	for k, v := range patch {
		if v == nil {
			delete(current, k)
			continue
		}
		current[k] = v
	}
	raw, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
