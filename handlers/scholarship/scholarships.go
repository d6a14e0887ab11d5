package scholarship

import (
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/query"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/NagallaThanvi/unilink/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ScholarshipHandler handles scholarships and their applications
type ScholarshipHandler struct {
	db            *gorm.DB
	notifications *services.NotificationService
	validator     *validation.Validator
}

// NewScholarshipHandler creates a new scholarship handler
func NewScholarshipHandler(db *gorm.DB, notifications *services.NotificationService) *ScholarshipHandler {
	return &ScholarshipHandler{
		db:            db,
		notifications: notifications,
		validator:     validation.NewValidator(),
	}
}

var sortable = query.Sortable{
	"created_at":        "created_at",
	"deadline":          "deadline",
	"amount":            "amount",
	"title":             "title",
	"application_count": "application_count",
}

// CreateScholarshipRequest represents the request body for a new scholarship
type CreateScholarshipRequest struct {
	UniversityID *uint                  `json:"university_id"`
	Title        string                 `json:"title" validate:"required,min=3,max=255"`
	Description  string                 `json:"description" validate:"max=20000"`
	Amount       float64                `json:"amount" validate:"required,gt=0"`
	Currency     string                 `json:"currency" validate:"omitempty,iso4217"`
	Eligibility  map[string]interface{} `json:"eligibility"`
	Deadline     *time.Time             `json:"deadline"`
	Status       string                 `json:"status" validate:"omitempty,oneof=open closed"`
}

// UpdateScholarshipRequest represents a partial scholarship update
type UpdateScholarshipRequest struct {
	Title       *string                 `json:"title" validate:"omitempty,min=3,max=255"`
	Description *string                 `json:"description" validate:"omitempty,max=20000"`
	Amount      *float64                `json:"amount" validate:"omitempty,gt=0"`
	Currency    *string                 `json:"currency" validate:"omitempty,iso4217"`
	Eligibility *map[string]interface{} `json:"eligibility"`
	Deadline    *time.Time              `json:"deadline"`
	Status      *string                 `json:"status" validate:"omitempty,oneof=open closed"`
}

// ListScholarships handles GET /api/scholarships
func (h *ScholarshipHandler) ListScholarships(c *fiber.Ctx) error {
	params, err := query.ParseList(c, sortable, "created_at")
	if err != nil {
		return query.Reject(c, err)
	}
	if params.ID != nil {
		return h.respondWith(c, *params.ID)
	}

	universityID, err := query.Uint(c, "university_id")
	if err != nil {
		return query.Reject(c, err)
	}
	status, err := query.OneOf(c, "status", model.ScholarshipStatusOpen, model.ScholarshipStatusClosed)
	if err != nil {
		return query.Reject(c, err)
	}
	minAmount, err := query.Int(c, "min_amount")
	if err != nil {
		return query.Reject(c, err)
	}
	maxAmount, err := query.Int(c, "max_amount")
	if err != nil {
		return query.Reject(c, err)
	}
	open, err := query.Bool(c, "accepting")
	if err != nil {
		return query.Reject(c, err)
	}

	db := h.db.WithContext(c.UserContext()).Model(&model.Scholarship{})
	if universityID != nil {
		db = db.Where("university_id = ?", *universityID)
	}
	if status != "" {
		db = db.Where("status = ?", status)
	}
	if currency := strings.ToUpper(strings.TrimSpace(c.Query("currency"))); currency != "" {
		db = db.Where("currency = ?", currency)
	}
	if minAmount != nil {
		db = db.Where("amount >= ?", *minAmount)
	}
	if maxAmount != nil {
		db = db.Where("amount <= ?", *maxAmount)
	}
	if open != nil && *open {
		db = db.Where("status = ? AND (deadline IS NULL OR deadline > ?)", model.ScholarshipStatusOpen, time.Now())
	}
	db = query.Search(db, params.Search, "title", "description")

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count scholarships")
	}

	var scholarships []model.Scholarship
	if err := params.Page(db, sortable).Find(&scholarships).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch scholarships")
	}

	return response.Paginated(c, scholarships, response.CalculatePagination(params.Offset, params.Limit, total))
}

// GetScholarship handles GET /api/scholarships/:id
func (h *ScholarshipHandler) GetScholarship(c *fiber.Ctx) error {
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}
	return h.respondWith(c, id)
}

func (h *ScholarshipHandler) respondWith(c *fiber.Ctx, id uint) error {
	var scholarship model.Scholarship
	if err := h.db.WithContext(c.UserContext()).Preload("University").Preload("Creator").First(&scholarship, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Scholarship not found")
		}
		return response.InternalServerError(c, "Failed to fetch scholarship")
	}
	return response.Success(c, scholarship)
}

// CreateScholarship handles POST /api/scholarships
// Authorization: alumni, faculty, university_admin or admin, for their own university
func (h *ScholarshipHandler) CreateScholarship(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateScholarshipRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Title = validation.SanitizeString(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}
	if req.Deadline != nil && !req.Deadline.After(time.Now()) {
		return response.Error(c, fiber.StatusBadRequest, "deadline must be in the future", "INVALID_DEADLINE")
	}

	universityID, ok, err := h.resolveUniversity(c, user, req.UniversityID)
	if !ok {
		return err
	}

	eligibility, err := encodeEligibility(req.Eligibility)
	if err != nil {
		return response.BadRequest(c, "Invalid eligibility")
	}

	scholarship := model.Scholarship{
		UniversityID: universityID,
		CreatedBy:    user.ID,
		Title:        req.Title,
		Description:  req.Description,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Eligibility:  eligibility,
		Deadline:     req.Deadline,
		Status:       req.Status,
	}
	if scholarship.Currency == "" {
		scholarship.Currency = "USD"
	}
	if scholarship.Status == "" {
		scholarship.Status = model.ScholarshipStatusOpen
	}

	if err := h.db.WithContext(c.UserContext()).Create(&scholarship).Error; err != nil {
		log.Printf("[SCHOLARSHIP] create: %v", err)
		return response.InternalServerError(c, "Failed to create scholarship")
	}

	return response.Created(c, scholarship)
}

// UpdateScholarship handles PUT /api/scholarships/:id
// Authorization: the creator, that university's admin or admin
func (h *ScholarshipHandler) UpdateScholarship(c *fiber.Ctx) error {
	scholarship, ok, err := h.loadManaged(c)
	if !ok {
		return err
	}

	var req UpdateScholarshipRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if req.Currency != nil {
		upper := strings.ToUpper(strings.TrimSpace(*req.Currency))
		req.Currency = &upper
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = validation.SanitizeString(*req.Title)
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Amount != nil {
		updates["amount"] = *req.Amount
	}
	if req.Currency != nil {
		updates["currency"] = *req.Currency
	}
	if req.Eligibility != nil {
		eligibility, err := encodeEligibility(*req.Eligibility)
		if err != nil {
			return response.BadRequest(c, "Invalid eligibility")
		}
		updates["eligibility"] = eligibility
	}
	if req.Deadline != nil {
		updates["deadline"] = *req.Deadline
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}

	if len(updates) == 0 {
		return response.Success(c, scholarship)
	}

	if err := h.db.WithContext(c.UserContext()).Model(scholarship).Updates(updates).Error; err != nil {
		log.Printf("[SCHOLARSHIP] update %d: %v", scholarship.ID, err)
		return response.InternalServerError(c, "Failed to update scholarship")
	}
	if err := h.db.WithContext(c.UserContext()).First(scholarship, scholarship.ID).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch updated scholarship")
	}
	return response.Success(c, scholarship)
}

// DeleteScholarship handles DELETE /api/scholarships/:id
// Authorization: the creator, that university's admin or admin
func (h *ScholarshipHandler) DeleteScholarship(c *fiber.Ctx) error {
	scholarship, ok, err := h.loadManaged(c)
	if !ok {
		return err
	}

	if err := h.db.WithContext(c.UserContext()).Delete(scholarship).Error; err != nil {
		log.Printf("[SCHOLARSHIP] delete %d: %v", scholarship.ID, err)
		return response.InternalServerError(c, "Failed to delete scholarship")
	}

	return response.SuccessWithMessage(c, "Scholarship deleted successfully", scholarship)
}

// loadManaged fetches the scholarship in the path for a user allowed to
// manage it. When ok is false the response has already been written.
func (h *ScholarshipHandler) loadManaged(c *fiber.Ctx) (*model.Scholarship, bool, error) {
	user, ok := middleware.GetUser(c)
	if !ok {
		return nil, false, response.Unauthorized(c, "User not authenticated")
	}
	id, err := query.PathID(c, "id")
	if err != nil {
		return nil, false, response.InvalidID(c)
	}

	var scholarship model.Scholarship
	if err := h.db.WithContext(c.UserContext()).First(&scholarship, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, response.NotFound(c, "Scholarship not found")
		}
		return nil, false, response.InternalServerError(c, "Failed to fetch scholarship")
	}
	if !canManage(user, &scholarship) {
		return nil, false, response.Forbidden(c, "You cannot manage this scholarship")
	}
	return &scholarship, true, nil
}

func canManage(user *model.User, s *model.Scholarship) bool {
	return s.CreatedBy == user.ID || user.ManagesUniversity(s.UniversityID)
}

func (h *ScholarshipHandler) resolveUniversity(c *fiber.Ctx, user *model.User, requested *uint) (uint, bool, error) {
	var id uint
	switch {
	case requested != nil:
		id = *requested
	case user.UniversityID != nil:
		id = *user.UniversityID
	default:
		return 0, false, response.Error(c, fiber.StatusBadRequest, "university_id is required", "UNIVERSITY_REQUIRED")
	}
	if !user.IsAdmin() && (user.UniversityID == nil || *user.UniversityID != id) {
		return 0, false, response.Forbidden(c, "You can only create scholarships for your own university")
	}

	var count int64
	if err := h.db.WithContext(c.UserContext()).Model(&model.University{}).
		Where("id = ? AND is_active = ?", id, true).Count(&count).Error; err != nil {
		return 0, false, response.InternalServerError(c, "Failed to fetch university")
	}
	if count == 0 {
		return 0, false, response.Error(c, fiber.StatusBadRequest, "University not found", "UNIVERSITY_NOT_FOUND")
	}
	return id, true, nil
}

func encodeEligibility(v map[string]interface{}) (datatypes.JSON, error) {
	if len(v) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
