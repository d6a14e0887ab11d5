package feedback

import (
	"errors"
	"log"
	"math"
	"strings"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/query"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/NagallaThanvi/unilink/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// FeedbackHandler handles curriculum feedback
type FeedbackHandler struct {
	db           *gorm.DB
	gamification *services.GamificationService
	validator    *validation.Validator
}

// NewFeedbackHandler creates a new curriculum feedback handler
func NewFeedbackHandler(db *gorm.DB, gamification *services.GamificationService) *FeedbackHandler {
	return &FeedbackHandler{
		db:           db,
		gamification: gamification,
		validator:    validation.NewValidator(),
	}
}

var sortable = query.Sortable{
	"created_at":      "created_at",
	"rating":          "rating",
	"course_name":     "course_name",
	"graduation_year": "graduation_year",
}

// CreateFeedbackRequest represents the request body for new feedback
type CreateFeedbackRequest struct {
	UniversityID    *uint  `json:"university_id"`
	CourseName      string `json:"course_name" validate:"required,max=255"`
	GraduationYear  int    `json:"graduation_year" validate:"omitempty,min=1900,max=2100"`
	Rating          int    `json:"rating" validate:"required,min=1,max=5"`
	RelevanceRating int    `json:"relevance_rating" validate:"omitempty,min=1,max=5"`
	Comments        string `json:"comments" validate:"max=5000"`
	Suggestions     string `json:"suggestions" validate:"max=5000"`
	IsAnonymous     bool   `json:"is_anonymous"`
}

// UpdateFeedbackRequest represents a partial feedback update
type UpdateFeedbackRequest struct {
	CourseName      *string `json:"course_name" validate:"omitempty,max=255"`
	GraduationYear  *int    `json:"graduation_year" validate:"omitempty,min=1900,max=2100"`
	Rating          *int    `json:"rating" validate:"omitempty,min=1,max=5"`
	RelevanceRating *int    `json:"relevance_rating" validate:"omitempty,min=1,max=5"`
	Comments        *string `json:"comments" validate:"omitempty,max=5000"`
	Suggestions     *string `json:"suggestions" validate:"omitempty,max=5000"`
	IsAnonymous     *bool   `json:"is_anonymous"`
}

// CourseSummary aggregates the feedback for one course
type CourseSummary struct {
	CourseName       string  `json:"course_name"`
	Count            int64   `json:"count"`
	AverageRating    float64 `json:"average_rating"`
	AverageRelevance float64 `json:"average_relevance"`
}

// ListFeedback handles GET /api/curriculum-feedback
func (h *FeedbackHandler) ListFeedback(c *fiber.Ctx) error {
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
	graduationYear, err := query.Int(c, "graduation_year")
	if err != nil {
		return query.Reject(c, err)
	}
	minRating, err := query.Int(c, "min_rating")
	if err != nil {
		return query.Reject(c, err)
	}

	db := h.db.WithContext(c.UserContext()).Model(&model.CurriculumFeedback{})
	if universityID != nil {
		db = db.Where("university_id = ?", *universityID)
	}
	if course := strings.TrimSpace(c.Query("course_name")); course != "" {
		db = db.Where("LOWER(course_name) = ?", strings.ToLower(course))
	}
	if graduationYear != nil {
		db = db.Where("graduation_year = ?", *graduationYear)
	}
	if minRating != nil {
		db = db.Where("rating >= ?", *minRating)
	}
	db = query.Search(db, params.Search, "course_name", "comments", "suggestions")

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count feedback")
	}

	var entries []model.CurriculumFeedback
	if err := params.Page(db, sortable).Preload("User").Find(&entries).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch feedback")
	}

	viewer, _ := middleware.GetUser(c)
	for i := range entries {
		redact(&entries[i], viewer)
	}

	return response.Paginated(c, entries, response.CalculatePagination(params.Offset, params.Limit, total))
}

// GetFeedback handles GET /api/curriculum-feedback/:id
func (h *FeedbackHandler) GetFeedback(c *fiber.Ctx) error {
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}
	return h.respondWith(c, id)
}

func (h *FeedbackHandler) respondWith(c *fiber.Ctx, id uint) error {
	var entry model.CurriculumFeedback
	if err := h.db.WithContext(c.UserContext()).Preload("User").First(&entry, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Feedback not found")
		}
		return response.InternalServerError(c, "Failed to fetch feedback")
	}
	viewer, _ := middleware.GetUser(c)
	redact(&entry, viewer)
	return response.Success(c, entry)
}

// CreateFeedback handles POST /api/curriculum-feedback
func (h *FeedbackHandler) CreateFeedback(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateFeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.CourseName = validation.SanitizeString(req.CourseName)
	req.Comments = strings.TrimSpace(req.Comments)
	req.Suggestions = strings.TrimSpace(req.Suggestions)
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	var universityID uint
	switch {
	case req.UniversityID != nil:
		universityID = *req.UniversityID
	case user.UniversityID != nil:
		universityID = *user.UniversityID
	default:
		return response.Error(c, fiber.StatusBadRequest, "university_id is required", "UNIVERSITY_REQUIRED")
	}
	// feedback is given by the university's own members
	if !user.IsAdmin() && (user.UniversityID == nil || *user.UniversityID != universityID) {
		return response.Forbidden(c, "You can only review courses of your own university")
	}

	var count int64
	if err := h.db.WithContext(c.UserContext()).Model(&model.University{}).Where("id = ?", universityID).Count(&count).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch university")
	}
	if count == 0 {
		return response.Error(c, fiber.StatusBadRequest, "University not found", "UNIVERSITY_NOT_FOUND")
	}

	if err := h.db.WithContext(c.UserContext()).Model(&model.CurriculumFeedback{}).
		Where("user_id = ? AND university_id = ? AND LOWER(course_name) = ?", user.ID, universityID, strings.ToLower(req.CourseName)).
		Count(&count).Error; err != nil {
		return response.InternalServerError(c, "Failed to check existing feedback")
	}
	if count > 0 {
		return response.ConflictWithCode(c, "FEEDBACK_EXISTS", "You have already reviewed this course")
	}

	entry := model.CurriculumFeedback{
		UniversityID:    universityID,
		UserID:          user.ID,
		CourseName:      req.CourseName,
		GraduationYear:  req.GraduationYear,
		Rating:          req.Rating,
		RelevanceRating: req.RelevanceRating,
		Comments:        req.Comments,
		Suggestions:     req.Suggestions,
		IsAnonymous:     req.IsAnonymous,
	}
	if err := h.db.WithContext(c.UserContext()).Create(&entry).Error; err != nil {
		log.Printf("[FEEDBACK] create: %v", err)
		return response.InternalServerError(c, "Failed to submit feedback")
	}

	h.gamification.AwardQuietly(c.UserContext(), services.AwardRequest{
		UserID:        user.ID,
		UniversityID:  user.UniversityID,
		Action:        model.PointActionFeedbackSubmitted,
		ReferenceType: "curriculum_feedback",
		ReferenceID:   entry.ID,
	})

	return response.Created(c, entry)
}

// UpdateFeedback handles PUT /api/curriculum-feedback/:id
// Authorization: the author
func (h *FeedbackHandler) UpdateFeedback(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	entry, ok, err := h.load(c)
	if !ok {
		return err
	}
	if entry.UserID != user.ID {
		return response.Forbidden(c, "You can only edit your own feedback")
	}

	var req UpdateFeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	updates := map[string]interface{}{}
	if req.CourseName != nil {
		name := validation.SanitizeString(*req.CourseName)
		if name == "" {
			return response.BadRequest(c, "course_name cannot be empty")
		}
		updates["course_name"] = name
	}
	if req.GraduationYear != nil {
		updates["graduation_year"] = *req.GraduationYear
	}
	if req.Rating != nil {
		updates["rating"] = *req.Rating
	}
	if req.RelevanceRating != nil {
		updates["relevance_rating"] = *req.RelevanceRating
	}
	if req.Comments != nil {
		updates["comments"] = strings.TrimSpace(*req.Comments)
	}
	if req.Suggestions != nil {
		updates["suggestions"] = strings.TrimSpace(*req.Suggestions)
	}
	if req.IsAnonymous != nil {
		updates["is_anonymous"] = *req.IsAnonymous
	}

	if len(updates) > 0 {
		if err := h.db.WithContext(c.UserContext()).Model(entry).Updates(updates).Error; err != nil {
			log.Printf("[FEEDBACK] update %d: %v", entry.ID, err)
			return response.InternalServerError(c, "Failed to update feedback")
		}
		if err := h.db.WithContext(c.UserContext()).First(entry, entry.ID).Error; err != nil {
			return response.InternalServerError(c, "Failed to fetch updated feedback")
		}
	}
	return response.Success(c, entry)
}

// DeleteFeedback handles DELETE /api/curriculum-feedback/:id
// Authorization: the author or admin
func (h *FeedbackHandler) DeleteFeedback(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	entry, ok, err := h.load(c)
	if !ok {
		return err
	}
	if entry.UserID != user.ID && !user.IsAdmin() {
		return response.Forbidden(c, "You can only delete your own feedback")
	}

	if err := h.db.WithContext(c.UserContext()).Delete(entry).Error; err != nil {
		log.Printf("[FEEDBACK] delete %d: %v", entry.ID, err)
		return response.InternalServerError(c, "Failed to delete feedback")
	}
	return response.SuccessWithMessage(c, "Feedback deleted successfully", entry)
}

// Summary handles GET /api/curriculum-feedback/summary?university_id=
func (h *FeedbackHandler) Summary(c *fiber.Ctx) error {
	universityID, err := query.Uint(c, "university_id")
	if err != nil {
		return query.Reject(c, err)
	}
	if universityID == nil {
		return response.BadRequest(c, "university_id is required")
	}

	var courses []CourseSummary
	err = h.db.WithContext(c.UserContext()).Model(&model.CurriculumFeedback{}).
		Select("course_name, COUNT(*) AS count, COALESCE(AVG(rating), 0) AS average_rating, "+
			"COALESCE(AVG(NULLIF(relevance_rating, 0)), 0) AS average_relevance").
		Where("university_id = ?", *universityID).
		Group("course_name").
		Order("count DESC, course_name ASC").
		Scan(&courses).Error
	if err != nil {
		log.Printf("[FEEDBACK] summary for %d: %v", *universityID, err)
		return response.InternalServerError(c, "Failed to summarize feedback")
	}

	var total int64
	var weighted float64
	for i := range courses {
		courses[i].AverageRating = round2(courses[i].AverageRating)
		courses[i].AverageRelevance = round2(courses[i].AverageRelevance)
		total += courses[i].Count
		weighted += courses[i].AverageRating * float64(courses[i].Count)
	}
	overall := 0.0
	if total > 0 {
		overall = round2(weighted / float64(total))
	}

	return response.Success(c, fiber.Map{
		"university_id":  *universityID,
		"total":          total,
		"average_rating": overall,
		"courses":        courses,
	})
}

func (h *FeedbackHandler) load(c *fiber.Ctx) (*model.CurriculumFeedback, bool, error) {
	id, err := query.PathID(c, "id")
	if err != nil {
		return nil, false, response.InvalidID(c)
	}
	var entry model.CurriculumFeedback
	if err := h.db.WithContext(c.UserContext()).First(&entry, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, response.NotFound(c, "Feedback not found")
		}
		return nil, false, response.InternalServerError(c, "Failed to fetch feedback")
	}
	return &entry, true, nil
}

// redact hides the author of anonymous feedback from everyone but the
// author and platform admins
func redact(entry *model.CurriculumFeedback, viewer *model.User) {
	if !entry.IsAnonymous {
		return
	}
	if viewer != nil && (viewer.ID == entry.UserID || viewer.IsAdmin()) {
		return
	}
	entry.UserID = 0
	entry.User = nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
