package scholarship

import (
	"errors"
	"fmt"
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
	"gorm.io/gorm"
)

var applicationSortable = query.Sortable{
	"created_at": "scholarship_applications.created_at",
	"updated_at": "scholarship_applications.updated_at",
	"status":     "scholarship_applications.status",
}

var (
	errScholarshipClosed = errors.New("scholarship is not accepting applications")
	errAlreadyApplied    = errors.New("already applied")
)

// CreateApplicationRequest represents an application to a scholarship
type CreateApplicationRequest struct {
	ScholarshipID uint   `json:"scholarship_id" validate:"required"`
	Essay         string `json:"essay" validate:"required,max=20000"`
	DocumentURL   string `json:"document_url" validate:"omitempty,url,max=512"`
}

// UpdateApplicationRequest moves an application along (reviewers) or edits
// and withdraws it (the applicant)
type UpdateApplicationRequest struct {
	Status        *string `json:"status" validate:"omitempty,oneof=submitted under_review awarded rejected withdrawn"`
	ReviewerNotes *string `json:"reviewer_notes" validate:"omitempty,max=5000"`
	Essay         *string `json:"essay" validate:"omitempty,max=20000"`
	DocumentURL   *string `json:"document_url" validate:"omitempty,url,max=512"`
}

// ListApplications handles GET /api/scholarship-applications
func (h *ScholarshipHandler) ListApplications(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	params, err := query.ParseList(c, applicationSortable, "created_at")
	if err != nil {
		return query.Reject(c, err)
	}
	if params.ID != nil {
		return h.respondWithApplication(c, *params.ID)
	}

	scholarshipID, err := query.Uint(c, "scholarship_id")
	if err != nil {
		return query.Reject(c, err)
	}
	status, err := query.OneOf(c, "status",
		model.ScholarshipApplicationSubmitted, model.ScholarshipApplicationUnderReview, model.ScholarshipApplicationAwarded,
		model.ScholarshipApplicationRejected, model.ScholarshipApplicationWithdrawn)
	if err != nil {
		return query.Reject(c, err)
	}

	db := h.db.WithContext(c.UserContext()).Model(&model.ScholarshipApplication{})
	if !user.IsAdmin() {
		reviewable := h.db.Model(&model.Scholarship{}).Select("id").Where("created_by = ?", user.ID)
		if user.Role == model.RoleUniversityAdmin && user.UniversityID != nil {
			reviewable = reviewable.Or("university_id = ?", *user.UniversityID)
		}
		db = db.Where("scholarship_applications.applicant_id = ? OR scholarship_applications.scholarship_id IN (?)", user.ID, reviewable)
	}
	if scholarshipID != nil {
		db = db.Where("scholarship_applications.scholarship_id = ?", *scholarshipID)
	}
	if status != "" {
		db = db.Where("scholarship_applications.status = ?", status)
	}
	if params.Search != "" {
		db = db.Joins("JOIN users ON users.id = scholarship_applications.applicant_id")
		db = query.Search(db, params.Search, "users.name", "scholarship_applications.essay")
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count applications")
	}

	var applications []model.ScholarshipApplication
	if err := params.Page(db, applicationSortable).Preload("Scholarship").Preload("Applicant").Find(&applications).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch applications")
	}

	return response.Paginated(c, applications, response.CalculatePagination(params.Offset, params.Limit, total))
}

// GetApplication handles GET /api/scholarship-applications/:id
func (h *ScholarshipHandler) GetApplication(c *fiber.Ctx) error {
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}
	return h.respondWithApplication(c, id)
}

func (h *ScholarshipHandler) respondWithApplication(c *fiber.Ctx, id uint) error {
	application, ok, err := h.loadApplication(c, id)
	if !ok {
		return err
	}
	return response.Success(c, application)
}

// CreateApplication handles POST /api/scholarship-applications
func (h *ScholarshipHandler) CreateApplication(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateApplicationRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Essay = strings.TrimSpace(req.Essay)
	req.DocumentURL = validation.SanitizeString(req.DocumentURL)
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	var scholarship model.Scholarship
	if err := h.db.WithContext(c.UserContext()).First(&scholarship, req.ScholarshipID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Scholarship not found")
		}
		return response.InternalServerError(c, "Failed to fetch scholarship")
	}
	if scholarship.CreatedBy == user.ID {
		return response.Error(c, fiber.StatusBadRequest, "You cannot apply to your own scholarship", "OWN_SCHOLARSHIP")
	}

	application := model.ScholarshipApplication{
		ScholarshipID: scholarship.ID,
		ApplicantID:   user.ID,
		Essay:         req.Essay,
		DocumentURL:   req.DocumentURL,
		Status:        model.ScholarshipApplicationSubmitted,
	}

	err := h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&model.ScholarshipApplication{}).
			Where("scholarship_id = ? AND applicant_id = ?", scholarship.ID, user.ID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return errAlreadyApplied
		}

		res := tx.Model(&model.Scholarship{}).
			Where("id = ? AND status = ? AND (deadline IS NULL OR deadline > ?)", scholarship.ID, model.ScholarshipStatusOpen, time.Now()).
			Update("application_count", gorm.Expr("application_count + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errScholarshipClosed
		}

		if err := tx.Create(&application).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errAlreadyApplied
			}
			return err
		}
		return nil
	})
	switch {
	case errors.Is(err, errAlreadyApplied):
		return response.ConflictWithCode(c, "ALREADY_APPLIED", "You have already applied to this scholarship")
	case errors.Is(err, errScholarshipClosed):
		return response.Error(c, fiber.StatusBadRequest, "This scholarship is not accepting applications", "SCHOLARSHIP_CLOSED")
	case err != nil:
		log.Printf("[SCHOLARSHIP] apply to %d by %d: %v", scholarship.ID, user.ID, err)
		return response.InternalServerError(c, "Failed to submit application")
	}

	h.notifications.Notify(c.UserContext(), services.CreateNotificationRequest{
		UserID:   scholarship.CreatedBy,
		Category: model.NotificationCategoryScholarship,
		Title:    "New scholarship application",
		Message:  fmt.Sprintf("%s applied to %s", user.Name, scholarship.Title),
		Link:     fmt.Sprintf("/scholarships/%d/applications", scholarship.ID),
		Metadata: map[string]interface{}{"scholarship_id": scholarship.ID, "application_id": application.ID},
	})

	return response.Created(c, application)
}

// UpdateApplication handles PUT /api/scholarship-applications/:id
// Authorization: reviewers (creator, the university's admin, admin) change
// status and notes; the applicant edits a submitted application or withdraws
func (h *ScholarshipHandler) UpdateApplication(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}
	application, ok, err := h.loadApplication(c, id)
	if !ok {
		return err
	}

	var req UpdateApplicationRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	if application.Status == model.ScholarshipApplicationWithdrawn {
		return response.ConflictWithCode(c, "APPLICATION_WITHDRAWN", "This application has been withdrawn")
	}

	isReviewer := canManage(user, &application.Scholarship)
	isApplicant := application.ApplicantID == user.ID

	updates := map[string]interface{}{}
	if req.Status != nil {
		switch {
		case *req.Status == model.ScholarshipApplicationWithdrawn && isApplicant:
		case *req.Status != model.ScholarshipApplicationWithdrawn && isReviewer:
		default:
			return response.Forbidden(c, "You cannot set this status")
		}
		updates["status"] = *req.Status
	}
	if req.ReviewerNotes != nil {
		if !isReviewer {
			return response.Forbidden(c, "Only reviewers can add notes")
		}
		updates["reviewer_notes"] = strings.TrimSpace(*req.ReviewerNotes)
	}
	if req.Essay != nil || req.DocumentURL != nil {
		if !isApplicant {
			return response.Forbidden(c, "Only the applicant can edit the application")
		}
		if application.Status != model.ScholarshipApplicationSubmitted {
			return response.ConflictWithCode(c, "APPLICATION_IN_REVIEW", "The application can no longer be edited")
		}
		if req.Essay != nil {
			updates["essay"] = strings.TrimSpace(*req.Essay)
		}
		if req.DocumentURL != nil {
			updates["document_url"] = validation.SanitizeString(*req.DocumentURL)
		}
	}

	if len(updates) == 0 {
		return response.Success(c, application)
	}

	if err := h.db.WithContext(c.UserContext()).Model(application).Updates(updates).Error; err != nil {
		log.Printf("[SCHOLARSHIP] update application %d: %v", application.ID, err)
		return response.InternalServerError(c, "Failed to update application")
	}

	if status, changed := updates["status"]; changed && isReviewer && !isApplicant {
		h.notifications.Notify(c.UserContext(), services.CreateNotificationRequest{
			UserID:   application.ApplicantID,
			Type:     statusNotificationType(status.(string)),
			Category: model.NotificationCategoryScholarship,
			Title:    "Scholarship application update",
			Message:  fmt.Sprintf("Your application to %s is now %s", application.Scholarship.Title, status),
			Link:     fmt.Sprintf("/scholarship-applications/%d", application.ID),
		})
	}

	if err := h.db.WithContext(c.UserContext()).Preload("Scholarship").Preload("Applicant").First(application, application.ID).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch updated application")
	}
	return response.Success(c, application)
}

// DeleteApplication handles DELETE /api/scholarship-applications/:id
// Authorization: the applicant or admin
func (h *ScholarshipHandler) DeleteApplication(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}
	application, ok, err := h.loadApplication(c, id)
	if !ok {
		return err
	}
	if application.ApplicantID != user.ID && !user.IsAdmin() {
		return response.Forbidden(c, "Only the applicant can delete this application")
	}

	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(application).Error; err != nil {
			return err
		}
		return tx.Model(&model.Scholarship{}).
			Where("id = ? AND application_count > 0", application.ScholarshipID).
			Update("application_count", gorm.Expr("application_count - ?", 1)).Error
	})
	if err != nil {
		log.Printf("[SCHOLARSHIP] delete application %d: %v", application.ID, err)
		return response.InternalServerError(c, "Failed to delete application")
	}

	return response.SuccessWithMessage(c, "Application deleted successfully", application)
}

func (h *ScholarshipHandler) loadApplication(c *fiber.Ctx, id uint) (*model.ScholarshipApplication, bool, error) {
	user, ok := middleware.GetUser(c)
	if !ok {
		return nil, false, response.Unauthorized(c, "User not authenticated")
	}

	var application model.ScholarshipApplication
	if err := h.db.WithContext(c.UserContext()).Preload("Scholarship").Preload("Applicant").First(&application, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, response.NotFound(c, "Application not found")
		}
		return nil, false, response.InternalServerError(c, "Failed to fetch application")
	}
	if application.ApplicantID != user.ID && !canManage(user, &application.Scholarship) {
		return nil, false, response.NotFound(c, "Application not found")
	}
	return &application, true, nil
}

func statusNotificationType(status string) model.NotificationType {
	switch status {
	case model.ScholarshipApplicationAwarded:
		return model.NotificationTypeSuccess
	case model.ScholarshipApplicationRejected:
		return model.NotificationTypeWarning
	}
	return model.NotificationTypeInfo
}
