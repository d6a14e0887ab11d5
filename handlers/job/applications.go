package job

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
	"created_at": "job_applications.created_at",
	"updated_at": "job_applications.updated_at",
	"status":     "job_applications.status",
}

var (
	errJobClosed      = errors.New("job is not accepting applications")
	errAlreadyApplied = errors.New("already applied")
)

// CreateApplicationRequest represents an application to a job
type CreateApplicationRequest struct {
	JobID       uint   `json:"job_id" validate:"required"`
	CoverLetter string `json:"cover_letter" validate:"max=10000"`
	ResumeURL   string `json:"resume_url" validate:"omitempty,url,max=512"`
}

// UpdateApplicationRequest is used by both sides: the poster moves the status
// along, the applicant edits their submission or withdraws.
type UpdateApplicationRequest struct {
	Status      *string `json:"status" validate:"omitempty,oneof=submitted reviewing shortlisted rejected hired withdrawn"`
	Notes       *string `json:"notes" validate:"omitempty,max=5000"`
	CoverLetter *string `json:"cover_letter" validate:"omitempty,max=10000"`
	ResumeURL   *string `json:"resume_url" validate:"omitempty,url,max=512"`
}

// ListApplications handles GET /api/job-applications. Applicants see their
// own applications and posters see the applications to their jobs.
func (h *JobHandler) ListApplications(c *fiber.Ctx) error {
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

	jobID, err := query.Uint(c, "job_id")
	if err != nil {
		return query.Reject(c, err)
	}
	status, err := query.OneOf(c, "status",
		model.ApplicationStatusSubmitted, model.ApplicationStatusReviewing, model.ApplicationStatusShortlisted,
		model.ApplicationStatusRejected, model.ApplicationStatusHired, model.ApplicationStatusWithdrawn)
	if err != nil {
		return query.Reject(c, err)
	}

	db := h.db.WithContext(c.UserContext()).Model(&model.JobApplication{})
	if !user.IsAdmin() {
		posted := h.db.Model(&model.JobPosting{}).Select("id").Where("posted_by = ?", user.ID)
		db = db.Where("job_applications.applicant_id = ? OR job_applications.job_id IN (?)", user.ID, posted)
	}
	if jobID != nil {
		db = db.Where("job_applications.job_id = ?", *jobID)
	}
	if status != "" {
		db = db.Where("job_applications.status = ?", status)
	}
	if params.Search != "" {
		db = db.Joins("JOIN users ON users.id = job_applications.applicant_id")
		db = query.Search(db, params.Search, "users.name", "job_applications.cover_letter")
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count applications")
	}

	var applications []model.JobApplication
	if err := params.Page(db, applicationSortable).Preload("Job").Preload("Applicant").Find(&applications).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch applications")
	}

	return response.Paginated(c, applications, response.CalculatePagination(params.Offset, params.Limit, total))
}

// GetApplication handles GET /api/job-applications/:id
func (h *JobHandler) GetApplication(c *fiber.Ctx) error {
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}
	return h.respondWithApplication(c, id)
}

func (h *JobHandler) respondWithApplication(c *fiber.Ctx, id uint) error {
	application, ok, err := h.loadApplication(c, id)
	if !ok {
		return err
	}
	return response.Success(c, application)
}

// CreateApplication handles POST /api/job-applications
func (h *JobHandler) CreateApplication(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateApplicationRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.CoverLetter = strings.TrimSpace(req.CoverLetter)
	req.ResumeURL = validation.SanitizeString(req.ResumeURL)
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	var job model.JobPosting
	if err := h.db.WithContext(c.UserContext()).First(&job, req.JobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.InternalServerError(c, "Failed to fetch job")
	}
	if job.PostedBy == user.ID {
		return response.Error(c, fiber.StatusBadRequest, "You cannot apply to your own job", "OWN_JOB")
	}

	application := model.JobApplication{
		JobID:       job.ID,
		ApplicantID: user.ID,
		CoverLetter: req.CoverLetter,
		ResumeURL:   req.ResumeURL,
		Status:      model.ApplicationStatusSubmitted,
	}

	err := h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&model.JobApplication{}).
			Where("job_id = ? AND applicant_id = ?", job.ID, user.ID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return errAlreadyApplied
		}

		// the posting may have closed since it was read
		res := tx.Model(&model.JobPosting{}).
			Where("id = ? AND status = ? AND (deadline IS NULL OR deadline > ?)", job.ID, model.JobStatusOpen, time.Now()).
			Update("application_count", gorm.Expr("application_count + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errJobClosed
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
		return response.ConflictWithCode(c, "ALREADY_APPLIED", "You have already applied to this job")
	case errors.Is(err, errJobClosed):
		return response.Error(c, fiber.StatusBadRequest, "This job is not accepting applications", "JOB_CLOSED")
	case err != nil:
		log.Printf("[JOB] apply to %d by %d: %v", job.ID, user.ID, err)
		return response.InternalServerError(c, "Failed to submit application")
	}

	h.notifications.Notify(c.UserContext(), services.CreateNotificationRequest{
		UserID:   job.PostedBy,
		Category: model.NotificationCategoryJob,
		Title:    "New application",
		Message:  fmt.Sprintf("%s applied to %s", user.Name, job.Title),
		Link:     fmt.Sprintf("/jobs/%d/applications", job.ID),
		Metadata: map[string]interface{}{"job_id": job.ID, "application_id": application.ID},
	})
	h.gamification.AwardQuietly(c.UserContext(), services.AwardRequest{
		UserID:        user.ID,
		UniversityID:  user.UniversityID,
		Action:        model.PointActionJobApplication,
		ReferenceType: "job_application",
		ReferenceID:   application.ID,
	})

	return response.Created(c, application)
}

// UpdateApplication handles PUT /api/job-applications/:id
// Authorization: the job's poster changes status and notes; the applicant
// edits a submitted application or withdraws it
func (h *JobHandler) UpdateApplication(c *fiber.Ctx) error {
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

	if application.Status == model.ApplicationStatusWithdrawn {
		return response.ConflictWithCode(c, "APPLICATION_WITHDRAWN", "This application has been withdrawn")
	}

	isReviewer := application.Job.PostedBy == user.ID || user.IsAdmin()
	isApplicant := application.ApplicantID == user.ID

	updates := map[string]interface{}{}
	if req.Status != nil {
		switch {
		case *req.Status == model.ApplicationStatusWithdrawn && isApplicant:
		case *req.Status != model.ApplicationStatusWithdrawn && isReviewer:
		default:
			return response.Forbidden(c, "You cannot set this status")
		}
		updates["status"] = *req.Status
	}
	if req.Notes != nil {
		if !isReviewer {
			return response.Forbidden(c, "Only the poster can add notes")
		}
		updates["notes"] = strings.TrimSpace(*req.Notes)
	}
	if req.CoverLetter != nil || req.ResumeURL != nil {
		if !isApplicant {
			return response.Forbidden(c, "Only the applicant can edit the application")
		}
		if application.Status != model.ApplicationStatusSubmitted {
			return response.ConflictWithCode(c, "APPLICATION_IN_REVIEW", "The application can no longer be edited")
		}
		if req.CoverLetter != nil {
			updates["cover_letter"] = strings.TrimSpace(*req.CoverLetter)
		}
		if req.ResumeURL != nil {
			updates["resume_url"] = validation.SanitizeString(*req.ResumeURL)
		}
	}

	if len(updates) == 0 {
		return response.Success(c, application)
	}

	if err := h.db.WithContext(c.UserContext()).Model(application).Updates(updates).Error; err != nil {
		log.Printf("[JOB] update application %d: %v", application.ID, err)
		return response.InternalServerError(c, "Failed to update application")
	}

	if status, changed := updates["status"]; changed && isReviewer && !isApplicant {
		h.notifications.Notify(c.UserContext(), services.CreateNotificationRequest{
			UserID:   application.ApplicantID,
			Category: model.NotificationCategoryJob,
			Title:    "Application update",
			Message:  fmt.Sprintf("Your application to %s is now %s", application.Job.Title, status),
			Link:     fmt.Sprintf("/job-applications/%d", application.ID),
		})
	}

	if err := h.db.WithContext(c.UserContext()).Preload("Job").Preload("Applicant").First(application, application.ID).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch updated application")
	}
	return response.Success(c, application)
}

// DeleteApplication handles DELETE /api/job-applications/:id
// Authorization: the applicant or admin
func (h *JobHandler) DeleteApplication(c *fiber.Ctx) error {
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
		return tx.Model(&model.JobPosting{}).
			Where("id = ? AND application_count > 0", application.JobID).
			Update("application_count", gorm.Expr("application_count - ?", 1)).Error
	})
	if err != nil {
		log.Printf("[JOB] delete application %d: %v", application.ID, err)
		return response.InternalServerError(c, "Failed to delete application")
	}

	return response.SuccessWithMessage(c, "Application deleted successfully", application)
}

// loadApplication fetches an application visible to the caller: its
// applicant, the job's poster or an admin. Others get 404.
func (h *JobHandler) loadApplication(c *fiber.Ctx, id uint) (*model.JobApplication, bool, error) {
	user, ok := middleware.GetUser(c)
	if !ok {
		return nil, false, response.Unauthorized(c, "User not authenticated")
	}

	var application model.JobApplication
	if err := h.db.WithContext(c.UserContext()).Preload("Job").Preload("Applicant").First(&application, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, response.NotFound(c, "Application not found")
		}
		return nil, false, response.InternalServerError(c, "Failed to fetch application")
	}
	if application.ApplicantID != user.ID && application.Job.PostedBy != user.ID && !user.IsAdmin() {
		return nil, false, response.NotFound(c, "Application not found")
	}
	return &application, true, nil
}
