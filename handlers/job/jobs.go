package job

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services"
	"github.com/NagallaThanvi/unilink/services/outbox"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/query"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/NagallaThanvi/unilink/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JobHandler handles job postings and applications
type JobHandler struct {
	db            *gorm.DB
	notifications *services.NotificationService
	gamification  *services.GamificationService
	validator     *validation.Validator
}

// NewJobHandler creates a new job handler
func NewJobHandler(db *gorm.DB, notifications *services.NotificationService, gamification *services.GamificationService) *JobHandler {
	return &JobHandler{
		db:            db,
		notifications: notifications,
		gamification:  gamification,
		validator:     validation.NewValidator(),
	}
}

var jobSortable = query.Sortable{
	"created_at":        "created_at",
	"updated_at":        "updated_at",
	"deadline":          "deadline",
	"title":             "title",
	"company":           "company",
	"salary_min":        "salary_min",
	"application_count": "application_count",
}

var jobTypes = []string{
	model.JobTypeFullTime, model.JobTypePartTime, model.JobTypeInternship,
	model.JobTypeContract, model.JobTypeRemote,
}

// CreateJobRequest represents the request body for posting a job
type CreateJobRequest struct {
	UniversityID *uint      `json:"university_id"`
	Title        string     `json:"title" validate:"required,min=3,max=255"`
	Company      string     `json:"company" validate:"required,max=150"`
	Location     string     `json:"location" validate:"max=255"`
	Type         string     `json:"type" validate:"required,oneof=full_time part_time internship contract remote"`
	Description  string     `json:"description" validate:"max=20000"`
	Requirements []string   `json:"requirements" validate:"max=50,dive,min=1,max=500"`
	Tags         []string   `json:"tags" validate:"max=20,dive,min=1,max=50"`
	SalaryMin    int        `json:"salary_min" validate:"min=0"`
	SalaryMax    int        `json:"salary_max" validate:"min=0"`
	ApplyURL     string     `json:"apply_url" validate:"omitempty,url,max=512"`
	Status       string     `json:"status" validate:"omitempty,oneof=open closed draft"`
	Deadline     *time.Time `json:"deadline"`
}

// UpdateJobRequest represents a partial job update
type UpdateJobRequest struct {
	Title        *string    `json:"title" validate:"omitempty,min=3,max=255"`
	Company      *string    `json:"company" validate:"omitempty,max=150"`
	Location     *string    `json:"location" validate:"omitempty,max=255"`
	Type         *string    `json:"type" validate:"omitempty,oneof=full_time part_time internship contract remote"`
	Description  *string    `json:"description" validate:"omitempty,max=20000"`
	Requirements *[]string  `json:"requirements" validate:"omitempty,max=50,dive,min=1,max=500"`
	Tags         *[]string  `json:"tags" validate:"omitempty,max=20,dive,min=1,max=50"`
	SalaryMin    *int       `json:"salary_min" validate:"omitempty,min=0"`
	SalaryMax    *int       `json:"salary_max" validate:"omitempty,min=0"`
	ApplyURL     *string    `json:"apply_url" validate:"omitempty,url,max=512"`
	Status       *string    `json:"status" validate:"omitempty,oneof=open closed draft"`
	Deadline     *time.Time `json:"deadline"`
}

// ListJobs handles GET /api/jobs
func (h *JobHandler) ListJobs(c *fiber.Ctx) error {
	params, err := query.ParseList(c, jobSortable, "created_at")
	if err != nil {
		return query.Reject(c, err)
	}
	if params.ID != nil {
		return h.respondWithJob(c, *params.ID)
	}

	universityID, err := query.Uint(c, "university_id")
	if err != nil {
		return query.Reject(c, err)
	}
	jobType, err := query.OneOf(c, "type", jobTypes...)
	if err != nil {
		return query.Reject(c, err)
	}
	status, err := query.OneOf(c, "status", model.JobStatusOpen, model.JobStatusClosed, model.JobStatusDraft)
	if err != nil {
		return query.Reject(c, err)
	}
	salaryMin, err := query.Int(c, "salary_min")
	if err != nil {
		return query.Reject(c, err)
	}
	salaryMax, err := query.Int(c, "salary_max")
	if err != nil {
		return query.Reject(c, err)
	}

	db := h.db.WithContext(c.UserContext()).Model(&model.JobPosting{})
	if universityID != nil {
		db = db.Where("university_id = ?", *universityID)
	}
	if jobType != "" {
		db = db.Where("type = ?", jobType)
	}
	if status != "" {
		db = db.Where("status = ?", status)
	} else {
		// drafts are only listed for their poster
		userID, _ := middleware.GetUserID(c)
		db = db.Where("status <> ? OR posted_by = ?", model.JobStatusDraft, userID)
	}
	if company := strings.TrimSpace(c.Query("company")); company != "" {
		db = db.Where("LOWER(company) LIKE ?", "%"+strings.ToLower(company)+"%")
	}
	if location := strings.TrimSpace(c.Query("location")); location != "" {
		db = db.Where("LOWER(location) LIKE ?", "%"+strings.ToLower(location)+"%")
	}
	if tag := strings.TrimSpace(c.Query("tag")); tag != "" {
		db = db.Where("LOWER(CAST(tags AS TEXT)) LIKE ?", `%"`+strings.ToLower(tag)+`"%`)
	}
	// ranges overlap when the posting pays at least salary_min and starts at most salary_max
	if salaryMin != nil {
		db = db.Where("salary_max >= ? OR (salary_max = 0 AND salary_min >= ?)", *salaryMin, *salaryMin)
	}
	if salaryMax != nil {
		db = db.Where("salary_min <= ?", *salaryMax)
	}
	db = query.Search(db, params.Search, "title", "company", "description")

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count jobs")
	}

	var jobs []model.JobPosting
	if err := params.Page(db, jobSortable).Find(&jobs).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch jobs")
	}

	return response.Paginated(c, jobs, response.CalculatePagination(params.Offset, params.Limit, total))
}

// GetJob handles GET /api/jobs/:id
func (h *JobHandler) GetJob(c *fiber.Ctx) error {
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}
	return h.respondWithJob(c, id)
}

func (h *JobHandler) respondWithJob(c *fiber.Ctx, id uint) error {
	var job model.JobPosting
	if err := h.db.WithContext(c.UserContext()).Preload("University").Preload("Poster").First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.InternalServerError(c, "Failed to fetch job")
	}
	if job.Status == model.JobStatusDraft {
		user, ok := middleware.GetUser(c)
		if !ok || (user.ID != job.PostedBy && !user.IsAdmin()) {
			return response.NotFound(c, "Job not found")
		}
	}
	return response.Success(c, job)
}

// CreateJob handles POST /api/jobs
// Authorization: alumni, faculty, university_admin or admin
func (h *JobHandler) CreateJob(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Title = validation.SanitizeString(req.Title)
	req.Company = validation.SanitizeString(req.Company)
	req.Location = validation.SanitizeString(req.Location)
	req.Description = strings.TrimSpace(req.Description)
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}
	if req.SalaryMax != 0 && req.SalaryMax < req.SalaryMin {
		return response.Error(c, fiber.StatusBadRequest, "salary_max must not be below salary_min", "INVALID_SALARY_RANGE")
	}
	if req.Deadline != nil && !req.Deadline.After(time.Now()) {
		return response.Error(c, fiber.StatusBadRequest, "deadline must be in the future", "INVALID_DEADLINE")
	}

	universityID, ok, err := resolveUniversity(c, h.db, user, req.UniversityID)
	if !ok {
		return err
	}

	status := req.Status
	if status == "" {
		status = model.JobStatusOpen
	}

	job := model.JobPosting{
		UniversityID: universityID,
		PostedBy:     user.ID,
		Title:        req.Title,
		Company:      req.Company,
		Location:     req.Location,
		Type:         req.Type,
		Description:  req.Description,
		Requirements: cleanList(req.Requirements),
		Tags:         cleanTags(req.Tags),
		SalaryMin:    req.SalaryMin,
		SalaryMax:    req.SalaryMax,
		ApplyURL:     req.ApplyURL,
		Status:       status,
		Deadline:     req.Deadline,
	}

	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&job).Error; err != nil {
			return err
		}
		return outbox.Add(tx, model.OutboxEntityJob, job.ID, model.OutboxOpUpsert, nil)
	})
	if err != nil {
		log.Printf("[JOB] create: %v", err)
		return response.InternalServerError(c, "Failed to create job")
	}

	return response.Created(c, job)
}

// UpdateJob handles PUT /api/jobs/:id
// Authorization: the poster or admin
func (h *JobHandler) UpdateJob(c *fiber.Ctx) error {
	job, ok, err := h.loadPosted(c)
	if !ok {
		return err
	}

	var req UpdateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	updates := map[string]interface{}{}
	setString := func(col string, v *string) {
		if v != nil {
			updates[col] = validation.SanitizeString(*v)
		}
	}
	setString("title", req.Title)
	setString("company", req.Company)
	setString("location", req.Location)
	setString("type", req.Type)
	setString("apply_url", req.ApplyURL)
	setString("status", req.Status)
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Requirements != nil {
		updates["requirements"] = cleanList(*req.Requirements)
	}
	if req.Tags != nil {
		updates["tags"] = cleanTags(*req.Tags)
	}

	salaryMin, salaryMax := job.SalaryMin, job.SalaryMax
	if req.SalaryMin != nil {
		salaryMin = *req.SalaryMin
		updates["salary_min"] = salaryMin
	}
	if req.SalaryMax != nil {
		salaryMax = *req.SalaryMax
		updates["salary_max"] = salaryMax
	}
	if salaryMax != 0 && salaryMax < salaryMin {
		return response.Error(c, fiber.StatusBadRequest, "salary_max must not be below salary_min", "INVALID_SALARY_RANGE")
	}
	if req.Deadline != nil {
		updates["deadline"] = *req.Deadline
	}

	if len(updates) == 0 {
		return response.Success(c, job)
	}

	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(job).Updates(updates).Error; err != nil {
			return err
		}
		return outbox.Add(tx, model.OutboxEntityJob, job.ID, model.OutboxOpUpsert, nil)
	})
	if err != nil {
		log.Printf("[JOB] update %d: %v", job.ID, err)
		return response.InternalServerError(c, "Failed to update job")
	}

	if err := h.db.WithContext(c.UserContext()).First(job, job.ID).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch updated job")
	}
	return response.Success(c, job)
}

// DeleteJob handles DELETE /api/jobs/:id
// Authorization: the poster or admin
func (h *JobHandler) DeleteJob(c *fiber.Ctx) error {
	job, ok, err := h.loadPosted(c)
	if !ok {
		return err
	}

	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(job).Error; err != nil {
			return err
		}
		return outbox.Add(tx, model.OutboxEntityJob, job.ID, model.OutboxOpDelete, nil)
	})
	if err != nil {
		log.Printf("[JOB] delete %d: %v", job.ID, err)
		return response.InternalServerError(c, "Failed to delete job")
	}

	return response.SuccessWithMessage(c, "Job deleted successfully", job)
}

// loadPosted fetches the job in the path for its poster or an admin. When ok
// is false the response has already been written and err must be returned.
func (h *JobHandler) loadPosted(c *fiber.Ctx) (*model.JobPosting, bool, error) {
	user, ok := middleware.GetUser(c)
	if !ok {
		return nil, false, response.Unauthorized(c, "User not authenticated")
	}
	id, err := query.PathID(c, "id")
	if err != nil {
		return nil, false, response.InvalidID(c)
	}

	var job model.JobPosting
	if err := h.db.WithContext(c.UserContext()).First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, response.NotFound(c, "Job not found")
		}
		return nil, false, response.InternalServerError(c, "Failed to fetch job")
	}
	if job.PostedBy != user.ID && !user.IsAdmin() {
		return nil, false, response.Forbidden(c, "Only the poster can modify this job")
	}
	return &job, true, nil
}

// resolveUniversity picks the tenant a posting belongs to. Non-admins may
// only post to their own university.
func resolveUniversity(c *fiber.Ctx, db *gorm.DB, user *model.User, requested *uint) (uint, bool, error) {
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
		return 0, false, response.Forbidden(c, "You can only post to your own university")
	}

	var count int64
	if err := db.WithContext(c.UserContext()).Model(&model.University{}).
		Where("id = ? AND is_active = ?", id, true).Count(&count).Error; err != nil {
		return 0, false, response.InternalServerError(c, "Failed to fetch university")
	}
	if count == 0 {
		return 0, false, response.Error(c, fiber.StatusBadRequest, "University not found", "UNIVERSITY_NOT_FOUND")
	}
	return id, true, nil
}

func cleanList(items []string) datatypes.JSONSlice[string] {
	out := make(datatypes.JSONSlice[string], 0, len(items))
	for _, item := range items {
		if item = validation.SanitizeString(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// cleanTags lowercases tags and drops duplicates
func cleanTags(tags []string) datatypes.JSONSlice[string] {
	seen := make(map[string]bool, len(tags))
	out := make(datatypes.JSONSlice[string], 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(validation.SanitizeString(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
