package newsletter

import (
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
	"gorm.io/gorm"
)

// NewsletterHandler handles newsletters and subscriptions
type NewsletterHandler struct {
	db          *gorm.DB
	newsletters *services.NewsletterService
	validator   *validation.Validator
}

// NewNewsletterHandler creates a new newsletter handler
func NewNewsletterHandler(db *gorm.DB, newsletters *services.NewsletterService) *NewsletterHandler {
	return &NewsletterHandler{
		db:          db,
		newsletters: newsletters,
		validator:   validation.NewValidator(),
	}
}

var sortable = query.Sortable{
	"created_at":   "created_at",
	"scheduled_at": "scheduled_at",
	"sent_at":      "sent_at",
	"title":        "title",
}

// CreateNewsletterRequest represents the request body for a new newsletter
type CreateNewsletterRequest struct {
	UniversityID *uint      `json:"university_id"`
	Title        string     `json:"title" validate:"required,max=255"`
	Subject      string     `json:"subject" validate:"max=255"`
	Content      string     `json:"content" validate:"required,max=200000"`
	ScheduledAt  *time.Time `json:"scheduled_at"`
}

// UpdateNewsletterRequest represents a partial newsletter update
type UpdateNewsletterRequest struct {
	Title       *string    `json:"title" validate:"omitempty,max=255"`
	Subject     *string    `json:"subject" validate:"omitempty,max=255"`
	Content     *string    `json:"content" validate:"omitempty,max=200000"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	// Unschedule moves a scheduled newsletter back to draft
	Unschedule bool `json:"unschedule"`
}

// GenerateRequest asks for a digest of recent university activity
type GenerateRequest struct {
	UniversityID *uint  `json:"university_id"`
	PeriodDays   int    `json:"period_days" validate:"omitempty,min=1,max=365"`
	Title        string `json:"title" validate:"max=255"`
	Save         bool   `json:"save"`
}

// SendRequest optionally defers delivery to the scheduled dispatcher
type SendRequest struct {
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// SubscribeRequest opts an address in to a university's newsletter
type SubscribeRequest struct {
	UniversityID uint   `json:"university_id" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email"`
}

// UnsubscribeRequest identifies a subscription by its token, or by
// university for a signed-in subscriber
type UnsubscribeRequest struct {
	Token        string `json:"token"`
	UniversityID uint   `json:"university_id"`
}

// ListNewsletters handles GET /api/newsletters
// Authorization: university_admin (own university) or admin
func (h *NewsletterHandler) ListNewsletters(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

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
	status, err := query.OneOf(c, "status",
		model.NewsletterStatusDraft, model.NewsletterStatusScheduled, model.NewsletterStatusSending, model.NewsletterStatusSent)
	if err != nil {
		return query.Reject(c, err)
	}

	db := h.db.WithContext(c.UserContext()).Model(&model.Newsletter{})
	if !user.IsAdmin() {
		if user.UniversityID == nil {
			return response.Forbidden(c, "Insufficient permissions")
		}
		db = db.Where("university_id = ?", *user.UniversityID)
	}
	if universityID != nil {
		db = db.Where("university_id = ?", *universityID)
	}
	if status != "" {
		db = db.Where("status = ?", status)
	}
	db = query.Search(db, params.Search, "title", "subject")

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count newsletters")
	}

	var newsletters []model.Newsletter
	if err := params.Page(db, sortable).Find(&newsletters).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch newsletters")
	}

	return response.Paginated(c, newsletters, response.CalculatePagination(params.Offset, params.Limit, total))
}

// GetNewsletter handles GET /api/newsletters/:id
func (h *NewsletterHandler) GetNewsletter(c *fiber.Ctx) error {
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}
	return h.respondWith(c, id)
}

func (h *NewsletterHandler) respondWith(c *fiber.Ctx, id uint) error {
	newsletter, ok, err := h.loadManaged(c, id)
	if !ok {
		return err
	}
	return response.Success(c, newsletter)
}

// CreateNewsletter handles POST /api/newsletters
func (h *NewsletterHandler) CreateNewsletter(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateNewsletterRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Title = validation.SanitizeString(req.Title)
	req.Subject = validation.SanitizeString(req.Subject)
	req.Content = strings.TrimSpace(req.Content)
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	universityID, ok, err := h.resolveUniversity(c, user, req.UniversityID)
	if !ok {
		return err
	}

	newsletter := model.Newsletter{
		UniversityID: universityID,
		AuthorID:     user.ID,
		Title:        req.Title,
		Subject:      req.Subject,
		Content:      req.Content,
		PlainText:    services.HTMLToText(req.Content),
		Status:       model.NewsletterStatusDraft,
	}
	if newsletter.Subject == "" {
		newsletter.Subject = newsletter.Title
	}
	if req.ScheduledAt != nil {
		if !req.ScheduledAt.After(time.Now()) {
			return response.Error(c, fiber.StatusBadRequest, "scheduled_at must be in the future", "INVALID_SCHEDULE")
		}
		newsletter.ScheduledAt = req.ScheduledAt
		newsletter.Status = model.NewsletterStatusScheduled
	}

	if err := h.db.WithContext(c.UserContext()).Create(&newsletter).Error; err != nil {
		log.Printf("[NEWSLETTER] create: %v", err)
		return response.InternalServerError(c, "Failed to create newsletter")
	}
	return response.Created(c, newsletter)
}

// UpdateNewsletter handles PUT /api/newsletters/:id. Sent newsletters are read-only.
func (h *NewsletterHandler) UpdateNewsletter(c *fiber.Ctx) error {
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}
	newsletter, ok, err := h.loadManaged(c, id)
	if !ok {
		return err
	}
	if !editable(newsletter) {
		return response.ConflictWithCode(c, "NEWSLETTER_SENT", "This newsletter has already been sent")
	}

	var req UpdateNewsletterRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = validation.SanitizeString(*req.Title)
	}
	if req.Subject != nil {
		updates["subject"] = validation.SanitizeString(*req.Subject)
	}
	if req.Content != nil {
		content := strings.TrimSpace(*req.Content)
		updates["content"] = content
		updates["plain_text"] = services.HTMLToText(content)
	}
	switch {
	case req.Unschedule:
		updates["scheduled_at"] = nil
		updates["status"] = model.NewsletterStatusDraft
	case req.ScheduledAt != nil:
		if !req.ScheduledAt.After(time.Now()) {
			return response.Error(c, fiber.StatusBadRequest, "scheduled_at must be in the future", "INVALID_SCHEDULE")
		}
		updates["scheduled_at"] = *req.ScheduledAt
		updates["status"] = model.NewsletterStatusScheduled
	}

	if len(updates) > 0 {
		// the status guard keeps a concurrent send from being overwritten
		res := h.db.WithContext(c.UserContext()).Model(&model.Newsletter{}).
			Where("id = ? AND status IN ?", newsletter.ID, []string{model.NewsletterStatusDraft, model.NewsletterStatusScheduled}).
			Updates(updates)
		if res.Error != nil {
			log.Printf("[NEWSLETTER] update %d: %v", newsletter.ID, res.Error)
			return response.InternalServerError(c, "Failed to update newsletter")
		}
		if res.RowsAffected == 0 {
			return response.ConflictWithCode(c, "NEWSLETTER_SENT", "This newsletter has already been sent")
		}
		if err := h.db.WithContext(c.UserContext()).First(newsletter, newsletter.ID).Error; err != nil {
			return response.InternalServerError(c, "Failed to fetch updated newsletter")
		}
	}
	return response.Success(c, newsletter)
}

// DeleteNewsletter handles DELETE /api/newsletters/:id
func (h *NewsletterHandler) DeleteNewsletter(c *fiber.Ctx) error {
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}
	newsletter, ok, err := h.loadManaged(c, id)
	if !ok {
		return err
	}
	if newsletter.Status == model.NewsletterStatusSending {
		return response.ConflictWithCode(c, "NEWSLETTER_SENDING", "This newsletter is being sent")
	}

	if err := h.db.WithContext(c.UserContext()).Delete(newsletter).Error; err != nil {
		log.Printf("[NEWSLETTER] delete %d: %v", newsletter.ID, err)
		return response.InternalServerError(c, "Failed to delete newsletter")
	}
	return response.SuccessWithMessage(c, "Newsletter deleted successfully", newsletter)
}

// Generate handles POST /api/newsletters/generate. The digest is returned as a
// preview unless save is set, in which case it is stored as a draft.
func (h *NewsletterHandler) Generate(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Title = validation.SanitizeString(req.Title)
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	universityID, ok, err := h.resolveUniversity(c, user, req.UniversityID)
	if !ok {
		return err
	}

	newsletter, digest, err := h.newsletters.Generate(c.UserContext(), universityID, user.ID, req.PeriodDays, req.Title)
	if err != nil {
		log.Printf("[NEWSLETTER] generate for %d: %v", universityID, err)
		return response.InternalServerError(c, "Failed to generate newsletter")
	}

	result := fiber.Map{
		"newsletter": newsletter,
		"summary": fiber.Map{
			"from":         digest.From,
			"to":           digest.To,
			"jobs":         len(digest.Jobs),
			"events":       len(digest.Events),
			"scholarships": len(digest.Scholarships),
			"new_members":  digest.NewMembers,
			"empty":        digest.IsEmpty(),
		},
	}

	if !req.Save {
		return response.Success(c, result)
	}
	if err := h.db.WithContext(c.UserContext()).Create(newsletter).Error; err != nil {
		log.Printf("[NEWSLETTER] save generated: %v", err)
		return response.InternalServerError(c, "Failed to save newsletter")
	}
	return response.Created(c, result)
}

// Send handles POST /api/newsletters/:id/send. With a future scheduled_at the
// newsletter is queued for the dispatcher instead of sent now.
func (h *NewsletterHandler) Send(c *fiber.Ctx) error {
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}
	newsletter, ok, err := h.loadManaged(c, id)
	if !ok {
		return err
	}
	if !editable(newsletter) {
		return response.ConflictWithCode(c, "NEWSLETTER_SENT", "This newsletter has already been sent")
	}

	var req SendRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.BadRequest(c, "Invalid request body")
		}
	}

	if req.ScheduledAt != nil && req.ScheduledAt.After(time.Now()) {
		if err := h.db.WithContext(c.UserContext()).Model(newsletter).Updates(map[string]interface{}{
			"status":       model.NewsletterStatusScheduled,
			"scheduled_at": *req.ScheduledAt,
		}).Error; err != nil {
			return response.InternalServerError(c, "Failed to schedule newsletter")
		}
		newsletter.Status = model.NewsletterStatusScheduled
		newsletter.ScheduledAt = req.ScheduledAt
		return response.Accepted(c, "Newsletter scheduled", newsletter)
	}

	sent, err := h.newsletters.Send(c.UserContext(), newsletter.ID)
	switch {
	case errors.Is(err, services.ErrMailerUnavailable):
		return response.ServiceUnavailable(c, "Email delivery is not configured")
	case errors.Is(err, services.ErrNewsletterAlreadySent):
		return response.ConflictWithCode(c, "NEWSLETTER_SENT", "This newsletter has already been sent")
	case errors.Is(err, services.ErrNewsletterNotFound):
		return response.NotFound(c, "Newsletter not found")
	case err != nil:
		log.Printf("[NEWSLETTER] send %d: %v", newsletter.ID, err)
		return response.InternalServerError(c, "Failed to send newsletter")
	}
	return response.SuccessWithMessage(c, "Newsletter sent", sent)
}

// Subscribe handles POST /api/newsletters/subscribe. Signed-in users may omit
// the email to subscribe their account address.
func (h *NewsletterHandler) Subscribe(c *fiber.Ctx) error {
	var req SubscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Email = validation.NormalizeEmail(req.Email)
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	var userID *uint
	if user, ok := middleware.GetUser(c); ok {
		if req.Email == "" || req.Email == user.Email {
			req.Email = user.Email
			userID = &user.ID
		}
	}
	if req.Email == "" {
		return response.BadRequest(c, "email is required")
	}

	var count int64
	if err := h.db.WithContext(c.UserContext()).Model(&model.University{}).
		Where("id = ? AND is_active = ?", req.UniversityID, true).Count(&count).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch university")
	}
	if count == 0 {
		return response.Error(c, fiber.StatusBadRequest, "University not found", "UNIVERSITY_NOT_FOUND")
	}

	sub, err := h.newsletters.Subscribe(c.UserContext(), req.UniversityID, req.Email, userID)
	if err != nil {
		log.Printf("[NEWSLETTER] subscribe: %v", err)
		return response.InternalServerError(c, "Failed to subscribe")
	}
	return response.SuccessWithMessage(c, "Subscribed to newsletter", sub)
}

// Unsubscribe handles POST /api/newsletters/unsubscribe
func (h *NewsletterHandler) Unsubscribe(c *fiber.Ctx) error {
	var req UnsubscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if req.Token == "" {
		req.Token = c.Query("token")
	}

	where := &model.NewsletterSubscription{UnsubscribeToken: strings.TrimSpace(req.Token)}
	if where.UnsubscribeToken == "" {
		user, ok := middleware.GetUser(c)
		if !ok || req.UniversityID == 0 {
			return response.BadRequest(c, "token, or university_id when signed in, is required")
		}
		where.UniversityID = req.UniversityID
		where.Email = user.Email
	}

	sub, err := h.newsletters.Unsubscribe(c.UserContext(), where)
	if err != nil {
		if errors.Is(err, services.ErrSubscriptionNotFound) {
			return response.NotFound(c, "Subscription not found")
		}
		log.Printf("[NEWSLETTER] unsubscribe: %v", err)
		return response.InternalServerError(c, "Failed to unsubscribe")
	}
	return response.SuccessWithMessage(c, "Unsubscribed from newsletter", sub)
}

// loadManaged fetches a newsletter for its university's admin or an admin.
// Others get 404.
func (h *NewsletterHandler) loadManaged(c *fiber.Ctx, id uint) (*model.Newsletter, bool, error) {
	user, ok := middleware.GetUser(c)
	if !ok {
		return nil, false, response.Unauthorized(c, "User not authenticated")
	}

	var newsletter model.Newsletter
	if err := h.db.WithContext(c.UserContext()).First(&newsletter, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, response.NotFound(c, "Newsletter not found")
		}
		return nil, false, response.InternalServerError(c, "Failed to fetch newsletter")
	}
	if !user.ManagesUniversity(newsletter.UniversityID) {
		return nil, false, response.NotFound(c, "Newsletter not found")
	}
	return &newsletter, true, nil
}

func (h *NewsletterHandler) resolveUniversity(c *fiber.Ctx, user *model.User, requested *uint) (uint, bool, error) {
	var id uint
	switch {
	case requested != nil:
		id = *requested
	case user.UniversityID != nil:
		id = *user.UniversityID
	default:
		return 0, false, response.Error(c, fiber.StatusBadRequest, "university_id is required", "UNIVERSITY_REQUIRED")
	}
	if !user.ManagesUniversity(id) {
		return 0, false, response.Forbidden(c, "You do not manage this university")
	}

	var count int64
	if err := h.db.WithContext(c.UserContext()).Model(&model.University{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return 0, false, response.InternalServerError(c, "Failed to fetch university")
	}
	if count == 0 {
		return 0, false, response.Error(c, fiber.StatusBadRequest, "University not found", "UNIVERSITY_NOT_FOUND")
	}
	return id, true, nil
}

func editable(n *model.Newsletter) bool {
	return n.Status == model.NewsletterStatusDraft || n.Status == model.NewsletterStatusScheduled
}
