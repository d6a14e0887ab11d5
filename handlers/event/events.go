package event

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

// EventHandler handles events and registrations
type EventHandler struct {
	db            *gorm.DB
	notifications *services.NotificationService
	gamification  *services.GamificationService
	validator     *validation.Validator
}

// NewEventHandler creates a new event handler
func NewEventHandler(db *gorm.DB, notifications *services.NotificationService, gamification *services.GamificationService) *EventHandler {
	return &EventHandler{
		db:            db,
		notifications: notifications,
		gamification:  gamification,
		validator:     validation.NewValidator(),
	}
}

var sortable = query.Sortable{
	"starts_at":      "starts_at",
	"created_at":     "created_at",
	"title":          "title",
	"attendee_count": "attendee_count",
}

var eventTypes = []string{
	model.EventTypeReunion, model.EventTypeWebinar, model.EventTypeNetworking,
	model.EventTypeWorkshop, model.EventTypeCareerFair, model.EventTypeOther,
}

// CreateEventRequest represents the request body for a new event
type CreateEventRequest struct {
	UniversityID *uint     `json:"university_id"`
	Title        string    `json:"title" validate:"required,min=3,max=255"`
	Description  string    `json:"description" validate:"max=20000"`
	Type         string    `json:"type" validate:"required,oneof=reunion webinar networking workshop career_fair other"`
	Location     string    `json:"location" validate:"max=255"`
	IsVirtual    bool      `json:"is_virtual"`
	MeetingURL   string    `json:"meeting_url" validate:"omitempty,url,max=512"`
	StartsAt     time.Time `json:"starts_at" validate:"required"`
	EndsAt       time.Time `json:"ends_at" validate:"required"`
	Capacity     int       `json:"capacity" validate:"min=0"`
}

// UpdateEventRequest represents a partial event update
type UpdateEventRequest struct {
	Title       *string    `json:"title" validate:"omitempty,min=3,max=255"`
	Description *string    `json:"description" validate:"omitempty,max=20000"`
	Type        *string    `json:"type" validate:"omitempty,oneof=reunion webinar networking workshop career_fair other"`
	Location    *string    `json:"location" validate:"omitempty,max=255"`
	IsVirtual   *bool      `json:"is_virtual"`
	MeetingURL  *string    `json:"meeting_url" validate:"omitempty,url,max=512"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
	Capacity    *int       `json:"capacity" validate:"omitempty,min=0"`
	Status      *string    `json:"status" validate:"omitempty,oneof=scheduled cancelled completed"`
}

// ListEvents handles GET /api/events
func (h *EventHandler) ListEvents(c *fiber.Ctx) error {
	params, err := query.ParseList(c, sortable, "starts_at")
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
	eventType, err := query.OneOf(c, "type", eventTypes...)
	if err != nil {
		return query.Reject(c, err)
	}
	status, err := query.OneOf(c, "status", model.EventStatusScheduled, model.EventStatusCancelled, model.EventStatusCompleted)
	if err != nil {
		return query.Reject(c, err)
	}
	upcoming, err := query.Bool(c, "upcoming")
	if err != nil {
		return query.Reject(c, err)
	}
	isVirtual, err := query.Bool(c, "is_virtual")
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

	db := h.db.WithContext(c.UserContext()).Model(&model.Event{})
	if universityID != nil {
		db = db.Where("university_id = ?", *universityID)
	}
	if eventType != "" {
		db = db.Where("type = ?", eventType)
	}
	if status != "" {
		db = db.Where("status = ?", status)
	}
	if upcoming != nil {
		if *upcoming {
			db = db.Where("starts_at > ? AND status = ?", time.Now(), model.EventStatusScheduled)
		} else {
			db = db.Where("starts_at <= ?", time.Now())
		}
	}
	if isVirtual != nil {
		db = db.Where("is_virtual = ?", *isVirtual)
	}
	if from != nil {
		db = db.Where("starts_at >= ?", *from)
	}
	if to != nil {
		db = db.Where("starts_at <= ?", *to)
	}
	db = query.Search(db, params.Search, "title", "description", "location")

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count events")
	}

	var events []model.Event
	if err := params.Page(db, sortable).Find(&events).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch events")
	}

	return response.Paginated(c, events, response.CalculatePagination(params.Offset, params.Limit, total))
}

// GetEvent handles GET /api/events/:id
func (h *EventHandler) GetEvent(c *fiber.Ctx) error {
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}
	return h.respondWith(c, id)
}

func (h *EventHandler) respondWith(c *fiber.Ctx, id uint) error {
	var event model.Event
	if err := h.db.WithContext(c.UserContext()).Preload("University").Preload("Organizer").First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Event not found")
		}
		return response.InternalServerError(c, "Failed to fetch event")
	}
	return response.Success(c, event)
}

// CreateEvent handles POST /api/events
// Authorization: alumni, faculty, university_admin or admin, for their own university
func (h *EventHandler) CreateEvent(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateEventRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Title = validation.SanitizeString(req.Title)
	req.Location = validation.SanitizeString(req.Location)
	req.Description = strings.TrimSpace(req.Description)
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}
	if !req.EndsAt.After(req.StartsAt) {
		return response.Error(c, fiber.StatusBadRequest, "ends_at must be after starts_at", "INVALID_DATES")
	}
	if !req.StartsAt.After(time.Now()) {
		return response.Error(c, fiber.StatusBadRequest, "starts_at must be in the future", "INVALID_DATES")
	}

	universityID, ok, err := h.resolveUniversity(c, user, req.UniversityID)
	if !ok {
		return err
	}

	event := model.Event{
		UniversityID: universityID,
		OrganizerID:  user.ID,
		Title:        req.Title,
		Description:  req.Description,
		Type:         req.Type,
		Location:     req.Location,
		IsVirtual:    req.IsVirtual,
		MeetingURL:   req.MeetingURL,
		StartsAt:     req.StartsAt,
		EndsAt:       req.EndsAt,
		Capacity:     req.Capacity,
		Status:       model.EventStatusScheduled,
	}
	if err := h.db.WithContext(c.UserContext()).Create(&event).Error; err != nil {
		log.Printf("[EVENT] create: %v", err)
		return response.InternalServerError(c, "Failed to create event")
	}

	return response.Created(c, event)
}

// UpdateEvent handles PUT /api/events/:id
// Authorization: the organizer, that university's admin or admin
func (h *EventHandler) UpdateEvent(c *fiber.Ctx) error {
	event, ok, err := h.loadManaged(c)
	if !ok {
		return err
	}

	var req UpdateEventRequest
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
	setString("type", req.Type)
	setString("location", req.Location)
	setString("meeting_url", req.MeetingURL)
	setString("status", req.Status)
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.IsVirtual != nil {
		updates["is_virtual"] = *req.IsVirtual
	}

	startsAt, endsAt := event.StartsAt, event.EndsAt
	if req.StartsAt != nil {
		startsAt = *req.StartsAt
		updates["starts_at"] = startsAt
		// a moved event gets a fresh reminder
		updates["reminder_sent_at"] = nil
	}
	if req.EndsAt != nil {
		endsAt = *req.EndsAt
		updates["ends_at"] = endsAt
	}
	if !endsAt.After(startsAt) {
		return response.Error(c, fiber.StatusBadRequest, "ends_at must be after starts_at", "INVALID_DATES")
	}
	if req.Capacity != nil {
		if *req.Capacity != 0 && *req.Capacity < event.AttendeeCount {
			return response.ConflictWithCode(c, "CAPACITY_BELOW_ATTENDEES",
				fmt.Sprintf("Capacity cannot be below the %d registered attendees", event.AttendeeCount))
		}
		updates["capacity"] = *req.Capacity
	}

	if len(updates) == 0 {
		return response.Success(c, event)
	}

	// Updates writes the new values back into event
	prevStatus, prevStart := event.Status, event.StartsAt
	if err := h.db.WithContext(c.UserContext()).Model(event).Updates(updates).Error; err != nil {
		log.Printf("[EVENT] update %d: %v", event.ID, err)
		return response.InternalServerError(c, "Failed to update event")
	}

	if req.Status != nil && *req.Status == model.EventStatusCancelled && prevStatus != model.EventStatusCancelled {
		h.notifyRegistrants(c, event, "Event cancelled", fmt.Sprintf("%s has been cancelled", event.Title), model.NotificationTypeWarning)
	} else if req.StartsAt != nil && !req.StartsAt.Equal(prevStart) {
		h.notifyRegistrants(c, event, "Event rescheduled",
			fmt.Sprintf("%s now starts at %s", event.Title, req.StartsAt.Format(time.RFC1123)), model.NotificationTypeInfo)
	}

	if err := h.db.WithContext(c.UserContext()).First(event, event.ID).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch updated event")
	}
	return response.Success(c, event)
}

// DeleteEvent handles DELETE /api/events/:id
// Authorization: the organizer, that university's admin or admin
func (h *EventHandler) DeleteEvent(c *fiber.Ctx) error {
	event, ok, err := h.loadManaged(c)
	if !ok {
		return err
	}

	if err := h.db.WithContext(c.UserContext()).Delete(event).Error; err != nil {
		log.Printf("[EVENT] delete %d: %v", event.ID, err)
		return response.InternalServerError(c, "Failed to delete event")
	}

	return response.SuccessWithMessage(c, "Event deleted successfully", event)
}

func (h *EventHandler) notifyRegistrants(c *fiber.Ctx, event *model.Event, title, message string, kind model.NotificationType) {
	var userIDs []uint
	if err := h.db.WithContext(c.UserContext()).Model(&model.EventRegistration{}).
		Where("event_id = ? AND status = ?", event.ID, model.RegistrationStatusRegistered).
		Pluck("user_id", &userIDs).Error; err != nil {
		log.Printf("[EVENT] registrants of %d: %v", event.ID, err)
		return
	}
	for _, id := range userIDs {
		h.notifications.Notify(c.UserContext(), services.CreateNotificationRequest{
			UserID:   id,
			Type:     kind,
			Category: model.NotificationCategoryEvent,
			Title:    title,
			Message:  message,
			Link:     fmt.Sprintf("/events/%d", event.ID),
		})
	}
}

// loadManaged fetches the event in the path for a user allowed to manage it.
// When ok is false the response has already been written.
func (h *EventHandler) loadManaged(c *fiber.Ctx) (*model.Event, bool, error) {
	user, ok := middleware.GetUser(c)
	if !ok {
		return nil, false, response.Unauthorized(c, "User not authenticated")
	}
	id, err := query.PathID(c, "id")
	if err != nil {
		return nil, false, response.InvalidID(c)
	}

	var event model.Event
	if err := h.db.WithContext(c.UserContext()).First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, response.NotFound(c, "Event not found")
		}
		return nil, false, response.InternalServerError(c, "Failed to fetch event")
	}
	if event.OrganizerID != user.ID && !user.ManagesUniversity(event.UniversityID) {
		return nil, false, response.Forbidden(c, "You cannot manage this event")
	}
	return &event, true, nil
}

func (h *EventHandler) resolveUniversity(c *fiber.Ctx, user *model.User, requested *uint) (uint, bool, error) {
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
		return 0, false, response.Forbidden(c, "You can only organize events for your own university")
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
