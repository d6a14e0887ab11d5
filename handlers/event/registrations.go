package event

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/query"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var (
	errEventFull         = errors.New("event is full")
	errAlreadyRegistered = errors.New("already registered")
	errNotRegistered     = errors.New("not registered")
)

var registrationSortable = query.Sortable{
	"created_at": "event_registrations.created_at",
	"status":     "event_registrations.status",
}

// Register handles POST /api/events/:id/register. The seat is taken with a
// conditional increment so concurrent registrations cannot overfill the event.
func (h *EventHandler) Register(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}

	var event model.Event
	if err := h.db.WithContext(c.UserContext()).First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Event not found")
		}
		return response.InternalServerError(c, "Failed to fetch event")
	}
	if event.Status != model.EventStatusScheduled || !event.StartsAt.After(time.Now()) {
		return response.Error(c, fiber.StatusBadRequest, "This event is not open for registration", "REGISTRATION_CLOSED")
	}

	var registration model.EventRegistration
	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("event_id = ? AND user_id = ?", event.ID, user.ID).First(&registration).Error
		switch {
		case err == nil && registration.Status != model.RegistrationStatusCancelled:
			return errAlreadyRegistered
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		res := tx.Model(&model.Event{}).
			Where("id = ? AND (capacity = 0 OR attendee_count < capacity)", event.ID).
			Update("attendee_count", gorm.Expr("attendee_count + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errEventFull
		}

		// a cancelled registration is reactivated rather than duplicated
		if registration.ID != 0 {
			registration.Status = model.RegistrationStatusRegistered
			return tx.Model(&registration).Update("status", model.RegistrationStatusRegistered).Error
		}
		registration = model.EventRegistration{
			EventID: event.ID,
			UserID:  user.ID,
			Status:  model.RegistrationStatusRegistered,
		}
		if err := tx.Create(&registration).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errAlreadyRegistered
			}
			return err
		}
		return nil
	})
	switch {
	case errors.Is(err, errAlreadyRegistered):
		return response.ConflictWithCode(c, "ALREADY_REGISTERED", "You are already registered for this event")
	case errors.Is(err, errEventFull):
		return response.ConflictWithCode(c, "EVENT_FULL", "This event has reached its capacity")
	case err != nil:
		log.Printf("[EVENT] register user %d for %d: %v", user.ID, event.ID, err)
		return response.InternalServerError(c, "Failed to register for event")
	}

	h.gamification.AwardQuietly(c.UserContext(), services.AwardRequest{
		UserID:        user.ID,
		UniversityID:  user.UniversityID,
		Action:        model.PointActionEventRegistration,
		ReferenceType: "event",
		ReferenceID:   event.ID,
	})
	if event.OrganizerID != user.ID {
		h.notifications.Notify(c.UserContext(), services.CreateNotificationRequest{
			UserID:   event.OrganizerID,
			Category: model.NotificationCategoryEvent,
			Title:    "New registration",
			Message:  fmt.Sprintf("%s registered for %s", user.Name, event.Title),
			Link:     fmt.Sprintf("/events/%d/registrations", event.ID),
		})
	}

	return response.Created(c, registration)
}

// Unregister handles DELETE /api/events/:id/register
func (h *EventHandler) Unregister(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}

	var registration model.EventRegistration
	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ? AND user_id = ?", id, userID).First(&registration).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errNotRegistered
			}
			return err
		}

		res := tx.Model(&model.EventRegistration{}).
			Where("id = ? AND status = ?", registration.ID, model.RegistrationStatusRegistered).
			Update("status", model.RegistrationStatusCancelled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errNotRegistered
		}
		registration.Status = model.RegistrationStatusCancelled

		return tx.Model(&model.Event{}).
			Where("id = ? AND attendee_count > 0", id).
			Update("attendee_count", gorm.Expr("attendee_count - ?", 1)).Error
	})
	switch {
	case errors.Is(err, errNotRegistered):
		return response.NotFound(c, "You are not registered for this event")
	case err != nil:
		log.Printf("[EVENT] unregister user %d from %d: %v", userID, id, err)
		return response.InternalServerError(c, "Failed to cancel registration")
	}

	return response.SuccessWithMessage(c, "Registration cancelled", registration)
}

// ListRegistrations handles GET /api/events/:id/registrations
// Authorization: the organizer, that university's admin or admin
func (h *EventHandler) ListRegistrations(c *fiber.Ctx) error {
	event, ok, err := h.loadManaged(c)
	if !ok {
		return err
	}

	params, err := query.ParseList(c, registrationSortable, "created_at")
	if err != nil {
		return query.Reject(c, err)
	}
	status, err := query.OneOf(c, "status",
		model.RegistrationStatusRegistered, model.RegistrationStatusCancelled, model.RegistrationStatusAttended)
	if err != nil {
		return query.Reject(c, err)
	}

	db := h.db.WithContext(c.UserContext()).Model(&model.EventRegistration{}).
		Where("event_registrations.event_id = ?", event.ID)
	if params.ID != nil {
		db = db.Where("event_registrations.id = ?", *params.ID)
	}
	if status != "" {
		db = db.Where("event_registrations.status = ?", status)
	}
	if params.Search != "" {
		db = db.Joins("JOIN users ON users.id = event_registrations.user_id")
		db = query.Search(db, params.Search, "users.name", "users.email")
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count registrations")
	}

	var registrations []model.EventRegistration
	if err := params.Page(db, registrationSortable).Preload("User").Find(&registrations).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch registrations")
	}

	return response.Paginated(c, registrations, response.CalculatePagination(params.Offset, params.Limit, total))
}
