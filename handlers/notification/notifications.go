package notification

import (
	"errors"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/query"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/gofiber/fiber/v2"
)

// NotificationHandler handles notification-related API endpoints
type NotificationHandler struct {
	notificationService *services.NotificationService
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
	}
}

// Notifications are always newest first
var sortable = query.Sortable{"created_at": "created_at"}

// GetNotifications handles GET /api/notifications
// Returns the authenticated user's notifications, optionally unread only or by category
func (h *NotificationHandler) GetNotifications(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	params, err := query.ParseList(c, sortable, "created_at")
	if err != nil {
		return query.Reject(c, err)
	}
	unreadOnly, err := query.Bool(c, "unread_only")
	if err != nil {
		return query.Reject(c, err)
	}
	category, err := query.OneOf(c, "category", categories()...)
	if err != nil {
		return query.Reject(c, err)
	}

	notifications, total, err := h.notificationService.GetNotificationsByUser(c.UserContext(), services.ListNotificationsOptions{
		UserID:     user.ID,
		UnreadOnly: unreadOnly != nil && *unreadOnly,
		Category:   category,
		Limit:      params.Limit,
		Offset:     params.Offset,
	})
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch notifications")
	}

	data := make([]model.NotificationResponse, 0, len(notifications))
	for i := range notifications {
		data = append(data, notifications[i].ToResponse())
	}

	return response.Paginated(c, data, response.CalculatePagination(params.Offset, params.Limit, total))
}

// GetUnreadCount handles GET /api/notifications/unread-count
func (h *NotificationHandler) GetUnreadCount(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	count, err := h.notificationService.GetUnreadCount(c.UserContext(), user.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to get unread count")
	}

	return response.Success(c, fiber.Map{
		"unread_count": count,
	})
}

// MarkAsRead handles POST /api/notifications/:id/read
func (h *NotificationHandler) MarkAsRead(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	notificationID, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}

	notification, err := h.notificationService.MarkAsRead(c.UserContext(), notificationID, user.ID)
	if err != nil {
		if errors.Is(err, services.ErrNotificationNotFound) {
			return response.NotFound(c, "Notification not found")
		}
		return response.InternalServerError(c, "Failed to mark notification as read")
	}

	return response.SuccessWithMessage(c, "Notification marked as read", notification.ToResponse())
}

// MarkAllAsRead handles POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllAsRead(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	count, err := h.notificationService.MarkAllAsRead(c.UserContext(), user.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to mark all notifications as read")
	}

	return response.SuccessWithMessage(c, "All notifications marked as read", fiber.Map{
		"count": count,
	})
}

// DeleteNotification handles DELETE /api/notifications/:id
func (h *NotificationHandler) DeleteNotification(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	notificationID, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}

	notification, err := h.notificationService.DeleteNotification(c.UserContext(), notificationID, user.ID)
	if err != nil {
		if errors.Is(err, services.ErrNotificationNotFound) {
			return response.NotFound(c, "Notification not found")
		}
		return response.InternalServerError(c, "Failed to delete notification")
	}

	return response.SuccessWithMessage(c, "Notification deleted", notification.ToResponse())
}

// DeleteAllNotifications handles DELETE /api/notifications
func (h *NotificationHandler) DeleteAllNotifications(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	count, err := h.notificationService.DeleteAllNotifications(c.UserContext(), user.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to delete all notifications")
	}

	return response.SuccessWithMessage(c, "All notifications deleted", fiber.Map{
		"count": count,
	})
}

func categories() []string {
	return []string{
		string(model.NotificationCategoryConnection),
		string(model.NotificationCategoryMessage),
		string(model.NotificationCategoryJob),
		string(model.NotificationCategoryEvent),
		string(model.NotificationCategoryScholarship),
		string(model.NotificationCategoryCredential),
		string(model.NotificationCategoryAchievement),
		string(model.NotificationCategoryGeneral),
	}
}
