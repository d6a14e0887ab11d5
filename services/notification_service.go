package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrNotificationNotFound is returned when the notification does not exist
// or belongs to another user
var ErrNotificationNotFound = errors.New("notification not found")

// NotificationService handles user notifications
type NotificationService struct {
	db *gorm.DB
}

// NewNotificationService creates a new notification service
func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

// WithTx returns a service bound to the given transaction
func (s *NotificationService) WithTx(tx *gorm.DB) *NotificationService {
	return &NotificationService{db: tx}
}

// CreateNotificationRequest represents a request to create a notification
type CreateNotificationRequest struct {
	UserID   uint
	Type     model.NotificationType
	Category model.NotificationCategory
	Title    string
	Message  string
	Link     string
	Metadata map[string]interface{}
}

// ListNotificationsOptions represents options for listing notifications
type ListNotificationsOptions struct {
	UserID     uint
	UnreadOnly bool
	Category   string
	Limit      int
	Offset     int
}

// CreateNotification creates a new notification for a user
func (s *NotificationService) CreateNotification(ctx context.Context, req CreateNotificationRequest) (*model.UserNotification, error) {
	if req.Type == "" {
		req.Type = model.NotificationTypeInfo
	}
	if req.Category == "" {
		req.Category = model.NotificationCategoryGeneral
	}

	notification := &model.UserNotification{
		UserID:   req.UserID,
		Type:     req.Type,
		Category: req.Category,
		Title:    req.Title,
		Message:  req.Message,
		Link:     req.Link,
		Read:     false,
	}

	if req.Metadata != nil {
		metadataJSON, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		notification.Metadata = datatypes.JSON(metadataJSON)
	}

	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	return notification, nil
}

// Notify creates a notification and logs instead of failing the caller.
// Used for side effects that must not abort the main operation.
func (s *NotificationService) Notify(ctx context.Context, req CreateNotificationRequest) {
	if _, err := s.CreateNotification(ctx, req); err != nil {
		log.Printf("[NOTIFY] user %d %q: %v", req.UserID, req.Title, err)
	}
}

// GetNotificationsByUser retrieves notifications for a user
func (s *NotificationService) GetNotificationsByUser(ctx context.Context, opts ListNotificationsOptions) ([]model.UserNotification, int64, error) {
	var notifications []model.UserNotification
	var total int64

	query := s.db.WithContext(ctx).Model(&model.UserNotification{}).
		Where("user_id = ?", opts.UserID)

	if opts.UnreadOnly {
		query = query.Where("read = ?", false)
	}

	if opts.Category != "" {
		query = query.Where("category = ?", opts.Category)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	} else {
		query = query.Limit(50)
	}

	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	if err := query.Order("created_at DESC, id DESC").Find(&notifications).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch notifications: %w", err)
	}

	return notifications, total, nil
}

// MarkAsRead marks a notification as read
func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID uint, userID uint) (*model.UserNotification, error) {
	var notification model.UserNotification
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		First(&notification).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("failed to fetch notification: %w", err)
	}

	if !notification.Read {
		notification.Read = true
		if err := s.db.WithContext(ctx).Model(&notification).Update("read", true).Error; err != nil {
			return nil, fmt.Errorf("failed to mark notification as read: %w", err)
		}
	}

	return &notification, nil
}

// MarkAllAsRead marks all notifications for a user as read
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uint) (int64, error) {
	result := s.db.WithContext(ctx).Model(&model.UserNotification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)

	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark all notifications as read: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// DeleteNotification deletes a notification and returns the deleted row
func (s *NotificationService) DeleteNotification(ctx context.Context, notificationID uint, userID uint) (*model.UserNotification, error) {
	var notification model.UserNotification
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		First(&notification).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("failed to fetch notification: %w", err)
	}

	if err := s.db.WithContext(ctx).Delete(&notification).Error; err != nil {
		return nil, fmt.Errorf("failed to delete notification: %w", err)
	}

	return &notification, nil
}

// DeleteAllNotifications deletes all notifications for a user
func (s *NotificationService) DeleteAllNotifications(ctx context.Context, userID uint) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.UserNotification{})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete all notifications: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// GetUnreadCount returns the count of unread notifications for a user
func (s *NotificationService) GetUnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64

	err := s.db.WithContext(ctx).Model(&model.UserNotification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error

	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}

	return count, nil
}

// CleanupOldNotifications removes read notifications older than the specified duration
func (s *NotificationService) CleanupOldNotifications(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	result := s.db.WithContext(ctx).
		Where("created_at < ? AND read = ?", cutoff, true).
		Delete(&model.UserNotification{})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to cleanup old notifications: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		log.Printf("Cleaned up %d old notifications", result.RowsAffected)
	}

	return result.RowsAffected, nil
}
