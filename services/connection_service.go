package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services/outbox"
	"gorm.io/gorm"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectionExists   = errors.New("connection already exists")
	ErrSelfConnection     = errors.New("cannot connect to yourself")
	ErrNotRecipient       = errors.New("only the recipient can respond")
	ErrAlreadyResponded   = errors.New("connection already responded to")
)

// ConnectionService owns the connection request lifecycle
type ConnectionService struct {
	db            *gorm.DB
	notifications *NotificationService
	gamification  *GamificationService
}

// NewConnectionService creates a new connection service
func NewConnectionService(db *gorm.DB, notifications *NotificationService, gamification *GamificationService) *ConnectionService {
	return &ConnectionService{db: db, notifications: notifications, gamification: gamification}
}

// AreConnected reports whether two users share an accepted connection
func AreConnected(ctx context.Context, db *gorm.DB, a, b uint) (bool, error) {
	if a == 0 || b == 0 || a == b {
		return false, nil
	}
	var count int64
	err := db.WithContext(ctx).Model(&model.Connection{}).
		Where("status = ?", model.ConnectionStatusAccepted).
		Where("(requester_id = ? AND recipient_id = ?) OR (requester_id = ? AND recipient_id = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}

// ConnectedUserIDs returns everyone the user has an accepted connection with
func ConnectedUserIDs(ctx context.Context, db *gorm.DB, userID uint) ([]uint, error) {
	var conns []model.Connection
	if err := db.WithContext(ctx).
		Where("status = ? AND (requester_id = ? OR recipient_id = ?)", model.ConnectionStatusAccepted, userID, userID).
		Find(&conns).Error; err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(conns))
	for i := range conns {
		ids = append(ids, conns[i].OtherParty(userID))
	}
	return ids, nil
}

// Request creates a pending connection from requester to recipient. Either
// direction of an existing pair counts as a duplicate.
func (s *ConnectionService) Request(ctx context.Context, requesterID, recipientID uint, message string) (*model.Connection, error) {
	if requesterID == recipientID {
		return nil, ErrSelfConnection
	}

	conn := model.Connection{
		RequesterID: requesterID,
		RecipientID: recipientID,
		Status:      model.ConnectionStatusPending,
		Message:     message,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Connection{}).
			Where("(requester_id = ? AND recipient_id = ?) OR (requester_id = ? AND recipient_id = ?)",
				requesterID, recipientID, recipientID, requesterID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrConnectionExists
		}
		if err := tx.Create(&conn).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrConnectionExists
			}
			return err
		}
		return outbox.Add(tx, model.OutboxEntityConnection, conn.ID, model.OutboxOpUpsert, nil)
	})
	if err != nil {
		return nil, err
	}

	var requester model.User
	if err := s.db.WithContext(ctx).Select("id", "name").First(&requester, requesterID).Error; err == nil {
		s.notifications.Notify(ctx, CreateNotificationRequest{
			UserID:   recipientID,
			Type:     model.NotificationTypeInfo,
			Category: model.NotificationCategoryConnection,
			Title:    "New connection request",
			Message:  fmt.Sprintf("%s wants to connect with you", requester.Name),
			Link:     fmt.Sprintf("/connections/%d", conn.ID),
		})
	}

	return &conn, nil
}

// Respond accepts or rejects a pending request. Only the recipient may
// respond; accepting notifies the requester and awards both sides points.
func (s *ConnectionService) Respond(ctx context.Context, connectionID, userID uint, status model.ConnectionStatus) (*model.Connection, error) {
	var conn model.Connection
	if err := s.db.WithContext(ctx).First(&conn, connectionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConnectionNotFound
		}
		return nil, err
	}
	if conn.RecipientID != userID {
		return nil, ErrNotRecipient
	}
	if conn.Status != model.ConnectionStatusPending {
		return nil, ErrAlreadyResponded
	}

	now := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Connection{}).
			Where("id = ? AND status = ?", conn.ID, model.ConnectionStatusPending).
			Updates(map[string]interface{}{"status": status, "responded_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyResponded
		}
		return outbox.Add(tx, model.OutboxEntityConnection, conn.ID, model.OutboxOpUpsert, nil)
	})
	if err != nil {
		return nil, err
	}
	conn.Status = status
	conn.RespondedAt = &now

	if status == model.ConnectionStatusAccepted {
		var recipient model.User
		if err := s.db.WithContext(ctx).Select("id", "name").First(&recipient, userID).Error; err == nil {
			s.notifications.Notify(ctx, CreateNotificationRequest{
				UserID:   conn.RequesterID,
				Type:     model.NotificationTypeSuccess,
				Category: model.NotificationCategoryConnection,
				Title:    "Connection accepted",
				Message:  fmt.Sprintf("%s accepted your connection request", recipient.Name),
				Link:     fmt.Sprintf("/connections/%d", conn.ID),
			})
		}

		var parties []model.User
		if err := s.db.WithContext(ctx).Select("id", "university_id").
			Find(&parties, []uint{conn.RequesterID, conn.RecipientID}).Error; err != nil {
			return &conn, nil
		}
		for _, u := range parties {
			s.gamification.AwardQuietly(ctx, AwardRequest{
				UserID:        u.ID,
				UniversityID:  u.UniversityID,
				Action:        model.PointActionConnectionAccepted,
				ReferenceType: "connection",
				ReferenceID:   conn.ID,
			})
		}
	}

	return &conn, nil
}

// Remove deletes a connection either side is part of
func (s *ConnectionService) Remove(ctx context.Context, connectionID, userID uint, isAdmin bool) (*model.Connection, error) {
	var conn model.Connection
	if err := s.db.WithContext(ctx).First(&conn, connectionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConnectionNotFound
		}
		return nil, err
	}
	if !isAdmin && !conn.Involves(userID) {
		return nil, ErrConnectionNotFound
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&conn).Error; err != nil {
			return err
		}
		return outbox.Add(tx, model.OutboxEntityConnection, conn.ID, model.OutboxOpDelete, nil)
	})
	if err != nil {
		return nil, err
	}
	return &conn, nil
}
