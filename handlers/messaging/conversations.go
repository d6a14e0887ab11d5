package messaging

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
	"github.com/NagallaThanvi/unilink/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// MessagingHandler handles conversations and their messages
type MessagingHandler struct {
	db            *gorm.DB
	notifications *services.NotificationService
	gamification  *services.GamificationService
	validator     *validation.Validator
}

// NewMessagingHandler creates a new messaging handler
func NewMessagingHandler(db *gorm.DB, notifications *services.NotificationService, gamification *services.GamificationService) *MessagingHandler {
	return &MessagingHandler{
		db:            db,
		notifications: notifications,
		gamification:  gamification,
		validator:     validation.NewValidator(),
	}
}

var conversationSort = query.Sortable{
	"last_message_at": "conversations.last_message_at",
	"created_at":      "conversations.created_at",
}

var messageSort = query.Sortable{
	"created_at": "created_at",
}

// CreateConversationRequest starts a conversation with one or more users
type CreateConversationRequest struct {
	ParticipantIDs []uint `json:"participant_ids" validate:"required,min=1,max=50,dive,required"`
	Title          string `json:"title" validate:"max=255"`
}

// SendMessageRequest is the body of a new message
type SendMessageRequest struct {
	Body string `json:"body" validate:"required,min=1,max=5000"`
}

// ConversationSummary is a conversation with the caller's unread count
type ConversationSummary struct {
	model.Conversation
	UnreadCount int64 `json:"unread_count"`
}

// ListConversations handles GET /api/conversations
func (h *MessagingHandler) ListConversations(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	params, err := query.ParseList(c, conversationSort, "last_message_at")
	if err != nil {
		return query.Reject(c, err)
	}

	db := h.db.WithContext(c.UserContext()).Model(&model.Conversation{}).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id AND cp.user_id = ?", userID)
	if params.ID != nil {
		db = db.Where("conversations.id = ?", *params.ID)
	}
	db = query.Search(db, params.Search, "conversations.title")

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count conversations")
	}

	var conversations []model.Conversation
	if err := params.Page(db, conversationSort).
		Select("conversations.*").
		Preload("Participants.User").
		Find(&conversations).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch conversations")
	}

	summaries := make([]ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		unread, err := h.unreadCount(c, conv, userID)
		if err != nil {
			return response.InternalServerError(c, "Failed to count unread messages")
		}
		summaries = append(summaries, ConversationSummary{Conversation: conv, UnreadCount: unread})
	}

	return response.Paginated(c, summaries, response.CalculatePagination(params.Offset, params.Limit, total))
}

func (h *MessagingHandler) unreadCount(c *fiber.Ctx, conv model.Conversation, userID uint) (int64, error) {
	db := h.db.WithContext(c.UserContext()).Model(&model.Message{}).
		Where("conversation_id = ? AND sender_id <> ?", conv.ID, userID)
	for _, p := range conv.Participants {
		if p.UserID == userID && p.LastReadAt != nil {
			db = db.Where("created_at > ?", *p.LastReadAt)
		}
	}
	var count int64
	err := db.Count(&count).Error
	return count, err
}

// CreateConversation handles POST /api/conversations. A direct conversation
// between the same two users is reused rather than duplicated.
func (h *MessagingHandler) CreateConversation(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Title = validation.SanitizeString(req.Title)
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	others := make([]uint, 0, len(req.ParticipantIDs))
	seen := map[uint]bool{userID: true}
	for _, id := range req.ParticipantIDs {
		if !seen[id] {
			seen[id] = true
			others = append(others, id)
		}
	}
	if len(others) == 0 {
		return response.Error(c, fiber.StatusBadRequest, "A conversation needs at least one other participant", "INVALID_PARTICIPANTS")
	}

	var found int64
	if err := h.db.WithContext(c.UserContext()).Model(&model.User{}).
		Where("id IN ? AND is_active = ?", others, true).Count(&found).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch participants")
	}
	if int(found) != len(others) {
		return response.Error(c, fiber.StatusBadRequest, "One or more participants do not exist", "INVALID_PARTICIPANTS")
	}

	if len(others) == 1 {
		existing, err := h.findDirect(c, userID, others[0])
		if err != nil {
			return response.InternalServerError(c, "Failed to look up conversation")
		}
		if existing != nil {
			return h.respondWith(c, existing.ID, userID)
		}
	}

	conv := model.Conversation{
		Title:     req.Title,
		IsGroup:   len(others) > 1,
		CreatedBy: userID,
	}
	err := h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conv).Error; err != nil {
			return err
		}
		participants := make([]model.ConversationParticipant, 0, len(others)+1)
		for _, id := range append([]uint{userID}, others...) {
			participants = append(participants, model.ConversationParticipant{ConversationID: conv.ID, UserID: id})
		}
		return tx.Create(&participants).Error
	})
	if err != nil {
		log.Printf("[MESSAGING] create conversation for user %d: %v", userID, err)
		return response.InternalServerError(c, "Failed to create conversation")
	}

	if err := h.db.WithContext(c.UserContext()).Preload("Participants.User").First(&conv, conv.ID).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch conversation")
	}
	return response.Created(c, conv)
}

// findDirect returns the one-to-one conversation between a and b, if any
func (h *MessagingHandler) findDirect(c *fiber.Ctx, a, b uint) (*model.Conversation, error) {
	var conv model.Conversation
	err := h.db.WithContext(c.UserContext()).
		Where("is_group = ?", false).
		Where("id IN (?)", h.db.Model(&model.ConversationParticipant{}).Select("conversation_id").Where("user_id = ?", a)).
		Where("id IN (?)", h.db.Model(&model.ConversationParticipant{}).Select("conversation_id").Where("user_id = ?", b)).
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetConversation handles GET /api/conversations/:id
func (h *MessagingHandler) GetConversation(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}
	return h.respondWith(c, id, userID)
}

func (h *MessagingHandler) respondWith(c *fiber.Ctx, id, userID uint) error {
	var conv model.Conversation
	if err := h.db.WithContext(c.UserContext()).Preload("Participants.User").First(&conv, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Conversation not found")
		}
		return response.InternalServerError(c, "Failed to fetch conversation")
	}
	if !isParticipant(&conv, userID) {
		return response.NotFound(c, "Conversation not found")
	}

	unread, err := h.unreadCount(c, conv, userID)
	if err != nil {
		return response.InternalServerError(c, "Failed to count unread messages")
	}
	return response.Success(c, ConversationSummary{Conversation: conv, UnreadCount: unread})
}

// ListMessages handles GET /api/conversations/:id/messages
func (h *MessagingHandler) ListMessages(c *fiber.Ctx) error {
	conv, _, ok, err := h.loadParticipating(c)
	if !ok {
		return err
	}

	params, err := query.ParseList(c, messageSort, "created_at")
	if err != nil {
		return query.Reject(c, err)
	}

	db := h.db.WithContext(c.UserContext()).Model(&model.Message{}).Where("conversation_id = ?", conv.ID)
	if params.ID != nil {
		db = db.Where("id = ?", *params.ID)
	}
	db = query.Search(db, params.Search, "body")

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count messages")
	}

	var messages []model.Message
	if err := params.Page(db, messageSort).Preload("Sender").Find(&messages).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch messages")
	}

	return response.Paginated(c, messages, response.CalculatePagination(params.Offset, params.Limit, total))
}

// SendMessage handles POST /api/conversations/:id/messages
func (h *MessagingHandler) SendMessage(c *fiber.Ctx) error {
	conv, userID, ok, err := h.loadParticipating(c)
	if !ok {
		return err
	}

	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Body = validation.SanitizeString(req.Body)
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	msg := model.Message{ConversationID: conv.ID, SenderID: userID, Body: req.Body}
	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Conversation{}).Where("id = ?", conv.ID).
			Update("last_message_at", msg.CreatedAt).Error; err != nil {
			return err
		}
		// the sender has read everything up to their own message
		return tx.Model(&model.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id = ?", conv.ID, userID).
			Update("last_read_at", msg.CreatedAt).Error
	})
	if err != nil {
		log.Printf("[MESSAGING] send in conversation %d: %v", conv.ID, err)
		return response.InternalServerError(c, "Failed to send message")
	}

	var sender model.User
	h.db.WithContext(c.UserContext()).Select("id", "name", "university_id").First(&sender, userID)
	for _, p := range conv.Participants {
		if p.UserID == userID {
			continue
		}
		h.notifications.Notify(c.UserContext(), services.CreateNotificationRequest{
			UserID:   p.UserID,
			Type:     model.NotificationTypeInfo,
			Category: model.NotificationCategoryMessage,
			Title:    "New message from " + sender.Name,
			Message:  preview(req.Body),
			Link:     fmt.Sprintf("/conversations/%d", conv.ID),
		})
	}
	h.gamification.AwardQuietly(c.UserContext(), services.AwardRequest{
		UserID:        userID,
		UniversityID:  sender.UniversityID,
		Action:        model.PointActionMessageSent,
		ReferenceType: "message",
		ReferenceID:   msg.ID,
	})

	return response.Created(c, msg)
}

// MarkRead handles POST /api/conversations/:id/read
func (h *MessagingHandler) MarkRead(c *fiber.Ctx) error {
	conv, userID, ok, err := h.loadParticipating(c)
	if !ok {
		return err
	}

	now := time.Now()
	if err := h.db.WithContext(c.UserContext()).Model(&model.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conv.ID, userID).
		Update("last_read_at", now).Error; err != nil {
		return response.InternalServerError(c, "Failed to mark conversation as read")
	}
	return response.SuccessWithMessage(c, "Conversation marked as read", fiber.Map{"last_read_at": now})
}

// loadParticipating fetches the conversation in the path if the caller
// takes part in it. When ok is false the response has been written.
func (h *MessagingHandler) loadParticipating(c *fiber.Ctx) (*model.Conversation, uint, bool, error) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return nil, 0, false, response.Unauthorized(c, "User not authenticated")
	}
	id, err := query.PathID(c, "id")
	if err != nil {
		return nil, 0, false, response.InvalidID(c)
	}

	var conv model.Conversation
	if err := h.db.WithContext(c.UserContext()).Preload("Participants").First(&conv, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, false, response.NotFound(c, "Conversation not found")
		}
		return nil, 0, false, response.InternalServerError(c, "Failed to fetch conversation")
	}
	if !isParticipant(&conv, userID) {
		return nil, 0, false, response.NotFound(c, "Conversation not found")
	}
	return &conv, userID, true, nil
}

func isParticipant(conv *model.Conversation, userID uint) bool {
	for _, p := range conv.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func preview(body string) string {
	const previewLen = 120
	r := []rune(body)
	if len(r) <= previewLen {
		return body
	}
	return string(r[:previewLen]) + "..."
}
