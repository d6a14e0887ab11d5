package connection

import (
	"errors"
	"log"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/query"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/NagallaThanvi/unilink/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ConnectionHandler handles connection requests between users
type ConnectionHandler struct {
	db          *gorm.DB
	connections *services.ConnectionService
	validator   *validation.Validator
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(db *gorm.DB, connections *services.ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{
		db:          db,
		connections: connections,
		validator:   validation.NewValidator(),
	}
}

var sortable = query.Sortable{
	"created_at":   "created_at",
	"responded_at": "responded_at",
}

// CreateConnectionRequest represents a new connection request
type CreateConnectionRequest struct {
	RecipientID uint   `json:"recipient_id" validate:"required"`
	Message     string `json:"message" validate:"max=500"`
}

// UpdateConnectionRequest is the recipient's answer
type UpdateConnectionRequest struct {
	Status string `json:"status" validate:"required"`
}

// ListConnections handles GET /api/connections. Only the caller's own
// connections are listed.
func (h *ConnectionHandler) ListConnections(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
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

	status, err := query.OneOf(c, "status",
		string(model.ConnectionStatusPending), string(model.ConnectionStatusAccepted), string(model.ConnectionStatusRejected))
	if err != nil {
		return query.Reject(c, err)
	}
	direction, err := query.OneOf(c, "direction", "sent", "received")
	if err != nil {
		return query.Reject(c, err)
	}

	db := h.db.WithContext(c.UserContext()).Model(&model.Connection{})
	switch direction {
	case "sent":
		db = db.Where("requester_id = ?", userID)
	case "received":
		db = db.Where("recipient_id = ?", userID)
	default:
		db = db.Where("requester_id = ? OR recipient_id = ?", userID, userID)
	}
	if status != "" {
		db = db.Where("status = ?", status)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count connections")
	}

	var connections []model.Connection
	if err := params.Page(db, sortable).Preload("Requester").Preload("Recipient").Find(&connections).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch connections")
	}

	return response.Paginated(c, connections, response.CalculatePagination(params.Offset, params.Limit, total))
}

// GetConnection handles GET /api/connections/:id
func (h *ConnectionHandler) GetConnection(c *fiber.Ctx) error {
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}
	return h.respondWith(c, id)
}

func (h *ConnectionHandler) respondWith(c *fiber.Ctx, id uint) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var conn model.Connection
	if err := h.db.WithContext(c.UserContext()).Preload("Requester").Preload("Recipient").First(&conn, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Connection not found")
		}
		return response.InternalServerError(c, "Failed to fetch connection")
	}
	// other users' connections are reported as missing
	if !conn.Involves(user.ID) && !user.IsAdmin() {
		return response.NotFound(c, "Connection not found")
	}
	return response.Success(c, conn)
}

// CreateConnection handles POST /api/connections
func (h *ConnectionHandler) CreateConnection(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req CreateConnectionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Message = validation.SanitizeString(req.Message)
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	var count int64
	if err := h.db.WithContext(c.UserContext()).Model(&model.User{}).
		Where("id = ? AND is_active = ?", req.RecipientID, true).Count(&count).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch recipient")
	}
	if count == 0 {
		return response.Error(c, fiber.StatusBadRequest, "Recipient not found", "RECIPIENT_NOT_FOUND")
	}

	conn, err := h.connections.Request(c.UserContext(), userID, req.RecipientID, req.Message)
	if err != nil {
		return h.serviceError(c, err)
	}
	return response.Created(c, conn)
}

// UpdateConnection handles PUT /api/connections/:id. Only the recipient can
// accept or reject; a requester withdraws by deleting.
func (h *ConnectionHandler) UpdateConnection(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}

	var req UpdateConnectionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	status := model.ConnectionStatus(req.Status)
	if status != model.ConnectionStatusAccepted && status != model.ConnectionStatusRejected {
		return response.Error(c, fiber.StatusBadRequest, "status must be accepted or rejected", "INVALID_STATUS")
	}

	conn, err := h.connections.Respond(c.UserContext(), id, userID, status)
	if err != nil {
		return h.serviceError(c, err)
	}
	return response.Success(c, conn)
}

// DeleteConnection handles DELETE /api/connections/:id
func (h *ConnectionHandler) DeleteConnection(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}

	conn, err := h.connections.Remove(c.UserContext(), id, user.ID, user.IsAdmin())
	if err != nil {
		return h.serviceError(c, err)
	}
	return response.SuccessWithMessage(c, "Connection removed", conn)
}

func (h *ConnectionHandler) serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrConnectionNotFound):
		return response.NotFound(c, "Connection not found")
	case errors.Is(err, services.ErrSelfConnection):
		return response.Error(c, fiber.StatusBadRequest, "You cannot connect with yourself", "SELF_CONNECTION")
	case errors.Is(err, services.ErrConnectionExists):
		return response.ConflictWithCode(c, "CONNECTION_EXISTS", "A connection between these users already exists")
	case errors.Is(err, services.ErrNotRecipient):
		return response.Forbidden(c, "Only the recipient can respond to this request")
	case errors.Is(err, services.ErrAlreadyResponded):
		return response.ConflictWithCode(c, "ALREADY_RESPONDED", "This request has already been answered")
	}
	log.Printf("[CONNECTION] %s %s: %v", c.Method(), c.Path(), err)
	return response.InternalServerError(c, "Failed to process connection")
}
