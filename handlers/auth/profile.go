package auth

import (
	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services/outbox"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/NagallaThanvi/unilink/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// UpdateMeRequest represents an account update request
type UpdateMeRequest struct {
	Name *string `json:"name" validate:"omitempty,min=2,max=100"`
}

// GetMe returns the current user's account
func (h *AuthHandler) GetMe(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	var fresh model.User
	if err := h.db.Preload("University").First(&fresh, user.ID).Error; err != nil {
		return response.NotFound(c, "User not found")
	}

	return response.Success(c, fiber.Map{
		"user":       NewUserResponse(&fresh),
		"university": fresh.University,
	})
}

// UpdateMe updates the current user's account
func (h *AuthHandler) UpdateMe(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	var req UpdateMeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if req.Name != nil {
		name := validation.SanitizeString(*req.Name)
		req.Name = &name
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	if req.Name != nil {
		err := h.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(user).Update("name", *req.Name).Error; err != nil {
				return err
			}
			return outbox.Add(tx, model.OutboxEntityUser, user.ID, model.OutboxOpUpsert, nil)
		})
		if err != nil {
			return response.InternalServerError(c, "Failed to update account")
		}
	}

	return response.Success(c, NewUserResponse(user))
}
