package auth

import (
	"errors"
	"log"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	authutil "github.com/NagallaThanvi/unilink/utils/auth"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/NagallaThanvi/unilink/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// LoginRequest represents a user login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login handles user login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	req.Email = validation.NormalizeEmail(req.Email)
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	ctx := c.UserContext()
	ip := c.IP()

	var user model.User
	if err := h.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return response.InternalServerError(c, "Failed to fetch user")
		}
		// Record failed attempt even if user not found
		_ = h.bruteForceProtection.RecordFailedAttempt(ctx, ip)
		return response.Unauthorized(c, "Invalid email or password")
	}

	if err := authutil.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		_ = h.bruteForceProtection.RecordFailedAttempt(ctx, ip)
		return response.Unauthorized(c, "Invalid email or password")
	}

	if !user.IsActive {
		return response.Forbidden(c, "Account is deactivated")
	}

	// Clear failed attempts on successful login
	_ = h.bruteForceProtection.RecordSuccessfulAttempt(ctx, ip)

	now := time.Now()
	if err := h.db.Model(&user).UpdateColumn("last_login_at", now).Error; err != nil {
		log.Printf("[AUTH] failed to record login for user %d: %v", user.ID, err)
	}
	user.LastLoginAt = &now

	if err := h.analytics.LogActivity(ctx, user.ID, model.ActivityTypeLogin, "", 0, ip, c.Get(fiber.HeaderUserAgent)); err != nil {
		log.Printf("[AUTH] failed to log activity for user %d: %v", user.ID, err)
	}

	tokens, err := h.jwtManager.GenerateTokenPair(subjectFor(&user))
	if err != nil {
		return response.InternalServerError(c, "Failed to generate tokens")
	}

	return response.Success(c, AuthResponse{User: NewUserResponse(&user), TokenPair: tokens})
}
