package auth

import (
	"errors"
	"log"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	authutil "github.com/NagallaThanvi/unilink/utils/auth"
	"github.com/NagallaThanvi/unilink/utils/crypto"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/NagallaThanvi/unilink/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ResetTokenTTL is how long a password reset link stays valid
const ResetTokenTTL = time.Hour

const forgotPasswordMessage = "If the email exists, a password reset link will be sent"

// ForgotPasswordRequest represents a password reset request
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest represents a password reset with token
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

// ChangePasswordRequest represents a password change request
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

// ForgotPassword creates a reset token and mails it. The response is the same
// whether or not the email is registered.
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req ForgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Email = validation.NormalizeEmail(req.Email)
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	var user model.User
	if err := h.db.Where("email = ? AND is_active = ?", req.Email, true).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[AUTH] forgot password lookup: %v", err)
		}
		return response.SuccessWithMessage(c, forgotPasswordMessage, nil)
	}

	token, err := crypto.RandomToken()
	if err != nil {
		return response.InternalServerError(c, "Failed to create reset token")
	}

	reset := model.PasswordResetToken{
		UserID:    user.ID,
		TokenHash: authutil.HashResetToken(token),
		ExpiresAt: time.Now().Add(ResetTokenTTL),
	}
	if err := h.db.Create(&reset).Error; err != nil {
		return response.InternalServerError(c, "Failed to create reset token")
	}

	if h.mailer != nil {
		if err := h.mailer.SendPasswordResetEmail(user.Email, token, user.Name); err != nil {
			log.Printf("[AUTH] reset email to user %d not sent: %v", user.ID, err)
		}
	}

	return response.SuccessWithMessage(c, forgotPasswordMessage, nil)
}

// ResetPassword sets a new password using a single-use reset token
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}
	if ok, problems := validation.ValidatePassword(req.NewPassword); !ok {
		return response.ErrorWithDetails(c, fiber.StatusBadRequest, "Password is too weak", "WEAK_PASSWORD", problems)
	}

	var reset model.PasswordResetToken
	if err := h.db.Where("token_hash = ?", authutil.HashResetToken(req.Token)).First(&reset).Error; err != nil {
		return response.Error(c, fiber.StatusBadRequest, "Invalid or expired reset token", "INVALID_RESET_TOKEN")
	}

	now := time.Now()
	if !reset.IsUsable(now) {
		return response.Error(c, fiber.StatusBadRequest, "Invalid or expired reset token", "INVALID_RESET_TOKEN")
	}

	hashedPassword, err := authutil.HashPassword(req.NewPassword)
	if err != nil {
		return response.InternalServerError(c, "Failed to process password")
	}

	ctx := c.UserContext()
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// claim the token; a concurrent reset with the same token loses here
		claim := tx.Model(&model.PasswordResetToken{}).
			Where("id = ? AND used_at IS NULL", reset.ID).
			Update("used_at", now)
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return errResetTokenUsed
		}

		if err := tx.Model(&model.User{}).Where("id = ?", reset.UserID).Update("password_hash", hashedPassword).Error; err != nil {
			return err
		}
		return authutil.NewBlacklistService(tx).RevokeAllUserTokens(ctx, reset.UserID)
	})
	if err != nil {
		if errors.Is(err, errResetTokenUsed) {
			return response.Error(c, fiber.StatusBadRequest, "Invalid or expired reset token", "INVALID_RESET_TOKEN")
		}
		return response.InternalServerError(c, "Failed to update password")
	}

	return response.SuccessWithMessage(c, "Password reset successfully", nil)
}

var errResetTokenUsed = errors.New("reset token already used")

// ChangePassword handles password change for authenticated users
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	var req ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}
	if ok, problems := validation.ValidatePassword(req.NewPassword); !ok {
		return response.ErrorWithDetails(c, fiber.StatusBadRequest, "Password is too weak", "WEAK_PASSWORD", problems)
	}

	if err := authutil.VerifyPassword(user.PasswordHash, req.OldPassword); err != nil {
		return response.Error(c, fiber.StatusBadRequest, "Current password is incorrect", "INVALID_PASSWORD")
	}

	hashedPassword, err := authutil.HashPassword(req.NewPassword)
	if err != nil {
		return response.InternalServerError(c, "Failed to process password")
	}

	ctx := c.UserContext()
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.User{}).Where("id = ?", user.ID).Update("password_hash", hashedPassword).Error; err != nil {
			return err
		}
		return authutil.NewBlacklistService(tx).RevokeAllUserTokens(ctx, user.ID)
	})
	if err != nil {
		return response.InternalServerError(c, "Failed to update password")
	}

	return response.SuccessWithMessage(c, "Password changed successfully. Please login again with your new password", nil)
}
