package auth

import (
	"log"

	"github.com/NagallaThanvi/unilink/model"
	authutil "github.com/NagallaThanvi/unilink/utils/auth"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/gofiber/fiber/v2"
)

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshToken exchanges a refresh token for a new pair. The old refresh
// token is blacklisted so it cannot be replayed.
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	var req RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	claims, err := h.jwtManager.ValidateToken(req.RefreshToken)
	if err != nil {
		return response.Unauthorized(c, "Invalid or expired refresh token")
	}
	if claims.TokenType != authutil.TokenTypeRefresh {
		return response.Unauthorized(c, "Invalid token type")
	}

	ctx := c.UserContext()
	isRevoked, err := h.blacklistService.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to check token status")
	}
	if isRevoked {
		return response.Unauthorized(c, "Token has been revoked")
	}

	var user model.User
	if err := h.db.First(&user, claims.UserID).Error; err != nil {
		return response.Unauthorized(c, "User not found")
	}
	if user.TokenVersion != claims.TokenVersion {
		return response.Unauthorized(c, "Token has been invalidated")
	}
	if !user.IsActive {
		return response.Forbidden(c, "Account is deactivated")
	}

	tokens, err := h.jwtManager.GenerateTokenPair(subjectFor(&user))
	if err != nil {
		return response.InternalServerError(c, "Failed to generate tokens")
	}

	if err := h.blacklistService.RevokeToken(ctx, claims.ID, user.ID, claims.ExpiresAt.Time, "token_refresh"); err != nil {
		// the old token still expires on its own
		log.Printf("[AUTH] failed to blacklist refresh token for user %d: %v", user.ID, err)
	}

	return response.Success(c, AuthResponse{User: NewUserResponse(&user), TokenPair: tokens})
}

// Logout blacklists the access token used for the request
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	if err := h.blacklistService.RevokeToken(c.UserContext(), claims.ID, claims.UserID, claims.ExpiresAt.Time, "logout"); err != nil {
		return response.InternalServerError(c, "Failed to logout")
	}

	return response.SuccessWithMessage(c, "Successfully logged out", nil)
}
