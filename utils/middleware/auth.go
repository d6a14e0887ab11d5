package middleware

import (
	"errors"
	"strings"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/utils/auth"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// errAuth carries the client-facing reason for a rejected token
type errAuth struct {
	status  int
	message string
}

func (e *errAuth) Error() string { return e.message }

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	jwtManager       *auth.JWTManager
	blacklistService *auth.BlacklistService
	db               *gorm.DB
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtManager *auth.JWTManager, db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager:       jwtManager,
		blacklistService: auth.NewBlacklistService(db),
		db:               db,
	}
}

// authenticate validates the bearer token and loads the user it belongs to
func (m *AuthMiddleware) authenticate(c *fiber.Ctx) (*model.User, *auth.Claims, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return nil, nil, &errAuth{fiber.StatusUnauthorized, "Missing authorization token"}
	}

	// Extract token from "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, nil, &errAuth{fiber.StatusUnauthorized, "Invalid authorization format"}
	}

	claims, err := m.jwtManager.ValidateToken(parts[1])
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			return nil, nil, &errAuth{fiber.StatusUnauthorized, "Token has expired"}
		}
		return nil, nil, &errAuth{fiber.StatusUnauthorized, "Invalid token"}
	}

	if claims.TokenType != auth.TokenTypeAccess {
		return nil, nil, &errAuth{fiber.StatusUnauthorized, "Invalid token type"}
	}

	isRevoked, err := m.blacklistService.IsTokenRevoked(c.UserContext(), claims.ID)
	if err != nil {
		return nil, nil, err
	}
	if isRevoked {
		return nil, nil, &errAuth{fiber.StatusUnauthorized, "Token has been revoked"}
	}

	var user model.User
	if err := m.db.WithContext(c.UserContext()).First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, &errAuth{fiber.StatusUnauthorized, "User not found"}
		}
		return nil, nil, err
	}

	if user.TokenVersion != claims.TokenVersion {
		return nil, nil, &errAuth{fiber.StatusUnauthorized, "Token has been invalidated"}
	}
	if !user.IsActive {
		return nil, nil, &errAuth{fiber.StatusForbidden, "Account is deactivated"}
	}

	return &user, claims, nil
}

func storeIdentity(c *fiber.Ctx, user *model.User, claims *auth.Claims) {
	c.Locals("user_id", user.ID)
	c.Locals("user_email", user.Email)
	c.Locals("user_role", user.Role)
	c.Locals("claims", claims)
	c.Locals("user", user)
	c.Locals("token_jti", claims.ID)
}

func rejectAuth(c *fiber.Ctx, err error) error {
	var ae *errAuth
	if errors.As(err, &ae) {
		if ae.status == fiber.StatusForbidden {
			return response.Forbidden(c, ae.message)
		}
		return response.Unauthorized(c, ae.message)
	}
	return response.InternalServerError(c, "Failed to verify credentials")
}

// Required is middleware that requires a valid JWT token
func (m *AuthMiddleware) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, claims, err := m.authenticate(c)
		if err != nil {
			return rejectAuth(c, err)
		}
		storeIdentity(c, user, claims)
		return c.Next()
	}
}

// Optional is middleware that allows requests with or without a token.
// An invalid token is treated as anonymous.
func (m *AuthMiddleware) Optional() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get("Authorization") == "" {
			return c.Next()
		}
		if user, claims, err := m.authenticate(c); err == nil {
			storeIdentity(c, user, claims)
		}
		return c.Next()
	}
}

// RequireRole is middleware that requires one of the given roles.
// Must run after Required.
func (m *AuthMiddleware) RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := GetUserRole(c)
		if !ok {
			return response.Forbidden(c, "Access denied")
		}

		for _, r := range roles {
			if role == r {
				return c.Next()
			}
		}

		return response.Forbidden(c, "Insufficient permissions")
	}
}

// RequireAdmin validates the token and requires the platform admin role
func (m *AuthMiddleware) RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, claims, err := m.authenticate(c)
		if err != nil {
			return rejectAuth(c, err)
		}

		if !user.IsAdmin() {
			return response.Forbidden(c, "Admin access required")
		}

		storeIdentity(c, user, claims)
		return c.Next()
	}
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) (uint, bool) {
	id, ok := c.Locals("user_id").(uint)
	return id, ok
}

// GetUserRole extracts user role from context
func GetUserRole(c *fiber.Ctx) (string, bool) {
	r, ok := c.Locals("user_role").(string)
	return r, ok
}

// GetUser extracts full user object from context
func GetUser(c *fiber.Ctx) (*model.User, bool) {
	u, ok := c.Locals("user").(*model.User)
	return u, ok
}

// GetClaims extracts full claims from context
func GetClaims(c *fiber.Ctx) (*auth.Claims, bool) {
	claims, ok := c.Locals("claims").(*auth.Claims)
	return claims, ok
}

// GetTokenJTI extracts the token JTI from context
func GetTokenJTI(c *fiber.Ctx) (string, bool) {
	j, ok := c.Locals("token_jti").(string)
	return j, ok
}
