package auth

import (
	"errors"
	"log"
	"time"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services"
	"github.com/NagallaThanvi/unilink/services/outbox"
	authutil "github.com/NagallaThanvi/unilink/utils/auth"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/NagallaThanvi/unilink/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ResetMailer delivers password reset links
type ResetMailer interface {
	SendPasswordResetEmail(toEmail, resetToken, userName string) error
}

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	db                   *gorm.DB
	jwtManager           *authutil.JWTManager
	blacklistService     *authutil.BlacklistService
	bruteForceProtection *middleware.BruteForceProtection
	analytics            *services.AnalyticsService
	mailer               ResetMailer
	validator            *validation.Validator
}

// NewAuthHandler creates a new auth handler. mailer may be nil, in which case
// reset tokens are created but not delivered.
func NewAuthHandler(db *gorm.DB, jwtManager *authutil.JWTManager, bruteForceProtection *middleware.BruteForceProtection, mailer ResetMailer) *AuthHandler {
	return &AuthHandler{
		db:                   db,
		jwtManager:           jwtManager,
		blacklistService:     authutil.NewBlacklistService(db),
		bruteForceProtection: bruteForceProtection,
		analytics:            services.NewAnalyticsService(db),
		mailer:               mailer,
		validator:            validation.NewValidator(),
	}
}

// RegisterRequest represents a user registration request. Administrative
// roles are granted by admins, never self-assigned.
type RegisterRequest struct {
	Email        string `json:"email" validate:"required,email,max=254"`
	Password     string `json:"password" validate:"required,min=8,max=72"`
	Name         string `json:"name" validate:"required,min=2,max=100"`
	Role         string `json:"role" validate:"omitempty,oneof=student alumni faculty"`
	UniversityID *uint  `json:"university_id"`
}

// AuthResponse is returned by register, login and refresh
type AuthResponse struct {
	User UserResponse `json:"user"`
	*authutil.TokenPair
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID           uint       `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	Role         string     `json:"role"`
	UniversityID *uint      `json:"university_id,omitempty"`
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewUserResponse shapes a user for API responses
func NewUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Role:         u.Role,
		UniversityID: u.UniversityID,
		IsActive:     u.IsActive,
		LastLoginAt:  u.LastLoginAt,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func subjectFor(u *model.User) authutil.Subject {
	return authutil.Subject{
		UserID:       u.ID,
		Email:        u.Email,
		Role:         u.Role,
		UniversityID: u.UniversityID,
		TokenVersion: u.TokenVersion,
	}
}

// Register handles user registration
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	req.Email = validation.NormalizeEmail(req.Email)
	req.Name = validation.SanitizeString(req.Name)

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	// Validate password strength
	if ok, problems := validation.ValidatePassword(req.Password); !ok {
		return response.ErrorWithDetails(c, fiber.StatusBadRequest, "Password is too weak", "WEAK_PASSWORD", problems)
	}

	// Set default role if not provided
	if req.Role == "" {
		req.Role = model.RoleStudent
	}

	if req.UniversityID != nil {
		var university model.University
		if err := h.db.Where("id = ? AND is_active = ?", *req.UniversityID, true).First(&university).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return response.Error(c, fiber.StatusBadRequest, "University not found", "UNIVERSITY_NOT_FOUND")
			}
			return response.InternalServerError(c, "Failed to fetch university")
		}
	}

	// Check if user already exists
	var count int64
	if err := h.db.Model(&model.User{}).Where("email = ?", req.Email).Count(&count).Error; err != nil {
		return response.InternalServerError(c, "Failed to check email")
	}
	if count > 0 {
		return response.ConflictWithCode(c, "EMAIL_EXISTS", "User with this email already exists")
	}

	hashedPassword, err := authutil.HashPassword(req.Password)
	if err != nil {
		return response.InternalServerError(c, "Failed to process password")
	}

	user := model.User{
		Email:        req.Email,
		PasswordHash: hashedPassword,
		Name:         req.Name,
		Role:         req.Role,
		UniversityID: req.UniversityID,
		IsActive:     true,
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return outbox.Add(tx, model.OutboxEntityUser, user.ID, model.OutboxOpUpsert, nil)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return response.ConflictWithCode(c, "EMAIL_EXISTS", "User with this email already exists")
		}
		log.Printf("[AUTH] register %s: %v", req.Email, err)
		return response.InternalServerError(c, "Failed to create user")
	}

	tokens, err := h.jwtManager.GenerateTokenPair(subjectFor(&user))
	if err != nil {
		return response.InternalServerError(c, "Failed to generate tokens")
	}

	return response.Created(c, AuthResponse{User: NewUserResponse(&user), TokenPair: tokens})
}
