package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrInvalidClaims = errors.New("invalid token claims")
)

// Token types carried in Claims.TokenType
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	Expiry        time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

// Claims represents JWT claims
type Claims struct {
	UserID       uint   `json:"user_id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	UniversityID *uint  `json:"university_id,omitempty"`
	TokenType    string `json:"token_type"`    // "access" or "refresh"
	TokenVersion int    `json:"token_version"` // For invalidating all tokens
	jwt.RegisteredClaims
}

// Subject identifies the user a token is minted for
type Subject struct {
	UserID       uint
	Email        string
	Role         string
	UniversityID *uint
	TokenVersion int
}

// TokenPair is returned on login, register and refresh
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"`
}

// JWTManager handles JWT token operations
type JWTManager struct {
	config JWTConfig
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(config JWTConfig) *JWTManager {
	if config.Expiry == 0 {
		config.Expiry = 24 * time.Hour
	}
	if config.RefreshExpiry == 0 {
		config.RefreshExpiry = 7 * 24 * time.Hour
	}
	return &JWTManager{
		config: config,
	}
}

func (j *JWTManager) generate(sub Subject, tokenType string, ttl time.Duration) (string, *Claims, error) {
	now := time.Now()

	claims := &Claims{
		UserID:       sub.UserID,
		Email:        sub.Email,
		Role:         sub.Role,
		UniversityID: sub.UniversityID,
		TokenType:    tokenType,
		TokenVersion: sub.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
			Subject:   sub.Email,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(j.config.Secret))
	return signed, claims, err
}

// GenerateAccessToken generates a new access token with a fresh JTI
func (j *JWTManager) GenerateAccessToken(sub Subject) (string, *Claims, error) {
	return j.generate(sub, TokenTypeAccess, j.config.Expiry)
}

// GenerateRefreshToken generates a new refresh token with a fresh JTI
func (j *JWTManager) GenerateRefreshToken(sub Subject) (string, *Claims, error) {
	return j.generate(sub, TokenTypeRefresh, j.config.RefreshExpiry)
}

// GenerateTokenPair mints an access and refresh token for the subject
func (j *JWTManager) GenerateTokenPair(sub Subject) (*TokenPair, error) {
	access, accessClaims, err := j.GenerateAccessToken(sub)
	if err != nil {
		return nil, err
	}
	refresh, _, err := j.GenerateRefreshToken(sub)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    accessClaims.ExpiresAt.Time,
		TokenType:    "Bearer",
	}, nil
}

// ValidateToken validates a JWT token and returns claims
func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(j.config.Secret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}

	return claims, nil
}
