// Package auth exposes the account core over HTTP: JWT access/refresh
// tokens, persisted sessions, and the API handlers.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/arturkam25/intelplatform/internal/account"
)

// TokenType represents the type of JWT token.
type TokenType string

const (
	AccessTokenType  TokenType = "access"
	RefreshTokenType TokenType = "refresh"
)

// Claims is the JWT claims structure. Subject carries the account id.
type Claims struct {
	Username string       `json:"username,omitempty"`
	Role     account.Role `json:"role,omitempty"`
	Type     TokenType    `json:"type"`
	jwt.RegisteredClaims
}

// AccountID returns the account id from the Subject claim.
func (c *Claims) AccountID() string {
	return c.Subject
}

// TokenService handles JWT token generation and validation.
type TokenService struct {
	accessSecret       string
	refreshSecret      string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	issuer             string
}

// TokenServiceConfig holds configuration for TokenService.
type TokenServiceConfig struct {
	AccessSecret       string
	RefreshSecret      string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
}

// NewTokenService creates a new TokenService instance.
func NewTokenService(cfg TokenServiceConfig) *TokenService {
	return &TokenService{
		accessSecret:       cfg.AccessSecret,
		refreshSecret:      cfg.RefreshSecret,
		accessTokenExpiry:  cfg.AccessTokenExpiry,
		refreshTokenExpiry: cfg.RefreshTokenExpiry,
		issuer:             cfg.Issuer,
	}
}

// TokenPair represents a pair of access and refresh tokens.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// GenerateAccessToken generates a new access token for the given account.
func (s *TokenService) GenerateAccessToken(accountID, username string, role account.Role) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		Role:     role,
		Type:     AccessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.accessSecret))
}

// GenerateRefreshToken generates a new refresh token for the given account.
func (s *TokenService) GenerateRefreshToken(accountID string) (string, error) {
	now := time.Now()
	claims := Claims{
		Type: RefreshTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTokenExpiry)),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.refreshSecret))
}

// GenerateTokenPair generates both access and refresh tokens.
func (s *TokenService) GenerateTokenPair(accountID, username string, role account.Role) (*TokenPair, error) {
	accessToken, err := s.GenerateAccessToken(accountID, username, role)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.GenerateRefreshToken(accountID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.accessTokenExpiry.Seconds()),
	}, nil
}

// ValidateAccessToken validates an access token and returns the claims.
func (s *TokenService) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.validateToken(tokenString, s.accessSecret, AccessTokenType)
}

// ValidateRefreshToken validates a refresh token and returns the claims.
func (s *TokenService) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return s.validateToken(tokenString, s.refreshSecret, RefreshTokenType)
}

func (s *TokenService) validateToken(tokenString, secret string, expectedType TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Type != expectedType {
		return nil, errors.New("invalid token type")
	}
	return claims, nil
}

// HashRefreshToken creates a SHA-256 hash of the refresh token for storage.
func (s *TokenService) HashRefreshToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// RefreshTokenExpiry returns the refresh token expiry duration.
func (s *TokenService) RefreshTokenExpiry() time.Duration {
	return s.refreshTokenExpiry
}
