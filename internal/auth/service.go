package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arturkam25/intelplatform/internal/account"
	"github.com/arturkam25/intelplatform/internal/repository"
)

// Service issues and rotates sessions on top of the account core. The
// account rules themselves (lockout, policy, recovery) live in
// account.Service; this layer only adds tokens.
type Service struct {
	accounts *account.Service
	tokens   *TokenService
	sessions repository.SessionRepository
	logger   *slog.Logger
}

// NewService creates a new auth service.
func NewService(accounts *account.Service, tokens *TokenService, sessions repository.SessionRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		accounts: accounts,
		tokens:   tokens,
		sessions: sessions,
		logger:   logger,
	}
}

// Accounts exposes the underlying account service for handlers that
// call account operations directly.
func (s *Service) Accounts() *account.Service {
	return s.accounts
}

// LoginResult carries the authenticated profile and its token pair.
type LoginResult struct {
	Profile *account.Profile
	Tokens  *TokenPair
}

// Login authenticates credentials and opens a session.
func (s *Service) Login(ctx context.Context, username, password, ipAddress, userAgent string) (*LoginResult, error) {
	profile, err := s.accounts.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	accountID, err := uuid.Parse(profile.ID)
	if err != nil {
		return nil, fmt.Errorf("parse account id: %w", err)
	}

	tokens, err := s.tokens.GenerateTokenPair(profile.ID, profile.Username, profile.Role)
	if err != nil {
		return nil, fmt.Errorf("generate tokens: %w", err)
	}

	if err := s.createSession(ctx, accountID, tokens.RefreshToken, ipAddress, userAgent); err != nil {
		return nil, err
	}

	return &LoginResult{Profile: profile, Tokens: tokens}, nil
}

// Refresh rotates a refresh token: validates it, checks the stored
// session, deletes it, and issues a fresh pair with a new session.
func (s *Service) Refresh(ctx context.Context, refreshToken, ipAddress, userAgent string) (*TokenPair, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, account.ErrInvalidCredentials
	}

	tokenHash := s.tokens.HashRefreshToken(refreshToken)
	session, err := s.sessions.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, account.ErrInvalidCredentials
	}
	if time.Now().After(session.ExpiresAt) {
		_ = s.sessions.DeleteByTokenHash(ctx, tokenHash)
		return nil, account.ErrInvalidCredentials
	}

	accountID, err := uuid.Parse(claims.AccountID())
	if err != nil || session.AccountID != accountID {
		return nil, account.ErrInvalidCredentials
	}

	profile, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, account.ErrInvalidCredentials
	}
	if profile.Disabled {
		_, _ = s.sessions.DeleteForAccount(ctx, accountID)
		return nil, account.ErrLocked
	}

	if err := s.sessions.DeleteByTokenHash(ctx, tokenHash); err != nil {
		s.logger.Warn("failed to delete rotated session", "error", err)
	}

	tokens, err := s.tokens.GenerateTokenPair(profile.ID, profile.Username, profile.Role)
	if err != nil {
		return nil, fmt.Errorf("generate tokens: %w", err)
	}
	if err := s.createSession(ctx, accountID, tokens.RefreshToken, ipAddress, userAgent); err != nil {
		return nil, err
	}
	return tokens, nil
}

// Logout invalidates the session behind the given refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	tokenHash := s.tokens.HashRefreshToken(refreshToken)
	if err := s.sessions.DeleteByTokenHash(ctx, tokenHash); err != nil {
		if err == repository.ErrSessionNotFound {
			return nil
		}
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// LogoutAll invalidates every session for the account.
func (s *Service) LogoutAll(ctx context.Context, accountID uuid.UUID) error {
	if _, err := s.sessions.DeleteForAccount(ctx, accountID); err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	return nil
}

func (s *Service) createSession(ctx context.Context, accountID uuid.UUID, refreshToken, ipAddress, userAgent string) error {
	session := &repository.Session{
		ID:        uuid.New(),
		AccountID: accountID,
		TokenHash: s.tokens.HashRefreshToken(refreshToken),
		ExpiresAt: time.Now().Add(s.tokens.RefreshTokenExpiry()),
		CreatedAt: time.Now(),
	}
	if ipAddress != "" {
		session.IPAddress = &ipAddress
	}
	if userAgent != "" {
		session.UserAgent = &userAgent
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}
