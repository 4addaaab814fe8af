package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// credentialRetries bounds regeneration when the store rejects a generated
// recovery code or license key as a duplicate.
const credentialRetries = 5

// ServiceConfig carries the policy knobs of the lifecycle service.
type ServiceConfig struct {
	// LockThreshold is the failed-attempt count that disables an account.
	LockThreshold int
	// VerboseLoginErrors switches login failures from the hardened unified
	// "invalid username or password" message to the legacy per-cause
	// messages with attempts remaining. Lockout mechanics are identical in
	// both modes.
	VerboseLoginErrors bool
	// BootstrapAdmin is the distinguished username that registers with the
	// admin role. Compared case-insensitively.
	BootstrapAdmin string
}

// DefaultServiceConfig returns the standard knobs: three-strike lockout,
// hardened login messages, "admin" bootstrap.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		LockThreshold:      LockThreshold,
		VerboseLoginErrors: false,
		BootstrapAdmin:     "admin",
	}
}

// Service is the account lifecycle manager. It owns no durable state; every
// durable fact lives in the Store.
type Service struct {
	store   Store
	hasher  *Hasher
	policy  *PasswordPolicy
	auditor Auditor
	logger  *slog.Logger
	cfg     ServiceConfig
}

// NewService constructs a Service. A nil auditor or logger falls back to a
// no-op auditor and slog.Default.
func NewService(store Store, cfg ServiceConfig, auditor Auditor, logger *slog.Logger) *Service {
	if cfg.LockThreshold <= 0 {
		cfg.LockThreshold = LockThreshold
	}
	if cfg.BootstrapAdmin == "" {
		cfg.BootstrapAdmin = "admin"
	}
	if auditor == nil {
		auditor = NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		hasher:  NewHasher(),
		policy:  NewPasswordPolicy(),
		auditor: auditor,
		logger:  logger,
		cfg:     cfg,
	}
}

// Policy exposes the password policy, e.g. for interactive per-rule feedback.
func (s *Service) Policy() *PasswordPolicy { return s.policy }

// Hasher exposes the credential hasher for collaborators that verify
// passwords outside the lifecycle flows.
func (s *Service) Hasher() *Hasher { return s.hasher }

// RegisterResult is returned exactly once at registration; the recovery code
// and license key are not retrievable later other than by regeneration.
type RegisterResult struct {
	Account      *Profile
	RecoveryCode string
	LicenseKey   string
}

// Register creates a new account. Cheap format and policy checks run before
// any hashing or store access.
func (s *Service) Register(ctx context.Context, username, password, email string) (*RegisterResult, error) {
	if !ValidUsername(username) {
		return nil, ErrInvalidUsername
	}
	email = NormalizeEmail(email)
	if email != "" && !ValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if err := s.policy.weakPassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	role := RoleUser
	if strings.EqualFold(username, s.cfg.BootstrapAdmin) {
		role = RoleAdmin
	}

	// The store guarantees credential uniqueness; on a collision we draw
	// fresh values and try again.
	for attempt := 0; attempt < credentialRetries; attempt++ {
		recoveryCode, err := NewRecoveryCode()
		if err != nil {
			return nil, fmt.Errorf("generating recovery code: %w", err)
		}
		licenseKey, err := NewLicenseKey()
		if err != nil {
			return nil, fmt.Errorf("generating license key: %w", err)
		}

		a := &Account{
			Username:     username,
			PasswordHash: hash,
			Role:         role,
			Email:        email,
			RecoveryCode: recoveryCode,
			LicenseKey:   licenseKey,
		}

		err = s.store.Insert(ctx, a)
		switch {
		case err == nil:
			s.auditor.Record(ctx, AuditRegistered, username, "role="+string(role))
			s.logger.Info("account registered", "username", username, "role", role)
			return &RegisterResult{
				Account:      a.Profile(),
				RecoveryCode: recoveryCode,
				LicenseKey:   licenseKey,
			}, nil
		case errors.Is(err, ErrDuplicateUsername):
			return nil, ErrConflict
		case errors.Is(err, ErrDuplicateEmail):
			return nil, ErrEmailTaken
		case errors.Is(err, ErrDuplicateCredential):
			continue
		default:
			return nil, storeErr("insert", err)
		}
	}
	return nil, storeErr("insert", ErrDuplicateCredential)
}

// Login evaluates one login attempt. A locked account is refused before any
// hash comparison. On a wrong password the counter increment and the
// conditional lock are a single atomic store step.
func (s *Service) Login(ctx context.Context, username, password string) (*Profile, error) {
	a, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			if s.cfg.VerboseLoginErrors {
				return nil, ErrNotFound
			}
			return nil, ErrInvalidCredentials
		}
		return nil, storeErr("get", err)
	}

	if a.Disabled {
		s.auditor.Record(ctx, AuditLoginFailed, username, "account locked")
		return nil, ErrLocked
	}

	if s.hasher.Verify(password, a.PasswordHash) {
		if a.FailedAttempts != 0 {
			a.FailedAttempts = 0
			if err := s.store.Update(ctx, a); err != nil {
				return nil, storeErr("reset attempts", err)
			}
		}
		s.auditor.Record(ctx, AuditLoginSucceeded, username, "")
		return a.Profile(), nil
	}

	attempts, disabled, err := s.store.ApplyFailedAttempt(ctx, a.ID, s.cfg.LockThreshold)
	if err != nil {
		return nil, storeErr("record failed attempt", err)
	}

	if disabled {
		s.auditor.Record(ctx, AuditLocked, username, fmt.Sprintf("after %d failed attempts", attempts))
		s.logger.Warn("account locked", "username", username, "attempts", attempts)
		return nil, ErrLockedNow
	}

	s.auditor.Record(ctx, AuditLoginFailed, username, fmt.Sprintf("attempt %d", attempts))
	if s.cfg.VerboseLoginErrors {
		return nil, &WrongPasswordError{AttemptsLeft: s.cfg.LockThreshold - attempts}
	}
	return nil, ErrInvalidCredentials
}

// ChangePassword rotates the password of the account identified by id. The
// policy check runs first so a weak candidate never reaches the hasher; then
// the current password is verified. Hash, counter, and disabled flag change
// together.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, currentPassword, newPassword string) error {
	if err := s.policy.weakPassword(newPassword); err != nil {
		return err
	}

	a, err := s.getByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(currentPassword, a.PasswordHash) {
		return ErrAuthFailed
	}
	if newPassword == currentPassword {
		return ErrSamePassword
	}

	if err := s.setPassword(ctx, a, newPassword); err != nil {
		return err
	}
	s.auditor.Record(ctx, AuditPasswordChanged, a.Username, "")
	return nil
}

// AdminResetPassword sets a new password on the target after the admin
// re-verifies their own password. There is no same-password check against
// the target, since the admin cannot know the target's current password.
func (s *Service) AdminResetPassword(ctx context.Context, adminID uuid.UUID, adminPassword, targetUsername, newPassword string) error {
	admin, err := s.getByID(ctx, adminID)
	if err != nil {
		return err
	}
	if !admin.IsAdmin() || !s.hasher.Verify(adminPassword, admin.PasswordHash) {
		return ErrAdminAuthFailed
	}

	if err := s.policy.weakPassword(newPassword); err != nil {
		return err
	}

	target, err := s.getByUsername(ctx, targetUsername)
	if err != nil {
		return err
	}
	if err := s.setPassword(ctx, target, newPassword); err != nil {
		return err
	}
	s.auditor.Record(ctx, AuditPasswordReset, target.Username, "by admin "+admin.Username)
	s.logger.Info("password reset by admin", "admin", admin.Username, "target", target.Username)
	return nil
}

// Unlock clears the lockout state of the target. Unlocking an already-active
// account is a no-op success.
func (s *Service) Unlock(ctx context.Context, targetUsername string) error {
	a, err := s.getByUsername(ctx, targetUsername)
	if err != nil {
		return err
	}
	if !a.Disabled && a.FailedAttempts == 0 {
		return nil
	}
	a.Disabled = false
	a.FailedAttempts = 0
	if err := s.store.Update(ctx, a); err != nil {
		return storeErr("unlock", err)
	}
	s.auditor.Record(ctx, AuditUnlocked, a.Username, "")
	return nil
}

// RecoverPassword resets a forgotten password given the account's email and
// a recovery proof. The proof may be the recovery code or the license key;
// both are accepted on purpose, matching the platform's historic behavior.
func (s *Service) RecoverPassword(ctx context.Context, username, email, proof, newPassword string) error {
	a, err := s.getByUsername(ctx, username)
	if err != nil {
		return err
	}
	if a.Email == "" || NormalizeEmail(email) != NormalizeEmail(a.Email) {
		return ErrEmailMismatch
	}
	if !proofMatches(a, proof) {
		s.auditor.Record(ctx, AuditLoginFailed, username, "bad recovery proof")
		return ErrInvalidProof
	}
	if err := s.policy.weakPassword(newPassword); err != nil {
		return err
	}
	if s.hasher.Verify(newPassword, a.PasswordHash) {
		return ErrSamePassword
	}

	if err := s.setPassword(ctx, a, newPassword); err != nil {
		return err
	}
	s.auditor.Record(ctx, AuditRecovered, a.Username, "password reset via recovery proof")
	s.logger.Info("password recovered", "username", a.Username)
	return nil
}

// RecoverUsername returns the username tied to an email address given a valid
// recovery proof. Read-only; nothing is mutated.
func (s *Service) RecoverUsername(ctx context.Context, email, proof string) (string, error) {
	a, err := s.store.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return "", ErrNotFound
		}
		return "", storeErr("get by email", err)
	}
	if !proofMatches(a, proof) {
		return "", ErrInvalidProof
	}
	s.auditor.Record(ctx, AuditRecovered, a.Username, "username recovered")
	return a.Username, nil
}

// DeleteSelf removes the caller's own account after re-authentication with
// the current password. Irreversible.
func (s *Service) DeleteSelf(ctx context.Context, id uuid.UUID, password string) error {
	a, err := s.getByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(password, a.PasswordHash) {
		return ErrAuthFailed
	}
	if err := s.store.Delete(ctx, a.ID); err != nil {
		return storeErr("delete", err)
	}
	s.auditor.Record(ctx, AuditDeleted, a.Username, "self-service delete")
	return nil
}

// AdminDelete removes the target account. Admins must not delete themselves
// through this path. No password re-check is performed; that asymmetry with
// DeleteSelf is inherited platform behavior.
func (s *Service) AdminDelete(ctx context.Context, adminUsername, targetUsername string) error {
	if adminUsername == targetUsername {
		return ErrSelfDeleteForbidden
	}
	target, err := s.getByUsername(ctx, targetUsername)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, target.ID); err != nil {
		return storeErr("delete", err)
	}
	s.auditor.Record(ctx, AuditDeleted, target.Username, "deleted by admin "+adminUsername)
	return nil
}

// Rename changes an account's username. The new name must satisfy the format
// check and remain unique; the store rejects duplicates.
func (s *Service) Rename(ctx context.Context, id uuid.UUID, newUsername string) error {
	if !ValidUsername(newUsername) {
		return ErrInvalidUsername
	}
	a, err := s.getByID(ctx, id)
	if err != nil {
		return err
	}
	old := a.Username
	a.Username = newUsername
	if err := s.store.Update(ctx, a); err != nil {
		if errors.Is(err, ErrDuplicateUsername) {
			return ErrConflict
		}
		return storeErr("rename", err)
	}
	s.auditor.Record(ctx, AuditRenamed, newUsername, "was "+old)
	return nil
}

// RegenerateRecoveryCode replaces the account's recovery code and returns the
// new value. The previous code stops working immediately.
func (s *Service) RegenerateRecoveryCode(ctx context.Context, id uuid.UUID, password string) (string, error) {
	a, err := s.getByID(ctx, id)
	if err != nil {
		return "", err
	}
	if !s.hasher.Verify(password, a.PasswordHash) {
		return "", ErrAuthFailed
	}
	for attempt := 0; attempt < credentialRetries; attempt++ {
		code, err := NewRecoveryCode()
		if err != nil {
			return "", fmt.Errorf("generating recovery code: %w", err)
		}
		a.RecoveryCode = code
		err = s.store.Update(ctx, a)
		switch {
		case err == nil:
			s.auditor.Record(ctx, AuditRecovered, a.Username, "recovery code regenerated")
			return code, nil
		case errors.Is(err, ErrDuplicateCredential):
			continue
		default:
			return "", storeErr("regenerate recovery code", err)
		}
	}
	return "", storeErr("regenerate recovery code", ErrDuplicateCredential)
}

// List returns the public view of every account, for the admin surface.
func (s *Service) List(ctx context.Context) ([]*Profile, error) {
	accounts, err := s.store.List(ctx)
	if err != nil {
		return nil, storeErr("list", err)
	}
	profiles := make([]*Profile, 0, len(accounts))
	for _, a := range accounts {
		profiles = append(profiles, a.Profile())
	}
	return profiles, nil
}

// Get returns the public view of one account by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	a, err := s.getByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.Profile(), nil
}

// GetByUsername returns the full account record for collaborators inside the
// trust boundary (token minting needs the role).
func (s *Service) GetByUsername(ctx context.Context, username string) (*Account, error) {
	return s.getByUsername(ctx, username)
}

// setPassword applies a password-setting transition: the hash, the counter,
// and the disabled flag always change as one update.
func (s *Service) setPassword(ctx context.Context, a *Account, newPassword string) error {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	a.PasswordHash = hash
	a.FailedAttempts = 0
	a.Disabled = false
	if err := s.store.Update(ctx, a); err != nil {
		return storeErr("set password", err)
	}
	return nil
}

func (s *Service) getByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr("get by id", err)
	}
	return a, nil
}

func (s *Service) getByUsername(ctx context.Context, username string) (*Account, error) {
	a, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr("get by username", err)
	}
	return a, nil
}
