// Package account implements the account lifecycle core: registration,
// credential verification, failed-login tracking and lockout, password
// change, and credential-based recovery. Durable state lives behind the
// Store interface; the service itself is stateless between calls.
package account

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role determines the privilege gate for an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// LockThreshold is the number of consecutive failed logins that disables
// an account.
const LockThreshold = 3

// Account is a single credentialed identity with a role and security state.
// PasswordHash, RecoveryCode, and LicenseKey never appear in logs or API
// responses; use Profile for anything caller-facing.
type Account struct {
	ID             uuid.UUID
	Username       string
	PasswordHash   string
	Role           Role
	Disabled       bool
	Email          string
	LicenseKey     string
	RecoveryCode   string
	FailedAttempts int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Profile is the caller-facing view of an account. It carries no credential
// material.
type Profile struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Role           Role      `json:"role"`
	Disabled       bool      `json:"disabled"`
	Email          string    `json:"email,omitempty"`
	FailedAttempts int       `json:"failed_attempts"`
	CreatedAt      time.Time `json:"created_at"`
}

// Profile returns the public view of the account.
func (a *Account) Profile() *Profile {
	return &Profile{
		ID:             a.ID.String(),
		Username:       a.Username,
		Role:           a.Role,
		Disabled:       a.Disabled,
		Email:          a.Email,
		FailedAttempts: a.FailedAttempts,
		CreatedAt:      a.CreatedAt,
	}
}

// IsAdmin reports whether the account holds the admin role.
func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]{3,20}$`)

// ValidUsername reports whether name satisfies the username format:
// 3-20 characters, alphanumeric only.
func ValidUsername(name string) bool {
	return usernamePattern.MatchString(name)
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidEmail reports whether addr is a syntactically acceptable address.
// An empty address is not valid; callers treat email as optional themselves.
func ValidEmail(addr string) bool {
	if addr == "" || len(addr) > 254 || strings.Contains(addr, " ") {
		return false
	}
	return emailPattern.MatchString(addr)
}

// NormalizeEmail lowercases and trims an address for storage and comparison.
// Email matching is case-insensitive everywhere in the core.
func NormalizeEmail(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
