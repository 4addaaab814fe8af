package account

import (
	"errors"
	"fmt"
	"strings"
)

// Service errors. Every failure path maps to exactly one of these so callers
// can branch with errors.Is / errors.As and still have a human-readable
// message to show.
var (
	ErrInvalidUsername     = errors.New("username must be 3-20 alphanumeric characters")
	ErrInvalidEmail        = errors.New("invalid email format")
	ErrConflict            = errors.New("username already exists")
	ErrEmailTaken          = errors.New("email already registered")
	ErrNotFound            = errors.New("account not found")
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrAuthFailed          = errors.New("incorrect password")
	ErrAdminAuthFailed     = errors.New("admin authentication failed")
	ErrLocked              = errors.New("account is locked")
	ErrLockedNow           = errors.New("account locked after too many failed attempts")
	ErrSamePassword        = errors.New("new password must differ from the current password")
	ErrEmailMismatch       = errors.New("email does not match our records")
	ErrInvalidProof        = errors.New("invalid recovery code or license key")
	ErrSelfDeleteForbidden = errors.New("admins cannot delete their own account here")
)

// WeakPasswordError reports which policy rules a candidate password failed.
// Reasons preserves the fixed rule order (length, upper, lower, digit, symbol).
type WeakPasswordError struct {
	Reasons []string
}

func (e *WeakPasswordError) Error() string {
	return "password does not meet requirements: " + strings.Join(e.Reasons, "; ")
}

// WrongPasswordError carries the remaining attempts before lockout. It is
// only returned when verbose login errors are enabled.
type WrongPasswordError struct {
	AttemptsLeft int
}

func (e *WrongPasswordError) Error() string {
	return fmt.Sprintf("incorrect password, %d attempt(s) remaining", e.AttemptsLeft)
}

// StoreError wraps an underlying storage failure. The core never swallows a
// store failure during a security-relevant mutation; it surfaces here and the
// record is left unchanged.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return "store: " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
