package auth

import (
	"github.com/go-playground/validator/v10"

	"github.com/arturkam25/intelplatform/internal/account"
)

// Error codes returned in the API error envelope.
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeAuthTokenInvalid    = "AUTH_TOKEN_INVALID"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeAccountExists       = "ACCOUNT_EXISTS"
	CodeEmailExists         = "EMAIL_EXISTS"
	CodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	CodeAccountLocked       = "ACCOUNT_LOCKED"
	CodeWeakPassword        = "WEAK_PASSWORD"
	CodeWrongPassword       = "WRONG_PASSWORD"
	CodeSamePassword        = "SAME_PASSWORD"
	CodeEmailMismatch       = "EMAIL_MISMATCH"
	CodeInvalidProof        = "INVALID_PROOF"
	CodeSelfDelete          = "SELF_DELETE_FORBIDDEN"
	CodeForbidden           = "FORBIDDEN"
	CodeInternalError       = "INTERNAL_ERROR"
)

// RegisterRequest is the payload for POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Email    string `json:"email,omitempty"`
}

// RegisterResponse returns the new profile plus the one-time recovery
// credentials. They are shown only here; afterwards only the hash of
// the password and the raw credentials remain on the account record.
type RegisterResponse struct {
	Account      *account.Profile `json:"account"`
	RecoveryCode string           `json:"recovery_code"`
	LicenseKey   string           `json:"license_key"`
}

// LoginRequest is the payload for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse returns the profile and the token pair.
type LoginResponse struct {
	Account *account.Profile `json:"account"`
	Tokens  *TokenPair       `json:"tokens"`
}

// RefreshRequest is the payload for POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LogoutRequest is the payload for POST /auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ChangePasswordRequest is the payload for POST /auth/me/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// RenameRequest is the payload for POST /auth/me/username.
type RenameRequest struct {
	NewUsername string `json:"new_username" validate:"required"`
}

// DeleteMeRequest is the payload for DELETE /auth/me. The password is
// re-checked before the account is removed.
type DeleteMeRequest struct {
	Password string `json:"password" validate:"required"`
}

// RecoverPasswordRequest is the payload for POST /auth/recover/password.
// Proof is either the recovery code or the license key.
type RecoverPasswordRequest struct {
	Username    string `json:"username" validate:"required"`
	Email       string `json:"email" validate:"required"`
	Proof       string `json:"proof" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// RecoverUsernameRequest is the payload for POST /auth/recover/username.
type RecoverUsernameRequest struct {
	Email string `json:"email" validate:"required"`
	Proof string `json:"proof" validate:"required"`
}

// RecoverUsernameResponse returns the recovered username.
type RecoverUsernameResponse struct {
	Username string `json:"username"`
}

// RegenerateRecoveryCodeRequest re-checks the password before a new
// recovery code is drawn.
type RegenerateRecoveryCodeRequest struct {
	Password string `json:"password" validate:"required"`
}

// RegenerateRecoveryCodeResponse returns the replacement code.
type RegenerateRecoveryCodeResponse struct {
	RecoveryCode string `json:"recovery_code"`
}

// AdminResetPasswordRequest is the payload for the admin reset endpoint.
// AdminPassword re-authenticates the acting admin.
type AdminResetPasswordRequest struct {
	AdminPassword string `json:"admin_password" validate:"required"`
	NewPassword   string `json:"new_password" validate:"required"`
}

var validate = validator.New()

// validationDetails converts validator errors into the details map used
// by the error envelope.
func validationDetails(err error) map[string][]string {
	details := make(map[string][]string)
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, ve := range verrs {
			field := ve.Field()
			details[field] = append(details[field], "failed on the '"+ve.Tag()+"' rule")
		}
	}
	return details
}
