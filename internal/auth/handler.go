package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arturkam25/intelplatform/internal/account"
	appctx "github.com/arturkam25/intelplatform/internal/context"
)

// APIResponse represents the standard API response format
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents the error detail in API response
type APIError struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

// Handler handles HTTP requests for authentication endpoints
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new Handler instance
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Register handles account registration
// POST /api/v1/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.Accounts().Register(r.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		h.writeAccountError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusCreated, RegisterResponse{
		Account:      result.Account,
		RecoveryCode: result.RecoveryCode,
		LicenseKey:   result.LicenseKey,
	})
}

// Login handles authentication
// POST /api/v1/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), req.Username, req.Password, getClientIP(r), r.UserAgent())
	if err != nil {
		h.writeAccountError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, LoginResponse{
		Account: result.Profile,
		Tokens:  result.Tokens,
	})
}

// Refresh handles token rotation
// POST /api/v1/auth/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !h.decode(w, r, &req) {
		return
	}

	tokens, err := h.service.Refresh(r.Context(), req.RefreshToken, getClientIP(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, CodeInvalidRefreshToken, "Invalid or expired refresh token", nil)
			return
		}
		h.writeAccountError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"tokens": tokens,
	})
}

// Logout invalidates the presented refresh token
// POST /api/v1/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "An unexpected error occurred", nil)
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]string{
		"message": "Successfully logged out",
	})
}

// GetMe returns the current account profile
// GET /api/v1/auth/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	_, profile, ok := h.currentAccount(w, r)
	if !ok {
		return
	}
	h.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"account": profile,
	})
}

// ChangePassword changes the current account's password
// POST /api/v1/auth/me/password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	accountID, _, ok := h.currentAccount(w, r)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.Accounts().ChangePassword(r.Context(), accountID, req.CurrentPassword, req.NewPassword); err != nil {
		h.writeAccountError(w, err)
		return
	}

	// Every other session is stale once the password changes.
	if err := h.service.LogoutAll(r.Context(), accountID); err != nil {
		h.logger.Warn("failed to revoke sessions after password change", "error", err)
	}

	h.writeSuccess(w, http.StatusOK, map[string]string{
		"message": "Password changed",
	})
}

// Rename changes the current account's username
// POST /api/v1/auth/me/username
func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	accountID, _, ok := h.currentAccount(w, r)
	if !ok {
		return
	}

	var req RenameRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.Accounts().Rename(r.Context(), accountID, req.NewUsername); err != nil {
		h.writeAccountError(w, err)
		return
	}

	// Issued access tokens still carry the old username until they expire
	// or are refreshed.
	h.writeSuccess(w, http.StatusOK, map[string]string{
		"message":  "Username changed",
		"username": req.NewUsername,
	})
}

// RegenerateRecoveryCode replaces the current account's recovery code
// POST /api/v1/auth/me/recovery-code
func (h *Handler) RegenerateRecoveryCode(w http.ResponseWriter, r *http.Request) {
	accountID, _, ok := h.currentAccount(w, r)
	if !ok {
		return
	}

	var req RegenerateRecoveryCodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	code, err := h.service.Accounts().RegenerateRecoveryCode(r.Context(), accountID, req.Password)
	if err != nil {
		h.writeAccountError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, RegenerateRecoveryCodeResponse{RecoveryCode: code})
}

// DeleteMe removes the current account after a password re-check
// DELETE /api/v1/auth/me
func (h *Handler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	accountID, _, ok := h.currentAccount(w, r)
	if !ok {
		return
	}

	var req DeleteMeRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.Accounts().DeleteSelf(r.Context(), accountID, req.Password); err != nil {
		h.writeAccountError(w, err)
		return
	}

	if err := h.service.LogoutAll(r.Context(), accountID); err != nil {
		h.logger.Warn("failed to revoke sessions after account deletion", "error", err)
	}

	h.writeSuccess(w, http.StatusOK, map[string]string{
		"message": "Account deleted",
	})
}

// RecoverPassword resets a password with a recovery proof
// POST /api/v1/auth/recover/password
func (h *Handler) RecoverPassword(w http.ResponseWriter, r *http.Request) {
	var req RecoverPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.Accounts().RecoverPassword(r.Context(), req.Username, req.Email, req.Proof, req.NewPassword); err != nil {
		h.writeAccountError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]string{
		"message": "Password reset",
	})
}

// RecoverUsername looks up a username with a recovery proof
// POST /api/v1/auth/recover/username
func (h *Handler) RecoverUsername(w http.ResponseWriter, r *http.Request) {
	var req RecoverUsernameRequest
	if !h.decode(w, r, &req) {
		return
	}

	username, err := h.service.Accounts().RecoverUsername(r.Context(), req.Email, req.Proof)
	if err != nil {
		h.writeAccountError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, RecoverUsernameResponse{Username: username})
}

// ListAccounts returns every account profile
// GET /api/v1/admin/accounts
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.service.Accounts().List(r.Context())
	if err != nil {
		h.writeAccountError(w, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"accounts": profiles,
	})
}

// UnlockAccount clears a lockout
// POST /api/v1/admin/accounts/{username}/unlock
func (h *Handler) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	username := pathUsername(r)
	if err := h.service.Accounts().Unlock(r.Context(), username); err != nil {
		h.writeAccountError(w, err)
		return
	}
	h.writeSuccess(w, http.StatusOK, map[string]string{
		"message": "Account unlocked",
	})
}

// AdminResetPassword sets a new password for another account
// POST /api/v1/admin/accounts/{username}/password
func (h *Handler) AdminResetPassword(w http.ResponseWriter, r *http.Request) {
	adminID, _, ok := h.currentAccount(w, r)
	if !ok {
		return
	}

	var req AdminResetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	target := pathUsername(r)
	if err := h.service.Accounts().AdminResetPassword(r.Context(), adminID, req.AdminPassword, target, req.NewPassword); err != nil {
		h.writeAccountError(w, err)
		return
	}

	if targetAcc, err := h.service.Accounts().GetByUsername(r.Context(), target); err == nil {
		if err := h.service.LogoutAll(r.Context(), targetAcc.ID); err != nil {
			h.logger.Warn("failed to revoke sessions after admin reset", "error", err)
		}
	}

	h.writeSuccess(w, http.StatusOK, map[string]string{
		"message": "Password reset",
	})
}

// AdminDeleteAccount removes another account
// DELETE /api/v1/admin/accounts/{username}
func (h *Handler) AdminDeleteAccount(w http.ResponseWriter, r *http.Request) {
	_, profile, ok := h.currentAccount(w, r)
	if !ok {
		return
	}

	target := pathUsername(r)
	var targetID uuid.UUID
	if targetAcc, err := h.service.Accounts().GetByUsername(r.Context(), target); err == nil {
		targetID = targetAcc.ID
	}

	if err := h.service.Accounts().AdminDelete(r.Context(), profile.Username, target); err != nil {
		h.writeAccountError(w, err)
		return
	}

	if targetID != uuid.Nil {
		if err := h.service.LogoutAll(r.Context(), targetID); err != nil {
			h.logger.Warn("failed to revoke sessions after admin delete", "error", err)
		}
	}

	h.writeSuccess(w, http.StatusOK, map[string]string{
		"message": "Account deleted",
	})
}

// decode parses and validates a JSON request body. On failure it writes
// the error response and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return false
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", validationDetails(err))
		return false
	}
	return true
}

// currentAccount loads the account behind the authenticated context.
func (h *Handler) currentAccount(w http.ResponseWriter, r *http.Request) (uuid.UUID, *account.Profile, bool) {
	rawID, ok := appctx.ExtractAccountID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, CodeAuthTokenInvalid, "Invalid or expired token", nil)
		return uuid.Nil, nil, false
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, CodeAuthTokenInvalid, "Invalid or expired token", nil)
		return uuid.Nil, nil, false
	}
	profile, err := h.service.Accounts().Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			h.writeError(w, http.StatusUnauthorized, CodeAuthTokenInvalid, "Invalid or expired token", nil)
			return uuid.Nil, nil, false
		}
		h.writeAccountError(w, err)
		return uuid.Nil, nil, false
	}
	return id, profile, true
}

// writeAccountError maps account core errors onto the error envelope.
func (h *Handler) writeAccountError(w http.ResponseWriter, err error) {
	var weak *account.WeakPasswordError
	var wrong *account.WrongPasswordError

	switch {
	case errors.Is(err, account.ErrInvalidUsername):
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Username must be 3-20 alphanumeric characters", nil)
	case errors.Is(err, account.ErrInvalidEmail):
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid email address", nil)
	case errors.As(err, &weak):
		details := map[string][]string{"password": weak.Reasons}
		h.writeError(w, http.StatusBadRequest, CodeWeakPassword, "Password does not meet the policy", details)
	case errors.Is(err, account.ErrConflict):
		h.writeError(w, http.StatusConflict, CodeAccountExists, "An account with this username already exists", nil)
	case errors.Is(err, account.ErrEmailTaken):
		h.writeError(w, http.StatusConflict, CodeEmailExists, "An account with this email already exists", nil)
	case errors.Is(err, account.ErrNotFound):
		h.writeError(w, http.StatusNotFound, CodeAccountNotFound, "Account not found", nil)
	case errors.Is(err, account.ErrLockedNow):
		h.writeError(w, http.StatusLocked, CodeAccountLocked, "Account locked after too many failed attempts", nil)
	case errors.Is(err, account.ErrLocked):
		h.writeError(w, http.StatusLocked, CodeAccountLocked, "Account is locked. Contact an administrator or use password recovery.", nil)
	case errors.As(err, &wrong):
		details := map[string][]string{
			"attempts_left": {strconv.Itoa(wrong.AttemptsLeft)},
		}
		h.writeError(w, http.StatusUnauthorized, CodeWrongPassword, "Wrong password", details)
	case errors.Is(err, account.ErrInvalidCredentials):
		h.writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid username or password", nil)
	case errors.Is(err, account.ErrAuthFailed):
		h.writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid credentials", nil)
	case errors.Is(err, account.ErrAdminAuthFailed):
		h.writeError(w, http.StatusForbidden, CodeForbidden, "Admin authentication failed", nil)
	case errors.Is(err, account.ErrSamePassword):
		h.writeError(w, http.StatusBadRequest, CodeSamePassword, "New password must differ from the current one", nil)
	case errors.Is(err, account.ErrEmailMismatch):
		h.writeError(w, http.StatusBadRequest, CodeEmailMismatch, "Email does not match the account", nil)
	case errors.Is(err, account.ErrInvalidProof):
		h.writeError(w, http.StatusBadRequest, CodeInvalidProof, "Recovery code or license key is not valid", nil)
	case errors.Is(err, account.ErrSelfDeleteForbidden):
		h.writeError(w, http.StatusForbidden, CodeSelfDelete, "Administrators cannot delete their own account here", nil)
	default:
		h.logger.Error("unexpected account error", "error", err)
		h.writeError(w, http.StatusInternalServerError, CodeInternalError, "An unexpected error occurred", nil)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, statusCode int, code, message string, details map[string][]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs, take the first one
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
