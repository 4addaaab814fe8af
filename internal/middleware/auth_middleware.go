package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/arturkam25/intelplatform/internal/account"
	"github.com/arturkam25/intelplatform/internal/auth"
	appctx "github.com/arturkam25/intelplatform/internal/context"
)

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthMiddleware handles JWT authentication for protected routes
type AuthMiddleware struct {
	tokenService *auth.TokenService
}

// NewAuthMiddleware creates a new AuthMiddleware instance
func NewAuthMiddleware(tokenService *auth.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

// Authenticate is a middleware that validates JWT tokens from the Authorization header
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "AUTH_TOKEN_MISSING", "Authorization header is required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, "AUTH_TOKEN_INVALID", "Invalid authorization header format")
			return
		}

		tokenString := parts[1]
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "AUTH_TOKEN_INVALID", "Token is empty")
			return
		}

		claims, err := m.tokenService.ValidateAccessToken(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "AUTH_TOKEN_INVALID", "Invalid or expired token")
			return
		}

		ctx := appctx.WithAccount(r.Context(), claims.AccountID(), claims.Username, string(claims.Role))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects requests whose token does not carry the admin role.
// Must run after Authenticate.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, ok := appctx.ExtractRole(r.Context())
		if !ok || role != string(account.RoleAdmin) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Admin privileges required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}

// ExtractAccountID extracts the account id from the request context
func ExtractAccountID(ctx context.Context) (string, bool) {
	return appctx.ExtractAccountID(ctx)
}

// ExtractUsername extracts the username from the request context
func ExtractUsername(ctx context.Context) (string, bool) {
	return appctx.ExtractUsername(ctx)
}

// ExtractRole extracts the role from the request context
func ExtractRole(ctx context.Context) (string, bool) {
	return appctx.ExtractRole(ctx)
}
