package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Middleware is an interface for HTTP middleware
type Middleware func(http.Handler) http.Handler

// RegisterRoutes registers all authentication routes with the Chi router.
// Public routes: /register, /login, /refresh, /recover/*
// Protected routes: /logout, /me and its subresources
// Admin routes: /admin/accounts tree
// loginLimiter rate-limits the credential-guessing surface (login and
// recovery); nil disables it.
func RegisterRoutes(r chi.Router, handler *Handler, authMiddleware, adminMiddleware, loginLimiter Middleware) {
	if loginLimiter == nil {
		loginLimiter = func(next http.Handler) http.Handler { return next }
	}

	r.Route("/auth", func(r chi.Router) {
		// Public routes (no authentication required)
		r.Post("/register", handler.Register)
		r.Post("/refresh", handler.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(loginLimiter)
			r.Post("/login", handler.Login)
			r.Post("/recover/password", handler.RecoverPassword)
			r.Post("/recover/username", handler.RecoverUsername)
		})

		// Protected routes (authentication required)
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/logout", handler.Logout)
			r.Get("/me", handler.GetMe)
			r.Delete("/me", handler.DeleteMe)
			r.Post("/me/password", handler.ChangePassword)
			r.Post("/me/username", handler.Rename)
			r.Post("/me/recovery-code", handler.RegenerateRecoveryCode)
		})
	})

	r.Route("/admin/accounts", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(adminMiddleware)
		r.Get("/", handler.ListAccounts)
		r.Post("/{username}/unlock", handler.UnlockAccount)
		r.Post("/{username}/password", handler.AdminResetPassword)
		r.Delete("/{username}", handler.AdminDeleteAccount)
	})
}

func pathUsername(r *http.Request) string {
	return chi.URLParam(r, "username")
}
