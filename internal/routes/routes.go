package routes

import (
	"github.com/avikram1/campusauth/internal/handlers"
	"github.com/avikram1/campusauth/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	otpHandler *handlers.OtpHandler,
	resetHandler *handlers.PasswordResetHandler,
	adminHandler *handlers.AdminHandler,
) {
	// Per-IP limits on endpoints that accept credentials or codes
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))

		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/login/verify-otp", authHandler.VerifyLoginOtp)
		r.Post("/auth/confirm-takeover", authHandler.ConfirmTakeover)
		r.Post("/otp/verify", otpHandler.Verify)
		r.Post("/password-reset/request", resetHandler.Request)
		r.Post("/password-reset/verify-otp", resetHandler.VerifyOtp)
		r.Post("/password-reset/reset", resetHandler.Complete)
	})

	// Status endpoints: read-mostly, looser limits
	router.Post("/auth/check-lock-status", authHandler.CheckLockStatus)
	router.Post("/auth/check-active-session", authHandler.CheckActiveSession)
	router.Post("/auth/terminate-sessions", authHandler.TerminateSessions)
	router.Post("/auth/logout", authHandler.Logout)
	router.Post("/auth/register", authHandler.Register)

	// Operational endpoints gated by the shared cron secret
	router.Post("/admin/session-cleanup", adminHandler.SessionCleanup)
}
