package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Account lockout
	ErrAccountLocked = errors.New("account is temporarily locked")

	// OTP verification
	ErrOtpVerifyLocked = errors.New("otp verification is temporarily locked")
	ErrInvalidOtp      = errors.New("otp is invalid, expired or missing")

	// Session enforcement
	ErrSessionConflict = errors.New("another session is active for this account")
	ErrSessionInvalid  = errors.New("session token is invalid or expired")

	// Password reset
	ErrPasswordReused = errors.New("new password matches a recently used password")
)
