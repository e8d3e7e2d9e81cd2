package models

import (
	"time"
)

// Account represents one authenticable identity. All auth state (lockout
// counters, OTP challenge, session slot) lives as columns on the account row
// so that correctness survives process restarts and horizontal scaling.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         string  // "student", "staff", "registrar", "admin"
	CollegeID    *string // Tenant reference; nil for platform admins

	// Lockout state
	FailedLoginAttempts int
	LastFailedLoginAt   *time.Time
	IsLocked            bool
	LockedUntil         *time.Time
	LockoutCount        int // Cumulative lockouts; drives exponential backoff

	// OTP challenge state
	Otp                  *string
	OtpExpiresAt         *time.Time
	OtpVerifyAttempts    int
	OtpVerifyLockedUntil *time.Time
	LastOtpVerifiedAt    *time.Time

	// Session slot: at most one valid token at a time
	SessionToken     *string
	IsLoggedIn       bool
	SessionExpiresAt *time.Time
	LastActivity     *time.Time
	LastLoginAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasActiveLock reports whether the account is locked at the given instant.
// A lock whose locked_until has passed is treated as cleared even before the
// row is written back (lazy transition).
func (a *Account) HasActiveLock(now time.Time) bool {
	return a.IsLocked && a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// HasActiveSession reports whether the session slot holds a live token.
func (a *Account) HasActiveSession(now time.Time) bool {
	if !a.IsLoggedIn || a.SessionToken == nil {
		return false
	}
	if a.SessionExpiresAt != nil && now.After(*a.SessionExpiresAt) {
		return false
	}
	return true
}
