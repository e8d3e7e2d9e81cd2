package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/avikram1/campusauth/internal/models"
	"github.com/avikram1/campusauth/internal/services"
	pkgauth "github.com/avikram1/campusauth/pkg/auth"
	pkghttp "github.com/avikram1/campusauth/pkg/http"
)

// AuthServiceInterface defines the interface for login orchestration
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password, ipAddress, userAgent string) (*services.LoginResult, error)
	CompleteLogin(ctx context.Context, email, otp, ipAddress, userAgent string) (*services.LoginResult, error)
	Logout(ctx context.Context, email, token string) error
	Register(ctx context.Context, email, password, name, role string, collegeID *string) (*services.AccountResponse, error)
	AuthorizeAdmin(ctx context.Context, token string) error
}

// LockoutServiceInterface exposes lock status checks
type LockoutServiceInterface interface {
	CheckLockStatus(ctx context.Context, email string) (*services.LockStatus, error)
}

// SessionServiceInterface exposes session queries and mutations
type SessionServiceInterface interface {
	HasActiveSession(ctx context.Context, email string) (*services.SessionStatus, error)
	TerminateAll(ctx context.Context, accountID string) error
	ConfirmTakeover(ctx context.Context, takeoverToken string) (*services.SessionGrant, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	lockout  LockoutServiceInterface
	sessions SessionServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, lockout LockoutServiceInterface, sessions SessionServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		lockout:  lockout,
		sessions: sessions,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// CheckLockStatusRequest represents the request body for lock status checks
type CheckLockStatusRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// CheckActiveSessionRequest represents the request body for session checks
type CheckActiveSessionRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// TerminateSessionsRequest represents the request body for session termination
type TerminateSessionsRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// LoginRequest represents the request body for the credential phase
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginVerifyOtpRequest represents the request body for the OTP phase
type LoginVerifyOtpRequest struct {
	Email string `json:"email" validate:"required,email"`
	Otp   string `json:"otp" validate:"required,len=6,numeric"`
}

// ConfirmTakeoverRequest represents the request body for session takeover
type ConfirmTakeoverRequest struct {
	TakeoverToken string `json:"takeoverToken" validate:"required"`
}

// LogoutRequest represents the request body for logout
type LogoutRequest struct {
	Email        string `json:"email" validate:"required,email"`
	SessionToken string `json:"sessionToken" validate:"required"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email     string  `json:"email" validate:"required,email"`
	Password  string  `json:"password" validate:"required"`
	Name      string  `json:"name" validate:"required,min=1"`
	Role      string  `json:"role" validate:"required,oneof=student staff registrar admin"`
	CollegeID *string `json:"collegeId,omitempty" validate:"omitempty,uuid"`
}

// Response DTOs

// LockStatusResponse mirrors the lock-status contract; field names are part
// of the client API
type LockStatusResponse struct {
	IsLocked       bool   `json:"isLocked"`
	FailedAttempts int    `json:"failedAttempts"`
	MaxAttempts    int    `json:"maxAttempts"`
	LockedUntil    string `json:"lockedUntil,omitempty"`
	RemainingTime  int    `json:"remainingTime,omitempty"`
	LockoutCount   int    `json:"lockoutCount,omitempty"`
}

// ActiveSessionResponse mirrors the session-check contract
type ActiveSessionResponse struct {
	HasActiveSession bool   `json:"hasActiveSession"`
	UserID           string `json:"userId,omitempty"`
	LastActivity     string `json:"lastActivity,omitempty"`
}

// MessageResponse is a generic success body
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginResponse is returned by the login endpoints
type LoginResponse struct {
	OtpRequired      bool                      `json:"otpRequired,omitempty"`
	TakeoverRequired bool                      `json:"takeoverRequired,omitempty"`
	TakeoverToken    string                    `json:"takeoverToken,omitempty"`
	SessionToken     string                    `json:"sessionToken,omitempty"`
	ExpiresAt        string                    `json:"expiresAt,omitempty"`
	User             *services.AccountResponse `json:"user,omitempty"`
	Message          string                    `json:"message,omitempty"`
}

func lockStatusToResponse(status *services.LockStatus) *LockStatusResponse {
	resp := &LockStatusResponse{
		IsLocked:       status.IsLocked,
		FailedAttempts: status.FailedAttempts,
		MaxAttempts:    status.MaxAttempts,
		LockoutCount:   status.LockoutCount,
	}
	if status.LockedUntil != nil {
		resp.LockedUntil = status.LockedUntil.UTC().Format(time.RFC3339)
		resp.RemainingTime = status.RemainingSeconds
	}
	return resp
}

// CheckLockStatus reports the lockout state for an email. Unknown emails get
// the same response shape with zero attempts.
func (h *AuthHandler) CheckLockStatus(w http.ResponseWriter, r *http.Request) {
	var req CheckLockStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	status, err := h.lockout.CheckLockStatus(r.Context(), req.Email)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to check lock status")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, lockStatusToResponse(status))
}

// CheckActiveSession reports whether the account holds a live session.
func (h *AuthHandler) CheckActiveSession(w http.ResponseWriter, r *http.Request) {
	var req CheckActiveSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	status, err := h.sessions.HasActiveSession(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to check session")
		return
	}

	resp := &ActiveSessionResponse{
		HasActiveSession: status.Active,
	}
	if status.Active {
		resp.UserID = status.AccountID
		if status.LastActivity != nil {
			resp.LastActivity = status.LastActivity.UTC().Format(time.RFC3339)
		}
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// TerminateSessions clears the session slot for an account.
func (h *AuthHandler) TerminateSessions(w http.ResponseWriter, r *http.Request) {
	var req TerminateSessionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.sessions.TerminateAll(r.Context(), req.UserID); err != nil {
		pkghttp.WriteInternalError(w, "Failed to terminate sessions")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, &MessageResponse{Message: "All sessions terminated"})
}

// Login runs the credential phase of login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	result, err := h.service.Login(r.Context(), req.Email, req.Password, ipAddress, userAgent)
	if err != nil {
		h.writeLoginError(w, result, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, &LoginResponse{
		OtpRequired: true,
		Message:     "Verification code sent",
	})
}

// VerifyLoginOtp completes login after the OTP step-up.
func (h *AuthHandler) VerifyLoginOtp(w http.ResponseWriter, r *http.Request) {
	var req LoginVerifyOtpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	result, err := h.service.CompleteLogin(r.Context(), req.Email, req.Otp, ipAddress, userAgent)
	if err != nil {
		h.writeLoginError(w, result, err)
		return
	}

	if result.TakeoverRequired {
		pkghttp.WriteJSON(w, http.StatusConflict, &LoginResponse{
			TakeoverRequired: true,
			TakeoverToken:    result.TakeoverToken,
			Message:          "Another session is active. Confirm to terminate it.",
		})
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, &LoginResponse{
		SessionToken: result.SessionToken,
		ExpiresAt:    result.SessionExpiresAt.UTC().Format(time.RFC3339),
		User:         result.Account,
	})
}

// ConfirmTakeover exchanges a takeover token for a fresh session, kicking
// out the prior one.
func (h *AuthHandler) ConfirmTakeover(w http.ResponseWriter, r *http.Request) {
	var req ConfirmTakeoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	grant, err := h.sessions.ConfirmTakeover(r.Context(), req.TakeoverToken)
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w, "Takeover token is invalid or expired")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to replace session")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, &LoginResponse{
		SessionToken: grant.Token,
		ExpiresAt:    grant.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Logout clears the caller's session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.Logout(r.Context(), req.Email, req.SessionToken); err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w, "Session is not valid")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to log out")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, &MessageResponse{Message: "Logged out"})
}

// Register creates an account. Only a caller presenting a live admin
// session may register accounts.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := h.service.AuthorizeAdmin(r.Context(), bearerToken(r)); err != nil {
		pkghttp.WriteUnauthorized(w, "Admin session required")
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	account, err := h.service.Register(r.Context(), req.Email, req.Password, req.Name, req.Role, req.CollegeID)
	if err != nil {
		var pwErr *pkgauth.PasswordValidationError
		switch {
		case errors.As(err, &pwErr):
			pkghttp.WriteBadRequest(w, pwErr.Error())
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "An account with this email already exists")
		default:
			pkghttp.WriteInternalError(w, "Failed to create account")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, account)
}

// writeLoginError maps login orchestration errors onto the HTTP contract.
// Lock responses carry machine-readable remaining time; credential failures
// never reveal which factor was wrong.
func (h *AuthHandler) writeLoginError(w http.ResponseWriter, result *services.LoginResult, err error) {
	switch {
	case errors.Is(err, models.ErrAccountLocked):
		body := map[string]interface{}{
			"error":   "ACCOUNT_LOCKED",
			"message": "Account is temporarily locked. Try again later.",
		}
		if result != nil && result.LockStatus != nil {
			body["remainingTime"] = result.LockStatus.RemainingSeconds
			if result.LockStatus.LockedUntil != nil {
				body["lockedUntil"] = result.LockStatus.LockedUntil.UTC().Format(time.RFC3339)
			}
		}
		pkghttp.WriteJSON(w, http.StatusLocked, body)
	case errors.Is(err, models.ErrOtpVerifyLocked):
		body := map[string]interface{}{
			"error":   "VERIFY_LOCKED",
			"message": "Too many incorrect codes. Verification is temporarily locked.",
		}
		if result != nil && result.OtpStatus != nil {
			body["remainingTime"] = result.OtpStatus.RemainingLockSeconds
		}
		pkghttp.WriteJSON(w, http.StatusTooManyRequests, body)
	case errors.Is(err, models.ErrInvalidOtp):
		body := map[string]interface{}{
			"error":   "INVALID_OTP",
			"message": "Code is invalid or expired. Request a new one.",
		}
		if result != nil && result.OtpStatus != nil {
			body["remainingAttempts"] = result.OtpStatus.RemainingAttempts
		}
		pkghttp.WriteJSON(w, http.StatusBadRequest, body)
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	default:
		pkghttp.WriteInternalError(w, "Authentication failed")
	}
}

// bearerToken extracts the token from an Authorization: Bearer header, or
// returns empty when absent.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}
