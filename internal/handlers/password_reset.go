package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/avikram1/campusauth/internal/models"
	"github.com/avikram1/campusauth/internal/services"
	pkgauth "github.com/avikram1/campusauth/pkg/auth"
	pkghttp "github.com/avikram1/campusauth/pkg/http"
)

// PasswordResetServiceInterface defines the interface for the reset flow
type PasswordResetServiceInterface interface {
	RequestReset(ctx context.Context, email string) error
	VerifyResetOtp(ctx context.Context, email, otp, ipAddress, userAgent string) (*services.OtpResult, error)
	CompleteReset(ctx context.Context, email, otp, newPassword, ipAddress string) (*services.OtpResult, error)
}

// PasswordResetHandler handles the three-step reset flow
type PasswordResetHandler struct {
	service  PasswordResetServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewPasswordResetHandler creates a new PasswordResetHandler
func NewPasswordResetHandler(service PasswordResetServiceInterface, ipConfig *pkghttp.IPConfig) *PasswordResetHandler {
	return &PasswordResetHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// RequestResetRequest represents the request body for requesting a reset
type RequestResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerifyResetOtpRequest represents the request body for verifying a reset OTP
type VerifyResetOtpRequest struct {
	Email string `json:"email" validate:"required,email"`
	Otp   string `json:"otp" validate:"required,len=6,numeric"`
}

// CompleteResetRequest represents the request body for completing a reset
type CompleteResetRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Otp         string `json:"otp" validate:"required,len=6,numeric"`
	NewPassword string `json:"newPassword" validate:"required"`
}

// Request issues a reset OTP to the account holder.
func (h *PasswordResetHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req RequestResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := h.service.RequestReset(r.Context(), req.Email); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to request password reset")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, &MessageResponse{Message: "Reset code sent"})
}

// VerifyOtp validates the reset OTP while keeping it valid for the final
// password-set step.
func (h *PasswordResetHandler) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	var req VerifyResetOtpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	result, err := h.service.VerifyResetOtp(
		r.Context(),
		req.Email,
		req.Otp,
		pkghttp.ExtractClientIP(r, h.ipConfig),
		r.Header.Get("User-Agent"),
	)
	if err != nil {
		writeOtpError(w, result, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, &MessageResponse{Message: "Code verified. You can now set a new password."})
}

// Complete re-validates the OTP and replaces the password, enforcing the
// reuse history.
func (h *PasswordResetHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req CompleteResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	result, err := h.service.CompleteReset(
		r.Context(),
		req.Email,
		req.Otp,
		req.NewPassword,
		pkghttp.ExtractClientIP(r, h.ipConfig),
	)
	if err != nil {
		var pwErr *pkgauth.PasswordValidationError
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "User not found")
		case errors.Is(err, models.ErrOtpVerifyLocked), errors.Is(err, models.ErrInvalidOtp):
			writeOtpError(w, result, err)
		case errors.Is(err, models.ErrPasswordReused):
			pkghttp.WriteError(w, http.StatusBadRequest, "password_reused",
				"New password must differ from your recent passwords")
		case errors.As(err, &pwErr):
			pkghttp.WriteBadRequest(w, pwErr.Error())
		default:
			pkghttp.WriteInternalError(w, "Failed to reset password")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, &MessageResponse{Message: "Password has been reset"})
}
