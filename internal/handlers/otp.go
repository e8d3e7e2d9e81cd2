package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/avikram1/campusauth/internal/models"
	"github.com/avikram1/campusauth/internal/services"
	pkghttp "github.com/avikram1/campusauth/pkg/http"
)

// OtpServiceInterface defines the interface for generic OTP verification
type OtpServiceInterface interface {
	VerifyByEmail(ctx context.Context, email, submitted string, opts services.VerifyOptions) (*services.OtpResult, error)
}

// OtpHandler handles standalone OTP verification requests
type OtpHandler struct {
	service  OtpServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewOtpHandler creates a new OtpHandler
func NewOtpHandler(service OtpServiceInterface, ipConfig *pkghttp.IPConfig) *OtpHandler {
	return &OtpHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// VerifyOtpRequest represents the request body for OTP verification
type VerifyOtpRequest struct {
	Email string `json:"email" validate:"required,email"`
	Otp   string `json:"otp" validate:"required,len=6,numeric"`
}

// Verify validates a submitted code. The code is single-use: a second
// submission of the same value fails.
func (h *OtpHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyOtpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	result, err := h.service.VerifyByEmail(r.Context(), req.Email, req.Otp, services.VerifyOptions{
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	})
	if err != nil {
		writeOtpError(w, result, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, &MessageResponse{Message: "Verification successful"})
}

// writeOtpError maps OTP verification failures onto the HTTP contract.
// Shared with the reset flow handlers.
func writeOtpError(w http.ResponseWriter, result *services.OtpResult, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "User not found")
	case errors.Is(err, models.ErrOtpVerifyLocked):
		body := map[string]interface{}{
			"error":   "VERIFY_LOCKED",
			"message": "Too many incorrect codes. Verification is temporarily locked.",
		}
		if result != nil {
			body["remainingTime"] = result.RemainingLockSeconds
		}
		pkghttp.WriteJSON(w, http.StatusTooManyRequests, body)
	case errors.Is(err, models.ErrInvalidOtp):
		body := map[string]interface{}{
			"error":   "INVALID_OTP",
			"message": "Code is invalid or expired. Request a new one.",
		}
		if result != nil {
			body["remainingAttempts"] = result.RemainingAttempts
		}
		pkghttp.WriteJSON(w, http.StatusBadRequest, body)
	default:
		pkghttp.WriteInternalError(w, "Verification failed")
	}
}
