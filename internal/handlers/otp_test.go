package handlers_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/avikram1/campusauth/internal/handlers"
	"github.com/avikram1/campusauth/internal/models"
	"github.com/avikram1/campusauth/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOtpVerify_Success(t *testing.T) {
	mockOtp := &handlers.MockOtpService{
		VerifyByEmailFunc: func(ctx context.Context, email, submitted string, opts services.VerifyOptions) (*services.OtpResult, error) {
			assert.Equal(t, "student@college.edu", email)
			assert.Equal(t, "123456", submitted)
			assert.False(t, opts.RetainOnSuccess, "the generic endpoint consumes the code")
			return &services.OtpResult{Verified: true}, nil
		},
	}

	handler := handlers.NewOtpHandler(mockOtp, nil)
	req := handlers.NewTestRequest(t, "POST", "/otp/verify", handlers.VerifyOtpRequest{
		Email: "student@college.edu",
		Otp:   "123456",
	})

	w := httptest.NewRecorder()
	handler.Verify(w, req)

	var resp handlers.MessageResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
}

func TestOtpVerify_WrongCode_ReportsRemainingAttempts(t *testing.T) {
	mockOtp := &handlers.MockOtpService{
		VerifyByEmailFunc: func(ctx context.Context, email, submitted string, opts services.VerifyOptions) (*services.OtpResult, error) {
			return &services.OtpResult{RemainingAttempts: 1}, models.ErrInvalidOtp
		},
	}

	handler := handlers.NewOtpHandler(mockOtp, nil)
	req := handlers.NewTestRequest(t, "POST", "/otp/verify", handlers.VerifyOtpRequest{
		Email: "student@college.edu",
		Otp:   "654321",
	})

	w := httptest.NewRecorder()
	handler.Verify(w, req)

	assert.Equal(t, 400, w.Code)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, "INVALID_OTP", raw["error"])
	assert.Equal(t, float64(1), raw["remainingAttempts"])
}

func TestOtpVerify_Locked_Returns429(t *testing.T) {
	mockOtp := &handlers.MockOtpService{
		VerifyByEmailFunc: func(ctx context.Context, email, submitted string, opts services.VerifyOptions) (*services.OtpResult, error) {
			return &services.OtpResult{RemainingLockSeconds: 600}, models.ErrOtpVerifyLocked
		},
	}

	handler := handlers.NewOtpHandler(mockOtp, nil)
	req := handlers.NewTestRequest(t, "POST", "/otp/verify", handlers.VerifyOtpRequest{
		Email: "student@college.edu",
		Otp:   "123456",
	})

	w := httptest.NewRecorder()
	handler.Verify(w, req)

	assert.Equal(t, 429, w.Code)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, "VERIFY_LOCKED", raw["error"])
	assert.Equal(t, float64(600), raw["remainingTime"])
}

func TestOtpVerify_UnknownUser(t *testing.T) {
	handler := handlers.NewOtpHandler(&handlers.MockOtpService{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/otp/verify", handlers.VerifyOtpRequest{
		Email: "nobody@college.edu",
		Otp:   "123456",
	})

	w := httptest.NewRecorder()
	handler.Verify(w, req)

	handlers.AssertErrorResponse(t, w, 404, "not_found")
}

func TestOtpVerify_MalformedCode(t *testing.T) {
	handler := handlers.NewOtpHandler(&handlers.MockOtpService{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/otp/verify", handlers.VerifyOtpRequest{
		Email: "student@college.edu",
		Otp:   "12345",
	})

	w := httptest.NewRecorder()
	handler.Verify(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}
