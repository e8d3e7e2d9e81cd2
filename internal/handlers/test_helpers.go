package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/avikram1/campusauth/internal/models"
	"github.com/avikram1/campusauth/internal/services"
	pkghttp "github.com/avikram1/campusauth/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc          func(ctx context.Context, email, password, ipAddress, userAgent string) (*services.LoginResult, error)
	CompleteLoginFunc  func(ctx context.Context, email, otp, ipAddress, userAgent string) (*services.LoginResult, error)
	LogoutFunc         func(ctx context.Context, email, token string) error
	RegisterFunc       func(ctx context.Context, email, password, name, role string, collegeID *string) (*services.AccountResponse, error)
	AuthorizeAdminFunc func(ctx context.Context, token string) error
}

func (m *MockAuthService) Login(ctx context.Context, email, password, ipAddress, userAgent string) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, email, password, ipAddress, userAgent)
}

func (m *MockAuthService) CompleteLogin(ctx context.Context, email, otp, ipAddress, userAgent string) (*services.LoginResult, error) {
	if m.CompleteLoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.CompleteLoginFunc(ctx, email, otp, ipAddress, userAgent)
}

func (m *MockAuthService) Logout(ctx context.Context, email, token string) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, email, token)
}

func (m *MockAuthService) Register(ctx context.Context, email, password, name, role string, collegeID *string) (*services.AccountResponse, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, email, password, name, role, collegeID)
}

func (m *MockAuthService) AuthorizeAdmin(ctx context.Context, token string) error {
	if m.AuthorizeAdminFunc == nil {
		return models.ErrUnauthorized
	}
	return m.AuthorizeAdminFunc(ctx, token)
}

// MockLockoutService implements LockoutServiceInterface for testing
type MockLockoutService struct {
	CheckLockStatusFunc func(ctx context.Context, email string) (*services.LockStatus, error)
}

func (m *MockLockoutService) CheckLockStatus(ctx context.Context, email string) (*services.LockStatus, error) {
	if m.CheckLockStatusFunc == nil {
		return &services.LockStatus{MaxAttempts: 5}, nil
	}
	return m.CheckLockStatusFunc(ctx, email)
}

// MockSessionService implements SessionServiceInterface for testing
type MockSessionService struct {
	HasActiveSessionFunc func(ctx context.Context, email string) (*services.SessionStatus, error)
	TerminateAllFunc     func(ctx context.Context, accountID string) error
	ConfirmTakeoverFunc  func(ctx context.Context, takeoverToken string) (*services.SessionGrant, error)
}

func (m *MockSessionService) HasActiveSession(ctx context.Context, email string) (*services.SessionStatus, error) {
	if m.HasActiveSessionFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.HasActiveSessionFunc(ctx, email)
}

func (m *MockSessionService) TerminateAll(ctx context.Context, accountID string) error {
	if m.TerminateAllFunc == nil {
		return nil
	}
	return m.TerminateAllFunc(ctx, accountID)
}

func (m *MockSessionService) ConfirmTakeover(ctx context.Context, takeoverToken string) (*services.SessionGrant, error) {
	if m.ConfirmTakeoverFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.ConfirmTakeoverFunc(ctx, takeoverToken)
}

// MockOtpService implements OtpServiceInterface for testing
type MockOtpService struct {
	VerifyByEmailFunc func(ctx context.Context, email, submitted string, opts services.VerifyOptions) (*services.OtpResult, error)
}

func (m *MockOtpService) VerifyByEmail(ctx context.Context, email, submitted string, opts services.VerifyOptions) (*services.OtpResult, error) {
	if m.VerifyByEmailFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.VerifyByEmailFunc(ctx, email, submitted, opts)
}

// MockPasswordResetService implements PasswordResetServiceInterface for testing
type MockPasswordResetService struct {
	RequestResetFunc   func(ctx context.Context, email string) error
	VerifyResetOtpFunc func(ctx context.Context, email, otp, ipAddress, userAgent string) (*services.OtpResult, error)
	CompleteResetFunc  func(ctx context.Context, email, otp, newPassword, ipAddress string) (*services.OtpResult, error)
}

func (m *MockPasswordResetService) RequestReset(ctx context.Context, email string) error {
	if m.RequestResetFunc == nil {
		return nil
	}
	return m.RequestResetFunc(ctx, email)
}

func (m *MockPasswordResetService) VerifyResetOtp(ctx context.Context, email, otp, ipAddress, userAgent string) (*services.OtpResult, error) {
	if m.VerifyResetOtpFunc == nil {
		return &services.OtpResult{Verified: true}, nil
	}
	return m.VerifyResetOtpFunc(ctx, email, otp, ipAddress, userAgent)
}

func (m *MockPasswordResetService) CompleteReset(ctx context.Context, email, otp, newPassword, ipAddress string) (*services.OtpResult, error) {
	if m.CompleteResetFunc == nil {
		return &services.OtpResult{Verified: true}, nil
	}
	return m.CompleteResetFunc(ctx, email, otp, newPassword, ipAddress)
}

// MockSessionCleanupService implements SessionCleanupService for testing
type MockSessionCleanupService struct {
	CleanupExpiredSessionsFunc func(ctx context.Context) (int64, error)
}

func (m *MockSessionCleanupService) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	if m.CleanupExpiredSessionsFunc == nil {
		return 0, nil
	}
	return m.CleanupExpiredSessionsFunc(ctx)
}
