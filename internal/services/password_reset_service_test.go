package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/avikram1/campusauth/internal/models"
	pkgauth "github.com/avikram1/campusauth/pkg/auth"
	pkglogger "github.com/avikram1/campusauth/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResetService(accounts OtpRepository, history PasswordHistoryReader, store ResetStore) *PasswordResetService {
	logger := slog.Default()
	audit := pkglogger.NewAuditLogger(logger)
	otp := NewOtpService(accounts, &MockOtpSender{}, OtpConfig{
		Expiry:            10 * time.Minute,
		MaxVerifyAttempts: 3,
		VerifyLockoutDur:  15 * time.Minute,
	}, logger, audit)
	return NewPasswordResetService(accounts, history, store, otp, logger, audit)
}

// ============================================================================
// RequestReset Tests
// ============================================================================

func TestPasswordResetService_RequestReset_IssuesOtp(t *testing.T) {
	account := NewTestAccount("acct1", "student@college.edu")

	otpStored := false
	mockAccounts := &MockOtpRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return account, nil
		},
		SetOtpFunc: func(ctx context.Context, id, code string, expiresAt time.Time) error {
			otpStored = true
			return nil
		},
	}

	service := newTestResetService(mockAccounts, &MockPasswordHistoryReader{}, &MockResetStore{})

	err := service.RequestReset(context.Background(), "student@college.edu")

	require.NoError(t, err)
	assert.True(t, otpStored)
}

func TestPasswordResetService_RequestReset_UnknownEmail(t *testing.T) {
	mockAccounts := &MockOtpRepository{}

	service := newTestResetService(mockAccounts, &MockPasswordHistoryReader{}, &MockResetStore{})

	err := service.RequestReset(context.Background(), "nobody@college.edu")

	assert.ErrorIs(t, err, models.ErrNotFound)
}

// ============================================================================
// VerifyResetOtp Tests
// ============================================================================

func TestPasswordResetService_VerifyResetOtp_RetainsCode(t *testing.T) {
	account := accountWithOtp("123456")

	var finalizedClearOtp bool
	mockAccounts := &MockOtpRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return account, nil
		},
		FinalizeVerificationFunc: func(ctx context.Context, accountID string, clearOtp bool, ipAddress, userAgent string) error {
			finalizedClearOtp = clearOtp
			return nil
		},
	}

	service := newTestResetService(mockAccounts, &MockPasswordHistoryReader{}, &MockResetStore{})

	result, err := service.VerifyResetOtp(context.Background(), "student@college.edu", "123456", "1.2.3.4", "test-agent")

	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.False(t, finalizedClearOtp, "code stays valid for the password-set step")
}

// ============================================================================
// CompleteReset Tests
// ============================================================================

func TestPasswordResetService_CompleteReset_Success(t *testing.T) {
	account := accountWithOtp("123456")
	account.PasswordHash = fastHash("OldSecret123!")

	var storedHash string
	mockAccounts := &MockOtpRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return account, nil
		},
	}
	mockStore := &MockResetStore{
		CompletePasswordResetFunc: func(ctx context.Context, accountID, newPasswordHash string) error {
			assert.Equal(t, "acct1", accountID)
			storedHash = newPasswordHash
			return nil
		},
	}

	service := newTestResetService(mockAccounts, &MockPasswordHistoryReader{}, mockStore)

	_, err := service.CompleteReset(context.Background(), "student@college.edu", "123456", "NewSecret456!", "1.2.3.4")

	require.NoError(t, err)
	require.NotEmpty(t, storedHash)
	assert.NoError(t, pkgauth.ComparePassword(storedHash, "NewSecret456!"))
}

func TestPasswordResetService_CompleteReset_WrongOtp(t *testing.T) {
	account := accountWithOtp("123456")

	completed := false
	mockAccounts := &MockOtpRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return account, nil
		},
	}
	mockStore := &MockResetStore{
		CompletePasswordResetFunc: func(ctx context.Context, accountID, newPasswordHash string) error {
			completed = true
			return nil
		},
	}

	service := newTestResetService(mockAccounts, &MockPasswordHistoryReader{}, mockStore)

	result, err := service.CompleteReset(context.Background(), "student@college.edu", "654321", "NewSecret456!", "1.2.3.4")

	assert.ErrorIs(t, err, models.ErrInvalidOtp)
	assert.False(t, completed)
	require.NotNil(t, result)
	assert.Equal(t, 3, result.RemainingAttempts)
}

func TestPasswordResetService_CompleteReset_ExpiredOtp(t *testing.T) {
	account := NewTestAccount("acct1", "student@college.edu")
	account.Otp = strPtr("123456")
	account.OtpExpiresAt = timePtr(time.Now().Add(-1 * time.Minute))

	mockAccounts := &MockOtpRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return account, nil
		},
	}

	service := newTestResetService(mockAccounts, &MockPasswordHistoryReader{}, &MockResetStore{})

	_, err := service.CompleteReset(context.Background(), "student@college.edu", "123456", "NewSecret456!", "1.2.3.4")

	assert.ErrorIs(t, err, models.ErrInvalidOtp)
}

func TestPasswordResetService_CompleteReset_VerificationLocked(t *testing.T) {
	account := accountWithOtp("123456")
	account.OtpVerifyLockedUntil = timePtr(time.Now().Add(10 * time.Minute))

	mockAccounts := &MockOtpRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return account, nil
		},
	}

	service := newTestResetService(mockAccounts, &MockPasswordHistoryReader{}, &MockResetStore{})

	result, err := service.CompleteReset(context.Background(), "student@college.edu", "123456", "NewSecret456!", "1.2.3.4")

	assert.ErrorIs(t, err, models.ErrOtpVerifyLocked)
	require.NotNil(t, result)
	assert.Greater(t, result.RemainingLockSeconds, 0)
}

func TestPasswordResetService_CompleteReset_RejectsRecentPassword(t *testing.T) {
	account := accountWithOtp("123456")

	history := []*models.PasswordHistoryEntry{
		{AccountID: "acct1", HashedPassword: fastHash("RecentSecret1!")},
		{AccountID: "acct1", HashedPassword: fastHash("RecentSecret2!")},
		{AccountID: "acct1", HashedPassword: fastHash("RecentSecret3!")},
	}

	mockAccounts := &MockOtpRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return account, nil
		},
	}
	mockHistory := &MockPasswordHistoryReader{
		ListRecentFunc: func(ctx context.Context, accountID string, limit int) ([]*models.PasswordHistoryEntry, error) {
			assert.Equal(t, models.PasswordHistoryRetention, limit)
			return history, nil
		},
	}

	completed := false
	mockStore := &MockResetStore{
		CompletePasswordResetFunc: func(ctx context.Context, accountID, newPasswordHash string) error {
			completed = true
			return nil
		},
	}

	service := newTestResetService(mockAccounts, mockHistory, mockStore)

	_, err := service.CompleteReset(context.Background(), "student@college.edu", "123456", "RecentSecret2!", "1.2.3.4")

	assert.ErrorIs(t, err, models.ErrPasswordReused)
	assert.False(t, completed)
}

func TestPasswordResetService_CompleteReset_RejectsCurrentPassword(t *testing.T) {
	// The current hash may predate history tracking, so it is checked even
	// when the history table has no rows.
	account := accountWithOtp("123456")
	account.PasswordHash = fastHash("CurrentSecret1!")

	mockAccounts := &MockOtpRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return account, nil
		},
	}

	service := newTestResetService(mockAccounts, &MockPasswordHistoryReader{}, &MockResetStore{})

	_, err := service.CompleteReset(context.Background(), "student@college.edu", "123456", "CurrentSecret1!", "1.2.3.4")

	assert.ErrorIs(t, err, models.ErrPasswordReused)
}

func TestPasswordResetService_CompleteReset_AcceptsPasswordBeyondRetention(t *testing.T) {
	// Only the retained window is checked: a password older than the last
	// five is acceptable again.
	account := accountWithOtp("123456")
	account.PasswordHash = fastHash("CurrentSecret1!")

	retained := []*models.PasswordHistoryEntry{
		{AccountID: "acct1", HashedPassword: fastHash("Secret6!Recent")},
		{AccountID: "acct1", HashedPassword: fastHash("Secret5!Recent")},
		{AccountID: "acct1", HashedPassword: fastHash("Secret4!Recent")},
		{AccountID: "acct1", HashedPassword: fastHash("Secret3!Recent")},
		{AccountID: "acct1", HashedPassword: fastHash("Secret2!Recent")},
	}

	mockAccounts := &MockOtpRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return account, nil
		},
	}
	mockHistory := &MockPasswordHistoryReader{
		ListRecentFunc: func(ctx context.Context, accountID string, limit int) ([]*models.PasswordHistoryEntry, error) {
			return retained, nil
		},
	}

	service := newTestResetService(mockAccounts, mockHistory, &MockResetStore{})

	// "Secret1!Oldest" was pruned from the window
	_, err := service.CompleteReset(context.Background(), "student@college.edu", "123456", "Secret1!Oldest", "1.2.3.4")

	assert.NoError(t, err)
}

func TestPasswordResetService_CompleteReset_WeakPasswordRejected(t *testing.T) {
	account := accountWithOtp("123456")

	mockAccounts := &MockOtpRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return account, nil
		},
	}

	service := newTestResetService(mockAccounts, &MockPasswordHistoryReader{}, &MockResetStore{})

	_, err := service.CompleteReset(context.Background(), "student@college.edu", "123456", "weak", "1.2.3.4")

	var pwErr *pkgauth.PasswordValidationError
	assert.ErrorAs(t, err, &pwErr)
}
