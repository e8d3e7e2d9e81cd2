package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/avikram1/campusauth/internal/models"
	pkglogger "github.com/avikram1/campusauth/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLockoutService(repo LockoutRepository) *LockoutService {
	logger := slog.Default()
	return NewLockoutService(repo, LockoutConfig{
		MaxLoginAttempts:   5,
		LockoutDuration:    30 * time.Minute,
		MaxLockoutDuration: 24 * time.Hour,
		AttemptWindow:      60 * time.Minute,
	}, logger, pkglogger.NewAuditLogger(logger))
}

// ============================================================================
// CheckLockStatus Tests
// ============================================================================

func TestLockoutService_CheckLockStatus_UnknownEmail(t *testing.T) {
	mockRepo := &MockLockoutRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return nil, models.ErrNotFound
		},
	}

	service := newTestLockoutService(mockRepo)

	status, err := service.CheckLockStatus(context.Background(), "nobody@college.edu")

	require.NoError(t, err)
	assert.False(t, status.IsLocked)
	assert.Equal(t, 0, status.FailedAttempts)
	assert.Equal(t, 5, status.MaxAttempts)
	assert.Nil(t, status.LockedUntil)
}

func TestLockoutService_CheckLockStatus_ActiveLock(t *testing.T) {
	lockedUntil := time.Now().Add(20 * time.Minute)
	account := NewTestAccount("acct1", "student@college.edu")
	account.IsLocked = true
	account.LockedUntil = &lockedUntil
	account.FailedLoginAttempts = 5
	account.LockoutCount = 2

	mockRepo := &MockLockoutRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return account, nil
		},
	}

	service := newTestLockoutService(mockRepo)

	status, err := service.CheckLockStatus(context.Background(), "student@college.edu")

	require.NoError(t, err)
	assert.True(t, status.IsLocked)
	require.NotNil(t, status.LockedUntil)
	assert.Equal(t, lockedUntil, *status.LockedUntil)
	assert.Greater(t, status.RemainingSeconds, 0)
	assert.LessOrEqual(t, status.RemainingSeconds, int((20 * time.Minute).Seconds()))
	assert.Equal(t, 2, status.LockoutCount)
}

func TestLockoutService_CheckLockStatus_ExpiredLockClears(t *testing.T) {
	lockedUntil := time.Now().Add(-1 * time.Minute)
	account := NewTestAccount("acct1", "student@college.edu")
	account.IsLocked = true
	account.LockedUntil = &lockedUntil
	account.FailedLoginAttempts = 5
	account.LockoutCount = 1

	clearCalled := false
	mockRepo := &MockLockoutRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return account, nil
		},
		ClearLockFunc: func(ctx context.Context, id string) error {
			clearCalled = true
			assert.Equal(t, "acct1", id)
			return nil
		},
	}

	service := newTestLockoutService(mockRepo)

	status, err := service.CheckLockStatus(context.Background(), "student@college.edu")

	require.NoError(t, err)
	assert.False(t, status.IsLocked)
	assert.Equal(t, 0, status.FailedAttempts)
	assert.Equal(t, 1, status.LockoutCount, "unlock preserves the lockout count")
	assert.True(t, clearCalled, "expired lock should be written back as cleared")
}

func TestLockoutService_CheckLockStatus_StaleWindowAmnesty(t *testing.T) {
	lastFailure := time.Now().Add(-2 * time.Hour)
	account := NewTestAccount("acct1", "student@college.edu")
	account.FailedLoginAttempts = 3
	account.LastFailedLoginAt = &lastFailure

	resetCalled := false
	mockRepo := &MockLockoutRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return account, nil
		},
		ResetFailedAttemptsFunc: func(ctx context.Context, id string) error {
			resetCalled = true
			return nil
		},
	}

	service := newTestLockoutService(mockRepo)

	status, err := service.CheckLockStatus(context.Background(), "student@college.edu")

	require.NoError(t, err)
	assert.False(t, status.IsLocked)
	assert.Equal(t, 0, status.FailedAttempts, "failures outside the window do not count")
	assert.True(t, resetCalled)
}

func TestLockoutService_CheckLockStatus_RecentFailuresCount(t *testing.T) {
	lastFailure := time.Now().Add(-5 * time.Minute)
	account := NewTestAccount("acct1", "student@college.edu")
	account.FailedLoginAttempts = 3
	account.LastFailedLoginAt = &lastFailure

	mockRepo := &MockLockoutRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return account, nil
		},
	}

	service := newTestLockoutService(mockRepo)

	status, err := service.CheckLockStatus(context.Background(), "student@college.edu")

	require.NoError(t, err)
	assert.False(t, status.IsLocked)
	assert.Equal(t, 3, status.FailedAttempts)
}

// ============================================================================
// RecordFailedAttempt Tests
// ============================================================================

func TestLockoutService_RecordFailedAttempt_BelowThreshold(t *testing.T) {
	account := NewTestAccount("acct1", "student@college.edu")

	applyCalled := false
	mockRepo := &MockLockoutRepository{
		IncrementFailedAttemptsFunc: func(ctx context.Context, id string) (int, int, error) {
			return 3, 0, nil
		},
		ApplyLockFunc: func(ctx context.Context, id string, lockedUntil time.Time) error {
			applyCalled = true
			return nil
		},
	}

	service := newTestLockoutService(mockRepo)

	status, err := service.RecordFailedAttempt(context.Background(), account)

	require.NoError(t, err)
	assert.False(t, status.IsLocked)
	assert.Equal(t, 3, status.FailedAttempts)
	assert.False(t, applyCalled, "no lock below the threshold")
}

func TestLockoutService_RecordFailedAttempt_ThresholdLocksAccount(t *testing.T) {
	account := NewTestAccount("acct1", "student@college.edu")

	var appliedUntil time.Time
	mockRepo := &MockLockoutRepository{
		IncrementFailedAttemptsFunc: func(ctx context.Context, id string) (int, int, error) {
			return 5, 0, nil
		},
		ApplyLockFunc: func(ctx context.Context, id string, lockedUntil time.Time) error {
			appliedUntil = lockedUntil
			return nil
		},
	}

	service := newTestLockoutService(mockRepo)

	status, err := service.RecordFailedAttempt(context.Background(), account)

	require.NoError(t, err)
	assert.True(t, status.IsLocked)
	assert.Equal(t, 1, status.LockoutCount)

	// First lockout uses the base duration
	expected := time.Now().Add(30 * time.Minute)
	assert.WithinDuration(t, expected, appliedUntil, 5*time.Second)
}

func TestLockoutService_RecordFailedAttempt_BackoffDoublesPerLockout(t *testing.T) {
	account := NewTestAccount("acct1", "student@college.edu")

	var appliedUntil time.Time
	mockRepo := &MockLockoutRepository{
		IncrementFailedAttemptsFunc: func(ctx context.Context, id string) (int, int, error) {
			// Two prior lockouts on record
			return 5, 2, nil
		},
		ApplyLockFunc: func(ctx context.Context, id string, lockedUntil time.Time) error {
			appliedUntil = lockedUntil
			return nil
		},
	}

	service := newTestLockoutService(mockRepo)

	status, err := service.RecordFailedAttempt(context.Background(), account)

	require.NoError(t, err)
	assert.True(t, status.IsLocked)
	assert.Equal(t, 3, status.LockoutCount)

	// Third lockout: 30m * 2^2 = 120m
	expected := time.Now().Add(120 * time.Minute)
	assert.WithinDuration(t, expected, appliedUntil, 5*time.Second)
}

// ============================================================================
// RecordSuccess Tests
// ============================================================================

func TestLockoutService_RecordSuccess_ResetsCounterOnly(t *testing.T) {
	resetCalled := false
	clearCalled := false
	mockRepo := &MockLockoutRepository{
		ResetFailedAttemptsFunc: func(ctx context.Context, id string) error {
			resetCalled = true
			return nil
		},
		ClearLockFunc: func(ctx context.Context, id string) error {
			clearCalled = true
			return nil
		},
	}

	service := newTestLockoutService(mockRepo)

	err := service.RecordSuccess(context.Background(), "acct1")

	require.NoError(t, err)
	assert.True(t, resetCalled)
	assert.False(t, clearCalled, "success resets the counter but never shortens a lock")
}

// ============================================================================
// BackoffDuration Tests
// ============================================================================

func TestLockoutService_BackoffDuration(t *testing.T) {
	service := newTestLockoutService(&MockLockoutRepository{})

	tests := []struct {
		name          string
		priorLockouts int
		expected      time.Duration
	}{
		{"first lockout", 0, 30 * time.Minute},
		{"second lockout", 1, 60 * time.Minute},
		{"third lockout", 2, 120 * time.Minute},
		{"fourth lockout", 3, 240 * time.Minute},
		{"fifth lockout", 4, 480 * time.Minute},
		{"far past the ceiling", 10, 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, service.BackoffDuration(tt.priorLockouts))
		})
	}
}

func TestLockoutService_BackoffDuration_CapIsExact(t *testing.T) {
	logger := slog.Default()
	service := NewLockoutService(&MockLockoutRepository{}, LockoutConfig{
		MaxLoginAttempts:   5,
		LockoutDuration:    30 * time.Minute,
		MaxLockoutDuration: 90 * time.Minute,
		AttemptWindow:      60 * time.Minute,
	}, logger, pkglogger.NewAuditLogger(logger))

	// 30m -> 60m -> would be 120m, capped at 90m
	assert.Equal(t, 60*time.Minute, service.BackoffDuration(1))
	assert.Equal(t, 90*time.Minute, service.BackoffDuration(2))
	assert.Equal(t, 90*time.Minute, service.BackoffDuration(3))
}
