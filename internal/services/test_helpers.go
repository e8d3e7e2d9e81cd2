package services

import (
	"context"
	"time"

	"github.com/avikram1/campusauth/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// MockLockoutRepository implements LockoutRepository for testing
type MockLockoutRepository struct {
	GetByEmailFunc              func(ctx context.Context, email string) (*models.Account, error)
	IncrementFailedAttemptsFunc func(ctx context.Context, id string) (int, int, error)
	ApplyLockFunc               func(ctx context.Context, id string, lockedUntil time.Time) error
	ClearLockFunc               func(ctx context.Context, id string) error
	ResetFailedAttemptsFunc     func(ctx context.Context, id string) error
}

func (m *MockLockoutRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockLockoutRepository) IncrementFailedAttempts(ctx context.Context, id string) (int, int, error) {
	if m.IncrementFailedAttemptsFunc != nil {
		return m.IncrementFailedAttemptsFunc(ctx, id)
	}
	return 1, 0, nil
}

func (m *MockLockoutRepository) ApplyLock(ctx context.Context, id string, lockedUntil time.Time) error {
	if m.ApplyLockFunc != nil {
		return m.ApplyLockFunc(ctx, id, lockedUntil)
	}
	return nil
}

func (m *MockLockoutRepository) ClearLock(ctx context.Context, id string) error {
	if m.ClearLockFunc != nil {
		return m.ClearLockFunc(ctx, id)
	}
	return nil
}

func (m *MockLockoutRepository) ResetFailedAttempts(ctx context.Context, id string) error {
	if m.ResetFailedAttemptsFunc != nil {
		return m.ResetFailedAttemptsFunc(ctx, id)
	}
	return nil
}

// MockOtpRepository implements OtpRepository for testing
type MockOtpRepository struct {
	GetByEmailFunc                 func(ctx context.Context, email string) (*models.Account, error)
	SetOtpFunc                     func(ctx context.Context, id, code string, expiresAt time.Time) error
	IncrementOtpVerifyAttemptsFunc func(ctx context.Context, id string) (int, error)
	LockOtpVerifyFunc              func(ctx context.Context, id string, until time.Time) error
	FinalizeVerificationFunc       func(ctx context.Context, accountID string, clearOtp bool, ipAddress, userAgent string) error
}

func (m *MockOtpRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockOtpRepository) SetOtp(ctx context.Context, id, code string, expiresAt time.Time) error {
	if m.SetOtpFunc != nil {
		return m.SetOtpFunc(ctx, id, code, expiresAt)
	}
	return nil
}

func (m *MockOtpRepository) IncrementOtpVerifyAttempts(ctx context.Context, id string) (int, error) {
	if m.IncrementOtpVerifyAttemptsFunc != nil {
		return m.IncrementOtpVerifyAttemptsFunc(ctx, id)
	}
	return 1, nil
}

func (m *MockOtpRepository) LockOtpVerify(ctx context.Context, id string, until time.Time) error {
	if m.LockOtpVerifyFunc != nil {
		return m.LockOtpVerifyFunc(ctx, id, until)
	}
	return nil
}

func (m *MockOtpRepository) FinalizeVerification(ctx context.Context, accountID string, clearOtp bool, ipAddress, userAgent string) error {
	if m.FinalizeVerificationFunc != nil {
		return m.FinalizeVerificationFunc(ctx, accountID, clearOtp, ipAddress, userAgent)
	}
	return nil
}

// MockOtpSender implements OtpSender for testing
type MockOtpSender struct {
	SendOtpEmailFunc func(ctx context.Context, email, code string, expiresAt time.Time) error
	SentCodes        []string
}

func (m *MockOtpSender) SendOtpEmail(ctx context.Context, email, code string, expiresAt time.Time) error {
	m.SentCodes = append(m.SentCodes, code)
	if m.SendOtpEmailFunc != nil {
		return m.SendOtpEmailFunc(ctx, email, code, expiresAt)
	}
	return nil
}

// MockSessionRepository implements SessionRepository for testing
type MockSessionRepository struct {
	GetByEmailFunc             func(ctx context.Context, email string) (*models.Account, error)
	GetByIDFunc                func(ctx context.Context, id string) (*models.Account, error)
	IssueSessionFunc           func(ctx context.Context, id, token string, expiresAt time.Time) error
	ClearSessionFunc           func(ctx context.Context, id string) error
	TouchActivityFunc          func(ctx context.Context, id string) error
	CleanupExpiredSessionsFunc func(ctx context.Context, olderThan time.Time) (int64, error)
}

func (m *MockSessionRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) IssueSession(ctx context.Context, id, token string, expiresAt time.Time) error {
	if m.IssueSessionFunc != nil {
		return m.IssueSessionFunc(ctx, id, token, expiresAt)
	}
	return nil
}

func (m *MockSessionRepository) ClearSession(ctx context.Context, id string) error {
	if m.ClearSessionFunc != nil {
		return m.ClearSessionFunc(ctx, id)
	}
	return nil
}

func (m *MockSessionRepository) TouchActivity(ctx context.Context, id string) error {
	if m.TouchActivityFunc != nil {
		return m.TouchActivityFunc(ctx, id)
	}
	return nil
}

func (m *MockSessionRepository) CleanupExpiredSessions(ctx context.Context, olderThan time.Time) (int64, error) {
	if m.CleanupExpiredSessionsFunc != nil {
		return m.CleanupExpiredSessionsFunc(ctx, olderThan)
	}
	return 0, nil
}

// MockAuthRepository implements AuthRepository for testing
type MockAuthRepository struct {
	GetByEmailFunc        func(ctx context.Context, email string) (*models.Account, error)
	GetBySessionTokenFunc func(ctx context.Context, token string) (*models.Account, error)
	CreateFunc            func(ctx context.Context, account *models.Account) (*models.Account, error)
	ClearSessionFunc      func(ctx context.Context, id string) error
}

func (m *MockAuthRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAuthRepository) GetBySessionToken(ctx context.Context, token string) (*models.Account, error) {
	if m.GetBySessionTokenFunc != nil {
		return m.GetBySessionTokenFunc(ctx, token)
	}
	return nil, models.ErrNotFound
}

func (m *MockAuthRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthRepository) ClearSession(ctx context.Context, id string) error {
	if m.ClearSessionFunc != nil {
		return m.ClearSessionFunc(ctx, id)
	}
	return nil
}

// MockPasswordHistoryReader implements PasswordHistoryReader for testing
type MockPasswordHistoryReader struct {
	ListRecentFunc func(ctx context.Context, accountID string, limit int) ([]*models.PasswordHistoryEntry, error)
}

func (m *MockPasswordHistoryReader) ListRecent(ctx context.Context, accountID string, limit int) ([]*models.PasswordHistoryEntry, error) {
	if m.ListRecentFunc != nil {
		return m.ListRecentFunc(ctx, accountID, limit)
	}
	return []*models.PasswordHistoryEntry{}, nil
}

// MockResetStore implements ResetStore for testing
type MockResetStore struct {
	CompletePasswordResetFunc func(ctx context.Context, accountID, newPasswordHash string) error
}

func (m *MockResetStore) CompletePasswordReset(ctx context.Context, accountID, newPasswordHash string) error {
	if m.CompletePasswordResetFunc != nil {
		return m.CompletePasswordResetFunc(ctx, accountID, newPasswordHash)
	}
	return nil
}

// NewTestAccount creates an account with sane defaults for tests
func NewTestAccount(id, email string) *models.Account {
	return &models.Account{
		ID:        id,
		Email:     email,
		Name:      "Test Student",
		Role:      "student",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// fastHash hashes at minimum cost so tests stay quick
func fastHash(password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(hash)
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
