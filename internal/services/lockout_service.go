package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avikram1/campusauth/internal/models"
	pkglogger "github.com/avikram1/campusauth/pkg/logger"
)

// LockoutRepository defines the interface for lockout database operations
type LockoutRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	IncrementFailedAttempts(ctx context.Context, id string) (attempts int, lockoutCount int, err error)
	ApplyLock(ctx context.Context, id string, lockedUntil time.Time) error
	ClearLock(ctx context.Context, id string) error
	ResetFailedAttempts(ctx context.Context, id string) error
}

// LockoutConfig holds the lockout policy
type LockoutConfig struct {
	MaxLoginAttempts   int
	LockoutDuration    time.Duration // Base duration; doubles per lockout cycle
	MaxLockoutDuration time.Duration // Backoff ceiling
	AttemptWindow      time.Duration // Rolling window for counting failures
}

// LockStatus reports the lockout state of an account
type LockStatus struct {
	IsLocked         bool
	LockedUntil      *time.Time
	RemainingSeconds int
	FailedAttempts   int
	MaxAttempts      int
	LockoutCount     int
}

// LockoutService tracks failed login attempts per account and computes
// lock/unlock transitions with exponential backoff. All counters live on the
// account row; unlocking is lazy (time passing clears a lock even before the
// row is written back).
type LockoutService struct {
	repo        LockoutRepository
	config      LockoutConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(repo LockoutRepository, config LockoutConfig, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *LockoutService {
	return &LockoutService{
		repo:        repo,
		config:      config,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// CheckLockStatus reports the lockout state for an email. An unknown email
// yields the same response shape with zero attempts so the endpoint cannot be
// used as an account-existence oracle.
func (s *LockoutService) CheckLockStatus(ctx context.Context, email string) (*LockStatus, error) {
	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &LockStatus{MaxAttempts: s.config.MaxLoginAttempts}, nil
		}
		s.logger.Error("failed to get account for lock check", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return s.statusFor(ctx, account), nil
}

// statusFor computes the lock status for a loaded account, applying the lazy
// unlock and stale-window amnesty transitions as side effects.
func (s *LockoutService) statusFor(ctx context.Context, account *models.Account) *LockStatus {
	now := time.Now()

	if account.IsLocked && account.LockedUntil != nil {
		if now.Before(*account.LockedUntil) {
			remaining := int(time.Until(*account.LockedUntil).Seconds())
			return &LockStatus{
				IsLocked:         true,
				LockedUntil:      account.LockedUntil,
				RemainingSeconds: remaining,
				FailedAttempts:   account.FailedLoginAttempts,
				MaxAttempts:      s.config.MaxLoginAttempts,
				LockoutCount:     account.LockoutCount,
			}
		}

		// Lock expired: write back the unlock, preserving lockout_count
		if err := s.repo.ClearLock(ctx, account.ID); err != nil {
			s.logger.Error("failed to clear expired lock",
				slog.String("account_id", account.ID),
				slog.Any("error", err))
		}
		return &LockStatus{
			MaxAttempts:  s.config.MaxLoginAttempts,
			LockoutCount: account.LockoutCount,
		}
	}

	// Stale-window amnesty: failures older than the attempt window no longer
	// count toward the threshold
	if account.LastFailedLoginAt != nil && now.Sub(*account.LastFailedLoginAt) > s.config.AttemptWindow {
		if account.FailedLoginAttempts > 0 {
			if err := s.repo.ResetFailedAttempts(ctx, account.ID); err != nil {
				s.logger.Error("failed to reset stale attempt counter",
					slog.String("account_id", account.ID),
					slog.Any("error", err))
			}
		}
		return &LockStatus{
			MaxAttempts:  s.config.MaxLoginAttempts,
			LockoutCount: account.LockoutCount,
		}
	}

	return &LockStatus{
		FailedAttempts: account.FailedLoginAttempts,
		MaxAttempts:    s.config.MaxLoginAttempts,
		LockoutCount:   account.LockoutCount,
	}
}

// RecordFailedAttempt increments the failure counter after a failed
// credential check and escalates to a lock once the threshold is reached.
// The increment is a relative update at the storage layer, so concurrent
// failures cannot undercount.
func (s *LockoutService) RecordFailedAttempt(ctx context.Context, account *models.Account) (*LockStatus, error) {
	attempts, lockoutCount, err := s.repo.IncrementFailedAttempts(ctx, account.ID)
	if err != nil {
		s.logger.Error("failed to record login failure",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if attempts < s.config.MaxLoginAttempts {
		return &LockStatus{
			FailedAttempts: attempts,
			MaxAttempts:    s.config.MaxLoginAttempts,
			LockoutCount:   lockoutCount,
		}, nil
	}

	lockedUntil := time.Now().Add(s.BackoffDuration(lockoutCount))
	if err := s.repo.ApplyLock(ctx, account.ID, lockedUntil); err != nil {
		s.logger.Error("failed to apply lock",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogLockout(account.ID, lockoutCount+1, lockedUntil)

	return &LockStatus{
		IsLocked:         true,
		LockedUntil:      &lockedUntil,
		RemainingSeconds: int(time.Until(lockedUntil).Seconds()),
		MaxAttempts:      s.config.MaxLoginAttempts,
		LockoutCount:     lockoutCount + 1,
	}, nil
}

// RecordSuccess resets the failure counter after a successful credential
// check. An active lock is deliberately left in place: only time clears
// locks, so a correct guess during the cooldown does not shorten it.
func (s *LockoutService) RecordSuccess(ctx context.Context, accountID string) error {
	if err := s.repo.ResetFailedAttempts(ctx, accountID); err != nil {
		s.logger.Error("failed to reset attempt counter",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

// BackoffDuration returns the lock duration for the next lockout given the
// number of prior lockouts: base * 2^priorLockouts, capped at the maximum.
func (s *LockoutService) BackoffDuration(priorLockouts int) time.Duration {
	duration := s.config.LockoutDuration
	for i := 0; i < priorLockouts; i++ {
		duration *= 2
		if duration >= s.config.MaxLockoutDuration {
			return s.config.MaxLockoutDuration
		}
	}
	if duration > s.config.MaxLockoutDuration {
		return s.config.MaxLockoutDuration
	}
	return duration
}
