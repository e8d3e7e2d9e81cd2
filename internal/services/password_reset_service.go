package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/avikram1/campusauth/internal/models"
	pkgauth "github.com/avikram1/campusauth/pkg/auth"
	pkglogger "github.com/avikram1/campusauth/pkg/logger"
)

// PasswordHistoryReader lists recent password hashes for reuse checking
type PasswordHistoryReader interface {
	ListRecent(ctx context.Context, accountID string, limit int) ([]*models.PasswordHistoryEntry, error)
}

// ResetStore commits the atomic final step of a reset
type ResetStore interface {
	CompletePasswordReset(ctx context.Context, accountID, newPasswordHash string) error
}

// PasswordResetService orchestrates OTP issuance, verification and password
// replacement with history-based reuse prevention.
type PasswordResetService struct {
	accounts OtpRepository
	history  PasswordHistoryReader
	store    ResetStore
	otp      *OtpService
	logger   *slog.Logger
	audit    *pkglogger.AuditLogger
}

// NewPasswordResetService creates a new PasswordResetService
func NewPasswordResetService(accounts OtpRepository, history PasswordHistoryReader, store ResetStore, otp *OtpService, logger *slog.Logger, audit *pkglogger.AuditLogger) *PasswordResetService {
	return &PasswordResetService{
		accounts: accounts,
		history:  history,
		store:    store,
		otp:      otp,
		logger:   logger,
		audit:    audit,
	}
}

// RequestReset issues a reset OTP to the account holder.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to get account for reset request", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if _, err := s.otp.Issue(ctx, account); err != nil {
		return err
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "password_reset_requested",
		AccountID: account.ID,
		Success:   true,
	})

	return nil
}

// VerifyResetOtp validates the submitted code but keeps it stored so it
// remains valid for the subsequent password-set step.
func (s *PasswordResetService) VerifyResetOtp(ctx context.Context, email, submitted, ipAddress, userAgent string) (*OtpResult, error) {
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get account for reset verify", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return s.otp.Verify(ctx, account, submitted, VerifyOptions{
		RetainOnSuccess: true,
		IPAddress:       ipAddress,
		UserAgent:       userAgent,
	})
}

// CompleteReset replaces the password after re-validating the OTP and the
// reuse history. The OTP check here is a second independent validation, not
// a cached "verified" flag: the window between verification and submission
// must not be replayable with stale or forged state.
//
// The returned OtpResult is set on OTP failures so responses can carry the
// remaining attempts or remaining lock time.
func (s *PasswordResetService) CompleteReset(ctx context.Context, email, submitted, newPassword, ipAddress string) (*OtpResult, error) {
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get account for reset completion", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := time.Now()

	// Re-validate exactly as a fresh verification would, without consuming
	// an attempt: cool-down, presence, expiry, exact match.
	if account.OtpVerifyLockedUntil != nil && now.Before(*account.OtpVerifyLockedUntil) {
		return &OtpResult{
			RemainingLockSeconds: int(time.Until(*account.OtpVerifyLockedUntil).Seconds()),
		}, models.ErrOtpVerifyLocked
	}
	if account.Otp == nil || account.OtpExpiresAt == nil || now.After(*account.OtpExpiresAt) {
		return &OtpResult{
			RemainingAttempts: s.otp.config.MaxVerifyAttempts - account.OtpVerifyAttempts,
		}, models.ErrInvalidOtp
	}
	if strings.TrimSpace(submitted) != *account.Otp {
		return &OtpResult{
			RemainingAttempts: s.otp.config.MaxVerifyAttempts - account.OtpVerifyAttempts,
		}, models.ErrInvalidOtp
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return nil, err
	}

	// Reuse check against the retained history
	entries, err := s.history.ListRecent(ctx, account.ID, models.PasswordHistoryRetention)
	if err != nil {
		s.logger.Error("failed to load password history",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	for _, entry := range entries {
		if pkgauth.IsHashMatch(entry.HashedPassword, newPassword) {
			s.audit.LogPasswordChange(account.ID, ipAddress, false)
			return nil, models.ErrPasswordReused
		}
	}

	// The current hash may predate history tracking; check it too
	if account.PasswordHash != "" && pkgauth.IsHashMatch(account.PasswordHash, newPassword) {
		s.audit.LogPasswordChange(account.ID, ipAddress, false)
		return nil, models.ErrPasswordReused
	}

	newHash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash new password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.store.CompletePasswordReset(ctx, account.ID, newHash); err != nil {
		s.logger.Error("failed to complete password reset",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogPasswordChange(account.ID, ipAddress, true)
	return &OtpResult{Verified: true}, nil
}
