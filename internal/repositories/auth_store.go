package repositories

import (
	"context"

	"github.com/avikram1/campusauth/internal/database"
	"github.com/avikram1/campusauth/internal/models"
	"github.com/jackc/pgx/v5"
)

// AuthStore bundles the multi-row mutations that must commit atomically:
// OTP verification finalization (account row + verification history) and
// password reset completion (account row + password history).
type AuthStore struct {
	db                  *database.DB
	accounts            *AccountRepository
	passwordHistory     *PasswordHistoryRepository
	verificationHistory *VerificationHistoryRepository
}

// NewAuthStore creates a new AuthStore
func NewAuthStore(db *database.DB, accounts *AccountRepository, passwordHistory *PasswordHistoryRepository, verificationHistory *VerificationHistoryRepository) *AuthStore {
	return &AuthStore{
		db:                  db,
		accounts:            accounts,
		passwordHistory:     passwordHistory,
		verificationHistory: verificationHistory,
	}
}

// FinalizeVerification commits a successful OTP verification: resets the
// attempt counters, optionally clears the code (single-use), stamps
// last_otp_verified_at and replaces the verification history entry in one
// transaction.
func (s *AuthStore) FinalizeVerification(ctx context.Context, accountID string, clearOtp bool, ipAddress, userAgent string) error {
	return s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.accounts.FinalizeOtpSuccess(ctx, tx, accountID, clearOtp); err != nil {
			return err
		}
		return s.verificationHistory.Replace(ctx, tx, &models.VerificationHistoryEntry{
			AccountID: accountID,
			IPAddress: ipAddress,
			UserAgent: userAgent,
		})
	})
}

// CompletePasswordReset commits the final step of a password reset: replace
// the stored hash, clear the OTP challenge, append the history entry and
// prune beyond the retention limit, all in one transaction.
func (s *AuthStore) CompletePasswordReset(ctx context.Context, accountID, newPasswordHash string) error {
	return s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.accounts.UpdatePassword(ctx, tx, accountID, newPasswordHash); err != nil {
			return err
		}
		if err := s.passwordHistory.Append(ctx, tx, accountID, newPasswordHash); err != nil {
			return err
		}
		return s.passwordHistory.Prune(ctx, tx, accountID, models.PasswordHistoryRetention)
	})
}
