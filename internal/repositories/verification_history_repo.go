package repositories

import (
	"context"

	"github.com/avikram1/campusauth/internal/database"
	"github.com/avikram1/campusauth/internal/models"
	"github.com/google/uuid"
)

// VerificationHistoryRepository records successful OTP verifications. Only
// the latest entry per account matters operationally, so each write replaces
// the prior ones.
type VerificationHistoryRepository struct {
	db DBTX
}

// NewVerificationHistoryRepository creates a new VerificationHistoryRepository
func NewVerificationHistoryRepository(db DBTX) *VerificationHistoryRepository {
	return &VerificationHistoryRepository{db: db}
}

// Replace clears prior entries for the account and inserts the new one.
// Runs against the supplied DBTX so callers can bundle it with the account
// row update.
func (r *VerificationHistoryRepository) Replace(ctx context.Context, q DBTX, entry *models.VerificationHistoryEntry) error {
	deleteQuery := `DELETE FROM verification_history WHERE account_id = $1`
	if _, err := q.Exec(ctx, deleteQuery, entry.AccountID); err != nil {
		return database.MapPostgresError(err)
	}

	insertQuery := `
		INSERT INTO verification_history (id, account_id, verified_at, ip_address, user_agent)
		VALUES ($1, $2, NOW(), $3, $4)
	`

	_, err := q.Exec(ctx, insertQuery, uuid.New().String(), entry.AccountID, entry.IPAddress, entry.UserAgent)
	return database.MapPostgresError(err)
}

// Latest returns the most recent verification entry for the account, or
// models.ErrNotFound when none exists.
func (r *VerificationHistoryRepository) Latest(ctx context.Context, accountID string) (*models.VerificationHistoryEntry, error) {
	query := `
		SELECT id, account_id, verified_at, ip_address, user_agent
		FROM verification_history
		WHERE account_id = $1
		ORDER BY verified_at DESC
		LIMIT 1
	`

	var entry models.VerificationHistoryEntry
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&entry.ID, &entry.AccountID, &entry.VerifiedAt, &entry.IPAddress, &entry.UserAgent,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &entry, nil
}
