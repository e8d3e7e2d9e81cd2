package repositories

import (
	"context"
	"fmt"

	"github.com/avikram1/campusauth/internal/database"
	"github.com/avikram1/campusauth/internal/models"
	"github.com/google/uuid"
)

// PasswordHistoryRepository handles the append-only password history used
// for reuse prevention.
type PasswordHistoryRepository struct {
	db DBTX
}

// NewPasswordHistoryRepository creates a new PasswordHistoryRepository
func NewPasswordHistoryRepository(db DBTX) *PasswordHistoryRepository {
	return &PasswordHistoryRepository{db: db}
}

// ListRecent returns up to limit history entries for the account, newest
// first.
func (r *PasswordHistoryRepository) ListRecent(ctx context.Context, accountID string, limit int) ([]*models.PasswordHistoryEntry, error) {
	query := `
		SELECT id, account_id, hashed_password, created_at
		FROM password_history
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	entries := make([]*models.PasswordHistoryEntry, 0)
	for rows.Next() {
		var entry models.PasswordHistoryEntry
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.HashedPassword, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan password history entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return entries, nil
}

// Append inserts a new history entry through the supplied DBTX.
func (r *PasswordHistoryRepository) Append(ctx context.Context, q DBTX, accountID, hashedPassword string) error {
	query := `
		INSERT INTO password_history (id, account_id, hashed_password, created_at)
		VALUES ($1, $2, $3, NOW())
	`

	_, err := q.Exec(ctx, query, uuid.New().String(), accountID, hashedPassword)
	return database.MapPostgresError(err)
}

// Prune deletes entries beyond the most recent keep for the account.
func (r *PasswordHistoryRepository) Prune(ctx context.Context, q DBTX, accountID string, keep int) error {
	query := `
		DELETE FROM password_history
		WHERE account_id = $1
		  AND id NOT IN (
			SELECT id FROM password_history
			WHERE account_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		  )
	`

	_, err := q.Exec(ctx, query, accountID, keep)
	return database.MapPostgresError(err)
}
