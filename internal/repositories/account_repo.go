package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/avikram1/campusauth/internal/database"
	"github.com/avikram1/campusauth/internal/models"
	"github.com/google/uuid"
)

const accountColumns = `id, email, password_hash, name, role, college_id,
		failed_login_attempts, last_failed_login_at, is_locked, locked_until, lockout_count,
		otp, otp_expires_at, otp_verify_attempts, otp_verify_locked_until, last_otp_verified_at,
		session_token, is_logged_in, session_expires_at, last_activity, last_login_at,
		created_at, updated_at`

// AccountRepository handles database operations for accounts. All counter
// mutations are expressed as relative updates at the storage layer so that
// concurrent requests against the same row cannot undercount each other.
type AccountRepository struct {
	db DBTX
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

// rowScanner interface for scanning account rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAccountRow handles nullable fields and populates an Account model
func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account
	var passwordHash *string

	err := scanner.Scan(
		&account.ID, &account.Email, &passwordHash, &account.Name, &account.Role, &account.CollegeID,
		&account.FailedLoginAttempts, &account.LastFailedLoginAt, &account.IsLocked, &account.LockedUntil, &account.LockoutCount,
		&account.Otp, &account.OtpExpiresAt, &account.OtpVerifyAttempts, &account.OtpVerifyLockedUntil, &account.LastOtpVerifiedAt,
		&account.SessionToken, &account.IsLoggedIn, &account.SessionExpiresAt, &account.LastActivity, &account.LastLoginAt,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		account.PasswordHash = *passwordHash
	}

	return &account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.db.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE LOWER(email) = LOWER($1)`
	return scanAccountRow(r.db.QueryRow(ctx, query, email))
}

// GetBySessionToken resolves the account holding the given session token.
// Tokens are unique because at most one slot ever holds a given value.
func (r *AccountRepository) GetBySessionToken(ctx context.Context, token string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE session_token = $1`
	return scanAccountRow(r.db.QueryRow(ctx, query, token))
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	account.ID = uuid.New().String()

	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	if account.Role == "" {
		account.Role = "student"
	}

	query := `
		INSERT INTO accounts (id, email, password_hash, name, role, college_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + accountColumns

	var passwordHash *string
	if account.PasswordHash != "" {
		passwordHash = &account.PasswordHash
	}

	created, err := scanAccountRow(r.db.QueryRow(ctx, query,
		account.ID, account.Email, passwordHash, account.Name, account.Role, account.CollegeID,
		account.CreatedAt, account.UpdatedAt,
	))
	if err != nil {
		return nil, err
	}

	return created, nil
}

// IncrementFailedAttempts bumps the failure counter with a relative update
// and returns the resulting counter and cumulative lockout count. The
// increment happens in the database so two concurrent failures cannot both
// read the same base value.
func (r *AccountRepository) IncrementFailedAttempts(ctx context.Context, id string) (attempts int, lockoutCount int, err error) {
	query := `
		UPDATE accounts
		SET failed_login_attempts = failed_login_attempts + 1,
		    last_failed_login_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING failed_login_attempts, lockout_count
	`

	err = r.db.QueryRow(ctx, query, id).Scan(&attempts, &lockoutCount)
	if err != nil {
		return 0, 0, database.MapPostgresError(err)
	}
	return attempts, lockoutCount, nil
}

// ApplyLock escalates the account to locked state and starts the next
// counting cycle. The cumulative lockout_count only ever grows.
func (r *AccountRepository) ApplyLock(ctx context.Context, id string, lockedUntil time.Time) error {
	query := `
		UPDATE accounts
		SET is_locked = TRUE,
		    locked_until = $2,
		    lockout_count = lockout_count + 1,
		    failed_login_attempts = 0,
		    updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, id, lockedUntil)
	return database.MapPostgresError(err)
}

// ClearLock writes back the lazy unlock transition. lockout_count is
// preserved so backoff keeps escalating across cycles.
func (r *AccountRepository) ClearLock(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET is_locked = FALSE,
		    locked_until = NULL,
		    failed_login_attempts = 0,
		    updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, id)
	return database.MapPostgresError(err)
}

// ResetFailedAttempts zeroes the failure counter without touching lock state.
func (r *AccountRepository) ResetFailedAttempts(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET failed_login_attempts = 0,
		    updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, id)
	return database.MapPostgresError(err)
}

// SetOtp stores a fresh OTP challenge. The verify counter restarts for the
// new code but an active verify lock is deliberately left in place.
func (r *AccountRepository) SetOtp(ctx context.Context, id, code string, expiresAt time.Time) error {
	query := `
		UPDATE accounts
		SET otp = $2,
		    otp_expires_at = $3,
		    otp_verify_attempts = 0,
		    updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, id, code, expiresAt)
	return database.MapPostgresError(err)
}

// IncrementOtpVerifyAttempts bumps the OTP attempt counter atomically and
// returns the new value.
func (r *AccountRepository) IncrementOtpVerifyAttempts(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE accounts
		SET otp_verify_attempts = otp_verify_attempts + 1,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING otp_verify_attempts
	`

	var attempts int
	if err := r.db.QueryRow(ctx, query, id).Scan(&attempts); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return attempts, nil
}

// LockOtpVerify starts the OTP verification cool-down and resets the counter
// for the next cycle.
func (r *AccountRepository) LockOtpVerify(ctx context.Context, id string, until time.Time) error {
	query := `
		UPDATE accounts
		SET otp_verify_locked_until = $2,
		    otp_verify_attempts = 0,
		    updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, id, until)
	return database.MapPostgresError(err)
}

// FinalizeOtpSuccess records a successful verification on the account row.
// When clearOtp is false (reset flows) the code stays valid for the
// subsequent password-set step.
func (r *AccountRepository) FinalizeOtpSuccess(ctx context.Context, q DBTX, id string, clearOtp bool) error {
	var query string
	if clearOtp {
		query = `
			UPDATE accounts
			SET otp = NULL,
			    otp_expires_at = NULL,
			    otp_verify_attempts = 0,
			    otp_verify_locked_until = NULL,
			    last_otp_verified_at = NOW(),
			    updated_at = NOW()
			WHERE id = $1
		`
	} else {
		query = `
			UPDATE accounts
			SET otp_verify_attempts = 0,
			    otp_verify_locked_until = NULL,
			    last_otp_verified_at = NOW(),
			    updated_at = NOW()
			WHERE id = $1
		`
	}

	_, err := q.Exec(ctx, query, id)
	return database.MapPostgresError(err)
}

// IssueSession overwrites the single session slot. Overwriting is the
// revocation mechanism for any prior token.
func (r *AccountRepository) IssueSession(ctx context.Context, id, token string, expiresAt time.Time) error {
	query := `
		UPDATE accounts
		SET session_token = $2,
		    is_logged_in = TRUE,
		    session_expires_at = $3,
		    last_activity = NOW(),
		    last_login_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, token, expiresAt)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ClearSession empties the session slot.
func (r *AccountRepository) ClearSession(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET session_token = NULL,
		    is_logged_in = FALSE,
		    session_expires_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, id)
	return database.MapPostgresError(err)
}

// TouchActivity refreshes last_activity for an active session.
func (r *AccountRepository) TouchActivity(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET last_activity = NOW(),
		    updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, id)
	return database.MapPostgresError(err)
}

// CleanupExpiredSessions force-clears sessions whose last login is older than
// the ceiling. Idempotent: rows already cleared do not match again.
func (r *AccountRepository) CleanupExpiredSessions(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		UPDATE accounts
		SET session_token = NULL,
		    is_logged_in = FALSE,
		    session_expires_at = NULL,
		    updated_at = NOW()
		WHERE is_logged_in = TRUE
		  AND (last_login_at IS NULL OR last_login_at < $1)
	`

	tag, err := r.db.Exec(ctx, query, olderThan)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

// UpdatePassword replaces the stored hash and clears the OTP challenge. Runs
// against the supplied DBTX so completeReset can bundle it with history
// writes in one transaction.
func (r *AccountRepository) UpdatePassword(ctx context.Context, q DBTX, id, passwordHash string) error {
	query := `
		UPDATE accounts
		SET password_hash = $2,
		    otp = NULL,
		    otp_expires_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`

	tag, err := q.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("password update affected no rows: %w", models.ErrNotFound)
	}
	return nil
}
