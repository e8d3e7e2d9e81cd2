package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/avikram1/campusauth/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountColumnNames = []string{
	"id", "email", "password_hash", "name", "role", "college_id",
	"failed_login_attempts", "last_failed_login_at", "is_locked", "locked_until", "lockout_count",
	"otp", "otp_expires_at", "otp_verify_attempts", "otp_verify_locked_until", "last_otp_verified_at",
	"session_token", "is_logged_in", "session_expires_at", "last_activity", "last_login_at",
	"created_at", "updated_at",
}

func newAccountMock(t *testing.T) (pgxmock.PgxPoolIface, *AccountRepository) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return mock, NewAccountRepository(mock)
}

// accountRow builds a full result row for the given identity with all auth
// state zeroed.
func accountRow(id, email string) *pgxmock.Rows {
	now := time.Now()
	hash := "$2a$04$fakehashfortestingonlyabcdefghijklmnopqrstuv"
	return pgxmock.NewRows(accountColumnNames).AddRow(
		id, email, &hash, "Test Student", "student", nil,
		0, nil, false, nil, 0,
		nil, nil, 0, nil, nil,
		nil, false, nil, nil, nil,
		now, now,
	)
}

func TestAccountRepository_GetByEmail(t *testing.T) {
	mock, repo := newAccountMock(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE LOWER\(email\) = LOWER\(\$1\)`).
		WithArgs("student@college.edu").
		WillReturnRows(accountRow("acct1", "student@college.edu"))

	account, err := repo.GetByEmail(context.Background(), "student@college.edu")

	require.NoError(t, err)
	assert.Equal(t, "acct1", account.ID)
	assert.Equal(t, "student@college.edu", account.Email)
	assert.NotEmpty(t, account.PasswordHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_GetByEmail_NotFound(t *testing.T) {
	mock, repo := newAccountMock(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE LOWER\(email\) = LOWER\(\$1\)`).
		WithArgs("nobody@college.edu").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "nobody@college.edu")

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAccountRepository_GetBySessionToken(t *testing.T) {
	mock, repo := newAccountMock(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE session_token = \$1`).
		WithArgs("session-token-1").
		WillReturnRows(accountRow("acct1", "student@college.edu"))

	account, err := repo.GetBySessionToken(context.Background(), "session-token-1")

	require.NoError(t, err)
	assert.Equal(t, "acct1", account.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_GetBySessionToken_NotFound(t *testing.T) {
	mock, repo := newAccountMock(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE session_token = \$1`).
		WithArgs("stale-token").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetBySessionToken(context.Background(), "stale-token")

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAccountRepository_Create_DuplicateEmail(t *testing.T) {
	mock, repo := newAccountMock(t)
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO accounts`).
		WithArgs(pgxmock.AnyArg(), "taken@college.edu", pgxmock.AnyArg(), "Test Student", "student", pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), &models.Account{
		Email:        "taken@college.edu",
		PasswordHash: "hash",
		Name:         "Test Student",
		Role:         "student",
	})

	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestAccountRepository_IncrementFailedAttempts(t *testing.T) {
	mock, repo := newAccountMock(t)
	defer mock.Close()

	mock.ExpectQuery(`SET failed_login_attempts = failed_login_attempts \+ 1`).
		WithArgs("acct1").
		WillReturnRows(pgxmock.NewRows([]string{"failed_login_attempts", "lockout_count"}).AddRow(3, 1))

	attempts, lockoutCount, err := repo.IncrementFailedAttempts(context.Background(), "acct1")

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 1, lockoutCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_ApplyLock(t *testing.T) {
	mock, repo := newAccountMock(t)
	defer mock.Close()

	lockedUntil := time.Now().Add(30 * time.Minute)

	mock.ExpectExec(`SET is_locked = TRUE`).
		WithArgs("acct1", lockedUntil).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.ApplyLock(context.Background(), "acct1", lockedUntil)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_ClearLock(t *testing.T) {
	mock, repo := newAccountMock(t)
	defer mock.Close()

	mock.ExpectExec(`SET is_locked = FALSE`).
		WithArgs("acct1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.ClearLock(context.Background(), "acct1")

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_SetOtp(t *testing.T) {
	mock, repo := newAccountMock(t)
	defer mock.Close()

	expiresAt := time.Now().Add(10 * time.Minute)

	mock.ExpectExec(`SET otp = \$2`).
		WithArgs("acct1", "123456", expiresAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.SetOtp(context.Background(), "acct1", "123456", expiresAt)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_IncrementOtpVerifyAttempts(t *testing.T) {
	mock, repo := newAccountMock(t)
	defer mock.Close()

	mock.ExpectQuery(`SET otp_verify_attempts = otp_verify_attempts \+ 1`).
		WithArgs("acct1").
		WillReturnRows(pgxmock.NewRows([]string{"otp_verify_attempts"}).AddRow(2))

	attempts, err := repo.IncrementOtpVerifyAttempts(context.Background(), "acct1")

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestAccountRepository_IssueSession(t *testing.T) {
	mock, repo := newAccountMock(t)
	defer mock.Close()

	expiresAt := time.Now().Add(24 * time.Hour)

	mock.ExpectExec(`SET session_token = \$2`).
		WithArgs("acct1", "token123", expiresAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.IssueSession(context.Background(), "acct1", "token123", expiresAt)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_IssueSession_UnknownAccount(t *testing.T) {
	mock, repo := newAccountMock(t)
	defer mock.Close()

	expiresAt := time.Now().Add(24 * time.Hour)

	mock.ExpectExec(`SET session_token = \$2`).
		WithArgs("ghost", "token123", expiresAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.IssueSession(context.Background(), "ghost", "token123", expiresAt)

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAccountRepository_CleanupExpiredSessions(t *testing.T) {
	mock, repo := newAccountMock(t)
	defer mock.Close()

	cutoff := time.Now().Add(-24 * time.Hour)

	mock.ExpectExec(`WHERE is_logged_in = TRUE`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	cleaned, err := repo.CleanupExpiredSessions(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(3), cleaned)

	// Second sweep matches nothing
	mock.ExpectExec(`WHERE is_logged_in = TRUE`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	cleaned, err = repo.CleanupExpiredSessions(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(0), cleaned)
}

func TestAccountRepository_UpdatePassword_UnknownAccount(t *testing.T) {
	mock, repo := newAccountMock(t)
	defer mock.Close()

	mock.ExpectExec(`SET password_hash = \$2`).
		WithArgs("ghost", "newhash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdatePassword(context.Background(), mock, "ghost", "newhash")

	assert.ErrorIs(t, err, models.ErrNotFound)
}
